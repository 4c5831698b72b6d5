package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RegisterModules registers all engine.* Lua functions into L. Query
// functions return nil when their callback is not injected or the entity is
// unknown, so zone scripts degrade to no-ops rather than erroring.
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine global is defined in L.
func (m *Manager) RegisterModules(L *lua.LState) {
	engine := L.NewTable()

	L.SetField(engine, "roll", L.NewFunction(m.luaRoll))
	L.SetField(engine, "npc", L.NewFunction(m.luaNPC))
	L.SetField(engine, "top_threat", L.NewFunction(m.luaTopThreat))
	L.SetField(engine, "crime_heat", L.NewFunction(m.luaCrimeHeat))
	L.SetField(engine, "has_effect", L.NewFunction(m.luaHasEffect))
	L.SetField(engine, "say", L.NewFunction(m.luaSay))

	logTbl := L.NewTable()
	L.SetField(logTbl, "debug", L.NewFunction(m.luaLogAt(zap.DebugLevel)))
	L.SetField(logTbl, "info", L.NewFunction(m.luaLogAt(zap.InfoLevel)))
	L.SetField(logTbl, "warn", L.NewFunction(m.luaLogAt(zap.WarnLevel)))
	L.SetField(logTbl, "error", L.NewFunction(m.luaLogAt(zap.ErrorLevel)))
	L.SetField(engine, "log", logTbl)

	L.SetGlobal("engine", engine)
}

// luaRoll implements engine.roll(expr) -> total or nil on a bad expression.
func (m *Manager) luaRoll(L *lua.LState) int {
	expr := L.CheckString(1)
	res, err := m.roller.RollExpr(expr)
	if err != nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(res.Total()))
	return 1
}

// luaNPC implements engine.npc(id) -> table{id, name, hp_pct, role, alive} or nil.
func (m *Manager) luaNPC(L *lua.LState) int {
	id := L.CheckString(1)
	if m.GetNPC == nil {
		L.Push(lua.LNil)
		return 1
	}
	info := m.GetNPC(id)
	if info == nil {
		L.Push(lua.LNil)
		return 1
	}
	tbl := L.NewTable()
	L.SetField(tbl, "id", lua.LString(info.ID))
	L.SetField(tbl, "name", lua.LString(info.Name))
	L.SetField(tbl, "hp_pct", lua.LNumber(info.HPPercent))
	L.SetField(tbl, "role", lua.LString(info.Role))
	L.SetField(tbl, "alive", lua.LBool(info.Alive))
	L.Push(tbl)
	return 1
}

// luaTopThreat implements engine.top_threat(npc_id) -> (target_id, threat)
// or (nil, 0) when the ledger is empty.
func (m *Manager) luaTopThreat(L *lua.LState) int {
	npcID := L.CheckString(1)
	if m.TopThreat == nil {
		L.Push(lua.LNil)
		L.Push(lua.LNumber(0))
		return 2
	}
	target, value := m.TopThreat(npcID)
	if target == "" {
		L.Push(lua.LNil)
	} else {
		L.Push(lua.LString(target))
	}
	L.Push(lua.LNumber(value))
	return 2
}

// luaCrimeHeat implements engine.crime_heat(entity_id) -> number.
func (m *Manager) luaCrimeHeat(L *lua.LState) int {
	id := L.CheckString(1)
	if m.CrimeHeat == nil {
		L.Push(lua.LNumber(0))
		return 1
	}
	L.Push(lua.LNumber(m.CrimeHeat(id)))
	return 1
}

// luaHasEffect implements engine.has_effect(entity_id, effect_id) -> bool.
func (m *Manager) luaHasEffect(L *lua.LState) int {
	entityID := L.CheckString(1)
	effectID := L.CheckString(2)
	if m.HasEffect == nil {
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LBool(m.HasEffect(entityID, effectID)))
	return 1
}

// luaSay implements engine.say(room_id, msg); no-op without a Broadcast callback.
func (m *Manager) luaSay(L *lua.LState) int {
	roomID := L.CheckString(1)
	msg := L.CheckString(2)
	if m.Broadcast != nil {
		m.Broadcast(roomID, msg)
	}
	return 0
}

// luaLogAt builds engine.log.<level>(msg), forwarding to the server log.
func (m *Manager) luaLogAt(level zapcore.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.CheckString(1)
		if ce := m.logger.Check(level, "script"); ce != nil {
			ce.Write(zap.String("msg", msg))
		}
		return 0
	}
}
