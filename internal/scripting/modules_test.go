package scripting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/veilwood/mud/internal/game/dice"
	"github.com/veilwood/mud/internal/scripting"
)

func runScript(t *testing.T, mgr *scripting.Manager, luaSrc, hook string, args ...lua.LValue) lua.LValue {
	t.Helper()
	dir := writeTempLua(t, "test.lua", luaSrc)
	// Use a unique zone per test to avoid collisions
	zoneID := "modtest_" + t.Name()
	require.NoError(t, mgr.LoadZone(zoneID, dir, 0))
	ret, err := mgr.CallHook(zoneID, hook, args...)
	require.NoError(t, err)
	return ret
}

func TestEngineLog_WritesToLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	roller := dice.NewLoggedRoller(dice.NewCryptoSource(), logger)
	mgr := scripting.NewManager(roller, logger)

	runScript(t, mgr, `
		function do_log()
			engine.log.info("hello from lua")
		end
	`, "do_log")

	found := false
	for _, e := range logs.All() {
		if e.Level == zap.InfoLevel {
			found = true
			break
		}
	}
	assert.True(t, found, "expected Info log entry")
}

func TestEngineLog_AllLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	roller := dice.NewLoggedRoller(dice.NewCryptoSource(), logger)
	mgr := scripting.NewManager(roller, logger)

	runScript(t, mgr, `
		function do_all_logs()
			engine.log.debug("d")
			engine.log.info("i")
			engine.log.warn("w")
			engine.log.error("e")
		end
	`, "do_all_logs")

	levels := map[string]bool{}
	for _, e := range logs.All() {
		levels[e.Level.String()] = true
	}
	assert.True(t, levels["debug"], "expected debug log")
	assert.True(t, levels["info"], "expected info log")
	assert.True(t, levels["warn"], "expected warn log")
	assert.True(t, levels["error"], "expected error log")
}

func TestEngineRoll_ReturnsTotalInRange(t *testing.T) {
	mgr, _ := newTestManager(t)
	ret := runScript(t, mgr, `
		function roll_dice()
			return engine.roll("2d6+3")
		end
	`, "roll_dice")
	n, ok := ret.(lua.LNumber)
	require.True(t, ok, "expected LNumber, got %T", ret)
	assert.GreaterOrEqual(t, float64(n), 5.0)
	assert.LessOrEqual(t, float64(n), 15.0)
}

func TestEngineRoll_BadExpressionReturnsNil(t *testing.T) {
	mgr, _ := newTestManager(t)
	ret := runScript(t, mgr, `
		function roll_bad()
			return engine.roll("not dice")
		end
	`, "roll_bad")
	assert.Equal(t, lua.LNil, ret)
}

func TestEngineNPC_ReturnsSnapshotTable(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.GetNPC = func(id string) *scripting.NPCInfo {
		if id != "wolf-1" {
			return nil
		}
		return &scripting.NPCInfo{ID: "wolf-1", Name: "Forest Wolf", HPPercent: 0.5, Role: "dps", Alive: true}
	}

	ret := runScript(t, mgr, `
		function check_npc()
			local n = engine.npc("wolf-1")
			if n == nil then return "missing" end
			if n.hp_pct ~= 0.5 then return "bad hp" end
			if not n.alive then return "dead" end
			return n.name
		end
	`, "check_npc")
	assert.Equal(t, lua.LString("Forest Wolf"), ret)
}

func TestEngineNPC_UnknownReturnsNil(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.GetNPC = func(string) *scripting.NPCInfo { return nil }
	ret := runScript(t, mgr, `
		function check_missing()
			return engine.npc("nobody")
		end
	`, "check_missing")
	assert.Equal(t, lua.LNil, ret)
}

func TestEngineTopThreat(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.TopThreat = func(npcID string) (string, float64) {
		return "rogue-7", 42.5
	}
	ret := runScript(t, mgr, `
		function who_is_hated()
			local target, value = engine.top_threat("wolf-1")
			return target .. ":" .. tostring(value)
		end
	`, "who_is_hated")
	assert.Equal(t, lua.LString("rogue-7:42.5"), ret)
}

func TestEngineTopThreat_EmptyLedger(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.TopThreat = func(string) (string, float64) { return "", 0 }
	ret := runScript(t, mgr, `
		function nobody_hated()
			local target, _ = engine.top_threat("wolf-1")
			return target == nil
		end
	`, "nobody_hated")
	assert.Equal(t, lua.LTrue, ret)
}

func TestEngineCrimeHeat(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.CrimeHeat = func(id string) float64 {
		if id == "outlaw" {
			return 75
		}
		return 0
	}
	ret := runScript(t, mgr, `
		function check_heat()
			return engine.crime_heat("outlaw")
		end
	`, "check_heat")
	assert.Equal(t, lua.LNumber(75), ret)
}

func TestEngineHasEffect(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.HasEffect = func(entityID, effectID string) bool {
		return entityID == "wolf-1" && effectID == "poison"
	}
	ret := runScript(t, mgr, `
		function poisoned()
			return engine.has_effect("wolf-1", "poison")
		end
	`, "poisoned")
	assert.Equal(t, lua.LTrue, ret)
}

func TestEngineSay_ForwardsToBroadcast(t *testing.T) {
	mgr, _ := newTestManager(t)
	var gotRoom, gotMsg string
	mgr.Broadcast = func(roomID, msg string) {
		gotRoom, gotMsg = roomID, msg
	}
	runScript(t, mgr, `
		function shout()
			engine.say("clearing", "The pack stirs.")
		end
	`, "shout")
	assert.Equal(t, "clearing", gotRoom)
	assert.Equal(t, "The pack stirs.", gotMsg)
}

func TestEngineCallbacks_NilAreSafeNoOps(t *testing.T) {
	mgr, _ := newTestManager(t)
	ret := runScript(t, mgr, `
		function all_defaults()
			if engine.npc("x") ~= nil then return "npc" end
			local target, v = engine.top_threat("x")
			if target ~= nil or v ~= 0 then return "threat" end
			if engine.crime_heat("x") ~= 0 then return "heat" end
			if engine.has_effect("x", "y") then return "effect" end
			engine.say("room", "msg")
			return "ok"
		end
	`, "all_defaults")
	assert.Equal(t, lua.LString("ok"), ret)
}
