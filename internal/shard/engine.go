package shard

import (
	"fmt"
	"math"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/veilwood/mud/internal/game/assist"
	"github.com/veilwood/mud/internal/game/brain"
	"github.com/veilwood/mud/internal/game/cooldown"
	"github.com/veilwood/mud/internal/game/dice"
	"github.com/veilwood/mud/internal/game/effect"
	"github.com/veilwood/mud/internal/game/mitigation"
	"github.com/veilwood/mud/internal/game/npc"
	"github.com/veilwood/mud/internal/game/threat"
	"github.com/veilwood/mud/internal/scripting"
)

// attackBucket is the cooldown bucket for NPC attack decisions.
const attackBucket = "attack"

// defaultNPCDamage is rolled when a template carries no damage expression.
const defaultNPCDamage = "1d4"

// PlayerInfo is the engine's view of one player character in a room.
type PlayerInfo struct {
	ID        string
	Name      string
	HP        int
	MaxHP     int
	Armor     int
	Role      string
	Stealthed bool
}

// Options bundles the collaborators an Engine needs.
type Options struct {
	NPCs       *npc.Manager
	Effects    *effect.Registry
	Cooldowns  *cooldown.Registry
	Assist     *assist.Coordinator
	Respawn    *npc.RespawnManager
	Heat       *HeatLedger
	Tuning     threat.Tuning
	Mitigation mitigation.Config
	Roller     *dice.Roller
	Logger     *zap.Logger
	// Scripts is optional; when set, zone hooks fire on offenses and deaths.
	Scripts *scripting.Manager
	// Brains is optional; profiles overlay the stock temperaments.
	Brains brain.Profiles
	// ProtectedRooms marks rooms where guards enforce crime heat.
	ProtectedRooms map[string]bool
}

// Engine owns the combat-resolution state for one shard: every live NPC's
// threat ledger, effect set, and cooldowns, plus the decision pump that turns
// them into actions each tick.
//
// World-side integration is injected: PlayersInRoom supplies candidate
// snapshots, DamagePlayer lands NPC hits, Broadcast emits room text. Any of
// the three may be nil, degrading that concern to a no-op.
type Engine struct {
	npcs      *npc.Manager
	effects   *effect.Registry
	cooldowns *cooldown.Registry
	assists   *assist.Coordinator
	respawn   *npc.RespawnManager
	heat      *HeatLedger
	tuning    threat.Tuning
	mit       mitigation.Config
	roller    *dice.Roller
	logger    *zap.Logger
	scripts   *scripting.Manager
	brains    brain.Profiles
	protected map[string]bool

	// warned tracks guard warnings per (npcID, offenderID).
	warnedMu sync.Mutex
	warned   map[string]map[string]bool

	PlayersInRoom func(roomID string) []*PlayerInfo
	DamagePlayer  func(playerID string, amount int)
	Broadcast     func(roomID, msg string)
}

// NewEngine creates an Engine.
//
// Precondition: opts.NPCs, Cooldowns, Assist, Roller, and Logger must be
// non-nil; Tuning and Mitigation are normalized on ingestion.
func NewEngine(opts Options) *Engine {
	if opts.NPCs == nil || opts.Cooldowns == nil || opts.Assist == nil || opts.Roller == nil || opts.Logger == nil {
		panic("shard.NewEngine: NPCs, Cooldowns, Assist, Roller, and Logger must not be nil")
	}
	heat := opts.Heat
	if heat == nil {
		heat = NewHeatLedger(0)
	}
	return &Engine{
		npcs:      opts.NPCs,
		effects:   opts.Effects,
		cooldowns: opts.Cooldowns,
		assists:   opts.Assist,
		respawn:   opts.Respawn,
		heat:      heat,
		tuning:    opts.Tuning,
		mit:       opts.Mitigation.Clamped(),
		roller:    opts.Roller,
		logger:    opts.Logger,
		scripts:   opts.Scripts,
		brains:    opts.Brains,
		protected: opts.ProtectedRooms,
		warned:    make(map[string]map[string]bool),
	}
}

// Heat exposes the crime-heat ledger.
func (e *Engine) Heat() *HeatLedger { return e.heat }

// AttackOutcome describes one resolved player-versus-NPC hit.
type AttackOutcome struct {
	mitigation.Result
	// TargetDead reports whether the hit reduced the target to zero HP.
	TargetDead bool
	// HelpCalled reports whether the target recruited pack allies.
	HelpCalled bool
}

// ApplyAttack resolves an incoming hit from attackerID against target:
// effect modifiers scale the raw damage, the mitigation pipeline rolls
// parry/block/crit/glance and applies armor, the survivor's threat ledger
// records the attacker, and pack help calls fan out.
//
// Precondition: target must be non-nil and alive; rawDamage >= 0.
// Postcondition: target HP and threat ledger reflect the hit; the returned
// outcome reports the landed damage.
func (e *Engine) ApplyAttack(attackerID string, target *npc.Instance, rawDamage int, now time.Time) AttackOutcome {
	mods := target.Effects.Snapshot(now)
	scaled := float64(rawDamage) * (1 + mods.DamageTakenPct)
	if scaled < 0 || math.IsNaN(scaled) {
		scaled = 0
	}

	res := mitigation.Resolve(int(math.Round(scaled)), e.mit, e.roller.Source())
	if !res.Parried {
		res.Damage = mitigation.ApplyArmor(float64(res.Damage), float64(target.Armor), e.mit)
	}

	out := AttackOutcome{Result: res}
	if res.Damage > 0 {
		target.ApplyDamage(res.Damage)
	}

	if target.Alive() {
		// Parried and fully mitigated hits still register the attacker.
		target.Threat = threat.Add(target.Threat, attackerID, float64(res.Damage), now, e.tuning, threat.AddOpts{RecordAttacker: true})
		if target.CallsForHelp {
			out.HelpCalled = e.callForHelp(target, attackerID, now)
		}
	} else {
		out.TargetDead = true
		e.onNPCDeath(target)
	}

	e.logger.Debug("attack resolved",
		zap.String("attacker", attackerID),
		zap.String("target", target.ID),
		zap.Int("raw", rawDamage),
		zap.Int("damage", res.Damage),
		zap.Bool("parried", res.Parried),
		zap.Bool("blocked", res.Blocked),
		zap.Bool("crit", res.Crit),
		zap.Bool("glance", res.Glance),
	)
	return out
}

// RecordOffense notes a criminal act by offenderID witnessed in roomID,
// raising crime heat so guards react on subsequent ticks.
func (e *Engine) RecordOffense(offenderID, roomID string, severity float64, now time.Time) {
	e.heat.Record(offenderID, severity, now)
	e.logger.Info("offense recorded",
		zap.String("offender", offenderID),
		zap.String("room", roomID),
		zap.Float64("severity", severity),
	)
}

// ApplyEffect applies the registered effect defID to target.
//
// Precondition: the engine must have an effect registry.
func (e *Engine) ApplyEffect(target *npc.Instance, defID string, now time.Time) error {
	if e.effects == nil {
		return fmt.Errorf("shard: no effect registry configured")
	}
	def, ok := e.effects.Get(defID)
	if !ok {
		return fmt.Errorf("shard: unknown effect %q", defID)
	}
	return target.Effects.Apply(def, now)
}

// callForHelp propagates caller's threat against offenderID to its pack.
// Returns true when at least one ally was recruited.
func (e *Engine) callForHelp(caller *npc.Instance, offenderID string, now time.Time) bool {
	mates := e.npcs.PackMembers(caller.PackID, caller.ID)
	if len(mates) == 0 {
		return false
	}

	allies := make([]assist.Ally, 0, len(mates))
	byID := make(map[string]*npc.Instance, len(mates))
	for _, m := range mates {
		if !m.Alive() {
			continue
		}
		dist := 0
		if m.RoomID != caller.RoomID {
			dist = 1
		}
		allies = append(allies, assist.Ally{
			ID:           m.ID,
			State:        m.Threat,
			RoomDistance: dist,
			Engaged:      len(m.Threat.Entries) > 0,
		})
		byID[m.ID] = m
	}

	recruited := e.assists.Propagate(caller.ID, caller.Threat, offenderID, allies, now, e.visibilityIn(caller.RoomID))
	for _, a := range recruited {
		if inst, ok := byID[a.ID]; ok {
			inst.Threat = a.State
		}
	}
	if len(recruited) > 0 {
		e.say(caller.RoomID, fmt.Sprintf("%s howls for help!", caller.Name))
		return true
	}
	return false
}

// onNPCDeath clears transient combat state and fires the zone death hook.
func (e *Engine) onNPCDeath(inst *npc.Instance) {
	inst.Effects.Clear()
	inst.Threat = threat.NewState()
	e.cooldowns.Clear(inst.ID)
	e.forgetWarnings(inst.ID)
	if e.scripts != nil {
		_, _ = e.scripts.CallHook(zoneFromRoom(inst.RoomID), "on_npc_death",
			lua.LString(inst.ID), lua.LString(inst.RoomID))
	}
	e.say(inst.RoomID, fmt.Sprintf("%s collapses.", inst.Name))
}

// visibilityIn builds the target-validity predicate for a room from the
// current player snapshots. Stealthed players are undetectable; entities
// absent from the room are invalid.
func (e *Engine) visibilityIn(roomID string) threat.ValidFunc {
	players := e.players(roomID)
	present := make(map[string]*PlayerInfo, len(players))
	for _, p := range players {
		present[p.ID] = p
	}
	return func(entityID string) threat.Verdict {
		p, ok := present[entityID]
		if !ok {
			return threat.Invalid
		}
		if p.Stealthed {
			return threat.Undetectable
		}
		if p.HP <= 0 {
			return threat.Invalid
		}
		return threat.Valid
	}
}

func (e *Engine) players(roomID string) []*PlayerInfo {
	if e.PlayersInRoom == nil {
		return nil
	}
	return e.PlayersInRoom(roomID)
}

func (e *Engine) say(roomID, msg string) {
	if e.Broadcast != nil {
		e.Broadcast(roomID, msg)
	}
}

func (e *Engine) hasWarned(npcID, offenderID string) bool {
	e.warnedMu.Lock()
	defer e.warnedMu.Unlock()
	return e.warned[npcID][offenderID]
}

func (e *Engine) markWarned(npcID, offenderID string) {
	e.warnedMu.Lock()
	defer e.warnedMu.Unlock()
	if e.warned[npcID] == nil {
		e.warned[npcID] = make(map[string]bool)
	}
	e.warned[npcID][offenderID] = true
}

func (e *Engine) forgetWarnings(npcID string) {
	e.warnedMu.Lock()
	defer e.warnedMu.Unlock()
	delete(e.warned, npcID)
}

// zoneFromRoom maps a room to its zone for script dispatch. Rooms are named
// "<zone>:<room>"; a bare room name falls through to the global VM.
func zoneFromRoom(roomID string) string {
	for i := 0; i < len(roomID); i++ {
		if roomID[i] == ':' {
			return roomID[:i]
		}
	}
	return roomID
}
