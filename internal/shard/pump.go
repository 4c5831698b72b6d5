package shard

import (
	"fmt"
	"math"
	"sort"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/veilwood/mud/internal/game/brain"
	"github.com/veilwood/mud/internal/game/npc"
	"github.com/veilwood/mud/internal/game/threat"
)

// EventKind labels one observable NPC action produced by a tick.
type EventKind string

const (
	EventAttack EventKind = "attack"
	EventSay    EventKind = "say"
	EventFlee   EventKind = "flee"
	EventMove   EventKind = "move"
	EventDeath  EventKind = "death"
)

// Event is one observable NPC action. The pump returns events so callers can
// forward them to sessions; broadcasts have already happened by then.
type Event struct {
	Kind     EventKind
	NPCID    string
	RoomID   string
	TargetID string
	Damage   int
	Message  string
}

// TickRooms runs one decision tick over the given rooms: effects tick first
// (damage-over-time may kill), then each surviving NPC selects a target and
// acts through its temperament brain, then dead NPCs are reaped and respawns
// fire. Rooms and NPCs are visited in deterministic order.
//
// Precondition: now must not be zero.
// Postcondition: Returns the events produced this tick, in order.
func (e *Engine) TickRooms(roomIDs []string, now time.Time) []Event {
	var events []Event
	for _, roomID := range roomIDs {
		events = append(events, e.tickRoom(roomID, now)...)
	}
	if e.respawn != nil {
		e.respawn.ReapDead(roomIDs, now, e.npcs)
		e.respawn.Tick(now, e.npcs)
	}
	return events
}

func (e *Engine) tickRoom(roomID string, now time.Time) []Event {
	players := e.players(roomID)
	isValid := e.visibilityIn(roomID)

	var events []Event
	for _, inst := range e.npcs.InstancesInRoom(roomID) {
		if !inst.Alive() {
			continue
		}

		if dot := inst.Effects.Tick(now, inst); dot > 0 && !inst.Alive() {
			e.onNPCDeath(inst)
			events = append(events, Event{Kind: EventDeath, NPCID: inst.ID, RoomID: roomID})
			continue
		}

		decision := e.decide(inst, players, isValid, now)
		events = append(events, e.apply(inst, decision, now)...)
	}
	return events
}

// decide builds the brain context for inst and runs its temperament brain.
func (e *Engine) decide(inst *npc.Instance, players []*PlayerInfo, isValid threat.ValidFunc, now time.Time) brain.Decision {
	targetID, updated := threat.SelectTarget(inst.Threat, now, e.tuning, isValid)
	inst.Threat = updated

	candidates := e.candidates(players, targetID, isValid, now)

	ctx := &brain.Context{
		Perception: brain.Perception{
			SelfID:        inst.ID,
			HP:            inst.CurrentHP,
			MaxHP:         inst.MaxHP,
			RoomID:        inst.RoomID,
			ProtectedArea: e.protected[inst.RoomID],
		},
		Candidates:        candidates,
		CooldownRemaining: e.cooldowns.Remaining(inst.ID, attackBucket, "swing", now),
		AttackCooldown:    inst.AttackCooldown,
		StartCooldown: func(d time.Duration) {
			e.cooldowns.Start(inst.ID, attackBucket, "swing", d, now)
		},
		HasWarned:  func(offenderID string) bool { return e.hasWarned(inst.ID, offenderID) },
		MarkWarned: func(offenderID string) { e.markWarned(inst.ID, offenderID) },
		MarkHelpCalled: func(offenderID string) {
			if inst.CallsForHelp {
				e.callForHelp(inst, offenderID, now)
			}
		},
		OffenseHook: e.offenseHook(inst),
	}

	b, err := e.brains.For(inst.Temperament)
	if err != nil {
		e.logger.Warn("unknown temperament, treating as neutral",
			zap.String("npc", inst.ID),
			zap.String("temperament", inst.Temperament),
		)
		return nil
	}
	return b.Decide(ctx)
}

// candidates converts visible players to brain candidates. The threat-selected
// target, when present, is always first; the rest follow in ID order.
func (e *Engine) candidates(players []*PlayerInfo, targetID string, isValid threat.ValidFunc, now time.Time) []brain.Candidate {
	var out []brain.Candidate
	for _, p := range players {
		if isValid(p.ID) != threat.Valid {
			continue
		}
		hpPct := 0.0
		if p.MaxHP > 0 {
			hpPct = float64(p.HP) / float64(p.MaxHP)
		}
		out = append(out, brain.Candidate{
			ID:        p.ID,
			Name:      p.Name,
			HPPercent: hpPct,
			Role:      p.Role,
			CrimeHeat: e.heat.Heat(p.ID, now),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].ID == targetID) != (out[j].ID == targetID) {
			return out[i].ID == targetID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// offenseHook bridges guard offense checks to the zone script when loaded.
// Nil is returned when no script manager is configured, which lets guards
// fall back to treating any heated candidate as an offender.
func (e *Engine) offenseHook(inst *npc.Instance) func(string) bool {
	if e.scripts == nil {
		return nil
	}
	return func(offenderID string) bool {
		ret, err := e.scripts.CallHook(zoneFromRoom(inst.RoomID), "on_offense",
			lua.LString(inst.ID), lua.LString(offenderID))
		if err != nil || ret == lua.LNil {
			return true
		}
		verdict, ok := ret.(lua.LString)
		if !ok {
			return true
		}
		return verdict != "ignore"
	}
}

// apply executes one decision against the world and returns its events.
func (e *Engine) apply(inst *npc.Instance, d brain.Decision, now time.Time) []Event {
	switch d := d.(type) {
	case brain.AttackEntity:
		return e.applyAttackDecision(inst, d, now)
	case brain.Say:
		e.say(inst.RoomID, fmt.Sprintf("%s says: %s", inst.Name, d.Message))
		return []Event{{Kind: EventSay, NPCID: inst.ID, RoomID: inst.RoomID, Message: d.Message}}
	case brain.Flee:
		e.say(inst.RoomID, fmt.Sprintf("%s flees!", inst.Name))
		return []Event{{Kind: EventFlee, NPCID: inst.ID, RoomID: inst.RoomID, TargetID: d.FromID}}
	case brain.MoveToRoom:
		from := inst.RoomID
		if err := e.npcs.Move(inst.ID, d.RoomID); err != nil {
			e.logger.Warn("npc move failed",
				zap.String("npc", inst.ID),
				zap.String("to", d.RoomID),
				zap.Error(err),
			)
			return nil
		}
		return []Event{{Kind: EventMove, NPCID: inst.ID, RoomID: from, Message: d.RoomID}}
	default:
		// Idle and nil decisions produce nothing.
		return nil
	}
}

// applyAttackDecision rolls the NPC's damage expression and lands the hit.
// The attacker's own effect modifiers scale the roll before it is dealt.
func (e *Engine) applyAttackDecision(inst *npc.Instance, d brain.AttackEntity, now time.Time) []Event {
	expr := inst.Damage
	if expr == "" {
		expr = defaultNPCDamage
	}
	res, err := e.roller.RollExpr(expr)
	if err != nil {
		e.logger.Error("bad npc damage expression",
			zap.String("npc", inst.ID),
			zap.String("expr", expr),
			zap.Error(err),
		)
		return nil
	}

	scaled := float64(res.Total()) * (1 + inst.Effects.Snapshot(now).DamageDealtPct)
	if scaled < 0 || math.IsNaN(scaled) {
		scaled = 0
	}
	total := int(math.Round(scaled))
	if e.DamagePlayer != nil {
		e.DamagePlayer(d.TargetID, total)
	}

	events := []Event{{
		Kind:     EventAttack,
		NPCID:    inst.ID,
		RoomID:   inst.RoomID,
		TargetID: d.TargetID,
		Damage:   total,
	}}

	if line, ok := inst.TrySay(now, e.roller.Source()); ok {
		e.say(inst.RoomID, fmt.Sprintf("%s snarls: %s", inst.Name, line))
		events = append(events, Event{Kind: EventSay, NPCID: inst.ID, RoomID: inst.RoomID, Message: line})
	}
	return events
}
