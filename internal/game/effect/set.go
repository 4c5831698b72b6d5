package effect

import (
	"fmt"
	"sort"
	"time"

	"github.com/veilwood/mud/internal/game/dice"
)

// Target is the owning entity as seen by the engine. Implementations report
// liveness and absorb periodic damage; everything else about the entity is
// opaque here.
type Target interface {
	// Alive reports whether the entity can still hold effects.
	Alive() bool
	// ApplyDamage deals amount damage to the entity, flooring HP at zero.
	ApplyDamage(amount int)
}

// Instance is one active effect on an entity.
type Instance struct {
	Def       *Definition
	AppliedAt time.Time
	// ExpiresAt is zero for effects that persist until cleared.
	ExpiresAt time.Time
	Stacks    int
	// PerTick is the DOT damage per tick per stack, rolled once at apply time.
	PerTick    int
	NextTickAt time.Time
}

// Expired reports whether the instance's duration has passed.
func (i *Instance) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !i.ExpiresAt.After(now)
}

// Set tracks all effects currently applied to one combat entity.
// It is not safe for concurrent use; the owning shard serialises access.
//
// Invariant: a dead entity holds zero effects. Death is a hard clear, and a
// DOT never schedules a tick against a dead target.
type Set struct {
	effects map[string]*Instance
	src     dice.Source
}

// NewSet creates an empty Set rolling DOT damage with src.
//
// Precondition: src must not be nil.
func NewSet(src dice.Source) *Set {
	return &Set{effects: make(map[string]*Instance), src: src}
}

// Apply inserts or re-applies def at now, honoring the definition's stack
// policy (default: refresh duration, add one stack up to the cap).
//
// Precondition: def must not be nil and must have passed Validate.
// Postcondition: Has(def.ID) is true.
func (s *Set) Apply(def *Definition, now time.Time) error {
	if def == nil {
		return fmt.Errorf("effect: Apply: def must not be nil")
	}

	if existing, ok := s.effects[def.ID]; ok && !existing.Expired(now) {
		policy := def.StackPolicy
		if policy == "" {
			policy = PolicyStack
		}
		switch policy {
		case PolicyIgnore:
			return nil
		case PolicyRefresh:
			existing.ExpiresAt = expiry(def, now)
		default: // PolicyStack
			if def.MaxStacks > 0 && existing.Stacks < def.MaxStacks {
				existing.Stacks++
			}
			existing.ExpiresAt = expiry(def, now)
		}
		return nil
	}

	inst := &Instance{
		Def:       def,
		AppliedAt: now,
		ExpiresAt: expiry(def, now),
		Stacks:    1,
	}
	if def.DOT != nil {
		inst.PerTick = dice.Roll(def.DOT.Expression(), s.src).Total()
		inst.NextTickAt = now.Add(time.Duration(def.DOT.TickIntervalMs) * time.Millisecond)
	}
	s.effects[def.ID] = inst
	return nil
}

func expiry(def *Definition, now time.Time) time.Time {
	if def.DurationMs <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(def.DurationMs) * time.Millisecond)
}

// Snapshot aggregates all active, non-expired effects into a single modifier
// bundle, each definition's modifiers scaled by its stack count. It never
// mutates the set; expired instances are skipped here and dropped on the next
// Tick pass.
func (s *Set) Snapshot(now time.Time) Modifiers {
	var out Modifiers
	for _, inst := range s.effects {
		if inst.Expired(now) {
			continue
		}
		out.accumulate(inst.Def.Modifiers, inst.Stacks)
	}
	return out
}

// Tick advances all due DOT ticks up to now, applying damage through target
// and rescheduling each DOT by its interval. The instant target reports
// death, ticking stops (only the damage needed to reach zero HP is applied)
// and the set is cleared. A Tick against an already-dead target is a no-op
// that also clears the set. Expired effects are dropped before ticking.
//
// Instances tick in definition-ID order so a multi-DOT death is deterministic.
//
// Precondition: target must not be nil.
// Postcondition: returns total damage applied; the set is empty if target died.
func (s *Set) Tick(now time.Time, target Target) int {
	if !target.Alive() {
		s.Clear()
		return 0
	}

	ids := make([]string, 0, len(s.effects))
	for id, inst := range s.effects {
		if inst.Expired(now) {
			delete(s.effects, id)
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	total := 0
	for _, id := range ids {
		inst := s.effects[id]
		if inst.Def.DOT == nil {
			continue
		}
		interval := time.Duration(inst.Def.DOT.TickIntervalMs) * time.Millisecond
		for !inst.NextTickAt.After(now) {
			dmg := inst.PerTick * inst.Stacks
			target.ApplyDamage(dmg)
			total += dmg
			inst.NextTickAt = inst.NextTickAt.Add(interval)
			if !target.Alive() {
				s.Clear()
				return total
			}
		}
	}
	return total
}

// Clear removes every effect. Called on death and despawn.
//
// Postcondition: Len() == 0.
func (s *Set) Clear() {
	s.effects = make(map[string]*Instance)
}

// Remove deletes the effect with the given ID; a no-op if absent.
func (s *Set) Remove(id string) {
	delete(s.effects, id)
}

// Has reports whether the effect with id is present and not expired at now.
func (s *Set) Has(id string, now time.Time) bool {
	inst, ok := s.effects[id]
	return ok && !inst.Expired(now)
}

// Stacks returns the stack count for id, or 0 if absent or expired.
func (s *Set) Stacks(id string, now time.Time) int {
	if inst, ok := s.effects[id]; ok && !inst.Expired(now) {
		return inst.Stacks
	}
	return 0
}

// Len returns the number of stored instances, including lazily-expired ones.
func (s *Set) Len() int { return len(s.effects) }

// Active returns the non-expired instances sorted by definition ID.
// The slice is a new allocation; the pointed-to instances are shared.
func (s *Set) Active(now time.Time) []*Instance {
	out := make([]*Instance, 0, len(s.effects))
	for _, inst := range s.effects {
		if !inst.Expired(now) {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Def.ID < out[j].Def.ID })
	return out
}
