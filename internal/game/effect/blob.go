package effect

import (
	"fmt"
	"sort"
	"time"
)

// Saved is the persistence shape of one active effect. The definition is
// stored by ID and rehydrated from the Registry at load time; rolled DOT
// damage and the tick schedule survive the round trip.
type Saved struct {
	DefID      string    `json:"def_id"`
	AppliedAt  time.Time `json:"applied_at"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	Stacks     int       `json:"stacks"`
	PerTick    int       `json:"per_tick,omitempty"`
	NextTickAt time.Time `json:"next_tick_at,omitempty"`
}

// Export returns the set's instances in persistence shape, sorted by
// definition ID.
func (s *Set) Export() []Saved {
	out := make([]Saved, 0, len(s.effects))
	for _, inst := range s.effects {
		out = append(out, Saved{
			DefID:      inst.Def.ID,
			AppliedAt:  inst.AppliedAt,
			ExpiresAt:  inst.ExpiresAt,
			Stacks:     inst.Stacks,
			PerTick:    inst.PerTick,
			NextTickAt: inst.NextTickAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DefID < out[j].DefID })
	return out
}

// Restore replaces the set's contents from saved, resolving definitions
// through reg. Instances whose definition no longer exists are dropped:
// content may have changed between save and load, and a missing buff must
// not block an NPC from loading.
//
// Precondition: reg must not be nil.
func (s *Set) Restore(reg *Registry, saved []Saved) error {
	if reg == nil {
		return fmt.Errorf("effect: Restore: reg must not be nil")
	}
	s.Clear()
	for _, sv := range saved {
		def, ok := reg.Get(sv.DefID)
		if !ok {
			continue
		}
		stacks := sv.Stacks
		if stacks < 1 {
			stacks = 1
		}
		if def.MaxStacks > 0 && stacks > def.MaxStacks {
			stacks = def.MaxStacks
		}
		s.effects[def.ID] = &Instance{
			Def:        def,
			AppliedAt:  sv.AppliedAt,
			ExpiresAt:  sv.ExpiresAt,
			Stacks:     stacks,
			PerTick:    sv.PerTick,
			NextTickAt: sv.NextTickAt,
		}
	}
	return nil
}
