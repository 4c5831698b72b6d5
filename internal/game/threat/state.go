// Package threat implements the per-NPC threat ledger: accumulation, decay,
// taunt override, target stickiness, and the assist-target seed used by pack
// behavior. All operations take and return State values and never read the
// clock themselves, so a shard can replay combat deterministically.
package threat

import (
	"math"
	"time"
)

// Tuning holds the tunable threat parameters, supplied by configuration.
// The zero value is not usable; start from DefaultTuning.
type Tuning struct {
	// DecayPerSec is the threat subtracted per whole elapsed second.
	DecayPerSec float64
	// PruneBelow is the floor at or below which an entry is removed.
	PruneBelow float64
	// StickyWindow is how long a selected target resists being switched away from.
	StickyWindow time.Duration
	// StickyMargin is the threat lead a challenger needs to steal the
	// selection inside the sticky window.
	StickyMargin float64
	// TauntDuration is the default forced-target window.
	TauntDuration time.Duration
	// ForgetOnStealth prunes a target's threat bucket immediately when it
	// becomes undetectable, instead of letting it decay normally.
	ForgetOnStealth bool
}

// DefaultTuning returns the documented default threat parameters.
func DefaultTuning() Tuning {
	return Tuning{
		DecayPerSec:     1,
		PruneBelow:      0,
		StickyWindow:    3 * time.Second,
		StickyMargin:    5,
		TauntDuration:   4 * time.Second,
		ForgetOnStealth: true,
	}
}

// Verdict is the result of a target-validity check. Room membership,
// visibility, and stealth rules live outside this package; callers supply
// them through a ValidFunc.
type Verdict int

const (
	// Valid means the entity can be targeted.
	Valid Verdict = iota
	// Invalid means the entity cannot be targeted (dead, left the room, safe hub).
	Invalid
	// Undetectable means the entity cannot currently be perceived (stealth).
	// Under Tuning.ForgetOnStealth its threat bucket is pruned on sight loss.
	Undetectable
)

// ValidFunc reports whether entityID is a legal combat target right now.
type ValidFunc func(entityID string) Verdict

// State is one NPC's threat ledger.
//
// Invariant: all Entries values are > PruneBelow; a decayed or pruned key is
// removed, never left as a zero or negative ghost entry.
type State struct {
	// Entries maps attacker entity ID to accumulated threat.
	Entries map[string]float64
	// LastAttacker is the most recent damaging entity, kept as a selection fallback.
	LastAttacker string
	// LastAggroAt is the time of the most recent provocation.
	LastAggroAt time.Time
	// ForcedTarget and ForcedUntil describe an active taunt override.
	ForcedTarget string
	ForcedUntil  time.Time
	// LastTauntAt is when the current or most recent taunt landed.
	LastTauntAt time.Time
	// LastSelected and LastSelectedAt are the stickiness bookkeeping.
	LastSelected   string
	LastSelectedAt time.Time
	// LastDecayAt is the decay checkpoint, advanced in whole seconds only.
	LastDecayAt time.Time
}

// NewState returns an empty ledger.
func NewState() State {
	return State{Entries: make(map[string]float64)}
}

// clone returns a copy of s with its own Entries map.
func (s State) clone() State {
	out := s
	out.Entries = make(map[string]float64, len(s.Entries))
	for id, v := range s.Entries {
		out.Entries[id] = v
	}
	return out
}

// Top returns the entity with the highest threat and its value.
// Ties break toward the lexicographically smallest entity ID so selection is
// deterministic regardless of map iteration order. Returns ("", 0) when the
// ledger is empty.
func (s State) Top() (string, float64) {
	bestID, bestV := "", 0.0
	for id, v := range s.Entries {
		if bestID == "" || v > bestV || (v == bestV && id < bestID) {
			bestID, bestV = id, v
		}
	}
	return bestID, bestV
}

// sanitize normalizes NaN, infinite, and negative amounts to 0.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
