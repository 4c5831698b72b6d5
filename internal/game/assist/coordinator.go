// Package assist implements pack-assist propagation: when an NPC calls for
// help, a fraction of its threat against the offender is seeded onto nearby
// allies, rate-limited and capped so one shout cannot recruit a whole zone.
package assist

import (
	"math"
	"sort"
	"time"

	"github.com/veilwood/mud/internal/game/cooldown"
	"github.com/veilwood/mud/internal/game/threat"
)

// Settings holds the pack-assist tuning knobs, supplied by configuration.
type Settings struct {
	// SharePct is the fraction of the caller's threat shared to each ally.
	SharePct float64 `mapstructure:"share_pct"`
	// MinShare and MaxShare clamp the shared amount.
	MinShare float64 `mapstructure:"min_share"`
	MaxShare float64 `mapstructure:"max_share"`
	// Cooldown rate-limits calls per (caller, offender) pair.
	Cooldown time.Duration `mapstructure:"cooldown"`
	// MaxAllies caps recruits per call; 0 means unlimited.
	MaxAllies int `mapstructure:"max_allies"`
	// OpenArea permits cross-room propagation, clamped by MaxRoomDistance.
	OpenArea        bool `mapstructure:"open_area"`
	MaxRoomDistance int  `mapstructure:"max_room_distance"`
}

// DefaultSettings returns the documented default assist parameters.
func DefaultSettings() Settings {
	return Settings{
		SharePct:        0.5,
		MinShare:        1,
		MaxShare:        200,
		Cooldown:        10 * time.Second,
		MaxAllies:       4,
		OpenArea:        false,
		MaxRoomDistance: 2,
	}
}

// Clamped returns s with every field normalized: SharePct to [0,1] with
// non-finite falling back to the default, the share bounds ordered and
// non-negative, counts and distances non-negative.
func (s Settings) Clamped() Settings {
	def := DefaultSettings()
	out := s
	if math.IsNaN(out.SharePct) || math.IsInf(out.SharePct, 0) {
		out.SharePct = def.SharePct
	} else if out.SharePct < 0 {
		out.SharePct = 0
	} else if out.SharePct > 1 {
		out.SharePct = 1
	}
	if out.MinShare < 0 || math.IsNaN(out.MinShare) {
		out.MinShare = 0
	}
	if out.MaxShare < out.MinShare || math.IsNaN(out.MaxShare) {
		out.MaxShare = math.Max(out.MinShare, def.MaxShare)
	}
	if out.Cooldown < 0 {
		out.Cooldown = 0
	}
	if out.MaxAllies < 0 {
		out.MaxAllies = 0
	}
	if out.MaxRoomDistance < 0 {
		out.MaxRoomDistance = 0
	}
	return out
}

// Ally is one potential recruit for a help call.
type Ally struct {
	ID    string
	State threat.State
	// RoomDistance is the room-grid distance from the caller; 0 = same room.
	RoomDistance int
	// Engaged marks allies already in combat; they win cap slots over idle ones.
	Engaged bool
}

// Coordinator propagates help calls. It owns no ally state; callers pass
// ally snapshots in and commit the returned states back.
type Coordinator struct {
	gates    *cooldown.Registry
	tuning   threat.Tuning
	settings Settings
}

// NewCoordinator creates a Coordinator.
//
// Precondition: gates must not be nil; settings are clamped on ingestion.
func NewCoordinator(gates *cooldown.Registry, tuning threat.Tuning, settings Settings) *Coordinator {
	if gates == nil {
		panic("assist.NewCoordinator: gates must not be nil")
	}
	return &Coordinator{gates: gates, tuning: tuning, settings: settings.Clamped()}
}

// Share returns the threat seeded per ally for a caller holding callerThreat
// against the offender: ceil(callerThreat * SharePct) clamped to
// [MinShare, MaxShare].
func (c *Coordinator) Share(callerThreat float64) float64 {
	share := math.Ceil(callerThreat * c.settings.SharePct)
	if share < c.settings.MinShare {
		share = c.settings.MinShare
	}
	if share > c.settings.MaxShare {
		share = c.settings.MaxShare
	}
	return share
}

// Propagate handles one help call from callerID against offenderID and
// returns the recruited allies with their updated threat states. It returns
// nil when the offender is invalid per isValid (assist inherits the same
// visibility rule as target selection), when the caller holds no threat
// against the offender, or when the (caller, offender) pair is rate-limited.
//
// Cross-room allies are recruited only in open-area mode and only within
// MaxRoomDistance. When MaxAllies binds, already-engaged allies win slots
// over idle ones.
//
// Postcondition: input states are not mutated; each recruit's LastAttacker
// points at the offender.
func (c *Coordinator) Propagate(callerID string, caller threat.State, offenderID string, allies []Ally, now time.Time, isValid threat.ValidFunc) []Ally {
	if isValid != nil && isValid(offenderID) != threat.Valid {
		return nil
	}

	callerThreat := caller.Entries[offenderID]
	if callerThreat <= 0 {
		return nil
	}

	if _, ok := c.gates.CheckAndStart(callerID, "assist", offenderID, c.settings.Cooldown, now); !ok {
		return nil
	}

	eligible := make([]Ally, 0, len(allies))
	for _, a := range allies {
		if a.ID == callerID {
			continue
		}
		if a.RoomDistance > 0 && (!c.settings.OpenArea || a.RoomDistance > c.settings.MaxRoomDistance) {
			continue
		}
		eligible = append(eligible, a)
	}
	if len(eligible) == 0 {
		return nil
	}

	if c.settings.MaxAllies > 0 && len(eligible) > c.settings.MaxAllies {
		sort.SliceStable(eligible, func(i, j int) bool {
			return eligible[i].Engaged && !eligible[j].Engaged
		})
		eligible = eligible[:c.settings.MaxAllies]
	}

	share := c.Share(callerThreat)
	recruited := make([]Ally, len(eligible))
	for i, a := range eligible {
		a.State = threat.Add(a.State, offenderID, share, now, c.tuning, threat.AddOpts{RecordAttacker: true})
		recruited[i] = a
	}
	return recruited
}
