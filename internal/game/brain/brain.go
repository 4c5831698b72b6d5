// Package brain implements the pure NPC decision functions. A brain consumes
// a per-tick Context built from the threat ledger and world snapshot and
// returns one Decision (or nil for "nothing to do"); it never mutates world
// state itself; the caller applies the decision.
package brain

import "time"

// Decision is the closed variant set of NPC actions.
type Decision interface{ isDecision() }

// Idle is an explicit do-nothing decision.
type Idle struct{}

// AttackEntity attacks the given target with the given style.
type AttackEntity struct {
	TargetID string
	Style    string
}

// MoveToRoom walks the NPC to another room.
type MoveToRoom struct {
	RoomID string
}

// Say emits a line of speech into the NPC's room.
type Say struct {
	Message string
}

// Flee runs away from the given entity.
type Flee struct {
	FromID string
}

func (Idle) isDecision()         {}
func (AttackEntity) isDecision() {}
func (MoveToRoom) isDecision()   {}
func (Say) isDecision()          {}
func (Flee) isDecision()         {}

// Candidate is one potential target visible to the NPC this tick.
type Candidate struct {
	ID   string
	Name string
	// HPPercent is current/max HP in [0, 1].
	HPPercent float64
	// Role is the candidate's combat role: "healer", "dps", "tank", or "".
	Role string
	// CrimeHeat is the candidate's accumulated offense score; 0 means clean.
	CrimeHeat float64
}

// Perception is the NPC's view of itself this tick.
type Perception struct {
	SelfID        string
	HP            int
	MaxHP         int
	RoomID        string
	ProtectedArea bool
}

// Context carries everything a brain may consult for one decision. It is
// rebuilt every decision tick and never persisted.
type Context struct {
	Perception Perception
	// Candidates is ordered by the caller: the threat-selected target first
	// when one exists, the rest by ID.
	Candidates []Candidate
	// CooldownRemaining is how long until the NPC may act again.
	CooldownRemaining time.Duration
	// AttackCooldown is the duration to commit when an attack is chosen.
	AttackCooldown time.Duration
	// StartCooldown commits the chosen cooldown; may be nil in tests.
	StartCooldown func(time.Duration)

	// HasWarned and MarkWarned track one-time guard warnings per offender.
	HasWarned  func(entityID string) bool
	MarkWarned func(entityID string)
	// MarkHelpCalled records that the NPC is recruiting allies against entityID.
	MarkHelpCalled func(entityID string)
	// OffenseHook is an optional scripted override for guard offense checks;
	// nil means every heated candidate counts as an offender.
	OffenseHook func(entityID string) bool
}

// Brain turns a Context into a Decision. Implementations must be pure: the
// only permitted side effects are the Context callbacks.
type Brain interface {
	Decide(ctx *Context) Decision
}
