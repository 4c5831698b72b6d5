package npc

import (
	"time"

	"github.com/google/uuid"

	"github.com/veilwood/mud/internal/game/dice"
	"github.com/veilwood/mud/internal/game/effect"
	"github.com/veilwood/mud/internal/game/threat"
)

// sayChanceScale converts taunt probabilities to integer rolls.
const sayChanceScale = 10_000

// Instance is a live NPC entity occupying a room.
type Instance struct {
	// ID uniquely identifies this runtime instance.
	ID string
	// TemplateID is the source template's ID.
	TemplateID string
	// SlotKey is the stable spawn-slot identity ("<template>#<room>#<index>")
	// assigned by the RespawnManager. It survives death and respawn, so
	// persisted combat state can be keyed by it. Empty for ad hoc spawns.
	SlotKey string
	// Name is copied from the template for display.
	Name string
	// Description is copied from the template.
	Description string
	// RoomID is the room this instance currently occupies.
	RoomID string
	// CurrentHP is the instance's current hit points.
	CurrentHP int
	// MaxHP is the instance's maximum hit points.
	MaxHP int
	// Armor feeds physical mitigation.
	Armor int
	// Role is copied from the template ("healer", "dps", "tank", or empty).
	Role string
	// Temperament names the decision brain copied at spawn time.
	Temperament string
	// CallsForHelp enables pack-assist shouts when this NPC takes damage.
	CallsForHelp bool
	// PackID groups instances for help-call propagation; empty = no pack.
	PackID string
	// AttackCooldown is the minimum interval between attack decisions.
	AttackCooldown time.Duration
	// Damage is the dice expression rolled per landed attack; empty = "1d4".
	Damage string
	// Threat is this instance's per-attacker threat ledger.
	Threat threat.State
	// Effects is this instance's active status-effect set.
	Effects *effect.Set
	// Taunts are flavor lines, gated by chance and cooldown.
	Taunts        []string
	TauntChance   float64
	TauntCooldown time.Duration
	LastTauntTime time.Time
}

// NewInstance creates a live NPC instance from a template, placed in roomID.
// The instance ID is a fresh UUID; src seeds the instance's damage-over-time
// rolls.
//
// Precondition: tmpl must be non-nil and validated; src must not be nil.
// Postcondition: CurrentHP equals tmpl.MaxHP; Threat is empty; Effects is empty.
func NewInstance(tmpl *Template, roomID string, src dice.Source) *Instance {
	var tauntCD time.Duration
	if tmpl.TauntCooldown != "" {
		tauntCD, _ = time.ParseDuration(tmpl.TauntCooldown)
	}
	return &Instance{
		ID:             uuid.NewString(),
		TemplateID:     tmpl.ID,
		Name:           tmpl.Name,
		Description:    tmpl.Description,
		RoomID:         roomID,
		CurrentHP:      tmpl.MaxHP,
		MaxHP:          tmpl.MaxHP,
		Armor:          tmpl.Armor,
		Role:           tmpl.Role,
		Temperament:    tmpl.Temperament,
		CallsForHelp:   tmpl.CallsForHelp,
		PackID:         tmpl.PackID,
		AttackCooldown: time.Duration(tmpl.AttackCooldownMs) * time.Millisecond,
		Damage:         tmpl.Damage,
		Threat:         threat.NewState(),
		Effects:        effect.NewSet(src),
		Taunts:         tmpl.Taunts,
		TauntChance:    tmpl.TauntChance,
		TauntCooldown:  tauntCD,
	}
}

// TrySay attempts to produce a taunt line, respecting chance and cooldown.
//
// Precondition: now must not be zero; src must not be nil.
// Postcondition: Returns (line, true) if a taunt fires, updating LastTauntTime;
// returns ("", false) otherwise.
func (i *Instance) TrySay(now time.Time, src dice.Source) (string, bool) {
	if len(i.Taunts) == 0 || i.TauntChance <= 0 {
		return "", false
	}
	if !i.LastTauntTime.IsZero() && now.Sub(i.LastTauntTime) < i.TauntCooldown {
		return "", false
	}
	if src.Intn(sayChanceScale) >= int(i.TauntChance*sayChanceScale) {
		return "", false
	}
	line := i.Taunts[src.Intn(len(i.Taunts))]
	i.LastTauntTime = now
	return line, true
}

// Alive reports whether the instance has hit points remaining.
func (i *Instance) Alive() bool {
	return i.CurrentHP > 0
}

// ApplyDamage reduces current HP by amount, clamped at zero.
//
// Precondition: amount must be >= 0.
func (i *Instance) ApplyDamage(amount int) {
	i.CurrentHP -= amount
	if i.CurrentHP < 0 {
		i.CurrentHP = 0
	}
}

// HPPercent returns current HP as a fraction of max in [0, 1].
func (i *Instance) HPPercent() float64 {
	if i.MaxHP <= 0 {
		return 0
	}
	return float64(i.CurrentHP) / float64(i.MaxHP)
}

// HealthDescription returns a visible health state string suitable for
// examine output.
//
// Postcondition: Returns a non-empty string.
func (i *Instance) HealthDescription() string {
	if i.CurrentHP <= 0 {
		return "dead"
	}
	pct := i.HPPercent()
	switch {
	case pct >= 1.0:
		return "unharmed"
	case pct >= 0.85:
		return "barely scratched"
	case pct >= 0.60:
		return "lightly wounded"
	case pct >= 0.40:
		return "moderately wounded"
	case pct >= 0.20:
		return "heavily wounded"
	default:
		return "critically wounded"
	}
}
