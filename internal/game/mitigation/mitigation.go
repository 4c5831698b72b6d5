// Package mitigation implements the pure damage-reduction pipeline: the
// armor curve and the parry/block/crit/glance outcome rolls. Everything is
// parameterized by a clamped Config and an injected dice.Source, so a seeded
// source replays identical combat.
package mitigation

import (
	"math"

	"github.com/veilwood/mud/internal/game/dice"
)

// chanceScale is the resolution of a probability roll: Intn(chanceScale)
// compared against p*chanceScale.
const chanceScale = 10_000

// Config holds the mitigation tuning knobs. Raw values from the environment
// must pass through Clamped before use; the clamped form never produces NaN.
type Config struct {
	CritChance       float64 `mapstructure:"crit_chance"`
	CritMultiplier   float64 `mapstructure:"crit_multiplier"`
	GlanceChance     float64 `mapstructure:"glance_chance"`
	GlanceMultiplier float64 `mapstructure:"glance_multiplier"`
	ParryEnabled     bool    `mapstructure:"parry_enabled"`
	ParryChance      float64 `mapstructure:"parry_chance"`
	BlockEnabled     bool    `mapstructure:"block_enabled"`
	BlockChance      float64 `mapstructure:"block_chance"`
	BlockMultiplier  float64 `mapstructure:"block_multiplier"`
	// ArmorK is the armor-curve half-value constant: reduction = armor/(armor+K).
	ArmorK float64 `mapstructure:"armor_k"`
	// CapReduction caps the armor reduction fraction.
	CapReduction float64 `mapstructure:"cap_reduction"`
	// MinDamage floors post-armor damage when > 0.
	MinDamage int `mapstructure:"min_damage"`
}

// DefaultConfig returns the documented default mitigation parameters.
func DefaultConfig() Config {
	return Config{
		CritChance:       0.05,
		CritMultiplier:   2.0,
		GlanceChance:     0.10,
		GlanceMultiplier: 0.5,
		ParryEnabled:     true,
		ParryChance:      0.05,
		BlockEnabled:     true,
		BlockChance:      0.05,
		BlockMultiplier:  0.5,
		ArmorK:           100,
		CapReduction:     0.75,
		MinDamage:        0,
	}
}

// Clamped returns c with every field normalized: probabilities to [0,1],
// CritMultiplier to >= 1, the damage multipliers to [0,1], ArmorK to > 0,
// CapReduction to [0,1). Non-finite input falls back to the default for that
// field, never to NaN.
func (c Config) Clamped() Config {
	def := DefaultConfig()
	out := c
	out.CritChance = clampChance(c.CritChance, def.CritChance)
	out.GlanceChance = clampChance(c.GlanceChance, def.GlanceChance)
	out.ParryChance = clampChance(c.ParryChance, def.ParryChance)
	out.BlockChance = clampChance(c.BlockChance, def.BlockChance)
	out.GlanceMultiplier = clampUnit(c.GlanceMultiplier, def.GlanceMultiplier)
	out.BlockMultiplier = clampUnit(c.BlockMultiplier, def.BlockMultiplier)

	out.CritMultiplier = c.CritMultiplier
	if !isFinite(out.CritMultiplier) {
		out.CritMultiplier = def.CritMultiplier
	} else if out.CritMultiplier < 1 {
		out.CritMultiplier = 1
	}

	out.ArmorK = c.ArmorK
	if !isFinite(out.ArmorK) || out.ArmorK <= 0 {
		out.ArmorK = def.ArmorK
	}

	out.CapReduction = c.CapReduction
	if !isFinite(out.CapReduction) {
		out.CapReduction = def.CapReduction
	} else if out.CapReduction < 0 {
		out.CapReduction = 0
	} else if out.CapReduction >= 1 {
		out.CapReduction = def.CapReduction
	}

	if out.MinDamage < 0 {
		out.MinDamage = 0
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clampChance(v, fallback float64) float64 {
	if !isFinite(v) {
		return fallback
	}
	return math.Min(1, math.Max(0, v))
}

func clampUnit(v, fallback float64) float64 {
	if !isFinite(v) {
		return fallback
	}
	return math.Min(1, math.Max(0, v))
}

// ArmorMultiplier returns the damage multiplier for armor under cfg's curve:
// 1 - armor/(armor+K), with the reduction capped at cfg.CapReduction.
// Non-positive or non-finite armor yields the identity multiplier.
//
// Postcondition: 0 < result <= 1, monotonically non-increasing in armor,
// approaching 1-CapReduction asymptotically.
func ArmorMultiplier(armor float64, cfg Config) float64 {
	if !isFinite(armor) || armor <= 0 {
		return 1
	}
	reduction := armor / (armor + cfg.ArmorK)
	if reduction > cfg.CapReduction {
		reduction = cfg.CapReduction
	}
	return 1 - reduction
}

// ApplyArmor reduces damage by the armor curve and floors the result.
// Non-finite or negative damage is treated as 0. When cfg.MinDamage > 0 a
// positive pre-armor hit never lands below that floor.
func ApplyArmor(damage, armor float64, cfg Config) int {
	if !isFinite(damage) || damage <= 0 {
		return 0
	}
	out := int(math.Floor(damage * ArmorMultiplier(armor, cfg)))
	if cfg.MinDamage > 0 && out < cfg.MinDamage {
		out = cfg.MinDamage
	}
	return out
}

// Result describes the outcome roll for one hit.
type Result struct {
	Parried bool
	Blocked bool
	Crit    bool
	Glance  bool
	// Damage is the final damage after all outcome scaling.
	Damage int
}

// Resolve rolls the hit outcome for damage under cfg. The roll order is
// fixed: parry negates the hit entirely; block scales by BlockMultiplier;
// crit and glance are mutually exclusive scalings of whatever remains.
// Each chance is an independent clamped-probability roll against src.
//
// Precondition: cfg should come from Clamped; src must not be nil.
// Postcondition: Result.Damage >= 0; deterministic for a given src sequence.
func Resolve(damage int, cfg Config, src dice.Source) Result {
	var r Result
	if damage <= 0 {
		return r
	}

	if cfg.ParryEnabled && rollChance(cfg.ParryChance, src) {
		r.Parried = true
		return r
	}

	d := float64(damage)
	if cfg.BlockEnabled && rollChance(cfg.BlockChance, src) {
		r.Blocked = true
		d *= cfg.BlockMultiplier
	}

	if rollChance(cfg.CritChance, src) {
		r.Crit = true
		d *= cfg.CritMultiplier
	} else if rollChance(cfg.GlanceChance, src) {
		r.Glance = true
		d *= cfg.GlanceMultiplier
	}

	r.Damage = int(math.Floor(d))
	return r
}

// rollChance rolls a clamped probability p against src.
func rollChance(p float64, src dice.Source) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return float64(src.Intn(chanceScale)) < p*chanceScale
}
