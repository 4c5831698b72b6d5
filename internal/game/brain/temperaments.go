package brain

import (
	"fmt"
	"sort"
)

// DefaultSevereHeat is the crime-heat score at or above which a guard skips
// the warning and attacks immediately.
const DefaultSevereHeat = 50.0

// defaultWarning is spoken on a first offense in a protected area.
const defaultWarning = "Halt! Keep your hands where I can see them, or face the consequences."

// Aggressive attacks the first candidate whenever its cooldown is open.
type Aggressive struct {
	// Style is the attack style; empty means "melee".
	Style string
}

// Decide implements Brain.
func (b Aggressive) Decide(ctx *Context) Decision {
	if ctx.CooldownRemaining > 0 || len(ctx.Candidates) == 0 {
		return nil
	}
	style := b.Style
	if style == "" {
		style = "melee"
	}
	if ctx.StartCooldown != nil {
		ctx.StartCooldown(ctx.AttackCooldown)
	}
	return AttackEntity{TargetID: ctx.Candidates[0].ID, Style: style}
}

// Coward flees from the first candidate (its threat-selected pursuer) once
// hurt; at full health it behaves aggressively.
type Coward struct{}

// Decide implements Brain.
func (Coward) Decide(ctx *Context) Decision {
	if ctx.Perception.HP < ctx.Perception.MaxHP {
		flee := Flee{}
		if len(ctx.Candidates) > 0 {
			flee.FromID = ctx.Candidates[0].ID
		}
		return flee
	}
	return Aggressive{}.Decide(ctx)
}

// Neutral never decides anything.
type Neutral struct{}

// Decide implements Brain.
func (Neutral) Decide(*Context) Decision { return nil }

// Guard polices crime heat. Offenders are prioritized by role
// (healer > dps > tank > unknown), ties broken by lowest HP percentage. A
// first offense in a protected area earns a one-time spoken warning; repeat
// or severe offenses escalate to an attack on that offender, marking that
// help has been called.
type Guard struct {
	// SevereHeat overrides DefaultSevereHeat when > 0.
	SevereHeat float64
	// Warning overrides the default warning line when non-empty.
	Warning string
}

// Decide implements Brain.
func (g Guard) Decide(ctx *Context) Decision {
	offenders := make([]Candidate, 0, len(ctx.Candidates))
	for _, c := range ctx.Candidates {
		if c.CrimeHeat <= 0 {
			continue
		}
		if ctx.OffenseHook != nil && !ctx.OffenseHook(c.ID) {
			continue
		}
		offenders = append(offenders, c)
	}
	if len(offenders) == 0 {
		return nil
	}

	sort.SliceStable(offenders, func(i, j int) bool {
		pi, pj := rolePriority(offenders[i].Role), rolePriority(offenders[j].Role)
		if pi != pj {
			return pi < pj
		}
		if offenders[i].HPPercent != offenders[j].HPPercent {
			return offenders[i].HPPercent < offenders[j].HPPercent
		}
		return offenders[i].ID < offenders[j].ID
	})
	target := offenders[0]

	severe := g.SevereHeat
	if severe <= 0 {
		severe = DefaultSevereHeat
	}

	warned := ctx.HasWarned != nil && ctx.HasWarned(target.ID)
	if ctx.Perception.ProtectedArea && !warned && target.CrimeHeat < severe {
		if ctx.MarkWarned != nil {
			ctx.MarkWarned(target.ID)
		}
		warning := g.Warning
		if warning == "" {
			warning = defaultWarning
		}
		return Say{Message: warning}
	}

	if ctx.MarkHelpCalled != nil {
		ctx.MarkHelpCalled(target.ID)
	}
	if ctx.CooldownRemaining > 0 {
		return nil
	}
	if ctx.StartCooldown != nil {
		ctx.StartCooldown(ctx.AttackCooldown)
	}
	return AttackEntity{TargetID: target.ID, Style: "melee"}
}

// rolePriority orders guard targets: healers first, then dps, then tanks,
// then unknown roles.
func rolePriority(role string) int {
	switch role {
	case "healer":
		return 0
	case "dps":
		return 1
	case "tank":
		return 2
	default:
		return 3
	}
}

// ForTemperament returns the Brain for a template temperament string.
//
// Postcondition: returns an error for unknown temperaments rather than
// defaulting, so content typos surface at load time.
func ForTemperament(temperament string) (Brain, error) {
	switch temperament {
	case "aggressive":
		return Aggressive{}, nil
	case "coward":
		return Coward{}, nil
	case "guard":
		return Guard{}, nil
	case "neutral", "":
		return Neutral{}, nil
	default:
		return nil, fmt.Errorf("brain: unknown temperament %q", temperament)
	}
}
