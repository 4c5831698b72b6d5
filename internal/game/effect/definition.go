// Package effect implements the status-effect engine: timed buff/debuff
// instances attached to a combat entity, modifier aggregation, and
// damage-over-time ticking with a hard clear on death.
package effect

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/veilwood/mud/internal/game/dice"
)

// StackPolicy controls what a re-apply does to an already-active effect.
type StackPolicy string

const (
	// PolicyStack refreshes the duration and adds one stack up to MaxStacks.
	// This is the default when a definition leaves the field empty.
	PolicyStack StackPolicy = "stack"
	// PolicyRefresh resets the duration without adding stacks.
	PolicyRefresh StackPolicy = "refresh"
	// PolicyIgnore leaves the active instance untouched.
	PolicyIgnore StackPolicy = "ignore"
)

// Modifiers is the adjustment bundle an effect contributes to combat math.
// Percentage fields are additive deltas (0.10 = +10%).
type Modifiers struct {
	DamageTakenPct float64 `yaml:"damage_taken_pct"`
	DamageDealtPct float64 `yaml:"damage_dealt_pct"`
	HealingPct     float64 `yaml:"healing_pct"`
	MitigationPct  float64 `yaml:"mitigation_pct"`
	MoveSpeedPct   float64 `yaml:"move_speed_pct"`
	// AttributesFlat holds flat attribute adjustments keyed by attribute name.
	AttributesFlat map[string]int `yaml:"attributes_flat"`
}

// accumulate adds other scaled by stacks into m.
func (m *Modifiers) accumulate(other Modifiers, stacks int) {
	f := float64(stacks)
	m.DamageTakenPct += other.DamageTakenPct * f
	m.DamageDealtPct += other.DamageDealtPct * f
	m.HealingPct += other.HealingPct * f
	m.MitigationPct += other.MitigationPct * f
	m.MoveSpeedPct += other.MoveSpeedPct * f
	for attr, v := range other.AttributesFlat {
		if m.AttributesFlat == nil {
			m.AttributesFlat = make(map[string]int)
		}
		m.AttributesFlat[attr] += v * stacks
	}
}

// DOTDef describes the periodic-damage component of an effect.
type DOTDef struct {
	// TickIntervalMs is the period between damage applications.
	TickIntervalMs int `yaml:"tick_interval_ms"`
	// Damage is a dice expression ("2d4+1") rolled once at apply time.
	Damage string `yaml:"damage"`
	// School is the damage school label ("fire", "poison", ...).
	School string `yaml:"school"`

	expr dice.Expression
}

// Expression returns the parsed damage expression.
//
// Precondition: the owning Definition passed Validate.
func (d *DOTDef) Expression() dice.Expression { return d.expr }

// Definition is the static description of an effect, loaded from YAML.
type Definition struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Tags        []string    `yaml:"tags"`
	// DurationMs is the active duration; 0 means permanent until cleared.
	DurationMs int `yaml:"duration_ms"`
	// MaxStacks caps the stack count; 0 means unstackable (always 1 stack).
	MaxStacks   int         `yaml:"max_stacks"`
	StackPolicy StackPolicy `yaml:"stack_policy"`
	Modifiers   Modifiers   `yaml:"modifiers"`
	DOT         *DOTDef     `yaml:"dot"`
}

// HasTag reports whether tag is present on the definition.
func (d *Definition) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Validate checks all required fields and compiles the DOT damage expression.
//
// Postcondition: nil return guarantees a non-empty ID, a recognized stack
// policy (defaulting empty to PolicyStack), non-negative duration and stack
// cap, and, when a DOT is present, a positive tick interval and a parseable
// damage expression.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("effect: definition has empty ID")
	}
	switch d.StackPolicy {
	case "", PolicyStack, PolicyRefresh, PolicyIgnore:
	default:
		return fmt.Errorf("effect %q: unknown stack policy %q", d.ID, d.StackPolicy)
	}
	if d.StackPolicy == "" {
		d.StackPolicy = PolicyStack
	}
	if d.DurationMs < 0 {
		return fmt.Errorf("effect %q: duration_ms must be >= 0", d.ID)
	}
	if d.MaxStacks < 0 {
		return fmt.Errorf("effect %q: max_stacks must be >= 0", d.ID)
	}
	if d.DOT != nil {
		if d.DOT.TickIntervalMs <= 0 {
			return fmt.Errorf("effect %q: dot.tick_interval_ms must be > 0", d.ID)
		}
		expr, err := dice.Parse(d.DOT.Damage)
		if err != nil {
			return fmt.Errorf("effect %q: dot.damage: %w", d.ID, err)
		}
		d.DOT.expr = expr
	}
	return nil
}

// Registry holds all known effect Definitions keyed by ID.
type Registry struct {
	defs map[string]*Definition
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register validates def and adds it, overwriting any existing entry.
//
// Precondition: def must not be nil.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return fmt.Errorf("effect: Register: def must not be nil")
	}
	if err := def.Validate(); err != nil {
		return err
	}
	r.defs[def.ID] = def
	return nil
}

// Get returns the Definition for id, or (nil, false) if not found.
func (r *Registry) Get(id string) (*Definition, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// All returns a snapshot slice of all registered Definitions.
func (r *Registry) All() []*Definition {
	out := make([]*Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	return out
}

// LoadDirectory reads every *.yaml file in dir, parses each as a Definition,
// and returns a populated Registry. Unknown YAML fields are rejected.
//
// Precondition: dir must be a readable directory.
func LoadDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("effect: reading definition dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("effect: reading %q: %w", path, err)
		}
		var def Definition
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("effect: parsing %q: %w", path, err)
		}
		if err := reg.Register(&def); err != nil {
			return nil, fmt.Errorf("effect: %q: %w", path, err)
		}
	}
	return reg, nil
}
