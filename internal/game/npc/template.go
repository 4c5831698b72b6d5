// Package npc provides NPC template definitions and live instance management.
package npc

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/veilwood/mud/internal/game/dice"
)

// Template defines a reusable NPC archetype loaded from YAML.
type Template struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	MaxHP       int    `yaml:"max_hp"`
	// Armor feeds the diminishing-returns physical mitigation curve.
	Armor int `yaml:"armor"`
	// Role is the combat role advertised to guard target priority
	// ("healer", "dps", "tank"); empty means unknown.
	Role string `yaml:"role"`
	// Temperament selects the decision brain: "aggressive", "coward",
	// "guard", or "neutral". Empty defaults to neutral.
	Temperament string `yaml:"temperament"`
	// CallsForHelp enables pack-assist shouts when this NPC is attacked.
	CallsForHelp bool `yaml:"calls_for_help"`
	// PackID groups instances that answer each other's help calls.
	// Empty means the NPC assists no one and is assisted by no one.
	PackID string `yaml:"pack_id"`
	// AttackCooldownMs is the minimum interval between attack decisions.
	AttackCooldownMs int `yaml:"attack_cooldown_ms"`
	// Damage is the dice expression rolled per landed attack, e.g. "1d6+2".
	Damage string `yaml:"damage"`
	// Taunts are flavor lines shouted mid-combat, gated by chance and cooldown.
	Taunts      []string `yaml:"taunts"`
	TauntChance float64  `yaml:"taunt_chance"`
	// TauntCooldown is a duration string (e.g. "8s"); empty disables the gate.
	TauntCooldown string `yaml:"taunt_cooldown"`
	// RespawnDelay is the duration string before a dead NPC of this
	// template respawns. Empty means the NPC does not respawn.
	RespawnDelay string `yaml:"respawn_delay"`
}

// Validate checks that the template satisfies basic invariants.
//
// Precondition: t must not be nil.
// Postcondition: Returns nil iff ID and Name are non-empty, MaxHP >= 1,
// Armor >= 0, Temperament is a known brain name, TauntChance is in [0, 1],
// and the duration strings, if set, parse; returns an error on the first
// violation otherwise.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("npc template: id must not be empty")
	}
	if t.Name == "" {
		return fmt.Errorf("npc template %q: name must not be empty", t.ID)
	}
	if t.MaxHP < 1 {
		return fmt.Errorf("npc template %q: max_hp must be >= 1", t.ID)
	}
	if t.Armor < 0 {
		return fmt.Errorf("npc template %q: armor must be >= 0", t.ID)
	}
	switch t.Temperament {
	case "", "neutral", "aggressive", "coward", "guard":
	default:
		return fmt.Errorf("npc template %q: unknown temperament %q", t.ID, t.Temperament)
	}
	if t.AttackCooldownMs < 0 {
		return fmt.Errorf("npc template %q: attack_cooldown_ms must be >= 0", t.ID)
	}
	if t.Damage != "" {
		if _, err := dice.Parse(t.Damage); err != nil {
			return fmt.Errorf("npc template %q: damage %q is not a valid dice expression: %w", t.ID, t.Damage, err)
		}
	}
	if t.TauntChance < 0 || t.TauntChance > 1 {
		return fmt.Errorf("npc template %q: taunt_chance must be in [0, 1]", t.ID)
	}
	if t.TauntCooldown != "" {
		if _, err := time.ParseDuration(t.TauntCooldown); err != nil {
			return fmt.Errorf("npc template %q: taunt_cooldown %q is not a valid duration: %w", t.ID, t.TauntCooldown, err)
		}
	}
	if t.RespawnDelay != "" {
		if _, err := time.ParseDuration(t.RespawnDelay); err != nil {
			return fmt.Errorf("npc template %q: respawn_delay %q is not a valid duration: %w", t.ID, t.RespawnDelay, err)
		}
	}
	return nil
}

// LoadTemplateFromBytes parses a single NPC template from raw YAML bytes.
// Unknown fields are rejected so typos in content files fail loudly.
//
// Precondition: data must be valid YAML for a single Template.
// Postcondition: Returns a validated *Template, or an error. The duration
// strings, if non-empty, are guaranteed to parse.
func LoadTemplateFromBytes(data []byte) (*Template, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var tmpl Template
	if err := dec.Decode(&tmpl); err != nil {
		return nil, fmt.Errorf("parsing template YAML: %w", err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// LoadTemplates reads all *.yaml files in dir and returns the parsed templates.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns all templates or an error on the first parse or
// validate failure; on error, the partial result is discarded.
func LoadTemplates(dir string) ([]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading npc dir %q: %w", dir, err)
	}

	var templates []*Template
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}

		tmpl, err := LoadTemplateFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		templates = append(templates, tmpl)
	}
	return templates, nil
}
