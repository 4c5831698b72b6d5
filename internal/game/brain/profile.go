package brain

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is a content-authored tuning overlay for one temperament.
type Profile struct {
	Temperament string `yaml:"temperament"`
	// Style overrides the attack style for aggressive brains.
	Style string `yaml:"style"`
	// SevereHeat overrides the guard escalation threshold when > 0.
	SevereHeat float64 `yaml:"severe_heat"`
	// Warning overrides the guard warning line when non-empty.
	Warning string `yaml:"warning"`
}

// Validate checks the profile.
func (p *Profile) Validate() error {
	switch p.Temperament {
	case "aggressive", "coward", "guard", "neutral":
	case "":
		return fmt.Errorf("brain: profile has empty temperament")
	default:
		return fmt.Errorf("brain: profile for unknown temperament %q", p.Temperament)
	}
	if p.SevereHeat < 0 {
		return fmt.Errorf("brain: profile %q: severe_heat must be >= 0", p.Temperament)
	}
	return nil
}

// Build returns the Brain this profile describes.
//
// Precondition: p passed Validate.
func (p *Profile) Build() Brain {
	switch p.Temperament {
	case "aggressive":
		return Aggressive{Style: p.Style}
	case "coward":
		return Coward{}
	case "guard":
		return Guard{SevereHeat: p.SevereHeat, Warning: p.Warning}
	default:
		return Neutral{}
	}
}

// Profiles maps temperament name to its tuned profile.
type Profiles map[string]Profile

// For returns the Brain for temperament, applying a profile overlay when one
// is loaded and falling back to the stock temperaments otherwise.
func (ps Profiles) For(temperament string) (Brain, error) {
	if p, ok := ps[temperament]; ok {
		return p.Build(), nil
	}
	return ForTemperament(temperament)
}

// LoadProfiles reads every *.yaml profile in dir. A missing directory yields
// an empty set; profiles are optional content.
func LoadProfiles(dir string) (Profiles, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Profiles{}, nil
		}
		return nil, fmt.Errorf("brain: reading profile dir %q: %w", dir, err)
	}
	out := make(Profiles)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("brain: reading %q: %w", path, err)
		}
		var p Profile
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("brain: parsing %q: %w", path, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("brain: %q: %w", path, err)
		}
		if _, dup := out[p.Temperament]; dup {
			return nil, fmt.Errorf("brain: duplicate profile for %q", p.Temperament)
		}
		out[p.Temperament] = p
	}
	return out, nil
}
