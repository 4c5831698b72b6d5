package content

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/veilwood/mud/internal/game/brain"
	"github.com/veilwood/mud/internal/game/effect"
	"github.com/veilwood/mud/internal/game/npc"
)

// Store holds the loaded content tree and supports atomic reload. Readers
// always see a complete, validated set; a failed reload leaves the previous
// content in place.
type Store struct {
	dir string

	mu        sync.RWMutex
	effects   *effect.Registry
	templates map[string]*npc.Template
	brains    brain.Profiles
}

// LoadStore loads the content tree rooted at dir. The tree is expected to
// contain effects/ and npcs/ subdirectories of YAML files; a brains/
// subdirectory of temperament profiles is optional.
//
// Postcondition: Returns a Store with all content validated, or a non-nil error.
func LoadStore(dir string) (*Store, error) {
	s := &Store{dir: dir}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the content tree. On error the previously loaded content
// is kept.
func (s *Store) Reload() error {
	effects, err := effect.LoadDirectory(filepath.Join(s.dir, "effects"))
	if err != nil {
		return fmt.Errorf("loading effects: %w", err)
	}

	templates, err := npc.LoadTemplates(filepath.Join(s.dir, "npcs"))
	if err != nil {
		return fmt.Errorf("loading creature templates: %w", err)
	}
	byID := make(map[string]*npc.Template, len(templates))
	for _, tmpl := range templates {
		if _, dup := byID[tmpl.ID]; dup {
			return fmt.Errorf("duplicate creature template %q", tmpl.ID)
		}
		byID[tmpl.ID] = tmpl
	}

	brains, err := brain.LoadProfiles(filepath.Join(s.dir, "brains"))
	if err != nil {
		return fmt.Errorf("loading brain profiles: %w", err)
	}

	s.mu.Lock()
	s.effects = effects
	s.templates = byID
	s.brains = brains
	s.mu.Unlock()
	return nil
}

// Brains returns the loaded temperament profiles; empty when the content
// tree ships none.
func (s *Store) Brains() brain.Profiles {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.brains
}

// Effects returns the current effect registry.
func (s *Store) Effects() *effect.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.effects
}

// Template returns the creature template with the given ID.
func (s *Store) Template(id string) (*npc.Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tmpl, ok := s.templates[id]
	return tmpl, ok
}

// Templates returns all loaded creature templates keyed by ID.
func (s *Store) Templates() map[string]*npc.Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*npc.Template, len(s.templates))
	for id, tmpl := range s.templates {
		out[id] = tmpl
	}
	return out
}
