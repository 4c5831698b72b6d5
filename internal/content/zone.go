package content

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/veilwood/mud/internal/game/npc"
)

// Spawn is one creature population rule for a room.
type Spawn struct {
	TemplateID   string `yaml:"template_id"`
	Max          int    `yaml:"max"`
	RespawnDelay string `yaml:"respawn_delay"`
}

// Room is a room entry in a zone layout.
type Room struct {
	ID     string  `yaml:"id"`
	Name   string  `yaml:"name"`
	Spawns []Spawn `yaml:"spawns"`
}

// Zone is the on-disk layout of one zone: its rooms and what spawns where.
// Room IDs are namespaced as "<zone>:<room>" when the zone loads.
type Zone struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Rooms []Room `yaml:"rooms"`
}

// Validate checks the layout.
//
// Postcondition: nil return guarantees a non-empty zone ID, unique non-empty
// room IDs, and parseable respawn delays.
func (z *Zone) Validate() error {
	if z.ID == "" {
		return fmt.Errorf("zone has empty id")
	}
	seen := make(map[string]bool, len(z.Rooms))
	for _, room := range z.Rooms {
		if room.ID == "" {
			return fmt.Errorf("zone %q: room with empty id", z.ID)
		}
		if seen[room.ID] {
			return fmt.Errorf("zone %q: duplicate room %q", z.ID, room.ID)
		}
		seen[room.ID] = true
		for _, sp := range room.Spawns {
			if sp.TemplateID == "" {
				return fmt.Errorf("zone %q room %q: spawn with empty template_id", z.ID, room.ID)
			}
			if sp.Max < 1 {
				return fmt.Errorf("zone %q room %q: spawn %q max must be >= 1", z.ID, room.ID, sp.TemplateID)
			}
			if sp.RespawnDelay != "" {
				if _, err := time.ParseDuration(sp.RespawnDelay); err != nil {
					return fmt.Errorf("zone %q room %q: spawn %q: %w", z.ID, room.ID, sp.TemplateID, err)
				}
			}
		}
	}
	return nil
}

// RoomIDs returns the namespaced IDs of every room in the zone.
func (z *Zone) RoomIDs() []string {
	out := make([]string, 0, len(z.Rooms))
	for _, room := range z.Rooms {
		out = append(out, z.ID+":"+room.ID)
	}
	return out
}

// SpawnTable returns the population rules keyed by namespaced room ID, in
// the form the respawn manager consumes.
func (z *Zone) SpawnTable() map[string][]npc.RoomSpawn {
	out := make(map[string][]npc.RoomSpawn)
	for _, room := range z.Rooms {
		if len(room.Spawns) == 0 {
			continue
		}
		key := z.ID + ":" + room.ID
		for _, sp := range room.Spawns {
			var delay time.Duration
			if sp.RespawnDelay != "" {
				delay, _ = time.ParseDuration(sp.RespawnDelay)
			}
			out[key] = append(out[key], npc.RoomSpawn{
				TemplateID:   sp.TemplateID,
				Max:          sp.Max,
				RespawnDelay: delay,
			})
		}
	}
	return out
}

// LoadZones reads every *.yaml zone layout in dir. Unknown fields are
// rejected.
//
// Precondition: dir must be a readable directory.
func LoadZones(dir string) ([]*Zone, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading zone dir %q: %w", dir, err)
	}
	var zones []*Zone
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var z Zone
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&z); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if err := z.Validate(); err != nil {
			return nil, fmt.Errorf("%q: %w", path, err)
		}
		if seen[z.ID] {
			return nil, fmt.Errorf("duplicate zone %q", z.ID)
		}
		seen[z.ID] = true
		zones = append(zones, &z)
	}
	return zones, nil
}
