package npc

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/veilwood/mud/internal/game/dice"
)

// Manager tracks all live NPC instances by ID, by room, and by pack.
// All methods are safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	src       dice.Source
	instances map[string]*Instance       // instanceID → Instance
	roomSets  map[string]map[string]bool // roomID → set of instanceIDs
	packSets  map[string]map[string]bool // packID → set of instanceIDs
}

// NewManager creates an empty NPC Manager. src seeds each spawned
// instance's dice rolls.
func NewManager(src dice.Source) *Manager {
	return &Manager{
		src:       src,
		instances: make(map[string]*Instance),
		roomSets:  make(map[string]map[string]bool),
		packSets:  make(map[string]map[string]bool),
	}
}

// Spawn creates a new Instance from tmpl and places it in roomID.
//
// Precondition: tmpl must be non-nil; roomID must be non-empty.
// Postcondition: Returns a new Instance with a unique ID registered in
// roomID and, if the template names a pack, in that pack.
func (m *Manager) Spawn(tmpl *Template, roomID string) (*Instance, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("npc.Manager.Spawn: tmpl must not be nil")
	}
	if roomID == "" {
		return nil, fmt.Errorf("npc.Manager.Spawn: roomID must not be empty")
	}

	inst := NewInstance(tmpl, roomID, m.src)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.instances[inst.ID] = inst
	if m.roomSets[roomID] == nil {
		m.roomSets[roomID] = make(map[string]bool)
	}
	m.roomSets[roomID][inst.ID] = true

	if inst.PackID != "" {
		if m.packSets[inst.PackID] == nil {
			m.packSets[inst.PackID] = make(map[string]bool)
		}
		m.packSets[inst.PackID][inst.ID] = true
	}

	return inst, nil
}

// Remove deletes an instance by ID.
//
// Precondition: id must be non-empty.
// Postcondition: Returns an error if the instance is not found.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[id]
	if !ok {
		return fmt.Errorf("npc instance %q not found", id)
	}

	if rs, ok := m.roomSets[inst.RoomID]; ok {
		delete(rs, id)
		if len(rs) == 0 {
			delete(m.roomSets, inst.RoomID)
		}
	}
	if inst.PackID != "" {
		if ps, ok := m.packSets[inst.PackID]; ok {
			delete(ps, id)
			if len(ps) == 0 {
				delete(m.packSets, inst.PackID)
			}
		}
	}
	delete(m.instances, id)
	return nil
}

// Get returns the instance with the given ID.
//
// Postcondition: Returns (inst, true) if found, or (nil, false) otherwise.
func (m *Manager) Get(id string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	return inst, ok
}

// InstancesInRoom returns a snapshot of all live instances in roomID,
// ordered by instance ID so callers iterate deterministically.
//
// Postcondition: Returns a non-nil slice (may be empty).
func (m *Manager) InstancesInRoom(roomID string) []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(m.roomSets[roomID])
}

// PackMembers returns all live pack-mates of packID excluding excludeID,
// ordered by instance ID.
//
// Postcondition: Returns a non-nil slice (may be empty).
func (m *Manager) PackMembers(packID, excludeID string) []*Instance {
	if packID == "" {
		return []*Instance{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.collect(m.packSets[packID])
	filtered := out[:0]
	for _, inst := range out {
		if inst.ID != excludeID {
			filtered = append(filtered, inst)
		}
	}
	return filtered
}

// collect resolves an ID set to instances sorted by ID. Callers hold m.mu.
func (m *Manager) collect(ids map[string]bool) []*Instance {
	out := make([]*Instance, 0, len(ids))
	for id := range ids {
		if inst, ok := m.instances[id]; ok {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Move relocates an instance from its current room to newRoomID.
//
// Precondition: id must identify an existing instance; newRoomID must be non-empty.
// Postcondition: instance.RoomID equals newRoomID; room index is updated accordingly.
func (m *Manager) Move(id, newRoomID string) error {
	if newRoomID == "" {
		return fmt.Errorf("npc.Manager.Move: newRoomID must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[id]
	if !ok {
		return fmt.Errorf("npc.Manager.Move: instance %q not found", id)
	}

	oldRoomID := inst.RoomID
	if rs, ok := m.roomSets[oldRoomID]; ok {
		delete(rs, id)
		if len(rs) == 0 {
			delete(m.roomSets, oldRoomID)
		}
	}

	inst.RoomID = newRoomID
	if m.roomSets[newRoomID] == nil {
		m.roomSets[newRoomID] = make(map[string]bool)
	}
	m.roomSets[newRoomID][id] = true

	return nil
}

// FindInRoom returns the first instance in roomID whose Name has target as a
// case-insensitive prefix, preferring the lowest instance ID on ties.
// Returns nil if no match is found.
//
// Precondition: roomID and target must be non-empty for meaningful results.
func (m *Manager) FindInRoom(roomID, target string) *Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lower := strings.ToLower(target)
	for _, inst := range m.collect(m.roomSets[roomID]) {
		if strings.HasPrefix(strings.ToLower(inst.Name), lower) {
			return inst
		}
	}
	return nil
}
