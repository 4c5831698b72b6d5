package npc

import (
	"fmt"
	"sync"
	"time"
)

// RoomSpawn holds the resolved spawn configuration for one NPC template in one room.
//
// Invariant: Max >= 1; RespawnDelay == 0 defers to the template's own delay.
type RoomSpawn struct {
	// TemplateID is the NPC template to spawn.
	TemplateID string
	// Max is the population cap: respawn is suppressed when live count >= Max.
	Max int
	// RespawnDelay overrides the template's respawn delay when non-zero.
	RespawnDelay time.Duration
}

// respawnEntry represents a single pending respawn.
type respawnEntry struct {
	templateID string
	roomID     string
	readyAt    time.Time
}

// RespawnManager repopulates rooms after NPC deaths.
//
// Invariant: entries with zero delay are never queued.
//
// Concurrency: ReapDead, Tick, and PopulateRoom must not be called
// concurrently with each other or with themselves; in practice all three are
// driven by a single shard ticker goroutine. Schedule may be called from any
// goroutine.
type RespawnManager struct {
	mu        sync.RWMutex
	spawns    map[string][]RoomSpawn // roomID → configs
	templates map[string]*Template   // templateID → Template
	pending   []respawnEntry

	// OnReap, when set, observes each dead instance as ReapDead removes it.
	// Callers use it to discard state persisted under the instance's SlotKey.
	OnReap func(*Instance)
}

// SlotKey names the spawn slot for the i-th instance of templateID in roomID.
// A dead NPC's replacement takes over the same slot, so the key is a stable
// persistence identity across restarts.
func SlotKey(templateID, roomID string, index int) string {
	return fmt.Sprintf("%s#%s#%d", templateID, roomID, index)
}

// NewRespawnManager creates a RespawnManager from room spawn configs and a
// template map.
//
// Precondition: spawns and templates may be nil (manager becomes a no-op).
// Postcondition: Returns a non-nil RespawnManager.
func NewRespawnManager(spawns map[string][]RoomSpawn, templates map[string]*Template) *RespawnManager {
	if spawns == nil {
		spawns = make(map[string][]RoomSpawn)
	}
	if templates == nil {
		templates = make(map[string]*Template)
	}
	return &RespawnManager{
		spawns:    spawns,
		templates: templates,
	}
}

// PopulateRoom fills roomID up to each config's population cap, removing
// excess instances first. Freshly spawned instances carry empty threat
// ledgers and effect sets.
//
// Precondition: roomID must be non-empty; mgr must not be nil.
// Postcondition: for each template config in roomID, live count == Max
// (subject to Spawn succeeding).
func (r *RespawnManager) PopulateRoom(roomID string, mgr *Manager) {
	r.mu.RLock()
	configs := append([]RoomSpawn(nil), r.spawns[roomID]...)
	r.mu.RUnlock()

	for _, cfg := range configs {
		// r.templates is read-only after construction; no lock required.
		tmpl, ok := r.templates[cfg.TemplateID]
		if !ok {
			continue
		}

		matching := r.liveInRoom(roomID, cfg.TemplateID, mgr)
		for len(matching) > cfg.Max {
			last := matching[len(matching)-1]
			matching = matching[:len(matching)-1]
			_ = mgr.Remove(last.ID)
		}
		for i := len(matching); i < cfg.Max; i++ {
			// Spawn failure is non-fatal; the next call retries.
			r.spawnIntoSlot(tmpl, roomID, cfg.Max, mgr)
		}
	}
}

// spawnIntoSlot spawns tmpl in roomID and assigns it the lowest spawn slot not
// held by a live instance of the same template.
func (r *RespawnManager) spawnIntoSlot(tmpl *Template, roomID string, max int, mgr *Manager) {
	used := make(map[string]bool)
	for _, inst := range r.liveInRoom(roomID, tmpl.ID, mgr) {
		used[inst.SlotKey] = true
	}
	inst, err := mgr.Spawn(tmpl, roomID)
	if err != nil {
		return
	}
	for i := 0; i < max; i++ {
		key := SlotKey(tmpl.ID, roomID, i)
		if !used[key] {
			inst.SlotKey = key
			return
		}
	}
}

// ReapDead removes every dead instance from mgr in the given rooms and
// schedules each one's respawn using the resolved delay. Instances whose
// resolved delay is zero are removed without being rescheduled.
//
// Precondition: mgr must not be nil.
// Postcondition: no dead instances remain in the given rooms.
func (r *RespawnManager) ReapDead(roomIDs []string, now time.Time, mgr *Manager) {
	for _, roomID := range roomIDs {
		for _, inst := range mgr.InstancesInRoom(roomID) {
			if inst.Alive() {
				continue
			}
			delay := r.ResolvedDelay(inst.TemplateID, roomID)
			_ = mgr.Remove(inst.ID)
			if r.OnReap != nil {
				r.OnReap(inst)
			}
			r.Schedule(inst.TemplateID, roomID, now, delay)
		}
	}
}

// Schedule enqueues a future respawn for templateID in roomID to fire at
// now+delay. No-op when delay == 0 (template does not respawn).
//
// Precondition: templateID and roomID must be non-empty; now must be a valid time.
// Postcondition: entry is added to pending with readyAt = now+delay iff delay > 0.
func (r *RespawnManager) Schedule(templateID, roomID string, now time.Time, delay time.Duration) {
	if delay <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, respawnEntry{
		templateID: templateID,
		roomID:     roomID,
		readyAt:    now.Add(delay),
	})
}

// Tick drains all entries whose readyAt <= now, checks the population cap for
// each, and spawns up to the remaining capacity.
//
// Precondition: mgr must not be nil.
// Postcondition: pending entries with readyAt <= now are consumed.
func (r *RespawnManager) Tick(now time.Time, mgr *Manager) {
	r.mu.Lock()
	var ready, future []respawnEntry
	for _, e := range r.pending {
		if !e.readyAt.After(now) {
			ready = append(ready, e)
		} else {
			future = append(future, e)
		}
	}
	r.pending = future
	r.mu.Unlock()

	for _, e := range ready {
		tmpl, ok := r.templates[e.templateID]
		if !ok {
			continue
		}
		cfg, ok := r.configFor(e.roomID, e.templateID)
		if !ok {
			continue
		}
		if len(r.liveInRoom(e.roomID, e.templateID, mgr)) >= cfg.Max {
			continue
		}
		r.spawnIntoSlot(tmpl, e.roomID, cfg.Max, mgr)
	}
}

// ResolvedDelay returns the effective respawn delay for templateID in roomID:
// the room's RespawnDelay if non-zero, otherwise the template's parsed
// RespawnDelay. Returns 0 when neither is set or the template is unknown.
//
// Postcondition: Returns >= 0.
func (r *RespawnManager) ResolvedDelay(templateID, roomID string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cfg := range r.spawns[roomID] {
		if cfg.TemplateID == templateID && cfg.RespawnDelay > 0 {
			return cfg.RespawnDelay
		}
	}
	tmpl, ok := r.templates[templateID]
	if !ok || tmpl.RespawnDelay == "" {
		return 0
	}
	d, err := time.ParseDuration(tmpl.RespawnDelay)
	if err != nil {
		return 0
	}
	return d
}

// configFor finds the RoomSpawn config for templateID in roomID.
// Caller must NOT hold r.mu.
func (r *RespawnManager) configFor(roomID, templateID string) (RoomSpawn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cfg := range r.spawns[roomID] {
		if cfg.TemplateID == templateID {
			return cfg, true
		}
	}
	return RoomSpawn{}, false
}

// liveInRoom lists live instances of templateID in roomID.
func (r *RespawnManager) liveInRoom(roomID, templateID string, mgr *Manager) []*Instance {
	var out []*Instance
	for _, inst := range mgr.InstancesInRoom(roomID) {
		if inst.TemplateID == templateID {
			out = append(out, inst)
		}
	}
	return out
}
