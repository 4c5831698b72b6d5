package shard

import (
	"sync"
	"time"
)

// heatEntry records one entity's crime heat and its decay checkpoint.
type heatEntry struct {
	value float64
	// decayedAt marks the last whole-second decay boundary applied.
	decayedAt time.Time
}

// HeatLedger tracks per-entity crime heat. Heat accrues when an entity
// commits an offense in guarded territory and decays by a fixed amount per
// whole elapsed second, never below zero. Safe for concurrent use.
type HeatLedger struct {
	mu      sync.Mutex
	decay   float64 // heat lost per whole second
	entries map[string]heatEntry
}

// NewHeatLedger creates a ledger that decays heat by decayPerSec.
//
// Precondition: decayPerSec >= 0; 0 disables decay.
func NewHeatLedger(decayPerSec float64) *HeatLedger {
	if decayPerSec < 0 {
		decayPerSec = 0
	}
	return &HeatLedger{
		decay:   decayPerSec,
		entries: make(map[string]heatEntry),
	}
}

// Record adds amount heat to entityID after settling decay.
//
// Precondition: amount >= 0.
// Postcondition: Heat(entityID, now) >= amount.
func (h *HeatLedger) Record(entityID string, amount float64, now time.Time) {
	if amount <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.settled(entityID, now)
	e.value += amount
	h.entries[entityID] = e
}

// Heat returns entityID's current heat after decay; 0 for unknown entities.
func (h *HeatLedger) Heat(entityID string, now time.Time) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.settled(entityID, now)
	if e.value <= 0 {
		delete(h.entries, entityID)
		return 0
	}
	h.entries[entityID] = e
	return e.value
}

// Forgive clears entityID's heat entirely.
func (h *HeatLedger) Forgive(entityID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, entityID)
}

// settled returns entityID's entry with decay applied up to the last whole
// second before now. Caller holds h.mu.
func (h *HeatLedger) settled(entityID string, now time.Time) heatEntry {
	e, ok := h.entries[entityID]
	if !ok {
		return heatEntry{decayedAt: now}
	}
	if h.decay <= 0 {
		return e
	}
	elapsed := now.Sub(e.decayedAt)
	whole := elapsed / time.Second
	if whole <= 0 {
		return e
	}
	e.value -= h.decay * float64(whole)
	if e.value < 0 {
		e.value = 0
	}
	e.decayedAt = e.decayedAt.Add(whole * time.Second)
	return e
}
