// Package shard drives the simulation loop for one world shard: effect
// ticking, NPC decision making, help-call fan-out, and respawn sweeps.
package shard

import (
	"context"
	"sync"
	"time"
)

// Ticker runs a periodic tick for each registered zone. Each zone's tick
// callback receives the tick time and is invoked sequentially.
//
// Invariant: all callbacks are invoked at most once per tick interval.
type Ticker struct {
	interval time.Duration
	mu       sync.Mutex
	ticks    map[string]func(now time.Time)
}

// NewTicker returns a Ticker that fires every interval.
//
// Precondition: interval must be > 0.
func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		panic("shard.NewTicker: interval must be > 0")
	}
	return &Ticker{
		interval: interval,
		ticks:    make(map[string]func(now time.Time)),
	}
}

// RegisterZone registers a callback for zoneID. Replaces any existing callback.
func (t *Ticker) RegisterZone(zoneID string, fn func(now time.Time)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ticks[zoneID] = fn
}

// Unregister removes the tick callback for zoneID.
func (t *Ticker) Unregister(zoneID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ticks, zoneID)
}

// Start begins the tick loop. Runs until ctx is cancelled.
//
// Postcondition: all registered tick callbacks are invoked once per interval
// with the same tick timestamp.
func (t *Ticker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				t.mu.Lock()
				callbacks := make([]func(time.Time), 0, len(t.ticks))
				for _, fn := range t.ticks {
					callbacks = append(callbacks, fn)
				}
				t.mu.Unlock()
				for _, fn := range callbacks {
					fn(now)
				}
			}
		}
	}()
}
