// Package cooldown provides generic per-actor, per-bucket time gates used to
// rate-limit attacks, help calls, and other repeatable actions.
package cooldown

import (
	"fmt"
	"time"
)

// key identifies one gate: an actor, a bucket grouping related gates
// ("attack", "assist"), and the specific key within the bucket.
type key struct {
	actor  string
	bucket string
	name   string
}

// Registry stores cooldown expiries. It is not safe for concurrent use; the
// owning shard serialises access. Expired entries cost nothing to read and
// may be garbage-collected lazily with Sweep.
type Registry struct {
	entries map[key]time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[key]time.Time)}
}

// Remaining returns how long until the gate opens: 0 when nothing is stored
// or the stored expiry has passed.
//
// Postcondition: result >= 0.
func (r *Registry) Remaining(actor, bucket, name string, now time.Time) time.Duration {
	readyAt, ok := r.entries[key{actor, bucket, name}]
	if !ok || !readyAt.After(now) {
		return 0
	}
	return readyAt.Sub(now)
}

// Start closes the gate for duration from now. A duration <= 0 is a no-op:
// a cooldown that is already expired never starts.
func (r *Registry) Start(actor, bucket, name string, duration time.Duration, now time.Time) {
	if duration <= 0 {
		return
	}
	r.entries[key{actor, bucket, name}] = now.Add(duration)
}

// CheckAndStart combines Remaining and Start: if the gate is open it starts
// the cooldown and returns ("", true); otherwise it returns a human-readable
// message and false. This is the only user-facing error string in the combat
// core.
func (r *Registry) CheckAndStart(actor, bucket, name string, duration time.Duration, now time.Time) (string, bool) {
	if remaining := r.Remaining(actor, bucket, name, now); remaining > 0 {
		secs := int((remaining + time.Second - 1) / time.Second)
		return fmt.Sprintf("still on cooldown for %ds", secs), false
	}
	r.Start(actor, bucket, name, duration, now)
	return "", true
}

// Clear removes every gate belonging to actor.
func (r *Registry) Clear(actor string) {
	for k := range r.entries {
		if k.actor == actor {
			delete(r.entries, k)
		}
	}
}

// Sweep drops entries whose expiry has passed and returns how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	removed := 0
	for k, readyAt := range r.entries {
		if !readyAt.After(now) {
			delete(r.entries, k)
			removed++
		}
	}
	return removed
}

// Export returns the live gates for actor in persistence shape, keyed
// "bucket/name". Expired gates are omitted.
func (r *Registry) Export(actor string, now time.Time) map[string]time.Time {
	out := make(map[string]time.Time)
	for k, readyAt := range r.entries {
		if k.actor == actor && readyAt.After(now) {
			out[k.bucket+"/"+k.name] = readyAt
		}
	}
	return out
}

// Restore installs gates for actor from the persistence shape produced by
// Export. Malformed keys are skipped.
func (r *Registry) Restore(actor string, saved map[string]time.Time) {
	for compound, readyAt := range saved {
		for i := 0; i < len(compound); i++ {
			if compound[i] == '/' {
				r.entries[key{actor, compound[:i], compound[i+1:]}] = readyAt
				break
			}
		}
	}
}
