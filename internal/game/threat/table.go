package threat

import "time"

// AddOpts controls side bookkeeping for Add.
type AddOpts struct {
	// RecordAttacker refreshes State.LastAttacker. Damage events set this;
	// passive provocations (entering a guarded area, failed pickpocket) may not.
	RecordAttacker bool
}

// Add decays the ledger to now, then credits amount threat to entityID.
// Negative, NaN, and infinite amounts are normalized to 0. LastAggroAt is
// always refreshed; LastAttacker only when opts.RecordAttacker is set.
//
// Postcondition: the returned State satisfies the no-ghost-entry invariant;
// s is not mutated.
func Add(s State, entityID string, amount float64, now time.Time, tn Tuning, opts AddOpts) State {
	out := Decay(s, now, tn).clone()

	amount = sanitize(amount)
	if _, exists := out.Entries[entityID]; exists || amount > 0 {
		out.Entries[entityID] += amount
	}

	out.LastAggroAt = now
	if out.LastDecayAt.IsZero() {
		out.LastDecayAt = now
	}
	if opts.RecordAttacker {
		out.LastAttacker = entityID
	}
	return out
}

// Decay applies whole-second threat decay since the last checkpoint
// (LastDecayAt, falling back to LastAggroAt) and prunes entries at or below
// the floor. It returns s unchanged when less than one whole second has
// elapsed, so repeated calls inside a tick are free and deterministic.
//
// Postcondition: decay is time-additive; decaying after s1+s2 seconds in one
// call equals decaying after s1 and then s2.
func Decay(s State, now time.Time, tn Tuning) State {
	checkpoint := s.LastDecayAt
	if checkpoint.IsZero() {
		checkpoint = s.LastAggroAt
	}
	if checkpoint.IsZero() {
		// Nothing has ever provoked this NPC; establish the checkpoint.
		if len(s.Entries) == 0 {
			return s
		}
		out := s.clone()
		out.LastDecayAt = now
		return out
	}

	secs := int64(now.Sub(checkpoint) / time.Second)
	if secs < 1 || len(s.Entries) == 0 {
		return s
	}

	out := s.clone()
	dec := float64(secs) * tn.DecayPerSec
	for id, v := range out.Entries {
		nv := v - dec
		if nv <= tn.PruneBelow {
			delete(out.Entries, id)
		} else {
			out.Entries[id] = nv
		}
	}
	// Advance by whole seconds only; the sub-second remainder keeps accruing.
	out.LastDecayAt = checkpoint.Add(time.Duration(secs) * time.Second)
	return out
}

// Remove drops entityID's bucket and any bookkeeping that points at it.
// Used when an entity despawns or logs out.
func Remove(s State, entityID string) State {
	out := s.clone()
	delete(out.Entries, entityID)
	if out.LastAttacker == entityID {
		out.LastAttacker = ""
	}
	if out.ForcedTarget == entityID {
		out.ForcedTarget = ""
		out.ForcedUntil = time.Time{}
	}
	if out.LastSelected == entityID {
		out.LastSelected = ""
		out.LastSelectedAt = time.Time{}
	}
	return out
}
