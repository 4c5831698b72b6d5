package threat

import "time"

// tauntUndercut scales a non-takeover taunter's threat relative to the prior
// maximum. Multiplicative so fractional ledgers keep a proportional remainder
// instead of collapsing to zero.
const tauntUndercut = 0.9

// TauntOpts parameterizes ApplyTaunt.
type TauntOpts struct {
	// Duration of the forced-target window; <= 0 uses Tuning.TauntDuration.
	Duration time.Duration
	// ThreatBoost is added to the taunter's stored threat before capping.
	ThreatBoost float64
	// ForceTakeover pushes the taunter's threat above the prior maximum,
	// permanently capturing top-threat. Without it the taunt is a temporary
	// override only: the taunter's threat is capped strictly below the
	// current maximum so normal selection resumes when the window expires.
	ForceTakeover bool
}

// ApplyTaunt installs taunterID as the forced target until now+duration.
//
// Postcondition: ForcedTarget == taunterID and ForcedUntil > now. With
// ForceTakeover false, once ForcedUntil passes SelectTarget returns exactly
// the target it would have returned had the taunt never happened (modulo
// decay applied in the interim).
func ApplyTaunt(s State, taunterID string, opts TauntOpts, now time.Time, tn Tuning) State {
	out := s.clone()

	d := opts.Duration
	if d <= 0 {
		d = tn.TauntDuration
	}
	out.ForcedTarget = taunterID
	out.ForcedUntil = now.Add(d)
	out.LastTauntAt = now
	out.LastAggroAt = now

	maxOther, hasOther := 0.0, false
	for id, v := range out.Entries {
		if id == taunterID {
			continue
		}
		if !hasOther || v > maxOther {
			maxOther, hasOther = v, true
		}
	}

	boosted := out.Entries[taunterID] + sanitize(opts.ThreatBoost)
	switch {
	case opts.ForceTakeover:
		if hasOther && boosted <= maxOther {
			boosted = maxOther + 1
		}
	case hasOther && boosted >= maxOther:
		boosted = tauntUndercut * maxOther
		if boosted < 0 {
			boosted = 0
		}
	}

	if boosted > tn.PruneBelow {
		out.Entries[taunterID] = boosted
	} else {
		delete(out.Entries, taunterID)
	}
	return out
}
