package threat

import "time"

// SelectTarget picks the NPC's combat target and returns it with the updated
// ledger. Selection order:
//
//  1. An active, valid forced target (taunt) wins outright.
//  2. An active but invalid forced target drops the override immediately.
//  3. Inside the sticky window the previous selection is kept unless a valid
//     challenger leads it by at least Tuning.StickyMargin.
//  4. Otherwise the highest-threat valid entry wins; ties break toward the
//     lexicographically smallest entity ID.
//  5. LastAttacker is the fallback when no ledger entry is valid.
//  6. "" means no target.
//
// Targets reported Undetectable are pruned from the ledger when
// Tuning.ForgetOnStealth is set, so threat does not snap back the instant
// stealth ends.
//
// Postcondition: s is not mutated; the returned State carries the selection
// bookkeeping and any override drops or stealth prunes.
func SelectTarget(s State, now time.Time, tn Tuning, isValid ValidFunc) (string, State) {
	if isValid == nil {
		isValid = func(string) Verdict { return Valid }
	}
	out := s.clone()

	if out.ForcedTarget != "" {
		if out.ForcedUntil.After(now) {
			switch isValid(out.ForcedTarget) {
			case Valid:
				return commit(&out, out.ForcedTarget, now), out
			case Undetectable:
				if tn.ForgetOnStealth {
					delete(out.Entries, out.ForcedTarget)
				}
			}
		}
		// Expired, invalid, or undetectable: drop the override and fall through.
		out.ForcedTarget = ""
		out.ForcedUntil = time.Time{}
	}

	if prev := out.LastSelected; prev != "" && now.Sub(out.LastSelectedAt) <= tn.StickyWindow {
		switch isValid(prev) {
		case Valid:
			prevThreat := out.Entries[prev]
			top, topV := topValid(&out, tn, isValid)
			if top != "" && top != prev && topV-prevThreat >= tn.StickyMargin {
				return commit(&out, top, now), out
			}
			return commit(&out, prev, now), out
		case Undetectable:
			if tn.ForgetOnStealth {
				delete(out.Entries, prev)
			}
		}
		out.LastSelected = ""
		out.LastSelectedAt = time.Time{}
	}

	if top, _ := topValid(&out, tn, isValid); top != "" {
		return commit(&out, top, now), out
	}

	if out.LastAttacker != "" && isValid(out.LastAttacker) == Valid {
		return commit(&out, out.LastAttacker, now), out
	}

	return "", out
}

// commit records the selection bookkeeping and returns targetID.
func commit(out *State, targetID string, now time.Time) string {
	out.LastSelected = targetID
	out.LastSelectedAt = now
	return targetID
}

// topValid returns the highest-threat entry that isValid reports Valid,
// pruning Undetectable entries in place when the forget-on-stealth policy is
// enabled. Tie-break: lexicographically smallest entity ID.
func topValid(out *State, tn Tuning, isValid ValidFunc) (string, float64) {
	bestID, bestV := "", 0.0
	for id, v := range out.Entries {
		switch isValid(id) {
		case Valid:
			if bestID == "" || v > bestV || (v == bestV && id < bestID) {
				bestID, bestV = id, v
			}
		case Undetectable:
			if tn.ForgetOnStealth {
				delete(out.Entries, id)
			}
		}
	}
	return bestID, bestV
}

// AssistQuery parameterizes AssistTarget.
type AssistQuery struct {
	// Window is how recently the ally must have been provoked.
	Window time.Duration
	// MinTopThreat is the minimum top threat for the ally to count as engaged.
	MinTopThreat float64
}

// AssistTarget returns the ledger's forced-or-top-threat target, but only if
// the ally was provoked within q.Window of now and its top threat meets
// q.MinTopThreat. This is the seed for pack-assist: an ally only "remembers"
// combat it was recently part of.
//
// Postcondition: returns "" for an ally that is idle, cooled off, or barely provoked.
func AssistTarget(s State, now time.Time, q AssistQuery) string {
	if s.LastAggroAt.IsZero() || now.Sub(s.LastAggroAt) > q.Window {
		return ""
	}
	top, topV := s.Top()
	if top == "" || topV < q.MinTopThreat {
		return ""
	}
	if s.ForcedTarget != "" && s.ForcedUntil.After(now) {
		return s.ForcedTarget
	}
	return top
}
