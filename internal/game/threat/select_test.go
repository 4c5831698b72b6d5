package threat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/veilwood/mud/internal/game/threat"
)

func allValid(string) threat.Verdict { return threat.Valid }

// verdictMap builds a ValidFunc from explicit verdicts; unlisted IDs are Valid.
func verdictMap(m map[string]threat.Verdict) threat.ValidFunc {
	return func(id string) threat.Verdict {
		if v, ok := m[id]; ok {
			return v
		}
		return threat.Valid
	}
}

func TestSelectTarget_TopThreatWins(t *testing.T) {
	tn := threat.DefaultTuning()
	s := threat.NewState()
	s = threat.Add(s, "alice", 10, at(1000), tn, threat.AddOpts{RecordAttacker: true})
	s = threat.Add(s, "bob", 30, at(1000), tn, threat.AddOpts{RecordAttacker: true})

	id, _ := threat.SelectTarget(s, at(1000), tn, allValid)
	assert.Equal(t, "bob", id)
}

func TestSelectTarget_SkipsInvalidEntries(t *testing.T) {
	tn := threat.DefaultTuning()
	s := threat.NewState()
	s = threat.Add(s, "alice", 10, at(1000), tn, threat.AddOpts{})
	s = threat.Add(s, "bob", 30, at(1000), tn, threat.AddOpts{})

	id, _ := threat.SelectTarget(s, at(1000), tn,
		verdictMap(map[string]threat.Verdict{"bob": threat.Invalid}))
	assert.Equal(t, "alice", id)
}

func TestSelectTarget_LastAttackerFallback(t *testing.T) {
	tn := threat.DefaultTuning()
	tn.DecayPerSec = 100

	s := threat.NewState()
	s = threat.Add(s, "alice", 10, at(0), tn, threat.AddOpts{RecordAttacker: true})
	// Full decay leaves the table empty but LastAttacker intact.
	s = threat.Decay(s, at(5000), tn)
	require.Empty(t, s.Entries)

	id, _ := threat.SelectTarget(s, at(5000), tn, allValid)
	assert.Equal(t, "alice", id)
}

func TestSelectTarget_NothingValid(t *testing.T) {
	tn := threat.DefaultTuning()
	s := threat.NewState()
	s = threat.Add(s, "alice", 10, at(0), tn, threat.AddOpts{RecordAttacker: true})

	id, _ := threat.SelectTarget(s, at(0), tn,
		func(string) threat.Verdict { return threat.Invalid })
	assert.Empty(t, id)
}

// TestSelectTarget_TauntScenario pins the forced-window scenario: taunt at
// t=2000 for 4000ms with no takeover over a table where bob has threat 10 vs
// the taunter's 0: the taunter wins at t=2500, bob again at t=6501.
func TestSelectTarget_TauntScenario(t *testing.T) {
	tn := threat.DefaultTuning()
	tn.DecayPerSec = 0

	s := threat.NewState()
	s = threat.Add(s, "bob", 10, at(1000), tn, threat.AddOpts{RecordAttacker: true})
	s = threat.ApplyTaunt(s, "tank", threat.TauntOpts{Duration: 4 * time.Second}, at(2000), tn)

	id, s := threat.SelectTarget(s, at(2500), tn, allValid)
	require.Equal(t, "tank", id)

	// Jump past both the forced window and the sticky window.
	id, _ = threat.SelectTarget(s, at(6501), tn, allValid)
	assert.Equal(t, "bob", id, "after the forced window, top-threat selection resumes")
}

func TestSelectTarget_InvalidForcedTargetDropsOverride(t *testing.T) {
	tn := threat.DefaultTuning()
	s := threat.NewState()
	s = threat.Add(s, "bob", 10, at(1000), tn, threat.AddOpts{})
	s = threat.ApplyTaunt(s, "tank", threat.TauntOpts{}, at(1000), tn)

	id, s := threat.SelectTarget(s, at(1500), tn,
		verdictMap(map[string]threat.Verdict{"tank": threat.Invalid}))
	assert.Equal(t, "bob", id, "invalid forced target must not block selection")
	assert.Empty(t, s.ForcedTarget, "override is dropped immediately, not at expiry")
}

func TestSelectTarget_StealthPrunesBucket(t *testing.T) {
	tn := threat.DefaultTuning()
	tn.ForgetOnStealth = true

	s := threat.NewState()
	s = threat.Add(s, "rogue", 50, at(1000), tn, threat.AddOpts{RecordAttacker: true})
	s = threat.Add(s, "bob", 10, at(1000), tn, threat.AddOpts{})

	id, s := threat.SelectTarget(s, at(1000), tn,
		verdictMap(map[string]threat.Verdict{"rogue": threat.Undetectable}))
	assert.Equal(t, "bob", id)
	assert.NotContains(t, s.Entries, "rogue",
		"stealthed target's bucket is pruned so threat cannot snap back")
}

func TestSelectTarget_StickinessHoldsBelowMargin(t *testing.T) {
	tn := threat.DefaultTuning()
	tn.StickyWindow = 5 * time.Second
	tn.StickyMargin = 10

	s := threat.NewState()
	s = threat.Add(s, "alice", 20, at(1000), tn, threat.AddOpts{})
	id, s := threat.SelectTarget(s, at(1000), tn, allValid)
	require.Equal(t, "alice", id)

	// Challenger leads by 9 < margin 10: no switch inside the window.
	s = threat.Add(s, "bob", 29, at(1500), tn, threat.AddOpts{})
	id, s = threat.SelectTarget(s, at(2000), tn, allValid)
	assert.Equal(t, "alice", id)

	// Lead reaches the margin: switch.
	s = threat.Add(s, "bob", 1, at(2500), tn, threat.AddOpts{})
	id, _ = threat.SelectTarget(s, at(3000), tn, allValid)
	assert.Equal(t, "bob", id)
}

func TestSelectTarget_StickinessExpiresWithWindow(t *testing.T) {
	tn := threat.DefaultTuning()
	tn.DecayPerSec = 0
	tn.StickyWindow = 2 * time.Second
	tn.StickyMargin = 100

	s := threat.NewState()
	s = threat.Add(s, "alice", 20, at(1000), tn, threat.AddOpts{})
	_, s = threat.SelectTarget(s, at(1000), tn, allValid)

	s = threat.Add(s, "bob", 25, at(1500), tn, threat.AddOpts{})

	// Window passed: plain top-threat selection, margin no longer protects alice.
	id, _ := threat.SelectTarget(s, at(4000), tn, allValid)
	assert.Equal(t, "bob", id)
}

// TestSelectTarget_StickyMarginProperty: below-margin leads never switch the
// selection inside the sticky window; at-or-above-margin leads always do.
func TestSelectTarget_StickyMarginProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tn := threat.DefaultTuning()
		tn.DecayPerSec = 0
		tn.StickyWindow = 10 * time.Second
		tn.StickyMargin = float64(rapid.IntRange(1, 50).Draw(rt, "margin"))

		current := float64(rapid.IntRange(1, 100).Draw(rt, "current"))
		lead := float64(rapid.IntRange(-20, 100).Draw(rt, "lead"))

		s := threat.NewState()
		s = threat.Add(s, "current", current, at(0), tn, threat.AddOpts{})
		_, s = threat.SelectTarget(s, at(0), tn, allValid)

		challenger := current + lead
		if challenger > 0 {
			s = threat.Add(s, "challenger", challenger, at(100), tn, threat.AddOpts{})
		}

		id, _ := threat.SelectTarget(s, at(200), tn, allValid)
		if lead >= tn.StickyMargin {
			assert.Equal(rt, "challenger", id)
		} else {
			assert.Equal(rt, "current", id)
		}
	})
}

// TestSelectTarget_TauntReversibility: with ForceTakeover false, selection
// after the forced window matches what an untaunted table would have chosen.
func TestSelectTarget_TauntReversibility(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tn := threat.DefaultTuning()
		tn.DecayPerSec = 0

		topThreat := float64(rapid.IntRange(2, 500).Draw(rt, "topThreat"))
		boost := float64(rapid.IntRange(0, 1000).Draw(rt, "boost"))

		base := threat.NewState()
		base = threat.Add(base, "bob", topThreat, at(0), tn, threat.AddOpts{RecordAttacker: true})

		taunted := threat.ApplyTaunt(base, "tank",
			threat.TauntOpts{Duration: time.Second, ThreatBoost: boost}, at(0), tn)

		// Past the forced window and outside the sticky window.
		wantID, _ := threat.SelectTarget(base, at(20_000), tn, allValid)
		gotID, _ := threat.SelectTarget(taunted, at(20_000), tn, allValid)
		assert.Equal(rt, wantID, gotID,
			"taunt without takeover must be fully reversible")
	})
}

func TestAssistTarget_RequiresRecentAggroAndMinThreat(t *testing.T) {
	tn := threat.DefaultTuning()
	tn.DecayPerSec = 0
	q := threat.AssistQuery{Window: 5 * time.Second, MinTopThreat: 10}

	s := threat.NewState()
	assert.Empty(t, threat.AssistTarget(s, at(1000), q), "idle ally has no assist target")

	s = threat.Add(s, "alice", 50, at(1000), tn, threat.AddOpts{RecordAttacker: true})
	assert.Equal(t, "alice", threat.AssistTarget(s, at(2000), q))

	assert.Empty(t, threat.AssistTarget(s, at(7001), q), "aggro outside the window is forgotten")

	weak := threat.NewState()
	weak = threat.Add(weak, "alice", 5, at(1000), tn, threat.AddOpts{})
	assert.Empty(t, threat.AssistTarget(weak, at(1500), q), "top threat below the minimum")
}

func TestAssistTarget_PrefersForcedTarget(t *testing.T) {
	tn := threat.DefaultTuning()
	q := threat.AssistQuery{Window: 5 * time.Second, MinTopThreat: 1}

	s := threat.NewState()
	s = threat.Add(s, "alice", 50, at(1000), tn, threat.AddOpts{})
	s = threat.ApplyTaunt(s, "tank", threat.TauntOpts{ThreatBoost: 5}, at(1200), tn)

	assert.Equal(t, "tank", threat.AssistTarget(s, at(1500), q))
}
