package threat_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/veilwood/mud/internal/game/threat"
)

// at converts a millisecond offset into a fixed test timeline.
func at(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func TestAdd_AccumulatesAndRecordsAttacker(t *testing.T) {
	tn := threat.DefaultTuning()
	s := threat.NewState()

	s = threat.Add(s, "alice", 10, at(1000), tn, threat.AddOpts{RecordAttacker: true})
	s = threat.Add(s, "alice", 5, at(1000), tn, threat.AddOpts{RecordAttacker: true})

	assert.Equal(t, 15.0, s.Entries["alice"])
	assert.Equal(t, "alice", s.LastAttacker)
	assert.Equal(t, at(1000), s.LastAggroAt)
}

func TestAdd_PassivePokeKeepsLastAttacker(t *testing.T) {
	tn := threat.DefaultTuning()
	s := threat.NewState()

	s = threat.Add(s, "alice", 10, at(1000), tn, threat.AddOpts{RecordAttacker: true})
	s = threat.Add(s, "bob", 3, at(1500), tn, threat.AddOpts{})

	assert.Equal(t, "alice", s.LastAttacker, "passive pokes must not steal LastAttacker")
	assert.Equal(t, at(1500), s.LastAggroAt, "LastAggroAt is always refreshed")
}

func TestAdd_NormalizesBadAmounts(t *testing.T) {
	tn := threat.DefaultTuning()
	s := threat.NewState()

	s = threat.Add(s, "alice", -5, at(1000), tn, threat.AddOpts{})
	assert.NotContains(t, s.Entries, "alice", "negative amount must not create a ghost entry")

	s = threat.Add(s, "alice", math.NaN(), at(1000), tn, threat.AddOpts{})
	assert.NotContains(t, s.Entries, "alice")

	s = threat.Add(s, "alice", math.Inf(1), at(1000), tn, threat.AddOpts{})
	assert.NotContains(t, s.Entries, "alice")
}

func TestAdd_DoesNotMutateInput(t *testing.T) {
	tn := threat.DefaultTuning()
	s := threat.NewState()
	s = threat.Add(s, "alice", 10, at(1000), tn, threat.AddOpts{})

	_ = threat.Add(s, "alice", 90, at(2000), tn, threat.AddOpts{})
	assert.Equal(t, 10.0, s.Entries["alice"], "Add must take-and-return, not mutate")
}

// TestDecay_WholeSecondScenario pins the whole-second decay behavior:
// {A:10} at t=1000, decayPerSec=2. Two whole seconds at t=3000 → 6; still 6
// at t=3999 (sub-second remainder ignored); third whole second at t=4000 → 4.
func TestDecay_WholeSecondScenario(t *testing.T) {
	tn := threat.DefaultTuning()
	tn.DecayPerSec = 2

	s := threat.NewState()
	s = threat.Add(s, "A", 10, at(1000), tn, threat.AddOpts{})

	s = threat.Decay(s, at(3000), tn)
	require.Equal(t, 6.0, s.Entries["A"])

	s = threat.Decay(s, at(3999), tn)
	require.Equal(t, 6.0, s.Entries["A"], "sub-second elapsed must not decay")

	s = threat.Decay(s, at(4000), tn)
	assert.Equal(t, 4.0, s.Entries["A"])
}

func TestDecay_PrunesAtFloor(t *testing.T) {
	tn := threat.DefaultTuning()
	tn.DecayPerSec = 5

	s := threat.NewState()
	s = threat.Add(s, "A", 4, at(0), tn, threat.AddOpts{})
	s = threat.Decay(s, at(1000), tn)

	assert.NotContains(t, s.Entries, "A", "entry decayed to or below the floor is removed")
}

func TestDecay_SubSecondReturnsInputUnchanged(t *testing.T) {
	tn := threat.DefaultTuning()
	s := threat.NewState()
	s = threat.Add(s, "A", 10, at(0), tn, threat.AddOpts{})

	out := threat.Decay(s, at(999), tn)
	assert.Equal(t, s, out)
}

// TestDecay_TimeAdditive verifies decay depends on total elapsed whole
// seconds, not on how many times Decay was called.
func TestDecay_TimeAdditive(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tn := threat.DefaultTuning()
		tn.DecayPerSec = float64(rapid.IntRange(1, 5).Draw(rt, "decayPerSec"))
		initial := float64(rapid.IntRange(1, 1000).Draw(rt, "initial"))
		s1 := rapid.Int64Range(1, 30).Draw(rt, "s1")
		s2 := rapid.Int64Range(1, 30).Draw(rt, "s2")

		base := threat.NewState()
		base = threat.Add(base, "A", initial, at(0), tn, threat.AddOpts{})

		oneShot := threat.Decay(base, at((s1+s2)*1000), tn)

		twoStep := threat.Decay(base, at(s1*1000), tn)
		twoStep = threat.Decay(twoStep, at((s1+s2)*1000), tn)

		assert.Equal(rt, oneShot.Entries["A"], twoStep.Entries["A"],
			"decay must be time-additive, not call-count-dependent")

		expected := initial - tn.DecayPerSec*float64(s1+s2)
		if expected <= tn.PruneBelow {
			assert.NotContains(rt, oneShot.Entries, "A")
		} else {
			assert.Equal(rt, expected, oneShot.Entries["A"])
		}
	})
}

func TestRemove_DropsAllBookkeeping(t *testing.T) {
	tn := threat.DefaultTuning()
	s := threat.NewState()
	s = threat.Add(s, "alice", 10, at(1000), tn, threat.AddOpts{RecordAttacker: true})
	s = threat.ApplyTaunt(s, "alice", threat.TauntOpts{}, at(1000), tn)

	s = threat.Remove(s, "alice")

	assert.NotContains(t, s.Entries, "alice")
	assert.Empty(t, s.LastAttacker)
	assert.Empty(t, s.ForcedTarget)
}

func TestTop_DeterministicTieBreak(t *testing.T) {
	s := threat.NewState()
	s.Entries["zed"] = 10
	s.Entries["abe"] = 10
	s.Entries["mia"] = 4

	id, v := s.Top()
	assert.Equal(t, "abe", id, "ties break toward the lexicographically smallest ID")
	assert.Equal(t, 10.0, v)
}
