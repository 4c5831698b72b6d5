package shard_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/veilwood/mud/internal/shard"
)

func at(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func TestHeatLedger_RecordAndDecay(t *testing.T) {
	h := shard.NewHeatLedger(2)
	h.Record("outlaw", 10, at(1000))

	assert.Equal(t, 10.0, h.Heat("outlaw", at(1000)))

	// Partial seconds leave heat untouched.
	assert.Equal(t, 10.0, h.Heat("outlaw", at(1999)))

	// Whole seconds decay 2 each.
	assert.Equal(t, 8.0, h.Heat("outlaw", at(2000)))
	assert.Equal(t, 4.0, h.Heat("outlaw", at(4000)))

	// Heat bottoms out at zero and the entry is dropped.
	assert.Equal(t, 0.0, h.Heat("outlaw", at(60000)))
}

func TestHeatLedger_RecordSettlesBeforeAdding(t *testing.T) {
	h := shard.NewHeatLedger(1)
	h.Record("outlaw", 5, at(1000))
	h.Record("outlaw", 5, at(4000)) // 3s elapsed: 5-3=2, then +5
	assert.Equal(t, 7.0, h.Heat("outlaw", at(4000)))
}

func TestHeatLedger_Forgive(t *testing.T) {
	h := shard.NewHeatLedger(0)
	h.Record("outlaw", 50, at(1000))
	h.Forgive("outlaw")
	assert.Equal(t, 0.0, h.Heat("outlaw", at(1000)))
}

func TestHeatLedger_UnknownEntityIsClean(t *testing.T) {
	h := shard.NewHeatLedger(1)
	assert.Equal(t, 0.0, h.Heat("stranger", at(1000)))
}

func TestHeatLedger_NeverNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		decay := rapid.Float64Range(0, 10).Draw(t, "decay")
		h := shard.NewHeatLedger(decay)
		now := at(1000)
		ops := rapid.IntRange(1, 20).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			h.Record("e", rapid.Float64Range(0, 100).Draw(t, "amount"), now)
			now = now.Add(time.Duration(rapid.IntRange(0, 5000).Draw(t, "advance")) * time.Millisecond)
			if h.Heat("e", now) < 0 {
				t.Fatalf("heat went negative")
			}
		}
	})
}
