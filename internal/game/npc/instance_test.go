package npc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilwood/mud/internal/game/npc"
)

// fixedSource always returns v (clamped below n).
type fixedSource struct{ v int }

func (s fixedSource) Intn(n int) int {
	if s.v >= n {
		return n - 1
	}
	return s.v
}

func wolfTemplate() *npc.Template {
	return &npc.Template{
		ID:               "forest-wolf",
		Name:             "Forest Wolf",
		MaxHP:            40,
		Armor:            15,
		Role:             "dps",
		Temperament:      "aggressive",
		CallsForHelp:     true,
		PackID:           "forest-wolves",
		AttackCooldownMs: 2000,
		Damage:           "1d6+2",
		Taunts:           []string{"The wolf bares its teeth.", "The wolf circles you."},
		TauntChance:      0.5,
		TauntCooldown:    "8s",
	}
}

func TestNewInstance(t *testing.T) {
	inst := npc.NewInstance(wolfTemplate(), "clearing", fixedSource{0})

	assert.NotEmpty(t, inst.ID)
	assert.Equal(t, "forest-wolf", inst.TemplateID)
	assert.Equal(t, 40, inst.CurrentHP)
	assert.Equal(t, 2*time.Second, inst.AttackCooldown)
	assert.Equal(t, 8*time.Second, inst.TauntCooldown)
	assert.True(t, inst.Alive())
	assert.Empty(t, inst.Threat.Entries)
	assert.Equal(t, 0, inst.Effects.Len())

	other := npc.NewInstance(wolfTemplate(), "clearing", fixedSource{0})
	assert.NotEqual(t, inst.ID, other.ID)
}

func TestApplyDamage_ClampsAtZero(t *testing.T) {
	inst := npc.NewInstance(wolfTemplate(), "clearing", fixedSource{0})
	inst.ApplyDamage(25)
	assert.Equal(t, 15, inst.CurrentHP)
	assert.True(t, inst.Alive())

	inst.ApplyDamage(100)
	assert.Equal(t, 0, inst.CurrentHP)
	assert.False(t, inst.Alive())
	assert.Equal(t, "dead", inst.HealthDescription())
}

func TestTrySay(t *testing.T) {
	inst := npc.NewInstance(wolfTemplate(), "clearing", fixedSource{0})

	// fixedSource{0} always passes a positive chance roll and picks line 0.
	line, ok := inst.TrySay(time.UnixMilli(1000), fixedSource{0})
	require.True(t, ok)
	assert.Equal(t, "The wolf bares its teeth.", line)

	// Cooldown suppresses the next attempt.
	_, ok = inst.TrySay(time.UnixMilli(5000), fixedSource{0})
	assert.False(t, ok)

	// After the cooldown the gate opens again.
	_, ok = inst.TrySay(time.UnixMilli(9001), fixedSource{0})
	assert.True(t, ok)
}

func TestTrySay_ChanceFailure(t *testing.T) {
	inst := npc.NewInstance(wolfTemplate(), "clearing", fixedSource{0})

	// A high roll fails the 0.5 chance check and must not touch the cooldown.
	_, ok := inst.TrySay(time.UnixMilli(1000), fixedSource{9999})
	assert.False(t, ok)
	assert.True(t, inst.LastTauntTime.IsZero())
}

func TestHealthDescription(t *testing.T) {
	inst := npc.NewInstance(wolfTemplate(), "clearing", fixedSource{0})
	assert.Equal(t, "unharmed", inst.HealthDescription())

	inst.CurrentHP = 10 // 25%
	assert.Equal(t, "heavily wounded", inst.HealthDescription())

	inst.CurrentHP = 2 // 5%
	assert.Equal(t, "critically wounded", inst.HealthDescription())
}
