package npc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilwood/mud/internal/game/npc"
)

func respawnFixture() (*npc.RespawnManager, *npc.Manager) {
	tmpl := wolfTemplate()
	tmpl.RespawnDelay = "2m"
	spawns := map[string][]npc.RoomSpawn{
		"clearing": {{TemplateID: tmpl.ID, Max: 2}},
	}
	templates := map[string]*npc.Template{tmpl.ID: tmpl}
	return npc.NewRespawnManager(spawns, templates), npc.NewManager(fixedSource{0})
}

func TestPopulateRoom_FillsToCap(t *testing.T) {
	rm, mgr := respawnFixture()
	rm.PopulateRoom("clearing", mgr)
	assert.Len(t, mgr.InstancesInRoom("clearing"), 2)

	// Idempotent at cap.
	rm.PopulateRoom("clearing", mgr)
	assert.Len(t, mgr.InstancesInRoom("clearing"), 2)
}

func TestPopulateRoom_RemovesExcess(t *testing.T) {
	rm, mgr := respawnFixture()
	for i := 0; i < 4; i++ {
		_, err := mgr.Spawn(wolfTemplate(), "clearing")
		require.NoError(t, err)
	}
	rm.PopulateRoom("clearing", mgr)
	assert.Len(t, mgr.InstancesInRoom("clearing"), 2)
}

func TestReapDeadSchedulesRespawn(t *testing.T) {
	rm, mgr := respawnFixture()
	rm.PopulateRoom("clearing", mgr)

	victim := mgr.InstancesInRoom("clearing")[0]
	victim.ApplyDamage(victim.MaxHP)

	now := time.UnixMilli(1000)
	rm.ReapDead([]string{"clearing"}, now, mgr)
	assert.Len(t, mgr.InstancesInRoom("clearing"), 1)

	// Not ready yet.
	rm.Tick(now.Add(time.Minute), mgr)
	assert.Len(t, mgr.InstancesInRoom("clearing"), 1)

	// Ready after the template's 2m delay.
	rm.Tick(now.Add(2*time.Minute), mgr)
	assert.Len(t, mgr.InstancesInRoom("clearing"), 2)
}

func TestPopulateRoom_AssignsStableSlotKeys(t *testing.T) {
	rm, mgr := respawnFixture()
	rm.PopulateRoom("clearing", mgr)

	var keys []string
	for _, inst := range mgr.InstancesInRoom("clearing") {
		keys = append(keys, inst.SlotKey)
	}
	assert.ElementsMatch(t, []string{
		npc.SlotKey("forest-wolf", "clearing", 0),
		npc.SlotKey("forest-wolf", "clearing", 1),
	}, keys)
}

func TestRespawn_ReusesFreedSlot(t *testing.T) {
	rm, mgr := respawnFixture()
	rm.PopulateRoom("clearing", mgr)

	var victim *npc.Instance
	for _, inst := range mgr.InstancesInRoom("clearing") {
		if inst.SlotKey == npc.SlotKey("forest-wolf", "clearing", 0) {
			victim = inst
		}
	}
	require.NotNil(t, victim)
	victim.ApplyDamage(victim.MaxHP)

	now := time.UnixMilli(1000)
	rm.ReapDead([]string{"clearing"}, now, mgr)
	rm.Tick(now.Add(2*time.Minute), mgr)

	var keys []string
	for _, inst := range mgr.InstancesInRoom("clearing") {
		keys = append(keys, inst.SlotKey)
	}
	// The replacement takes over the dead wolf's slot.
	assert.ElementsMatch(t, []string{
		npc.SlotKey("forest-wolf", "clearing", 0),
		npc.SlotKey("forest-wolf", "clearing", 1),
	}, keys)
}

func TestReapDead_InvokesOnReap(t *testing.T) {
	rm, mgr := respawnFixture()
	rm.PopulateRoom("clearing", mgr)

	var reaped []string
	rm.OnReap = func(inst *npc.Instance) {
		reaped = append(reaped, inst.SlotKey)
	}

	victim := mgr.InstancesInRoom("clearing")[0]
	victim.ApplyDamage(victim.MaxHP)
	rm.ReapDead([]string{"clearing"}, time.UnixMilli(1000), mgr)

	assert.Equal(t, []string{victim.SlotKey}, reaped)
}

func TestTick_RespectsPopulationCap(t *testing.T) {
	rm, mgr := respawnFixture()
	rm.PopulateRoom("clearing", mgr)

	now := time.UnixMilli(1000)
	rm.Schedule("forest-wolf", "clearing", now, time.Second)
	rm.Tick(now.Add(2*time.Second), mgr)
	assert.Len(t, mgr.InstancesInRoom("clearing"), 2)
}

func TestResolvedDelay(t *testing.T) {
	tmpl := wolfTemplate()
	tmpl.RespawnDelay = "2m"
	spawns := map[string][]npc.RoomSpawn{
		"clearing": {{TemplateID: tmpl.ID, Max: 1, RespawnDelay: 30 * time.Second}},
		"thicket":  {{TemplateID: tmpl.ID, Max: 1}},
	}
	rm := npc.NewRespawnManager(spawns, map[string]*npc.Template{tmpl.ID: tmpl})

	// Room override wins; otherwise the template delay applies.
	assert.Equal(t, 30*time.Second, rm.ResolvedDelay(tmpl.ID, "clearing"))
	assert.Equal(t, 2*time.Minute, rm.ResolvedDelay(tmpl.ID, "thicket"))
	assert.Equal(t, time.Duration(0), rm.ResolvedDelay("unknown", "clearing"))
}

func TestSchedule_ZeroDelayIsNoOp(t *testing.T) {
	rm, mgr := respawnFixture()
	now := time.UnixMilli(1000)
	rm.Schedule("forest-wolf", "clearing", now, 0)
	rm.Tick(now.Add(time.Hour), mgr)
	assert.Empty(t, mgr.InstancesInRoom("clearing"))
}
