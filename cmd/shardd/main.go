// Package main runs a single world shard: it loads content, connects to
// PostgreSQL, and drives the combat simulation loop.
package main

import (
	"context"
	"flag"
	"log"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/veilwood/mud/internal/config"
	"github.com/veilwood/mud/internal/content"
	"github.com/veilwood/mud/internal/game/assist"
	"github.com/veilwood/mud/internal/game/cooldown"
	"github.com/veilwood/mud/internal/game/dice"
	"github.com/veilwood/mud/internal/game/npc"
	"github.com/veilwood/mud/internal/observability"
	"github.com/veilwood/mud/internal/scripting"
	"github.com/veilwood/mud/internal/server"
	"github.com/veilwood/mud/internal/shard"
	"github.com/veilwood/mud/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	shardID := flag.String("shard", "veilwood-1", "shard identifier for persistence")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	base, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer base.Sync()
	logger := observability.ShardLogger(base, *shardID)

	logger.Info("starting Veilwood shard",
		zap.String("config", *configPath),
		zap.Duration("tick_interval", cfg.Shard.TickInterval),
	)

	ctx := context.Background()

	// Database
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	states := postgres.NewCombatStateStore(pool.DB())
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	// Content
	store, err := content.LoadStore(cfg.Shard.ContentDir)
	if err != nil {
		logger.Fatal("loading content", zap.Error(err))
	}
	zones, err := content.LoadZones(filepath.Join(cfg.Shard.ContentDir, "zones"))
	if err != nil {
		logger.Fatal("loading zones", zap.Error(err))
	}
	logger.Info("content loaded",
		zap.Int("effects", len(store.Effects().All())),
		zap.Int("templates", len(store.Templates())),
		zap.Int("zones", len(zones)),
	)

	// Dice and scripting
	roller := dice.NewLoggedRoller(dice.NewCryptoSource(), logger)
	scripts := scripting.NewManager(roller, logger)
	loadScripts := func() error {
		for _, z := range zones {
			if err := scripts.LoadZone(z.ID, cfg.Shard.ScriptDir, cfg.Shard.ScriptInstructionLimit); err != nil {
				return err
			}
		}
		return nil
	}
	if err := loadScripts(); err != nil {
		logger.Fatal("loading zone scripts", zap.Error(err))
	}

	// World population
	npcs := npc.NewManager(roller.Source())
	spawnTable := make(map[string][]npc.RoomSpawn)
	roomsByZone := make(map[string][]string, len(zones))
	for _, z := range zones {
		roomsByZone[z.ID] = z.RoomIDs()
		for roomID, spawns := range z.SpawnTable() {
			spawnTable[roomID] = spawns
		}
	}
	respawn := npc.NewRespawnManager(spawnTable, store.Templates())
	for _, rooms := range roomsByZone {
		for _, roomID := range rooms {
			respawn.PopulateRoom(roomID, npcs)
		}
	}

	// Combat engine
	cooldowns := cooldown.NewRegistry()
	coordinator := assist.NewCoordinator(cooldown.NewRegistry(), cfg.Combat.Threat.Tuning(), cfg.Combat.Assist)
	protected := make(map[string]bool, len(cfg.Shard.ProtectedRooms))
	for _, roomID := range cfg.Shard.ProtectedRooms {
		protected[roomID] = true
	}
	engine := shard.NewEngine(shard.Options{
		NPCs:           npcs,
		Effects:        store.Effects(),
		Cooldowns:      cooldowns,
		Assist:         coordinator,
		Respawn:        respawn,
		Heat:           shard.NewHeatLedger(cfg.Shard.HeatDecayPerSec),
		Tuning:         cfg.Combat.Threat.Tuning(),
		Mitigation:     cfg.Combat.Mitigation,
		Roller:         roller,
		Logger:         logger,
		Scripts:        scripts,
		Brains:         store.Brains(),
		ProtectedRooms: protected,
	})
	engine.Broadcast = func(roomID, msg string) {
		logger.Info("room broadcast", zap.String("room", roomID), zap.String("msg", msg))
	}

	// Script callbacks into the live world
	scripts.GetNPC = func(id string) *scripting.NPCInfo {
		inst, ok := npcs.Get(id)
		if !ok {
			return nil
		}
		return &scripting.NPCInfo{
			ID:        inst.ID,
			Name:      inst.Name,
			HPPercent: inst.HPPercent(),
			Role:      inst.Role,
			Alive:     inst.Alive(),
		}
	}
	scripts.TopThreat = func(npcID string) (string, float64) {
		inst, ok := npcs.Get(npcID)
		if !ok {
			return "", 0
		}
		return inst.Threat.Top()
	}
	scripts.CrimeHeat = func(entityID string) float64 {
		return engine.Heat().Heat(entityID, time.Now())
	}
	scripts.HasEffect = func(entityID, effectID string) bool {
		inst, ok := npcs.Get(entityID)
		if !ok {
			return false
		}
		return inst.Effects.Has(effectID, time.Now())
	}
	scripts.Broadcast = engine.Broadcast

	// Restore persisted combat state. Rows are keyed by spawn slot, so a
	// freshly populated instance picks up the state its predecessor saved.
	restoreStart := time.Now()
	saved, err := states.LoadAll(ctx, *shardID)
	if err != nil {
		logger.Fatal("loading combat states", zap.Error(err))
	}
	bySlot := make(map[string]*npc.Instance)
	for _, rooms := range roomsByZone {
		for _, roomID := range rooms {
			for _, inst := range npcs.InstancesInRoom(roomID) {
				if inst.SlotKey != "" {
					bySlot[inst.SlotKey] = inst
				}
			}
		}
	}
	restored := 0
	for slotKey, state := range saved {
		inst, ok := bySlot[slotKey]
		if !ok {
			// Slot no longer exists (zone or spawn config changed).
			if err := states.Delete(ctx, *shardID, slotKey); err != nil {
				logger.Warn("deleting orphaned combat state",
					zap.String("slot", slotKey), zap.Error(err))
			}
			continue
		}
		for attacker, amount := range state.Threat {
			inst.Threat.Entries[attacker] = amount
		}
		if err := inst.Effects.Restore(store.Effects(), state.Effects); err != nil {
			logger.Warn("restoring effects", zap.String("slot", slotKey), zap.Error(err))
		}
		cooldowns.Restore(inst.ID, state.Cooldowns)
		restored++
	}
	logger.Info("combat state restored",
		zap.Int("rows", len(saved)),
		zap.Int("matched", restored),
		zap.Duration("elapsed", time.Since(restoreStart)),
	)

	// A reaped NPC's slot starts over; drop its persisted state.
	respawn.OnReap = func(inst *npc.Instance) {
		if inst.SlotKey == "" {
			return
		}
		if err := states.Delete(ctx, *shardID, inst.SlotKey); err != nil {
			logger.Warn("deleting combat state",
				zap.String("slot", inst.SlotKey), zap.Error(err))
		}
	}

	// Tick loop
	ticker := shard.NewTicker(cfg.Shard.TickInterval)
	for zoneID, rooms := range roomsByZone {
		rooms := rooms
		ticker.RegisterZone(zoneID, func(now time.Time) {
			engine.TickRooms(rooms, now)
		})
	}

	// Hot reload
	watcher, err := content.NewWatcher(logger, func(changed []string) {
		if err := store.Reload(); err != nil {
			logger.Error("content reload failed", zap.Error(err))
			return
		}
		if err := loadScripts(); err != nil {
			logger.Error("script reload failed", zap.Error(err))
		}
	}, content.DefaultDebounce,
		filepath.Join(cfg.Shard.ContentDir, "effects"),
		filepath.Join(cfg.Shard.ContentDir, "npcs"),
		cfg.Shard.ScriptDir,
	)
	if err != nil {
		logger.Fatal("starting content watcher", zap.Error(err))
	}

	// Snapshot loop
	snapshot := func(now time.Time) {
		for _, rooms := range roomsByZone {
			for _, roomID := range rooms {
				for _, inst := range npcs.InstancesInRoom(roomID) {
					if inst.SlotKey == "" {
						continue
					}
					state := postgres.CombatState{
						Threat:    inst.Threat.Entries,
						Effects:   inst.Effects.Export(),
						Cooldowns: cooldowns.Export(inst.ID, now),
					}
					if err := states.Save(ctx, *shardID, inst.SlotKey, state); err != nil {
						logger.Warn("saving combat state",
							zap.String("slot", inst.SlotKey), zap.Error(err))
					}
				}
			}
		}
	}

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			for {
				time.Sleep(30 * time.Second)
				if err := pool.Health(ctx, 5*time.Second); err != nil {
					logger.Warn("database health check failed", zap.Error(err))
				}
			}
		},
		StopFn: func() {
			pool.Close()
		},
	})

	lifecycle.Add("content-watcher", watcher)

	tickCtx, stopTicks := context.WithCancel(ctx)
	lifecycle.Add("ticker", &server.FuncService{
		StartFn: func() error {
			ticker.Start(tickCtx)
			<-tickCtx.Done()
			return nil
		},
		StopFn: stopTicks,
	})

	if cfg.Shard.SnapshotInterval > 0 {
		snapCtx, stopSnaps := context.WithCancel(ctx)
		lifecycle.Add("snapshots", &server.FuncService{
			StartFn: func() error {
				t := time.NewTicker(cfg.Shard.SnapshotInterval)
				defer t.Stop()
				for {
					select {
					case <-snapCtx.Done():
						return nil
					case now := <-t.C:
						snapshot(now)
					}
				}
			},
			StopFn: func() {
				stopSnaps()
				// Final snapshot so a clean shutdown loses nothing.
				snapshot(time.Now())
			},
		})
	}

	logger.Info("shard initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("shard error", zap.Error(err))
	}
}
