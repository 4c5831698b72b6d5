// Package config provides Viper-based configuration loading for the shard server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/veilwood/mud/internal/game/assist"
	"github.com/veilwood/mud/internal/game/mitigation"
	"github.com/veilwood/mud/internal/game/threat"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// ShardConfig holds simulation-loop and content settings for one shard.
type ShardConfig struct {
	// TickInterval is the decision-pump period.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// ContentDir is the root of the YAML content tree (effects/, npcs/).
	ContentDir string `mapstructure:"content_dir"`
	// ScriptDir is the root of the zone Lua scripts.
	ScriptDir string `mapstructure:"script_dir"`
	// ScriptInstructionLimit caps Lua opcodes per hook call; 0 = default.
	ScriptInstructionLimit int `mapstructure:"script_instruction_limit"`
	// ProtectedRooms lists rooms where guards enforce crime heat.
	ProtectedRooms []string `mapstructure:"protected_rooms"`
	// HeatDecayPerSec is crime heat lost per whole second.
	HeatDecayPerSec float64 `mapstructure:"heat_decay_per_sec"`
	// SnapshotInterval is how often combat state is persisted; 0 disables.
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
}

// ThreatConfig holds the threat-ledger tuning knobs.
type ThreatConfig struct {
	DecayPerSec     float64       `mapstructure:"decay_per_sec"`
	PruneBelow      float64       `mapstructure:"prune_below"`
	StickyWindow    time.Duration `mapstructure:"sticky_window"`
	StickyMargin    float64       `mapstructure:"sticky_margin"`
	TauntDuration   time.Duration `mapstructure:"taunt_duration"`
	ForgetOnStealth bool          `mapstructure:"forget_on_stealth"`
}

// Tuning converts the config section to the domain tuning struct.
func (t ThreatConfig) Tuning() threat.Tuning {
	return threat.Tuning{
		DecayPerSec:     t.DecayPerSec,
		PruneBelow:      t.PruneBelow,
		StickyWindow:    t.StickyWindow,
		StickyMargin:    t.StickyMargin,
		TauntDuration:   t.TauntDuration,
		ForgetOnStealth: t.ForgetOnStealth,
	}
}

// CombatConfig groups the combat-resolution tuning sections.
type CombatConfig struct {
	Threat     ThreatConfig      `mapstructure:"threat"`
	Mitigation mitigation.Config `mapstructure:"mitigation"`
	Assist     assist.Settings   `mapstructure:"assist"`
}

// Config is the top-level application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Shard    ShardConfig    `mapstructure:"shard"`
	Combat   CombatConfig   `mapstructure:"combat"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateShard(c.Shard); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateCombat(c.Combat); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateShard(s ShardConfig) error {
	var errs []string
	if s.TickInterval <= 0 {
		errs = append(errs, fmt.Sprintf("shard.tick_interval must be > 0, got %s", s.TickInterval))
	}
	if s.ContentDir == "" {
		errs = append(errs, "shard.content_dir must not be empty")
	}
	if s.ScriptInstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("shard.script_instruction_limit must be >= 0, got %d", s.ScriptInstructionLimit))
	}
	if s.HeatDecayPerSec < 0 {
		errs = append(errs, fmt.Sprintf("shard.heat_decay_per_sec must be >= 0, got %g", s.HeatDecayPerSec))
	}
	if s.SnapshotInterval < 0 {
		errs = append(errs, fmt.Sprintf("shard.snapshot_interval must be >= 0, got %s", s.SnapshotInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateCombat(c CombatConfig) error {
	var errs []string
	if c.Threat.DecayPerSec < 0 {
		errs = append(errs, fmt.Sprintf("combat.threat.decay_per_sec must be >= 0, got %g", c.Threat.DecayPerSec))
	}
	if c.Threat.StickyWindow < 0 {
		errs = append(errs, fmt.Sprintf("combat.threat.sticky_window must be >= 0, got %s", c.Threat.StickyWindow))
	}
	if c.Threat.StickyMargin < 0 {
		errs = append(errs, fmt.Sprintf("combat.threat.sticky_margin must be >= 0, got %g", c.Threat.StickyMargin))
	}
	if c.Threat.TauntDuration < 0 {
		errs = append(errs, fmt.Sprintf("combat.threat.taunt_duration must be >= 0, got %s", c.Threat.TauntDuration))
	}
	if c.Assist.SharePct < 0 || c.Assist.SharePct > 1 {
		errs = append(errs, fmt.Sprintf("combat.assist.share_pct must be in [0, 1], got %g", c.Assist.SharePct))
	}
	if c.Assist.MinShare > c.Assist.MaxShare {
		errs = append(errs, "combat.assist.min_share must not exceed combat.assist.max_share")
	}
	for name, chance := range map[string]float64{
		"combat.mitigation.crit_chance":   c.Mitigation.CritChance,
		"combat.mitigation.glance_chance": c.Mitigation.GlanceChance,
		"combat.mitigation.parry_chance":  c.Mitigation.ParryChance,
		"combat.mitigation.block_chance":  c.Mitigation.BlockChance,
	} {
		if chance < 0 || chance > 1 {
			errs = append(errs, fmt.Sprintf("%s must be in [0, 1], got %g", name, chance))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with VEILWOOD_ prefix
	v.SetEnvPrefix("VEILWOOD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "veilwood")
	v.SetDefault("database.password", "veilwood")
	v.SetDefault("database.name", "veilwood")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("shard.tick_interval", "500ms")
	v.SetDefault("shard.content_dir", "content")
	v.SetDefault("shard.script_dir", "content/scripts/zones")
	v.SetDefault("shard.script_instruction_limit", 0)
	v.SetDefault("shard.heat_decay_per_sec", 0.5)
	v.SetDefault("shard.snapshot_interval", "30s")

	def := threat.DefaultTuning()
	v.SetDefault("combat.threat.decay_per_sec", def.DecayPerSec)
	v.SetDefault("combat.threat.prune_below", def.PruneBelow)
	v.SetDefault("combat.threat.sticky_window", def.StickyWindow.String())
	v.SetDefault("combat.threat.sticky_margin", def.StickyMargin)
	v.SetDefault("combat.threat.taunt_duration", def.TauntDuration.String())
	v.SetDefault("combat.threat.forget_on_stealth", def.ForgetOnStealth)

	mit := mitigation.DefaultConfig()
	v.SetDefault("combat.mitigation.crit_chance", mit.CritChance)
	v.SetDefault("combat.mitigation.crit_multiplier", mit.CritMultiplier)
	v.SetDefault("combat.mitigation.glance_chance", mit.GlanceChance)
	v.SetDefault("combat.mitigation.glance_multiplier", mit.GlanceMultiplier)
	v.SetDefault("combat.mitigation.parry_enabled", mit.ParryEnabled)
	v.SetDefault("combat.mitigation.parry_chance", mit.ParryChance)
	v.SetDefault("combat.mitigation.block_enabled", mit.BlockEnabled)
	v.SetDefault("combat.mitigation.block_chance", mit.BlockChance)
	v.SetDefault("combat.mitigation.block_multiplier", mit.BlockMultiplier)
	v.SetDefault("combat.mitigation.armor_k", mit.ArmorK)
	v.SetDefault("combat.mitigation.cap_reduction", mit.CapReduction)
	v.SetDefault("combat.mitigation.min_damage", mit.MinDamage)

	as := assist.DefaultSettings()
	v.SetDefault("combat.assist.share_pct", as.SharePct)
	v.SetDefault("combat.assist.min_share", as.MinShare)
	v.SetDefault("combat.assist.max_share", as.MaxShare)
	v.SetDefault("combat.assist.cooldown", as.Cooldown.String())
	v.SetDefault("combat.assist.max_allies", as.MaxAllies)
	v.SetDefault("combat.assist.open_area", as.OpenArea)
	v.SetDefault("combat.assist.max_room_distance", as.MaxRoomDistance)
}
