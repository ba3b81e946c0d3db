package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BATTLERUNE_"

// Server holds all configuration for the sync server.
type Server struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	Sync     SyncConfig     `yaml:"sync" envPrefix:"SYNC_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DB_"`
	Trace    TraceConfig    `yaml:"trace" envPrefix:"TRACE_"`
	Bots     BotsConfig     `yaml:"bots" envPrefix:"BOTS_"`
}

// SyncConfig configures the player sync tick.
type SyncConfig struct {
	TickInterval    time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL"`
	ViewingDistance int32         `yaml:"viewing_distance" env:"VIEWING_DISTANCE"`
	AddThreshold    int           `yaml:"add_threshold" env:"ADD_THRESHOLD"`
	// IntroducePlayers enables the add-player sequence for candidates.
	IntroducePlayers bool   `yaml:"introduce_players" env:"INTRODUCE_PLAYERS"`
	Partition        string `yaml:"partition" env:"PARTITION"` // occupancy | introduced
	Workers          int    `yaml:"workers" env:"WORKERS"`     // 0 = NumCPU
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	DBName   string `yaml:"dbname" env:"NAME"`
	SSLMode  string `yaml:"sslmode" env:"SSLMODE"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// TraceConfig configures the packet trace recorder.
type TraceConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
	Level   int    `yaml:"level" env:"LEVEL"` // zstd level, 1..22
}

// BotsConfig describes the simulated players the headless server runs.
type BotsConfig struct {
	Count int      `yaml:"count" env:"COUNT"`
	Names []string `yaml:"names" env:"NAMES" envSeparator:","`
	// SpawnX/SpawnY/SpawnZ is where bots start; they wander within Radius.
	SpawnX int32 `yaml:"spawn_x" env:"SPAWN_X"`
	SpawnY int32 `yaml:"spawn_y" env:"SPAWN_Y"`
	SpawnZ int32 `yaml:"spawn_z" env:"SPAWN_Z"`
	Radius int32 `yaml:"radius" env:"RADIUS"`
	// AppearanceChance is the per-tick chance a bot changes its look.
	AppearanceChance float64 `yaml:"appearance_chance" env:"APPEARANCE_CHANCE"`
}

// Default returns Server config with sensible defaults.
func Default() Server {
	return Server{
		LogLevel: "info",
		Sync: SyncConfig{
			TickInterval:     600 * time.Millisecond,
			ViewingDistance:  15,
			AddThreshold:     15,
			IntroducePlayers: true,
			Partition:        "occupancy",
		},
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "battlerune",
			Password: "battlerune",
			DBName:   "battlerune",
			SSLMode:  "disable",
		},
		Trace: TraceConfig{
			Path:  "trace/player-sync.jsonl.zst",
			Level: 3,
		},
		Bots: BotsConfig{
			Count:            10,
			SpawnX:           3222,
			SpawnY:           3218,
			Radius:           8,
			AppearanceChance: 0.01,
		},
	}
}

// Load loads config from a YAML file, then applies BATTLERUNE_* environment
// overrides. If the file doesn't exist, defaults are used.
func Load(path string) (Server, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Server) Validate() error {
	switch {
	case c.Sync.TickInterval <= 0:
		return fmt.Errorf("sync.tick_interval must be positive, got %s", c.Sync.TickInterval)
	case c.Sync.ViewingDistance < 0:
		return fmt.Errorf("sync.viewing_distance must not be negative, got %d", c.Sync.ViewingDistance)
	case c.Sync.AddThreshold < 0:
		return fmt.Errorf("sync.add_threshold must not be negative, got %d", c.Sync.AddThreshold)
	case c.Sync.Workers < 0:
		return fmt.Errorf("sync.workers must not be negative, got %d", c.Sync.Workers)
	case c.Trace.Enabled && c.Trace.Path == "":
		return fmt.Errorf("trace.path is required when trace is enabled")
	case c.Trace.Level < 1 || c.Trace.Level > 22:
		return fmt.Errorf("trace.level must be in 1..22, got %d", c.Trace.Level)
	case c.Bots.Count < 0:
		return fmt.Errorf("bots.count must not be negative, got %d", c.Bots.Count)
	case c.Bots.AppearanceChance < 0 || c.Bots.AppearanceChance > 1:
		return fmt.Errorf("bots.appearance_chance must be in [0,1], got %v", c.Bots.AppearanceChance)
	}
	return nil
}
