package settings

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	platformerrors "github.com/plexica/plexica/pkg/errors"
)

// Settings is the process configuration for the coordinator daemon.
type Settings struct {
	Database  Database  `yaml:"database" validate:"required"`
	Runtime   Runtime   `yaml:"runtime"`
	Health    Health    `yaml:"health"`
	Migration Migration `yaml:"migration"`
	Log       Log       `yaml:"log"`
}

// Database selects the backing store.
type Database struct {
	Driver string `yaml:"driver" validate:"required,oneof=postgres sqlite"`
	DSN    string `yaml:"dsn" validate:"required"`
}

// Runtime selects the container backend.
type Runtime struct {
	Backend string `yaml:"backend" validate:"omitempty,oneof=memory noop"`
}

// Health bounds the post-start readiness poll.
type Health struct {
	Timeout  time.Duration `yaml:"timeout" validate:"omitempty,min=0"`
	Interval time.Duration `yaml:"interval" validate:"omitempty,min=0"`
}

// Migration sizes the per-tenant migration worker pool.
type Migration struct {
	Workers int `yaml:"workers" validate:"omitempty,min=1,max=64"`
}

// Log controls the structured logger.
type Log struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Pretty bool   `yaml:"pretty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Defaults returns settings suitable for local development against sqlite.
func Defaults() Settings {
	return Settings{
		Database:  Database{Driver: "sqlite", DSN: "plexica.db"},
		Runtime:   Runtime{Backend: "memory"},
		Health:    Health{Timeout: 30 * time.Second, Interval: time.Second},
		Migration: Migration{Workers: 4},
		Log:       Log{Level: "info"},
	}
}

// Load reads a YAML settings file, fills unset fields from Defaults, and
// validates the result.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, platformerrors.NewValidationError("settings", "cannot load settings", err)
	}
	return Parse(data)
}

// Parse decodes YAML settings and applies defaults to unset fields.
func Parse(data []byte) (Settings, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Settings{}, platformerrors.NewValidationError("settings", "invalid YAML", err)
	}
	applyDefaults(&cfg)
	if err := validate.Struct(&cfg); err != nil {
		return Settings{}, platformerrors.NewValidationError("settings", "invalid settings", err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Settings) {
	def := Defaults()
	if cfg.Runtime.Backend == "" {
		cfg.Runtime.Backend = def.Runtime.Backend
	}
	if cfg.Health.Timeout == 0 {
		cfg.Health.Timeout = def.Health.Timeout
	}
	if cfg.Health.Interval == 0 {
		cfg.Health.Interval = def.Health.Interval
	}
	if cfg.Migration.Workers == 0 {
		cfg.Migration.Workers = def.Migration.Workers
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}
