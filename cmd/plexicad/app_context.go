package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/plexica/plexica/internal/coordinator"
	"github.com/plexica/plexica/internal/logger"
	"github.com/plexica/plexica/internal/metrics"
	"github.com/plexica/plexica/internal/migration"
	"github.com/plexica/plexica/internal/permission"
	"github.com/plexica/plexica/internal/runtime"
	"github.com/plexica/plexica/internal/settings"
	"github.com/plexica/plexica/internal/store"
)

// appContext holds the wired services a command operates on.
type appContext struct {
	settings settings.Settings
	log      *logger.Logger
	store    *store.Store
	coord    *coordinator.Coordinator
}

// buildAppContext loads settings, connects the store, and wires the
// coordinator with its side-effect services.
func buildAppContext(flags *rootFlags) (*appContext, error) {
	cfg := settings.Defaults()
	if flags.settingsPath != "" {
		loaded, err := settings.Load(flags.settingsPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	level := cfg.Log.Level
	if flags.verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, Pretty: cfg.Log.Pretty})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := store.Open(store.Driver(cfg.Database.Driver), cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	st := store.New(db)

	containerRuntime, err := runtime.NewRuntime(runtime.Backend(cfg.Runtime.Backend))
	if err != nil {
		return nil, err
	}

	migrations, err := migration.NewPooledRunner(st, cfg.Migration.Workers, log)
	if err != nil {
		return nil, err
	}

	coord, err := coordinator.New(coordinator.Options{
		Store:          st,
		Runtime:        containerRuntime,
		Migrations:     migrations,
		Permissions:    permission.NewStoreRegistrar(st, log),
		Metrics:        metrics.New(prometheus.DefaultRegisterer),
		Logger:         log,
		HealthTimeout:  cfg.Health.Timeout,
		HealthInterval: cfg.Health.Interval,
	})
	if err != nil {
		return nil, err
	}

	return &appContext{settings: cfg, log: log, store: st, coord: coord}, nil
}
