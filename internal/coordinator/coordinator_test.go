package coordinator

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/plexica/plexica/internal/discovery"
	"github.com/plexica/plexica/internal/eventbus"
	"github.com/plexica/plexica/internal/lifecycle"
	"github.com/plexica/plexica/internal/logger"
	"github.com/plexica/plexica/internal/manifest"
	"github.com/plexica/plexica/internal/metrics"
	"github.com/plexica/plexica/internal/migration"
	"github.com/plexica/plexica/internal/permission"
	"github.com/plexica/plexica/internal/runtime"
	"github.com/plexica/plexica/internal/store"
)

// countingRuntime wraps the in-memory runtime with call counters and an
// optional scripted health sequence.
type countingRuntime struct {
	*runtime.MemoryRuntime

	startCalls  atomic.Int64
	stopCalls   atomic.Int64
	removeCalls atomic.Int64
	healthCalls atomic.Int64

	startErr     error
	healthScript func(call int64) runtime.Health
	removeHook   func()
}

func (c *countingRuntime) Start(ctx context.Context, pluginID string, config runtime.ContainerConfig) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.startCalls.Add(1)
	return c.MemoryRuntime.Start(ctx, pluginID, config)
}

func (c *countingRuntime) Stop(ctx context.Context, pluginID string) error {
	c.stopCalls.Add(1)
	return c.MemoryRuntime.Stop(ctx, pluginID)
}

func (c *countingRuntime) Remove(ctx context.Context, pluginID string) error {
	c.removeCalls.Add(1)
	if c.removeHook != nil {
		c.removeHook()
	}
	return c.MemoryRuntime.Remove(ctx, pluginID)
}

func (c *countingRuntime) Health(ctx context.Context, pluginID string) (runtime.Health, error) {
	call := c.healthCalls.Add(1)
	if c.healthScript != nil {
		return c.healthScript(call), nil
	}
	return c.MemoryRuntime.Health(ctx, pluginID)
}

// scriptedMigrations is a Runner whose per-tenant outcome is scripted.
type scriptedMigrations struct {
	runs        atomic.Int64
	failAll     bool
	failTenants map[string]bool
}

func (m *scriptedMigrations) Run(_ context.Context, pluginID string, _ []migration.Migration, tenants []store.Tenant) []migration.TenantResult {
	m.runs.Add(1)
	results := make([]migration.TenantResult, 0, len(tenants))
	for _, tenant := range tenants {
		var err error
		if m.failAll || m.failTenants[tenant.ID] {
			err = &migrationFailure{tenantID: tenant.ID, pluginID: pluginID}
		}
		results = append(results, migration.TenantResult{TenantID: tenant.ID, Err: err})
	}
	return results
}

type migrationFailure struct{ tenantID, pluginID string }

func (f *migrationFailure) Error() string {
	return "scripted migration failure for tenant " + f.tenantID
}

type testEnv struct {
	coord      *Coordinator
	store      *store.Store
	runtime    *countingRuntime
	topics     *eventbus.MemoryTopics
	discovery  *discovery.MemoryRegistry
	migrations *scriptedMigrations
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "plexica.db") + "?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
	db, err := store.Open(store.DriverSQLite, dsn)
	require.NoError(t, err)

	s := store.New(db)
	require.NoError(t, s.AutoMigrate())

	env := &testEnv{
		store:      s,
		runtime:    &countingRuntime{MemoryRuntime: runtime.NewMemoryRuntime()},
		topics:     eventbus.NewMemoryTopics(logger.Nop()),
		discovery:  discovery.NewMemoryRegistry(logger.Nop()),
		migrations: &scriptedMigrations{},
	}

	env.coord, err = New(Options{
		Store:          s,
		Runtime:        env.runtime,
		Migrations:     env.migrations,
		Permissions:    permission.NewStoreRegistrar(s, logger.Nop()),
		Topics:         env.topics,
		Discovery:      env.discovery,
		Metrics:        metrics.New(prometheus.NewRegistry()),
		Logger:         logger.Nop(),
		HealthTimeout:  500 * time.Millisecond,
		HealthInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	return env
}

func analyticsManifest() *manifest.Manifest {
	return &manifest.Manifest{
		ID:      "analytics",
		Name:    "Analytics",
		Version: "1.0.0",
		ConfigFields: []manifest.ConfigField{
			{Key: "retention_days", Type: manifest.FieldNumber, Default: 30.0},
		},
		Permissions: []manifest.Permission{{Key: "reports.read"}},
		Runtime: manifest.Runtime{
			Image:          "plexica/analytics:1.0.0",
			Port:           8080,
			HealthEndpoint: "/healthz",
		},
		Events: manifest.Events{Publishes: []string{"analytics.report.created"}},
		Migrations: []manifest.MigrationSpec{{
			Name:       "001_init",
			Statements: []string{`CREATE TABLE IF NOT EXISTS {{schema}}_reports (id INTEGER PRIMARY KEY)`},
		}},
		Services: []manifest.Service{{Name: "analytics-api", Path: "/api/analytics"}},
		Frontend: manifest.Frontend{RemoteEntry: "/plugins/analytics/remoteEntry.js", Scope: "analytics"},
	}
}

func (env *testEnv) registerPublished(t *testing.T, m *manifest.Manifest) {
	t.Helper()
	ctx := context.Background()
	_, err := env.coord.RegisterPlugin(ctx, m)
	require.NoError(t, err)
	require.NoError(t, env.coord.PublishPlugin(ctx, m.ID))
}

func (env *testEnv) status(t *testing.T, pluginID string) lifecycle.Status {
	t.Helper()
	plugin, err := env.store.GetPlugin(context.Background(), pluginID)
	require.NoError(t, err)
	return plugin.LifecycleStatus
}

func TestRegisterPluginStartsRegisteredDraft(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	ctx := context.Background()

	plugin, err := env.coord.RegisterPlugin(ctx, analyticsManifest())
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusRegistered, plugin.LifecycleStatus)
	require.Equal(t, store.PublicationDraft, plugin.PublicationStatus)

	// Installing before publication is rejected.
	_, err = env.coord.Install(ctx, "t1", "analytics", nil)
	require.Error(t, err)
}

func TestRegisterPluginRejectsInvalidManifest(t *testing.T) {
	t.Parallel()
	env := newEnv(t)

	bad := analyticsManifest()
	bad.Version = "not-semver"
	_, err := env.coord.RegisterPlugin(context.Background(), bad)
	require.Error(t, err)
}

func TestUpdateConfiguration(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	ctx := context.Background()
	env.registerPublished(t, analyticsManifest())

	_, err := env.coord.Install(ctx, "t1", "analytics", nil)
	require.NoError(t, err)

	require.NoError(t, env.coord.UpdateConfiguration(ctx, "t1", "analytics", map[string]any{"retention_days": 90.0}))

	installation, err := env.store.GetInstallation(ctx, "t1", "analytics")
	require.NoError(t, err)
	require.EqualValues(t, 90.0, installation.Configuration["retention_days"])

	// Bad shapes are rejected without touching the row.
	err = env.coord.UpdateConfiguration(ctx, "t1", "analytics", map[string]any{"retention_days": "ninety"})
	require.Error(t, err)
}
