package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/plexica/plexica/internal/depres"
	"github.com/plexica/plexica/internal/discovery"
	"github.com/plexica/plexica/internal/eventbus"
	"github.com/plexica/plexica/internal/health"
	"github.com/plexica/plexica/internal/logger"
	"github.com/plexica/plexica/internal/manifest"
	"github.com/plexica/plexica/internal/metrics"
	"github.com/plexica/plexica/internal/migration"
	"github.com/plexica/plexica/internal/runtime"
	"github.com/plexica/plexica/internal/store"
)

// TranslationLoader loads a plugin's translation namespaces after
// activation. The real loader lives outside this service; activation calls
// it best-effort.
type TranslationLoader interface {
	LoadNamespaces(ctx context.Context, pluginID string) error
}

type noopTranslations struct{}

func (noopTranslations) LoadNamespaces(context.Context, string) error { return nil }

// Options wires the coordinator's collaborators. Store, Runtime and
// Migrations are required; the rest default to in-memory or no-op
// implementations.
type Options struct {
	Store        *store.Store
	Runtime      runtime.ContainerRuntime
	Migrations   migration.Runner
	Permissions  permissionRegistrar
	Topics       eventbus.TopicRegistrar
	Discovery    discovery.Registry
	Translations TranslationLoader
	Metrics      *metrics.Metrics
	Logger       *logger.Logger

	HealthTimeout  time.Duration
	HealthInterval time.Duration
}

// permissionRegistrar mirrors permission.Registrar without importing the
// package, keeping the coordinator testable against any implementation.
type permissionRegistrar interface {
	Register(ctx context.Context, tenantID, pluginID string, keys []string) error
	Remove(ctx context.Context, tenantID, pluginID string) error
}

// Coordinator orchestrates plugin install, activation, deactivation,
// uninstall and tenant-level toggles. Every operation runs as an
// independent unit of work; the database transaction is the only mutex, so
// the coordinator can run as many horizontally scaled instances.
type Coordinator struct {
	store          *store.Store
	runtime        runtime.ContainerRuntime
	resolver       *depres.Resolver
	migrations     migration.Runner
	permissions    permissionRegistrar
	topics         eventbus.TopicRegistrar
	discovery      discovery.Registry
	translations   TranslationLoader
	poller         *health.Poller
	metrics        *metrics.Metrics
	log            *logger.Logger
	healthTimeout  time.Duration
	healthInterval time.Duration
}

// New creates a Coordinator from Options.
func New(opts Options) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("coordinator requires a store")
	}
	if opts.Runtime == nil {
		return nil, fmt.Errorf("coordinator requires a container runtime")
	}
	if opts.Migrations == nil {
		return nil, fmt.Errorf("coordinator requires a migration runner")
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("coordinator")

	topics := opts.Topics
	if topics == nil {
		topics = eventbus.NewMemoryTopics(log)
	}
	disco := opts.Discovery
	if disco == nil {
		disco = discovery.NewMemoryRegistry(log)
	}
	translations := opts.Translations
	if translations == nil {
		translations = noopTranslations{}
	}

	healthTimeout := opts.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 30 * time.Second
	}
	healthInterval := opts.HealthInterval
	if healthInterval <= 0 {
		healthInterval = time.Second
	}

	return &Coordinator{
		store:          opts.Store,
		runtime:        opts.Runtime,
		resolver:       depres.New(),
		migrations:     opts.Migrations,
		permissions:    opts.Permissions,
		topics:         topics,
		discovery:      disco,
		translations:   translations,
		poller:         health.NewPoller(opts.Runtime, log),
		metrics:        opts.Metrics,
		log:            log,
		healthTimeout:  healthTimeout,
		healthInterval: healthInterval,
	}, nil
}

// RegisterPlugin validates a manifest and persists a new plugin row with
// lifecycle REGISTERED and publication draft.
func (c *Coordinator) RegisterPlugin(ctx context.Context, m *manifest.Manifest) (*store.Plugin, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	plugin := &store.Plugin{
		ID:       m.ID,
		Name:     m.Name,
		Version:  m.Version,
		Manifest: *m,
	}
	if err := c.store.CreatePlugin(ctx, plugin); err != nil {
		return nil, err
	}
	c.opLog("register", "", m.ID).Info("plugin registered")
	return plugin, nil
}

// PublishPlugin marks a registered plugin as installable.
func (c *Coordinator) PublishPlugin(ctx context.Context, pluginID string) error {
	return c.store.SetPublicationStatus(ctx, pluginID, store.PublicationPublished)
}

// UpdateConfiguration re-validates and replaces a tenant's stored
// configuration for an installed plugin.
func (c *Coordinator) UpdateConfiguration(ctx context.Context, tenantID, pluginID string, config map[string]any) (err error) {
	defer c.observe("update_configuration", time.Now(), &err)

	plugin, err := c.store.GetPlugin(ctx, pluginID)
	if err != nil {
		return err
	}
	if _, err = c.store.GetInstallation(ctx, tenantID, pluginID); err != nil {
		return err
	}

	merged := plugin.Manifest.MergeDefaults(config)
	if err = plugin.Manifest.ValidateConfig(merged); err != nil {
		return err
	}
	return c.store.UpdateConfiguration(ctx, tenantID, pluginID, merged)
}

func (c *Coordinator) observe(operation string, start time.Time, err *error) {
	c.metrics.ObserveOperation(operation, *err, time.Since(start))
}

func (c *Coordinator) opLog(operation, tenantID, pluginID string) *logger.Logger {
	fields := map[string]any{"operation": operation, "plugin_id": pluginID}
	if tenantID != "" {
		fields["tenant_id"] = tenantID
	}
	return c.log.WithFields(fields)
}

// installedView builds the resolver's view of everything installed for the
// tenant.
func (c *Coordinator) installedView(ctx context.Context, tenantID string) (map[string]depres.Installed, error) {
	rows, err := c.store.InstalledForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	view := make(map[string]depres.Installed, len(rows))
	for _, row := range rows {
		view[row.PluginID] = depres.Installed{Version: row.Version, Enabled: row.Enabled}
	}
	return view, nil
}

// tenantsWithInstallation resolves the tenants holding installation rows for
// the plugin. Tenant provisioning owns the tenants table; when a row is
// missing the schema naming convention fills the gap.
func (c *Coordinator) tenantsWithInstallation(ctx context.Context, pluginID string) ([]store.Tenant, error) {
	installations, err := c.store.ListInstallations(ctx, pluginID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(installations))
	for _, installation := range installations {
		ids = append(ids, installation.TenantID)
	}

	known, err := c.store.GetTenantsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]store.Tenant, len(known))
	for _, tenant := range known {
		byID[tenant.ID] = tenant
	}

	tenants := make([]store.Tenant, 0, len(ids))
	for _, id := range ids {
		if tenant, ok := byID[id]; ok {
			tenants = append(tenants, tenant)
			continue
		}
		tenants = append(tenants, store.Tenant{ID: id, Name: id, SchemaName: "tenant_" + id})
	}
	return tenants, nil
}

func manifestMigrations(m *manifest.Manifest) []migration.Migration {
	migrations := make([]migration.Migration, 0, len(m.Migrations))
	for _, spec := range m.Migrations {
		migrations = append(migrations, migration.Migration{Name: spec.Name, Statements: spec.Statements})
	}
	return migrations
}
