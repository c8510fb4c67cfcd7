package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/plexica/plexica/internal/lifecycle"
	platformerrors "github.com/plexica/plexica/pkg/errors"
)

// Store wraps the relational database behind the coordinator. All methods
// take a context and run against the store's current connection, which may
// be a transaction handle obtained through WithTx.
type Store struct {
	db *gorm.DB
}

// New creates a Store on top of an open gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the schema for all platform tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&Plugin{},
		&TenantInstallation{},
		&PermissionGrant{},
		&Tenant{},
	)
}

// WithTx runs fn inside one database transaction. The Store passed to fn is
// bound to that transaction; returning an error rolls everything back.
// Transactions are kept short: no runtime or migration calls belong inside.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Exec runs one raw SQL statement. The migration runner uses it for
// schema-qualified plugin migrations.
func (s *Store) Exec(ctx context.Context, sql string, args ...any) error {
	return s.db.WithContext(ctx).Exec(sql, args...).Error
}

// CreatePlugin persists a new plugin row. Lifecycle starts at REGISTERED.
func (s *Store) CreatePlugin(ctx context.Context, plugin *Plugin) error {
	if plugin.LifecycleStatus == "" {
		plugin.LifecycleStatus = lifecycle.StatusRegistered
	}
	if plugin.PublicationStatus == "" {
		plugin.PublicationStatus = PublicationDraft
	}
	if err := s.db.WithContext(ctx).Create(plugin).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("plugin '%s' is already registered", plugin.ID)
		}
		return fmt.Errorf("failed to create plugin: %w", err)
	}
	return nil
}

// GetPlugin fetches one plugin by id.
func (s *Store) GetPlugin(ctx context.Context, pluginID string) (*Plugin, error) {
	var plugin Plugin
	err := s.db.WithContext(ctx).First(&plugin, "id = ?", pluginID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, platformerrors.NewPluginNotFoundError(pluginID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plugin '%s': %w", pluginID, err)
	}
	return &plugin, nil
}

// GetPluginLocked fetches one plugin by id holding a row-level write lock
// until the surrounding transaction commits. Every state-machine decision
// (first-install detection, the ACTIVE check, the last-enabled count, the
// post-uninstall target) must read the plugin through this method so
// concurrent coordinators serialize on the row instead of racing under
// read committed.
func (s *Store) GetPluginLocked(ctx context.Context, pluginID string) (*Plugin, error) {
	tx := s.db.WithContext(ctx)
	if s.supportsRowLocks() {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var plugin Plugin
	err := tx.First(&plugin, "id = ?", pluginID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, platformerrors.NewPluginNotFoundError(pluginID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plugin '%s': %w", pluginID, err)
	}
	return &plugin, nil
}

// supportsRowLocks reports whether the dialect understands SELECT FOR
// UPDATE. sqlite does not, but its immediate write transactions already
// admit a single writer at a time.
func (s *Store) supportsRowLocks() bool {
	return s.db.Dialector.Name() == "postgres"
}

// ListPlugins returns all plugin rows ordered by id.
func (s *Store) ListPlugins(ctx context.Context) ([]Plugin, error) {
	var plugins []Plugin
	if err := s.db.WithContext(ctx).Order("id").Find(&plugins).Error; err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}
	return plugins, nil
}

// SetPublicationStatus flips a plugin's publication status.
func (s *Store) SetPublicationStatus(ctx context.Context, pluginID string, status PublicationStatus) error {
	result := s.db.WithContext(ctx).Model(&Plugin{}).Where("id = ?", pluginID).
		Update("publication_status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update publication status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewPluginNotFoundError(pluginID)
	}
	return nil
}

// SetLifecycleStatus writes the lifecycle status directly. Callers must
// have re-read the current status and checked the edge inside the same
// transaction; use TransitionStatus when not already in one.
func (s *Store) SetLifecycleStatus(ctx context.Context, pluginID string, status lifecycle.Status) error {
	result := s.db.WithContext(ctx).Model(&Plugin{}).Where("id = ?", pluginID).
		Update("lifecycle_status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update lifecycle status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewPluginNotFoundError(pluginID)
	}
	return nil
}

// TransitionStatus applies one lifecycle edge as a transactional
// compare-and-set: the current status is re-read under a row lock inside
// the transaction that writes the new one, never blindly overwritten. The
// database transaction is the mutex; the coordinator may run as many
// horizontally scaled instances.
func (s *Store) TransitionStatus(ctx context.Context, pluginID string, target lifecycle.Status) error {
	return s.WithTx(ctx, func(tx *Store) error {
		plugin, err := tx.GetPluginLocked(ctx, pluginID)
		if err != nil {
			return err
		}
		if err := lifecycle.CheckTransition(pluginID, plugin.LifecycleStatus, target); err != nil {
			return err
		}
		return tx.SetLifecycleStatus(ctx, pluginID, target)
	})
}

// GetInstallation fetches the installation row for a (tenant, plugin) pair.
func (s *Store) GetInstallation(ctx context.Context, tenantID, pluginID string) (*TenantInstallation, error) {
	var installation TenantInstallation
	err := s.db.WithContext(ctx).
		First(&installation, "tenant_id = ? AND plugin_id = ?", tenantID, pluginID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, platformerrors.NewInstallationNotFoundError(tenantID, pluginID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load installation: %w", err)
	}
	return &installation, nil
}

// CreateInstallation inserts a new installation row. A duplicate
// (tenant, plugin) key maps to ALREADY_INSTALLED; this insert is the
// authoritative serialization point for concurrent installs of the same
// pair.
func (s *Store) CreateInstallation(ctx context.Context, installation *TenantInstallation) error {
	if err := s.db.WithContext(ctx).Create(installation).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return platformerrors.NewAlreadyInstalledError(installation.TenantID, installation.PluginID)
		}
		return fmt.Errorf("failed to create installation: %w", err)
	}
	return nil
}

// DeleteInstallation removes the row for a (tenant, plugin) pair.
func (s *Store) DeleteInstallation(ctx context.Context, tenantID, pluginID string) error {
	result := s.db.WithContext(ctx).
		Where("tenant_id = ? AND plugin_id = ?", tenantID, pluginID).
		Delete(&TenantInstallation{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete installation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewInstallationNotFoundError(tenantID, pluginID)
	}
	return nil
}

// CountInstallations returns the number of installation rows for a plugin
// across all tenants. Derived, never cached: the REGISTERED-iff-zero-rows
// invariant is recomputed at every mutation site.
func (s *Store) CountInstallations(ctx context.Context, pluginID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&TenantInstallation{}).
		Where("plugin_id = ?", pluginID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count installations: %w", err)
	}
	return count, nil
}

// CountEnabledExcluding counts tenants with enabled=true for the plugin,
// excluding one tenant. Used by deactivate to decide whether the caller is
// the last enabled tenant.
func (s *Store) CountEnabledExcluding(ctx context.Context, pluginID, excludeTenantID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&TenantInstallation{}).
		Where("plugin_id = ? AND enabled = ? AND tenant_id <> ?", pluginID, true, excludeTenantID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count enabled installations: %w", err)
	}
	return count, nil
}

// ListInstallations returns all installation rows for a plugin.
func (s *Store) ListInstallations(ctx context.Context, pluginID string) ([]TenantInstallation, error) {
	var installations []TenantInstallation
	err := s.db.WithContext(ctx).
		Where("plugin_id = ?", pluginID).Order("tenant_id").Find(&installations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list installations: %w", err)
	}
	return installations, nil
}

// SetEnabled updates the tenant-local activation flag on one row.
func (s *Store) SetEnabled(ctx context.Context, tenantID, pluginID string, enabled bool) error {
	result := s.db.WithContext(ctx).Model(&TenantInstallation{}).
		Where("tenant_id = ? AND plugin_id = ?", tenantID, pluginID).
		Update("enabled", enabled)
	if result.Error != nil {
		return fmt.Errorf("failed to update enabled flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewInstallationNotFoundError(tenantID, pluginID)
	}
	return nil
}

// UpdateConfiguration replaces the stored configuration for one row.
func (s *Store) UpdateConfiguration(ctx context.Context, tenantID, pluginID string, config map[string]any) error {
	result := s.db.WithContext(ctx).Model(&TenantInstallation{}).
		Where("tenant_id = ? AND plugin_id = ?", tenantID, pluginID).
		Update("configuration", config)
	if result.Error != nil {
		return fmt.Errorf("failed to update configuration: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewInstallationNotFoundError(tenantID, pluginID)
	}
	return nil
}

// InstalledPlugin is the joined view of one plugin installed for a tenant,
// consumed by the dependency resolver.
type InstalledPlugin struct {
	PluginID string
	Version  string
	Enabled  bool
}

// InstalledForTenant returns every plugin installed for the tenant together
// with its version and the tenant-local enabled flag.
func (s *Store) InstalledForTenant(ctx context.Context, tenantID string) ([]InstalledPlugin, error) {
	var installed []InstalledPlugin
	err := s.db.WithContext(ctx).
		Table("tenant_installations").
		Select("tenant_installations.plugin_id AS plugin_id, plugins.version AS version, tenant_installations.enabled AS enabled").
		Joins("JOIN plugins ON plugins.id = tenant_installations.plugin_id").
		Where("tenant_installations.tenant_id = ?", tenantID).
		Scan(&installed).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load installed plugins for tenant '%s': %w", tenantID, err)
	}
	return installed, nil
}

// GetTenantsByIDs returns the tenant rows for the given ids; ids without a
// row are simply absent from the result.
func (s *Store) GetTenantsByIDs(ctx context.Context, ids []string) ([]Tenant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var tenants []Tenant
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&tenants).Error; err != nil {
		return nil, fmt.Errorf("failed to load tenants: %w", err)
	}
	return tenants, nil
}

// CreateTenant persists a tenant record.
func (s *Store) CreateTenant(ctx context.Context, tenant *Tenant) error {
	if err := s.db.WithContext(ctx).Create(tenant).Error; err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// ListActiveTenants returns all active tenants ordered by id.
func (s *Store) ListActiveTenants(ctx context.Context) ([]Tenant, error) {
	var tenants []Tenant
	err := s.db.WithContext(ctx).Where("active = ?", true).Order("id").Find(&tenants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}

// CreatePermissionGrant inserts one tenant-scoped permission key. A
// duplicate (tenant, key) pair maps to PERMISSION_KEY_CONFLICT.
func (s *Store) CreatePermissionGrant(ctx context.Context, grant *PermissionGrant) error {
	if err := s.db.WithContext(ctx).Create(grant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return platformerrors.NewPermissionKeyConflictError(grant.TenantID, grant.PluginID, grant.Key)
		}
		return fmt.Errorf("failed to create permission grant: %w", err)
	}
	return nil
}

// DeletePermissionGrants removes all permission keys a plugin registered for
// one tenant.
func (s *Store) DeletePermissionGrants(ctx context.Context, tenantID, pluginID string) error {
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND plugin_id = ?", tenantID, pluginID).
		Delete(&PermissionGrant{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete permission grants: %w", err)
	}
	return nil
}
