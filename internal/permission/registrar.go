package permission

import (
	"context"

	"github.com/plexica/plexica/internal/logger"
	"github.com/plexica/plexica/internal/store"
)

// Registrar registers and removes tenant-scoped permission keys derived
// from a plugin manifest. Register reports key conflicts through
// PERMISSION_KEY_CONFLICT errors.
type Registrar interface {
	Register(ctx context.Context, tenantID, pluginID string, keys []string) error
	Remove(ctx context.Context, tenantID, pluginID string) error
}

// StoreRegistrar persists permission grants in the platform database,
// relying on the (tenant, key) unique index for conflict detection.
type StoreRegistrar struct {
	store *store.Store
	log   *logger.Logger
}

// NewStoreRegistrar creates a Registrar over the platform store.
func NewStoreRegistrar(s *store.Store, log *logger.Logger) *StoreRegistrar {
	return &StoreRegistrar{store: s, log: log.WithComponent("permission-registrar")}
}

// Register inserts every key inside one transaction. A conflict on any key
// rolls back the whole batch, so a failed registration leaves no partial
// grants behind.
func (r *StoreRegistrar) Register(ctx context.Context, tenantID, pluginID string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.store.WithTx(ctx, func(tx *store.Store) error {
		for _, key := range keys {
			grant := &store.PermissionGrant{TenantID: tenantID, PluginID: pluginID, Key: key}
			if err := tx.CreatePermissionGrant(ctx, grant); err != nil {
				return err
			}
		}
		r.log.WithFields(map[string]any{
			"tenant_id": tenantID,
			"plugin_id": pluginID,
			"keys":      len(keys),
		}).Debug("registered permission keys")
		return nil
	})
}

// Remove deletes every grant the plugin registered for the tenant.
func (r *StoreRegistrar) Remove(ctx context.Context, tenantID, pluginID string) error {
	return r.store.DeletePermissionGrants(ctx, tenantID, pluginID)
}
