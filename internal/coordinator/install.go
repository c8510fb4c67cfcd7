package coordinator

import (
	"context"
	"time"

	"github.com/plexica/plexica/internal/lifecycle"
	"github.com/plexica/plexica/internal/migration"
	"github.com/plexica/plexica/internal/store"
	platformerrors "github.com/plexica/plexica/pkg/errors"
)

// Install creates a tenant installation for a published plugin.
//
// The state-machine-relevant section (existence re-check, first-install
// detection, REGISTERED -> INSTALLING transition, row creation) runs inside
// one short transaction; migrations, permission registration and discovery
// registration deliberately run after commit and are compensated explicitly
// when they fail.
func (c *Coordinator) Install(ctx context.Context, tenantID, pluginID string, config map[string]any) (_ *store.TenantInstallation, err error) {
	defer c.observe("install", time.Now(), &err)
	log := c.opLog("install", tenantID, pluginID)

	// Optimistic fast-path rejection. Not authoritative; the transaction
	// below re-checks under the unique key.
	if _, lookupErr := c.store.GetInstallation(ctx, tenantID, pluginID); lookupErr == nil {
		return nil, platformerrors.NewAlreadyInstalledError(tenantID, pluginID)
	} else if !platformerrors.HasCode(lookupErr, platformerrors.CodeInstallationNotFound) {
		return nil, lookupErr
	}

	plugin, err := c.store.GetPlugin(ctx, pluginID)
	if err != nil {
		return nil, err
	}
	if !plugin.Published() {
		return nil, platformerrors.NewNotPublishedError(pluginID)
	}

	merged := plugin.Manifest.MergeDefaults(config)
	if err = plugin.Manifest.ValidateConfig(merged); err != nil {
		return nil, err
	}

	view, err := c.installedView(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err = c.resolver.CheckCompatibility(&plugin.Manifest, view); err != nil {
		return nil, err
	}

	installation := &store.TenantInstallation{
		TenantID:      tenantID,
		PluginID:      pluginID,
		Enabled:       false,
		Configuration: merged,
	}

	// The transaction is the single point of truth for "already installed"
	// and for the first-install decision. A concurrent first-installer
	// that already moved the plugin to INSTALLING wins the transition;
	// this call then proceeds as a non-first install.
	firstInstall := false
	err = c.store.WithTx(ctx, func(tx *store.Store) error {
		if _, txErr := tx.GetInstallation(ctx, tenantID, pluginID); txErr == nil {
			return platformerrors.NewAlreadyInstalledError(tenantID, pluginID)
		} else if !platformerrors.HasCode(txErr, platformerrors.CodeInstallationNotFound) {
			return txErr
		}

		count, txErr := tx.CountInstallations(ctx, pluginID)
		if txErr != nil {
			return txErr
		}
		if count == 0 {
			// The locked read serializes concurrent first installs from
			// different tenants: the loser wakes up here, observes the
			// winner's committed INSTALLING, and proceeds as a non-first
			// install.
			live, txErr := tx.GetPluginLocked(ctx, pluginID)
			if txErr != nil {
				return txErr
			}
			if live.LifecycleStatus == lifecycle.StatusRegistered {
				if txErr := lifecycle.CheckTransition(pluginID, live.LifecycleStatus, lifecycle.StatusInstalling); txErr != nil {
					return txErr
				}
				if txErr := tx.SetLifecycleStatus(ctx, pluginID, lifecycle.StatusInstalling); txErr != nil {
					return txErr
				}
				firstInstall = true
			}
			// INSTALLING or later with a stale zero count means another
			// installer already owns the state machine; only the row is
			// created here.
		}

		return tx.CreateInstallation(ctx, installation)
	})
	if err != nil {
		return nil, err
	}

	sg := newSaga(log, c.metrics)
	if firstInstall {
		sg.record("lifecycle-transition", func(ctx context.Context) error {
			return c.store.TransitionStatus(ctx, pluginID, lifecycle.StatusRegistered)
		})
	}
	sg.record("installation-row", func(ctx context.Context) error {
		return c.store.DeleteInstallation(ctx, tenantID, pluginID)
	})

	if firstInstall {
		if err = c.store.TransitionStatus(ctx, pluginID, lifecycle.StatusInstalled); err != nil {
			sg.compensate(ctx)
			return nil, err
		}
		// Undoing from INSTALLED takes the UNINSTALLING detour.
		sg.replace("lifecycle-transition", func(ctx context.Context) error {
			if undoErr := c.store.TransitionStatus(ctx, pluginID, lifecycle.StatusUninstalling); undoErr != nil {
				return undoErr
			}
			return c.store.TransitionStatus(ctx, pluginID, lifecycle.StatusRegistered)
		})
	}

	if migrations := manifestMigrations(&plugin.Manifest); len(migrations) > 0 {
		tenants, tenantsErr := c.tenantsWithInstallation(ctx, pluginID)
		if tenantsErr != nil {
			log.Error(tenantsErr, "failed to resolve tenants for migrations")
		} else if len(tenants) > 0 {
			results := c.migrations.Run(ctx, pluginID, migrations, tenants)
			if migration.AllFailed(results) {
				// Catastrophic: every tenant failed. Roll back and raise.
				sg.compensate(ctx)
				return nil, platformerrors.NewMigrationError(pluginID, len(results))
			}
			for _, result := range results {
				if result.Err != nil {
					log.WithFields(map[string]any{"tenant_id": result.TenantID}).
						Warn("tenant migration failed; continuing")
				}
			}
		}
	}

	if keys := plugin.Manifest.PermissionKeys(); len(keys) > 0 && c.permissions != nil {
		if err = c.permissions.Register(ctx, tenantID, pluginID, keys); err != nil {
			sg.compensate(ctx)
			return nil, err
		}
	}

	// Best-effort, never fail the install.
	if discoErr := c.discovery.RegisterServices(ctx, pluginID, plugin.Manifest.Services); discoErr != nil {
		log.Error(discoErr, "service registration failed")
	}
	if discoErr := c.discovery.RegisterRemoteEntry(ctx, pluginID, plugin.Manifest.Frontend); discoErr != nil {
		log.Error(discoErr, "remote entry registration failed")
	}

	log.Info("plugin installed")
	return installation, nil
}
