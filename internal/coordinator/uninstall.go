package coordinator

import (
	"context"
	"time"

	"github.com/plexica/plexica/internal/lifecycle"
	"github.com/plexica/plexica/internal/store"
	platformerrors "github.com/plexica/plexica/pkg/errors"
)

// Uninstall removes a tenant's installation. The last tenant to uninstall
// returns the plugin to REGISTERED so the manifest stays re-installable;
// otherwise the plugin drops back to INSTALLED for the remaining tenants.
func (c *Coordinator) Uninstall(ctx context.Context, tenantID, pluginID string) (err error) {
	defer c.observe("uninstall", time.Now(), &err)
	log := c.opLog("uninstall", tenantID, pluginID)

	installation, err := c.store.GetInstallation(ctx, tenantID, pluginID)
	if err != nil {
		return err
	}
	if installation.Enabled {
		if err = c.Deactivate(ctx, tenantID, pluginID); err != nil {
			return err
		}
	}

	if err = c.store.TransitionStatus(ctx, pluginID, lifecycle.StatusUninstalling); err != nil {
		return err
	}
	sg := newSaga(log, c.metrics)
	sg.record("lifecycle-transition", func(ctx context.Context) error {
		// UNINSTALLING has no edge back to DISABLED; INSTALLED is the
		// recovery state either way, and a retried uninstall proceeds
		// from it.
		return c.store.TransitionStatus(ctx, pluginID, lifecycle.StatusInstalled)
	})

	// Best-effort external cleanup; DB consistency does not depend on it.
	if removeErr := c.runtime.Remove(ctx, pluginID); removeErr != nil {
		log.Error(removeErr, "container removal failed")
	}
	if c.permissions != nil {
		if permErr := c.permissions.Remove(ctx, tenantID, pluginID); permErr != nil {
			log.Error(permErr, "permission removal failed")
		}
	}
	if topicErr := c.topics.RemoveTopics(ctx, pluginID); topicErr != nil {
		log.Error(topicErr, "event topic removal failed")
	}
	if discoErr := c.discovery.Unregister(ctx, pluginID); discoErr != nil {
		log.Error(discoErr, "discovery unregistration failed")
	}

	// Row delete, remaining count and follow-up transition share one
	// transaction so the REGISTERED-iff-zero-rows invariant holds at
	// commit.
	err = c.store.WithTx(ctx, func(tx *store.Store) error {
		// The locked read serializes concurrent uninstalls of the last
		// tenants, keeping the remaining count stable for the target
		// decision.
		live, txErr := tx.GetPluginLocked(ctx, pluginID)
		if txErr != nil {
			return txErr
		}
		if txErr := tx.DeleteInstallation(ctx, tenantID, pluginID); txErr != nil {
			return txErr
		}
		remaining, txErr := tx.CountInstallations(ctx, pluginID)
		if txErr != nil {
			return txErr
		}

		target := lifecycle.StatusInstalled
		if remaining == 0 {
			target = lifecycle.StatusRegistered
		}
		if txErr := lifecycle.CheckTransition(pluginID, live.LifecycleStatus, target); txErr != nil {
			return txErr
		}
		return tx.SetLifecycleStatus(ctx, pluginID, target)
	})
	if err != nil {
		sg.compensate(ctx)
		return err
	}

	log.Info("plugin uninstalled")
	return nil
}

// EnableForTenant flips the tenant-local enabled flag on. It requires the
// plugin to be globally ACTIVE and never touches the container.
func (c *Coordinator) EnableForTenant(ctx context.Context, tenantID, pluginID string) (err error) {
	defer c.observe("enable_for_tenant", time.Now(), &err)

	return c.store.WithTx(ctx, func(tx *store.Store) error {
		// The ACTIVE check lives inside the row-flip transaction so a
		// concurrent last-tenant deactivate cannot slip between check and
		// write.
		plugin, txErr := tx.GetPluginLocked(ctx, pluginID)
		if txErr != nil {
			return txErr
		}
		if plugin.LifecycleStatus != lifecycle.StatusActive {
			return platformerrors.NewNotGloballyActiveError(pluginID, plugin.LifecycleStatus.String())
		}

		current, txErr := tx.GetInstallation(ctx, tenantID, pluginID)
		if txErr != nil {
			return txErr
		}
		if current.Enabled {
			return platformerrors.NewAlreadyInStateError(pluginID, "enabled")
		}
		return tx.SetEnabled(ctx, tenantID, pluginID, true)
	})
}

// DisableForTenant flips the tenant-local enabled flag off without touching
// the container or the global status.
func (c *Coordinator) DisableForTenant(ctx context.Context, tenantID, pluginID string) (err error) {
	defer c.observe("disable_for_tenant", time.Now(), &err)

	return c.store.WithTx(ctx, func(tx *store.Store) error {
		current, txErr := tx.GetInstallation(ctx, tenantID, pluginID)
		if txErr != nil {
			return txErr
		}
		if !current.Enabled {
			return platformerrors.NewAlreadyInStateError(pluginID, "disabled")
		}
		return tx.SetEnabled(ctx, tenantID, pluginID, false)
	})
}
