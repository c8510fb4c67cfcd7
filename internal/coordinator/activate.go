package coordinator

import (
	"context"
	"time"

	"github.com/plexica/plexica/internal/lifecycle"
	"github.com/plexica/plexica/internal/runtime"
	"github.com/plexica/plexica/internal/store"
	platformerrors "github.com/plexica/plexica/pkg/errors"
)

// Activate starts the plugin's container (for the first activating tenant),
// waits for it to report healthy, and enables the plugin for the calling
// tenant. Later tenants find the plugin already ACTIVE and only flip their
// own row.
func (c *Coordinator) Activate(ctx context.Context, tenantID, pluginID string) (err error) {
	defer c.observe("activate", time.Now(), &err)
	log := c.opLog("activate", tenantID, pluginID)

	installation, err := c.store.GetInstallation(ctx, tenantID, pluginID)
	if err != nil {
		return err
	}
	if installation.Enabled {
		return platformerrors.NewAlreadyInStateError(pluginID, "enabled")
	}

	plugin, err := c.store.GetPlugin(ctx, pluginID)
	if err != nil {
		return err
	}

	sg := newSaga(log, c.metrics)

	if plugin.Manifest.HasRuntime() {
		config, buildErr := runtime.BuildConfig(&plugin.Manifest)
		if buildErr != nil {
			return buildErr
		}
		if startErr := c.runtime.Start(ctx, pluginID, config); startErr != nil {
			return platformerrors.NewContainerUnreachableError(pluginID, startErr)
		}
		sg.record("container-start", func(ctx context.Context) error {
			return c.runtime.Stop(ctx, pluginID)
		})

		if !c.poller.Poll(ctx, pluginID, c.healthTimeout, c.healthInterval) {
			sg.compensate(ctx)
			return platformerrors.NewContainerHealthTimeoutError(pluginID)
		}
	}

	// Best-effort after the container is healthy; never fail activation.
	declaredTopics := append(
		append([]string(nil), plugin.Manifest.Events.Publishes...),
		plugin.Manifest.Events.Subscribes...,
	)
	if topicErr := c.topics.EnsureTopics(ctx, pluginID, declaredTopics); topicErr != nil {
		log.Error(topicErr, "event topic registration failed")
	}
	if translationErr := c.translations.LoadNamespaces(ctx, pluginID); translationErr != nil {
		log.Error(translationErr, "translation namespace load failed")
	}

	// Re-read the live status inside the transaction that flips the row:
	// the first activating tenant performs INSTALLED|DISABLED -> ACTIVE,
	// later tenants see ACTIVE and skip the transition.
	err = c.store.WithTx(ctx, func(tx *store.Store) error {
		current, txErr := tx.GetInstallation(ctx, tenantID, pluginID)
		if txErr != nil {
			return txErr
		}
		if current.Enabled {
			return platformerrors.NewAlreadyInStateError(pluginID, "enabled")
		}

		live, txErr := tx.GetPluginLocked(ctx, pluginID)
		if txErr != nil {
			return txErr
		}
		if live.LifecycleStatus != lifecycle.StatusActive {
			if txErr := lifecycle.CheckTransition(pluginID, live.LifecycleStatus, lifecycle.StatusActive); txErr != nil {
				return txErr
			}
			if txErr := tx.SetLifecycleStatus(ctx, pluginID, lifecycle.StatusActive); txErr != nil {
				return txErr
			}
		}
		return tx.SetEnabled(ctx, tenantID, pluginID, true)
	})
	if err != nil {
		// ALREADY_IN_STATE means a concurrent caller enabled this tenant
		// between the pre-check and the transaction; the container now
		// serves the ACTIVE plugin and must stay up.
		if !platformerrors.HasCode(err, platformerrors.CodeAlreadyInState) {
			sg.compensate(ctx)
		}
		return err
	}

	log.Info("plugin activated")
	return nil
}

// Deactivate flips the calling tenant's row to disabled. When the caller is
// the last enabled tenant at commit time, the global status moves
// ACTIVE -> DISABLED inside the same transaction and the container is
// stopped best-effort after commit.
func (c *Coordinator) Deactivate(ctx context.Context, tenantID, pluginID string) (err error) {
	defer c.observe("deactivate", time.Now(), &err)
	log := c.opLog("deactivate", tenantID, pluginID)

	installation, err := c.store.GetInstallation(ctx, tenantID, pluginID)
	if err != nil {
		return err
	}
	if !installation.Enabled {
		return platformerrors.NewAlreadyInStateError(pluginID, "disabled")
	}

	lastEnabled := false
	hasRuntime := false
	err = c.store.WithTx(ctx, func(tx *store.Store) error {
		// Locking the plugin row first serializes concurrent deactivates,
		// so exactly one caller observes itself as the last enabled tenant.
		live, txErr := tx.GetPluginLocked(ctx, pluginID)
		if txErr != nil {
			return txErr
		}
		hasRuntime = live.Manifest.HasRuntime()

		current, txErr := tx.GetInstallation(ctx, tenantID, pluginID)
		if txErr != nil {
			return txErr
		}
		if !current.Enabled {
			return platformerrors.NewAlreadyInStateError(pluginID, "disabled")
		}

		others, txErr := tx.CountEnabledExcluding(ctx, pluginID, tenantID)
		if txErr != nil {
			return txErr
		}
		if others == 0 {
			lastEnabled = true
			if txErr := lifecycle.CheckTransition(pluginID, live.LifecycleStatus, lifecycle.StatusDisabled); txErr != nil {
				return txErr
			}
			if txErr := tx.SetLifecycleStatus(ctx, pluginID, lifecycle.StatusDisabled); txErr != nil {
				return txErr
			}
		}
		return tx.SetEnabled(ctx, tenantID, pluginID, false)
	})
	if err != nil {
		return err
	}

	// The database is already consistent; a failed stop only leaves a
	// container running with nothing routed to it.
	if lastEnabled && hasRuntime {
		if stopErr := c.runtime.Stop(ctx, pluginID); stopErr != nil {
			log.Error(stopErr, "container stop failed after deactivation")
		}
	}

	log.Info("plugin deactivated")
	return nil
}
