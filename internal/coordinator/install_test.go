package coordinator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plexica/plexica/internal/lifecycle"
	"github.com/plexica/plexica/internal/manifest"
	"github.com/plexica/plexica/internal/store"
	platformerrors "github.com/plexica/plexica/pkg/errors"
)

func TestInstallFirstTenant(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	ctx := context.Background()
	env.registerPublished(t, analyticsManifest())

	installation, err := env.coord.Install(ctx, "t1", "analytics", map[string]any{})
	require.NoError(t, err)

	require.False(t, installation.Enabled)
	require.EqualValues(t, 30.0, installation.Configuration["retention_days"], "manifest default merged in")
	require.Equal(t, lifecycle.StatusInstalled, env.status(t, "analytics"))
	require.EqualValues(t, 1, env.migrations.runs.Load())

	// Best-effort registrations happened.
	require.Len(t, env.discovery.Services("analytics"), 1)
	_, hasRemote := env.discovery.RemoteEntry("analytics")
	require.True(t, hasRemote)
}

func TestInstallSecondTenantDoesNotReTransition(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	ctx := context.Background()
	env.registerPublished(t, analyticsManifest())

	_, err := env.coord.Install(ctx, "t1", "analytics", nil)
	require.NoError(t, err)
	require.NoError(t, env.coord.Activate(ctx, "t1", "analytics"))
	require.Equal(t, lifecycle.StatusActive, env.status(t, "analytics"))

	// Install while ACTIVE succeeds and the global status is untouched.
	_, err = env.coord.Install(ctx, "t2", "analytics", nil)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusActive, env.status(t, "analytics"))

	count, err := env.store.CountInstallations(ctx, "analytics")
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestInstallDuplicatePair(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	ctx := context.Background()
	env.registerPublished(t, analyticsManifest())

	_, err := env.coord.Install(ctx, "t1", "analytics", nil)
	require.NoError(t, err)

	_, err = env.coord.Install(ctx, "t1", "analytics", nil)
	require.True(t, platformerrors.HasCode(err, platformerrors.CodeAlreadyInstalled))
}

func TestConcurrentInstallsSamePairExactlyOneWins(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	ctx := context.Background()
	env.registerPublished(t, analyticsManifest())

	const n = 5
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.coord.Install(ctx, "t1", "analytics", nil)
		}()
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		require.True(t, platformerrors.HasCode(err, platformerrors.CodeAlreadyInstalled), "unexpected error: %v", err)
	}
	require.Equal(t, 1, successes)

	count, err := env.store.CountInstallations(ctx, "analytics")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, lifecycle.StatusInstalled, env.status(t, "analytics"))
}

func TestConcurrentFirstInstallsDistinctTenants(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	ctx := context.Background()
	env.registerPublished(t, analyticsManifest())

	// Different tenants race for the first install. The loser of the
	// REGISTERED -> INSTALLING transition must proceed as a plain
	// non-first install, not fail on a stale status read.
	tenants := []string{"t1", "t2", "t3"}
	var wg sync.WaitGroup
	errs := make([]error, len(tenants))
	for i, tenant := range tenants {
		wg.Add(1)
		go func(i int, tenant string) {
			defer wg.Done()
			_, errs[i] = env.coord.Install(ctx, tenant, "analytics", nil)
		}(i, tenant)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, lifecycle.StatusInstalled, env.status(t, "analytics"))

	count, err := env.store.CountInstallations(ctx, "analytics")
	require.NoError(t, err)
	require.EqualValues(t, len(tenants), count)
}

func TestInstallLoserSkipsTransitionWhenInstallingInFlight(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	ctx := context.Background()
	env.registerPublished(t, analyticsManifest())

	// Simulate a concurrent first-installer mid-transition: the plugin is
	// INSTALLING with no rows yet. The loser must not attempt the
	// REGISTERED -> INSTALLING edge itself.
	require.NoError(t, env.store.TransitionStatus(ctx, "analytics", lifecycle.StatusInstalling))

	installation, err := env.coord.Install(ctx, "t2", "analytics", nil)
	require.NoError(t, err)
	require.NotNil(t, installation)

	// The loser leaves the in-flight transition to the winner.
	require.Equal(t, lifecycle.StatusInstalling, env.status(t, "analytics"))
}

func TestInstallValidatesConfiguration(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	ctx := context.Background()
	env.registerPublished(t, analyticsManifest())

	_, err := env.coord.Install(ctx, "t1", "analytics", map[string]any{"retention_days": "thirty"})
	require.True(t, platformerrors.HasCode(err, platformerrors.CodeValidationFailed))

	// Nothing was created and the lifecycle never moved.
	require.Equal(t, lifecycle.StatusRegistered, env.status(t, "analytics"))
	count, countErr := env.store.CountInstallations(ctx, "analytics")
	require.NoError(t, countErr)
	require.EqualValues(t, 0, count)
}

func TestInstallChecksDependencies(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	ctx := context.Background()

	dependent := &manifest.Manifest{
		ID:      "billing",
		Version: "1.0.0",
		APIDeps: []manifest.APIDependency{{PluginID: "auth", Range: "^2.0.0"}},
	}
	env.registerPublished(t, dependent)

	_, err := env.coord.Install(ctx, "t1", "billing", nil)
	require.True(t, platformerrors.HasCode(err, platformerrors.CodeDependencyUnsatisfied))

	// Install auth at an incompatible version.
	auth := &manifest.Manifest{ID: "auth", Version: "1.5.0"}
	env.registerPublished(t, auth)
	_, err = env.coord.Install(ctx, "t1", "auth", nil)
	require.NoError(t, err)

	_, err = env.coord.Install(ctx, "t1", "billing", nil)
	require.True(t, platformerrors.HasCode(err, platformerrors.CodeDependencyVersionMismatch))
}

func TestInstallCatastrophicMigrationFailureCompensates(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	ctx := context.Background()
	env.registerPublished(t, analyticsManifest())
	env.migrations.failAll = true

	_, err := env.coord.Install(ctx, "t1", "analytics", nil)
	require.True(t, platformerrors.HasCode(err, platformerrors.CodeMigrationFailed))

	// Compensation deleted the row and walked the status back.
	count, countErr := env.store.CountInstallations(ctx, "analytics")
	require.NoError(t, countErr)
	require.EqualValues(t, 0, count)
	require.Equal(t, lifecycle.StatusRegistered, env.status(t, "analytics"))

	// The reverted state is safe to retry against.
	env.migrations.failAll = false
	_, err = env.coord.Install(ctx, "t1", "analytics", nil)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusInstalled, env.status(t, "analytics"))
}

func TestInstallPartialMigrationFailureIsNonFatal(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	ctx := context.Background()
	env.registerPublished(t, analyticsManifest())

	_, err := env.coord.Install(ctx, "t1", "analytics", nil)
	require.NoError(t, err)

	// The second tenant's migration fails, the first tenant's succeeds.
	env.migrations.failTenants = map[string]bool{"t2": true}
	_, err = env.coord.Install(ctx, "t2", "analytics", nil)
	require.NoError(t, err)

	count, countErr := env.store.CountInstallations(ctx, "analytics")
	require.NoError(t, countErr)
	require.EqualValues(t, 2, count)
}

func TestInstallPermissionConflictCompensates(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	ctx := context.Background()
	env.registerPublished(t, analyticsManifest())

	// A leftover grant occupies one of the keys the manifest derives.
	require.NoError(t, env.store.CreatePermissionGrant(ctx, &store.PermissionGrant{
		TenantID: "t1",
		PluginID: "stale",
		Key:      "analytics.reports.read",
	}))

	_, err := env.coord.Install(ctx, "t1", "analytics", nil)
	require.True(t, platformerrors.HasCode(err, platformerrors.CodePermissionKeyConflict))

	count, countErr := env.store.CountInstallations(ctx, "analytics")
	require.NoError(t, countErr)
	require.EqualValues(t, 0, count)
	require.Equal(t, lifecycle.StatusRegistered, env.status(t, "analytics"))
}

func TestRegisteredIffZeroRowsInvariant(t *testing.T) {
	t.Parallel()
	env := newEnv(t)
	ctx := context.Background()
	env.registerPublished(t, analyticsManifest())

	check := func() {
		t.Helper()
		count, err := env.store.CountInstallations(ctx, "analytics")
		require.NoError(t, err)
		status := env.status(t, "analytics")
		if status == lifecycle.StatusRegistered {
			require.EqualValues(t, 0, count)
		} else {
			require.Positive(t, count)
		}
	}

	check()
	_, err := env.coord.Install(ctx, "t1", "analytics", nil)
	require.NoError(t, err)
	check()
	_, err = env.coord.Install(ctx, "t2", "analytics", nil)
	require.NoError(t, err)
	check()
	require.NoError(t, env.coord.Uninstall(ctx, "t1", "analytics"))
	check()
	require.NoError(t, env.coord.Uninstall(ctx, "t2", "analytics"))
	check()
	require.Equal(t, lifecycle.StatusRegistered, env.status(t, "analytics"))
}
