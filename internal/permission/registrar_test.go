package permission

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/plexica/plexica/internal/logger"
	"github.com/plexica/plexica/internal/store"
	platformerrors "github.com/plexica/plexica/pkg/errors"
)

func newRegistrar(t *testing.T) (*StoreRegistrar, *store.Store) {
	t.Helper()
	db, err := store.Open(store.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	s := store.New(db)
	require.NoError(t, s.AutoMigrate())
	return NewStoreRegistrar(s, logger.Nop()), s
}

func TestRegisterAndRemove(t *testing.T) {
	t.Parallel()
	registrar, _ := newRegistrar(t)
	ctx := context.Background()

	keys := []string{"analytics.reports.read", "analytics.reports.write"}
	require.NoError(t, registrar.Register(ctx, "t1", "analytics", keys))

	// Re-registering the same keys for the same tenant conflicts.
	err := registrar.Register(ctx, "t1", "analytics", keys[:1])
	require.True(t, platformerrors.HasCode(err, platformerrors.CodePermissionKeyConflict))

	require.NoError(t, registrar.Remove(ctx, "t1", "analytics"))
	require.NoError(t, registrar.Register(ctx, "t1", "analytics", keys))
}

func TestRegisterConflictRollsBackBatch(t *testing.T) {
	t.Parallel()
	registrar, s := newRegistrar(t)
	ctx := context.Background()

	require.NoError(t, registrar.Register(ctx, "t1", "other", []string{"shared.key"}))

	// The batch contains one fresh key and one conflicting key; neither
	// must survive.
	err := registrar.Register(ctx, "t1", "analytics", []string{"analytics.fresh", "shared.key"})
	require.True(t, platformerrors.HasCode(err, platformerrors.CodePermissionKeyConflict))

	require.NoError(t, s.DeletePermissionGrants(ctx, "t1", "analytics"))
	require.NoError(t, registrar.Register(ctx, "t1", "analytics", []string{"analytics.fresh"}))
}

func TestRegisterEmptyKeysIsNoop(t *testing.T) {
	t.Parallel()
	registrar, _ := newRegistrar(t)
	require.NoError(t, registrar.Register(context.Background(), "t1", "p", nil))
}
