package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plexica/plexica/internal/logger"
	"github.com/plexica/plexica/internal/manifest"
)

func TestRegisterServices(t *testing.T) {
	t.Parallel()
	r := NewMemoryRegistry(logger.Nop())
	ctx := context.Background()

	services := []manifest.Service{{Name: "reports", Path: "/api/reports"}}
	require.NoError(t, r.RegisterServices(ctx, "analytics", services))
	require.Equal(t, services, r.Services("analytics"))
}

func TestRegisterRemoteEntrySkipsEmpty(t *testing.T) {
	t.Parallel()
	r := NewMemoryRegistry(logger.Nop())
	ctx := context.Background()

	require.NoError(t, r.RegisterRemoteEntry(ctx, "analytics", manifest.Frontend{}))
	_, ok := r.RemoteEntry("analytics")
	require.False(t, ok)

	frontend := manifest.Frontend{RemoteEntry: "https://cdn.example.com/analytics/remoteEntry.js", Scope: "analytics"}
	require.NoError(t, r.RegisterRemoteEntry(ctx, "analytics", frontend))
	got, ok := r.RemoteEntry("analytics")
	require.True(t, ok)
	require.Equal(t, frontend, got)
}

func TestUnregisterForgetsEverything(t *testing.T) {
	t.Parallel()
	r := NewMemoryRegistry(logger.Nop())
	ctx := context.Background()

	require.NoError(t, r.RegisterServices(ctx, "analytics", []manifest.Service{{Name: "reports"}}))
	require.NoError(t, r.RegisterRemoteEntry(ctx, "analytics", manifest.Frontend{RemoteEntry: "x.js"}))
	require.NoError(t, r.Unregister(ctx, "analytics"))

	require.Empty(t, r.Services("analytics"))
	_, ok := r.RemoteEntry("analytics")
	require.False(t, ok)
}
