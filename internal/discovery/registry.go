package discovery

import (
	"context"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/plexica/plexica/internal/logger"
	"github.com/plexica/plexica/internal/manifest"
)

// Registry records the backend services and frontend remote entries plugins
// expose, so other plugins and the UI shell can discover them. Registration
// is best-effort during install; a failure here never fails the install.
type Registry interface {
	RegisterServices(ctx context.Context, pluginID string, services []manifest.Service) error
	RegisterRemoteEntry(ctx context.Context, pluginID string, frontend manifest.Frontend) error
	Unregister(ctx context.Context, pluginID string) error
}

// MemoryRegistry keeps discovery state in process memory.
type MemoryRegistry struct {
	services cmap.ConcurrentMap[string, []manifest.Service]
	remotes  cmap.ConcurrentMap[string, manifest.Frontend]
	log      *logger.Logger
}

// NewMemoryRegistry returns an empty in-memory discovery registry.
func NewMemoryRegistry(log *logger.Logger) *MemoryRegistry {
	return &MemoryRegistry{
		services: cmap.New[[]manifest.Service](),
		remotes:  cmap.New[manifest.Frontend](),
		log:      log.WithComponent("discovery"),
	}
}

// RegisterServices records the plugin's declared services. Idempotent.
func (r *MemoryRegistry) RegisterServices(_ context.Context, pluginID string, services []manifest.Service) error {
	if len(services) == 0 {
		return nil
	}
	r.services.Set(pluginID, append([]manifest.Service(nil), services...))
	r.log.WithFields(map[string]any{"plugin_id": pluginID, "services": len(services)}).Debug("registered services")
	return nil
}

// RegisterRemoteEntry records the plugin's frontend remote entry, if any.
func (r *MemoryRegistry) RegisterRemoteEntry(_ context.Context, pluginID string, frontend manifest.Frontend) error {
	if frontend.RemoteEntry == "" {
		return nil
	}
	r.remotes.Set(pluginID, frontend)
	return nil
}

// Unregister forgets everything recorded for the plugin.
func (r *MemoryRegistry) Unregister(_ context.Context, pluginID string) error {
	r.services.Remove(pluginID)
	r.remotes.Remove(pluginID)
	return nil
}

// Services returns the recorded services for a plugin. Test hook.
func (r *MemoryRegistry) Services(pluginID string) []manifest.Service {
	services, _ := r.services.Get(pluginID)
	return services
}

// RemoteEntry returns the recorded remote entry for a plugin. Test hook.
func (r *MemoryRegistry) RemoteEntry(pluginID string) (manifest.Frontend, bool) {
	return r.remotes.Get(pluginID)
}
