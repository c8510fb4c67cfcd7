package runtime

import (
	"context"
	"fmt"
)

// Health is the tri-state health report of a plugin container.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthUnhealthy Health = "unhealthy"
	HealthUnknown   Health = "unknown"
)

// ContainerConfig is the runtime configuration built from a manifest's
// runtime section.
type ContainerConfig struct {
	Image          string
	Env            map[string]string
	Port           int
	HealthEndpoint string
	CPU            string
	Memory         string
}

// ContainerRuntime starts, stops and health-checks plugin containers. The
// actual engine is behind this boundary; the platform only consumes it.
type ContainerRuntime interface {
	Start(ctx context.Context, pluginID string, config ContainerConfig) error
	Stop(ctx context.Context, pluginID string) error
	Remove(ctx context.Context, pluginID string) error
	Health(ctx context.Context, pluginID string) (Health, error)
}

// Backend selects the runtime implementation. The set is closed; the choice
// is made once at process startup from settings, never via runtime type
// inspection.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendNoop   Backend = "noop"
)

// NewRuntime constructs the configured backend.
func NewRuntime(backend Backend) (ContainerRuntime, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryRuntime(), nil
	case BackendNoop:
		return NewNoopRuntime(), nil
	default:
		return nil, fmt.Errorf("unknown container runtime backend '%s'", backend)
	}
}
