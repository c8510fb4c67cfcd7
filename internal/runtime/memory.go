package runtime

import (
	"context"
	"fmt"

	cmap "github.com/orcaman/concurrent-map/v2"
)

type containerState struct {
	config  ContainerConfig
	running bool
	health  Health
}

// MemoryRuntime keeps container state in process memory. It backs local
// development and tests; health can be scripted per plugin to exercise the
// poller and the coordinator's timeout paths.
type MemoryRuntime struct {
	containers cmap.ConcurrentMap[string, *containerState]
}

// NewMemoryRuntime returns an empty in-memory runtime where started
// containers report healthy immediately.
func NewMemoryRuntime() *MemoryRuntime {
	return &MemoryRuntime{containers: cmap.New[*containerState]()}
}

// Start records the container as running and healthy.
func (r *MemoryRuntime) Start(_ context.Context, pluginID string, config ContainerConfig) error {
	r.containers.Set(pluginID, &containerState{config: config, running: true, health: HealthHealthy})
	return nil
}

// Stop marks a running container as stopped.
func (r *MemoryRuntime) Stop(_ context.Context, pluginID string) error {
	state, ok := r.containers.Get(pluginID)
	if !ok {
		return fmt.Errorf("container for plugin '%s' does not exist", pluginID)
	}
	state.running = false
	state.health = HealthUnknown
	r.containers.Set(pluginID, state)
	return nil
}

// Remove forgets the container entirely. Removing an absent container is
// not an error; uninstall calls this best-effort.
func (r *MemoryRuntime) Remove(_ context.Context, pluginID string) error {
	r.containers.Remove(pluginID)
	return nil
}

// Health reports the recorded health, or unknown for absent containers.
func (r *MemoryRuntime) Health(_ context.Context, pluginID string) (Health, error) {
	state, ok := r.containers.Get(pluginID)
	if !ok || !state.running {
		return HealthUnknown, nil
	}
	return state.health, nil
}

// SetHealth overrides the reported health for one plugin. Test hook.
func (r *MemoryRuntime) SetHealth(pluginID string, health Health) {
	if state, ok := r.containers.Get(pluginID); ok {
		state.health = health
		r.containers.Set(pluginID, state)
	}
}

// Running reports whether a container is currently recorded as running.
func (r *MemoryRuntime) Running(pluginID string) bool {
	state, ok := r.containers.Get(pluginID)
	return ok && state.running
}
