package runtime

import "context"

// NoopRuntime accepts every call and reports every container healthy. Used
// when the platform runs without containerized plugins.
type NoopRuntime struct{}

// NewNoopRuntime returns a NoopRuntime.
func NewNoopRuntime() *NoopRuntime {
	return &NoopRuntime{}
}

func (*NoopRuntime) Start(context.Context, string, ContainerConfig) error { return nil }

func (*NoopRuntime) Stop(context.Context, string) error { return nil }

func (*NoopRuntime) Remove(context.Context, string) error { return nil }

func (*NoopRuntime) Health(context.Context, string) (Health, error) { return HealthHealthy, nil }
