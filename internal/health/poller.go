package health

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/plexica/plexica/internal/logger"
	"github.com/plexica/plexica/internal/runtime"
)

var errNotHealthy = errors.New("container not yet healthy")

// Poller repeatedly queries a container runtime until a plugin reports
// healthy or a deadline passes.
type Poller struct {
	runtime runtime.ContainerRuntime
	log     *logger.Logger
}

// NewPoller creates a Poller over the given runtime.
func NewPoller(rt runtime.ContainerRuntime, log *logger.Logger) *Poller {
	return &Poller{runtime: rt, log: log.WithComponent("health-poller")}
}

// Poll queries health at a constant interval until the plugin reports
// healthy or timeout elapses. Unhealthy and unknown reports both count as
// not-healthy. Poll returns within timeout+interval regardless of runtime
// behavior; a probe that outlives the deadline is abandoned.
func (p *Poller) Poll(ctx context.Context, pluginID string, timeout, interval time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	probe := func() error {
		state, err := p.probe(ctx, pluginID)
		if err != nil {
			p.log.WithFields(map[string]any{"plugin_id": pluginID}).Error(err, "health probe failed")
			return err
		}
		if state == runtime.HealthHealthy {
			return nil
		}
		return errNotHealthy
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	return backoff.Retry(probe, policy) == nil
}

// probe runs one health query, bounded by ctx even when the runtime does
// not honor cancellation.
func (p *Poller) probe(ctx context.Context, pluginID string) (runtime.Health, error) {
	type result struct {
		state runtime.Health
		err   error
	}
	results := make(chan result, 1)

	go func() {
		state, err := p.runtime.Health(ctx, pluginID)
		results <- result{state: state, err: err}
	}()

	select {
	case <-ctx.Done():
		return runtime.HealthUnknown, ctx.Err()
	case r := <-results:
		return r.state, r.err
	}
}
