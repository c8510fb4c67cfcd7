package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plexica/plexica/internal/logger"
	"github.com/plexica/plexica/internal/runtime"
)

type scriptedRuntime struct {
	runtime.ContainerRuntime

	calls   atomic.Int64
	healthy func(call int64) runtime.Health
	delay   time.Duration
}

func (s *scriptedRuntime) Health(ctx context.Context, _ string) (runtime.Health, error) {
	call := s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}
	return s.healthy(call), nil
}

func TestPollReturnsTrueOnFirstHealthyReport(t *testing.T) {
	t.Parallel()

	rt := &scriptedRuntime{healthy: func(int64) runtime.Health { return runtime.HealthHealthy }}
	poller := NewPoller(rt, logger.Nop())

	require.True(t, poller.Poll(context.Background(), "p", time.Second, 10*time.Millisecond))
	require.EqualValues(t, 1, rt.calls.Load())
}

func TestPollRecoversAfterUnhealthyReports(t *testing.T) {
	t.Parallel()

	rt := &scriptedRuntime{healthy: func(call int64) runtime.Health {
		if call < 3 {
			return runtime.HealthUnhealthy
		}
		return runtime.HealthHealthy
	}}
	poller := NewPoller(rt, logger.Nop())

	require.True(t, poller.Poll(context.Background(), "p", time.Second, 5*time.Millisecond))
	require.EqualValues(t, 3, rt.calls.Load())
}

func TestPollNeverHealthyTerminatesWithinBudget(t *testing.T) {
	t.Parallel()

	rt := &scriptedRuntime{healthy: func(int64) runtime.Health { return runtime.HealthUnhealthy }}
	poller := NewPoller(rt, logger.Nop())

	timeout := 200 * time.Millisecond
	interval := 50 * time.Millisecond

	start := time.Now()
	healthy := poller.Poll(context.Background(), "p", timeout, interval)
	elapsed := time.Since(start)

	require.False(t, healthy)
	require.Less(t, elapsed, timeout+interval+50*time.Millisecond)
	require.GreaterOrEqual(t, rt.calls.Load(), int64(2))
}

func TestPollUnknownCountsAsNotHealthy(t *testing.T) {
	t.Parallel()

	rt := &scriptedRuntime{healthy: func(int64) runtime.Health { return runtime.HealthUnknown }}
	poller := NewPoller(rt, logger.Nop())

	require.False(t, poller.Poll(context.Background(), "p", 50*time.Millisecond, 10*time.Millisecond))
}

func TestPollAbandonsBlockedProbe(t *testing.T) {
	t.Parallel()

	// The runtime blocks far beyond the poll deadline; the poller must
	// still return within the budget.
	rt := &scriptedRuntime{
		delay:   5 * time.Second,
		healthy: func(int64) runtime.Health { return runtime.HealthHealthy },
	}
	poller := NewPoller(rt, logger.Nop())

	start := time.Now()
	healthy := poller.Poll(context.Background(), "p", 100*time.Millisecond, 20*time.Millisecond)
	require.False(t, healthy)
	require.Less(t, time.Since(start), time.Second)
}
