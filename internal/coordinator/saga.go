package coordinator

import (
	"context"

	"github.com/plexica/plexica/internal/logger"
	"github.com/plexica/plexica/internal/metrics"
)

// compensation is the paired undo action of one completed saga step.
type compensation struct {
	step string
	undo func(ctx context.Context) error
}

// saga records the side effects an operation has completed so far, each
// with a named compensating action. On failure the completed compensations
// run in reverse order, which keeps the rollback sequence auditable and
// testable independently of the happy path. Compensation errors are logged
// and never mask the error that triggered the rollback.
type saga struct {
	completed []compensation
	log       *logger.Logger
	metrics   *metrics.Metrics
}

func newSaga(log *logger.Logger, m *metrics.Metrics) *saga {
	return &saga{log: log, metrics: m}
}

// record registers the undo action for a step that just completed.
func (s *saga) record(step string, undo func(ctx context.Context) error) {
	s.completed = append(s.completed, compensation{step: step, undo: undo})
}

// replace swaps the undo action of the most recent occurrence of step.
// Used when a later step supersedes how an earlier one must be undone.
func (s *saga) replace(step string, undo func(ctx context.Context) error) {
	for i := len(s.completed) - 1; i >= 0; i-- {
		if s.completed[i].step == step {
			s.completed[i].undo = undo
			return
		}
	}
	s.record(step, undo)
}

// compensate runs every recorded undo action in reverse order. Rollback
// proceeds even when the caller's context is already done.
func (s *saga) compensate(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := len(s.completed) - 1; i >= 0; i-- {
		c := s.completed[i]
		s.log.WithFields(map[string]any{"step": c.step}).Warn("running compensation")
		s.metrics.ObserveCompensation(c.step)
		if err := c.undo(ctx); err != nil {
			s.log.WithFields(map[string]any{"step": c.step}).Error(err, "compensation failed")
		}
	}
	s.completed = nil
}
