package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/cropsense/internal/assess"
	"github.com/sells-group/cropsense/internal/observability"
)

// Recorder saves outcomes on a best-effort basis: a failed write is logged
// and counted but never returned to the caller. A nil Recorder or one with a
// nil Store does nothing.
type Recorder struct {
	store   Store
	metrics *observability.Metrics
	log     *zap.Logger
}

// NewRecorder wraps s. metrics may be nil.
func NewRecorder(s Store, metrics *observability.Metrics) *Recorder {
	return &Recorder{
		store:   s,
		metrics: metrics,
		log:     zap.L().With(zap.String("component", "history")),
	}
}

// Enabled reports whether outcomes are persisted.
func (r *Recorder) Enabled() bool {
	return r != nil && r.store != nil
}

// Store returns the wrapped store, nil when disabled.
func (r *Recorder) Store() Store {
	if r == nil {
		return nil
	}
	return r.store
}

// Record saves each non-nil outcome.
func (r *Recorder) Record(ctx context.Context, outcomes ...*assess.Outcome) {
	if !r.Enabled() {
		return
	}
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		err := r.store.SaveOutcome(ctx, o)
		if err != nil {
			r.log.Warn("save outcome failed", zap.String("id", o.ID), zap.Error(err))
		}
		if r.metrics != nil {
			result := "ok"
			if err != nil {
				result = "error"
			}
			r.metrics.HistoryWrites.WithLabelValues(result).Inc()
		}
	}
}
