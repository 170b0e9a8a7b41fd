package monitoring

import "sync/atomic"

// Reporter forwards ranking diagnostics to the structured logger and counts them.
type Reporter struct {
	logger   *Logger
	metrics  *Metrics
	warnings atomic.Int64
	errors   atomic.Int64
}

// NewReporter creates a diagnostics reporter. metrics may be nil.
func NewReporter(logger *Logger, metrics *Metrics) *Reporter {
	return &Reporter{logger: logger, metrics: metrics}
}

func (r *Reporter) Warn(msg string, args ...any) {
	r.warnings.Add(1)
	r.logger.Warn(msg, args...)
}

func (r *Reporter) Error(msg string, err error, args ...any) {
	r.errors.Add(1)
	if r.metrics != nil {
		r.metrics.IncrementScoringFallback()
	}
	r.logger.Error(msg, append([]any{"error", err}, args...)...)
}

// Warnings returns the number of warnings reported so far.
func (r *Reporter) Warnings() int64 { return r.warnings.Load() }

// Errors returns the number of errors reported so far.
func (r *Reporter) Errors() int64 { return r.errors.Load() }
