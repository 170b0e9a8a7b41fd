package analysis

import "sync"

// Reporter receives diagnostics raised while ranking and projecting.
// Implementations must be safe for concurrent use.
type Reporter interface {
	Warn(msg string, args ...any)
	Error(msg string, err error, args ...any)
}

// NopReporter discards every diagnostic.
type NopReporter struct{}

func (NopReporter) Warn(string, ...any)         {}
func (NopReporter) Error(string, error, ...any) {}

// Diagnostic is one message captured by a RecordingReporter.
type Diagnostic struct {
	Level   string
	Message string
	Err     error
	Args    []any
}

// RecordingReporter keeps every diagnostic in memory.
type RecordingReporter struct {
	mu          sync.Mutex
	diagnostics []Diagnostic
}

func (r *RecordingReporter) Warn(msg string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics = append(r.diagnostics, Diagnostic{Level: "warn", Message: msg, Args: args})
}

func (r *RecordingReporter) Error(msg string, err error, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics = append(r.diagnostics, Diagnostic{Level: "error", Message: msg, Err: err, Args: args})
}

// Diagnostics returns a copy of what has been recorded so far.
func (r *RecordingReporter) Diagnostics() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Diagnostic(nil), r.diagnostics...)
}
