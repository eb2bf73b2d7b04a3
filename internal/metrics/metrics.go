// Package metrics provides a minimal instrumentation interface with a no-op
// default and a Prometheus-backed implementation.
package metrics

import "time"

// Run outcome labels.
const (
	OutcomeCompleted   = "completed"
	OutcomeFailed      = "failed"
	OutcomeNoSelection = "no_selection"
)

// Recorder defines the metrics surface used across the codebase.
type Recorder interface {
	IncToolTotal(tool string, success bool)
	ObserveToolSeconds(tool string, success bool, seconds float64)
	ObserveAgentRounds(rounds int)
	IncRunOutcome(outcome string)
	AddTokens(kind string, n int)
	IncPollTotal(success bool)
}

// noopRecorder implements Recorder with no-ops.
type noopRecorder struct{}

func (noopRecorder) IncToolTotal(string, bool)                {}
func (noopRecorder) ObserveToolSeconds(string, bool, float64) {}
func (noopRecorder) ObserveAgentRounds(int)                   {}
func (noopRecorder) IncRunOutcome(string)                     {}
func (noopRecorder) AddTokens(string, int)                    {}
func (noopRecorder) IncPollTotal(bool)                        {}

// Noop returns a recorder that discards everything.
func Noop() Recorder {
	return noopRecorder{}
}

// OrNoop returns r, or the no-op recorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return noopRecorder{}
	}
	return r
}

// TimeTool is a helper to time tool handler operations.
func TimeTool(r Recorder, tool string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		dur := time.Since(start).Seconds()
		r.IncToolTotal(tool, success)
		r.ObserveToolSeconds(tool, success, dur)
	}
}
