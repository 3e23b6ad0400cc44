package model

import "time"

// Outcome is the classification of a single drain invocation. Every invocation
// that reaches the backlog maps to exactly one outcome.
type Outcome string

const (
	OutcomeNoBacklog       Outcome = "no_backlog"
	OutcomeQueueDrained    Outcome = "queue_drained"
	OutcomeProcessed       Outcome = "processed"
	OutcomeDispatchFailed  Outcome = "dispatch_failed"
	OutcomeDispatchTimeout Outcome = "dispatch_timeout"
)

// AllOutcomes lists every outcome in a stable order.
var AllOutcomes = []Outcome{
	OutcomeNoBacklog,
	OutcomeQueueDrained,
	OutcomeProcessed,
	OutcomeDispatchFailed,
	OutcomeDispatchTimeout,
}

// Dispatched reports whether the outcome involved a call to the evaluator.
func (o Outcome) Dispatched() bool {
	return o == OutcomeProcessed || o == OutcomeDispatchFailed || o == OutcomeDispatchTimeout
}

// PRRef identifies the PR a drain report is about.
type PRRef struct {
	ID     int64
	Number int
	Repo   string
}

// DrainReport is the structured result of one drain invocation.
type DrainReport struct {
	RunID             string
	Outcome           Outcome
	PR                *PRRef // nil for no_backlog and queue_drained.
	Score             int
	Error             string // Truncated diagnostic for failures and timeouts.
	RemainingEstimate int
	Duration          time.Duration
}

// DispatchAttempt is one recorded call to the evaluator.
type DispatchAttempt struct {
	ID          int64
	PRID        int64
	RunID       string
	Outcome     Outcome
	Error       string
	Duration    time.Duration
	AttemptedAt time.Time
}
