package dune

import (
	"time"

	"github.com/web3-frozen/onchain-ingest/internal/raw"
)

// Engine-reported execution states. Any other value is treated as pending.
const (
	StateCompletedValue = "QUERY_STATE_COMPLETED"
	StateFailedValue    = "QUERY_STATE_FAILED"
)

// QueryJob identifies one remote execution.
type QueryJob struct {
	QueryID     int
	Parameters  map[string]any
	ExecutionID string
	SubmittedAt time.Time
}

// ResultSet is the row set of a completed execution.
type ResultSet struct {
	ExecutionID string
	Rows        []raw.Row
}

// State is the poller's view of an execution.
type State int

const (
	StatePending State = iota
	StateCompleted
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// Terminal reports whether no further polling is needed.
func (s State) Terminal() bool { return s != StatePending }

// ClassifyState maps an engine status string to a State. It never
// returns StateTimedOut; that state only exists locally.
func ClassifyState(status string) State {
	switch status {
	case StateCompletedValue:
		return StateCompleted
	case StateFailedValue:
		return StateFailed
	default:
		return StatePending
	}
}

// nextState is the poll loop transition: the engine status observed on
// attempt (1-based) out of maxAttempts.
func nextState(status string, attempt, maxAttempts int) State {
	s := ClassifyState(status)
	if s == StatePending && attempt >= maxAttempts {
		return StateTimedOut
	}
	return s
}
