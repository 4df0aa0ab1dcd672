package dune

import (
	"fmt"
	"time"
)

// SubmissionError means the engine did not hand back an execution handle.
// It is never retried.
type SubmissionError struct {
	QueryID    int
	StatusCode int
	Body       string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dune submit query %d: %v", e.QueryID, e.Err)
	}
	return fmt.Sprintf("dune submit query %d: no execution_id (status %d): %s", e.QueryID, e.StatusCode, e.Body)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ExecutionError means the remote query itself failed. Payload is the raw
// status response.
type ExecutionError struct {
	ExecutionID string
	Payload     string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("dune execution %s failed: %s", e.ExecutionID, e.Payload)
}

// PollTimeoutError means the execution never reached a terminal state
// within the poll budget.
type PollTimeoutError struct {
	ExecutionID string
	Attempts    int
	Budget      time.Duration
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("dune execution %s: timed out after %d attempts (%s)", e.ExecutionID, e.Attempts, e.Budget)
}
