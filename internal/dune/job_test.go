package dune

import "testing"

func TestClassifyState(t *testing.T) {
	tests := []struct {
		status string
		want   State
	}{
		{"QUERY_STATE_COMPLETED", StateCompleted},
		{"QUERY_STATE_FAILED", StateFailed},
		{"QUERY_STATE_PENDING", StatePending},
		{"QUERY_STATE_EXECUTING", StatePending},
		{"QUERY_STATE_COMPLETED_PARTIAL", StatePending},
		{"", StatePending},
	}
	for _, tt := range tests {
		if got := ClassifyState(tt.status); got != tt.want {
			t.Errorf("ClassifyState(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestNextState(t *testing.T) {
	tests := []struct {
		status       string
		attempt, max int
		want         State
	}{
		{"QUERY_STATE_EXECUTING", 1, 3, StatePending},
		{"QUERY_STATE_EXECUTING", 3, 3, StateTimedOut},
		{"QUERY_STATE_COMPLETED", 3, 3, StateCompleted},
		{"QUERY_STATE_FAILED", 3, 3, StateFailed},
		{"QUERY_STATE_FAILED", 1, 3, StateFailed},
	}
	for _, tt := range tests {
		if got := nextState(tt.status, tt.attempt, tt.max); got != tt.want {
			t.Errorf("nextState(%q, %d, %d) = %v, want %v", tt.status, tt.attempt, tt.max, got, tt.want)
		}
	}
}

func TestStateTerminal(t *testing.T) {
	if StatePending.Terminal() {
		t.Error("pending reported terminal")
	}
	for _, s := range []State{StateCompleted, StateFailed, StateTimedOut} {
		if !s.Terminal() {
			t.Errorf("%v not terminal", s)
		}
	}
}
