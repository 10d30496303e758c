package models

import "time"

// WorkflowState represents one of the six fixed phases a task passes through.
// States are strictly ordered; a task may only advance to the immediately
// following state, never backward and never skipping.
type WorkflowState string

const (
	StateUnderstanding WorkflowState = "UNDERSTANDING"
	StateDesigning     WorkflowState = "DESIGNING"
	StateImplementing  WorkflowState = "IMPLEMENTING"
	StateTesting       WorkflowState = "TESTING"
	StateReviewing     WorkflowState = "REVIEWING"
	StateReadyToCommit WorkflowState = "READY_TO_COMMIT"
)

// WorkflowOrder is the canonical state sequence, first to last.
var WorkflowOrder = []WorkflowState{
	StateUnderstanding,
	StateDesigning,
	StateImplementing,
	StateTesting,
	StateReviewing,
	StateReadyToCommit,
}

// StateIndex returns the position of s in WorkflowOrder, or -1 if s is not
// a recognized workflow state.
func StateIndex(s WorkflowState) int {
	for i, state := range WorkflowOrder {
		if state == s {
			return i
		}
	}
	return -1
}

// IsValidState reports whether s is one of the six workflow states.
func IsValidState(s WorkflowState) bool {
	return StateIndex(s) >= 0
}

// NextState returns the state immediately following s, or "" if s is the
// terminal state or unrecognized.
func NextState(s WorkflowState) WorkflowState {
	idx := StateIndex(s)
	if idx < 0 || idx == len(WorkflowOrder)-1 {
		return ""
	}
	return WorkflowOrder[idx+1]
}

// StateHistoryEntry records a previously occupied workflow state.
type StateHistoryEntry struct {
	State     WorkflowState `json:"state"`
	EnteredAt time.Time     `json:"enteredAt"`
}

// Workflow tracks a task's position in the fixed state sequence.
// StateHistory contains every state the task previously occupied, in order,
// and never includes CurrentState.
type Workflow struct {
	CurrentState   WorkflowState       `json:"currentState"`
	StateEnteredAt time.Time           `json:"stateEnteredAt"`
	StateHistory   []StateHistoryEntry `json:"stateHistory"`
}
