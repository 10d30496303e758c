// Package core contains the business logic of the engine: state-transition
// validation, the checklist gate, priority inference, advisory role
// activation, guidance generation, and the orchestrator that composes the
// storage layer into atomic workflow operations.
package core

import (
	"fmt"

	"github.com/taskgate-io/taskgate/pkg/models"
)

// ValidateStateTransition reports whether a task may move from one workflow
// state to another. The only legal transition is to the state immediately
// following the current one; same-state, backward, and skipping transitions
// are all rejected with an error naming the sole valid next state.
func ValidateStateTransition(from, to models.WorkflowState) error {
	if !models.IsValidState(from) {
		return &models.ValidationError{Field: "currentState", Message: fmt.Sprintf("%q is not a workflow state", from)}
	}
	if !models.IsValidState(to) {
		return &models.ValidationError{Field: "targetState", Message: fmt.Sprintf("%q is not a workflow state", to)}
	}
	if models.NextState(from) != to {
		return &models.TransitionError{From: from, To: to, ValidNext: models.NextState(from)}
	}
	return nil
}

// ValidateStateHistory checks a task's recorded history for corruption
// independently of any live transition: hand-edited files can corrupt
// history without a transition ever running. The history must be exactly the
// state sequence from the beginning, in order, and must never contain the
// current state; the current state must be the one immediately after the
// last recorded entry.
func ValidateStateHistory(task *models.Task) error {
	for i, entry := range task.Workflow.StateHistory {
		idx := models.StateIndex(entry.State)
		if idx < 0 {
			return &models.ConsistencyError{Message: fmt.Sprintf(
				"state history of task %s is corrupted: entry %d has unknown state %q", task.ID, i, entry.State)}
		}
		if idx != i {
			return &models.ConsistencyError{Message: fmt.Sprintf(
				"state history of task %s is corrupted: entry %d is %s, expected %s",
				task.ID, i, entry.State, models.WorkflowOrder[i])}
		}
	}

	currentIdx := models.StateIndex(task.Workflow.CurrentState)
	if currentIdx < 0 {
		return &models.ConsistencyError{Message: fmt.Sprintf(
			"task %s has unknown current state %q", task.ID, task.Workflow.CurrentState)}
	}
	if currentIdx != len(task.Workflow.StateHistory) {
		return &models.ConsistencyError{Message: fmt.Sprintf(
			"state history of task %s is corrupted: %d states recorded but current state %s is position %d in the sequence",
			task.ID, len(task.Workflow.StateHistory), task.Workflow.CurrentState, currentIdx)}
	}
	return nil
}

// ValidateBoth cross-checks the queue record against the derived file
// snapshot, identifying exactly which field diverged.
func ValidateBoth(task *models.Task, snapshot *models.TaskSnapshot) error {
	if task.ID != snapshot.ID {
		return &models.ConsistencyError{Field: "id", QueueValue: task.ID, FileValue: snapshot.ID}
	}
	if task.Workflow.CurrentState != snapshot.Workflow.CurrentState {
		return &models.ConsistencyError{
			Field:      "workflow.currentState",
			QueueValue: string(task.Workflow.CurrentState),
			FileValue:  string(snapshot.Workflow.CurrentState),
		}
	}
	return nil
}
