package core

import (
	"errors"
	"testing"
	"time"

	"github.com/taskgate-io/taskgate/pkg/models"
)

func TestValidateStateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    models.WorkflowState
		to      models.WorkflowState
		wantErr bool
	}{
		{"forward one", models.StateUnderstanding, models.StateDesigning, false},
		{"forward one mid-sequence", models.StateTesting, models.StateReviewing, false},
		{"into terminal", models.StateReviewing, models.StateReadyToCommit, false},
		{"same state", models.StateDesigning, models.StateDesigning, true},
		{"backward", models.StateImplementing, models.StateDesigning, true},
		{"skip forward", models.StateUnderstanding, models.StateImplementing, true},
		{"out of terminal", models.StateReadyToCommit, models.StateUnderstanding, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStateTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateStateTransition(%s, %s) error = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
			}
			if tt.wantErr {
				var terr *models.TransitionError
				if !errors.As(err, &terr) {
					t.Fatalf("expected TransitionError, got %T", err)
				}
				if terr.ValidNext != models.NextState(tt.from) {
					t.Errorf("ValidNext = %s, want %s", terr.ValidNext, models.NextState(tt.from))
				}
			}
		})
	}
}

func TestValidateStateTransitionUnknownStates(t *testing.T) {
	var verr *models.ValidationError
	if err := ValidateStateTransition("BOGUS", models.StateDesigning); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for unknown from state, got %v", err)
	}
	if err := ValidateStateTransition(models.StateDesigning, "BOGUS"); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for unknown target state, got %v", err)
	}
}

func historyTask(current models.WorkflowState, history ...models.WorkflowState) *models.Task {
	entered := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	task := &models.Task{
		ID:       "TG-history01",
		Workflow: models.Workflow{CurrentState: current, StateEnteredAt: entered},
	}
	for _, s := range history {
		task.Workflow.StateHistory = append(task.Workflow.StateHistory, models.StateHistoryEntry{
			State:     s,
			EnteredAt: entered,
		})
		entered = entered.Add(time.Hour)
	}
	return task
}

func TestValidateStateHistory(t *testing.T) {
	tests := []struct {
		name    string
		task    *models.Task
		wantErr bool
	}{
		{"fresh task", historyTask(models.StateUnderstanding), false},
		{"one step in", historyTask(models.StateDesigning, models.StateUnderstanding), false},
		{"full walk", historyTask(models.StateReadyToCommit,
			models.StateUnderstanding, models.StateDesigning, models.StateImplementing,
			models.StateTesting, models.StateReviewing), false},
		{"history skips a state", historyTask(models.StateImplementing,
			models.StateUnderstanding, models.StateImplementing), true},
		{"history out of order", historyTask(models.StateImplementing,
			models.StateDesigning, models.StateUnderstanding), true},
		{"current state lags history", historyTask(models.StateDesigning,
			models.StateUnderstanding, models.StateDesigning), true},
		{"current state ahead of history", historyTask(models.StateTesting,
			models.StateUnderstanding), true},
		{"unknown entry state", historyTask(models.StateDesigning, "BOGUS"), true},
		{"unknown current state", historyTask("BOGUS"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStateHistory(tt.task)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var cerr *models.ConsistencyError
				if !errors.As(err, &cerr) {
					t.Fatalf("expected ConsistencyError, got %T", err)
				}
			}
		})
	}
}

func TestValidateBoth(t *testing.T) {
	task := historyTask(models.StateTesting,
		models.StateUnderstanding, models.StateDesigning, models.StateImplementing)
	snapshot := models.SnapshotFromTask(task, time.Now().UTC())

	if err := ValidateBoth(task, snapshot); err != nil {
		t.Fatalf("matching pair rejected: %v", err)
	}

	snapshot.Workflow.CurrentState = models.StateDesigning
	err := ValidateBoth(task, snapshot)
	var cerr *models.ConsistencyError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConsistencyError, got %v", err)
	}
	if cerr.Field != "workflow.currentState" {
		t.Errorf("Field = %q, want workflow.currentState", cerr.Field)
	}

	snapshot.ID = "TG-other0001"
	err = ValidateBoth(task, snapshot)
	if !errors.As(err, &cerr) || cerr.Field != "id" {
		t.Errorf("expected ConsistencyError on id, got %v", err)
	}
}
