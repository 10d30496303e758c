package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoActiveTask is returned when an operation requires an active task and
// the queue has none.
var ErrNoActiveTask = errors.New("no active task: create one or activate a queued task")

// ValidationError reports invalid caller input (goal too short, unknown
// state, bad evidence payload). Safe to retry once the input is fixed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError reports a reference to a task ID not present in the queue.
type NotFoundError struct {
	TaskID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %s not found", e.TaskID)
}

// TransitionError reports an illegal workflow state transition. ValidNext
// names the sole state the task may advance to.
type TransitionError struct {
	From      WorkflowState
	To        WorkflowState
	ValidNext WorkflowState
}

func (e *TransitionError) Error() string {
	if e.ValidNext == "" {
		return fmt.Sprintf("invalid transition from %s to %s: %s is the final state", e.From, e.To, e.From)
	}
	return fmt.Sprintf("invalid transition from %s to %s: the only valid next state is %s", e.From, e.To, e.ValidNext)
}

// ConsistencyError reports disagreement between the queue record and the
// derived file, a failed sync verification, or a corrupted state history.
// The queue is authoritative; callers resync rather than trust the file.
type ConsistencyError struct {
	Field      string
	QueueValue string
	FileValue  string
	Message    string
}

func (e *ConsistencyError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("queue and derived file disagree on %s: queue has %q, file has %q",
		e.Field, e.QueueValue, e.FileValue)
}

// ChecklistIncompleteError reports a transition blocked by unmet required
// checklist items. MissingItems carries the exact remaining work.
type ChecklistIncompleteError struct {
	State        WorkflowState
	MissingItems []string
	Progress     int
}

func (e *ChecklistIncompleteError) Error() string {
	return fmt.Sprintf("checklist for %s is %d%% complete: unmet required items: %s",
		e.State, e.Progress, strings.Join(e.MissingItems, ", "))
}

// RateLimitError reports a transition attempted before the minimum dwell
// time in the current state has elapsed.
type RateLimitError struct {
	State     WorkflowState
	Remaining time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("task entered %s too recently: wait %s before advancing",
		e.State, e.Remaining.Round(time.Second))
}

// CompletionError reports an attempt to complete a task before it reached
// READY_TO_COMMIT.
type CompletionError struct {
	Current WorkflowState
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("cannot complete task at %s: advance to %s first", e.Current, StateReadyToCommit)
}
