package models

import "time"

// Config holds the engine-level settings loaded from .taskgate.yaml and the
// TASKGATE_* environment. Enforcement and dwell settings are threaded
// explicitly into the orchestrator rather than read from globals, so tests
// can configure them per instance.
type Config struct {
	// ContextDir is the directory holding tasks.json, current-task.json,
	// backups/ and STATUS.md. Relative paths resolve against the base path.
	ContextDir string

	// EnforcedStates lists the workflow states whose checklists block the
	// transition out of them. The REVIEWING boundary is always enforced by
	// the orchestrator regardless of this list.
	EnforcedStates []WorkflowState

	// MinStateDwell is the minimum time a task must spend in a state before
	// it may advance. Zero disables rate limiting.
	MinStateDwell time.Duration

	// AutoActivateNext promotes the oldest queued task when the active task
	// completes.
	AutoActivateNext bool

	// ChecklistTemplateFile optionally overrides the built-in per-state
	// checklist templates.
	ChecklistTemplateFile string

	// EventLogPath is the JSONL event log location. Empty disables logging.
	EventLogPath string
}
