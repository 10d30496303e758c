package models

import "time"

// EvidenceType identifies the kind of proof attached to a checklist item.
// The three variants form a closed set; each carries its own required payload.
type EvidenceType string

const (
	EvidenceFileCreated EvidenceType = "file_created"
	EvidenceCommandRun  EvidenceType = "command_run"
	EvidenceManual      EvidenceType = "manual"
)

// Evidence is the proof recorded when an evidence-required checklist item is
// completed. Exactly one of the type-specific payloads is meaningful:
// Files for file_created, Command for command_run, ManualNotes for manual.
type Evidence struct {
	Type        EvidenceType `json:"type"`
	Description string       `json:"description"`
	Timestamp   time.Time    `json:"timestamp"`
	Files       []string     `json:"files,omitempty"`
	Command     string       `json:"command,omitempty"`
	ManualNotes string       `json:"manualNotes,omitempty"`
}

// ChecklistItem is a single unit of required or optional work within a
// state's checklist.
type ChecklistItem struct {
	ID               string     `json:"id"`
	Description      string     `json:"description"`
	Required         bool       `json:"required"`
	Completed        bool       `json:"completed"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	EvidenceRequired bool       `json:"evidenceRequired"`
	Evidence         *Evidence  `json:"evidence,omitempty"`
}

// Checklist is the set of items gating a workflow state.
type Checklist struct {
	Items       []ChecklistItem `json:"items"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// Item returns a pointer to the item with the given ID, or nil if absent.
func (c *Checklist) Item(id string) *ChecklistItem {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return &c.Items[i]
		}
	}
	return nil
}

// UnmetRequired returns the IDs of required items not yet completed.
func (c *Checklist) UnmetRequired() []string {
	var unmet []string
	for _, item := range c.Items {
		if item.Required && !item.Completed {
			unmet = append(unmet, item.ID)
		}
	}
	return unmet
}

// Progress returns the completion percentage across required items.
// A checklist with no required items counts as 100%.
func (c *Checklist) Progress() int {
	required, done := 0, 0
	for _, item := range c.Items {
		if !item.Required {
			continue
		}
		required++
		if item.Completed {
			done++
		}
	}
	if required == 0 {
		return 100
	}
	return done * 100 / required
}
