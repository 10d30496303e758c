package core

import (
	"fmt"
	"os"
	"time"

	"github.com/taskgate-io/taskgate/pkg/models"
	"gopkg.in/yaml.v3"
)

// AutomatedValidationItemID is the well-known REVIEWING item completed or
// left open by the automated review pass.
const AutomatedValidationItemID = "automated-validation"

// ItemTemplate describes one checklist item in a state's template.
type ItemTemplate struct {
	ID               string `yaml:"id"`
	Description      string `yaml:"description"`
	Required         bool   `yaml:"required"`
	EvidenceRequired bool   `yaml:"evidence_required"`
}

// templateFile is the on-disk shape of a checklist template override file.
type templateFile struct {
	States map[models.WorkflowState][]ItemTemplate `yaml:"states"`
}

// DefaultChecklistTemplates returns the built-in per-state checklist
// templates.
func DefaultChecklistTemplates() map[models.WorkflowState][]ItemTemplate {
	return map[models.WorkflowState][]ItemTemplate{
		models.StateUnderstanding: {
			{ID: "restate-goal", Description: "Restate the goal in your own words", Required: true},
			{ID: "identify-constraints", Description: "Identify constraints and affected components", Required: true},
			{ID: "list-unknowns", Description: "List open questions and unknowns", Required: false},
		},
		models.StateDesigning: {
			{ID: "outline-approach", Description: "Outline the implementation approach", Required: true},
			{ID: "enumerate-edge-cases", Description: "Enumerate edge cases the design must handle", Required: true},
			{ID: "consider-alternatives", Description: "Note alternatives considered and why they were rejected", Required: false},
		},
		models.StateImplementing: {
			{ID: "implement-changes", Description: "Implement the planned changes", Required: true, EvidenceRequired: true},
			{ID: "follow-conventions", Description: "Match the conventions of the surrounding code", Required: false},
		},
		models.StateTesting: {
			{ID: "run-tests", Description: "Run the test suite and record the command", Required: true, EvidenceRequired: true},
			{ID: "cover-edge-cases", Description: "Add or verify tests for the enumerated edge cases", Required: true},
		},
		models.StateReviewing: {
			{ID: AutomatedValidationItemID, Description: "Automated validation pass", Required: true},
			{ID: "self-review", Description: "Review the full diff as if reviewing a stranger's change", Required: true},
			{ID: "verify-requirements", Description: "Verify every linked requirement is addressed", Required: true, EvidenceRequired: true},
			{ID: "check-naming", Description: "Check naming and documentation quality", Required: false},
		},
		models.StateReadyToCommit: {
			{ID: "write-commit-message", Description: "Draft the commit message", Required: false},
		},
	}
}

// ChecklistGate owns per-state checklist templates, initializes checklists
// on state entry, validates evidence, and decides whether a state's
// checklist blocks a transition.
type ChecklistGate struct {
	templates map[models.WorkflowState][]ItemTemplate
	now       func() time.Time
}

// NewChecklistGate creates a gate with the built-in templates. If
// templatePath names an existing file, states listed there replace the
// built-in templates; a missing file is not an error.
func NewChecklistGate(templatePath string) (*ChecklistGate, error) {
	gate := &ChecklistGate{
		templates: DefaultChecklistTemplates(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	if templatePath == "" {
		return gate, nil
	}

	data, err := os.ReadFile(templatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return gate, nil
		}
		return nil, fmt.Errorf("reading checklist templates: %w", err)
	}
	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing checklist templates: %w", err)
	}
	for state, items := range tf.States {
		if !models.IsValidState(state) {
			return nil, fmt.Errorf("parsing checklist templates: %q is not a workflow state", state)
		}
		if len(items) > 0 {
			gate.templates[state] = items
		}
	}
	return gate, nil
}

// TemplateChecklist builds a fresh checklist for a state from its template.
// States without a template yield nil.
func (g *ChecklistGate) TemplateChecklist(state models.WorkflowState) *models.Checklist {
	items, ok := g.templates[state]
	if !ok || len(items) == 0 {
		return nil
	}
	cl := &models.Checklist{Items: make([]models.ChecklistItem, 0, len(items))}
	for _, it := range items {
		cl.Items = append(cl.Items, models.ChecklistItem{
			ID:               it.ID,
			Description:      it.Description,
			Required:         it.Required,
			EvidenceRequired: it.EvidenceRequired,
		})
	}
	return cl
}

// InitChecklist attaches the state's checklist to the task if absent. The
// REVIEWING checklist is additionally mirrored into the legacy single-slot
// field.
func (g *ChecklistGate) InitChecklist(task *models.Task, state models.WorkflowState) {
	if task.Checklists == nil {
		task.Checklists = make(map[models.WorkflowState]*models.Checklist)
	}
	if task.Checklists[state] == nil {
		if cl := g.TemplateChecklist(state); cl != nil {
			task.Checklists[state] = cl
		}
	}
	g.mirrorReview(task)
}

func (g *ChecklistGate) mirrorReview(task *models.Task) {
	if cl, ok := task.Checklists[models.StateReviewing]; ok {
		task.ReviewChecklist = cl
	}
}

// MarkItemComplete completes a checklist item, validating any supplied
// evidence. Items declaring EvidenceRequired hard-fail without evidence.
func (g *ChecklistGate) MarkItemComplete(task *models.Task, state models.WorkflowState, itemID string, evidence *models.Evidence) error {
	g.InitChecklist(task, state)
	cl := task.Checklists[state]
	if cl == nil {
		return &models.ValidationError{Field: "state", Message: fmt.Sprintf("state %s has no checklist", state)}
	}
	item := cl.Item(itemID)
	if item == nil {
		return &models.ValidationError{Field: "itemId", Message: fmt.Sprintf(
			"checklist for %s has no item %q: valid items are %v", state, itemID, itemIDs(cl))}
	}
	if item.EvidenceRequired && evidence == nil {
		return &models.ValidationError{Field: "evidence", Message: fmt.Sprintf(
			"item %q requires evidence: attach file_created, command_run, or manual evidence", itemID)}
	}
	if evidence != nil {
		if err := ValidateEvidence(evidence); err != nil {
			return err
		}
		if evidence.Timestamp.IsZero() {
			evidence.Timestamp = g.now()
		}
		item.Evidence = evidence
	}

	now := g.now()
	item.Completed = true
	item.CompletedAt = &now

	if len(cl.UnmetRequired()) == 0 && cl.CompletedAt == nil {
		cl.CompletedAt = &now
	}
	g.mirrorReview(task)
	return nil
}

// ValidateEvidence checks the closed tagged union exhaustively: each variant
// has its own required payload.
func ValidateEvidence(e *models.Evidence) error {
	switch e.Type {
	case models.EvidenceFileCreated:
		if len(e.Files) == 0 {
			return &models.ValidationError{Field: "evidence.files", Message: "file_created evidence requires a non-empty file list"}
		}
	case models.EvidenceCommandRun:
		if e.Command == "" {
			return &models.ValidationError{Field: "evidence.command", Message: "command_run evidence requires the command that was run"}
		}
	case models.EvidenceManual:
		if e.ManualNotes == "" {
			return &models.ValidationError{Field: "evidence.manualNotes", Message: "manual evidence requires non-empty notes"}
		}
	default:
		return &models.ValidationError{Field: "evidence.type", Message: fmt.Sprintf(
			"%q is not an evidence type: use file_created, command_run, or manual", e.Type)}
	}
	return nil
}

// ValidateStateChecklistComplete is the transition predicate. When the state
// is not enforced and has no checklist, it returns silently. When enforced,
// unmet required items produce a typed gating error carrying the exact
// remaining work and completion percentage.
func (g *ChecklistGate) ValidateStateChecklistComplete(task *models.Task, state models.WorkflowState, enforced bool) error {
	cl := task.Checklists[state]
	if cl == nil {
		if !enforced {
			return nil
		}
		cl = g.TemplateChecklist(state)
		if cl == nil {
			return nil
		}
	}
	unmet := cl.UnmetRequired()
	if len(unmet) == 0 {
		return nil
	}
	if !enforced {
		return nil
	}
	return &models.ChecklistIncompleteError{State: state, MissingItems: unmet, Progress: cl.Progress()}
}

func itemIDs(cl *models.Checklist) []string {
	ids := make([]string, 0, len(cl.Items))
	for _, it := range cl.Items {
		ids = append(ids, it.ID)
	}
	return ids
}
