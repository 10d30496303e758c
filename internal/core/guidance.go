package core

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/taskgate-io/taskgate/pkg/models"
)

// GuidanceUpdate carries everything the guidance document needs: a
// consistent, already-persisted snapshot plus derived advisory material.
type GuidanceUpdate struct {
	Snapshot *models.TaskSnapshot
	Roles    []string
	Warnings []string
}

// GuidanceWriter renders STATUS.md after every successful transition,
// creation, or completion.
type GuidanceWriter struct {
	dir string
}

// NewGuidanceWriter creates a writer targeting STATUS.md in dir.
func NewGuidanceWriter(dir string) *GuidanceWriter {
	return &GuidanceWriter{dir: dir}
}

var statusTemplate = template.Must(template.New("status").Funcs(template.FuncMap{
	"progressBar": renderProgressBar,
	"checkbox": func(done bool) string {
		if done {
			return "[x]"
		}
		return "[ ]"
	},
}).Parse(`# Current Task

**ID:** {{.Snapshot.ID}}
**Goal:** {{.Snapshot.Goal}}
**Status:** {{.Snapshot.Status}}
**Priority:** {{.Snapshot.Priority}}

## Workflow
{{progressBar .Snapshot.Workflow.CurrentState}}

Current state: **{{.Snapshot.Workflow.CurrentState}}**{{if .NextState}} (next: {{.NextState}}){{end}}
{{- if .Snapshot.Workflow.StateHistory}}

Completed states:
{{- range .Snapshot.Workflow.StateHistory}}
- {{.State}} (entered {{.EnteredAt.Format "2006-01-02T15:04:05Z"}})
{{- end}}
{{- end}}

{{- if .Checklist}}

## Checklist for {{.Snapshot.Workflow.CurrentState}}
{{- range .Checklist.Items}}
- {{checkbox .Completed}} {{.ID}}: {{.Description}}{{if .Required}} (required){{end}}{{if .EvidenceRequired}} [evidence]{{end}}
{{- end}}
{{- end}}

{{- if .Snapshot.Requirements}}

## Linked Requirements
{{- range .Snapshot.Requirements}}
- {{.}}
{{- end}}
{{- end}}

{{- if .Roles}}

## Suggested Roles
{{- range .Roles}}
- {{.}}
{{- end}}
{{- end}}

{{- if .Warnings}}

## Warnings
{{- range .Warnings}}
- {{.}}
{{- end}}
{{- end}}
`))

// statusView is the template payload.
type statusView struct {
	Snapshot  *models.TaskSnapshot
	NextState models.WorkflowState
	Checklist *models.Checklist
	Roles     []string
	Warnings  []string
}

// Update renders and writes STATUS.md from the update.
func (w *GuidanceWriter) Update(update GuidanceUpdate) error {
	if update.Snapshot == nil {
		return fmt.Errorf("rendering guidance: snapshot is nil")
	}

	view := statusView{
		Snapshot:  update.Snapshot,
		NextState: models.NextState(update.Snapshot.Workflow.CurrentState),
		Checklist: update.Snapshot.Checklists[update.Snapshot.Workflow.CurrentState],
		Roles:     update.Roles,
		Warnings:  update.Warnings,
	}

	var buf bytes.Buffer
	if err := statusTemplate.Execute(&buf, view); err != nil {
		return fmt.Errorf("rendering guidance: %w", err)
	}
	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return fmt.Errorf("writing guidance: creating directory: %w", err)
	}
	path := filepath.Join(w.dir, "STATUS.md")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing guidance: %w", err)
	}
	return nil
}

// renderProgressBar draws the six workflow states as a single-line marker
// sequence, e.g. "●──●──◉──○──○──○" with the current state highlighted.
func renderProgressBar(current models.WorkflowState) string {
	currentIdx := models.StateIndex(current)
	marks := make([]string, 0, len(models.WorkflowOrder))
	for i := range models.WorkflowOrder {
		switch {
		case i < currentIdx:
			marks = append(marks, "●")
		case i == currentIdx:
			marks = append(marks, "◉")
		default:
			marks = append(marks, "○")
		}
	}
	return strings.Join(marks, "──")
}
