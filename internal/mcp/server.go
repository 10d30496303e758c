// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the workflow engine as tools for AI coding assistants. Every tool goes
// through the orchestrator, so nothing bypasses the queue lock or the
// transition gates.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/taskgate-io/taskgate/internal/core"
	"github.com/taskgate-io/taskgate/internal/observability"
	"github.com/taskgate-io/taskgate/pkg/models"
)

// Server wraps the orchestrator and exposes it as MCP tools.
type Server struct {
	server      *gomcp.Server
	orch        core.Orchestrator
	metricsCalc observability.MetricsCalculator
}

// NewServer creates an MCP server. metricsCalc may be nil if observability
// is disabled.
func NewServer(orch core.Orchestrator, metricsCalc observability.MetricsCalculator, version string) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{orch: orch, metricsCalc: metricsCalc}
	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "taskgate", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type taskOutput struct {
	ID           string   `json:"id"`
	Goal         string   `json:"goal"`
	QueueStatus  string   `json:"queue_status"`
	Priority     string   `json:"priority"`
	CurrentState string   `json:"current_state"`
	NextState    string   `json:"next_state,omitempty"`
	CreatedAt    string   `json:"created_at"`
	CompletedAt  string   `json:"completed_at,omitempty"`
	Requirements []string `json:"requirements,omitempty"`
}

type checklistItemOutput struct {
	ID               string `json:"id"`
	Description      string `json:"description"`
	Required         bool   `json:"required"`
	Completed        bool   `json:"completed"`
	EvidenceRequired bool   `json:"evidence_required"`
}

type getCurrentTaskInput struct{}

type getCurrentTaskOutput struct {
	Task      taskOutput            `json:"task"`
	Checklist []checklistItemOutput `json:"checklist,omitempty"`
	Roles     []string              `json:"roles,omitempty"`
}

type createTaskInput struct {
	Goal         string   `json:"goal" jsonschema:"required,what the task should accomplish (at least 10 non-whitespace characters)"`
	Priority     string   `json:"priority,omitempty" jsonschema:"optional priority (CRITICAL, HIGH, MEDIUM, LOW); inferred from the goal when omitted"`
	Requirements []string `json:"requirements,omitempty" jsonschema:"external requirement identifiers linked to the task"`
	Activate     bool     `json:"activate,omitempty" jsonschema:"force the new task active, demoting any current active task to queued"`
}

type listTasksInput struct {
	Status string `json:"status,omitempty" jsonschema:"filter by queue status (QUEUED, ACTIVE, DONE, ARCHIVED)"`
}

type listTasksOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type updateStateInput struct {
	TargetState string `json:"target_state" jsonschema:"required,the workflow state to advance to; only the immediately next state is legal"`
}

type updateStateOutput struct {
	Task     taskOutput `json:"task"`
	Warnings []string   `json:"warnings,omitempty"`
}

type completeItemInput struct {
	State        string   `json:"state" jsonschema:"required,the workflow state owning the checklist"`
	ItemID       string   `json:"item_id" jsonschema:"required,the checklist item to mark complete"`
	EvidenceType string   `json:"evidence_type,omitempty" jsonschema:"evidence type: file_created, command_run, or manual"`
	Description  string   `json:"description,omitempty" jsonschema:"what the evidence shows"`
	Files        []string `json:"files,omitempty" jsonschema:"files created or changed (file_created evidence)"`
	Command      string   `json:"command,omitempty" jsonschema:"the command that was run (command_run evidence)"`
	ManualNotes  string   `json:"manual_notes,omitempty" jsonschema:"free-form notes (manual evidence)"`
}

type completeTaskInput struct{}

type completeTaskOutput struct {
	Completed taskOutput  `json:"completed"`
	Next      *taskOutput `json:"next,omitempty"`
	Message   string      `json:"message"`
}

type messageOutput struct {
	Message string `json:"message"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	TasksCreated       int            `json:"tasks_created"`
	TasksCompleted     int            `json:"tasks_completed"`
	TransitionsByState map[string]int `json:"transitions_by_state"`
	GateRejections     int            `json:"gate_rejections"`
	DriftRepairs       int            `json:"drift_repairs"`
	EventCount         int            `json:"event_count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_current_task",
		Description: "Get the active task with its workflow state, current checklist, and suggested roles. Repairs the derived task file if it is missing or drifted.",
	}, s.handleGetCurrentTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "create_task",
		Description: "Create a new task. It becomes ACTIVE if no task is active, otherwise QUEUED.",
	}, s.handleCreateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List tasks with an optional queue status filter (QUEUED, ACTIVE, DONE, ARCHIVED).",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "update_state",
		Description: "Advance the active task to the next workflow state. Rejects skips, reversals, rate-limited attempts, and incomplete enforced checklists.",
	}, s.handleUpdateState)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "complete_checklist_item",
		Description: "Mark a checklist item complete, with evidence when the item requires it.",
	}, s.handleCompleteItem)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "complete_task",
		Description: "Complete the active task. Only legal from READY_TO_COMMIT; may auto-activate the oldest queued task.",
	}, s.handleCompleteTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get workflow metrics from the event log: task throughput, transitions per state, gate rejections, drift repairs.",
	}, s.handleGetMetrics)
}

// --- Tool handlers ---

func (s *Server) handleGetCurrentTask(_ context.Context, _ *gomcp.CallToolRequest, _ getCurrentTaskInput) (*gomcp.CallToolResult, getCurrentTaskOutput, error) {
	task, _, err := s.orch.CurrentTask()
	if err != nil {
		return errorResult(fmt.Sprintf("getting current task: %s", err)), getCurrentTaskOutput{}, nil
	}

	out := getCurrentTaskOutput{
		Task:  taskToOutput(task),
		Roles: core.ActivateRoles(task.Goal, task.Requirements, task.Workflow.CurrentState),
	}
	if cl := task.Checklists[task.Workflow.CurrentState]; cl != nil {
		for _, item := range cl.Items {
			out.Checklist = append(out.Checklist, checklistItemOutput{
				ID:               item.ID,
				Description:      item.Description,
				Required:         item.Required,
				Completed:        item.Completed,
				EvidenceRequired: item.EvidenceRequired,
			})
		}
	}
	return nil, out, nil
}

func (s *Server) handleCreateTask(_ context.Context, _ *gomcp.CallToolRequest, input createTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.Goal == "" {
		return errorResult("goal is required"), taskOutput{}, nil
	}

	task, err := s.orch.CreateTask(input.Goal, core.CreateTaskOpts{
		Priority:     models.Priority(input.Priority),
		Requirements: input.Requirements,
		Activate:     input.Activate,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("creating task: %s", err)), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleListTasks(_ context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	var filter core.QueueListFilter
	if input.Status != "" {
		filter.Status = []models.QueueStatus{models.QueueStatus(input.Status)}
	}
	tasks, err := s.orch.ListTasks(filter)
	if err != nil {
		return errorResult(fmt.Sprintf("listing tasks: %s", err)), listTasksOutput{}, nil
	}

	out := listTasksOutput{Tasks: make([]taskOutput, len(tasks)), Count: len(tasks)}
	for i, t := range tasks {
		out.Tasks[i] = taskToOutput(t)
	}
	return nil, out, nil
}

func (s *Server) handleUpdateState(_ context.Context, _ *gomcp.CallToolRequest, input updateStateInput) (*gomcp.CallToolResult, updateStateOutput, error) {
	if input.TargetState == "" {
		return errorResult("target_state is required"), updateStateOutput{}, nil
	}

	task, warnings, err := s.orch.UpdateState(models.WorkflowState(input.TargetState))
	if err != nil {
		return errorResult(fmt.Sprintf("updating state: %s", err)), updateStateOutput{}, nil
	}
	return nil, updateStateOutput{Task: taskToOutput(task), Warnings: warnings}, nil
}

func (s *Server) handleCompleteItem(_ context.Context, _ *gomcp.CallToolRequest, input completeItemInput) (*gomcp.CallToolResult, messageOutput, error) {
	if input.State == "" || input.ItemID == "" {
		return errorResult("state and item_id are required"), messageOutput{}, nil
	}

	var evidence *models.Evidence
	if input.EvidenceType != "" {
		evidence = &models.Evidence{
			Type:        models.EvidenceType(input.EvidenceType),
			Description: input.Description,
			Files:       input.Files,
			Command:     input.Command,
			ManualNotes: input.ManualNotes,
		}
	}

	if _, err := s.orch.CompleteChecklistItem(models.WorkflowState(input.State), input.ItemID, evidence); err != nil {
		return errorResult(fmt.Sprintf("completing item %s: %s", input.ItemID, err)), messageOutput{}, nil
	}
	return nil, messageOutput{Message: fmt.Sprintf("item %s marked complete for %s", input.ItemID, input.State)}, nil
}

func (s *Server) handleCompleteTask(_ context.Context, _ *gomcp.CallToolRequest, _ completeTaskInput) (*gomcp.CallToolResult, completeTaskOutput, error) {
	completed, next, err := s.orch.CompleteTask()
	if err != nil {
		return errorResult(fmt.Sprintf("completing task: %s", err)), completeTaskOutput{}, nil
	}

	out := completeTaskOutput{
		Completed: taskToOutput(completed),
		Message:   fmt.Sprintf("task %s completed", completed.ID),
	}
	if next != nil {
		n := taskToOutput(next)
		out.Next = &n
		out.Message = fmt.Sprintf("task %s completed; task %s auto-activated", completed.ID, next.ID)
	}
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (observability may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}
	sinceTime, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}
	return nil, metricsOutput{
		TasksCreated:       metrics.TasksCreated,
		TasksCompleted:     metrics.TasksCompleted,
		TransitionsByState: metrics.TransitionsByState,
		GateRejections:     metrics.GateRejections,
		DriftRepairs:       metrics.DriftRepairs,
		EventCount:         metrics.EventCount,
	}, nil
}

// --- Helpers ---

func taskToOutput(t *models.Task) taskOutput {
	out := taskOutput{
		ID:           t.ID,
		Goal:         t.Goal,
		QueueStatus:  string(t.QueueStatus),
		Priority:     string(t.Priority),
		CurrentState: string(t.Workflow.CurrentState),
		NextState:    string(models.NextState(t.Workflow.CurrentState)),
		CreatedAt:    t.CreatedAt.Format(time.RFC3339),
		Requirements: t.Requirements,
	}
	if t.CompletedAt != nil {
		out.CompletedAt = t.CompletedAt.Format(time.RFC3339)
	}
	return out
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{TransitionsByState: make(map[string]int)}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a duration string like "7d" or "24h" into the
// corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}
	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
