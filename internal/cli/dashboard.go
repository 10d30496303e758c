package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/taskgate-io/taskgate/internal/core"
	"github.com/taskgate-io/taskgate/pkg/models"
)

// Dashboard panel indices.
const (
	panelQueue = iota
	panelWorkflow
	panelChecklist
	panelCount
)

type dashboardModel struct {
	activePanel int
	width       int
	height      int

	// Data.
	tasks  []*models.Task
	active *models.Task

	// State.
	loading bool
	err     error
}

// dashboardDataMsg carries loaded data back to the model.
type dashboardDataMsg struct {
	tasks  []*models.Task
	active *models.Task
	err    error
}

var (
	dashTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	dashPanelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	dashActivePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	dashHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	dashStatusActive   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	dashStatusQueued   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dashStatusDone     = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	dashStatusArchived = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	dashHelpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel() dashboardModel {
	return dashboardModel{activePanel: panelQueue, loading: true}
}

func (m dashboardModel) Init() tea.Cmd {
	return loadDashboardData
}

func loadDashboardData() tea.Msg {
	msg := dashboardDataMsg{}
	if Orch == nil {
		msg.err = fmt.Errorf("orchestrator not initialized")
		return msg
	}

	tasks, err := Orch.ListTasks(core.QueueListFilter{})
	if err != nil {
		msg.err = err
		return msg
	}
	msg.tasks = tasks

	if active, _, err := Orch.CurrentTask(); err == nil {
		msg.active = active
	}
	return msg
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dashboardDataMsg:
		m.loading = false
		m.tasks = msg.tasks
		m.active = msg.active
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "r":
			m.loading = true
			return m, loadDashboardData
		}
	}
	return m, nil
}

func (m dashboardModel) View() string {
	if m.loading {
		return "\n  Loading taskgate dashboard...\n"
	}
	if m.err != nil {
		return fmt.Sprintf("\n  Error: %v\n\n  Press q to quit.\n", m.err)
	}

	title := dashTitleStyle.Render(" taskgate dashboard ")
	panels := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderPanel(panelQueue, m.queuePanel()),
		m.renderPanel(panelWorkflow, m.workflowPanel()),
		m.renderPanel(panelChecklist, m.checklistPanel()),
	)
	help := dashHelpStyle.Render("tab: switch panel | r: refresh | q: quit")
	return fmt.Sprintf("%s\n\n%s\n\n%s\n", title, panels, help)
}

func (m dashboardModel) renderPanel(idx int, content string) string {
	style := dashPanelStyle
	if m.activePanel == idx {
		style = dashActivePanelStyle
	}
	return style.Render(content)
}

func (m dashboardModel) queuePanel() string {
	var b strings.Builder
	b.WriteString(dashHeaderStyle.Render("Queue"))
	b.WriteString("\n")
	if len(m.tasks) == 0 {
		b.WriteString("no tasks")
		return b.String()
	}
	for _, t := range m.tasks {
		style := dashStatusQueued
		switch t.QueueStatus {
		case models.StatusActive:
			style = dashStatusActive
		case models.StatusDone:
			style = dashStatusDone
		case models.StatusArchived:
			style = dashStatusArchived
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			style.Render(string(t.QueueStatus)), t.ID, truncate(t.Goal, 32)))
	}
	return b.String()
}

func (m dashboardModel) workflowPanel() string {
	var b strings.Builder
	b.WriteString(dashHeaderStyle.Render("Workflow"))
	b.WriteString("\n")
	if m.active == nil {
		b.WriteString("no active task")
		return b.String()
	}
	currentIdx := models.StateIndex(m.active.Workflow.CurrentState)
	for i, s := range models.WorkflowOrder {
		mark := "○"
		style := dashStatusQueued
		switch {
		case i < currentIdx:
			mark = "●"
			style = dashStatusDone
		case i == currentIdx:
			mark = "◉"
			style = dashStatusActive
		}
		b.WriteString(style.Render(fmt.Sprintf("%s %s", mark, s)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m dashboardModel) checklistPanel() string {
	var b strings.Builder
	b.WriteString(dashHeaderStyle.Render("Checklist"))
	b.WriteString("\n")
	if m.active == nil {
		b.WriteString("no active task")
		return b.String()
	}
	cl := m.active.Checklists[m.active.Workflow.CurrentState]
	if cl == nil {
		b.WriteString("no checklist for " + string(m.active.Workflow.CurrentState))
		return b.String()
	}
	for _, item := range cl.Items {
		mark := "[ ]"
		style := dashStatusQueued
		if item.Completed {
			mark = "[x]"
			style = dashStatusDone
		}
		b.WriteString(style.Render(fmt.Sprintf("%s %s", mark, item.ID)))
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("\n%d%% of required items", cl.Progress()))
	return b.String()
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive dashboard showing queue, workflow, and checklist",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := tea.NewProgram(newDashboardModel(), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("running dashboard: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
