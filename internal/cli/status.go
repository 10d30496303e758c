package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/taskgate-io/taskgate/internal/core"
	"github.com/taskgate-io/taskgate/pkg/models"
)

var (
	statusTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("230")).
				Background(lipgloss.Color("62")).
				Padding(0, 1)

	stateDoneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	stateCurrentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	statePendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	labelStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true)
	warnStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active task, its workflow position, and checklist",
	Long: `Show the active task. The derived current-task.json is read through the
engine: if the file is missing it is regenerated, and if it was edited by
hand the queue's record wins and the file is overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Orch == nil {
			return fmt.Errorf("orchestrator not initialized")
		}

		task, _, err := Orch.CurrentTask()
		if err != nil {
			if err == models.ErrNoActiveTask {
				fmt.Println("No active task. Create one with 'taskgate task create <goal>'.")
				return nil
			}
			return err
		}

		fmt.Println(statusTitleStyle.Render(fmt.Sprintf(" %s ", task.ID)))
		fmt.Printf("%s %s\n", labelStyle.Render("Goal:"), task.Goal)
		fmt.Printf("%s %s    %s %s\n",
			labelStyle.Render("Status:"), task.QueueStatus,
			labelStyle.Render("Priority:"), task.Priority)

		fmt.Printf("\n%s\n", labelStyle.Render("Workflow"))
		fmt.Println("  " + renderWorkflowLine(task.Workflow.CurrentState))

		if cl := task.Checklists[task.Workflow.CurrentState]; cl != nil {
			fmt.Printf("\n%s (%d%% of required items)\n",
				labelStyle.Render("Checklist for "+string(task.Workflow.CurrentState)), cl.Progress())
			for _, item := range cl.Items {
				mark := "[ ]"
				if item.Completed {
					mark = stateDoneStyle.Render("[x]")
				}
				suffix := ""
				if item.Required {
					suffix = " (required)"
				}
				if item.EvidenceRequired {
					suffix += " [evidence]"
				}
				fmt.Printf("  %s %s: %s%s\n", mark, item.ID, item.Description, suffix)
			}
			if unmet := cl.UnmetRequired(); len(unmet) > 0 {
				fmt.Printf("  %s %s\n", warnStyle.Render("Remaining:"), strings.Join(unmet, ", "))
			}
		}

		if len(task.Requirements) > 0 {
			fmt.Printf("\n%s %s\n", labelStyle.Render("Requirements:"), strings.Join(task.Requirements, ", "))
		}

		roles := core.ActivateRoles(task.Goal, task.Requirements, task.Workflow.CurrentState)
		if len(roles) > 0 {
			fmt.Printf("%s %s\n", labelStyle.Render("Suggested roles:"), strings.Join(roles, ", "))
		}
		return nil
	},
}

// renderWorkflowLine draws the state sequence with the current state
// highlighted.
func renderWorkflowLine(current models.WorkflowState) string {
	currentIdx := models.StateIndex(current)
	parts := make([]string, 0, len(models.WorkflowOrder))
	for i, s := range models.WorkflowOrder {
		switch {
		case i < currentIdx:
			parts = append(parts, stateDoneStyle.Render(string(s)))
		case i == currentIdx:
			parts = append(parts, stateCurrentStyle.Render(string(s)))
		default:
			parts = append(parts, statePendingStyle.Render(string(s)))
		}
	}
	return strings.Join(parts, " -> ")
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
