package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/taskgate-io/taskgate/pkg/models"
)

var advanceCmd = &cobra.Command{
	Use:   "advance [target-state]",
	Short: "Advance the active task to the next workflow state",
	Long: `Advance the active task one state forward. Without an argument, the target
is the state immediately following the current one. With an argument, the
target must still be exactly the next state; skips and reversals are
rejected.

The transition is blocked if the task entered its current state too
recently, or if an enforced checklist for the current state has unmet
required items. The REVIEWING -> READY_TO_COMMIT boundary always requires a
complete REVIEWING checklist.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Orch == nil {
			return fmt.Errorf("orchestrator not initialized")
		}

		var target models.WorkflowState
		if len(args) == 1 {
			target = models.WorkflowState(strings.ToUpper(args[0]))
		} else {
			task, _, err := Orch.CurrentTask()
			if err != nil {
				return err
			}
			target = models.NextState(task.Workflow.CurrentState)
			if target == "" {
				return fmt.Errorf("task %s is already at %s: run 'taskgate task complete'",
					task.ID, task.Workflow.CurrentState)
			}
		}

		task, warnings, err := Orch.UpdateState(target)
		if err != nil {
			return fmt.Errorf("advancing state: %w", err)
		}

		fmt.Printf("Task %s advanced to %s\n", task.ID, task.Workflow.CurrentState)
		if next := models.NextState(task.Workflow.CurrentState); next != "" {
			fmt.Printf("  Next state: %s\n", next)
		}
		for _, w := range warnings {
			fmt.Printf("  Warning: %s\n", w)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(advanceCmd)
}
