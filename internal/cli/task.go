package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/taskgate-io/taskgate/internal/core"
	"github.com/taskgate-io/taskgate/pkg/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks (create, list, activate, complete, archive)",
	Long: `Task lifecycle commands.

A created task becomes ACTIVE when no task is active, QUEUED otherwise. Only
one task is ever ACTIVE; the other states are QUEUED, DONE, and ARCHIVED.
Completed and archived tasks are retained for audit, never deleted.`,
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <goal>",
	Short: "Create a new task",
	Long: `Create a new task with the given goal.

The goal must contain at least 10 non-whitespace characters. Priority is
inferred from the goal text unless --priority is given. Use --activate to
force the new task active, demoting the current active task back to the
queue.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Orch == nil {
			return fmt.Errorf("orchestrator not initialized")
		}

		priorityFlag, _ := cmd.Flags().GetString("priority")
		requirementsFlag, _ := cmd.Flags().GetStringSlice("requirements")
		activateFlag, _ := cmd.Flags().GetBool("activate")

		task, err := Orch.CreateTask(args[0], core.CreateTaskOpts{
			Priority:     models.Priority(priorityFlag),
			Requirements: requirementsFlag,
			Activate:     activateFlag,
		})
		if err != nil {
			return fmt.Errorf("creating task: %w", err)
		}

		fmt.Printf("Created task %s\n", task.ID)
		fmt.Printf("  Status:   %s\n", task.QueueStatus)
		fmt.Printf("  Priority: %s\n", task.Priority)
		fmt.Printf("  State:    %s\n", task.Workflow.CurrentState)
		if len(task.Requirements) > 0 {
			fmt.Printf("  Requires: %v\n", task.Requirements)
		}
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, optionally filtered by status or priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		if Orch == nil {
			return fmt.Errorf("orchestrator not initialized")
		}

		statusFlag, _ := cmd.Flags().GetString("status")
		priorityFlag, _ := cmd.Flags().GetString("priority")
		requirementFlag, _ := cmd.Flags().GetString("requirement")

		var filter core.QueueListFilter
		if statusFlag != "" {
			filter.Status = []models.QueueStatus{models.QueueStatus(statusFlag)}
		}
		if priorityFlag != "" {
			filter.Priority = []models.Priority{models.Priority(priorityFlag)}
		}
		filter.Requirement = requirementFlag

		tasks, err := Orch.ListTasks(filter)
		if err != nil {
			return fmt.Errorf("listing tasks: %w", err)
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks found.")
			return nil
		}

		for _, t := range tasks {
			fmt.Printf("%-12s %-8s %-8s %-15s %s\n",
				t.ID, t.QueueStatus, t.Priority, t.Workflow.CurrentState, truncate(t.Goal, 60))
		}
		return nil
	},
}

var taskActivateCmd = &cobra.Command{
	Use:   "activate <task-id>",
	Short: "Activate a queued task",
	Long: `Promote a QUEUED task to ACTIVE. Any currently active task is demoted back
to QUEUED first, preserving the single active task invariant.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Orch == nil {
			return fmt.Errorf("orchestrator not initialized")
		}
		task, err := Orch.ActivateTask(args[0])
		if err != nil {
			return fmt.Errorf("activating task: %w", err)
		}
		fmt.Printf("Activated task %s (%s, state %s)\n", task.ID, task.Priority, task.Workflow.CurrentState)
		return nil
	},
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete",
	Short: "Complete the active task",
	Long: `Complete the active task. Only legal once the task has reached
READY_TO_COMMIT. Depending on configuration, the oldest queued task is
activated automatically.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Orch == nil {
			return fmt.Errorf("orchestrator not initialized")
		}
		completed, next, err := Orch.CompleteTask()
		if err != nil {
			return fmt.Errorf("completing task: %w", err)
		}
		fmt.Printf("Completed task %s\n", completed.ID)
		if next != nil {
			fmt.Printf("Auto-activated task %s: %s\n", next.ID, truncate(next.Goal, 60))
		}
		return nil
	},
}

var taskArchiveCmd = &cobra.Command{
	Use:   "archive <task-id>",
	Short: "Archive a task",
	Long: `Archive a task. Archived tasks are retained for history and audit; they are
excluded from auto-activation and never deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Orch == nil {
			return fmt.Errorf("orchestrator not initialized")
		}
		task, err := Orch.ArchiveTask(args[0])
		if err != nil {
			return fmt.Errorf("archiving task: %w", err)
		}
		fmt.Printf("Archived task %s\n", task.ID)
		return nil
	},
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func init() {
	taskCreateCmd.Flags().String("priority", "", "task priority (CRITICAL, HIGH, MEDIUM, LOW)")
	taskCreateCmd.Flags().StringSlice("requirements", nil, "external requirement identifiers to link")
	taskCreateCmd.Flags().Bool("activate", false, "force the new task active")

	taskListCmd.Flags().String("status", "", "filter by queue status (QUEUED, ACTIVE, DONE, ARCHIVED)")
	taskListCmd.Flags().String("priority", "", "filter by priority")
	taskListCmd.Flags().String("requirement", "", "filter by linked requirement id")

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskActivateCmd)
	taskCmd.AddCommand(taskCompleteCmd)
	taskCmd.AddCommand(taskArchiveCmd)
	rootCmd.AddCommand(taskCmd)
}
