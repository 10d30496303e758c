package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/taskgate-io/taskgate/pkg/models"
)

var checkCmd = &cobra.Command{
	Use:   "check <item-id>",
	Short: "Mark a checklist item complete on the active task",
	Long: `Mark a checklist item complete, attaching evidence when the item requires
it. Evidence is one of three kinds, each with its own payload:

  --files a.go,b.go         file_created evidence
  --command "go test ./..." command_run evidence
  --notes "reviewed diff"   manual evidence

Without --state, the item is looked up in the checklist of the task's
current workflow state.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Orch == nil {
			return fmt.Errorf("orchestrator not initialized")
		}

		stateFlag, _ := cmd.Flags().GetString("state")
		filesFlag, _ := cmd.Flags().GetStringSlice("files")
		commandFlag, _ := cmd.Flags().GetString("command")
		notesFlag, _ := cmd.Flags().GetString("notes")
		descFlag, _ := cmd.Flags().GetString("description")

		var state models.WorkflowState
		if stateFlag != "" {
			state = models.WorkflowState(strings.ToUpper(stateFlag))
		} else {
			task, _, err := Orch.CurrentTask()
			if err != nil {
				return err
			}
			state = task.Workflow.CurrentState
		}

		var evidence *models.Evidence
		switch {
		case len(filesFlag) > 0:
			evidence = &models.Evidence{Type: models.EvidenceFileCreated, Description: descFlag, Files: filesFlag}
		case commandFlag != "":
			evidence = &models.Evidence{Type: models.EvidenceCommandRun, Description: descFlag, Command: commandFlag}
		case notesFlag != "":
			evidence = &models.Evidence{Type: models.EvidenceManual, Description: descFlag, ManualNotes: notesFlag}
		}

		task, err := Orch.CompleteChecklistItem(state, args[0], evidence)
		if err != nil {
			return fmt.Errorf("completing checklist item: %w", err)
		}

		cl := task.Checklists[state]
		fmt.Printf("Marked %s complete for %s (%d%% of required items done)\n", args[0], state, cl.Progress())
		if unmet := cl.UnmetRequired(); len(unmet) > 0 {
			fmt.Printf("  Remaining required: %s\n", strings.Join(unmet, ", "))
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().String("state", "", "workflow state owning the checklist (default: current state)")
	checkCmd.Flags().StringSlice("files", nil, "files created or changed (file_created evidence)")
	checkCmd.Flags().String("command", "", "command that was run (command_run evidence)")
	checkCmd.Flags().String("notes", "", "free-form notes (manual evidence)")
	checkCmd.Flags().String("description", "", "what the evidence shows")
	rootCmd.AddCommand(checkCmd)
}
