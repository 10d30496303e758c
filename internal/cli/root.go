// Package cli implements the taskgate command-line interface. Commands call
// into the orchestrator through package-level service vars wired by app.go,
// so every invocation goes through the same locking and gating as any other
// process.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "taskgate",
	Short: "taskgate - durable task workflow engine for AI-assisted development",
	Long: `taskgate persists a single-writer task queue across process invocations and
gates progression through a fixed sequence of work states:

  UNDERSTANDING -> DESIGNING -> IMPLEMENTING -> TESTING -> REVIEWING -> READY_TO_COMMIT

The queue (tasks.json) is the source of truth; the derived current-task.json
is a regenerable projection for external consumers. All mutations are
serialized through an advisory file lock, so concurrent invocations cannot
corrupt durable state.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("taskgate %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
