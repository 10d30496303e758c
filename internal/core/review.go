package core

import (
	"fmt"

	"github.com/taskgate-io/taskgate/pkg/models"
)

// defaultReviewRunner is the built-in automated validation pass. It checks
// that the task's recorded history is coherent and that every completed
// evidence-required item across all checklists actually carries well-formed
// evidence. Findings downgrade to an explanation in the summary; the pass
// itself never errors.
type defaultReviewRunner struct{}

// NewDefaultReviewRunner returns the built-in ReviewRunner.
func NewDefaultReviewRunner() ReviewRunner {
	return defaultReviewRunner{}
}

func (defaultReviewRunner) Run(task *models.Task) (bool, string) {
	if err := ValidateStateHistory(task); err != nil {
		return false, fmt.Sprintf("state history check failed: %v", err)
	}

	for state, cl := range task.Checklists {
		if cl == nil {
			continue
		}
		for _, item := range cl.Items {
			if !item.Completed || !item.EvidenceRequired {
				continue
			}
			if item.Evidence == nil {
				return false, fmt.Sprintf("item %s/%s is marked complete but carries no evidence", state, item.ID)
			}
			if err := ValidateEvidence(item.Evidence); err != nil {
				return false, fmt.Sprintf("item %s/%s has malformed evidence: %v", state, item.ID, err)
			}
		}
	}
	return true, "history coherent; all completed evidence-required items carry valid evidence"
}
