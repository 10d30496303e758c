package core

import (
	"strings"

	"github.com/taskgate-io/taskgate/pkg/models"
)

// Keyword tables for priority inference, checked in severity order.
var (
	criticalKeywords = []string{"critical", "urgent", "outage", "security", "vulnerability", "data loss"}
	highKeywords     = []string{"bug", "fix", "broken", "regression", "crash", "error"}
	lowKeywords      = []string{"refactor", "cleanup", "docs", "documentation", "typo", "polish"}
)

// InferPriority derives a priority from goal text when the caller did not
// set one explicitly. Unmatched goals default to MEDIUM.
func InferPriority(goal string) models.Priority {
	lower := strings.ToLower(goal)
	for _, kw := range criticalKeywords {
		if strings.Contains(lower, kw) {
			return models.PriorityCritical
		}
	}
	for _, kw := range highKeywords {
		if strings.Contains(lower, kw) {
			return models.PriorityHigh
		}
	}
	for _, kw := range lowKeywords {
		if strings.Contains(lower, kw) {
			return models.PriorityLow
		}
	}
	return models.PriorityMedium
}
