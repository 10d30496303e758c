package core

import (
	"sort"
	"strings"

	"github.com/taskgate-io/taskgate/pkg/models"
)

// Advisory role identifiers suggested to the external actor. Roles never
// gate a transition.
const (
	RoleArchitect   = "architect"
	RoleImplementer = "implementer"
	RoleTester      = "tester"
	RoleReviewer    = "reviewer"
	RoleSecurity    = "security"
)

// stateRoles maps each workflow state to its natural role.
var stateRoles = map[models.WorkflowState]string{
	models.StateUnderstanding: RoleArchitect,
	models.StateDesigning:     RoleArchitect,
	models.StateImplementing:  RoleImplementer,
	models.StateTesting:       RoleTester,
	models.StateReviewing:     RoleReviewer,
	models.StateReadyToCommit: RoleReviewer,
}

var roleKeywords = map[string][]string{
	RoleSecurity:    {"security", "auth", "oauth", "credential", "vulnerability", "encryption"},
	RoleTester:      {"test", "coverage", "flaky"},
	RoleArchitect:   {"design", "architecture", "schema", "migration"},
	RoleImplementer: {"implement", "build", "add", "feature"},
}

// ActivateRoles returns the advisory role set for a goal, its linked
// requirements, and the current workflow state, sorted for stable output.
func ActivateRoles(goal string, requirements []string, state models.WorkflowState) []string {
	seen := map[string]bool{}
	if r, ok := stateRoles[state]; ok {
		seen[r] = true
	}

	text := strings.ToLower(goal + " " + strings.Join(requirements, " "))
	for role, keywords := range roleKeywords {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				seen[role] = true
				break
			}
		}
	}

	roles := make([]string, 0, len(seen))
	for r := range seen {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}
