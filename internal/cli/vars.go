package cli

import (
	"github.com/taskgate-io/taskgate/internal/core"
	"github.com/taskgate-io/taskgate/internal/observability"
)

// Service instances, set during app initialization in app.go.
var (
	Orch        core.Orchestrator
	MetricsCalc observability.MetricsCalculator

	// ContextDir is the resolved context directory, shown in diagnostics.
	ContextDir string
)
