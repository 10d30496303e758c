// Package internal provides the App struct that wires the taskgate engine
// together and initializes the CLI layer.
package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/taskgate-io/taskgate/internal/cli"
	"github.com/taskgate-io/taskgate/internal/core"
	"github.com/taskgate-io/taskgate/internal/observability"
	"github.com/taskgate-io/taskgate/internal/storage"
	"github.com/taskgate-io/taskgate/pkg/models"
)

// App holds all service dependencies for the taskgate engine.
type App struct {
	BasePath   string
	ContextDir string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.Config

	// Storage layer
	QueueMgr storage.QueueManager
	SyncMgr  storage.Synchronizer

	// Core services
	Gate     *core.ChecklistGate
	Reviewer core.ReviewRunner
	Guidance *core.GuidanceWriter
	Orch     core.Orchestrator

	// Observability
	EventLog    observability.EventLog
	MetricsCalc observability.MetricsCalculator
}

// NewApp creates and wires all components of the taskgate engine. basePath
// is the directory containing .taskgate.yaml (typically the repository root);
// durable state lives under the configured context directory beneath it.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	app.Config = cfg

	contextDir := cfg.ContextDir
	if !filepath.IsAbs(contextDir) {
		contextDir = filepath.Join(basePath, contextDir)
	}
	if err := os.MkdirAll(contextDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating context directory: %w", err)
	}
	app.ContextDir = contextDir

	// --- Storage layer ---
	app.QueueMgr = storage.NewQueueManager(contextDir)
	app.SyncMgr = storage.NewSynchronizer(contextDir)

	// --- Observability ---
	eventLogPath := cfg.EventLogPath
	if eventLogPath != "" && !filepath.IsAbs(eventLogPath) {
		eventLogPath = filepath.Join(contextDir, eventLogPath)
	}
	if eventLogPath != "" {
		app.EventLog, err = observability.NewJSONLEventLog(eventLogPath)
		if err != nil {
			// Non-fatal: the engine runs without an event log.
			app.EventLog = nil
		}
	}
	if app.EventLog != nil {
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}

	// --- Core services ---
	templatePath := cfg.ChecklistTemplateFile
	if templatePath != "" && !filepath.IsAbs(templatePath) {
		templatePath = filepath.Join(basePath, templatePath)
	}
	app.Gate, err = core.NewChecklistGate(templatePath)
	if err != nil {
		return nil, fmt.Errorf("loading checklist templates: %w", err)
	}

	app.Reviewer = core.NewDefaultReviewRunner()
	app.Guidance = core.NewGuidanceWriter(contextDir)

	var events core.EventLogger
	if app.EventLog != nil {
		events = observability.NewRecorder(app.EventLog)
	}

	app.Orch = core.NewOrchestrator(
		&queueStoreAdapter{mgr: app.QueueMgr},
		&snapshotSyncAdapter{mgr: app.SyncMgr},
		app.Gate,
		app.Reviewer,
		app.Guidance,
		events,
		core.OrchestratorOpts{
			EnforcedStates:   cfg.EnforcedStates,
			MinStateDwell:    cfg.MinStateDwell,
			AutoActivateNext: cfg.AutoActivateNext,
		},
	)

	// --- Wire CLI package-level variables ---
	cli.Orch = app.Orch
	cli.MetricsCalc = app.MetricsCalc
	cli.ContextDir = contextDir

	return app, nil
}

// Close releases resources held by the App, such as the event log file
// handle. It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// ResolveBasePath determines the directory the engine treats as the project
// root. It checks the TASKGATE_HOME env var, then walks up from the current
// directory looking for .taskgate.yaml or an existing .ai-context directory,
// and falls back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv("TASKGATE_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for probe := dir; ; {
		if _, err := os.Stat(filepath.Join(probe, ".taskgate.yaml")); err == nil {
			return probe
		}
		if fi, err := os.Stat(filepath.Join(probe, ".ai-context")); err == nil && fi.IsDir() {
			return probe
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}
	return dir
}

// --- Adapters ---

// queueStoreAdapter adapts storage.QueueManager to core.QueueStore.
type queueStoreAdapter struct {
	mgr storage.QueueManager
}

func (a *queueStoreAdapter) CreateTask(goal string, opts core.QueueCreateOpts) (*models.Task, error) {
	return a.mgr.CreateTask(goal, storage.CreateTaskOpts{
		Priority:     opts.Priority,
		Requirements: opts.Requirements,
		Activate:     opts.Activate,
	})
}

func (a *queueStoreAdapter) ActivateTask(taskID string) (*models.Task, error) {
	return a.mgr.ActivateTask(taskID)
}

func (a *queueStoreAdapter) CompleteTask(taskID string, autoActivateNext bool) (*models.Task, *models.Task, error) {
	return a.mgr.CompleteTask(taskID, autoActivateNext)
}

func (a *queueStoreAdapter) ArchiveTask(taskID string) (*models.Task, error) {
	return a.mgr.ArchiveTask(taskID)
}

func (a *queueStoreAdapter) ActiveTask() (*models.Task, error) {
	return a.mgr.ActiveTask()
}

func (a *queueStoreAdapter) GetTask(taskID string) (*models.Task, error) {
	return a.mgr.GetTask(taskID)
}

func (a *queueStoreAdapter) ListTasks(filter core.QueueListFilter) ([]*models.Task, error) {
	return a.mgr.ListTasks(storage.QueueFilter{
		Status:      filter.Status,
		Priority:    filter.Priority,
		Requirement: filter.Requirement,
	})
}

func (a *queueStoreAdapter) Mutate(fn func(q *models.Queue) error) (*models.Queue, error) {
	return a.mgr.Mutate(fn)
}

// snapshotSyncAdapter adapts storage.Synchronizer to core.SnapshotSync.
type snapshotSyncAdapter struct {
	mgr storage.Synchronizer
}

func (a *snapshotSyncAdapter) SyncFromQueue(task *models.Task) (*models.TaskSnapshot, error) {
	return a.mgr.SyncFromQueue(task, storage.SyncOpts{})
}

func (a *snapshotSyncAdapter) LoadSnapshot() (*models.TaskSnapshot, bool, error) {
	snap, err := a.mgr.LoadSnapshot()
	if err != nil {
		if errors.Is(err, storage.ErrNoSnapshot) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return snap, true, nil
}

func (a *snapshotSyncAdapter) DetectManualEdit(task *models.Task, snapshot *models.TaskSnapshot) (bool, error) {
	return a.mgr.DetectManualEdit(task, snapshot)
}
