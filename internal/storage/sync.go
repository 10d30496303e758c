package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/taskgate-io/taskgate/pkg/models"
)

const (
	snapshotFileName = "current-task.json"
	backupDirName    = "backups"

	// backupRetention bounds the backup ring: only the most recent
	// pre-sync snapshots are kept.
	backupRetention = 5
)

// ErrNoSnapshot is returned by LoadSnapshot when the derived file does not
// exist. With an active task in the queue, callers resync instead of
// reporting "no task".
var ErrNoSnapshot = errors.New("derived task file does not exist")

// SyncOpts controls a single projection of the active task.
type SyncOpts struct {
	// SkipBackup disables the pre-write backup of the existing derived file.
	SkipBackup bool
}

// Synchronizer projects the active task from the queue into the derived
// current-task.json file and detects drift between the two. The derived
// file is a regenerable cache, never a source of truth.
type Synchronizer interface {
	SyncFromQueue(task *models.Task, opts SyncOpts) (*models.TaskSnapshot, error)
	LoadSnapshot() (*models.TaskSnapshot, error)
	// DetectManualEdit reports whether the on-disk derived file was edited
	// out-of-band for the given queue task. snapshot may be pre-loaded to
	// avoid a second read; pass nil to load from disk.
	DetectManualEdit(task *models.Task, snapshot *models.TaskSnapshot) (bool, error)
	SnapshotPath() string
}

type fileSynchronizer struct {
	dir  string
	lock *FileLock
	now  func() time.Time
}

// NewSynchronizer creates a Synchronizer writing current-task.json in dir.
// It locks the same path as the queue manager so queue writes and derived
// file writes are serialized together.
func NewSynchronizer(dir string) Synchronizer {
	return &fileSynchronizer{
		dir:  dir,
		lock: NewFileLock(filepath.Join(dir, lockFileName)),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *fileSynchronizer) SnapshotPath() string {
	return filepath.Join(s.dir, snapshotFileName)
}

func (s *fileSynchronizer) backupDir() string {
	return filepath.Join(s.dir, backupDirName)
}

// SyncFromQueue writes the derived file for task under the lock, with
// backup, atomic rename, and post-write verification. On any failure an
// existing backup is restored before the error propagates: the derived file
// is never left worse than before the attempt.
func (s *fileSynchronizer) SyncFromQueue(task *models.Task, opts SyncOpts) (*models.TaskSnapshot, error) {
	release, err := s.lock.Acquire()
	if err != nil {
		return nil, err
	}
	defer func() { _ = release() }()

	var backupPath string
	if !opts.SkipBackup {
		backupPath, err = s.backupCurrent()
		if err != nil {
			return nil, fmt.Errorf("syncing task %s: %w", task.ID, err)
		}
	}

	snapshot := models.SnapshotFromTask(task, s.now())

	// Requirements are caller-designated identifiers; when the queue record
	// does not carry them, carry them forward from the prior derived file.
	if len(snapshot.Requirements) == 0 {
		if prior, loadErr := s.LoadSnapshot(); loadErr == nil && prior.ID == task.ID {
			snapshot.Requirements = prior.Requirements
		}
	}

	if err := s.writeAndVerify(snapshot, task); err != nil {
		if backupPath != "" {
			if restoreErr := s.restoreBackup(backupPath); restoreErr != nil {
				return nil, fmt.Errorf("syncing task %s: %w (restoring backup also failed: %v)", task.ID, err, restoreErr)
			}
		}
		return nil, fmt.Errorf("syncing task %s: %w", task.ID, err)
	}

	return snapshot, nil
}

// writeAndVerify stages the snapshot in a temp file, renames it into place,
// then re-reads and cross-checks the written content against the source task.
func (s *fileSynchronizer) writeAndVerify(snapshot *models.TaskSnapshot, task *models.Task) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.tmp.%d", s.SnapshotPath(), s.now().UnixNano())
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("writing staging file: %w", err)
	}
	if err := os.Rename(tmpPath, s.SnapshotPath()); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming staging file: %w", err)
	}

	written, err := s.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("re-reading written snapshot: %w", err)
	}
	if written.ID != task.ID {
		return &models.ConsistencyError{Field: "id", QueueValue: task.ID, FileValue: written.ID}
	}
	if written.Workflow.CurrentState != task.Workflow.CurrentState {
		return &models.ConsistencyError{
			Field:      "workflow.currentState",
			QueueValue: string(task.Workflow.CurrentState),
			FileValue:  string(written.Workflow.CurrentState),
		}
	}
	if !checklistsEqual(written.Checklists, task.Checklists) {
		return &models.ConsistencyError{Message: fmt.Sprintf(
			"sync verification failed for task %s: written checklists do not match the queue record", task.ID)}
	}
	return nil
}

// backupCurrent copies the existing derived file into the backup ring and
// prunes entries beyond the retention limit. A missing derived file is not
// an error; there is simply nothing to back up.
func (s *fileSynchronizer) backupCurrent() (string, error) {
	data, err := os.ReadFile(s.SnapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading derived file for backup: %w", err)
	}

	if err := os.MkdirAll(s.backupDir(), 0o750); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}
	name := fmt.Sprintf("%s.backup.%s", snapshotFileName, s.now().Format("2006-01-02T15-04-05.000000000Z"))
	backupPath := filepath.Join(s.backupDir(), name)
	if err := os.WriteFile(backupPath, data, 0o600); err != nil {
		return "", fmt.Errorf("writing backup: %w", err)
	}

	if err := s.pruneBackups(); err != nil {
		return "", err
	}
	return backupPath, nil
}

func (s *fileSynchronizer) pruneBackups() error {
	entries, err := os.ReadDir(s.backupDir())
	if err != nil {
		return fmt.Errorf("listing backups: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) <= backupRetention {
		return nil
	}
	// Backup names embed a sortable timestamp, so lexical order is age order.
	sort.Strings(names)
	for _, name := range names[:len(names)-backupRetention] {
		if err := os.Remove(filepath.Join(s.backupDir(), name)); err != nil {
			return fmt.Errorf("pruning backup %s: %w", name, err)
		}
	}
	return nil
}

func (s *fileSynchronizer) restoreBackup(backupPath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("reading backup: %w", err)
	}
	if err := os.WriteFile(s.SnapshotPath(), data, 0o600); err != nil {
		return fmt.Errorf("restoring backup: %w", err)
	}
	return nil
}

// LoadSnapshot reads the derived file. Missing file yields ErrNoSnapshot.
func (s *fileSynchronizer) LoadSnapshot() (*models.TaskSnapshot, error) {
	data, err := os.ReadFile(s.SnapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	var snapshot models.TaskSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("loading snapshot: parsing: %w", err)
	}
	return &snapshot, nil
}

// DetectManualEdit compares stable content hashes of the queue record and
// the derived file, covering {id, goal, workflow, requirements, checklists}
// and excluding volatile fields such as the sync timestamp. Matching IDs
// with differing hashes means the file was edited out-of-band; the queue is
// authoritative and the caller must resync.
func (s *fileSynchronizer) DetectManualEdit(task *models.Task, snapshot *models.TaskSnapshot) (bool, error) {
	if snapshot == nil {
		var err error
		snapshot, err = s.LoadSnapshot()
		if err != nil {
			return false, err
		}
	}
	if snapshot.ID != task.ID {
		// A different task entirely is stale, not a manual edit; the caller
		// resyncs either way.
		return true, nil
	}

	taskHash, err := contentHash(task.ID, task.Goal, task.Workflow, task.Requirements, task.Checklists)
	if err != nil {
		return false, fmt.Errorf("detecting manual edit: %w", err)
	}
	fileHash, err := contentHash(snapshot.ID, snapshot.Goal, snapshot.Workflow, snapshot.Requirements, snapshot.Checklists)
	if err != nil {
		return false, fmt.Errorf("detecting manual edit: %w", err)
	}
	return taskHash != fileHash, nil
}

// hashedContent is the canonical subset of fields covered by drift hashing.
type hashedContent struct {
	ID           string                                     `json:"id"`
	Goal         string                                     `json:"goal"`
	Workflow     models.Workflow                            `json:"workflow"`
	Requirements []string                                   `json:"requirements,omitempty"`
	Checklists   map[models.WorkflowState]*models.Checklist `json:"checklists,omitempty"`
}

func contentHash(id, goal string, wf models.Workflow, reqs []string, checklists map[models.WorkflowState]*models.Checklist) (string, error) {
	data, err := json.Marshal(hashedContent{
		ID:           id,
		Goal:         goal,
		Workflow:     wf,
		Requirements: reqs,
		Checklists:   checklists,
	})
	if err != nil {
		return "", fmt.Errorf("hashing content: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func checklistsEqual(a, b map[models.WorkflowState]*models.Checklist) bool {
	da, err := json.Marshal(a)
	if err != nil {
		return false
	}
	db, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(da) == string(db)
}
