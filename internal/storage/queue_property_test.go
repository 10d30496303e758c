package storage

import (
	"fmt"
	"testing"

	"github.com/taskgate-io/taskgate/pkg/models"
	"pgregory.net/rapid"
)

// For any sequence of create, activate, complete, and archive operations,
// at most one task is ACTIVE and ActiveTaskID points at it iff it exists.
func TestSingleActiveInvariantUnderRandomOperations(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m := NewQueueManager(t.TempDir()).(*fileQueueManager)

		var ids []string
		numOps := rapid.IntRange(1, 25).Draw(rt, "numOps")
		for i := 0; i < numOps; i++ {
			op := rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("op_%d", i))
			switch {
			case op == 0 || len(ids) == 0:
				activate := rapid.Bool().Draw(rt, fmt.Sprintf("activate_%d", i))
				task, err := m.CreateTask(fmt.Sprintf("generated task number %d for the run", i), CreateTaskOpts{Activate: activate})
				if err != nil {
					rt.Fatalf("creating task: %v", err)
				}
				ids = append(ids, task.ID)
			case op == 1:
				id := rapid.SampledFrom(ids).Draw(rt, fmt.Sprintf("activateId_%d", i))
				_, _ = m.ActivateTask(id) // rejection for non-QUEUED is expected
			case op == 2:
				id := rapid.SampledFrom(ids).Draw(rt, fmt.Sprintf("completeId_%d", i))
				_, _, _ = m.CompleteTask(id, rapid.Bool().Draw(rt, fmt.Sprintf("auto_%d", i)))
			default:
				id := rapid.SampledFrom(ids).Draw(rt, fmt.Sprintf("archiveId_%d", i))
				_, _ = m.ArchiveTask(id)
			}

			q, err := m.Load()
			if err != nil {
				rt.Fatalf("loading queue after op %d: %v", i, err)
			}
			activeCount := 0
			var activeID string
			for _, task := range q.Tasks {
				if task.QueueStatus == models.StatusActive {
					activeCount++
					activeID = task.ID
				}
			}
			if activeCount > 1 {
				rt.Fatalf("after op %d: %d tasks ACTIVE, want at most 1", i, activeCount)
			}
			if q.ActiveTaskID != activeID {
				rt.Fatalf("after op %d: ActiveTaskID = %q but ACTIVE task is %q", i, q.ActiveTaskID, activeID)
			}
		}
	})
}

// For any queue reached through store operations, the persisted metadata
// counters equal counts recomputed from scratch over the task list.
func TestMetadataCountersMatchTasks(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m := NewQueueManager(t.TempDir()).(*fileQueueManager)

		numTasks := rapid.IntRange(1, 10).Draw(rt, "numTasks")
		var ids []string
		for i := 0; i < numTasks; i++ {
			task, err := m.CreateTask(fmt.Sprintf("generated task number %d for the run", i), CreateTaskOpts{})
			if err != nil {
				rt.Fatalf("creating task: %v", err)
			}
			ids = append(ids, task.ID)
		}
		numArchives := rapid.IntRange(0, numTasks).Draw(rt, "numArchives")
		for i := 0; i < numArchives; i++ {
			_, _ = m.ArchiveTask(ids[i])
		}

		q, err := m.Load()
		if err != nil {
			rt.Fatalf("loading queue: %v", err)
		}

		var queued, active, done, archived int
		for _, task := range q.Tasks {
			switch task.QueueStatus {
			case models.StatusQueued:
				queued++
			case models.StatusActive:
				active++
			case models.StatusDone:
				done++
			case models.StatusArchived:
				archived++
			}
		}

		md := q.Metadata
		if md.TotalTasks != len(q.Tasks) || md.QueuedCount != queued || md.ActiveCount != active ||
			md.CompletedCount != done || md.ArchivedCount != archived {
			rt.Fatalf("metadata %+v does not match recount (total %d queued %d active %d done %d archived %d)",
				md, len(q.Tasks), queued, active, done, archived)
		}
	})
}
