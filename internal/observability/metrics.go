package observability

import (
	"fmt"
	"time"
)

// Metrics holds workflow metrics derived on demand from the event log.
type Metrics struct {
	TasksCreated       int            `json:"tasks_created"`
	TasksCompleted     int            `json:"tasks_completed"`
	TasksArchived      int            `json:"tasks_archived"`
	TransitionsByState map[string]int `json:"transitions_by_state"`
	GateRejections     int            `json:"gate_rejections"`
	DriftRepairs       int            `json:"drift_repairs"`
	Rollbacks          int            `json:"rollbacks"`
	EventCount         int            `json:"event_count"`
	OldestEvent        *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent        *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator reading from the given
// EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{TransitionsByState: make(map[string]int)}
	m.EventCount = len(events)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case "task.created":
			m.TasksCreated++
		case "task.completed":
			m.TasksCompleted++
		case "task.archived":
			m.TasksArchived++
		case "task.state_changed":
			if to, ok := event.Data["to"].(string); ok {
				m.TransitionsByState[to]++
			}
		case "gate.rejected":
			m.GateRejections++
		case "sync.drift_detected":
			m.DriftRepairs++
		case "sync.rolled_back":
			m.Rollbacks++
		}
	}
	return m, nil
}
