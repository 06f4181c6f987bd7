package planner

import "time"

// Run event types published to observers.
const (
	EventRunStarted        = "run.started"
	EventStrategyCompleted = "strategy.completed"
	EventStrategyExcluded  = "strategy.excluded"
	EventRunCompleted      = "run.completed"
	EventRunFailed         = "run.failed"
)

// Event is one step of a run's progress.
type Event struct {
	RunID    string         `json:"runId"`
	Type     string         `json:"type"`
	Strategy string         `json:"strategy,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	At       time.Time      `json:"at"`
}

// Terminal reports whether no further events follow for the run.
func (e Event) Terminal() bool {
	return e.Type == EventRunCompleted || e.Type == EventRunFailed
}
