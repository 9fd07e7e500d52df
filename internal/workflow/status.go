package workflow

import (
	"time"

	"github.com/pdiddy/visibility-engine/internal/checkpoint"
)

// Status is the scheduler state of a run.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusRunning     Status = "running"
	StatusFanningOut  Status = "fanning_out"
	StatusMerging     Status = "merging"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
)

// persisted maps a scheduler status to the status stored with a checkpoint.
func (s Status) persisted() checkpoint.Status {
	switch s {
	case StatusInterrupted:
		return checkpoint.StatusInterrupted
	case StatusFailed:
		return checkpoint.StatusFailed
	case StatusCompleted:
		return checkpoint.StatusCompleted
	case StatusCancelled:
		return checkpoint.StatusCancelled
	}
	return checkpoint.StatusRunning
}

// Event is one state-machine transition delivered to RunOptions.Observer.
type Event struct {
	RunID  string
	Status Status
	Node   string

	// Branches is the fan-out width for FanningOut and Merging events.
	Branches int

	Err error
	At  time.Time
}
