package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrRunExists is returned by Run when the run ID already has checkpoints.
	ErrRunExists = errors.New("run already exists")

	// ErrRunActive is returned when a run is already executing in this engine.
	ErrRunActive = errors.New("run is already executing")

	// ErrNotInterrupted is returned by SubmitFeedback for a run that is not
	// waiting on a human-feedback node.
	ErrNotInterrupted = errors.New("run is not waiting for feedback")

	// errCancelRequested is the context cause set by Engine.Cancel.
	errCancelRequested = errors.New("cancellation requested")
)

// StageError is a stage or fan-out node failure that aborted the run.
type StageError struct {
	Node string
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Node, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// BranchError is the failure of a single fan-out branch.
type BranchError struct {
	Node   string
	Worker string
	Index  int
	Err    error
}

func (e *BranchError) Error() string {
	return fmt.Sprintf("branch %d (%s) of %s: %v", e.Index, e.Worker, e.Node, e.Err)
}

func (e *BranchError) Unwrap() error { return e.Err }

// ScheduleError reports a malformed fan-out payload. The branch contributes an
// empty update; it is never fatal.
type ScheduleError struct {
	Node   string
	Worker string
	Index  int
	Err    error
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("malformed payload for branch %d (%s) of %s: %v", e.Index, e.Worker, e.Node, e.Err)
}

func (e *ScheduleError) Unwrap() error { return e.Err }

// CheckpointError reports that the checkpoint store could not be used. It is
// fatal to the run.
type CheckpointError struct {
	RunID string
	Op    string
	Err   error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *CheckpointError) Unwrap() error { return e.Err }

// CancelledError reports that a run stopped because it was cancelled or its
// lease was superseded.
type CancelledError struct {
	RunID string
	Node  string
	Err   error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("run %s cancelled at %s: %v", e.RunID, e.Node, e.Err)
}

func (e *CancelledError) Unwrap() error { return e.Err }
