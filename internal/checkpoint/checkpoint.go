// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package checkpoint persists pipeline state snapshots keyed by run ID so a
// run can pause for human feedback and resume after a restart or failure.
//
// Writers hold an epoch lease. Acquire starts a new lease and Revoke ends the
// current one; a Save tagged with any epoch other than the current lease is
// rejected with ErrStaleEpoch, which keeps abandoned or cancelled executions
// from overwriting newer state.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/pdiddy/visibility-engine/internal/state"
)

var (
	// ErrNotFound is returned by Load when no checkpoint exists for a run.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStaleEpoch is returned by Save when the writer's lease was superseded.
	ErrStaleEpoch = errors.New("checkpoint write from superseded epoch")
)

// Status is the persisted run status.
type Status string

const (
	StatusRunning     Status = "running"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether a run in status s has nothing left to execute.
func (s Status) Terminal() bool {
	return s == StatusCompleted
}

// Checkpoint is one durable snapshot of a run.
type Checkpoint struct {
	RunID string `json:"run_id" yaml:"run_id"`

	// Epoch is the writer's lease; the store sets nothing here.
	Epoch int64 `json:"epoch" yaml:"epoch"`

	// Seq is assigned by the store on Save, starting at 1.
	Seq int64 `json:"seq" yaml:"seq"`

	// Cursor is the node the run executes next. It is empty once the run
	// reaches the end of the graph.
	Cursor string `json:"cursor" yaml:"cursor"`

	// LastNode is the last node that completed successfully.
	LastNode string `json:"last_node" yaml:"last_node"`

	Status Status `json:"status" yaml:"status"`

	// Error holds the failure message when Status is failed.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	State *state.State `json:"state" yaml:"state"`

	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Summary is the listing view of a run's latest checkpoint.
type Summary struct {
	RunID     string    `json:"run_id" yaml:"run_id"`
	Company   string    `json:"company" yaml:"company"`
	Status    Status    `json:"status" yaml:"status"`
	Cursor    string    `json:"cursor" yaml:"cursor"`
	LastNode  string    `json:"last_node" yaml:"last_node"`
	Seq       int64     `json:"seq" yaml:"seq"`
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Store is the durable checkpoint contract.
type Store interface {
	// Acquire starts a new write lease for runID and returns its epoch.
	Acquire(ctx context.Context, runID string) (int64, error)

	// Revoke ends the current lease without starting a new one and marks the
	// latest checkpoint cancelled. It returns the revoked epoch.
	Revoke(ctx context.Context, runID string) (int64, error)

	// Save persists cp as the run's latest checkpoint and appends it to the
	// run's history. cp.Epoch must match the current lease.
	Save(ctx context.Context, cp Checkpoint) (Checkpoint, error)

	// Load returns the latest checkpoint for runID or ErrNotFound.
	Load(ctx context.Context, runID string) (Checkpoint, error)

	// History returns every checkpoint saved for runID in sequence order.
	History(ctx context.Context, runID string) ([]Checkpoint, error)

	// List returns a summary of every run, most recently updated first.
	List(ctx context.Context) ([]Summary, error)

	Close() error
}

// Summarize returns the listing entry for cp.
func Summarize(cp Checkpoint) Summary {
	s := Summary{
		RunID:     cp.RunID,
		Status:    cp.Status,
		Cursor:    cp.Cursor,
		LastNode:  cp.LastNode,
		Seq:       cp.Seq,
		Error:     cp.Error,
		UpdatedAt: cp.UpdatedAt,
	}
	if cp.State != nil {
		s.Company = cp.State.BrandInfo.CompanyName
	}
	return s
}
