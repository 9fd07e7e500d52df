// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/visibility-engine/internal/state"
	"github.com/pdiddy/visibility-engine/pkg/types"
)

// branchResult is the outcome of one branch, stored at the branch's
// invocation index.
type branchResult struct {
	update state.Update
	err    *BranchError
}

// runFanOut routes, runs every branch and merges the results. Payloads are
// derived from the pre-fan-out state before any branch starts, and the merge
// happens on the scheduler goroutine after all branches finished.
func (x *execution) runFanOut(ctx context.Context, n *node) (string, error) {
	route, err := n.router(x.st.Clone())
	if err != nil {
		return "", &StageError{Node: n.name, Err: fmt.Errorf("routing: %w", err)}
	}
	if route.Next != End {
		if _, ok := x.engine.graph.nodes[route.Next]; !ok {
			return "", &StageError{Node: n.name, Err: fmt.Errorf("routing: %w: %s", ErrNodeNotFound, route.Next)}
		}
		x.log.Info("fan-out skipped", "node", n.name, "next", route.Next)
		return route.Next, nil
	}

	branches := route.Branches
	for i, b := range branches {
		if !slices.Contains(n.workers, b.Worker) {
			return "", &StageError{Node: n.name, Err: fmt.Errorf("branch %d: %w: %s", i, ErrUnknownWorker, b.Worker)}
		}
	}

	policy := x.opts.FailurePolicy
	if policy == "" {
		policy = types.FailFast
	}

	x.emit(Event{Status: StatusFanningOut, Node: n.name, Branches: len(branches)})
	x.log.Info("fanning out", "node", n.name, "branches", len(branches), "policy", policy)
	start := time.Now()

	results := make([]branchResult, len(branches))
	g, gctx := errgroup.WithContext(ctx)
	if x.opts.MaxParallel > 0 {
		g.SetLimit(x.opts.MaxParallel)
	}
	for i, b := range branches {
		g.Go(func() error {
			u, err := x.runBranch(gctx, n, i, b)
			if err != nil {
				if policy == types.FailFast {
					return err
				}
				results[i].err = err
				return nil
			}
			results[i].update = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", &StageError{Node: n.name, Err: err}
	}

	// Branches of a cancelled run never reach shared state.
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	x.emit(Event{Status: StatusMerging, Node: n.name, Branches: len(branches)})

	deltas := make([]state.Update, 0, len(results))
	var failures []types.BranchFailure
	for _, r := range results {
		if r.err != nil {
			x.log.Warn("branch failed", "node", n.name, "worker", r.err.Worker, "index", r.err.Index, "error", r.err.Err)
			failures = append(failures, types.BranchFailure{
				Node:   r.err.Node,
				Worker: r.err.Worker,
				Index:  r.err.Index,
				Error:  r.err.Err.Error(),
			})
			continue
		}
		deltas = append(deltas, r.update)
	}

	if err := x.st.MergeBranches(deltas); err != nil {
		return "", &StageError{Node: n.name, Err: err}
	}
	x.st.RecordFailures(failures)

	x.log.Info("fan-in merged", "node", n.name,
		"branches", len(branches), "failed", len(failures),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return x.engine.graph.edges[n.name], nil
}

// runBranch executes one branch. A malformed payload is logged as a
// ScheduleError and yields an empty update.
func (x *execution) runBranch(ctx context.Context, n *node, index int, b Branch) (state.Update, *BranchError) {
	fail := func(err error) *BranchError {
		return &BranchError{Node: n.name, Worker: b.Worker, Index: index, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return state.Update{}, fail(err)
	}

	if err := validatePayload(b.Payload); err != nil {
		serr := &ScheduleError{Node: n.name, Worker: b.Worker, Index: index, Err: err}
		x.log.Warn("skipping branch", "error", serr)
		return state.Update{}, nil
	}

	w := x.engine.graph.nodes[b.Worker]
	u, err := w.worker(ctx, b.Payload)
	if err != nil {
		return state.Update{}, fail(err)
	}
	if err := u.CheckWrites(w.writes); err != nil {
		return state.Update{}, fail(err)
	}
	if err := u.CheckBranch(); err != nil {
		return state.Update{}, fail(err)
	}
	return u, nil
}

func validatePayload(p Payload) error {
	if p == nil {
		return errors.New("nil payload")
	}
	return p.Validate()
}
