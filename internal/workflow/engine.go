// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/pdiddy/visibility-engine/internal/checkpoint"
	"github.com/pdiddy/visibility-engine/internal/logging"
	"github.com/pdiddy/visibility-engine/internal/state"
	"github.com/pdiddy/visibility-engine/pkg/types"
)

// RunOptions configure one execution of a graph.
type RunOptions struct {
	// MaxParallel bounds concurrently running branches in a fan-out. Zero or
	// less means unbounded.
	MaxParallel int

	// FailurePolicy decides what a failed branch does to its fan-out.
	// Empty means types.FailFast.
	FailurePolicy types.FailurePolicy

	// Interrupts lists the interrupt nodes that suspend this run. Interrupt
	// nodes not listed pass through.
	Interrupts []string

	// Observer, when set, receives every state-machine transition. It is
	// called from the scheduler goroutine and must not block.
	Observer func(Event)
}

// Result is the outcome of Run or Resume.
type Result struct {
	RunID    string
	Status   Status
	Cursor   string
	LastNode string
	State    *state.State
}

// Engine executes a validated Graph and persists a checkpoint after every
// node. It is safe for concurrent use across distinct run IDs.
type Engine struct {
	graph *Graph
	store checkpoint.Store

	mu     sync.Mutex
	active map[string]context.CancelCauseFunc
}

// NewEngine validates g and returns an Engine that checkpoints to store.
func NewEngine(g *Graph, store checkpoint.Store) (*Engine, error) {
	if g == nil {
		return nil, errors.New("graph cannot be nil")
	}
	if store == nil {
		return nil, errors.New("checkpoint store cannot be nil")
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("graph %s: %w", g.name, err)
	}
	return &Engine{
		graph:  g,
		store:  store,
		active: make(map[string]context.CancelCauseFunc),
	}, nil
}

// Graph returns the engine's graph.
func (e *Engine) Graph() *Graph { return e.graph }

// Run starts a new run from the graph entry with initial state st. The run ID
// is st.RunID and must not have been used before.
func (e *Engine) Run(ctx context.Context, st *state.State, opts RunOptions) (Result, error) {
	if err := e.CheckRun(ctx, st, opts); err != nil {
		return Result{}, err
	}
	return e.execute(ctx, st.Clone(), e.graph.entry, "", opts)
}

// CheckRun returns the error Run would fail with before executing any node:
// a missing run ID, bad options, a run already executing here, or a run ID
// that already has checkpoints.
func (e *Engine) CheckRun(ctx context.Context, st *state.State, opts RunOptions) error {
	if st == nil || st.RunID == "" {
		return errors.New("initial state must carry a run ID")
	}
	if err := e.checkOptions(opts); err != nil {
		return err
	}
	if e.Active(st.RunID) {
		return fmt.Errorf("%w: %s", ErrRunActive, st.RunID)
	}

	_, err := e.store.Load(ctx, st.RunID)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrRunExists, st.RunID)
	case !errors.Is(err, checkpoint.ErrNotFound):
		return &CheckpointError{RunID: st.RunID, Op: "load", Err: err}
	}
	return nil
}

// CheckResume returns the error Resume would fail with before executing any
// node: bad options, a run already executing here, or no checkpoint.
func (e *Engine) CheckResume(ctx context.Context, runID string, opts RunOptions) error {
	if err := e.checkOptions(opts); err != nil {
		return err
	}
	if e.Active(runID) {
		return fmt.Errorf("%w: %s", ErrRunActive, runID)
	}
	_, err := e.load(ctx, runID)
	return err
}

// Resume continues a run from its latest checkpoint. A completed run returns
// its final state without executing anything. A failed run re-executes the
// node that failed; an interrupted run re-enters its interrupt node.
func (e *Engine) Resume(ctx context.Context, runID string, opts RunOptions) (Result, error) {
	if err := e.checkOptions(opts); err != nil {
		return Result{}, err
	}

	cp, err := e.load(ctx, runID)
	if err != nil {
		return Result{}, err
	}
	if cp.Status == checkpoint.StatusCompleted {
		return Result{
			RunID:    runID,
			Status:   StatusCompleted,
			LastNode: cp.LastNode,
			State:    cp.State,
		}, nil
	}
	if cp.State == nil {
		return Result{}, &CheckpointError{RunID: runID, Op: "load", Err: errors.New("checkpoint has no state")}
	}
	if cp.Cursor != End {
		if _, ok := e.graph.nodes[cp.Cursor]; !ok {
			return Result{}, fmt.Errorf("resume run %s: %w: %s", runID, ErrNodeNotFound, cp.Cursor)
		}
	}

	logging.FromContext(ctx).Info("resuming run", "run_id", runID, "cursor", cp.Cursor, "status", cp.Status, "seq", cp.Seq)
	return e.execute(ctx, cp.State, cp.Cursor, cp.LastNode, opts)
}

// SubmitFeedback records human feedback for a run suspended at an interrupt
// node. The run stays interrupted until Resume is called.
func (e *Engine) SubmitFeedback(ctx context.Context, runID, text string) (checkpoint.Checkpoint, error) {
	cp, err := e.load(ctx, runID)
	if err != nil {
		return checkpoint.Checkpoint{}, err
	}
	if cp.Status != checkpoint.StatusInterrupted || !e.graph.isInterrupt(cp.Cursor) {
		return checkpoint.Checkpoint{}, fmt.Errorf("%w: run %s is %s at %q", ErrNotInterrupted, runID, cp.Status, cp.Cursor)
	}

	epoch, err := e.store.Acquire(ctx, runID)
	if err != nil {
		return checkpoint.Checkpoint{}, &CheckpointError{RunID: runID, Op: "acquire", Err: err}
	}

	cp.State.SetFeedback(types.Feedback{Node: cp.Cursor, Text: text})
	cp.Epoch = epoch
	saved, err := e.store.Save(ctx, cp)
	if err != nil {
		if errors.Is(err, checkpoint.ErrStaleEpoch) {
			return checkpoint.Checkpoint{}, &CancelledError{RunID: runID, Node: cp.Cursor, Err: err}
		}
		return checkpoint.Checkpoint{}, &CheckpointError{RunID: runID, Op: "save", Err: err}
	}

	logging.FromContext(ctx).Info("feedback recorded", "run_id", runID, "node", cp.Cursor)
	return saved, nil
}

// Cancel revokes the run's lease so no later checkpoint from the current
// execution is accepted, then cancels the execution if it runs in this
// engine. Executions in other processes stop at their next checkpoint.
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	if _, err := e.store.Revoke(ctx, runID); err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return err
		}
		return &CheckpointError{RunID: runID, Op: "revoke", Err: err}
	}

	e.mu.Lock()
	cancel := e.active[runID]
	e.mu.Unlock()
	if cancel != nil {
		cancel(errCancelRequested)
	}

	logging.FromContext(ctx).Info("run cancelled", "run_id", runID, "in_process", cancel != nil)
	return nil
}

// Active reports whether runID is executing in this engine.
func (e *Engine) Active(runID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[runID]
	return ok
}

func (e *Engine) checkOptions(opts RunOptions) error {
	switch opts.FailurePolicy {
	case "", types.FailFast, types.PartialMerge:
	default:
		return fmt.Errorf("unknown failure policy %q", opts.FailurePolicy)
	}
	for _, name := range opts.Interrupts {
		if !e.graph.isInterrupt(name) {
			return fmt.Errorf("interrupt %s: %w", name, ErrNodeNotFound)
		}
	}
	return nil
}

func (e *Engine) load(ctx context.Context, runID string) (checkpoint.Checkpoint, error) {
	cp, err := e.store.Load(ctx, runID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return checkpoint.Checkpoint{}, err
		}
		return checkpoint.Checkpoint{}, &CheckpointError{RunID: runID, Op: "load", Err: err}
	}
	return cp, nil
}

func (e *Engine) track(runID string, cancel context.CancelCauseFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.active[runID]; busy {
		return fmt.Errorf("%w: %s", ErrRunActive, runID)
	}
	e.active[runID] = cancel
	return nil
}

func (e *Engine) untrack(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, runID)
}

// execution is the scheduler-side record of one run. Only the scheduler
// goroutine touches st.
type execution struct {
	engine *Engine
	runID  string
	epoch  int64
	st     *state.State
	last   string
	opts   RunOptions
	log    *slog.Logger
}

func (e *Engine) execute(ctx context.Context, st *state.State, cursor, last string, opts RunOptions) (Result, error) {
	runID := st.RunID
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if err := e.track(runID, cancel); err != nil {
		return Result{}, err
	}
	defer e.untrack(runID)

	epoch, err := e.store.Acquire(ctx, runID)
	if err != nil {
		return Result{}, &CheckpointError{RunID: runID, Op: "acquire", Err: err}
	}

	x := &execution{
		engine: e,
		runID:  runID,
		epoch:  epoch,
		st:     st,
		last:   last,
		opts:   opts,
		log:    logging.FromContext(ctx).With("run_id", runID, "graph", e.graph.name),
	}
	ctx = logging.WithLogger(ctx, x.log)
	x.log.Info("run started", "cursor", cursor, "epoch", epoch)

	for cursor != End {
		if ctx.Err() != nil {
			return x.cancelled(ctx, cursor)
		}

		n := e.graph.nodes[cursor]
		var (
			next string
			err  error
		)
		switch n.kind {
		case kindInterrupt:
			if x.suspends(n.name) {
				return x.interrupt(ctx, n.name)
			}
			next = e.graph.edges[n.name]

		case kindStage:
			next, err = x.runStage(ctx, n)

		case kindFanOut:
			next, err = x.runFanOut(ctx, n)

		default:
			err = fmt.Errorf("%s %s cannot be scheduled directly", n.kind, n.name)
		}

		if err != nil {
			if ctx.Err() != nil {
				return x.cancelled(ctx, cursor)
			}
			return x.fail(ctx, cursor, err)
		}

		x.last = cursor
		status := StatusRunning
		if next == End {
			status = StatusCompleted
		}
		if err := x.save(ctx, next, status, ""); err != nil {
			return x.result(next, statusOf(err)), err
		}
		cursor = next
	}

	x.emit(Event{Status: StatusCompleted, Node: x.last})
	x.log.Info("run completed", "brand_mentions", x.st.BrandMentions, "responses", len(x.st.Responses))
	return x.result(End, StatusCompleted), nil
}

func (x *execution) suspends(node string) bool {
	if !slices.Contains(x.opts.Interrupts, node) {
		return false
	}
	_, answered := x.st.FeedbackFor(node)
	return !answered
}

func (x *execution) runStage(ctx context.Context, n *node) (string, error) {
	x.emit(Event{Status: StatusRunning, Node: n.name})
	x.log.Debug("stage started", "node", n.name)
	start := time.Now()

	u, err := n.stage(ctx, x.st.Clone())
	if err != nil {
		return "", &StageError{Node: n.name, Err: err}
	}
	if err := u.CheckWrites(n.writes); err != nil {
		return "", &StageError{Node: n.name, Err: err}
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err := x.st.Apply(u); err != nil {
		return "", &StageError{Node: n.name, Err: err}
	}

	x.log.Info("stage finished", "node", n.name, "fields", u.Fields(), "elapsed", time.Since(start).Round(time.Millisecond))
	return x.engine.graph.edges[n.name], nil
}

func (x *execution) interrupt(ctx context.Context, node string) (Result, error) {
	if err := x.save(ctx, node, StatusInterrupted, ""); err != nil {
		return x.result(node, statusOf(err)), err
	}
	x.emit(Event{Status: StatusInterrupted, Node: node})
	x.log.Info("run interrupted for feedback", "node", node)
	return x.result(node, StatusInterrupted), nil
}

// fail records a failed checkpoint at the failing node, holding the state as
// it was before the node ran, so a resume re-executes it.
func (x *execution) fail(ctx context.Context, node string, cause error) (Result, error) {
	x.emit(Event{Status: StatusFailed, Node: node, Err: cause})
	x.log.Error("run failed", "node", node, "error", cause)
	if err := x.save(ctx, node, StatusFailed, cause.Error()); err != nil {
		return x.result(node, StatusFailed), errors.Join(cause, err)
	}
	return x.result(node, StatusFailed), cause
}

func (x *execution) cancelled(ctx context.Context, node string) (Result, error) {
	cause := context.Cause(ctx)
	x.emit(Event{Status: StatusCancelled, Node: node, Err: cause})
	x.log.Warn("run cancelled", "node", node, "cause", cause)

	// A requested cancel already recorded the checkpoint and revoked this
	// lease; a caller-side cancel still needs one.
	if !errors.Is(cause, errCancelRequested) {
		if err := x.save(context.WithoutCancel(ctx), node, StatusCancelled, cause.Error()); err != nil {
			var cancelled *CancelledError
			if !errors.As(err, &cancelled) {
				x.log.Error("recording cancellation", "error", err)
			}
		}
	}
	return x.result(node, StatusCancelled), &CancelledError{RunID: x.runID, Node: node, Err: cause}
}

// save persists the current state with cursor. A superseded lease turns into
// a CancelledError; any other store failure is a fatal CheckpointError.
func (x *execution) save(ctx context.Context, cursor string, status Status, msg string) error {
	cp, err := x.engine.store.Save(ctx, checkpoint.Checkpoint{
		RunID:    x.runID,
		Epoch:    x.epoch,
		Cursor:   cursor,
		LastNode: x.last,
		Status:   status.persisted(),
		Error:    msg,
		State:    x.st,
	})
	if err != nil {
		if errors.Is(err, checkpoint.ErrStaleEpoch) {
			x.log.Warn("checkpoint rejected, lease superseded", "cursor", cursor)
			return &CancelledError{RunID: x.runID, Node: cursor, Err: err}
		}
		x.log.Error("checkpoint failed", "cursor", cursor, "error", err)
		return &CheckpointError{RunID: x.runID, Op: "save", Err: err}
	}
	x.log.Debug("checkpoint saved", "cursor", cursor, "status", cp.Status, "seq", cp.Seq)
	return nil
}

func statusOf(err error) Status {
	var cancelled *CancelledError
	if errors.As(err, &cancelled) {
		return StatusCancelled
	}
	return StatusFailed
}

func (x *execution) emit(ev Event) {
	if x.opts.Observer == nil {
		return
	}
	ev.RunID = x.runID
	ev.At = time.Now()
	x.opts.Observer(ev)
}

func (x *execution) result(cursor string, status Status) Result {
	return Result{
		RunID:    x.runID,
		Status:   status,
		Cursor:   cursor,
		LastNode: x.last,
		State:    x.st.Clone(),
	}
}
