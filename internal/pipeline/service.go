// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pdiddy/visibility-engine/internal/checkpoint"
	"github.com/pdiddy/visibility-engine/internal/ports"
	"github.com/pdiddy/visibility-engine/internal/stages"
	"github.com/pdiddy/visibility-engine/internal/state"
	"github.com/pdiddy/visibility-engine/internal/workflow"
	"github.com/pdiddy/visibility-engine/pkg/types"
)

// StartRequest describes a new run. Zero tunables fall back to the
// configured defaults.
type StartRequest struct {
	RunID    string
	Brand    types.BrandInfo
	Tunables state.Tunables
}

// Options control a single Start or Resume call.
type Options struct {
	// Review enables both human-feedback interrupts.
	Review bool

	// Observer receives scheduler transitions.
	Observer func(workflow.Event)
}

// Service runs the brand-visibility workflow against a checkpoint store.
type Service struct {
	cfg    types.PipelineConfig
	engine *workflow.Engine
	store  checkpoint.Store
}

// New builds the workflow from gen and search, bounding every port call by
// the configured timeouts.
func New(cfg types.PipelineConfig, gen ports.Generator, search ports.Searcher, store checkpoint.Store) (*Service, error) {
	if gen == nil || search == nil {
		return nil, errors.New("generator and searcher are required")
	}
	switch cfg.Scheduler.PerspectivePolicy {
	case "", types.PerspectivesTarget, types.PerspectivesTruncate, types.PerspectivesStrict:
	default:
		return nil, fmt.Errorf("unknown perspective policy %q", cfg.Scheduler.PerspectivePolicy)
	}
	gen = ports.WithGeneratorTimeout(gen, cfg.AI.Timeout)
	search = ports.WithSearcherTimeout(search, cfg.Search.Timeout)

	g, err := NewGraph(stages.New(gen, search, cfg.Scheduler.PerspectivePolicy))
	if err != nil {
		return nil, err
	}
	engine, err := workflow.NewEngine(g, store)
	if err != nil {
		return nil, err
	}
	return &Service{cfg: cfg, engine: engine, store: store}, nil
}

// Start begins a new run. A run ID is generated when the request has none.
func (s *Service) Start(ctx context.Context, req StartRequest, opts Options) (workflow.Result, error) {
	run, err := s.PrepareStart(ctx, req, opts)
	if err != nil {
		return workflow.Result{}, err
	}
	return run.Execute(ctx)
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Resume continues a run from its latest checkpoint.
func (s *Service) Resume(ctx context.Context, runID string, opts Options) (workflow.Result, error) {
	run, err := s.PrepareResume(ctx, runID, opts)
	if err != nil {
		return workflow.Result{}, err
	}
	return run.Execute(ctx)
}

// Run is a validated Start or Resume that has not executed yet.
type Run struct {
	RunID string

	svc  *Service
	st   *state.State
	opts workflow.RunOptions
}

// Execute runs the workflow. A Run prepared by PrepareStart begins at the
// graph entry; one prepared by PrepareResume continues from its checkpoint.
func (r *Run) Execute(ctx context.Context) (workflow.Result, error) {
	if r.st != nil {
		return r.svc.engine.Run(ctx, r.st, r.opts)
	}
	return r.svc.engine.Resume(ctx, r.RunID, r.opts)
}

// PrepareStart validates req, applies the configured defaults, and checks
// that the run can start, without executing anything.
func (s *Service) PrepareStart(ctx context.Context, req StartRequest, opts Options) (*Run, error) {
	brand := req.Brand
	brand.CompanyName = strings.TrimSpace(brand.CompanyName)
	brand.Website = strings.TrimSpace(brand.Website)
	if brand.CompanyName == "" {
		return nil, errors.New("company name is required")
	}
	if brand.Website == "" {
		return nil, errors.New("website is required")
	}
	if brand.Region == "" {
		brand.Region = s.cfg.Defaults.Region
	}
	if brand.Language == "" {
		brand.Language = s.cfg.Defaults.Language
	}

	runID := req.RunID
	if runID == "" {
		runID = NewRunID()
	}

	st := state.New(runID, brand, s.tunables(req.Tunables))
	ro := s.runOptions(opts)
	if err := s.engine.CheckRun(ctx, st, ro); err != nil {
		return nil, err
	}
	return &Run{RunID: runID, svc: s, st: st, opts: ro}, nil
}

// PrepareResume checks that runID can be resumed without executing anything.
func (s *Service) PrepareResume(ctx context.Context, runID string, opts Options) (*Run, error) {
	if runID == "" {
		return nil, errors.New("run ID is required")
	}
	ro := s.runOptions(opts)
	if err := s.engine.CheckResume(ctx, runID, ro); err != nil {
		return nil, err
	}
	return &Run{RunID: runID, svc: s, opts: ro}, nil
}

// Feedback records reviewer feedback on a run waiting at a review node.
func (s *Service) Feedback(ctx context.Context, runID, text string) (checkpoint.Checkpoint, error) {
	return s.engine.SubmitFeedback(ctx, runID, text)
}

// Cancel stops a run and rejects any later checkpoint from its execution.
func (s *Service) Cancel(ctx context.Context, runID string) error {
	return s.engine.Cancel(ctx, runID)
}

// Get returns a run's latest checkpoint.
func (s *Service) Get(ctx context.Context, runID string) (checkpoint.Checkpoint, error) {
	return s.store.Load(ctx, runID)
}

// History returns every checkpoint of a run.
func (s *Service) History(ctx context.Context, runID string) ([]checkpoint.Checkpoint, error) {
	h, err := s.store.History(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(h) == 0 {
		return nil, fmt.Errorf("%w: run %s", checkpoint.ErrNotFound, runID)
	}
	return h, nil
}

// List summarizes every run in the store.
func (s *Service) List(ctx context.Context) ([]checkpoint.Summary, error) {
	return s.store.List(ctx)
}

// Store returns the service's checkpoint store.
func (s *Service) Store() checkpoint.Store { return s.store }

func (s *Service) tunables(t state.Tunables) state.Tunables {
	d := s.cfg.Defaults
	if t.NumberOfPerspectives <= 0 {
		t.NumberOfPerspectives = d.NumberOfPerspectives
	}
	if t.NumberOfPrompts <= 0 {
		t.NumberOfPrompts = d.NumberOfPrompts
	}
	if t.NumberOfResponses <= 0 {
		t.NumberOfResponses = d.NumberOfResponses
	}
	return t
}

func (s *Service) runOptions(opts Options) workflow.RunOptions {
	ro := workflow.RunOptions{
		MaxParallel:   s.cfg.Scheduler.MaxParallel,
		FailurePolicy: s.cfg.Scheduler.FailurePolicy,
		Observer:      opts.Observer,
	}
	if opts.Review {
		ro.Interrupts = ReviewNodes
	}
	return ro
}
