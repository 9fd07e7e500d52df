// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package mcpserver exposes the brand-visibility pipeline as MCP tools so an
// agent can start runs, review them at the feedback interrupts, and read the
// results.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pdiddy/visibility-engine/internal/logging"
	"github.com/pdiddy/visibility-engine/internal/pipeline"
	"github.com/pdiddy/visibility-engine/internal/report"
	"github.com/pdiddy/visibility-engine/internal/state"
	"github.com/pdiddy/visibility-engine/internal/workflow"
	"github.com/pdiddy/visibility-engine/pkg/types"
)

// Server wraps the MCP SDK server around a pipeline Service.
type Server struct {
	MCPServer *sdkmcp.Server

	svc *pipeline.Service
	log *slog.Logger

	// ctx outlives tool calls; background runs are bound to it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates an MCP server with the pipeline tools registered.
func NewServer(svc *pipeline.Service, version string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		MCPServer: sdkmcp.NewServer(&sdkmcp.Implementation{Name: "visibility-engine", Version: version}, nil),
		svc:       svc,
		log:       logging.New("mcp"),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.registerTools()
	return s
}

// Run serves over stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("starting MCP server over stdio")
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

// Shutdown cancels background runs and waits for them to checkpoint.
func (s *Server) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "start_run",
		Description: "Start a brand visibility run. Runs in the background unless wait is set; poll get_run for progress.",
	}, s.handleStartRun)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "resume_run",
		Description: "Resume an interrupted, failed or cancelled run from its latest checkpoint.",
	}, s.handleResumeRun)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "submit_feedback",
		Description: "Record reviewer feedback for a run waiting at a review node. Call resume_run afterwards.",
	}, s.handleSubmitFeedback)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "cancel_run",
		Description: "Cancel a run. Later checkpoints from its execution are rejected.",
	}, s.handleCancelRun)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_run",
		Description: "Get a run's status and brand visibility from its latest checkpoint.",
	}, s.handleGetRun)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_runs",
		Description: "List every run in the checkpoint store, most recently updated first.",
	}, s.handleListRuns)
}

// --- Tool input/output types ---

type startRunInput struct {
	CompanyName  string `json:"company_name" jsonschema:"brand name matched against responses"`
	Website      string `json:"website" jsonschema:"brand website, e.g. acme.com"`
	Region       string `json:"region,omitempty" jsonschema:"region of interest (default United States)"`
	Language     string `json:"language,omitempty" jsonschema:"primary language (default English)"`
	RunID        string `json:"run_id,omitempty" jsonschema:"run identifier (generated when empty)"`
	Perspectives int    `json:"perspectives,omitempty" jsonschema:"number of perspectives to generate"`
	Prompts      int    `json:"prompts,omitempty" jsonschema:"number of prompts per perspective"`
	Review       bool   `json:"review,omitempty" jsonschema:"pause at the review nodes for feedback"`
	Wait         bool   `json:"wait,omitempty" jsonschema:"block until the run stops"`
}

type resumeRunInput struct {
	RunID  string `json:"run_id" jsonschema:"run to resume"`
	Review bool   `json:"review,omitempty" jsonschema:"pause at the review nodes for feedback"`
	Wait   bool   `json:"wait,omitempty" jsonschema:"block until the run stops"`
}

type runOutput struct {
	RunID  string         `json:"run_id"`
	Status string         `json:"status"`
	Cursor string         `json:"cursor,omitempty"`
	Error  string         `json:"error,omitempty"`
	Result *report.Result `json:"result,omitempty"`
}

type submitFeedbackInput struct {
	RunID    string `json:"run_id" jsonschema:"run waiting for feedback"`
	Feedback string `json:"feedback,omitempty" jsonschema:"reviewer guidance; empty approves without comment"`
}

type submitFeedbackOutput struct {
	RunID string `json:"run_id"`
	Node  string `json:"node"`
	Seq   int64  `json:"seq"`
}

type runIDInput struct {
	RunID string `json:"run_id" jsonschema:"run identifier"`
}

type cancelRunOutput struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type getRunOutput struct {
	Run       report.Result `json:"run"`
	LastNode  string        `json:"last_node"`
	Seq       int64         `json:"seq"`
	Error     string        `json:"error,omitempty"`
	UpdatedAt string        `json:"updated_at"`
}

type listRunsInput struct{}

type runSummary struct {
	RunID     string `json:"run_id"`
	Company   string `json:"company"`
	Status    string `json:"status"`
	Cursor    string `json:"cursor"`
	LastNode  string `json:"last_node"`
	Seq       int64  `json:"seq"`
	UpdatedAt string `json:"updated_at"`
}

type listRunsOutput struct {
	Runs []runSummary `json:"runs"`
}

// --- Tool handlers ---

func (s *Server) handleStartRun(ctx context.Context, _ *sdkmcp.CallToolRequest, input startRunInput) (*sdkmcp.CallToolResult, runOutput, error) {
	req := pipeline.StartRequest{
		RunID: input.RunID,
		Brand: types.BrandInfo{
			CompanyName: input.CompanyName,
			Website:     input.Website,
			Region:      input.Region,
			Language:    input.Language,
		},
		Tunables: state.Tunables{
			NumberOfPerspectives: input.Perspectives,
			NumberOfPrompts:      input.Prompts,
		},
	}
	run, err := s.svc.PrepareStart(ctx, req, pipeline.Options{Review: input.Review})
	if err != nil {
		return nil, runOutput{}, err
	}
	return s.launch(ctx, run, input.Wait)
}

func (s *Server) handleResumeRun(ctx context.Context, _ *sdkmcp.CallToolRequest, input resumeRunInput) (*sdkmcp.CallToolResult, runOutput, error) {
	run, err := s.svc.PrepareResume(ctx, input.RunID, pipeline.Options{Review: input.Review})
	if err != nil {
		return nil, runOutput{}, err
	}
	return s.launch(ctx, run, input.Wait)
}

// launch executes a prepared run synchronously when wait is set and in the
// background otherwise.
func (s *Server) launch(ctx context.Context, run *pipeline.Run, wait bool) (*sdkmcp.CallToolResult, runOutput, error) {
	log := s.log.With("run_id", run.RunID)

	if wait {
		res, err := run.Execute(logging.WithLogger(ctx, log))
		if err != nil && res.RunID == "" {
			return nil, runOutput{}, err
		}
		out := runOutput{RunID: res.RunID, Status: string(res.Status), Cursor: res.Cursor}
		if err != nil {
			out.Error = err.Error()
		}
		if res.State != nil {
			r := report.FromState(out.Status, res.Cursor, res.State)
			out.Result = &r
		}
		return nil, out, nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := run.Execute(logging.WithLogger(s.ctx, log))
		if err != nil {
			log.Error("background run stopped", "status", res.Status, "error", err)
			return
		}
		log.Info("background run stopped", "status", res.Status, "cursor", res.Cursor)
	}()
	return nil, runOutput{RunID: run.RunID, Status: string(workflow.StatusRunning)}, nil
}

func (s *Server) handleSubmitFeedback(ctx context.Context, _ *sdkmcp.CallToolRequest, input submitFeedbackInput) (*sdkmcp.CallToolResult, submitFeedbackOutput, error) {
	cp, err := s.svc.Feedback(ctx, input.RunID, input.Feedback)
	if err != nil {
		return nil, submitFeedbackOutput{}, err
	}
	return nil, submitFeedbackOutput{RunID: cp.RunID, Node: cp.Cursor, Seq: cp.Seq}, nil
}

func (s *Server) handleCancelRun(ctx context.Context, _ *sdkmcp.CallToolRequest, input runIDInput) (*sdkmcp.CallToolResult, cancelRunOutput, error) {
	if err := s.svc.Cancel(ctx, input.RunID); err != nil {
		return nil, cancelRunOutput{}, err
	}
	return nil, cancelRunOutput{RunID: input.RunID, Status: string(workflow.StatusCancelled)}, nil
}

func (s *Server) handleGetRun(ctx context.Context, _ *sdkmcp.CallToolRequest, input runIDInput) (*sdkmcp.CallToolResult, getRunOutput, error) {
	cp, err := s.svc.Get(ctx, input.RunID)
	if err != nil {
		return nil, getRunOutput{}, fmt.Errorf("run %s: %w", input.RunID, err)
	}
	return nil, getRunOutput{
		Run:       report.FromCheckpoint(cp),
		LastNode:  cp.LastNode,
		Seq:       cp.Seq,
		Error:     cp.Error,
		UpdatedAt: cp.UpdatedAt.Format(time.RFC3339),
	}, nil
}

func (s *Server) handleListRuns(ctx context.Context, _ *sdkmcp.CallToolRequest, _ listRunsInput) (*sdkmcp.CallToolResult, listRunsOutput, error) {
	runs, err := s.svc.List(ctx)
	if err != nil {
		return nil, listRunsOutput{}, err
	}
	out := listRunsOutput{Runs: make([]runSummary, 0, len(runs))}
	for _, r := range runs {
		out.Runs = append(out.Runs, runSummary{
			RunID:     r.RunID,
			Company:   r.Company,
			Status:    string(r.Status),
			Cursor:    r.Cursor,
			LastNode:  r.LastNode,
			Seq:       r.Seq,
			UpdatedAt: r.UpdatedAt.Format(time.RFC3339),
		})
	}
	return nil, out, nil
}
