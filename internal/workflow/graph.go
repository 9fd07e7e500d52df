// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package workflow is the fan-out/fan-in scheduler. A Graph wires stages,
// fan-out points, worker stages and human-feedback interrupts into a static
// pipeline; an Engine executes it against a state.State, checkpointing after
// every node.
package workflow

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pdiddy/visibility-engine/internal/state"
)

// End is the pseudo-node that terminates a run.
const End = ""

// Graph validation errors.
var (
	ErrNodeExists    = errors.New("node already exists")
	ErrNodeNotFound  = errors.New("node not found")
	ErrNoEntry       = errors.New("entry node not set")
	ErrMissingEdge   = errors.New("node has no outgoing edge")
	ErrUnreachable   = errors.New("node not reachable from entry")
	ErrUnknownWorker = errors.New("unknown worker")
)

type nodeKind int

const (
	kindStage nodeKind = iota
	kindWorker
	kindFanOut
	kindInterrupt
)

func (k nodeKind) String() string {
	switch k {
	case kindStage:
		return "stage"
	case kindWorker:
		return "worker"
	case kindFanOut:
		return "fan-out"
	case kindInterrupt:
		return "interrupt"
	}
	return "unknown"
}

type node struct {
	name    string
	kind    nodeKind
	stage   StageFunc
	worker  WorkerFunc
	router  Router
	workers []string
	writes  []state.Field
}

// Graph is a named static pipeline. Every node except workers has exactly one
// successor; workers are only reachable through a fan-out.
type Graph struct {
	name  string
	nodes map[string]*node
	order []string
	edges map[string]string
	entry string
}

// NewGraph creates an empty graph.
func NewGraph(name string) *Graph {
	return &Graph{
		name:  name,
		nodes: make(map[string]*node),
		edges: make(map[string]string),
	}
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Nodes returns the names of the graph's nodes in registration order.
func (g *Graph) Nodes() []string { return slices.Clone(g.order) }

// Entry returns the entry node.
func (g *Graph) Entry() string { return g.entry }

// Next returns the static successor of name.
func (g *Graph) Next(name string) (string, bool) {
	to, ok := g.edges[name]
	return to, ok
}

// AddStage registers a sequential stage that may write the given fields.
func (g *Graph) AddStage(name string, fn StageFunc, writes ...state.Field) error {
	if fn == nil {
		return fmt.Errorf("stage %s: nil function", name)
	}
	return g.add(&node{name: name, kind: kindStage, stage: fn, writes: writes})
}

// AddWorker registers a worker stage invoked once per fan-out branch. Workers
// may only write accumulator fields.
func (g *Graph) AddWorker(name string, fn WorkerFunc, writes ...state.Field) error {
	if fn == nil {
		return fmt.Errorf("worker %s: nil function", name)
	}
	for _, f := range writes {
		if !state.IsAccumulator(f) {
			return fmt.Errorf("worker %s: %w: %s", name, state.ErrScalarInBranch, f)
		}
	}
	return g.add(&node{name: name, kind: kindWorker, worker: fn, writes: writes})
}

// AddFanOut registers a fan-out point. The router derives the branches from
// the current state; each branch must target one of workers. The fan-out's
// outgoing edge is its fan-in successor.
func (g *Graph) AddFanOut(name string, router Router, workers ...string) error {
	if router == nil {
		return fmt.Errorf("fan-out %s: nil router", name)
	}
	if len(workers) == 0 {
		return fmt.Errorf("fan-out %s: %w: none declared", name, ErrUnknownWorker)
	}
	return g.add(&node{name: name, kind: kindFanOut, router: router, workers: workers})
}

// AddInterrupt registers a human-feedback boundary. It never writes state.
func (g *Graph) AddInterrupt(name string) error {
	return g.add(&node{name: name, kind: kindInterrupt})
}

func (g *Graph) add(n *node) error {
	if n.name == End {
		return errors.New("node name cannot be empty")
	}
	if _, exists := g.nodes[n.name]; exists {
		return fmt.Errorf("%w: %s", ErrNodeExists, n.name)
	}
	g.nodes[n.name] = n
	g.order = append(g.order, n.name)
	return nil
}

// AddEdge sets the successor of from. to may be End.
func (g *Graph) AddEdge(from, to string) error {
	n, exists := g.nodes[from]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, from)
	}
	if n.kind == kindWorker {
		return fmt.Errorf("worker %s cannot have an edge", from)
	}
	if to != End {
		if _, exists := g.nodes[to]; !exists {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, to)
		}
	}
	if prev, ok := g.edges[from]; ok {
		return fmt.Errorf("node %s already leads to %q", from, prev)
	}
	g.edges[from] = to
	return nil
}

// SetEntry sets the first node of the graph.
func (g *Graph) SetEntry(name string) error {
	if _, exists := g.nodes[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}
	g.entry = name
	return nil
}

// Validate checks that the graph can be executed:
//   - the entry is set and every non-worker node has an edge
//   - every fan-out references registered workers
//   - every non-worker node is reachable from the entry
//
// Last-writer-wins fields may be declared by several stages: stages run one
// at a time, and workers are barred from declaring them in AddWorker.
func (g *Graph) Validate() error {
	if g.entry == "" {
		return ErrNoEntry
	}

	for _, name := range g.order {
		n := g.nodes[name]
		if n.kind == kindWorker {
			continue
		}
		if _, ok := g.edges[name]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingEdge, name)
		}
		for _, w := range n.workers {
			wn, ok := g.nodes[w]
			if !ok || wn.kind != kindWorker {
				return fmt.Errorf("fan-out %s: %w: %s", name, ErrUnknownWorker, w)
			}
		}
	}

	reachable := make(map[string]bool)
	for cur := g.entry; cur != End && !reachable[cur]; cur = g.edges[cur] {
		reachable[cur] = true
	}
	for _, name := range g.order {
		if g.nodes[name].kind != kindWorker && !reachable[name] {
			return fmt.Errorf("%w: %s", ErrUnreachable, name)
		}
	}

	return nil
}

func (g *Graph) isInterrupt(name string) bool {
	n, ok := g.nodes[name]
	return ok && n.kind == kindInterrupt
}
