package workflow

import (
	"context"

	"github.com/pdiddy/visibility-engine/internal/state"
)

// StageFunc is a sequential stage. It receives a private copy of the current
// state and returns the update to apply; it must not retain the copy.
type StageFunc func(ctx context.Context, st *state.State) (state.Update, error)

// WorkerFunc runs one fan-out branch. It sees only its payload, never the
// shared state.
type WorkerFunc func(ctx context.Context, p Payload) (state.Update, error)

// Payload is the per-branch input computed by a Router before any branch
// starts. Each worker kind has its own concrete payload type.
type Payload interface {
	// Kind names the payload variant.
	Kind() string

	// Validate reports a missing mandatory field.
	Validate() error
}

// Branch is one (worker, payload) pair returned by a Router.
type Branch struct {
	Worker  string
	Payload Payload
}

// Route is a routing decision. When Next is set the fan-out is skipped and the
// run continues at Next; otherwise Branches, which may be empty, are executed
// and merged before the run moves to the fan-out's successor.
type Route struct {
	Next     string
	Branches []Branch
}

// Router inspects the state at a fan-out point and decides where to go.
type Router func(st *state.State) (Route, error)

// Goto returns a Route that skips fan-out and continues at next.
func Goto(next string) Route {
	return Route{Next: next}
}

// FanOut returns a Route that spawns branches.
func FanOut(branches ...Branch) Route {
	return Route{Branches: branches}
}
