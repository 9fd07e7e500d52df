package state

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pdiddy/visibility-engine/pkg/types"
)

var (
	// ErrScalarInBranch is returned when a fan-out branch writes a
	// LastWriterWins field.
	ErrScalarInBranch = errors.New("branch wrote a last-writer-wins field")

	// ErrUndeclaredWrite is returned when a node writes a field it did not
	// declare.
	ErrUndeclaredWrite = errors.New("write to undeclared field")

	// ErrCounterMismatch is returned when counters do not line up with the
	// competitor list they annotate.
	ErrCounterMismatch = errors.New("competitor counters do not match competitors")
)

// Value is an optional field assignment. The zero Value leaves the field
// untouched, so an explicitly empty list is distinguishable from no write.
type Value[T any] struct {
	v   T
	set bool
}

// Set returns a Value assigning v.
func Set[T any](v T) Value[T] {
	return Value[T]{v: v, set: true}
}

// Get returns the assigned value and whether the Value assigns anything.
func (v Value[T]) Get() (T, bool) {
	return v.v, v.set
}

// Counters are the mention tallies. Competitors is index-aligned with the
// State's competitor list.
type Counters struct {
	Brand       int   `json:"brand"`
	Competitors []int `json:"competitors"`
}

// Update is the partial update a stage or branch returns. Scalar fields use
// Value; accumulator fields carry the delta to append.
type Update struct {
	BrandDescription Value[string]
	Competitors      Value[[]types.Competitor]
	Perspectives     Value[[]types.Perspective]
	Counters         Value[Counters]

	Prompts   []types.Prompt
	Responses []types.Response
	Messages  []types.Message
}

// Fields returns the fields u writes, in declaration order.
func (u Update) Fields() []Field {
	var fs []Field
	if u.BrandDescription.set {
		fs = append(fs, FieldBrandDescription)
	}
	if u.Competitors.set {
		fs = append(fs, FieldCompetitors)
	}
	if u.Perspectives.set {
		fs = append(fs, FieldPerspectives)
	}
	if u.Counters.set {
		fs = append(fs, FieldCounters)
	}
	if len(u.Prompts) > 0 {
		fs = append(fs, FieldPrompts)
	}
	if len(u.Responses) > 0 {
		fs = append(fs, FieldResponses)
	}
	if len(u.Messages) > 0 {
		fs = append(fs, FieldMessages)
	}
	return fs
}

// IsEmpty reports whether u writes nothing.
func (u Update) IsEmpty() bool {
	return len(u.Fields()) == 0
}

// CheckWrites returns ErrUndeclaredWrite if u touches a field outside allowed.
func (u Update) CheckWrites(allowed []Field) error {
	for _, f := range u.Fields() {
		if !slices.Contains(allowed, f) {
			return fmt.Errorf("%w: %s", ErrUndeclaredWrite, f)
		}
	}
	return nil
}

// CheckBranch returns ErrScalarInBranch if u touches a LastWriterWins field.
func (u Update) CheckBranch() error {
	for _, f := range u.Fields() {
		if !IsAccumulator(f) {
			return fmt.Errorf("%w: %s", ErrScalarInBranch, f)
		}
	}
	return nil
}
