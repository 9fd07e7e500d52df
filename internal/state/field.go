// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package state

import "fmt"

// Field names a State field that stages may write through an Update.
type Field string

const (
	FieldBrandDescription Field = "brand_description"
	FieldCompetitors      Field = "competitors"
	FieldPerspectives     Field = "perspectives"
	FieldCounters         Field = "counters"
	FieldPrompts          Field = "prompts"
	FieldResponses        Field = "responses"
	FieldMessages         Field = "messages"
)

// Strategy is the merge operation attached to a field.
type Strategy int

const (
	// LastWriterWins replaces the field. Only one node may own such a field
	// and fan-out branches may never write it.
	LastWriterWins Strategy = iota

	// ConcatInOrder appends the delta. Fan-in concatenates branch deltas in
	// branch-invocation order.
	ConcatInOrder
)

func (s Strategy) String() string {
	switch s {
	case LastWriterWins:
		return "last_writer_wins"
	case ConcatInOrder:
		return "concat_in_order"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// strategies is the merge contract of every writable field.
var strategies = map[Field]Strategy{
	FieldBrandDescription: LastWriterWins,
	FieldCompetitors:      LastWriterWins,
	FieldPerspectives:     LastWriterWins,
	FieldCounters:         LastWriterWins,
	FieldPrompts:          ConcatInOrder,
	FieldResponses:        ConcatInOrder,
	FieldMessages:         ConcatInOrder,
}

// StrategyOf returns the merge strategy of f and whether f is a known field.
func StrategyOf(f Field) (Strategy, bool) {
	s, ok := strategies[f]
	return s, ok
}

// IsAccumulator reports whether f merges by concatenation.
func IsAccumulator(f Field) bool {
	s, ok := strategies[f]
	return ok && s == ConcatInOrder
}
