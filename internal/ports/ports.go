// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ports declares the capabilities the pipeline consumes from the
// outside world: structured generation from a language model and web search.
// Stages receive implementations explicitly; nothing in the pipeline reaches
// for a process-wide client.
package ports

import (
	"context"
	"fmt"

	"github.com/pdiddy/visibility-engine/pkg/types"
)

// Schema describes the shape a structured generation must conform to.
type Schema struct {
	// Name identifies the schema in errors and logs (e.g. "Perspectives").
	Name string

	// Description tells the model what the object represents.
	Description string

	// Example is a JSON example of a conforming object.
	Example string
}

// Generator produces text or typed objects from a conversation.
type Generator interface {
	// Complete returns the model's free-text reply to messages.
	Complete(ctx context.Context, messages []types.Message) (string, error)

	// Structured decodes the model's reply to messages into out, which must
	// be a pointer. It fails if the reply does not conform to schema.
	Structured(ctx context.Context, messages []types.Message, schema Schema, out any) error
}

// Searcher returns ranked snippets for a web query. Zero results is not an error.
type Searcher interface {
	Search(ctx context.Context, query string) ([]types.Snippet, error)
}

// GenerateStructured asks g for an object of type T. Any failure is returned
// as a *GenerationError.
func GenerateStructured[T any](ctx context.Context, g Generator, messages []types.Message, schema Schema) (T, error) {
	var out T
	if err := g.Structured(ctx, messages, schema, &out); err != nil {
		var zero T
		return zero, asGenerationError(schema.Name, err)
	}
	return out, nil
}

// GenerateText asks g for a free-text reply. Any failure is returned as a
// *GenerationError.
func GenerateText(ctx context.Context, g Generator, messages []types.Message) (string, error) {
	text, err := g.Complete(ctx, messages)
	if err != nil {
		return "", asGenerationError("text", err)
	}
	return text, nil
}

// SearchWeb runs query against s. Any failure is returned as a *SearchError.
func SearchWeb(ctx context.Context, s Searcher, query string) ([]types.Snippet, error) {
	snippets, err := s.Search(ctx, query)
	if err != nil {
		if se, ok := err.(*SearchError); ok {
			return nil, se
		}
		return nil, &SearchError{Query: query, Err: err}
	}
	return snippets, nil
}

func asGenerationError(schema string, err error) error {
	if ge, ok := err.(*GenerationError); ok {
		return ge
	}
	return &GenerationError{Schema: schema, Err: err}
}

// GenerationError reports that the model call failed or its output did not
// conform to the requested schema.
type GenerationError struct {
	Schema string
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generating %s: %v", e.Schema, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// SearchError reports a web search transport or quota failure.
type SearchError struct {
	Query string
	Err   error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("searching %q: %v", e.Query, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }
