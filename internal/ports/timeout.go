package ports

import (
	"context"
	"time"

	"github.com/pdiddy/visibility-engine/pkg/types"
)

// WithGeneratorTimeout bounds every call to g by d. A non-positive d returns g
// unchanged. A call that runs out of time fails with a *GenerationError
// wrapping context.DeadlineExceeded.
func WithGeneratorTimeout(g Generator, d time.Duration) Generator {
	if d <= 0 {
		return g
	}
	return &timeoutGenerator{next: g, timeout: d}
}

type timeoutGenerator struct {
	next    Generator
	timeout time.Duration
}

func (t *timeoutGenerator) Complete(ctx context.Context, messages []types.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	text, err := t.next.Complete(ctx, messages)
	if err != nil {
		return "", asGenerationError("text", deadlineOr(ctx, err))
	}
	return text, nil
}

func (t *timeoutGenerator) Structured(ctx context.Context, messages []types.Message, schema Schema, out any) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := t.next.Structured(ctx, messages, schema, out); err != nil {
		return asGenerationError(schema.Name, deadlineOr(ctx, err))
	}
	return nil
}

// WithSearcherTimeout bounds every call to s by d. A non-positive d returns s
// unchanged.
func WithSearcherTimeout(s Searcher, d time.Duration) Searcher {
	if d <= 0 {
		return s
	}
	return &timeoutSearcher{next: s, timeout: d}
}

type timeoutSearcher struct {
	next    Searcher
	timeout time.Duration
}

func (t *timeoutSearcher) Search(ctx context.Context, query string) ([]types.Snippet, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	snippets, err := t.next.Search(ctx, query)
	if err != nil {
		return nil, &SearchError{Query: query, Err: deadlineOr(ctx, err)}
	}
	return snippets, nil
}

// deadlineOr prefers the context's deadline error so callers can match
// context.DeadlineExceeded even when the backend wrapped it differently.
func deadlineOr(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return context.DeadlineExceeded
	}
	return err
}
