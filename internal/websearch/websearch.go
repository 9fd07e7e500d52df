// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package websearch implements ports.Searcher over web search APIs and fans
// a query out to several of them, returning unified, deduplicated results.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/visibility-engine/internal/logging"
	"github.com/pdiddy/visibility-engine/pkg/types"
)

// Backend names accepted in SearchConfig.Backends.
const (
	BackendTavily = "tavily"
	BackendBrave  = "brave"
)

// Backend searches a single web search API.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string) ([]types.Snippet, error)
}

// New builds a Multi over the backends listed in cfg.
func New(cfg types.SearchConfig, client *http.Client) (*Multi, error) {
	if len(cfg.Backends) == 0 {
		return nil, errors.New("no search backends configured")
	}

	var backends []Backend
	for _, name := range cfg.Backends {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case BackendTavily:
			if cfg.TavilyAPIKey == "" {
				return nil, errors.New("tavily API key is not set")
			}
			backends = append(backends, &Tavily{APIKey: cfg.TavilyAPIKey, Config: cfg, Client: client})
		case BackendBrave:
			if cfg.BraveAPIKey == "" {
				return nil, errors.New("brave API key is not set")
			}
			backends = append(backends, &Brave{APIKey: cfg.BraveAPIKey, Config: cfg, Client: client})
		default:
			return nil, fmt.Errorf("unknown search backend %q", name)
		}
	}
	return &Multi{Backends: backends, MaxResults: cfg.MaxResults}, nil
}

// Multi fans a query out to every backend concurrently. Results are
// deduplicated by URL and ranked by score. A failing backend is logged and
// skipped; the search fails only when every backend fails.
type Multi struct {
	Backends   []Backend
	MaxResults int
}

// Search implements ports.Searcher.
func (m *Multi) Search(ctx context.Context, query string) ([]types.Snippet, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}
	if len(m.Backends) == 0 {
		return nil, errors.New("no search backends configured")
	}

	results := make([][]types.Snippet, len(m.Backends))
	errs := make([]error, len(m.Backends))

	var g errgroup.Group
	for i, b := range m.Backends {
		g.Go(func() error {
			snippets, err := b.Search(ctx, query)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", b.Name(), err)
				return nil
			}
			for j := range snippets {
				if snippets[j].Source == "" {
					snippets[j].Source = b.Name()
				}
			}
			results[i] = snippets
			return nil
		})
	}
	g.Wait()

	log := logging.FromContext(ctx)
	var all []types.Snippet
	failed := 0
	for i := range m.Backends {
		if errs[i] != nil {
			failed++
			log.Warn("search backend failed", "backend", m.Backends[i].Name(), "error", errs[i])
			continue
		}
		all = append(all, results[i]...)
	}
	if failed == len(m.Backends) {
		return nil, errors.Join(errs...)
	}

	deduped, removed := deduplicate(all)
	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Score > deduped[j].Score
	})
	if m.MaxResults > 0 && len(deduped) > m.MaxResults {
		deduped = deduped[:m.MaxResults]
	}

	log.Debug("web search", "query", query, "results", len(deduped), "duplicates", removed)
	return deduped, nil
}

// deduplicate keeps the highest-scored snippet for each normalized URL.
// Snippets without a URL are kept as they are.
func deduplicate(snippets []types.Snippet) ([]types.Snippet, int) {
	seen := make(map[string]int)
	var out []types.Snippet
	removed := 0

	for _, s := range snippets {
		key := normalizeURL(s.URL)
		if key == "" {
			out = append(out, s)
			continue
		}
		if idx, ok := seen[key]; ok {
			removed++
			if s.Score > out[idx].Score {
				out[idx].Score = s.Score
			}
			if len(s.Content) > len(out[idx].Content) {
				out[idx].Content = s.Content
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, s)
	}
	return out, removed
}

// normalizeURL lowercases scheme and host, drops the fragment, a leading
// "www." and any trailing slash.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(strings.ToLower(raw), "/")
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	return host + strings.TrimSuffix(u.EscapedPath(), "/") + queryPart(u)
}

func queryPart(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	return "?" + u.RawQuery
}

// positionScore assigns a relevance score from a result's rank for backends
// that do not return one.
func positionScore(i, total int) float64 {
	if total <= 1 {
		return 1.0
	}
	return 1.0 - float64(i)/float64(total-1)*0.9
}
