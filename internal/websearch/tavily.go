// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pdiddy/visibility-engine/internal/httputil"
	"github.com/pdiddy/visibility-engine/pkg/types"
)

// tavilyAPIURL is the Tavily search endpoint. Declared as a var so tests can
// substitute an httptest server.
var tavilyAPIURL = "https://api.tavily.com/search"

// Tavily queries the Tavily search API.
type Tavily struct {
	APIKey string
	Config types.SearchConfig
	Client *http.Client
}

// Name returns the backend identifier.
func (t *Tavily) Name() string { return BackendTavily }

type tavilyRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search queries Tavily and returns its scored results.
func (t *Tavily) Search(ctx context.Context, query string) ([]types.Snippet, error) {
	body, err := json.Marshal(tavilyRequest{
		Query:       query,
		MaxResults:  orDefault(t.Config.MaxResults, 5),
		SearchDepth: "basic",
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyAPIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)
	if t.Config.UserAgent != "" {
		req.Header.Set("User-Agent", t.Config.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, t.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("Tavily API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Tavily API returned HTTP %d", resp.StatusCode)
	}

	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("parsing Tavily response: %w", err)
	}

	snippets := make([]types.Snippet, 0, len(tr.Results))
	for _, r := range tr.Results {
		snippets = append(snippets, types.Snippet{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
			Score:   r.Score,
			Source:  BackendTavily,
		})
	}
	return snippets, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
