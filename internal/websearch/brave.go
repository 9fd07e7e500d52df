// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pdiddy/visibility-engine/internal/httputil"
	"github.com/pdiddy/visibility-engine/pkg/types"
)

// braveAPIBase is the Brave web search endpoint. Declared as a var so tests
// can substitute an httptest server.
var braveAPIBase = "https://api.search.brave.com/res/v1/web/search"

// Brave queries the Brave web search API. Brave does not score results, so
// scores are derived from rank.
type Brave struct {
	APIKey string
	Config types.SearchConfig
	Client *http.Client
}

// Name returns the backend identifier.
func (b *Brave) Name() string { return BackendBrave }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search queries Brave and returns rank-scored results.
func (b *Brave) Search(ctx context.Context, query string) ([]types.Snippet, error) {
	params := url.Values{
		"q":     {query},
		"count": {strconv.Itoa(orDefault(b.Config.MaxResults, 5))},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, braveAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)
	if b.Config.UserAgent != "" {
		req.Header.Set("User-Agent", b.Config.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("Brave API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Brave API returned HTTP %d", resp.StatusCode)
	}

	var br braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("parsing Brave response: %w", err)
	}

	total := len(br.Web.Results)
	snippets := make([]types.Snippet, 0, total)
	for i, r := range br.Web.Results {
		snippets = append(snippets, types.Snippet{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Description,
			Score:   positionScore(i, total),
			Source:  BackendBrave,
		})
	}
	return snippets, nil
}
