// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/visibility-engine/internal/httputil"
	"github.com/pdiddy/visibility-engine/pkg/types"
)

func TestMain(m *testing.M) {
	httputil.RetryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

type stubBackend struct {
	name     string
	snippets []types.Snippet
	err      error
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Search(context.Context, string) ([]types.Snippet, error) {
	return s.snippets, s.err
}

func TestMultiDedupAndRank(t *testing.T) {
	m := &Multi{Backends: []Backend{
		&stubBackend{name: "a", snippets: []types.Snippet{
			{Title: "Acme", URL: "https://www.acme.com/", Content: "short", Score: 0.4},
			{Title: "Wiki", URL: "https://en.wikipedia.org/wiki/Acme", Content: "wiki", Score: 0.9},
		}},
		&stubBackend{name: "b", snippets: []types.Snippet{
			{Title: "Acme home", URL: "https://acme.com", Content: "a longer description", Score: 0.7},
			{Title: "News", URL: "https://news.example.com/acme#top", Content: "news", Score: 0.1},
		}},
	}}

	got, err := m.Search(context.Background(), "acme")
	require.NoError(t, err)

	want := []types.Snippet{
		{Title: "Wiki", URL: "https://en.wikipedia.org/wiki/Acme", Content: "wiki", Score: 0.9, Source: "a"},
		{Title: "Acme", URL: "https://www.acme.com/", Content: "a longer description", Score: 0.7, Source: "a"},
		{Title: "News", URL: "https://news.example.com/acme#top", Content: "news", Score: 0.1, Source: "b"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Search() mismatch (-want +got):\n%s", diff)
	}
}

func TestMultiMaxResults(t *testing.T) {
	m := &Multi{MaxResults: 1, Backends: []Backend{
		&stubBackend{name: "a", snippets: []types.Snippet{
			{URL: "https://one.example", Score: 0.2},
			{URL: "https://two.example", Score: 0.8},
		}},
	}}
	got, err := m.Search(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://two.example", got[0].URL)
}

func TestMultiBackendFailure(t *testing.T) {
	ok := &stubBackend{name: "ok", snippets: []types.Snippet{{URL: "https://acme.com", Score: 1}}}
	bad := &stubBackend{name: "bad", err: errors.New("quota exceeded")}

	got, err := (&Multi{Backends: []Backend{bad, ok}}).Search(context.Background(), "acme")
	require.NoError(t, err, "one failing backend is a warning")
	assert.Len(t, got, 1)

	_, err = (&Multi{Backends: []Backend{bad, &stubBackend{name: "bad2", err: errors.New("down")}}}).Search(context.Background(), "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Contains(t, err.Error(), "bad2: down")
}

func TestMultiRejectsEmpty(t *testing.T) {
	_, err := (&Multi{Backends: []Backend{&stubBackend{name: "a"}}}).Search(context.Background(), "  ")
	assert.Error(t, err)
	_, err = (&Multi{}).Search(context.Background(), "acme")
	assert.Error(t, err)
}

func TestMultiZeroResults(t *testing.T) {
	got, err := (&Multi{Backends: []Backend{&stubBackend{name: "a"}}}).Search(context.Background(), "acme")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNew(t *testing.T) {
	cfg := types.SearchConfig{
		Backends:     []string{"tavily", "Brave"},
		TavilyAPIKey: "tk",
		BraveAPIKey:  "bk",
		MaxResults:   3,
	}
	m, err := New(cfg, nil)
	require.NoError(t, err)
	require.Len(t, m.Backends, 2)
	assert.Equal(t, BackendTavily, m.Backends[0].Name())
	assert.Equal(t, BackendBrave, m.Backends[1].Name())
	assert.Equal(t, 3, m.MaxResults)

	tests := []struct {
		name string
		cfg  types.SearchConfig
	}{
		{"no backends", types.SearchConfig{}},
		{"unknown backend", types.SearchConfig{Backends: []string{"bing"}}},
		{"missing tavily key", types.SearchConfig{Backends: []string{"tavily"}}},
		{"missing brave key", types.SearchConfig{Backends: []string{"brave"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://www.Acme.com/", "acme.com"},
		{"http://acme.com", "acme.com"},
		{"https://acme.com/products/?id=1#reviews", "acme.com/products?id=1"},
		{"acme.com/", "acme.com"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeURL(tt.in), tt.in)
	}
}

func TestTavilySearch(t *testing.T) {
	var got tavilyRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tk", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"results":[{"title":"Acme","url":"https://acme.com","content":"Anvils and rockets.","score":0.93}]}`)
	}))
	defer ts.Close()

	old := tavilyAPIURL
	tavilyAPIURL = ts.URL
	defer func() { tavilyAPIURL = old }()

	b := &Tavily{APIKey: "tk", Config: types.SearchConfig{MaxResults: 7}, Client: ts.Client()}
	snippets, err := b.Search(context.Background(), "what is acme")
	require.NoError(t, err)

	assert.Equal(t, "what is acme", got.Query)
	assert.Equal(t, 7, got.MaxResults)
	assert.Equal(t, []types.Snippet{{
		Title: "Acme", URL: "https://acme.com", Content: "Anvils and rockets.", Score: 0.93, Source: BackendTavily,
	}}, snippets)
}

func TestTavilyHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	old := tavilyAPIURL
	tavilyAPIURL = ts.URL
	defer func() { tavilyAPIURL = old }()

	_, err := (&Tavily{APIKey: "bad", Client: ts.Client()}).Search(context.Background(), "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestBraveSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bk", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "what is acme", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("count"))
		fmt.Fprint(w, `{"web":{"results":[
			{"title":"Acme","url":"https://acme.com","description":"first"},
			{"title":"Acme Wiki","url":"https://en.wikipedia.org/wiki/Acme","description":"second"}
		]}}`)
	}))
	defer ts.Close()

	old := braveAPIBase
	braveAPIBase = ts.URL
	defer func() { braveAPIBase = old }()

	b := &Brave{APIKey: "bk", Client: ts.Client()}
	snippets, err := b.Search(context.Background(), "what is acme")
	require.NoError(t, err)
	require.Len(t, snippets, 2)
	assert.Equal(t, "first", snippets[0].Content)
	assert.InDelta(t, 1.0, snippets[0].Score, 1e-9)
	assert.InDelta(t, 0.1, snippets[1].Score, 1e-9)
	assert.Equal(t, BackendBrave, snippets[1].Source)
}

func TestBraveRetriesRateLimit(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"web":{"results":[]}}`)
	}))
	defer ts.Close()

	old := braveAPIBase
	braveAPIBase = ts.URL
	defer func() { braveAPIBase = old }()

	snippets, err := (&Brave{APIKey: "bk", Client: ts.Client()}).Search(context.Background(), "acme")
	require.NoError(t, err)
	assert.Empty(t, snippets)
	assert.Equal(t, 2, calls)
}
