// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/visibility-engine/internal/ports"
	"github.com/pdiddy/visibility-engine/internal/state"
	"github.com/pdiddy/visibility-engine/internal/workflow"
	"github.com/pdiddy/visibility-engine/pkg/types"
)

// scriptedGenerator answers Structured calls with canned JSON per schema name
// and Complete calls with reply.
type scriptedGenerator struct {
	mu         sync.Mutex
	structured map[string]string
	reply      func(msgs []types.Message) (string, error)
	calls      [][]types.Message
}

func (g *scriptedGenerator) record(msgs []types.Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, msgs)
}

func (g *scriptedGenerator) Complete(_ context.Context, msgs []types.Message) (string, error) {
	g.record(msgs)
	if g.reply == nil {
		return "", errors.New("no reply scripted")
	}
	return g.reply(msgs)
}

func (g *scriptedGenerator) Structured(_ context.Context, msgs []types.Message, schema ports.Schema, out any) error {
	g.record(msgs)
	body, ok := g.structured[schema.Name]
	if !ok {
		return fmt.Errorf("no %s scripted", schema.Name)
	}
	return json.Unmarshal([]byte(body), out)
}

type stubSearcher struct {
	snippets []types.Snippet
	err      error
	queries  []string
}

func (s *stubSearcher) Search(_ context.Context, query string) ([]types.Snippet, error) {
	s.queries = append(s.queries, query)
	return s.snippets, s.err
}

func acmeState() *state.State {
	st := state.New("run-1", types.BrandInfo{CompanyName: "Acme", Website: "acme.com"}, state.Tunables{
		NumberOfPerspectives: 2,
		NumberOfPrompts:      1,
		NumberOfResponses:    1,
	})
	st.BrandDescription = "Acme makes anvils and rocket skates."
	return st
}

func TestResearchBrand(t *testing.T) {
	search := &stubSearcher{snippets: []types.Snippet{
		{Title: "Acme Corp", URL: "https://acme.com", Content: "Anvils since 1949."},
		{Title: "Acme on Wikipedia", URL: "https://en.wikipedia.org/wiki/Acme", Content: "Fictional company."},
	}}
	s := New(&scriptedGenerator{}, search, "")

	u, err := s.ResearchBrand(context.Background(), acmeState())
	require.NoError(t, err)

	require.Len(t, search.queries, 1)
	assert.Contains(t, search.queries[0], "What is Acme (acme.com)?")

	desc, ok := u.BrandDescription.Get()
	require.True(t, ok)
	assert.Contains(t, desc, "[1] Acme Corp (https://acme.com)\nAnvils since 1949.")
	assert.Contains(t, desc, "[2] Acme on Wikipedia")

	require.Len(t, u.Messages, 1)
	assert.Equal(t, types.RoleHuman, u.Messages[0].Role)
	assert.True(t, strings.HasPrefix(u.Messages[0].Content, "Search results for Acme: "))
}

func TestResearchBrandNoResults(t *testing.T) {
	s := New(&scriptedGenerator{}, &stubSearcher{}, "")
	u, err := s.ResearchBrand(context.Background(), acmeState())
	require.NoError(t, err)
	desc, ok := u.BrandDescription.Get()
	assert.True(t, ok)
	assert.Empty(t, desc)
}

func TestResearchBrandSearchError(t *testing.T) {
	s := New(&scriptedGenerator{}, &stubSearcher{err: errors.New("quota exceeded")}, "")
	_, err := s.ResearchBrand(context.Background(), acmeState())

	var searchErr *ports.SearchError
	require.ErrorAs(t, err, &searchErr)
	assert.Contains(t, searchErr.Query, "Acme")
}

func TestSynthesizeDescription(t *testing.T) {
	gen := &scriptedGenerator{reply: func(msgs []types.Message) (string, error) {
		return "  Acme is a manufacturer of anvils.\n", nil
	}}
	s := New(gen, &stubSearcher{}, "")

	u, err := s.SynthesizeDescription(context.Background(), acmeState())
	require.NoError(t, err)

	desc, _ := u.BrandDescription.Get()
	assert.Equal(t, "Acme is a manufacturer of anvils.", desc)
	require.Len(t, u.Messages, 1)
	assert.Equal(t, types.RoleAI, u.Messages[0].Role)

	require.Len(t, gen.calls, 1)
	assert.Contains(t, gen.calls[0][0].Content, "Acme makes anvils and rocket skates.")
}

func TestSynthesizeDescriptionGenerationError(t *testing.T) {
	gen := &scriptedGenerator{reply: func([]types.Message) (string, error) {
		return "", errors.New("overloaded")
	}}
	_, err := New(gen, &stubSearcher{}, "").SynthesizeDescription(context.Background(), acmeState())

	var genErr *ports.GenerationError
	assert.ErrorAs(t, err, &genErr)
}

func TestDiscoverCompetitors(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{
			name:  "empty list is valid",
			reply: `{"competitors": []}`,
			want:  []string{},
		},
		{
			name:  "blank names dropped and mentions reset",
			reply: `{"competitors": [{"name": "Globex", "mentions": 7}, {"name": "  "}, {"name": "Initech"}]}`,
			want:  []string{"Globex", "Initech"},
		},
		{
			name: "capped",
			reply: func() string {
				var cs []string
				for i := range 12 {
					cs = append(cs, fmt.Sprintf(`{"name": "C%d"}`, i))
				}
				return `{"competitors": [` + strings.Join(cs, ",") + `]}`
			}(),
			want: []string{"C0", "C1", "C2", "C3", "C4", "C5", "C6", "C7", "C8", "C9"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{structured: map[string]string{"Competitors": tt.reply}}
			u, err := New(gen, &stubSearcher{}, "").DiscoverCompetitors(context.Background(), acmeState())
			require.NoError(t, err)

			comps, ok := u.Competitors.Get()
			require.True(t, ok, "an empty result is still a write")
			names := make([]string, len(comps))
			for i, c := range comps {
				names[i] = c.Name
				assert.Zero(t, c.Mentions)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestGeneratePerspectivesPolicies(t *testing.T) {
	three := `{"perspectives": [{"intent": "buy"}, {"intent": "compare", "language": "Turkish"}, {"intent": "learn"}]}`

	tests := []struct {
		policy  types.PerspectivePolicy
		want    int
		wantErr error
	}{
		{policy: types.PerspectivesTarget, want: 3},
		{policy: types.PerspectivesTruncate, want: 2},
		{policy: types.PerspectivesStrict, wantErr: ErrPerspectiveCount},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			gen := &scriptedGenerator{structured: map[string]string{"Perspectives": three}}
			u, err := New(gen, &stubSearcher{}, tt.policy).GeneratePerspectives(context.Background(), acmeState())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			ps, ok := u.Perspectives.Get()
			require.True(t, ok)
			assert.Len(t, ps, tt.want)
			assert.Equal(t, "English", ps[0].Language, "language defaulted")
			assert.Equal(t, "Turkish", ps[1].Language, "model language kept")
			require.Len(t, u.Messages, 1)
			assert.Equal(t, fmt.Sprintf("Generated %d perspectives", tt.want), u.Messages[0].Content)
		})
	}
}

func TestGeneratePerspectivesRequiresIntent(t *testing.T) {
	gen := &scriptedGenerator{structured: map[string]string{
		"Perspectives": `{"perspectives": [{"intent": "buy"}, {"demographic": "retiree", "intent": "  "}]}`,
	}}

	_, err := New(gen, &stubSearcher{}, "").GeneratePerspectives(context.Background(), acmeState())
	require.Error(t, err)

	var genErr *ports.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "Perspectives", genErr.Schema)
	assert.ErrorIs(t, err, errMissingPerspective)
	assert.Contains(t, err.Error(), "perspective 1")
}

func TestGeneratePerspectivesPrompt(t *testing.T) {
	gen := &scriptedGenerator{structured: map[string]string{"Perspectives": `{"perspectives": [{"intent": "a"}, {"intent": "b"}]}`}}
	st := acmeState()
	st.BrandInfo.Region = "Turkey"
	st.BrandInfo.Language = "Turkish"

	_, err := New(gen, &stubSearcher{}, "").GeneratePerspectives(context.Background(), st)
	require.NoError(t, err)

	require.Len(t, gen.calls, 1)
	msgs := gen.calls[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "virtual focus group of 2 distinct user personas")
	assert.Contains(t, msgs[0].Content, "Region of interest: Turkey")
	assert.Contains(t, msgs[0].Content, "Primary language: Turkish")
	assert.Contains(t, msgs[1].Content, st.BrandDescription)
}

func TestGeneratePromptsForPerspective(t *testing.T) {
	gen := &scriptedGenerator{structured: map[string]string{
		"Prompts": `{"prompts": [{"text": "cheap anvils near me"}, {"text": "   "}, {"text": "anvil vs hammer"}]}`,
	}}
	persona := types.Perspective{Intent: "Make a purchase decision", Demographic: "Blacksmith"}

	u, err := New(gen, &stubSearcher{}, "").GeneratePromptsForPerspective(context.Background(), PerspectivePromptPayload{
		Perspective:      persona,
		BrandDescription: "Acme makes anvils.",
		NumberOfPrompts:  2,
		Feedback:         "focus on professionals",
	})
	require.NoError(t, err)

	require.Len(t, u.Prompts, 2)
	for _, p := range u.Prompts {
		assert.Equal(t, persona, p.Perspective)
	}
	assert.Equal(t, "anvil vs hammer", u.Prompts[1].Text)
	assert.NoError(t, u.CheckBranch())

	msgs := gen.calls[0]
	assert.Contains(t, msgs[0].Content, "Generate EXACTLY 2 prompts")
	assert.Contains(t, msgs[0].Content, "United States and English")
	assert.Contains(t, msgs[1].Content, `"demographic": "Blacksmith"`)
	assert.Contains(t, msgs[1].Content, "Reviewer guidance:\nfocus on professionals")
}

func TestGeneratePromptsWithoutFeedback(t *testing.T) {
	gen := &scriptedGenerator{structured: map[string]string{"Prompts": `{"prompts": []}`}}
	u, err := New(gen, &stubSearcher{}, "").GeneratePromptsForPerspective(context.Background(), PerspectivePromptPayload{
		Perspective:     types.Perspective{Intent: "learn"},
		NumberOfPrompts: 1,
	})
	require.NoError(t, err)
	assert.True(t, u.IsEmpty())
	assert.NotContains(t, gen.calls[0][1].Content, "Reviewer guidance")
}

func TestExecutePrompt(t *testing.T) {
	gen := &scriptedGenerator{reply: func(msgs []types.Message) (string, error) {
		return "Try Acme anvils for " + msgs[0].Content, nil
	}}
	prompt := types.Prompt{Text: "sturdy anvils", Perspective: types.Perspective{Intent: "buy"}}

	u, err := New(gen, &stubSearcher{}, "").ExecutePrompt(context.Background(), PromptExecutionPayload{Prompt: prompt})
	require.NoError(t, err)
	require.Len(t, u.Responses, 1)
	assert.Equal(t, prompt, u.Responses[0].Prompt)
	assert.Equal(t, "Try Acme anvils for sturdy anvils", u.Responses[0].Response)
}

func TestExecutePromptMissingText(t *testing.T) {
	gen := &scriptedGenerator{}
	u, err := New(gen, &stubSearcher{}, "").ExecutePrompt(context.Background(), PromptExecutionPayload{})
	require.NoError(t, err)
	assert.True(t, u.IsEmpty())
	assert.Empty(t, gen.calls, "model never called")
}

func TestWorkersRejectForeignPayloads(t *testing.T) {
	s := New(&scriptedGenerator{}, &stubSearcher{}, "")
	_, err := s.ExecutePrompt(context.Background(), PerspectivePromptPayload{})
	assert.Error(t, err)
	_, err = s.GeneratePromptsForPerspective(context.Background(), PromptExecutionPayload{})
	assert.Error(t, err)
}

func TestPayloadValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload workflow.Payload
		wantErr error
	}{
		{"perspective ok", PerspectivePromptPayload{Perspective: types.Perspective{Intent: "x"}, NumberOfPrompts: 1}, nil},
		{"perspective missing", PerspectivePromptPayload{NumberOfPrompts: 1}, errMissingPerspective},
		{"zero prompts", PerspectivePromptPayload{Perspective: types.Perspective{Intent: "x"}}, errMissingCount},
		{"prompt ok", PromptExecutionPayload{Prompt: types.Prompt{Text: "q"}}, nil},
		{"prompt missing", PromptExecutionPayload{}, errMissingPrompt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, KindPerspectivePrompt, PerspectivePromptPayload{}.Kind())
	assert.Equal(t, KindPromptExecution, PromptExecutionPayload{}.Kind())
}

func TestPromptGenerationRouter(t *testing.T) {
	st := acmeState()
	st.Perspectives = []types.Perspective{{Intent: "buy"}, {Intent: "compare"}, {Intent: "learn"}}
	st.SetFeedback(types.Feedback{Node: "review_perspectives", Text: "more experts"})

	route, err := PromptGenerationRouter("gen", "review_perspectives")(st)
	require.NoError(t, err)
	assert.Empty(t, route.Next)
	require.Len(t, route.Branches, 3)

	for i, b := range route.Branches {
		assert.Equal(t, "gen", b.Worker)
		p, ok := b.Payload.(PerspectivePromptPayload)
		require.True(t, ok)
		assert.Equal(t, st.Perspectives[i], p.Perspective)
		assert.Equal(t, st.BrandDescription, p.BrandDescription)
		assert.Equal(t, 1, p.NumberOfPrompts)
		assert.Equal(t, DefaultRegion, p.Region)
		assert.Equal(t, DefaultLanguage, p.Language)
		assert.Equal(t, "more experts", p.Feedback)
	}
}

func TestPromptGenerationRouterNoPerspectives(t *testing.T) {
	route, err := PromptGenerationRouter("gen", "review")(acmeState())
	require.NoError(t, err)
	assert.Empty(t, route.Next)
	assert.Empty(t, route.Branches)
}

func TestPromptExecutionRouter(t *testing.T) {
	st := acmeState()
	st.Prompts = []types.Prompt{{Text: "a"}, {Text: "b"}}

	route, err := PromptExecutionRouter("exec")(st)
	require.NoError(t, err)
	require.Len(t, route.Branches, 2)
	assert.Equal(t, PromptExecutionPayload{Prompt: types.Prompt{Text: "b"}}, route.Branches[1].Payload)
}

func TestCountMentionsCaseInsensitive(t *testing.T) {
	c := CountMentions("Nike", nil, []types.Response{{Response: "I love NIKE shoes"}})
	assert.Equal(t, 1, c.Brand)
	assert.Empty(t, c.Competitors)
}

func TestCountMentionsOncePerResponse(t *testing.T) {
	responses := []types.Response{
		{Response: "Adidas, adidas and more ADIDAS"},
		{Response: "Nike or Adidas?"},
		{Response: "Puma only"},
	}
	comps := []types.Competitor{{Name: "Adidas"}, {Name: "Reebok"}, {Name: ""}}

	c := CountMentions("Nike", comps, responses)
	assert.Equal(t, 1, c.Brand)
	assert.Equal(t, []int{2, 0, 0}, c.Competitors, "empty names never match")
}

func TestTallyMentionsIsIdempotent(t *testing.T) {
	st := acmeState()
	st.Competitors = []types.Competitor{{Name: "Globex"}, {Name: "Initech"}}
	st.Responses = []types.Response{
		{Response: "Acme and Globex both sell anvils."},
		{Response: "globex is cheaper"},
		{Response: "Nothing relevant."},
	}
	s := New(&scriptedGenerator{}, &stubSearcher{}, "")

	for range 2 {
		u, err := s.TallyMentions(context.Background(), st)
		require.NoError(t, err)
		require.NoError(t, st.Apply(u))

		assert.Equal(t, 1, st.BrandMentions)
		assert.Equal(t, 2, st.Competitors[0].Mentions)
		assert.Equal(t, 0, st.Competitors[1].Mentions)
	}
}

func TestTallyMentionsEmptyCompetitors(t *testing.T) {
	st := acmeState()
	st.Responses = []types.Response{{Response: "acme rocks"}}

	u, err := New(&scriptedGenerator{}, &stubSearcher{}, "").TallyMentions(context.Background(), st)
	require.NoError(t, err)
	require.NoError(t, st.Apply(u))
	assert.Equal(t, 1, st.BrandMentions)
	assert.Empty(t, st.Competitors)
}
