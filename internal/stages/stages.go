// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package stages implements the brand-visibility pipeline stages, the two
// fan-out workers and their routers. Stages call the language model and web
// search only through the ports they are constructed with.
package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/visibility-engine/internal/logging"
	"github.com/pdiddy/visibility-engine/internal/ports"
	"github.com/pdiddy/visibility-engine/internal/state"
	"github.com/pdiddy/visibility-engine/internal/workflow"
	"github.com/pdiddy/visibility-engine/pkg/types"
)

// Defaults applied when the brand omits region or language.
const (
	DefaultRegion   = "United States"
	DefaultLanguage = "English"
)

// MaxCompetitors caps the competitor list.
const MaxCompetitors = 10

// ErrPerspectiveCount is returned under the strict perspective policy when the
// model does not return the requested number of perspectives.
var ErrPerspectiveCount = errors.New("perspective count mismatch")

// Stages holds the ports every stage calls.
type Stages struct {
	gen    ports.Generator
	search ports.Searcher
	policy types.PerspectivePolicy
}

// New returns Stages backed by gen and search. An empty policy means
// types.PerspectivesTarget.
func New(gen ports.Generator, search ports.Searcher, policy types.PerspectivePolicy) *Stages {
	if policy == "" {
		policy = types.PerspectivesTarget
	}
	return &Stages{gen: gen, search: search, policy: policy}
}

// ResearchBrand searches the web for the brand and stores the raw results as
// the brand description.
func (s *Stages) ResearchBrand(ctx context.Context, st *state.State) (state.Update, error) {
	query, err := render(researchQueryTmpl, st.BrandInfo)
	if err != nil {
		return state.Update{}, fmt.Errorf("rendering query: %w", err)
	}

	snippets, err := ports.SearchWeb(ctx, s.search, query)
	if err != nil {
		return state.Update{}, err
	}
	logging.FromContext(ctx).Info("brand research", "company", st.BrandInfo.CompanyName, "results", len(snippets))

	raw := formatSnippets(snippets)
	return state.Update{
		BrandDescription: state.Set(raw),
		Messages: []types.Message{{
			Role:    types.RoleHuman,
			Content: fmt.Sprintf("Search results for %s: %s", st.BrandInfo.CompanyName, raw),
		}},
	}, nil
}

// SynthesizeDescription replaces the raw search results with a narrative
// description written by the model.
func (s *Stages) SynthesizeDescription(ctx context.Context, st *state.State) (state.Update, error) {
	prompt, err := render(synthesizeTmpl, struct {
		CompanyName, Website, Context string
	}{st.BrandInfo.CompanyName, st.BrandInfo.Website, st.BrandDescription})
	if err != nil {
		return state.Update{}, fmt.Errorf("rendering prompt: %w", err)
	}

	description, err := ports.GenerateText(ctx, s.gen, []types.Message{{Role: types.RoleHuman, Content: prompt}})
	if err != nil {
		return state.Update{}, err
	}
	description = strings.TrimSpace(description)

	return state.Update{
		BrandDescription: state.Set(description),
		Messages:         []types.Message{{Role: types.RoleAI, Content: description}},
	}, nil
}

// DiscoverCompetitors asks the model for up to MaxCompetitors competitors.
// An empty list is a valid result.
func (s *Stages) DiscoverCompetitors(ctx context.Context, st *state.State) (state.Update, error) {
	prompt, err := render(competitorsTmpl, struct {
		Max         int
		Description string
	}{MaxCompetitors, st.BrandDescription})
	if err != nil {
		return state.Update{}, fmt.Errorf("rendering prompt: %w", err)
	}

	list, err := ports.GenerateStructured[CompetitorList](ctx, s.gen,
		[]types.Message{{Role: types.RoleHuman, Content: prompt}}, competitorsSchema)
	if err != nil {
		return state.Update{}, err
	}

	comps := make([]types.Competitor, 0, len(list.Competitors))
	for _, c := range list.Competitors {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		c.Mentions = 0
		comps = append(comps, c)
		if len(comps) == MaxCompetitors {
			break
		}
	}
	logging.FromContext(ctx).Info("competitors discovered", "count", len(comps))
	return state.Update{Competitors: state.Set(comps)}, nil
}

// GeneratePerspectives asks the model for NumberOfPerspectives personas and
// applies the configured count policy to the result.
func (s *Stages) GeneratePerspectives(ctx context.Context, st *state.State) (state.Update, error) {
	want := st.NumberOfPerspectives
	language := orDefault(st.BrandInfo.Language, DefaultLanguage)

	system, err := render(perspectivesSystemTmpl, struct {
		Count            int
		Region, Language string
	}{want, orDefault(st.BrandInfo.Region, DefaultRegion), language})
	if err != nil {
		return state.Update{}, fmt.Errorf("rendering prompt: %w", err)
	}

	list, err := ports.GenerateStructured[PerspectiveList](ctx, s.gen, []types.Message{
		{Role: types.RoleSystem, Content: system},
		{Role: types.RoleHuman, Content: "Generate perspectives based on this brand description:\n" + st.BrandDescription},
	}, perspectivesSchema)
	if err != nil {
		return state.Update{}, err
	}
	// Each stored perspective becomes one prompt-generation branch.
	for i := range list.Perspectives {
		p := &list.Perspectives[i]
		p.Intent = strings.TrimSpace(p.Intent)
		if p.Intent == "" {
			return state.Update{}, &ports.GenerationError{
				Schema: perspectivesSchema.Name,
				Err:    fmt.Errorf("perspective %d: %w", i, errMissingPerspective),
			}
		}
	}

	ps, err := s.applyPolicy(ctx, list.Perspectives, want)
	if err != nil {
		return state.Update{}, err
	}
	for i := range ps {
		if ps[i].Language == "" {
			ps[i].Language = language
		}
	}

	return state.Update{
		Perspectives: state.Set(ps),
		Messages:     []types.Message{{Role: types.RoleAI, Content: fmt.Sprintf("Generated %d perspectives", len(ps))}},
	}, nil
}

func (s *Stages) applyPolicy(ctx context.Context, ps []types.Perspective, want int) ([]types.Perspective, error) {
	if len(ps) == want {
		return ps, nil
	}

	log := logging.FromContext(ctx)
	switch s.policy {
	case types.PerspectivesStrict:
		return nil, fmt.Errorf("%w: requested %d, got %d", ErrPerspectiveCount, want, len(ps))
	case types.PerspectivesTruncate:
		if len(ps) > want {
			log.Warn("truncating perspectives", "requested", want, "got", len(ps))
			return ps[:want], nil
		}
	}
	log.Warn("perspective count differs from request", "requested", want, "got", len(ps), "policy", s.policy)
	return ps, nil
}

// GeneratePromptsForPerspective is the prompt-generation worker. It runs once
// per perspective and returns that perspective's prompts.
func (s *Stages) GeneratePromptsForPerspective(ctx context.Context, p workflow.Payload) (state.Update, error) {
	payload, ok := p.(PerspectivePromptPayload)
	if !ok {
		return state.Update{}, fmt.Errorf("unexpected payload %s", p.Kind())
	}

	system, err := render(promptsSystemTmpl, struct {
		Count            int
		Region, Language string
	}{payload.NumberOfPrompts, orDefault(payload.Region, DefaultRegion), orDefault(payload.Language, DefaultLanguage)})
	if err != nil {
		return state.Update{}, fmt.Errorf("rendering prompt: %w", err)
	}

	persona, err := json.MarshalIndent(payload.Perspective, "", "  ")
	if err != nil {
		return state.Update{}, fmt.Errorf("marshaling perspective: %w", err)
	}
	human, err := render(promptsHumanTmpl, struct {
		Perspective, Description, Feedback string
	}{string(persona), payload.BrandDescription, payload.Feedback})
	if err != nil {
		return state.Update{}, fmt.Errorf("rendering prompt: %w", err)
	}

	list, err := ports.GenerateStructured[PromptList](ctx, s.gen, []types.Message{
		{Role: types.RoleSystem, Content: system},
		{Role: types.RoleHuman, Content: human},
	}, promptsSchema)
	if err != nil {
		return state.Update{}, err
	}

	var prompts []types.Prompt
	for _, pr := range list.Prompts {
		text := strings.TrimSpace(pr.Text)
		if text == "" {
			continue
		}
		prompts = append(prompts, types.Prompt{Perspective: payload.Perspective, Text: text})
	}
	return state.Update{Prompts: prompts}, nil
}

// ExecutePrompt is the prompt-execution worker. It sends one prompt to the
// model and records the answer. A prompt without text yields no response.
func (s *Stages) ExecutePrompt(ctx context.Context, p workflow.Payload) (state.Update, error) {
	payload, ok := p.(PromptExecutionPayload)
	if !ok {
		return state.Update{}, fmt.Errorf("unexpected payload %s", p.Kind())
	}
	if payload.Prompt.Text == "" {
		return state.Update{}, nil
	}

	answer, err := ports.GenerateText(ctx, s.gen, []types.Message{{Role: types.RoleHuman, Content: payload.Prompt.Text}})
	if err != nil {
		return state.Update{}, err
	}
	return state.Update{
		Responses: []types.Response{{Prompt: payload.Prompt, Response: answer}},
	}, nil
}

// TallyMentions counts, for the brand and every competitor, the responses
// whose text mentions the name. Counts are recomputed from zero.
func (s *Stages) TallyMentions(_ context.Context, st *state.State) (state.Update, error) {
	return state.Update{Counters: state.Set(CountMentions(st.BrandInfo.CompanyName, st.Competitors, st.Responses))}, nil
}

func formatSnippets(snippets []types.Snippet) string {
	var b strings.Builder
	for i, sn := range snippets {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s", i+1, sn.Title, sn.URL, sn.Content)
	}
	return b.String()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
