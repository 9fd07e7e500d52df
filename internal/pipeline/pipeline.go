// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline defines the brand-visibility workflow graph and the
// Service that starts, resumes, inspects and cancels its runs.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/pdiddy/visibility-engine/internal/stages"
	"github.com/pdiddy/visibility-engine/internal/state"
	"github.com/pdiddy/visibility-engine/internal/workflow"
)

// GraphName is the name of the brand-visibility workflow.
const GraphName = "brand-visibility"

// Node names of the brand-visibility workflow.
const (
	NodeSearchBrandInfo       = "search_brand_info"
	NodeSynthesizeDescription = "synthesize_brand_description"
	NodeFindCompetitors       = "find_competitors"
	NodeGeneratePerspectives  = "generate_perspectives"
	NodeReviewPerspectives    = "review_perspectives"
	NodeDispatchPrompts       = "dispatch_prompt_generation"
	NodeGeneratePrompts       = "generate_prompts_for_perspective"
	NodeReviewPrompts         = "review_prompts"
	NodeDispatchExecution     = "dispatch_prompt_execution"
	NodeExecutePrompt         = "execute_prompt"
	NodeCountMentions         = "count_brand_mentions"
)

// ReviewNodes are the human-feedback interrupts a run may enable.
var ReviewNodes = []string{NodeReviewPerspectives, NodeReviewPrompts}

// mainPath is the static edge sequence of the workflow. Workers hang off the
// two dispatch nodes.
var mainPath = []string{
	NodeSearchBrandInfo,
	NodeSynthesizeDescription,
	NodeFindCompetitors,
	NodeGeneratePerspectives,
	NodeReviewPerspectives,
	NodeDispatchPrompts,
	NodeReviewPrompts,
	NodeDispatchExecution,
	NodeCountMentions,
	workflow.End,
}

// NewGraph wires s into the brand-visibility workflow:
//
//	search_brand_info -> synthesize_brand_description -> find_competitors
//	  -> generate_perspectives -> review_perspectives
//	  -> dispatch_prompt_generation (generate_prompts_for_perspective x N)
//	  -> review_prompts
//	  -> dispatch_prompt_execution (execute_prompt x M)
//	  -> count_brand_mentions -> end
func NewGraph(s *stages.Stages) (*workflow.Graph, error) {
	g := workflow.NewGraph(GraphName)

	err := errors.Join(
		g.AddStage(NodeSearchBrandInfo, s.ResearchBrand, state.FieldBrandDescription, state.FieldMessages),
		g.AddStage(NodeSynthesizeDescription, s.SynthesizeDescription, state.FieldBrandDescription, state.FieldMessages),
		g.AddStage(NodeFindCompetitors, s.DiscoverCompetitors, state.FieldCompetitors),
		g.AddStage(NodeGeneratePerspectives, s.GeneratePerspectives, state.FieldPerspectives, state.FieldMessages),
		g.AddInterrupt(NodeReviewPerspectives),
		g.AddWorker(NodeGeneratePrompts, s.GeneratePromptsForPerspective, state.FieldPrompts),
		g.AddFanOut(NodeDispatchPrompts,
			stages.PromptGenerationRouter(NodeGeneratePrompts, NodeReviewPerspectives), NodeGeneratePrompts),
		g.AddInterrupt(NodeReviewPrompts),
		g.AddWorker(NodeExecutePrompt, s.ExecutePrompt, state.FieldResponses),
		g.AddFanOut(NodeDispatchExecution, stages.PromptExecutionRouter(NodeExecutePrompt), NodeExecutePrompt),
		g.AddStage(NodeCountMentions, s.TallyMentions, state.FieldCounters),
	)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", GraphName, err)
	}

	for i := 0; i+1 < len(mainPath); i++ {
		if err := g.AddEdge(mainPath[i], mainPath[i+1]); err != nil {
			return nil, fmt.Errorf("building %s: %w", GraphName, err)
		}
	}
	if err := g.SetEntry(NodeSearchBrandInfo); err != nil {
		return nil, fmt.Errorf("building %s: %w", GraphName, err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("building %s: %w", GraphName, err)
	}
	return g, nil
}
