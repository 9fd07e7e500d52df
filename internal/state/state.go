// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package state holds the record threaded through a pipeline run and the
// merge rules for updates produced by stages and fan-out branches.
//
// Every writable field carries an explicit Strategy. LastWriterWins fields
// have a single owning node; ConcatInOrder fields accumulate deltas, and at a
// fan-in the branch deltas are concatenated in invocation order.
package state

import (
	"fmt"
	"slices"
	"time"

	"github.com/pdiddy/visibility-engine/pkg/types"
)

// Tunables are the per-run knobs fixed at pipeline start.
type Tunables struct {
	NumberOfPerspectives int `json:"number_of_perspectives" yaml:"number_of_perspectives"`
	NumberOfPrompts      int `json:"number_of_prompts" yaml:"number_of_prompts"`
	NumberOfResponses    int `json:"number_of_responses" yaml:"number_of_responses"`
}

// State is the pipeline record. It is not safe for concurrent use; the
// scheduler is its only writer and hands branches payloads, never the State.
type State struct {
	RunID     string          `json:"run_id" yaml:"run_id"`
	BrandInfo types.BrandInfo `json:"brand_info" yaml:"brand_info"`

	BrandDescription string                `json:"brand_description" yaml:"brand_description"`
	Competitors      []types.Competitor    `json:"competitors" yaml:"competitors"`
	Perspectives     []types.Perspective   `json:"perspectives" yaml:"perspectives"`
	Prompts          []types.Prompt        `json:"prompts" yaml:"prompts"`
	Responses        []types.Response      `json:"responses" yaml:"responses"`
	BrandMentions    int                   `json:"brand_mentions" yaml:"brand_mentions"`
	Messages         []types.Message       `json:"messages" yaml:"messages"`
	HumanFeedback    *types.Feedback       `json:"human_feedback,omitempty" yaml:"human_feedback,omitempty"`
	Failures         []types.BranchFailure `json:"failures,omitempty" yaml:"failures,omitempty"`

	Tunables `yaml:",inline"`

	// Version counts applied updates.
	Version int64 `json:"version" yaml:"version"`
}

// New creates the initial State for a run.
func New(runID string, brand types.BrandInfo, t Tunables) *State {
	return &State{
		RunID:     runID,
		BrandInfo: brand,
		Tunables:  t,
	}
}

// Apply applies u according to each field's Strategy.
func (s *State) Apply(u Update) error {
	if c, ok := u.Counters.Get(); ok {
		n := len(s.Competitors)
		if comps, set := u.Competitors.Get(); set {
			n = len(comps)
		}
		if len(c.Competitors) != n {
			return fmt.Errorf("%w: %d counters for %d competitors", ErrCounterMismatch, len(c.Competitors), n)
		}
	}

	if v, ok := u.BrandDescription.Get(); ok {
		s.BrandDescription = v
	}
	if v, ok := u.Competitors.Get(); ok {
		s.Competitors = slices.Clone(v)
	}
	if v, ok := u.Perspectives.Get(); ok {
		s.Perspectives = slices.Clone(v)
	}
	if c, ok := u.Counters.Get(); ok {
		s.BrandMentions = c.Brand
		for i := range s.Competitors {
			s.Competitors[i].Mentions = c.Competitors[i]
		}
	}
	s.Prompts = append(s.Prompts, u.Prompts...)
	s.Responses = append(s.Responses, u.Responses...)
	s.Messages = append(s.Messages, u.Messages...)

	s.Version++
	return nil
}

// MergeBranches folds fan-out branch deltas into s. Deltas are validated
// before anything is applied, so a rejected merge leaves s unchanged. Deltas
// are concatenated in slice order, which the scheduler keeps equal to
// branch-invocation order.
func (s *State) MergeBranches(deltas []Update) error {
	for i, d := range deltas {
		if err := d.CheckBranch(); err != nil {
			return fmt.Errorf("branch %d: %w", i, err)
		}
	}

	var merged Update
	for _, d := range deltas {
		merged.Prompts = append(merged.Prompts, d.Prompts...)
		merged.Responses = append(merged.Responses, d.Responses...)
		merged.Messages = append(merged.Messages, d.Messages...)
	}
	return s.Apply(merged)
}

// RecordFailures appends branch failures reported by a partial merge.
func (s *State) RecordFailures(fs []types.BranchFailure) {
	if len(fs) == 0 {
		return
	}
	s.Failures = append(s.Failures, fs...)
	s.Version++
}

// SetFeedback records human feedback for the interrupt node fb.Node.
func (s *State) SetFeedback(fb types.Feedback) {
	if fb.SubmittedAt.IsZero() {
		fb.SubmittedAt = time.Now().UTC()
	}
	s.HumanFeedback = &fb
	s.Version++
}

// FeedbackFor returns the feedback recorded for node, if any.
func (s *State) FeedbackFor(node string) (types.Feedback, bool) {
	if s.HumanFeedback == nil || s.HumanFeedback.Node != node {
		return types.Feedback{}, false
	}
	return *s.HumanFeedback, true
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Competitors = slices.Clone(s.Competitors)
	c.Perspectives = slices.Clone(s.Perspectives)
	c.Prompts = slices.Clone(s.Prompts)
	c.Responses = slices.Clone(s.Responses)
	c.Messages = slices.Clone(s.Messages)
	c.Failures = slices.Clone(s.Failures)
	if s.HumanFeedback != nil {
		fb := *s.HumanFeedback
		c.HumanFeedback = &fb
	}
	return &c
}
