// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the visibility-engine pipeline:
// the brand being assessed, the competitors and perspectives generated for it,
// the prompts and responses produced by the fan-out stages, and the conversation
// log kept for audit.
package types

import "time"

// BrandInfo identifies the brand under assessment. It is the immutable input
// of a pipeline run.
type BrandInfo struct {
	// CompanyName is the brand name matched against responses.
	CompanyName string `json:"company_name" yaml:"company_name"`

	// Website is the brand's primary domain (e.g. "acme.com").
	Website string `json:"website" yaml:"website"`

	// Region is the region of the brand's headquarters (e.g. "United States").
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// Language is the primary language searchers use (default "English").
	Language string `json:"language" yaml:"language"`
}

// Competitor is a brand competing in the same domain. Mentions is filled in
// by the tally stage and recomputed on every run of it.
type Competitor struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Website     string `json:"website" yaml:"website"`
	Logo        string `json:"logo" yaml:"logo"`
	Industry    string `json:"industry" yaml:"industry"`
	Location    string `json:"location" yaml:"location"`
	Mentions    int    `json:"mentions" yaml:"mentions"`
}

// Perspective is a persona describing a hypothetical searcher approaching an
// AI answer engine. Only Intent is required; every other attribute is optional.
type Perspective struct {
	// Intent is the searcher's high-level goal (e.g. "Make a purchase decision").
	Intent string `json:"intent" yaml:"intent"`

	Demographic    string `json:"demographic,omitempty" yaml:"demographic,omitempty"`
	Region         string `json:"region,omitempty" yaml:"region,omitempty"`
	Gender         string `json:"gender,omitempty" yaml:"gender,omitempty"`
	MarketRole     string `json:"market_role,omitempty" yaml:"market_role,omitempty"`
	SpecificNeed   string `json:"specific_need,omitempty" yaml:"specific_need,omitempty"`
	KnowledgeLevel string `json:"knowledge_level,omitempty" yaml:"knowledge_level,omitempty"`

	// Language is the language the searcher thinks and types in (default "English").
	Language string `json:"language" yaml:"language"`

	SentimentBias string `json:"sentiment_bias,omitempty" yaml:"sentiment_bias,omitempty"`
	QueryType     string `json:"query_type,omitempty" yaml:"query_type,omitempty"`
}

// Prompt is a concrete search query generated for a perspective.
type Prompt struct {
	Perspective Perspective `json:"perspective" yaml:"perspective"`

	// Text is the query as it would be typed into an AI search engine.
	Text string `json:"text" yaml:"text"`
}

// Response is the answer returned by the language model for one prompt.
type Response struct {
	Prompt   Prompt `json:"prompt" yaml:"prompt"`
	Response string `json:"response" yaml:"response"`
}

// MessageRole identifies who produced a conversation message.
type MessageRole string

const (
	RoleSystem MessageRole = "system"
	RoleHuman  MessageRole = "human"
	RoleAI     MessageRole = "ai"
)

// Message is one record of a conversation, either sent to a Generator or
// appended to the run's audit log.
type Message struct {
	Role    MessageRole `json:"role" yaml:"role"`
	Content string      `json:"content" yaml:"content"`
}

// Snippet is a single ranked web search result.
type Snippet struct {
	Title   string  `json:"title" yaml:"title"`
	URL     string  `json:"url" yaml:"url"`
	Content string  `json:"content" yaml:"content"`
	Score   float64 `json:"score" yaml:"score"`

	// Source identifies which search backend returned the snippet.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// Feedback is a human reviewer's input recorded at an interrupt node.
type Feedback struct {
	// Node is the interrupt node the feedback answers.
	Node string `json:"node" yaml:"node"`

	// Text is the reviewer's free-form guidance. It may be empty to approve
	// without comment.
	Text string `json:"text" yaml:"text"`

	SubmittedAt time.Time `json:"submitted_at" yaml:"submitted_at"`
}

// BranchFailure records a fan-out branch that failed when the scheduler merges
// partial results instead of failing the whole fan-out.
type BranchFailure struct {
	Node   string `json:"node" yaml:"node"`
	Worker string `json:"worker" yaml:"worker"`
	Index  int    `json:"index" yaml:"index"`
	Error  string `json:"error" yaml:"error"`
}
