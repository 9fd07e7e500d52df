package stages

import (
	"errors"

	"github.com/pdiddy/visibility-engine/pkg/types"
)

// Payload kinds.
const (
	KindPerspectivePrompt = "perspective_prompt"
	KindPromptExecution   = "prompt_execution"
)

var (
	errMissingPerspective = errors.New("perspective intent is required")
	errMissingCount       = errors.New("number of prompts must be positive")
	errMissingPrompt      = errors.New("prompt text is required")
)

// PerspectivePromptPayload is the input of one prompt-generation branch.
type PerspectivePromptPayload struct {
	Perspective      types.Perspective
	BrandDescription string
	NumberOfPrompts  int
	Region           string
	Language         string

	// Feedback is reviewer guidance recorded before the fan-out, if any.
	Feedback string
}

func (PerspectivePromptPayload) Kind() string { return KindPerspectivePrompt }

// Validate requires a perspective with an intent and a positive prompt count.
func (p PerspectivePromptPayload) Validate() error {
	if p.Perspective.Intent == "" {
		return errMissingPerspective
	}
	if p.NumberOfPrompts <= 0 {
		return errMissingCount
	}
	return nil
}

// PromptExecutionPayload is the input of one prompt-execution branch.
type PromptExecutionPayload struct {
	Prompt types.Prompt
}

func (PromptExecutionPayload) Kind() string { return KindPromptExecution }

// Validate requires non-empty prompt text.
func (p PromptExecutionPayload) Validate() error {
	if p.Prompt.Text == "" {
		return errMissingPrompt
	}
	return nil
}
