// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pdiddy/visibility-engine/internal/httputil"
	"github.com/pdiddy/visibility-engine/internal/ports"
	"github.com/pdiddy/visibility-engine/pkg/types"
)

// openaiAPIURL is the Chat Completions endpoint. Package-level var for test substitution.
var openaiAPIURL = "https://api.openai.com/v1/chat/completions"

// OpenAI calls the OpenAI Chat Completions API.
type OpenAI struct {
	Config types.AIConfig
	Client *http.Client
}

type openaiRequest struct {
	Model          string          `json:"model"`
	Messages       []openaiMessage `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openaiResponse struct {
	Choices []struct {
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends messages to the chat model and returns the first choice.
func (o *OpenAI) Complete(ctx context.Context, messages []types.Message) (string, error) {
	return o.chat(ctx, messages, nil)
}

// Structured asks the chat model for a JSON object conforming to schema.
// JSON mode is enabled on the request.
func (o *OpenAI) Structured(ctx context.Context, messages []types.Message, schema ports.Schema, out any) error {
	msgs, err := withSchema(messages, schema)
	if err != nil {
		return err
	}
	text, err := o.chat(ctx, msgs, &responseFormat{Type: "json_object"})
	if err != nil {
		return err
	}
	return decodeJSON(text, schema, out)
}

func (o *OpenAI) chat(ctx context.Context, messages []types.Message, format *responseFormat) (string, error) {
	reqBody := openaiRequest{
		Model:          o.Config.Model,
		MaxTokens:      o.Config.MaxTokens,
		Temperature:    o.Config.Temperature,
		ResponseFormat: format,
	}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, openaiMessage{Role: openaiRole(m.Role), Content: m.Content})
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openaiAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.Config.APIKey)
	if o.Config.UserAgent != "" {
		req.Header.Set("User-Agent", o.Config.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, o.Client, req, o.Config.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("calling OpenAI API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &apiError{provider: "OpenAI", status: resp.StatusCode, body: string(body)}
	}

	var oResp openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return "", fmt.Errorf("decoding OpenAI response: %w", err)
	}
	if len(oResp.Choices) == 0 || oResp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("OpenAI API returned empty content")
	}
	return oResp.Choices[0].Message.Content, nil
}

func openaiRole(r types.MessageRole) string {
	switch r {
	case types.RoleSystem:
		return "system"
	case types.RoleAI:
		return "assistant"
	}
	return "user"
}
