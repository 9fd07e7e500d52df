// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/visibility-engine/internal/httputil"
	"github.com/pdiddy/visibility-engine/internal/ports"
	"github.com/pdiddy/visibility-engine/pkg/types"
)

// anthropicAPIURL is the Claude Messages endpoint. Package-level var for test substitution.
var anthropicAPIURL = "https://api.anthropic.com/v1/messages"

const anthropicVersion = "2023-06-01"

// Anthropic calls the Claude Messages API.
type Anthropic struct {
	Config types.AIConfig
	Client *http.Client
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Complete sends messages to Claude and returns the concatenated text blocks.
func (a *Anthropic) Complete(ctx context.Context, messages []types.Message) (string, error) {
	system, conv := splitSystem(messages)
	reqBody := anthropicRequest{
		Model:       a.Config.Model,
		MaxTokens:   orDefault(a.Config.MaxTokens, 4096),
		System:      system,
		Temperature: a.Config.Temperature,
	}
	for _, m := range conv {
		role := "user"
		if m.Role == types.RoleAI {
			role = "assistant"
		}
		reqBody.Messages = append(reqBody.Messages, anthropicMessage{Role: role, Content: m.Content})
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.Config.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	if a.Config.UserAgent != "" {
		req.Header.Set("User-Agent", a.Config.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, a.Client, req, a.Config.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &apiError{provider: "Claude", status: resp.StatusCode, body: string(body)}
	}

	var cResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("decoding Claude response: %w", err)
	}

	var b strings.Builder
	for _, block := range cResp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no text content in Claude API response")
	}
	return b.String(), nil
}

// Structured asks Claude for a JSON object conforming to schema.
func (a *Anthropic) Structured(ctx context.Context, messages []types.Message, schema ports.Schema, out any) error {
	msgs, err := withSchema(messages, schema)
	if err != nil {
		return err
	}
	text, err := a.Complete(ctx, msgs)
	if err != nil {
		return err
	}
	return decodeJSON(text, schema, out)
}
