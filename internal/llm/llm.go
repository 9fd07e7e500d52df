// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm implements ports.Generator over hosted language model APIs.
// Structured output is requested by describing the schema in the system
// prompt and decoding the reply as JSON.
package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"

	"github.com/pdiddy/visibility-engine/internal/ports"
	"github.com/pdiddy/visibility-engine/pkg/types"
)

// New returns the Generator selected by cfg.Provider.
func New(cfg types.AIConfig, client *http.Client) (ports.Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is not set", cfg.Provider)
	}
	switch cfg.Provider {
	case types.ProviderAnthropic, "":
		return &Anthropic{Config: cfg, Client: client}, nil
	case types.ProviderOpenAI:
		return &OpenAI{Config: cfg, Client: client}, nil
	}
	return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
}

// structuredTmpl is appended to the system prompt of structured calls.
var structuredTmpl = template.Must(template.New("structured").Parse(`Respond with a single JSON object named {{.Name}}. {{.Description}}
Do not include any text outside the JSON object.

Example response:
{{.Example}}
`))

// withSchema returns messages with the schema instructions merged into the
// leading system message, adding one when there is none.
func withSchema(messages []types.Message, schema ports.Schema) ([]types.Message, error) {
	var buf bytes.Buffer
	if err := structuredTmpl.Execute(&buf, schema); err != nil {
		return nil, fmt.Errorf("rendering schema instructions: %w", err)
	}
	instructions := buf.String()

	out := make([]types.Message, 0, len(messages)+1)
	if len(messages) > 0 && messages[0].Role == types.RoleSystem {
		out = append(out, types.Message{
			Role:    types.RoleSystem,
			Content: messages[0].Content + "\n\n" + instructions,
		})
		return append(out, messages[1:]...), nil
	}
	out = append(out, types.Message{Role: types.RoleSystem, Content: instructions})
	return append(out, messages...), nil
}

// decodeJSON strips a Markdown code fence around text, if any, and decodes
// the object into out.
func decodeJSON(text string, schema ports.Schema, out any) error {
	text = stripFences(text)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("parsing %s JSON: %w", schema.Name, err)
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// splitSystem separates system messages from the conversation.
func splitSystem(messages []types.Message) (string, []types.Message) {
	var system []string
	var rest []types.Message
	for _, m := range messages {
		if m.Role == types.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

// apiError reports a non-200 reply from a model API.
type apiError struct {
	provider string
	status   int
	body     string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s API returned %d: %s", e.provider, e.status, e.body)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
