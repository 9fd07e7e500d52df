package types

import "time"

// HTTPConfig holds shared HTTP settings used by adapters that make network requests.
type HTTPConfig struct {
	// Timeout is the per-call timeout applied at the capability port boundary.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "visibility-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// AIProvider selects the Generator backend.
type AIProvider string

const (
	ProviderAnthropic AIProvider = "anthropic"
	ProviderOpenAI    AIProvider = "openai"
)

// AIConfig holds settings for the structured generation port.
type AIConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Provider selects the backend: anthropic or openai.
	Provider AIProvider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929", "gpt-4o").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// MaxTokens caps the length of each completion (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Temperature is the sampling temperature (default 0).
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
}

// SearchConfig holds settings for the web search port.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Backends lists the enabled search backends in order: tavily, brave.
	Backends []string `json:"backends" yaml:"backends" mapstructure:"backends"`

	// MaxResults is the maximum number of snippets returned per query (default 5).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// TavilyAPIKey authenticates against the Tavily search API.
	TavilyAPIKey string `json:"tavily_api_key,omitempty" yaml:"tavily_api_key,omitempty" mapstructure:"tavily_api_key"`

	// BraveAPIKey authenticates against the Brave web search API.
	BraveAPIKey string `json:"brave_api_key,omitempty" yaml:"brave_api_key,omitempty" mapstructure:"brave_api_key"`
}

// FailurePolicy selects how a fan-out reacts to a failed branch.
type FailurePolicy string

const (
	// FailFast cancels the remaining branches and fails the fan-out node
	// without merging anything.
	FailFast FailurePolicy = "fail_fast"

	// PartialMerge waits for every branch, merges the successful ones in
	// invocation order and records the failures.
	PartialMerge FailurePolicy = "partial_merge"
)

// PerspectivePolicy selects how a perspective count mismatch is handled.
type PerspectivePolicy string

const (
	// PerspectivesTarget accepts whatever count the model returns and logs a warning.
	PerspectivesTarget PerspectivePolicy = "target"

	// PerspectivesTruncate drops extras and accepts short results with a warning.
	PerspectivesTruncate PerspectivePolicy = "truncate"

	// PerspectivesStrict rejects any count other than the requested one.
	PerspectivesStrict PerspectivePolicy = "strict"
)

// SchedulerConfig holds settings for the fan-out scheduler.
type SchedulerConfig struct {
	// MaxParallel bounds concurrently running branches per fan-out (default 8).
	MaxParallel int `json:"max_parallel" yaml:"max_parallel" mapstructure:"max_parallel"`

	// FailurePolicy is fail_fast (default) or partial_merge.
	FailurePolicy FailurePolicy `json:"failure_policy" yaml:"failure_policy" mapstructure:"failure_policy"`

	// PerspectivePolicy is target (default), truncate or strict.
	PerspectivePolicy PerspectivePolicy `json:"perspective_policy" yaml:"perspective_policy" mapstructure:"perspective_policy"`
}

// CheckpointConfig holds settings for the checkpoint store.
type CheckpointConfig struct {
	// Path is the SQLite database file (default ".visibility/checkpoints.db").
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// RunDefaults holds the tunables applied when a run does not override them.
type RunDefaults struct {
	NumberOfPerspectives int    `json:"number_of_perspectives" yaml:"number_of_perspectives" mapstructure:"number_of_perspectives"`
	NumberOfPrompts      int    `json:"number_of_prompts" yaml:"number_of_prompts" mapstructure:"number_of_prompts"`
	NumberOfResponses    int    `json:"number_of_responses" yaml:"number_of_responses" mapstructure:"number_of_responses"`
	Region               string `json:"region" yaml:"region" mapstructure:"region"`
	Language             string `json:"language" yaml:"language" mapstructure:"language"`
}

// PipelineConfig groups all configuration for the pipeline.
type PipelineConfig struct {
	AI         AIConfig         `json:"ai" yaml:"ai" mapstructure:"ai"`
	Search     SearchConfig     `json:"search" yaml:"search" mapstructure:"search"`
	Scheduler  SchedulerConfig  `json:"scheduler" yaml:"scheduler" mapstructure:"scheduler"`
	Checkpoint CheckpointConfig `json:"checkpoint" yaml:"checkpoint" mapstructure:"checkpoint"`
	Defaults   RunDefaults      `json:"defaults" yaml:"defaults" mapstructure:"defaults"`
}

// DefaultPipelineConfig returns the configuration used when no file or
// environment overrides are present.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		AI: AIConfig{
			HTTPConfig:  HTTPConfig{Timeout: 120 * time.Second, UserAgent: "visibility-engine/0.1"},
			Provider:    ProviderAnthropic,
			Model:       "claude-sonnet-4-5-20250929",
			MaxRetries:  3,
			MaxTokens:   4096,
			Temperature: 0,
		},
		Search: SearchConfig{
			HTTPConfig: HTTPConfig{Timeout: 30 * time.Second, UserAgent: "visibility-engine/0.1"},
			Backends:   []string{"tavily"},
			MaxResults: 5,
		},
		Scheduler: SchedulerConfig{
			MaxParallel:       8,
			FailurePolicy:     FailFast,
			PerspectivePolicy: PerspectivesTarget,
		},
		Checkpoint: CheckpointConfig{
			Path: ".visibility/checkpoints.db",
		},
		Defaults: RunDefaults{
			NumberOfPerspectives: 5,
			NumberOfPrompts:      5,
			NumberOfResponses:    1,
			Language:             "English",
		},
	}
}
