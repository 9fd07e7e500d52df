// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/viper"

	"github.com/pdiddy/visibility-engine/internal/checkpoint"
	"github.com/pdiddy/visibility-engine/internal/llm"
	"github.com/pdiddy/visibility-engine/internal/pipeline"
	"github.com/pdiddy/visibility-engine/internal/ports"
	"github.com/pdiddy/visibility-engine/internal/secrets"
	"github.com/pdiddy/visibility-engine/internal/websearch"
	"github.com/pdiddy/visibility-engine/pkg/types"
)

// loadConfig overlays the config file, environment and flags on the defaults
// and fills API keys from the loaded secrets.
func loadConfig() (types.PipelineConfig, error) {
	defaults := types.DefaultPipelineConfig()
	cfg := defaults
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	// Unset flags bind as empty strings.
	if cfg.Checkpoint.Path == "" {
		cfg.Checkpoint.Path = defaults.Checkpoint.Path
	}

	if cfg.AI.APIKey == "" {
		key := secrets.AnthropicAPIKey
		if cfg.AI.Provider == types.ProviderOpenAI {
			key = secrets.OpenAIAPIKey
		}
		cfg.AI.APIKey = secrets.Lookup(loadedSecrets, key)
	}
	if cfg.Search.TavilyAPIKey == "" {
		cfg.Search.TavilyAPIKey = secrets.Lookup(loadedSecrets, secrets.TavilyAPIKey)
	}
	if cfg.Search.BraveAPIKey == "" {
		cfg.Search.BraveAPIKey = secrets.Lookup(loadedSecrets, secrets.BraveAPIKey)
	}
	return cfg, nil
}

// openService opens the checkpoint store and builds the pipeline service.
// With online unset the model and search ports are left unconfigured, which
// is enough for operations that only touch the store.
func openService(online bool) (*pipeline.Service, types.PipelineConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, err
	}

	var (
		gen    ports.Generator = offline{}
		search ports.Searcher  = offline{}
	)
	if online {
		client := &http.Client{}
		if gen, err = llm.New(cfg.AI, client); err != nil {
			return nil, cfg, err
		}
		if search, err = websearch.New(cfg.Search, client); err != nil {
			return nil, cfg, err
		}
	}

	store, err := checkpoint.OpenSQLite(cfg.Checkpoint.Path)
	if err != nil {
		return nil, cfg, err
	}
	svc, err := pipeline.New(cfg, gen, search, store)
	if err != nil {
		store.Close()
		return nil, cfg, err
	}
	return svc, cfg, nil
}

var errOffline = errors.New("model and search are not configured for this command")

// offline stands in for the ports in commands that never call them.
type offline struct{}

func (offline) Complete(context.Context, []types.Message) (string, error) {
	return "", errOffline
}

func (offline) Structured(context.Context, []types.Message, ports.Schema, any) error {
	return errOffline
}

func (offline) Search(context.Context, string) ([]types.Snippet, error) {
	return nil, errOffline
}
