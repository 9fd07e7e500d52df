// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the visibility-engine CLI.
// The CLI starts brand-visibility runs, pauses them for review, resumes them
// from checkpoints, and serves the same operations over MCP.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/visibility-engine/internal/logging"
	"github.com/pdiddy/visibility-engine/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from the secrets directory at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the visibility-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "visibility-engine",
	Short: "Measure how visible a brand is in AI answer engines",
	Long: `visibility-engine researches a brand, discovers its competitors, builds a
virtual focus group of searcher personas, generates the prompts those personas
would type into an AI answer engine, runs the prompts, and counts how often the
brand and each competitor are mentioned.

Every stage is checkpointed. Runs can pause for human review (--review),
resume after a failure or restart, and be cancelled from another process.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(viper.GetString("log.level"))
		if err != nil {
			return err
		}
		logging.Init(level, viper.GetString("log.format"), os.Stderr)
		if f := viper.ConfigFileUsed(); f != "" {
			slog.Debug("using config file", "path", f)
		}

		s, err := secrets.Load(viper.GetString("secrets_dir"))
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			slog.Debug("loaded secrets", "keys", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./visibility-engine.yaml or ~/.config/visibility-engine/visibility-engine.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("db", "", "checkpoint database path (default .visibility/checkpoints.db)")
	pf.String("secrets-dir", ".secrets", "directory of API key files")

	viper.BindPFlag("log.level", pf.Lookup("log-level"))
	viper.BindPFlag("log.format", pf.Lookup("log-format"))
	viper.BindPFlag("checkpoint.path", pf.Lookup("db"))
	viper.BindPFlag("secrets_dir", pf.Lookup("secrets-dir"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("visibility-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "visibility-engine"))
		}
	}

	viper.SetEnvPrefix("VISIBILITY_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fmt.Fprintln(os.Stderr, "error reading config:", err)
			os.Exit(1)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
