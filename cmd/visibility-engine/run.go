// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/visibility-engine/internal/pipeline"
	"github.com/pdiddy/visibility-engine/internal/report"
	"github.com/pdiddy/visibility-engine/internal/state"
	"github.com/pdiddy/visibility-engine/internal/workflow"
	"github.com/pdiddy/visibility-engine/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Assess a brand's visibility in AI answer engines",
	Long: `Run executes the full brand-visibility pipeline for one brand: web research,
description synthesis, competitor discovery, perspective generation, prompt
generation per perspective, prompt execution, and mention counting.

With --review the run pauses after perspectives and again after prompts are
generated; submit guidance with "feedback" and continue with "resume".
Interrupting the command (Ctrl-C) checkpoints the run as cancelled.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	company, _ := f.GetString("company")
	website, _ := f.GetString("website")
	region, _ := f.GetString("region")
	language, _ := f.GetString("language")
	runID, _ := f.GetString("run-id")
	perspectives, _ := f.GetInt("perspectives")
	prompts, _ := f.GetInt("prompts")
	responses, _ := f.GetInt("responses")
	review, _ := f.GetBool("review")
	format, _ := f.GetString("format")

	svc, _, err := openService(true)
	if err != nil {
		return err
	}
	defer svc.Store().Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	res, err := svc.Start(ctx, pipeline.StartRequest{
		RunID: runID,
		Brand: types.BrandInfo{
			CompanyName: company,
			Website:     website,
			Region:      region,
			Language:    language,
		},
		Tunables: state.Tunables{
			NumberOfPerspectives: perspectives,
			NumberOfPrompts:      prompts,
			NumberOfResponses:    responses,
		},
	}, pipeline.Options{Review: review})
	return finish(res, err, format)
}

// finish prints the outcome of a Start or Resume call.
func finish(res workflow.Result, runErr error, format string) error {
	if res.RunID == "" {
		return runErr
	}
	if res.State != nil {
		if err := report.Write(os.Stdout, report.FromState(string(res.Status), res.Cursor, res.State), format); err != nil {
			return err
		}
	}
	if res.Status == workflow.StatusInterrupted {
		fmt.Fprintf(os.Stderr, "run %s is waiting for review at %s\n", res.RunID, res.Cursor)
		fmt.Fprintf(os.Stderr, "  visibility-engine feedback %s --text \"...\"\n", res.RunID)
		fmt.Fprintf(os.Stderr, "  visibility-engine resume %s --review\n", res.RunID)
	}
	if runErr != nil {
		return fmt.Errorf("run %s %s: %w", res.RunID, res.Status, runErr)
	}
	return nil
}

func init() {
	f := runCmd.Flags()
	f.String("company", "", "brand name (required)")
	f.String("website", "", "brand website, e.g. acme.com (required)")
	f.String("region", "", "region of interest (default United States)")
	f.String("language", "", "primary language of searchers (default English)")
	f.String("run-id", "", "run identifier (default: generated UUID)")
	f.Int("perspectives", 0, "number of perspectives (default from config, 5)")
	f.Int("prompts", 0, "number of prompts per perspective (default from config, 5)")
	f.Int("responses", 0, "number of responses per prompt (default from config, 1)")
	f.Bool("review", false, "pause for human review after perspectives and after prompts")
	f.String("format", report.FormatTable, "output format: table, markdown, json, yaml")
	f.Int("max-parallel", 0, "maximum concurrent branches per fan-out (default from config, 8)")
	f.String("failure-policy", "", "fan-out failure policy: fail_fast or partial_merge")
	runCmd.MarkFlagRequired("company")
	runCmd.MarkFlagRequired("website")

	bindSchedulerFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

// bindSchedulerFlags binds a command's scheduler flags to their config keys.
// Viper keeps one binding per key, so it happens when the command runs.
func bindSchedulerFlags(cmd *cobra.Command) {
	prev := cmd.PreRunE
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if f := cmd.Flags().Lookup("max-parallel"); f != nil && f.Changed {
			viper.Set("scheduler.max_parallel", f.Value.String())
		}
		if f := cmd.Flags().Lookup("failure-policy"); f != nil && f.Changed {
			viper.Set("scheduler.failure_policy", f.Value.String())
		}
		if prev != nil {
			return prev(cmd, args)
		}
		return nil
	}
}
