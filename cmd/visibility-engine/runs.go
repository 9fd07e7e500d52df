// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/pdiddy/visibility-engine/internal/checkpoint"
	"github.com/pdiddy/visibility-engine/internal/pipeline"
	"github.com/pdiddy/visibility-engine/internal/report"
)

// --- resume ---

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a run from its latest checkpoint",
	Long: `Resume continues an interrupted, failed or cancelled run from the node after
its last completed one. Completed stages are not re-executed. A completed run
prints its result without doing any work.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		review, _ := cmd.Flags().GetBool("review")
		format, _ := cmd.Flags().GetString("format")

		svc, _, err := openService(true)
		if err != nil {
			return err
		}
		defer svc.Store().Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		res, err := svc.Resume(ctx, args[0], pipeline.Options{Review: review})
		return finish(res, err, format)
	},
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback <run-id>",
	Short: "Submit reviewer feedback for a run waiting at a review node",
	Long: `Feedback records guidance for a run paused at review_perspectives or
review_prompts. Feedback given on perspectives is passed to prompt generation.
An empty --text approves without comment. Continue the run with "resume".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")

		svc, _, err := openService(false)
		if err != nil {
			return err
		}
		defer svc.Store().Close()

		cp, err := svc.Feedback(cmd.Context(), args[0], text)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "feedback recorded for run %s at %s (checkpoint %d)\n", cp.RunID, cp.Cursor, cp.Seq)
		return nil
	},
}

// --- cancel ---

var cancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Cancel a run",
	Long: `Cancel marks a run cancelled in the checkpoint store. A process still
executing the run has its next checkpoint rejected and stops; no state it
computes after the cancel is persisted. Resume a cancelled run with "resume".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := openService(false)
		if err != nil {
			return err
		}
		defer svc.Store().Close()

		if err := svc.Cancel(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "run %s cancelled\n", args[0])
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "List runs or show one run",
	Long: `Status without arguments lists every run in the checkpoint store, most
recently updated first. With a run ID it shows the run's brand visibility from
its latest checkpoint; --history lists every checkpoint of the run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		history, _ := cmd.Flags().GetBool("history")

		svc, _, err := openService(false)
		if err != nil {
			return err
		}
		defer svc.Store().Close()
		ctx := cmd.Context()

		if len(args) == 0 {
			runs, err := svc.List(ctx)
			if err != nil {
				return err
			}
			return report.WriteRuns(os.Stdout, runs, format)
		}

		if history {
			h, err := svc.History(ctx, args[0])
			if err != nil {
				return err
			}
			summaries := make([]checkpoint.Summary, 0, len(h))
			for _, cp := range h {
				summaries = append(summaries, checkpoint.Summarize(cp))
			}
			return report.WriteRuns(os.Stdout, summaries, format)
		}

		cp, err := svc.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if err := report.Write(os.Stdout, report.FromCheckpoint(cp), format); err != nil {
			return err
		}
		if cp.Error != "" {
			fmt.Fprintf(os.Stderr, "error at %s: %s\n", cp.Cursor, cp.Error)
		}
		return nil
	},
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run's checkpoint as YAML or JSON",
	Long: `Export writes the full state of a run's latest checkpoint, or with --history
every checkpoint, to stdout or to --output.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		history, _ := cmd.Flags().GetBool("history")
		output, _ := cmd.Flags().GetString("output")

		svc, _, err := openService(false)
		if err != nil {
			return err
		}
		defer svc.Store().Close()

		w := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			defer f.Close()
			w = f
		}
		return checkpoint.Export(cmd.Context(), svc.Store(), args[0], format, history, w)
	},
}

func init() {
	resumeCmd.Flags().Bool("review", false, "pause at the review nodes for feedback")
	resumeCmd.Flags().String("format", report.FormatTable, "output format: table, markdown, json, yaml")
	resumeCmd.Flags().Int("max-parallel", 0, "maximum concurrent branches per fan-out")
	resumeCmd.Flags().String("failure-policy", "", "fan-out failure policy: fail_fast or partial_merge")
	bindSchedulerFlags(resumeCmd)

	feedbackCmd.Flags().String("text", "", "reviewer guidance (empty approves without comment)")

	statusCmd.Flags().String("format", report.FormatTable, "output format: table, markdown, json, yaml")
	statusCmd.Flags().Bool("history", false, "list every checkpoint of the run")

	exportCmd.Flags().String("format", checkpoint.FormatYAML, "export format: yaml or json")
	exportCmd.Flags().Bool("history", false, "export every checkpoint instead of the latest")
	exportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")

	rootCmd.AddCommand(resumeCmd, feedbackCmd, cancelCmd, statusCmd, exportCmd)
}
