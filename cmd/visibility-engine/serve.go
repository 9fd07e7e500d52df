// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/visibility-engine/internal/mcpserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Serve exposes the pipeline as MCP tools over stdin/stdout: start_run,
resume_run, submit_feedback, cancel_run, get_run and list_runs. Runs share the
checkpoint store with the CLI, so a run started over MCP can be inspected or
cancelled from the command line.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := openService(true)
		if err != nil {
			return err
		}
		defer svc.Store().Close()

		srv := mcpserver.NewServer(svc, version)
		defer srv.Shutdown()
		return srv.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
