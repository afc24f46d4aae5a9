// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/spf13/cobra"

	"github.com/jllopis/allot/pkg/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the allot tools over MCP on stdio",
		Long: `Serve solve_assignment, reassign_agent and respace_rows as Model Context
Protocol tools on stdin/stdout. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := a.watchReference(cmd.Context(), rt.source); err != nil {
				return err
			}
			return mcp.NewServer(rt.svc, "allot", version).ServeStdio()
		},
	}
}
