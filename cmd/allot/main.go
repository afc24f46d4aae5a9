// SPDX-License-Identifier: Apache-2.0

// Package main implements the allot command line: a server for the HTTP,
// gRPC and MCP boundaries plus one-shot solve, reassign and respace commands.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jllopis/allot/pkg/config"
	"github.com/jllopis/allot/pkg/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type globalFlags struct {
	ConfigPath string
	Profile    string
	Sets       []string
	Reference  string
	JSON       bool
}

// app carries what every command needs once flags are parsed.
type app struct {
	flags  globalFlags
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func (a *app) configArgs() []string {
	var args []string
	if a.flags.ConfigPath != "" {
		args = append(args, "--config", a.flags.ConfigPath)
	}
	if a.flags.Profile != "" {
		args = append(args, "--profile", a.flags.Profile)
	}
	for _, kv := range a.flags.Sets {
		args = append(args, "--set", kv)
	}
	if a.flags.Reference != "" {
		args = append(args, "--set", "reference.path="+a.flags.Reference)
	}
	return args
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "allot",
		Short: "Assign agents to roles from a quality table",
		Long: `allot computes optimal agent-to-role assignments from a reference quality
table, hands an agent's roles to the most similar idle agent, and reorders
binary rows so that neighbours overlap as little as possible.

Run "allot serve" for the HTTP and gRPC servers, "allot mcp" for the MCP
tools on stdio, or the solve, reassign and respace commands for one-shot use.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithCLI(a.configArgs())
			if err != nil {
				return NewConfigError(err, a.flags.ConfigPath)
			}
			a.cfg = cfg
			a.logger = telemetry.ConfigureSlog(a.stderr, cfg.Log.Level, cfg.Log.Format)
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.ConfigPath, "config", "", "Path to a YAML config file")
	pf.StringVar(&a.flags.Profile, "profile", "", "Config profile overlay (config.<profile>.yaml)")
	pf.StringArrayVar(&a.flags.Sets, "set", nil, "Override a config key (key=value, repeatable)")
	pf.StringVar(&a.flags.Reference, "reference", "", "Reference table path (shortcut for --set reference.path=...)")
	pf.BoolVar(&a.flags.JSON, "json", false, "Print machine-readable JSON")

	root.AddCommand(
		newServeCmd(a),
		newMCPCmd(a),
		newSolveCmd(a),
		newReassignCmd(a),
		newRespaceCmd(a),
		newTableCmd(a),
		newVersionCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		jsonOut, _ := root.PersistentFlags().GetBool("json")
		printError(os.Stderr, err, jsonOut)
		os.Exit(1)
	}
}
