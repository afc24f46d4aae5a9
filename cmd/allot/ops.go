// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jllopis/allot/pkg/errors"
	"github.com/jllopis/allot/pkg/matrix"
	"github.com/jllopis/allot/pkg/service"
)

func newSolveCmd(a *app) *cobra.Command {
	var req service.SolveRequest
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Compute an optimal assignment",
		Example: `  allot solve --reference workout.csv --demand 1,1,0,0,0,1,0,0,0 --max-agents 2
  allot solve --demand 1,1 --max-agents 2 --capacity 1,1,2 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			resp, err := rt.svc.Solve(cmd.Context(), req)
			if err != nil {
				return err
			}
			if a.flags.JSON {
				return printJSON(a.stdout, resp)
			}
			tbl, err := rt.svc.Table(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s %s  objective %g\n", color.GreenString("✓"), resp.Status, resp.Objective)
			if resp.SessionID != "" {
				fmt.Fprintf(a.stdout, "  session %s\n", resp.SessionID)
			}
			return printAssignment(a.stdout, resp.Assignment, tbl.Agents(), tbl.Roles())
		},
	}
	cmd.Flags().IntSliceVar(&req.RoleDemand, "demand", nil, "Agents required per role, in table order")
	cmd.Flags().IntVar(&req.MaxAgents, "max-agents", 0, "Maximum distinct agents (and minimum pairs)")
	cmd.Flags().IntSliceVar(&req.Capacity, "capacity", nil, "Per-agent capacity overriding the table")
	_ = cmd.MarkFlagRequired("demand")
	_ = cmd.MarkFlagRequired("max-agents")
	return cmd
}

func newReassignCmd(a *app) *cobra.Command {
	var (
		matrixPath string
		req        service.ReassignRequest
	)
	cmd := &cobra.Command{
		Use:   "reassign",
		Short: "Hand an agent's roles to the most similar idle agent",
		Example: `  allot reassign --agent squat --matrix assignment.json
  allot solve ... --json | jq .assignment_matrix | allot reassign --agent squat --matrix -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if matrixPath != "" {
				var m matrix.Assignment
				if err := readJSON(cmd.InOrStdin(), matrixPath, &m); err != nil {
					return err
				}
				req.Assignment = &m
			}
			rt, err := a.newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			resp, err := rt.svc.Reassign(cmd.Context(), req)
			if err != nil {
				return err
			}
			if a.flags.JSON {
				return printJSON(a.stdout, resp)
			}
			tbl, err := rt.svc.Table(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s %s -> %s  similarity %.4f  roles %s\n", color.GreenString("✓"),
				req.AgentName, resp.ReplacementName, resp.Similarity, strings.Join(resp.Roles, ", "))
			return printAssignment(a.stdout, resp.Assignment, tbl.Agents(), tbl.Roles())
		},
	}
	cmd.Flags().StringVar(&req.AgentName, "agent", "", "Agent to relieve")
	cmd.Flags().StringVar(&matrixPath, "matrix", "", "JSON assignment matrix file ('-' for stdin)")
	cmd.Flags().StringVar(&req.SessionID, "session", "", "Session id from a previous solve (sqlite sessions)")
	_ = cmd.MarkFlagRequired("agent")
	cmd.MarkFlagsMutuallyExclusive("matrix", "session")
	return cmd
}

func newRespaceCmd(a *app) *cobra.Command {
	var inputPath string
	cmd := &cobra.Command{
		Use:   "respace",
		Short: "Reorder rows to minimize overlap between neighbours",
		Long: `Read {"rows": [[0/1...]...], "original_indices": [...]} and print the rows
reordered so that consecutive rows share as few set cells as possible.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req service.RespaceRequest
			if err := readJSON(cmd.InOrStdin(), inputPath, &req); err != nil {
				return err
			}
			rt, err := a.newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			resp, err := rt.svc.Respace(cmd.Context(), req)
			if err != nil {
				return err
			}
			if a.flags.JSON {
				return printJSON(a.stdout, resp)
			}
			w := tabwriter.NewWriter(a.stdout, 0, 2, 2, ' ', 0)
			for k, idx := range resp.Indices {
				fmt.Fprintf(w, "%d\t%s\n", idx, rowString(resp.Rows.Row(k)))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&inputPath, "input", "-", "JSON request file ('-' for stdin)")
	return cmd
}

func readJSON(stdin io.Reader, path string, dst any) error {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return NewInvalidArgumentError(path, err.Error())
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(dst); err != nil {
		if errors.Is(err, errors.CodeInvalidInput) {
			return err
		}
		return errors.New(errors.CodeInvalidInput, "cannot decode JSON input", err).WithContext("path", path)
	}
	return nil
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func printAssignment(w io.Writer, a *matrix.Assignment, agents, roles []string) error {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	for i, name := range agents {
		cols := a.ActiveColumns(i)
		if len(cols) == 0 {
			continue
		}
		held := make([]string, 0, len(cols))
		for _, j := range cols {
			held = append(held, roles[j])
		}
		fmt.Fprintf(tw, "  %s\t%s\n", color.CyanString(name), strings.Join(held, ", "))
	}
	return tw.Flush()
}

func rowString(row []bool) string {
	var b strings.Builder
	for _, v := range row {
		if v {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}
