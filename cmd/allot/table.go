// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jllopis/allot/pkg/errors"
	"github.com/jllopis/allot/pkg/reference"
)

type tableSummary struct {
	Agents   []string `json:"agents"`
	Roles    []string `json:"roles"`
	Capacity []int    `json:"agent_capacity"`
}

func newTableCmd(a *app) *cobra.Command {
	var export, output string
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Show or convert the reference table",
		Example: `  allot table --reference workout.csv
  allot table --reference workout.csv --export yaml --output workout.yaml
  allot table --reference workout.yaml --export sqlite --output workout.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			tbl, err := rt.svc.Table(cmd.Context())
			if err != nil {
				return err
			}
			if export != "" {
				return exportTable(cmd.Context(), a.stdout, tbl, reference.Format(export), output)
			}
			summary := tableSummary{Agents: tbl.Agents(), Roles: tbl.Roles(), Capacity: tbl.Capacity()}
			if a.flags.JSON {
				return printJSON(a.stdout, summary)
			}
			fmt.Fprintf(a.stdout, "%d agents, %d roles\n", len(summary.Agents), len(summary.Roles))
			fmt.Fprintf(a.stdout, "roles: %s\n", strings.Join(summary.Roles, ", "))
			w := tabwriter.NewWriter(a.stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "AGENT\tCAPACITY\tROLES")
			for i, name := range summary.Agents {
				var strong []string
				for j, v := range tbl.Quality().Row(i) {
					if v > 0 {
						strong = append(strong, summary.Roles[j])
					}
				}
				fmt.Fprintf(w, "%s\t%d\t%s\n", name, summary.Capacity[i], strings.Join(strong, ", "))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&export, "export", "", "Write the table as csv, yaml, toml or sqlite")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Export destination (stdout when empty; required for sqlite)")
	return cmd
}

func exportTable(ctx context.Context, stdout io.Writer, t *reference.Table, format reference.Format, output string) error {
	if format == reference.FormatSQLite {
		if output == "" {
			return NewInvalidArgumentError("output", "sqlite export needs --output")
		}
		db, err := sql.Open("sqlite", output)
		if err != nil {
			return errors.New(errors.CodeDataUnavailable, "cannot open sqlite database", err).
				WithContext("path", output)
		}
		defer db.Close()
		if err := reference.StoreSQLite(ctx, db, t); err != nil {
			return errors.New(errors.CodeInternal, "cannot store reference table", err).
				WithContext("path", output)
		}
		return nil
	}

	var data []byte
	switch format {
	case reference.FormatCSV:
		var buf bytes.Buffer
		if err := reference.WriteCSV(&buf, t); err != nil {
			return err
		}
		data = buf.Bytes()
	case reference.FormatYAML:
		b, err := reference.MarshalYAML(t)
		if err != nil {
			return err
		}
		data = b
	case reference.FormatTOML:
		b, err := reference.MarshalTOML(t)
		if err != nil {
			return err
		}
		data = b
	default:
		return NewInvalidArgumentError("export", fmt.Sprintf("unknown format %q", format))
	}

	if output == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return errors.New(errors.CodeInternal, "cannot write export", err).WithContext("path", output)
	}
	return nil
}
