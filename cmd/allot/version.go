// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			goVersion := "unknown"
			if info, ok := debug.ReadBuildInfo(); ok {
				goVersion = info.GoVersion
			}
			if a.flags.JSON {
				return printJSON(a.stdout, map[string]string{"version": version, "go": goVersion})
			}
			_, err := fmt.Fprintf(a.stdout, "allot version %s (%s)\n", version, goVersion)
			return err
		},
	}
}
