package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/joshuapare/ralloc/internal/format"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func init() {
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion()
		},
	}
}

func runVersion() error {
	if jsonOut {
		return printJSON(map[string]any{
			"version": version,
			"commit":  commit,
			"date":    date,
			"format":  fmt.Sprintf("%d.%d", format.MajorVersion, format.MinorVersion),
			"go":      runtime.Version(),
		})
	}
	fmt.Printf("rallocctl %s (commit %s, built %s)\n", version, commit, date)
	fmt.Printf("heap format %d.%d, %s\n", format.MajorVersion, format.MinorVersion, runtime.Version())
	return nil
}
