package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/ralloc/pkg/ralloc"
)

func init() {
	rootCmd.AddCommand(newStatsCmd())
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <heap>",
		Short: "Report heap usage per size class",
		Long: `The stats command opens a heap file (recovering it if needed), scans
its descriptor table and reports live, free and slack capacity.

Example:
  rallocctl stats app.heap
  rallocctl stats app.heap --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(args)
		},
	}
}

func runStats(args []string) error {
	path := args[0]
	info, err := loadHeaderInfo(path)
	if err != nil {
		return fmt.Errorf("failed to read heap: %w", err)
	}
	h := ralloc.New(&ralloc.Options{Logger: heapLogger()})
	if _, err := h.Init(path, int64(info.Size)); err != nil {
		return fmt.Errorf("failed to open heap: %w", err)
	}
	st, err := h.Stats()
	if cerr := h.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(st.Stats)
	}
	printInfo("%s\n", st)
	return nil
}
