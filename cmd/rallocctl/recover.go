package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/ralloc/pkg/ralloc"
)

func init() {
	rootCmd.AddCommand(newRecoverCmd())
}

func newRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover <heap>",
		Short: "Run crash recovery on a heap file and mark it clean",
		Long: `The recover command opens a heap file, rebuilds its free and partial
lists if the previous session did not close cleanly, and closes it cleanly.
Descriptors that fail validation are quarantined and listed.

Example:
  rallocctl recover app.heap`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecover(args)
		},
	}
}

func runRecover(args []string) error {
	path := args[0]
	info, err := loadHeaderInfo(path)
	if err != nil {
		return fmt.Errorf("failed to read heap: %w", err)
	}

	h := ralloc.New(&ralloc.Options{Logger: heapLogger()})
	if _, err := h.Init(path, int64(info.Size)); err != nil {
		return fmt.Errorf("failed to open heap: %w", err)
	}
	rep, ran := h.RecoveryReport()
	if err := h.Close(); err != nil {
		return fmt.Errorf("failed to close heap: %w", err)
	}

	if jsonOut {
		out := map[string]any{"path": path, "recovered": ran}
		if ran {
			out["report"] = rep
		}
		return printJSON(out)
	}
	if !ran {
		printInfo("%s was closed cleanly; nothing to recover\n", path)
		return nil
	}
	printInfo("Recovered %s:\n", path)
	printInfo("  Scanned:      %s descriptors\n", count(rep.Scanned))
	printInfo("  Free list:    %s superblocks\n", count(rep.Free))
	printInfo("  Partial:      %s superblocks\n", count(rep.Partial))
	printInfo("  Full:         %s superblocks\n", count(rep.Full))
	printInfo("  Large:        %s allocations\n", count(rep.Large))
	printInfo("  Uncarved:     %s superblocks\n", count(rep.Uncarved))
	printInfo("  Quarantined:  %s descriptors\n", count(len(rep.Leaked)))
	for _, l := range rep.Leaked {
		printVerbose("    #%d: %s\n", l.Index, l.Reason)
	}
	return nil
}
