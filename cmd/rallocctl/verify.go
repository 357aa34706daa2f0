package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/ralloc/heap/verify"
)

var verifyStopFirst bool

func init() {
	rootCmd.AddCommand(newVerifyCmd())
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <heap>",
		Short: "Check the structural invariants of a heap file",
		Long: `The verify command reads a heap file and checks its header, layout
checksum, descriptors, free chains, lists and roots. The file is not modified.
A heap that was not closed cleanly is reported; its lists may be stale until
recovery runs.

Example:
  rallocctl verify app.heap
  rallocctl verify app.heap --first`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(args)
		},
	}
	cmd.Flags().BoolVar(&verifyStopFirst, "first", false, "Stop at the first failed check")
	return cmd
}

func runVerify(args []string) error {
	path := args[0]
	printVerbose("Reading heap: %s\n", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read heap: %w", err)
	}

	var verr error
	if verifyStopFirst {
		verr = verify.AllInvariants(data)
	} else {
		verr = verify.All(data)
	}
	dirty := verify.SequenceNumbers(data) != nil
	log.Info("rallocctl: verify", "path", path, "dirty", dirty, "ok", verr == nil)

	if jsonOut {
		out := map[string]any{"path": path, "valid": verr == nil, "dirty": dirty}
		if verr != nil {
			out["errors"] = failures(verr)
		}
		if err := printJSON(out); err != nil {
			return err
		}
	} else {
		if dirty {
			printInfo("warning: %s was not closed cleanly; lists are rebuilt on next open\n", path)
		}
		if verr == nil {
			printInfo("%s: OK\n", path)
		} else {
			for _, msg := range failures(verr) {
				printInfo("  %s\n", msg)
			}
		}
	}
	if verr != nil {
		return fmt.Errorf("%s failed verification", path)
	}
	return nil
}

// failures flattens a joined verification error into one message per check.
func failures(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
