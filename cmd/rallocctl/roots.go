package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/ralloc/internal/format"
	"github.com/joshuapare/ralloc/pkg/ralloc"
)

var (
	rootsSet   []string
	rootsClear []int
)

func init() {
	rootCmd.AddCommand(newRootsCmd())
}

func newRootsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roots <heap>",
		Short: "List or change the persistent root slots",
		Long: `The roots command lists the non-empty root slots of a heap file. With
--set or --clear it opens the heap and updates the slots first.

Example:
  rallocctl roots app.heap
  rallocctl roots app.heap --set 0=0x113000
  rallocctl roots app.heap --clear 0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoots(args)
		},
	}
	cmd.Flags().StringArrayVar(&rootsSet, "set", nil, "Set a root: index=pointer (repeatable)")
	cmd.Flags().IntSliceVar(&rootsClear, "clear", nil, "Clear root slots by index")
	return cmd
}

type rootEntry struct {
	Index int    `json:"index"`
	Ptr   string `json:"ptr"`
}

func parseRootAssignment(s string) (int, ralloc.Ptr, error) {
	idx, val, ok := strings.Cut(s, "=")
	if !ok {
		return 0, 0, fmt.Errorf("invalid root assignment %q (want index=pointer)", s)
	}
	i, err := strconv.Atoi(strings.TrimSpace(idx))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid root index %q: %w", idx, err)
	}
	p, err := strconv.ParseUint(strings.TrimSpace(val), 0, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid pointer %q: %w", val, err)
	}
	return i, ralloc.Ptr(p), nil
}

func runRoots(args []string) (err error) {
	path := args[0]
	info, err := loadHeaderInfo(path)
	if err != nil {
		return fmt.Errorf("failed to read heap: %w", err)
	}

	h := ralloc.New(&ralloc.Options{Logger: heapLogger()})
	if _, err := h.Init(path, int64(info.Size)); err != nil {
		return fmt.Errorf("failed to open heap: %w", err)
	}
	defer func() {
		if cerr := h.Close(); err == nil {
			err = cerr
		}
	}()

	for _, s := range rootsSet {
		i, p, err := parseRootAssignment(s)
		if err != nil {
			return err
		}
		if err := h.SetRoot(p, i); err != nil {
			return err
		}
		printVerbose("root %d = %s\n", i, p)
	}
	for _, i := range rootsClear {
		if err := h.SetRoot(ralloc.NilPtr, i); err != nil {
			return err
		}
		printVerbose("root %d cleared\n", i)
	}

	var entries []rootEntry
	for i := range format.RootCount {
		p, err := h.GetRoot(i)
		if errors.Is(err, ralloc.ErrInvalidRoot) {
			continue
		}
		if err != nil {
			return err
		}
		entries = append(entries, rootEntry{Index: i, Ptr: p.String()})
	}

	if jsonOut {
		return printJSON(map[string]any{"path": path, "roots": entries})
	}
	if len(entries) == 0 {
		printInfo("No roots set\n")
		return nil
	}
	for _, e := range entries {
		printInfo("  %4d  %s\n", e.Index, e.Ptr)
	}
	return nil
}
