package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joshuapare/ralloc/heap/alloc"
	"github.com/joshuapare/ralloc/pkg/ralloc"
)

var (
	createSize    string
	createClasses string
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <heap>",
		Short: "Create and format a new heap file",
		Long: `The create command formats a new heap file with the given amount of
superblock space and size-class ladder. The file must not exist.

Example:
  rallocctl create app.heap --size 256MiB
  rallocctl create app.heap --size 1GiB --classes fine`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(args)
		},
	}
	cmd.Flags().StringVar(&createSize, "size", "64MiB", "Superblock space (e.g. 64MiB, 1GB)")
	cmd.Flags().StringVar(&createClasses, "classes", "default", "Size-class ladder: default, fine, coarse")
	return cmd
}

func sizeClassConfig(name string) (*alloc.SizeClassConfig, error) {
	var cfg alloc.SizeClassConfig
	switch strings.ToLower(name) {
	case "default", "":
		cfg = alloc.ConfigDefault
	case "fine":
		cfg = alloc.ConfigFine
	case "coarse":
		cfg = alloc.ConfigCoarse
	default:
		return nil, fmt.Errorf("unknown size-class ladder %q (want default, fine or coarse)", name)
	}
	return &cfg, nil
}

func parseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(n), nil
}

func runCreate(args []string) error {
	path := args[0]
	size, err := parseSize(createSize)
	if err != nil {
		return err
	}
	cfg, err := sizeClassConfig(createClasses)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	printVerbose("Creating heap: %s\n", path)
	h := ralloc.New(&ralloc.Options{SizeClasses: cfg, Logger: heapLogger()})
	if _, err := h.Init(path, size); err != nil {
		return fmt.Errorf("failed to create heap: %w", err)
	}
	st, err := h.Stats()
	if err != nil {
		_ = h.Close()
		return err
	}
	if err := h.Close(); err != nil {
		return fmt.Errorf("failed to close heap: %w", err)
	}

	if jsonOut {
		return printJSON(map[string]any{
			"path":        path,
			"size":        st.RegionBytes,
			"superblocks": st.FrontierRemaining,
			"classes":     cfg.Name,
		})
	}
	printInfo("Created %s: %s in %s superblocks, %s size classes\n",
		path, humanize.IBytes(uint64(st.RegionBytes)), count(st.FrontierRemaining), cfg.Name)
	return nil
}
