package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/ralloc/internal/logger"
)

var (
	// Global flags
	verbose bool
	quiet   bool
	jsonOut bool
	debug   bool
	logDir  string

	log       = logger.Discard()
	logCloser io.Closer
	numbers   = message.NewPrinter(language.English)
)

var rootCmd = &cobra.Command{
	Use:   "rallocctl",
	Short: "Create, inspect and repair persistent ralloc heap files",
	Long: `rallocctl manages heap files used by the ralloc persistent allocator.
It creates heaps, reports their layout and usage, checks structural invariants,
runs crash recovery, and benchmarks allocation throughput.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		opts := logger.Options{LogDir: logDir, Debug: debug}
		if verbose && logDir == "" {
			opts.Writer = os.Stderr
		}
		l, c, err := logger.New(opts)
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		log, logCloser = l, c
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output and logs on stderr")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log at debug level")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Write JSON logs to a daily file in this directory")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v\n", err)
		os.Exit(1)
	}
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printError prints an error message
func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// count formats n with locale digit grouping.
func count[T ~int | ~int64 | ~uint32 | ~uint64](n T) string {
	return numbers.Sprintf("%d", n)
}

// heapLogger returns the logger heap operations should use.
func heapLogger() *slog.Logger { return log }
