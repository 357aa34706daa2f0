package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joshuapare/ralloc/pkg/ralloc"
)

var (
	benchSize     string
	benchWorkers  int
	benchOps      int
	benchBlock    string
	benchBurst    int
	benchNoCache  bool
	benchKeepFile string
)

func init() {
	rootCmd.AddCommand(newBenchCmd())
}

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure malloc/free throughput on a scratch heap",
		Long: `The bench command creates a scratch heap and runs concurrent workers,
each allocating a burst of blocks and freeing them again.

Example:
  rallocctl bench --workers 8 --ops 1000000 --block 64B
  rallocctl bench --no-cache --block 4KiB`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench()
		},
	}
	cmd.Flags().StringVar(&benchSize, "size", "256MiB", "Scratch heap size")
	cmd.Flags().IntVar(&benchWorkers, "workers", 4, "Concurrent workers")
	cmd.Flags().IntVar(&benchOps, "ops", 200000, "Malloc/free pairs per worker")
	cmd.Flags().StringVar(&benchBlock, "block", "64B", "Allocation size")
	cmd.Flags().IntVar(&benchBurst, "burst", 64, "Blocks held per worker before freeing")
	cmd.Flags().BoolVar(&benchNoCache, "no-cache", false, "Allocate through the shared heap instead of per-worker caches")
	cmd.Flags().StringVar(&benchKeepFile, "file", "", "Heap file to use (default: temporary, removed afterwards)")
	return cmd
}

type benchResult struct {
	Workers   int           `json:"workers"`
	Ops       int           `json:"ops"`
	BlockSize int           `json:"block_size"`
	Cached    bool          `json:"cached"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	OpsPerSec float64       `json:"ops_per_sec"`
	LiveBytes int           `json:"live_bytes_after"`
}

type allocator interface {
	Malloc(size int) (ralloc.Ptr, error)
	Free(p ralloc.Ptr)
}

func runBench() error {
	size, err := parseSize(benchSize)
	if err != nil {
		return err
	}
	block, err := parseSize(benchBlock)
	if err != nil {
		return err
	}
	if benchWorkers < 1 || benchOps < 1 || benchBurst < 1 {
		return fmt.Errorf("workers, ops and burst must be positive")
	}

	path := benchKeepFile
	if path == "" {
		dir, err := os.MkdirTemp("", "rallocctl-bench-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		path = filepath.Join(dir, "bench.heap")
	}

	h := ralloc.New(&ralloc.Options{Logger: heapLogger()})
	if _, err := h.Init(path, size); err != nil {
		return fmt.Errorf("failed to create heap: %w", err)
	}
	defer h.Close()

	workers := make([]allocator, benchWorkers)
	for i := range workers {
		if benchNoCache {
			workers[i] = h
			continue
		}
		c, err := h.NewCache()
		if err != nil {
			return err
		}
		defer c.Close()
		workers[i] = c
	}

	printVerbose("Running %d workers x %s ops of %s\n",
		benchWorkers, count(benchOps), humanize.IBytes(uint64(block)))

	errs := make([]error, benchWorkers)
	var wg sync.WaitGroup
	start := time.Now()
	for w, a := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[w] = benchWorker(a, int(block))
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	st, err := h.Stats()
	if err != nil {
		return err
	}
	total := benchWorkers * benchOps
	res := benchResult{
		Workers:   benchWorkers,
		Ops:       total,
		BlockSize: int(block),
		Cached:    !benchNoCache,
		Elapsed:   elapsed,
		OpsPerSec: float64(total) / elapsed.Seconds(),
		LiveBytes: st.LiveBytes,
	}
	log.Info("rallocctl: bench", "workers", res.Workers, "ops", res.Ops, "elapsed", elapsed, "ops_per_sec", res.OpsPerSec)

	if jsonOut {
		return printJSON(res)
	}
	mode := "per-worker caches"
	if benchNoCache {
		mode = "shared heap"
	}
	printInfo("%s malloc/free pairs of %s with %d workers (%s) in %s\n",
		count(res.Ops), humanize.IBytes(uint64(block)), res.Workers, mode, elapsed.Round(time.Millisecond))
	printInfo("%s ops/sec, %s per pair\n",
		numbers.Sprintf("%.0f", res.OpsPerSec), (elapsed / time.Duration(total/res.Workers)).Round(time.Nanosecond))
	return nil
}

func benchWorker(a allocator, size int) error {
	held := make([]ralloc.Ptr, 0, benchBurst)
	for done := 0; done < benchOps; {
		n := min(benchBurst, benchOps-done)
		for range n {
			p, err := a.Malloc(size)
			if err != nil {
				return err
			}
			held = append(held, p)
		}
		for _, p := range held {
			a.Free(p)
		}
		held = held[:0]
		done += n
	}
	return nil
}
