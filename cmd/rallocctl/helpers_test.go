package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// resetFlags restores every command flag to its default.
func resetFlags(t *testing.T) {
	t.Helper()
	verbose, quiet, jsonOut, debug, logDir = false, false, false, false, ""
	createSize, createClasses = "64MiB", "default"
	verifyStopFirst = false
	rootsSet, rootsClear = nil, nil
	benchSize, benchWorkers, benchOps, benchBlock, benchBurst = "256MiB", 4, 200000, "64B", 64
	benchNoCache, benchKeepFile = false, ""
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	return buf.String(), fnErr
}

// decodeJSON parses output into a generic map.
func decodeJSON(t *testing.T, output string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &m), "output: %s", output)
	return m
}

// newHeapFile creates a small heap in a temp dir and returns its path.
func newHeapFile(t *testing.T) string {
	t.Helper()
	resetFlags(t)
	path := filepath.Join(t.TempDir(), "test.heap")
	createSize = "1MiB"
	_, err := captureOutput(t, func() error { return runCreate([]string{path}) })
	require.NoError(t, err)
	resetFlags(t)
	return path
}
