package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nsafar1/vbmgrid/internal/cli"
	"github.com/stretchr/testify/require"
)

func TestRun_InvalidPipeline(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// An HCL string with a syntax error fails while the app is constructed.
	invalidHCL := `
		stage "smooth" {
			operation = "smooth"
		// Missing closing brace here
	`
	filePath := filepath.Join(t.TempDir(), "pipeline.hcl")
	err := os.WriteFile(filePath, []byte(invalidHCL), 0600)
	require.NoError(t, err, "failed to set up test file")

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}

	// --- Act ---
	runErr := run(context.Background(), out, errOut, []string{"validate", filePath})

	// --- Assert ---
	var exitErr *cli.ExitError
	require.ErrorAs(t, runErr, &exitErr)
	require.Equal(t, cli.ExitFailure, exitErr.Code)
	require.Contains(t, exitErr.Message, "failed to load configuration")
}

func TestRun_Help(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, errOut, []string{"-h"})

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error for help")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, errOut, []string{"--this-is-not-a-valid-flag"})

	// --- Assert ---
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, cli.ExitUsage, exitErr.Code)
	require.Contains(t, err.Error(), "unknown flag: --this-is-not-a-valid-flag")
}

func TestRun_UnknownOperation(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Only the built-in operations are available from the binary.
	dir := t.TempDir()
	body := `
pipeline {
  subjects   = "subjects.txt"
  output_dir = "out"
}

stage "prep" {
  operation     = "fake"
  output_prefix = "p"
  input "src" {
    suffix = ".txt"
  }
}
`
	filePath := filepath.Join(dir, "pipeline.hcl")
	require.NoError(t, os.WriteFile(filePath, []byte(body), 0600))
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, errOut, []string{"validate", filePath})

	// --- Assert ---
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown operation 'fake' (known: command, normalize, smooth)")
}
