package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_ShouldExit(t *testing.T) {
	// The "-h" (help) flag should cause cli.Parse to return shouldExit=true.
	args := []string{"-h"}
	out := &bytes.Buffer{}

	err := run(out, args)

	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	// Providing an unknown flag will cause cli.Parse to return an error.
	args := []string{"--this-is-not-a-valid-flag"}
	out := &bytes.Buffer{}

	err := run(out, args)

	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_MissingRequiredConfig(t *testing.T) {
	t.Setenv("INTEGRATION_INSTANCE_ID", "")
	t.Setenv("API_BASE_URL", "")
	out := &bytes.Buffer{}

	err := run(out, nil)

	require.Error(t, err, "run() should report the missing required config fields")
	require.Contains(t, err.Error(), "IntegrationInstanceID")
}

func TestRun_EndToEndAgainstMockPersister(t *testing.T) {
	var finalized bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		switch r.URL.Path {
		case "/persister/synchronization/jobs":
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]any{"job": map[string]string{"id": "job-1"}})
		case "/persister/synchronization/jobs/job-1/finalize":
			finalized = true
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]any{"job": map[string]string{"id": "job-1"}})
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	outputDir := t.TempDir()
	t.Setenv("INTEGRATION_INSTANCE_ID", "instance-1")
	t.Setenv("API_BASE_URL", server.URL)
	t.Setenv("OUTPUT_ROOT_DIR", outputDir)

	out := &bytes.Buffer{}
	err := run(out, nil)
	require.NoError(t, err)
	require.True(t, finalized)

	summaryPath := filepath.Join(outputDir, "summary.json")
	_, statErr := os.Stat(summaryPath)
	require.NoError(t, statErr, "expected summary.json to be written")
}
