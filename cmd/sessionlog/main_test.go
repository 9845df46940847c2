package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/sessionkit/pkg/log"
)

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.slog")
	l, err := log.NewFileLogger(path)
	require.NoError(t, err)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.Log(log.Event{Timestamp: ts, SessionID: "aaaa1111", Key: 1, Layer: log.LayerTransport,
		Category: log.CategoryData, Direction: log.DirectionIn, Data: log.NewDataEvent([]byte("hi"))})
	l.Log(log.Event{Timestamp: ts.Add(time.Second), SessionID: "bbbb2222", Key: 2, Layer: log.LayerSecure,
		Category: log.CategoryError, Error: &log.ErrorEventData{Message: "bad certificate"}})
	require.NoError(t, l.Close())
	return path
}

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.ErrorIs(t, run(nil, &stdout, &stderr), errUsage)
	assert.Contains(t, stderr.String(), "Commands:")

	stdout.Reset()
	require.NoError(t, run([]string{"help"}, &stdout, &stderr))
	for _, sc := range subcommands {
		assert.Contains(t, stdout.String(), sc.name)
	}

	stderr.Reset()
	assert.ErrorIs(t, run([]string{"bogus"}, &stdout, &stderr), errUsage)
	assert.Contains(t, stderr.String(), "Unknown command: bogus")

	stderr.Reset()
	assert.ErrorIs(t, run([]string{"view"}, &stdout, &stderr), errUsage)
	assert.Contains(t, stderr.String(), "sessionlog view [flags] <file.slog>")
}

func TestRunView(t *testing.T) {
	path := writeSample(t)
	var stdout, stderr bytes.Buffer

	require.NoError(t, run([]string{"view", "-category", "error", path}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "bad certificate")
	assert.NotContains(t, stdout.String(), "aaaa1111")

	assert.Error(t, run([]string{"view", "-layer", "nope", path}, &stdout, &stderr))
}

func TestRunFilterRequiresOutput(t *testing.T) {
	path := writeSample(t)
	var stdout, stderr bytes.Buffer

	assert.ErrorContains(t, run([]string{"filter", path}, &stdout, &stderr), "-o")

	out := filepath.Join(t.TempDir(), "errors.slog")
	require.NoError(t, run([]string{"filter", "-session", "bbbb", "-o", out, path}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Filtered 1 events")
}

func TestRunStats(t *testing.T) {
	path := writeSample(t)
	var stdout, stderr bytes.Buffer

	require.NoError(t, run([]string{"stats", path}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Total Events: 2")
}
