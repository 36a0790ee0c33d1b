package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetLoggers restores the package state so tests don't leak a file-backed
// default logger into each other.
func resetLoggers(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		structuredLogger = nil
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	})
}

func TestInitFileRoutesForServiceOutput(t *testing.T) {
	resetLoggers(t)
	logPath := filepath.Join(t.TempDir(), "logs", "wildwatch.log")

	closeLogs, err := InitFile(logPath)
	require.NoError(t, err, "failed to initialize file logging")

	logger := ForService("session")
	logger.Info("session restored", "username", "jane")
	require.NoError(t, closeLogs(), "failed to close log writer")

	raw, err := os.ReadFile(logPath)
	require.NoError(t, err, "expected log file written")
	content := string(raw)
	assert.Contains(t, content, `"service":"session"`, "expected service attribute")
	assert.Contains(t, content, `"msg":"session restored"`, "expected message")
	assert.Contains(t, content, `"username":"jane"`, "expected structured attribute")
}

func TestInitFileReplacesCustomLevelNames(t *testing.T) {
	resetLoggers(t)
	logPath := filepath.Join(t.TempDir(), "wildwatch.log")

	closeLogs, err := InitFile(logPath)
	require.NoError(t, err, "failed to initialize file logging")

	ForService("api").Log(context.Background(), LevelTrace, "request sent")
	require.NoError(t, closeLogs(), "failed to close log writer")

	raw, err := os.ReadFile(logPath)
	require.NoError(t, err, "expected log file written")
	assert.Contains(t, string(raw), `"level":"TRACE"`, "expected custom level label")
}

func TestInitFileCreatesMissingDirectory(t *testing.T) {
	resetLoggers(t)
	logPath := filepath.Join(t.TempDir(), "a", "b", "wildwatch.log")

	closeLogs, err := InitFile(logPath)
	require.NoError(t, err, "expected nested log directory created")
	require.NoError(t, closeLogs(), "failed to close log writer")
}
