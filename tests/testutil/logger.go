package testutil

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/finlink/internal/logging"
)

// TestLogger captures JSON log output for validation in tests.
//
// It is safe for concurrent writers, so it can be handed to code that logs
// from several goroutines (health fan-out, reloads).
//
// Example usage:
//
//	logs := testutil.NewTestLogger(t)
//	reg := registry.New(v, registry.WithLogger(logs.Logger()))
//	...
//	logs.AssertContains(t, "all adapters disconnected")
//	logs.AssertRedacted(t, "client-secret")
type TestLogger struct {
	mu     sync.Mutex
	buffer bytes.Buffer
	logger *logging.Logger
}

// NewTestLogger creates a TestLogger at info level.
func NewTestLogger(t *testing.T) *TestLogger {
	t.Helper()
	return NewTestLoggerWithDebug(t, false)
}

// NewTestLoggerWithDebug creates a TestLogger that also captures debug
// entries when debug is true.
func NewTestLoggerWithDebug(t *testing.T, debug bool) *TestLogger {
	t.Helper()

	l := &TestLogger{}
	l.logger = logging.NewWithOptions(logging.Options{
		Debug:  debug,
		Format: logging.FormatJSON,
		Out:    l,
	})
	return l
}

// Logger returns the logger to pass to the code under test.
func (l *TestLogger) Logger() *logging.Logger {
	return l.logger
}

// Write implements io.Writer.
func (l *TestLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buffer.Write(p)
}

// GetOutput returns everything captured since creation or the last Clear.
func (l *TestLogger) GetOutput() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buffer.String()
}

// Clear drops the captured output.
func (l *TestLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buffer.Reset()
}

// Entries decodes each captured line.
func (l *TestLogger) Entries(t *testing.T) []map[string]interface{} {
	t.Helper()

	var entries []map[string]interface{}
	scanner := bufio.NewScanner(strings.NewReader(l.GetOutput()))
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &entry), "log line is not JSON: %s", line)
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	return entries
}

// Messages returns the message of every entry at level, in order. An empty
// level matches every entry.
func (l *TestLogger) Messages(t *testing.T, level string) []string {
	t.Helper()

	var msgs []string
	for _, e := range l.Entries(t) {
		if level != "" && e["level"] != level {
			continue
		}
		msg, _ := e["message"].(string)
		msgs = append(msgs, msg)
	}
	return msgs
}

// AssertContains asserts that the log output contains substr.
func (l *TestLogger) AssertContains(t *testing.T, substr string) {
	t.Helper()
	assert.Contains(t, l.GetOutput(), substr, "Expected log output to contain %q", substr)
}

// AssertNotContains asserts that the log output does NOT contain substr.
func (l *TestLogger) AssertNotContains(t *testing.T, substr string) {
	t.Helper()
	assert.NotContains(t, l.GetOutput(), substr, "Expected log output to NOT contain %q", substr)
}

// AssertRedacted asserts that secretValue never reached the log output.
// Empty output fails: a redaction check over nothing proves nothing.
func (l *TestLogger) AssertRedacted(t *testing.T, secretValue string) {
	t.Helper()

	output := l.GetOutput()
	assert.NotEmpty(t, output, "Expected some log output to check for %q", secretValue)
	assert.NotContains(t, output, secretValue,
		"Secret value %q should be redacted, but appears in logs", secretValue)
}

// AssertLogCount asserts how many entries were written at level
// (debug, info, warn or error).
func (l *TestLogger) AssertLogCount(t *testing.T, level string, count int) {
	t.Helper()

	switch level {
	case "debug", "info", "warn", "error":
	default:
		t.Fatalf("Unknown log level: %s", level)
	}
	assert.Len(t, l.Messages(t, level), count, "Expected %d %s entries", count, level)
}
