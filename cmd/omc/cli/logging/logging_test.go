package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeLastRecord parses the last JSON log line written to buf.
func decodeLastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines, "expected at least one log record")
	var record map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &record))
	return record
}

func TestContextAttributesAttached(t *testing.T) {
	var buf bytes.Buffer
	Init(&buf, slog.LevelDebug)
	defer Init(bytes.NewBuffer(nil), slog.LevelError)

	ctx := WithSession(WithComponent(context.Background(), "hooks"), "sess-1")
	Info(ctx, "hook invoked", slog.String("hook", "stop"))

	record := decodeLastRecord(t, &buf)
	assert.Equal(t, "hook invoked", record["msg"])
	assert.Equal(t, "hooks", record["component"])
	assert.Equal(t, "sess-1", record["session_id"])
	assert.Equal(t, "stop", record["hook"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(&buf, slog.LevelWarn)
	defer Init(bytes.NewBuffer(nil), slog.LevelError)

	Debug(context.Background(), "hidden")
	Info(context.Background(), "also hidden")
	assert.Zero(t, buf.Len(), "records below warn should be dropped")

	Warn(context.Background(), "visible")
	record := decodeLastRecord(t, &buf)
	assert.Equal(t, "visible", record["msg"])
}

func TestLogDurationAppendsElapsed(t *testing.T) {
	var buf bytes.Buffer
	Init(&buf, slog.LevelDebug)
	defer Init(bytes.NewBuffer(nil), slog.LevelError)

	start := time.Now().Add(-10 * time.Millisecond)
	LogDuration(context.Background(), slog.LevelInfo, "hook completed", start, slog.Bool("success", true))

	record := decodeLastRecord(t, &buf)
	assert.Equal(t, "hook completed", record["msg"])
	assert.Equal(t, true, record["success"])
	require.Contains(t, record, "duration")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestInitFileCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "omc.log")

	cleanup := InitFile(path, slog.LevelInfo)
	Info(context.Background(), "written to file")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")

	// After cleanup further records are discarded, not appended.
	Info(context.Background(), "after cleanup")
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(after), "after cleanup")
}
