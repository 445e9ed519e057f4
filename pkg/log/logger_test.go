package log

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schemaErr struct{ column string }

func (e *schemaErr) Error() string { return "missing column " + e.column }

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestZerologLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelDebug, "json").With(RunIDKey, "run-1")

	logger.Info("Training completed",
		OperationKey, OperationFit,
		SamplesKey, 8,
		LossKey, 0.25,
	)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Training completed", entry["message"])
	assert.Equal(t, "run-1", entry[RunIDKey])
	assert.Equal(t, OperationFit, entry[OperationKey])
	assert.Equal(t, 8.0, entry[SamplesKey])
	assert.Equal(t, 0.25, entry[LossKey])
}

func TestZerologLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelWarn, "json")
	ctx := context.Background()

	assert.False(t, logger.Enabled(ctx, LevelInfo))
	assert.True(t, logger.Enabled(ctx, LevelWarn))
	assert.True(t, logger.Enabled(ctx, LevelError))

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
}

func TestZerologLogger_ErrorWithStack(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo, "json")

	err := errors.WithStack(&schemaErr{column: "price"})
	logger.Error("stage failed", err, StageKey, "train")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "missing column price", entries[0][ErrAttrKey])
	assert.Equal(t, "train", entries[0][StageKey])
	assert.NotEmpty(t, entries[0][StacktraceAttrKey])
}

func TestZerologLogger_OddFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo, "json")

	logger.Info("odd", "a", 1, "dangling")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, 1.0, entries[0]["a"])
	_, ok := entries[0]["dangling"]
	assert.False(t, ok)
}

func TestToLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"WARN", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ToLogLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSetupLogger(t *testing.T) {
	prev := GetLogger()
	t.Cleanup(func() { SetLogger(prev) })

	var buf bytes.Buffer
	require.NoError(t, SetupLogger("debug", "json", &buf))
	GetLoggerWithName("pipeline.prep").Debug("hello")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "pipeline.prep", entries[0][ComponentKey])

	assert.Error(t, SetupLogger("loud", "json", &buf))
}

func TestTestLogger(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelInfo)

	testLogger.Debug("not captured")
	testLogger.With(ModelNameKey, "RandomForestRegressor").Info("fitted", SamplesKey, 10)
	testLogger.Error("failed", errors.New("boom"), StageKey, "register")

	assert.NotContains(t, buffer.String(), "not captured")
	assert.True(t, testLogger.ContainsMessage("fitted"))
	assert.True(t, testLogger.ContainsField(ModelNameKey, "RandomForestRegressor"))
	assert.True(t, testLogger.ContainsField(SamplesKey, 10.0))
	assert.True(t, testLogger.ContainsField(ErrAttrKey, "boom"))

	entries, err := testLogger.GetLogEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	testLogger.Clear()
	assert.Empty(t, buffer.String())
}
