package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warning", LevelWarn},
		{"WARN", LevelWarn},
		{" error ", LevelError},
		{"nonsense", LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf})

	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.Warn("shown %d", 42)
	assert.Contains(t, buf.String(), "shown 42")
	assert.Contains(t, buf.String(), "level=WARN")
}

func TestLogger_SetLevelSharedWithChildren(t *testing.T) {
	var buf bytes.Buffer
	root := New(Config{Level: LevelInfo, Output: &buf})
	child := root.WithComponent("scheduler")

	child.Debug("before")
	assert.Empty(t, buf.String())

	root.SetLevel(LevelDebug)
	child.Debug("after")
	assert.Contains(t, buf.String(), "after")
	assert.Contains(t, buf.String(), "component=scheduler")
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Format: "json", Output: &buf}).
		WithFields(map[string]any{"block": "b1", "attempt": 2})

	l.Error("check failed")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "check failed", rec["msg"])
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "b1", rec["block"])
	assert.EqualValues(t, 2, rec["attempt"])
}

func TestNullLogger(t *testing.T) {
	assert.False(t, NullLogger.Enabled(LevelError))
	NullLogger.WithField("k", "v").Error("dropped")
	NullLogger.Slog().Info("dropped")
}

func TestGetSet(t *testing.T) {
	prev := Get()
	defer Set(prev)

	var buf bytes.Buffer
	Set(New(Config{Output: &buf}))
	Get().Info("hello")
	assert.Contains(t, buf.String(), "hello")
}
