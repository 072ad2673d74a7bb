package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olmcore/internal/logging"
)

func TestJSONLoggerCarriesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	l := logging.Component(logging.NewWithWriter(logging.Config{Level: "debug", Format: "json"}, &buf), "device")
	l.Debug("hello", "k", 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "olmcore", rec["service"])
	assert.Equal(t, "device", rec["component"])
	assert.Equal(t, "hello", rec["msg"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewWithWriter(logging.Config{Level: "warn"}, &buf)
	l.Info("dropped")
	assert.Zero(t, buf.Len())
	l.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logging.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel("bogus"))
	assert.Equal(t, slog.LevelError, logging.ParseLevel("error"))
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "olmcore.log")
	l, closeFn, err := logging.New(logging.Config{Output: path})
	require.NoError(t, err)
	l.Info("to file")
	require.NoError(t, closeFn())
	assert.FileExists(t, path)
}
