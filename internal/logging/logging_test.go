package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Level: "debug", Format: "json", Out: &buf})
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug().Str("run_id", "r1").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "r1", entry["run_id"])
	assert.Equal(t, "hello", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Options{Level: "warn", Format: "json", Out: &buf})
	require.NoError(t, err)

	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNew_ConsoleNoColorForBuffers(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Options{Out: &buf})
	require.NoError(t, err)

	logger.Info().Msg("plain")
	out := buf.String()
	assert.Contains(t, out, "plain")
	assert.NotContains(t, out, "\x1b[")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "logging: level"))
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "yard.log")
	var buf bytes.Buffer
	logger, closer, err := New(Options{Format: "json", File: path, Out: &buf})
	require.NoError(t, err)

	logger.Info().Msg("to both")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}
