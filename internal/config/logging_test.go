package config_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		expected config.LogLevel
	}{
		{"off lowercase", "off", config.LogLevelOff},
		{"off uppercase", "OFF", config.LogLevelOff},
		{"none", "none", config.LogLevelOff},
		{"error", "error", config.LogLevelError},
		{"info", "Info", config.LogLevelInfo},
		{"debug uppercase", "DEBUG", config.LogLevelDebug},
		{"with whitespace", "  debug  ", config.LogLevelDebug},
		{"invalid returns error", "invalid", config.LogLevelError},
		{"empty returns error", "", config.LogLevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, config.ParseLogLevel(tt.input))
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "off", config.LogLevelOff.String())
	assert.Equal(t, "error", config.LogLevelError.String())
	assert.Equal(t, "info", config.LogLevelInfo.String())
	assert.Equal(t, "debug", config.LogLevelDebug.String())
	assert.Equal(t, "error", config.LogLevel(99).String())
}

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m), string(line))
		out = append(out, m)
	}
	return out
}

func TestLogger_LevelFiltering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level config.LogLevel
		want  []string
	}{
		{config.LogLevelOff, nil},
		{config.LogLevelError, []string{"error"}},
		{config.LogLevelInfo, []string{"info", "error"}},
		{config.LogLevelDebug, []string{"debug", "info", "error"}},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			logger := config.NewWriterLogger(tt.level, &buf)

			logger.Debug("d %d", 1)
			logger.Info("i %d", 2)
			logger.Error("e %d", 3)

			var levels []string
			for _, line := range decodeLines(t, buf.Bytes()) {
				levels = append(levels, line["level"].(string))
				assert.Contains(t, line, "time")
			}
			assert.Equal(t, tt.want, levels)
		})
	}
}

func TestLogger_ComponentSharesLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := config.NewWriterLogger(config.LogLevelError, &buf)
	chainLog := logger.Component("chain")

	chainLog.Debug("hidden")
	logger.SetLevel(config.LogLevelDebug)
	assert.Equal(t, config.LogLevelDebug, chainLog.Level())
	chainLog.Debug("fetched %d scripts", 20)

	lines := decodeLines(t, buf.Bytes())
	require.Len(t, lines, 1)
	assert.Equal(t, "chain", lines[0]["component"])
	assert.Equal(t, "fetched 20 scripts", lines[0]["message"])
}

func TestLogger_Writer(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := config.NewWriterLogger(config.LogLevelInfo, &buf)

	n, err := logger.Writer(config.LogLevelInfo).Write([]byte("  from writer \n"))
	require.NoError(t, err)
	assert.Equal(t, 15, n)
	_, _ = logger.Writer(config.LogLevelDebug).Write([]byte("filtered"))

	lines := decodeLines(t, buf.Bytes())
	require.Len(t, lines, 1)
	assert.Equal(t, "from writer", lines[0]["message"])
}

func TestNewLogger_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "logs", "satchel.log")

	logger, err := config.NewLogger(config.LogLevelDebug, path)
	require.NoError(t, err)
	assert.Equal(t, path, logger.Path())
	logger.Debug("hello %s", "file")
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path) //nolint:gosec // test path
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello file"`)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestNewRotatingLogger(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "satchel.log")

	logger, err := config.NewRotatingLogger(config.LogLevelError, path, config.RotateOptions{MaxSizeKB: 1024, MaxFiles: 2})
	require.NoError(t, err)
	logger.Error("rotated %s", "line")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path) //nolint:gosec // test path
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "rotated line"))
}

func TestNewLogger_Disabled(t *testing.T) {
	t.Parallel()

	logger, err := config.NewLogger(config.LogLevelOff, "/nonexistent/should/not/be/created.log")
	require.NoError(t, err)
	assert.Empty(t, logger.Path())
	logger.Error("dropped")
	require.NoError(t, logger.Close())

	logger, err = config.NewLogger(config.LogLevelDebug, "")
	require.NoError(t, err)
	logger.Debug("dropped")
}

func TestNewLogger_InvalidPath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	_, err := config.NewLogger(config.LogLevelDebug, filepath.Join(blocker, "sub", "satchel.log"))
	require.Error(t, err)
}

func TestNullLogger(t *testing.T) {
	t.Parallel()
	logger := config.NullLogger()
	logger.Debug("x")
	logger.Error("y")
	assert.Equal(t, config.LogLevelOff, logger.Level())
	require.NoError(t, logger.Close())
}

func TestLogger_Concurrent(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := config.NewWriterLogger(config.LogLevelDebug, &buf)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Component("worker").Debug("line %d", i)
		}()
	}
	wg.Wait()
	assert.Len(t, decodeLines(t, buf.Bytes()), 20)
}
