package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		verbose bool
		quiet   bool
		level   string
		want    zerolog.Level
	}{
		{"default", false, false, "", zerolog.InfoLevel},
		{"verbose", true, false, "", zerolog.DebugLevel},
		{"quiet", false, true, "", zerolog.WarnLevel},
		{"verbose wins over quiet", true, true, "", zerolog.DebugLevel},
		{"configured level", false, false, "error", zerolog.ErrorLevel},
		{"configured level uppercase", false, false, "WARN", zerolog.WarnLevel},
		{"flag wins over configured level", false, true, "debug", zerolog.WarnLevel},
		{"unknown level", false, false, "chatty", zerolog.InfoLevel},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, SelectLevel(tc.verbose, tc.quiet, tc.level))
		})
	}
}

func TestNew_ConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Console: &buf})
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	l.Info().Str("project_id", "p1").Msg("project registered")
	l.Debug().Msg("hidden at info level")

	out := buf.String()
	assert.Contains(t, out, `"event":"project registered"`)
	assert.Contains(t, out, `"ts":`)
	assert.NotContains(t, out, "hidden at info level")
}

func TestNew_FileIsFiltered(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "tokengov.log")

	l, err := New(Options{Console: &console, File: path, Verbose: true})
	require.NoError(t, err)

	url := "redis://default:" + "hunter2hunter2" + "@cache.internal:6379/0"
	l.Debug().Str("redis_url", url).Msg("checkpoint backend ready")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path) //nolint:gosec // test file
	require.NoError(t, err)

	assert.Contains(t, string(data), "cache.internal:6379/0")
	assert.Contains(t, string(data), RedactedValue)
	assert.NotContains(t, string(data), "hunter2")
	assert.Contains(t, console.String(), "checkpoint backend ready")
}

func TestNew_FileErrorKeepsConsole(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	var buf bytes.Buffer
	l, err := New(Options{Console: &buf, File: filepath.Join(blocker, "sub", "tokengov.log")})
	require.Error(t, err)
	require.NotNil(t, l)

	l.Warn().Msg("still logging")
	assert.Contains(t, buf.String(), "still logging")
	assert.NoError(t, l.Close())
}

func TestLogger_CloseNil(t *testing.T) {
	var l *Logger
	assert.NoError(t, l.Close())
}
