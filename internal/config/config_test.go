package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, Config{
		Database:     "hoarder.db",
		BusyTimeout:  5 * time.Second,
		PollInterval: 0,
		LogLevel:     "info",
		Format:       "text",
	}, cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "hoarder.yaml", `
database: /var/lib/hoarder/movies.db
poll_interval: 250ms
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/hoarder/movies.db", cfg.Database)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.BusyTimeout, "unset keys keep their defaults")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.Format)
}

func TestLoad_EmptyYAML(t *testing.T) {
	path := writeFile(t, "empty.yml", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_CUE(t *testing.T) {
	path := writeFile(t, "hoarder.cue", `
database: "movies.db"
format:   "json"
busy_timeout: "1s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "movies.db", cfg.Database)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, time.Second, cfg.BusyTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown key", "a.yaml", "databse: x.db\n"},
		{"bad format", "b.yaml", "format: xml\n"},
		{"bad level", "c.yaml", "log_level: loud\n"},
		{"empty database", "d.yaml", "database: \"\"\n"},
		{"bad duration", "e.yaml", "poll_interval: soon\n"},
		{"negative duration", "f.yaml", "busy_timeout: -1s\n"},
		{"number for duration", "g.yaml", "busy_timeout: 5\n"},
		{"malformed yaml", "h.yaml", "database: [\n"},
		{"cue unknown key", "i.cue", "colour: \"red\"\n"},
		{"cue syntax", "j.cue", "database: \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := Load(path)
			require.Error(t, err)

			var cfgErr *Error
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, path, cfgErr.Path)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_UnsupportedExtension(t *testing.T) {
	_, err := Parse(".toml", []byte(`database = "x"`))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestValidate_Overrides(t *testing.T) {
	cfg := Default()
	cfg.Format = "json"
	cfg.PollInterval = time.Second
	assert.NoError(t, cfg.Validate())

	cfg.Format = "yaml"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Database = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.BusyTimeout = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for level, want := range tests {
		assert.Equal(t, want, Config{LogLevel: level}.SlogLevel(), level)
	}
}
