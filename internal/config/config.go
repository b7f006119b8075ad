// Package config loads hoarder configuration from YAML or CUE files.
//
// Every source is unified with the embedded CUE definition #Config before it
// is decoded, so unknown keys, out-of-range enumerations and missing
// defaults are all handled in one place.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config is the resolved configuration.
type Config struct {
	Database     string
	BusyTimeout  time.Duration
	PollInterval time.Duration
	LogLevel     string
	Format       string
}

// file mirrors #Config field for field.
type file struct {
	Database     string `json:"database" yaml:"database"`
	BusyTimeout  string `json:"busy_timeout" yaml:"busy_timeout"`
	PollInterval string `json:"poll_interval" yaml:"poll_interval"`
	LogLevel     string `json:"log_level" yaml:"log_level"`
	Format       string `json:"format" yaml:"format"`
}

// Error describes a configuration that could not be loaded.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrUnsupportedFormat is returned for config files that are neither YAML nor CUE.
var ErrUnsupportedFormat = errors.New("unsupported config file extension")

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg, err := resolveIn(cuecontext.New(), nil)
	if err != nil {
		// The embedded schema is fixed at build time.
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return cfg
}

// Load reads the file at path. An empty path yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &Error{Path: path, Err: err}
	}

	cfg, err := Parse(filepath.Ext(path), data)
	if err != nil {
		return Config{}, &Error{Path: path, Err: err}
	}
	return cfg, nil
}

// Parse decodes data according to ext (".yaml", ".yml" or ".cue").
func Parse(ext string, data []byte) (Config, error) {
	ctx := cuecontext.New()

	var v cue.Value
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var m map[string]any
		if err := yaml.Unmarshal(data, &m); err != nil {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
		if m == nil {
			m = map[string]any{}
		}
		v = ctx.Encode(m)
	case ".cue":
		v = ctx.CompileBytes(data)
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err := v.Err(); err != nil {
		return Config{}, fmt.Errorf("parse: %w", err)
	}

	return resolveIn(ctx, &v)
}

// Validate re-checks c against the schema. Use it after applying flag
// overrides to a loaded Config.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	v := ctx.Encode(file{
		Database:     c.Database,
		BusyTimeout:  c.BusyTimeout.String(),
		PollInterval: c.PollInterval.String(),
		LogLevel:     c.LogLevel,
		Format:       c.Format,
	})
	if _, err := resolveIn(ctx, &v); err != nil {
		return &Error{Err: err}
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func resolveIn(ctx *cue.Context, v *cue.Value) (Config, error) {
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	unified := def
	if v != nil {
		if err := checkKeys(def, *v); err != nil {
			return Config{}, err
		}
		unified = def.Unify(*v)
	}
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("validate: %w", err)
	}

	var raw file
	if err := unified.Decode(&raw); err != nil {
		return Config{}, fmt.Errorf("decode: %w", err)
	}

	busy, err := parseDuration("busy_timeout", raw.BusyTimeout)
	if err != nil {
		return Config{}, err
	}
	poll, err := parseDuration("poll_interval", raw.PollInterval)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Database:     raw.Database,
		BusyTimeout:  busy,
		PollInterval: poll,
		LogLevel:     raw.LogLevel,
		Format:       raw.Format,
	}, nil
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative, got %s", key, s)
	}
	return d, nil
}

// checkKeys rejects top-level keys that #Config does not declare.
func checkKeys(def, v cue.Value) error {
	iter, err := v.Fields()
	if err != nil {
		return fmt.Errorf("config must be a struct: %w", err)
	}
	for iter.Next() {
		label := iter.Selector().String()
		if !def.LookupPath(cue.MakePath(iter.Selector())).Exists() {
			return fmt.Errorf("unknown key %q", label)
		}
	}
	return nil
}
