// Package config loads difftrace run configuration from YAML or CUE.
//
// Defaults are applied first, the file overrides them field by field, and
// the result is validated. YAML decoding rejects unknown fields so a typo
// like "target_backend:" fails loudly instead of being ignored.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/difftrace/internal/archive"
)

// Config drives a comparison run.
type Config struct {
	// ReferenceBackend is the backend name every target is compared with.
	ReferenceBackend string `yaml:"reference_backend" json:"reference_backend" validate:"required"`

	// TargetBackends lists backend names to compare. Repeated names are
	// allowed and get disambiguated ids. Empty selects every registered
	// backend.
	TargetBackends []string `yaml:"target_backends" json:"target_backends" validate:"dive,required"`

	// ArtifactsDir is the root for persisted traces. Empty falls back to
	// the test runner's output directories.
	ArtifactsDir string `yaml:"artifacts_dir" json:"artifacts_dir"`

	// Summarize elides large arrays in log.txt.
	Summarize bool `yaml:"summarize" json:"summarize"`

	// LogAllTraces logs every trace, not just failing calls.
	LogAllTraces bool `yaml:"log_all_traces" json:"log_all_traces"`

	// Seed reseeds the shared random source before each backend run.
	Seed uint64 `yaml:"seed" json:"seed"`

	LogLevel string `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`

	// DB is the SQLite run index path. Empty disables recording.
	DB string `yaml:"db" json:"db"`

	// MetricsTextfile is written after every run when set.
	MetricsTextfile string `yaml:"metrics_textfile" json:"metrics_textfile"`

	Archive archive.Config `yaml:"archive" json:"archive"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ReferenceBackend: "ref",
		TargetBackends:   []string{},
		Summarize:        true,
		LogLevel:         "info",
	}
}

// Load reads a configuration file, choosing the decoder by extension:
// .yaml/.yml or .cue.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".cue":
		return ParseCUE(data, path)
	default:
		return Config{}, fmt.Errorf("unsupported config format %q (want .yaml, .yml or .cue)", ext)
	}
}

// ParseYAML decodes YAML over the defaults and validates the result.
func ParseYAML(data []byte) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ParseCUE evaluates a CUE document over the defaults and validates the
// result. The document must be concrete; CUE constraints in the file are
// checked before decoding.
func ParseCUE(data []byte, filename string) (Config, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return Config{}, fmt.Errorf("failed to compile CUE: %w", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("failed to evaluate CUE: %w", err)
	}

	cfg := Default()
	if err := v.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode CUE: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps LogLevel to a slog level. Unknown levels map to Info.
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
