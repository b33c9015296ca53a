// Package config loads the optional tokendb configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/maruel/tokendb/internal/storage/git"
)

// DefaultPath is the configuration file looked up in the working directory.
const DefaultPath = ".tokendb.yaml"

// Config is the content of the configuration file.
type Config struct {
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`

	// GitBackend selects how directory databases query git: exec runs the
	// git binary, gogit uses a pure Go implementation and none disables git.
	GitBackend string `yaml:"git_backend" jsonschema:"enum=exec,enum=gogit,enum=none"`

	// GitTimeout bounds each git command.
	GitTimeout Duration `yaml:"git_timeout"`

	// Upstream is the commit that add --discard-temporary checks HEAD against
	// when none is given.
	Upstream string `yaml:"upstream"`

	// WatchInterval is the minimum delay between two rebuilds in watch.
	WatchInterval Duration `yaml:"watch_interval"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LogLevel:      "info",
		GitBackend:    "exec",
		GitTimeout:    Duration(time.Minute),
		Upstream:      "origin/main",
		WatchInterval: Duration(time.Second),
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if _, err := c.Backend(); err != nil {
		return fmt.Errorf("git_backend: %w", err)
	}
	if c.GitTimeout <= 0 {
		return errors.New("git_timeout must be positive")
	}
	if c.Upstream == "" {
		return errors.New("upstream is required")
	}
	if c.WatchInterval < 0 {
		return errors.New("watch_interval must be non-negative")
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Backend parses GitBackend.
func (c *Config) Backend() (git.Backend, error) {
	return git.ParseBackend(c.GitBackend)
}

// Load reads the configuration at path on top of the defaults. A missing file
// yields the defaults unless required is set. Unknown keys are an error.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is the user's configuration file
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}

// Marshal returns the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Schema returns the JSON schema of the configuration file.
func Schema() ([]byte, error) {
	r := jsonschema.Reflector{
		Anonymous:                  true,
		DoNotReference:             true,
		FieldNameTag:               "yaml",
		RequiredFromJSONSchemaTags: true,
	}
	s := r.Reflect(&Config{})
	s.Title = "tokendb configuration"
	s.Description = "Content of " + DefaultPath
	return json.MarshalIndent(s, "", "  ")
}

// Duration is a time.Duration written as a Go duration string such as "1m".
type Duration time.Duration

// D returns the time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

// JSONSchema implements jsonschema's custom schema hook.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Description: "Go duration, e.g. 30s or 1m",
		Examples:    []any{"1s", "1m"},
	}
}
