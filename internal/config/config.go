// Package config holds the options of a repopulation run and loads them
// from a YAML run file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// DefaultKeyField is the file-side field matched against the mapping
// table's key column when the redirection does not name one.
const DefaultKeyField = "SeriesInstanceUID"

// Config carries every option of a run.
type Config struct {
	MappingFile     string `yaml:"mapping" validate:"required"`
	RedirectionFile string `yaml:"redirection"`
	InputRoot       string `yaml:"input" validate:"required"`
	OutputRoot      string `yaml:"output" validate:"required"`

	// Workers is the number of files processed in parallel. Zero means one per CPU.
	Workers int `yaml:"workers" validate:"gte=0"`
	// KeyField is the DICOM field read from each file in field mode.
	KeyField string `yaml:"key_field"`
	// PathColumn enables path mode: the named column holds file paths.
	PathColumn string `yaml:"path_column"`
	Anonymise  bool   `yaml:"anonymise"`

	Delimiter      string `yaml:"delimiter" validate:"omitempty,single_char"`
	Comment        string `yaml:"comment" validate:"omitempty,single_char"`
	AutoMapColumns bool   `yaml:"auto_map_columns"`
	DryRun         bool   `yaml:"dry_run"`

	// LogFile receives one line per skipped or failed file. Empty means
	// errors.log inside the output root.
	LogFile    string `yaml:"log_file"`
	ReportFile string `yaml:"report_file"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig selects the console log level and format.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=pretty json"`
}

// Default returns the configuration every run starts from.
func Default() Config {
	return Config{
		KeyField:  DefaultKeyField,
		Delimiter: ",",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "pretty",
		},
	}
}

// Load reads a YAML run file on top of the defaults. It does not validate:
// command-line flags are applied afterwards.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse YAML in '%s': %w", path, err)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

// applyDefaults restores defaults that a run file blanked out.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.KeyField == "" {
		cfg.KeyField = def.KeyField
	}
	if cfg.Delimiter == "" {
		cfg.Delimiter = def.Delimiter
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
}

// EffectiveWorkers resolves a zero worker count to the number of CPUs.
func (c Config) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// PathMode reports whether files are matched by path instead of by field.
func (c Config) PathMode() bool {
	return c.PathColumn != ""
}
