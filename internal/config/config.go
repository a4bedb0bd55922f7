// Package config loads loader settings from YAML with environment
// overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv  = "STAGING_LOADER_CONFIG"
	databaseDSNEnv = "DATABASE_DSN"
	inputDirEnv    = "LOADER_INPUT_DIR"
	dateDimPathEnv = "DATE_DIM_PATH"
)

// Config holds every setting the loader binaries need.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Loader   LoaderConfig   `yaml:"loader"`
	Calendar CalendarConfig `yaml:"calendar"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	// Kind is a registered backend: sqlite, postgres, mssql.
	Kind string `yaml:"kind"`
	DSN  string `yaml:"dsn"`
}

// LoaderConfig describes the file-processing surface.
type LoaderConfig struct {
	// InputDir is watched for *.json dump files.
	InputDir string `yaml:"inputDir"`
	// ProcessedDir and FailedDir receive relocated files. Empty values
	// default to subdirectories of InputDir.
	ProcessedDir string `yaml:"processedDir"`
	FailedDir    string `yaml:"failedDir"`
	// SchemaPath overrides the embedded content schema.
	SchemaPath string `yaml:"schemaPath"`
	// PollInterval drives watch mode; zero means a single pass.
	PollInterval Duration `yaml:"pollInterval"`
	// KeepFiles leaves source files in place after processing.
	KeepFiles bool `yaml:"keepFiles"`
}

// CalendarConfig points at the calendar reference export.
type CalendarConfig struct {
	CSVPath  string `yaml:"csvPath"`
	Encoding string `yaml:"encoding"`
}

// MetricsConfig enables the Datadog backend.
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	JobName    string   `yaml:"jobName"`
	Tags       string   `yaml:"tags"`
	FlushEvery Duration `yaml:"flushEvery"`
}

// LoggingConfig tunes the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration wraps time.Duration so YAML accepts "30s" style strings as well
// as bare integers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		v, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, perr)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return err
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads YAML from path (or $STAGING_LOADER_CONFIG when path is empty)
// and applies environment overrides. A missing file is not an error; the
// defaults plus environment must be enough to run against SQLite.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.fillDerived()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(inputDirEnv); v != "" {
		c.Loader.InputDir = v
	}
	if v := os.Getenv(dateDimPathEnv); v != "" {
		c.Calendar.CSVPath = v
	}
	// DSNs routinely embed ${VAR} secrets in checked-in config files.
	c.Database.DSN = os.Expand(c.Database.DSN, func(k string) string {
		return os.Getenv(k)
	})
}

func (c *Config) fillDerived() {
	if c.Loader.ProcessedDir == "" && c.Loader.InputDir != "" {
		c.Loader.ProcessedDir = subdir(c.Loader.InputDir, "processed")
	}
	if c.Loader.FailedDir == "" && c.Loader.InputDir != "" {
		c.Loader.FailedDir = subdir(c.Loader.InputDir, "failed")
	}
}

func subdir(dir, name string) string {
	dir = strings.TrimRight(dir, "/")
	return dir + "/" + name
}

func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{Kind: "sqlite", DSN: "file:staging.db"},
		Loader: LoaderConfig{
			InputDir: "./data/incoming",
		},
		Calendar: CalendarConfig{CSVPath: "./data/date_dim.csv"},
		Metrics:  MetricsConfig{JobName: "staging-loader"},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}
}
