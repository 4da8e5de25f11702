// Package config loads githarvest configuration from a YAML file and
// GITHARVEST_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidExecutor     = errors.New("unknown executor kind")
	ErrInvalidWorkers      = errors.New("executor workers must not be negative")
	ErrInvalidBlameMode    = errors.New("unknown blame mode")
	ErrInvalidBlameTimeout = errors.New("blame timeout must be positive")
	ErrInvalidWindow       = errors.New("window days must not be negative")
	ErrInvalidTabSize      = errors.New("tab size must be positive")
	ErrInvalidLogLevel     = errors.New("unknown log level")
	ErrInvalidSampleRatio  = errors.New("sample ratio must be within [0, 1]")
)

const (
	envPrefix      = "GITHARVEST"
	configName     = ".githarvest"
	configType     = "yaml"
	maxSampleRatio = 1.0
)

// Config holds all githarvest configuration.
type Config struct {
	Extract    ExtractConfig    `mapstructure:"extract"`
	Executor   ExecutorConfig   `mapstructure:"executor"`
	Blame      BlameConfig      `mapstructure:"blame"`
	Sink       SinkConfig       `mapstructure:"sink"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ExtractConfig controls what is extracted.
type ExtractConfig struct {
	RepoID       int64    `mapstructure:"repo_id"`
	Ignore       []string `mapstructure:"ignore"`
	IgnoreVendor bool     `mapstructure:"ignore_vendor"`
	WindowDays   int      `mapstructure:"window_days"`
	TabSize      int      `mapstructure:"tab_size"`
}

// ExecutorConfig selects the execution strategy.
type ExecutorConfig struct {
	Kind    string `mapstructure:"kind"`
	Workers int    `mapstructure:"workers"`
}

// BlameConfig selects the blame implementation.
type BlameConfig struct {
	Mode    string        `mapstructure:"mode"`
	Timeout time.Duration `mapstructure:"timeout"`
	Binary  string        `mapstructure:"binary"`
}

// SinkConfig names the output. URL is "-" (stdout), a file path, or a
// sqlite:/// or postgres:// database URL.
type SinkConfig struct {
	URL string `mapstructure:"url"`
	LZ4 bool   `mapstructure:"lz4"`
}

// CheckpointConfig controls reference state persistence between runs.
type CheckpointConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// TelemetryConfig controls OpenTelemetry export and the Prometheus endpoint.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	Environment  string  `mapstructure:"environment"`
	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// SlogLevel parses Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(l.Level))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, l.Level)
	}

	return level, nil
}

// LoadConfig reads configPath, or .githarvest.yaml from the working or home
// directory when configPath is empty, then applies GITHARVEST_* environment
// overrides (GITHARVEST_EXECUTOR_WORKERS=8).
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	readErr := v.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config file: %w", readErr)
		}
	}

	var cfg Config

	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Extract: ExtractConfig{
			IgnoreVendor: DefaultIgnoreVendor,
			WindowDays:   DefaultWindowDays,
			TabSize:      DefaultTabSize,
		},
		Executor:   ExecutorConfig{Kind: DefaultExecutorKind, Workers: DefaultExecutorWorkers},
		Blame:      BlameConfig{Mode: DefaultBlameMode, Timeout: DefaultBlameTimeout, Binary: DefaultBlameBinary},
		Sink:       SinkConfig{URL: DefaultSinkURL, LZ4: DefaultSinkLZ4},
		Checkpoint: CheckpointConfig{Enabled: DefaultCheckpointEnabled, Dir: DefaultCheckpointDir},
		Logging:    LoggingConfig{Level: DefaultLogLevel, JSON: DefaultLogJSON},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("extract.repo_id", d.Extract.RepoID)
	v.SetDefault("extract.ignore", []string{})
	v.SetDefault("extract.ignore_vendor", d.Extract.IgnoreVendor)
	v.SetDefault("extract.window_days", d.Extract.WindowDays)
	v.SetDefault("extract.tab_size", d.Extract.TabSize)

	v.SetDefault("executor.kind", d.Executor.Kind)
	v.SetDefault("executor.workers", d.Executor.Workers)

	v.SetDefault("blame.mode", d.Blame.Mode)
	v.SetDefault("blame.timeout", d.Blame.Timeout)
	v.SetDefault("blame.binary", d.Blame.Binary)

	v.SetDefault("sink.url", d.Sink.URL)
	v.SetDefault("sink.lz4", d.Sink.LZ4)

	v.SetDefault("checkpoint.enabled", d.Checkpoint.Enabled)
	v.SetDefault("checkpoint.dir", d.Checkpoint.Dir)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.json", d.Logging.JSON)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_headers", "")
	v.SetDefault("telemetry.otlp_insecure", false)
	v.SetDefault("telemetry.sample_ratio", 0.0)
	v.SetDefault("telemetry.environment", "")
	v.SetDefault("telemetry.metrics_addr", "")
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Executor.Kind {
	case ExecutorSequential, ExecutorPool:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidExecutor, c.Executor.Kind)
	}

	if c.Executor.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Executor.Workers)
	}

	switch c.Blame.Mode {
	case BlameProcess, BlameNative:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBlameMode, c.Blame.Mode)
	}

	if c.Blame.Timeout <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidBlameTimeout, c.Blame.Timeout)
	}

	if c.Extract.WindowDays < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWindow, c.Extract.WindowDays)
	}

	if c.Extract.TabSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTabSize, c.Extract.TabSize)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > maxSampleRatio {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, c.Telemetry.SampleRatio)
	}

	_, err := c.Logging.SlogLevel()

	return err
}
