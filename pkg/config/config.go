// Package config loads designmap's application configuration from a YAML
// file and DESIGNMAP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/designmap/pkg/cache"
	"github.com/Sumatoshi-tech/designmap/pkg/generate"
	"github.com/Sumatoshi-tech/designmap/pkg/heuristics"
	"github.com/Sumatoshi-tech/designmap/pkg/mapping"
	"github.com/Sumatoshi-tech/designmap/pkg/observability"
	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
	"github.com/Sumatoshi-tech/designmap/pkg/validate"
)

// Sentinel validation errors.
var (
	ErrInvalidPort        = errors.New("invalid server port")
	ErrInvalidMaxBody     = errors.New("invalid server max body size")
	ErrInvalidBackend     = errors.New("invalid cache backend")
	ErrInvalidWorkers     = errors.New("pipeline workers must not be negative")
	ErrInvalidAttempts    = errors.New("pipeline max attempts must be positive")
	ErrInvalidLogFormat   = errors.New("invalid log format")
	ErrInvalidSampleRatio = errors.New("sample ratio must be between 0 and 1")
	ErrInvalidThreshold   = errors.New("validation threshold must be between 0 and 1")
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

const (
	envPrefix  = "DESIGNMAP"
	configName = "designmap"
	maxPort    = 65535
)

// Config holds all configuration for designmap.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Cache         cache.Config        `mapstructure:"cache"`
	Pipeline      pipeline.Config     `mapstructure:"pipeline"`
	Generate      GenerateConfig      `mapstructure:"generate"`
	Validate      validate.Config     `mapstructure:"validate"`
	Analysis      AnalysisConfig      `mapstructure:"analysis"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	MaxBody      string        `mapstructure:"max_body"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	Port         int           `mapstructure:"port"`
}

// Addr returns host:port.
func (server ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", server.Host, server.Port)
}

// MaxBodyBytes parses MaxBody ("32MB", "512KiB").
func (server ServerConfig) MaxBodyBytes() (int64, error) {
	size, err := humanize.ParseBytes(server.MaxBody)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidMaxBody, err)
	}

	return int64(size), nil
}

// GenerateConfig enables and configures the Gemini generator.
type GenerateConfig struct {
	generate.Config `mapstructure:",squash"`

	Enabled bool `mapstructure:"enabled"`
}

// AnalysisConfig points at the heuristic and slot schema files. Empty paths
// use the built-in defaults.
type AnalysisConfig struct {
	Heuristics string `mapstructure:"heuristics"`
	Schemas    string `mapstructure:"schemas"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObservabilityConfig holds telemetry export configuration.
type ObservabilityConfig struct {
	Environment  string  `mapstructure:"environment"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	Prometheus   bool    `mapstructure:"prometheus"`
}

// LoadConfig loads configuration from configPath, or from designmap.yaml in
// the working directory, ./config or /etc/designmap when configPath is
// empty. Environment variables override the file.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/designmap")
	}

	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("server.host", DefaultServerHost)
	viperCfg.SetDefault("server.port", DefaultServerPort)
	viperCfg.SetDefault("server.max_body", DefaultServerMaxBody)
	viperCfg.SetDefault("server.read_timeout", DefaultServerReadTimeout)
	viperCfg.SetDefault("server.write_timeout", DefaultServerWriteTimeout)
	viperCfg.SetDefault("server.idle_timeout", DefaultServerIdleTimeout)

	viperCfg.SetDefault("cache.backend", DefaultCacheBackend)
	viperCfg.SetDefault("cache.path", "")
	viperCfg.SetDefault("cache.dsn", "")
	viperCfg.SetDefault("cache.front_size", DefaultCacheFrontSize)
	viperCfg.SetDefault("cache.s3.endpoint", "")
	viperCfg.SetDefault("cache.s3.region", "")
	viperCfg.SetDefault("cache.s3.access_key", "")
	viperCfg.SetDefault("cache.s3.secret_key", "")
	viperCfg.SetDefault("cache.s3.bucket", "")
	viperCfg.SetDefault("cache.s3.prefix", "")
	viperCfg.SetDefault("cache.s3.use_ssl", true)

	viperCfg.SetDefault("pipeline.workers", DefaultPipelineWorkers)
	viperCfg.SetDefault("pipeline.include_nested", DefaultPipelineIncludeNested)
	viperCfg.SetDefault("pipeline.max_attempts", DefaultPipelineMaxAttempts)
	viperCfg.SetDefault("pipeline.initial_interval", DefaultPipelineInitialInterval)
	viperCfg.SetDefault("pipeline.max_interval", DefaultPipelineMaxInterval)
	viperCfg.SetDefault("pipeline.max_elapsed", DefaultPipelineMaxElapsed)
	viperCfg.SetDefault("pipeline.call_timeout", DefaultPipelineCallTimeout)

	viperCfg.SetDefault("generate.enabled", DefaultGenerateEnabled)
	viperCfg.SetDefault("generate.api_key", "")
	viperCfg.SetDefault("generate.model", DefaultGenerateModel)
	viperCfg.SetDefault("generate.temperature", DefaultGenerateTemperature)

	viperCfg.SetDefault("validate.endpoint", "")
	viperCfg.SetDefault("validate.token", "")
	viperCfg.SetDefault("validate.timeout", DefaultValidateTimeout)
	viperCfg.SetDefault("validate.threshold", 0.0)

	viperCfg.SetDefault("analysis.heuristics", "")
	viperCfg.SetDefault("analysis.schemas", "")

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	viperCfg.SetDefault("observability.environment", "")
	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_headers", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
	viperCfg.SetDefault("observability.sample_ratio", 0.0)
	viperCfg.SetDefault("observability.prometheus", DefaultPrometheus)
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, config.Server.Port)
	}

	_, err := config.Server.MaxBodyBytes()
	if err != nil {
		return err
	}

	backends := []string{cache.BackendMemory, cache.BackendDisk, cache.BackendSQLite, cache.BackendPostgres, cache.BackendS3}
	if !slices.Contains(backends, config.Cache.Backend) {
		return fmt.Errorf("%w: %q", ErrInvalidBackend, config.Cache.Backend)
	}

	if config.Pipeline.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, config.Pipeline.Workers)
	}

	if config.Pipeline.MaxAttempts == 0 {
		return ErrInvalidAttempts
	}

	if config.Logging.Format != LogFormatText && config.Logging.Format != LogFormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	if config.Observability.SampleRatio < 0 || config.Observability.SampleRatio > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidSampleRatio, config.Observability.SampleRatio)
	}

	if config.Validate.Threshold < 0 || config.Validate.Threshold > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidThreshold, config.Validate.Threshold)
	}

	return nil
}

// ObservabilityConfig builds the telemetry configuration for mode.
func (config *Config) ObservabilityConfig(mode observability.AppMode, version string) observability.Config {
	obs := observability.DefaultConfig()
	obs.ServiceVersion = version
	obs.Environment = config.Observability.Environment
	obs.Mode = mode
	obs.OTLPEndpoint = config.Observability.OTLPEndpoint
	obs.OTLPHeaders = observability.ParseOTLPHeaders(config.Observability.OTLPHeaders)
	obs.OTLPInsecure = config.Observability.OTLPInsecure
	obs.SampleRatio = config.Observability.SampleRatio
	obs.Prometheus = config.Observability.Prometheus && mode == observability.ModeServe
	obs.LogLevel = observability.ParseLevel(config.Logging.Level)
	obs.LogJSON = config.Logging.Format == LogFormatJSON

	return obs
}

// LoadHeuristics returns the heuristic configuration named by
// Analysis.Heuristics, or the defaults.
func (config *Config) LoadHeuristics() (*heuristics.Config, error) {
	if config.Analysis.Heuristics == "" {
		return heuristics.Default(), nil
	}

	loaded, err := heuristics.Load(config.Analysis.Heuristics)
	if err != nil {
		return nil, fmt.Errorf("load heuristics %s: %w", config.Analysis.Heuristics, err)
	}

	return loaded, nil
}

// LoadSchemas returns the slot schemas named by Analysis.Schemas, or the
// defaults.
func (config *Config) LoadSchemas() ([]mapping.Schema, error) {
	if config.Analysis.Schemas == "" {
		return mapping.DefaultSchemas(), nil
	}

	loaded, err := mapping.LoadSchemas(config.Analysis.Schemas)
	if err != nil {
		return nil, fmt.Errorf("load schemas %s: %w", config.Analysis.Schemas, err)
	}

	return loaded, nil
}
