// Package config provides configuration loading and validation for descinject.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/descinject/pkg/observability"
)

// Sentinel validation errors.
var (
	ErrEmptyName        = errors.New("container, marker and flag key must be set")
	ErrNoFactories      = errors.New("at least one factory name is required")
	ErrNoSuffixes       = errors.New("at least one include suffix is required")
	ErrInvalidParallel  = errors.New("parallelism must not be negative")
	ErrInvalidCacheSize = errors.New("provider cache size must be positive")
	ErrInvalidLogLevel  = errors.New("unknown log level")
	ErrInvalidLogFormat = errors.New("unknown log format")
	ErrInvalidSample    = errors.New("sample ratio must be within [0, 1]")
)

// EnvPrefix prefixes environment overrides, e.g. DESCINJECT_PLUGIN_DEBUG.
const EnvPrefix = "DESCINJECT"

// Config holds all configuration for descinject.
type Config struct {
	Plugin    PluginConfig    `mapstructure:"plugin"`
	Resolve   ResolveConfig   `mapstructure:"resolve"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// PluginConfig configures discovery and rewriting.
type PluginConfig struct {
	// Debug enables diagnostic logging.
	Debug bool `mapstructure:"debug"`

	ContainerName    string   `mapstructure:"container_name"`
	MarkerName       string   `mapstructure:"marker_name"`
	PackageSpecifier string   `mapstructure:"package_specifier"`
	FlagKey          string   `mapstructure:"flag_key"`
	FactoryNames     []string `mapstructure:"factory_names"`

	// IncludePrefix is an absolute path prefix; empty accepts every path.
	IncludePrefix   string   `mapstructure:"include_prefix"`
	IncludeSuffixes []string `mapstructure:"include_suffixes"`

	// Parallelism bounds concurrent candidate resolution; 0 or 1 is sequential.
	Parallelism       int `mapstructure:"parallelism"`
	ProviderCacheSize int `mapstructure:"provider_cache_size"`
}

// ResolveConfig configures the filesystem module resolver.
type ResolveConfig struct {
	// Aliases maps specifier prefixes to directories, e.g. "~/" -> "./src/".
	Aliases    map[string]string `mapstructure:"aliases"`
	Extensions []string          `mapstructure:"extensions"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Environment  string  `mapstructure:"environment"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// New returns a viper instance with defaults and environment overrides
// registered. Callers may bind command-line flags onto it before Load.
func New() *viper.Viper {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	viperCfg.SetEnvPrefix(EnvPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperCfg.AutomaticEnv()

	return viperCfg
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	return Load(New(), configPath)
}

// Load reads configPath (or descinject.yaml from the usual locations when
// empty) into viperCfg, validates the raw file against the embedded schema
// and returns the merged configuration.
func Load(viperCfg *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("descinject")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	if used := viperCfg.ConfigFileUsed(); used != "" && readErr == nil {
		schemaErr := ValidateFile(used)
		if schemaErr != nil {
			return nil, schemaErr
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

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	var config Config

	// Defaults alone always unmarshal and validate.
	_ = New().Unmarshal(&config)

	return &config
}

func setDefaults(viperCfg *viper.Viper) {
	// Plugin defaults.
	viperCfg.SetDefault("plugin.debug", false)
	viperCfg.SetDefault("plugin.container_name", DefaultContainerName)
	viperCfg.SetDefault("plugin.marker_name", DefaultMarkerName)
	viperCfg.SetDefault("plugin.package_specifier", DefaultPackageSpecifier)
	viperCfg.SetDefault("plugin.flag_key", DefaultFlagKey)
	viperCfg.SetDefault("plugin.factory_names", DefaultFactoryNames())
	viperCfg.SetDefault("plugin.include_prefix", "")
	viperCfg.SetDefault("plugin.include_suffixes", DefaultIncludeSuffixes())
	viperCfg.SetDefault("plugin.parallelism", DefaultParallelism)
	viperCfg.SetDefault("plugin.provider_cache_size", DefaultProviderCacheSize)

	// Resolver defaults.
	viperCfg.SetDefault("resolve.aliases", map[string]string{})
	viperCfg.SetDefault("resolve.extensions", DefaultResolveExtensions())

	// Logging defaults.
	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)
	viperCfg.SetDefault("logging.output", DefaultLogOutput)
	viperCfg.SetDefault("logging.max_size_mb", DefaultLogMaxSizeMB)
	viperCfg.SetDefault("logging.max_backups", DefaultLogMaxBackups)
	viperCfg.SetDefault("logging.max_age_days", DefaultLogMaxAgeDays)
	viperCfg.SetDefault("logging.compress", false)

	// Telemetry defaults.
	viperCfg.SetDefault("telemetry.environment", "")
	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.sample_ratio", 0.0)
}

func validateConfig(config *Config) error {
	p := config.Plugin

	if p.ContainerName == "" || p.MarkerName == "" || p.FlagKey == "" {
		return ErrEmptyName
	}

	if len(p.FactoryNames) == 0 {
		return ErrNoFactories
	}

	if len(p.IncludeSuffixes) == 0 {
		return ErrNoSuffixes
	}

	if p.Parallelism < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidParallel, p.Parallelism)
	}

	if p.ProviderCacheSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCacheSize, p.ProviderCacheSize)
	}

	switch strings.ToLower(config.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, config.Logging.Level)
	}

	switch config.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	if config.Telemetry.SampleRatio < 0 || config.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSample, config.Telemetry.SampleRatio)
	}

	return nil
}

// Observability converts the logging and telemetry sections into an
// observability.Config for the given mode.
func (c *Config) Observability(mode observability.AppMode, version string) observability.Config {
	obs := observability.DefaultConfig()
	obs.ServiceVersion = version
	obs.Environment = c.Telemetry.Environment
	obs.Mode = mode
	obs.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	obs.OTLPHeaders = observability.ParseOTLPHeaders(c.Telemetry.OTLPHeaders)
	obs.OTLPInsecure = c.Telemetry.OTLPInsecure
	obs.SampleRatio = c.Telemetry.SampleRatio
	obs.DebugTrace = c.Plugin.Debug
	obs.LogJSON = c.Logging.Format == "json"
	obs.LogOutput = c.Logging.Output
	obs.LogMaxSizeMB = c.Logging.MaxSizeMB
	obs.LogMaxBackups = c.Logging.MaxBackups
	obs.LogMaxAgeDays = c.Logging.MaxAgeDays
	obs.LogCompress = c.Logging.Compress

	// Level names were validated on load.
	_ = obs.LogLevel.UnmarshalText([]byte(c.Logging.Level))

	if c.Plugin.Debug {
		obs.LogLevel = slog.LevelDebug
	}

	return obs
}
