// ABOUTME: Configuration loading and parsing for loom
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete loom configuration
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Tools      ToolsConfig      `yaml:"tools"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// GatewayConfig holds outbound HTTP configuration
type GatewayConfig struct {
	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// DispatcherConfig holds tool execution configuration
type DispatcherConfig struct {
	InvokeTimeout time.Duration `yaml:"-"`

	InvokeTimeoutRaw string `yaml:"invoke_timeout"`
}

// ToolsConfig holds per-tool configuration
type ToolsConfig struct {
	Weather       WeatherConfig       `yaml:"weather"`
	KnowledgeBase KnowledgeBaseConfig `yaml:"knowledge_base"`
}

// WeatherConfig holds the weather tool's forecast service settings.
// The coordinates are the default query location.
type WeatherConfig struct {
	Endpoint  string  `yaml:"endpoint"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// KnowledgeBaseConfig points at a TOML article file. Empty means the
// built-in default article set.
type KnowledgeBaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "loom.db"},
		Gateway:  GatewayConfig{Timeout: 5 * time.Second},
		Dispatcher: DispatcherConfig{
			InvokeTimeout: 10 * time.Second,
		},
		Tools: ToolsConfig{
			Weather: WeatherConfig{
				Endpoint:  "https://api.open-meteo.com/v1/forecast",
				Latitude:  40,
				Longitude: -74,
			},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values and unset fields
// fall back to Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Tools.Weather.Endpoint == "" {
		return fmt.Errorf("tools.weather.endpoint is required")
	}
	if c.Tools.Weather.Latitude < -90 || c.Tools.Weather.Latitude > 90 {
		return fmt.Errorf("tools.weather.latitude must be between -90 and 90")
	}
	if c.Tools.Weather.Longitude < -180 || c.Tools.Weather.Longitude > 180 {
		return fmt.Errorf("tools.weather.longitude must be between -180 and 180")
	}
	if c.Gateway.Timeout < 0 || c.Dispatcher.InvokeTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Gateway.TimeoutRaw != "" {
		cfg.Gateway.Timeout, err = time.ParseDuration(cfg.Gateway.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing gateway.timeout %q: %w", cfg.Gateway.TimeoutRaw, err)
		}
	}

	if cfg.Dispatcher.InvokeTimeoutRaw != "" {
		cfg.Dispatcher.InvokeTimeout, err = time.ParseDuration(cfg.Dispatcher.InvokeTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing dispatcher.invoke_timeout %q: %w", cfg.Dispatcher.InvokeTimeoutRaw, err)
		}
	}

	return nil
}

// applyDefaults fills unset fields from Default
func applyDefaults(cfg *Config) {
	def := Default()

	if cfg.Database.Path == "" {
		cfg.Database.Path = def.Database.Path
	}
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = def.Gateway.Timeout
	}
	if cfg.Dispatcher.InvokeTimeout == 0 {
		cfg.Dispatcher.InvokeTimeout = def.Dispatcher.InvokeTimeout
	}
	if cfg.Tools.Weather.Endpoint == "" {
		cfg.Tools.Weather = def.Tools.Weather
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
}
