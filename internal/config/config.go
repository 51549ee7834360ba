package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the application configuration
type Config struct {
	API    APIConfig    `yaml:"api"`
	Apply  ApplyConfig  `yaml:"apply"`
	Ledger LedgerConfig `yaml:"ledger"`
	Log    LogConfig    `yaml:"log"`
}

// APIConfig contains Vultr API connection settings
type APIConfig struct {
	Endpoint      string   `yaml:"endpoint"`
	Key           string   `yaml:"api_key"`
	Timeout       Duration `yaml:"timeout"`         // Per-request timeout
	Retries       int      `yaml:"retries"`         // Max attempts per request, including the first
	RetryMaxDelay Duration `yaml:"retry_max_delay"` // Cap for 429 backoff
	RateLimitRPS  float64  `yaml:"rate_limit_rps"`  // Client-side limit, 0 = unlimited
	UserAgent     string   `yaml:"user_agent"`
}

// ApplyConfig contains manifest apply settings
type ApplyConfig struct {
	Parallel int `yaml:"parallel"` // Resources reconciled concurrently
}

// LedgerConfig contains audit ledger settings
type LedgerConfig struct {
	Path          string `yaml:"path"` // Empty disables the ledger
	RetentionDays int    `yaml:"retention_days"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors bool   `yaml:"colors"`
}

// Environment variables consulted after the config file.
const (
	EnvEndpoint      = "VULTR_API_ENDPOINT"
	EnvKey           = "VULTR_API_KEY"
	EnvTimeout       = "VULTR_API_TIMEOUT"
	EnvRetries       = "VULTR_API_RETRIES"
	EnvRetryMaxDelay = "VULTR_API_RETRY_MAX_DELAY"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Endpoint:      "https://api.vultr.com/v2",
			Timeout:       Duration(60 * time.Second),
			Retries:       5,
			RetryMaxDelay: Duration(12 * time.Second),
			RateLimitRPS:  20,
		},
		Apply: ApplyConfig{
			Parallel: 4,
		},
		Ledger: LedgerConfig{
			RetentionDays: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Colors: true,
		},
	}
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
// Bare integers are seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Seconds returns the duration in whole seconds
func (d Duration) Seconds() int {
	return int(time.Duration(d) / time.Second)
}

// ParseDuration parses "90s"-style durations or a bare number of seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Load reads and parses the configuration file, then applies environment
// overrides. Fields missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides API settings from VULTR_API_* variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvEndpoint); v != "" {
		c.API.Endpoint = v
	}
	if v := os.Getenv(EnvKey); v != "" {
		c.API.Key = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.API.Timeout = Duration(d)
	}
	if v := os.Getenv(EnvRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRetries, err)
		}
		c.API.Retries = n
	}
	if v := os.Getenv(EnvRetryMaxDelay); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRetryMaxDelay, err)
		}
		c.API.RetryMaxDelay = Duration(d)
	}
	return nil
}

// Validate checks settings that must hold before any API call.
func (c *Config) Validate() error {
	switch {
	case c.API.Key == "":
		return fmt.Errorf("%w: api key is required (set api.api_key, %s or --api-key)", ErrInvalidConfig, EnvKey)
	case c.API.Endpoint == "":
		return fmt.Errorf("%w: api endpoint is empty", ErrInvalidConfig)
	case c.API.Retries < 1:
		return fmt.Errorf("%w: api retries must be at least 1, got %d", ErrInvalidConfig, c.API.Retries)
	case c.API.Timeout <= 0:
		return fmt.Errorf("%w: api timeout must be positive", ErrInvalidConfig)
	case c.API.RetryMaxDelay < 0:
		return fmt.Errorf("%w: api retry max delay must not be negative", ErrInvalidConfig)
	case c.API.RateLimitRPS < 0:
		return fmt.Errorf("%w: api rate limit must not be negative", ErrInvalidConfig)
	case c.Apply.Parallel < 1:
		return fmt.Errorf("%w: apply parallel must be at least 1, got %d", ErrInvalidConfig, c.Apply.Parallel)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Log.Level)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// ExpandEnv expands environment variables in the format ${VAR} or ${VAR:default}
func ExpandEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
