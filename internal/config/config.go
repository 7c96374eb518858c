// Package config loads the service connection settings from an optional
// YAML file with environment overrides.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/decklab/cardbase/internal/cardapi"
)

// Config is the full runtime configuration. Every field has either a
// working default or a startup validation error; nothing is discovered
// lazily at call time.
type Config struct {
	// Service holds the connection and credential settings.
	Service ServiceConfig `yaml:"service"`

	// Retry tunes the transient-failure retry schedule.
	Retry RetryConfig `yaml:"retry"`

	// Pagination bounds collection traversal.
	Pagination PaginationConfig `yaml:"pagination"`

	// Journal configures the local call journal.
	Journal JournalConfig `yaml:"journal"`

	// Logging configures diagnostic output.
	Logging LoggingConfig `yaml:"logging"`
}

// ServiceConfig identifies the remote card service and how to
// authenticate against it. Either APIKey or the Username/Password pair
// must be present.
type ServiceConfig struct {
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`

	// ExpiryBufferSeconds is how long before token expiry a refresh is
	// forced. Zero means the client default.
	ExpiryBufferSeconds int `yaml:"expiry_buffer_seconds"`

	// KeySetTTLSeconds is how long the published key set is cached.
	KeySetTTLSeconds int `yaml:"key_set_ttl_seconds"`

	// VerifySignatures enables local verification of issued tokens.
	VerifySignatures bool `yaml:"verify_signatures"`

	// TimeoutSeconds bounds a single HTTP attempt. Zero means the
	// client default.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// RetryConfig bounds the executor's retry behavior.
type RetryConfig struct {
	MaxRetries       int `yaml:"max_retries"`
	BaseDelaySeconds int `yaml:"base_delay_seconds"`
}

// PaginationConfig bounds collection traversal.
type PaginationConfig struct {
	MaxPages     int `yaml:"max_pages"`
	MaxPageLimit int `yaml:"max_page_limit"`
}

// JournalConfig configures the local sqlite call journal. An empty path
// disables journaling.
type JournalConfig struct {
	Path       string `yaml:"path"`
	MaxEntries int    `yaml:"max_entries"`
}

// LoggingConfig configures diagnostic output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfigPaths are searched in order when no explicit path is
// given.
var DefaultConfigPaths = []string{
	"./cardbase.yaml",
	"./cardbase.yml",
	"~/.config/cardbase/config.yaml",
	"/etc/cardbase/config.yaml",
}

// Load reads the configuration from path (or the default locations when
// path is empty), applies CARDBASE_* environment overrides, and
// validates the result. Missing credential material is a configuration
// error here, at startup, not at first call.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "info"},
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, cardapi.NewConfigError("read config file %s: %v", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, cardapi.NewConfigError("parse config file %s: %v", path, err)
		}
		log.Debug().Str("path", path).Msg("[config] loaded configuration file")
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays CARDBASE_* environment variables. Environment wins
// over the file so deployments can override without editing it.
func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				log.Warn().Str("var", key).Str("value", v).Msg("[config] ignoring non-numeric environment override")
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				log.Warn().Str("var", key).Str("value", v).Msg("[config] ignoring non-boolean environment override")
				return
			}
			*dst = b
		}
	}

	setString("CARDBASE_BASE_URL", &cfg.Service.BaseURL)
	setString("CARDBASE_API_KEY", &cfg.Service.APIKey)
	setString("CARDBASE_USERNAME", &cfg.Service.Username)
	setString("CARDBASE_PASSWORD", &cfg.Service.Password)
	setString("CARDBASE_ROLE", &cfg.Service.Role)
	setBool("CARDBASE_VERIFY_SIGNATURES", &cfg.Service.VerifySignatures)
	setInt("CARDBASE_TIMEOUT_SECONDS", &cfg.Service.TimeoutSeconds)
	setInt("CARDBASE_MAX_RETRIES", &cfg.Retry.MaxRetries)
	setInt("CARDBASE_MAX_PAGES", &cfg.Pagination.MaxPages)
	setString("CARDBASE_JOURNAL_PATH", &cfg.Journal.Path)
	setString("CARDBASE_LOG_LEVEL", &cfg.Logging.Level)
}

// validate rejects configurations that cannot produce a working client.
func (c *Config) validate() error {
	if strings.TrimSpace(c.Service.BaseURL) == "" {
		return cardapi.NewConfigError("service.base_url is required (or set CARDBASE_BASE_URL)")
	}
	hasKey := strings.TrimSpace(c.Service.APIKey) != ""
	hasPair := strings.TrimSpace(c.Service.Username) != "" && c.Service.Password != ""
	if !hasKey && !hasPair {
		return cardapi.NewConfigError("credentials are required: set service.api_key or service.username/password")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return cardapi.NewConfigError("logging.level %q is not one of: debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// ExpiryBuffer returns the configured expiry buffer as a duration, zero
// when unset.
func (c *Config) ExpiryBuffer() time.Duration {
	return time.Duration(c.Service.ExpiryBufferSeconds) * time.Second
}

// KeySetTTL returns the configured key-set cache TTL, zero when unset.
func (c *Config) KeySetTTL() time.Duration {
	return time.Duration(c.Service.KeySetTTLSeconds) * time.Second
}

// BaseDelay returns the configured retry base delay, zero when unset.
func (c *Config) BaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelaySeconds) * time.Second
}

// findConfigFile returns the first default path that exists, expanding
// a leading "~/".
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	for _, p := range DefaultConfigPaths {
		if strings.HasPrefix(p, "~/") && home != "" {
			p = home + p[1:]
		}
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}
