package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"lemonman/internal/common/fsutil"
)

// Config holds runtime parameters for the panel. Zero values mean
// "unspecified" and are replaced by ApplyDefaults. The struct is built once
// in main and passed by reference into the store, gateway and HTTP layers.
type Config struct {
	// Addr is the HTTP listen address of the panel, e.g. ":9000".
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
	// BaseURL is the upstream Lemonade Server base URL.
	BaseURL string `json:"base_url" yaml:"base_url" toml:"base_url"`
	// APIKey is an optional bearer credential attached to every upstream call.
	APIKey string `json:"api_key" yaml:"api_key" toml:"api_key"`

	// RecipeFile mirrors the upstream server's own per-model options file.
	RecipeFile string `json:"recipe_file" yaml:"recipe_file" toml:"recipe_file"`
	// PrefsFile stores panel-local preferences (the disabled-model list).
	PrefsFile string `json:"prefs_file" yaml:"prefs_file" toml:"prefs_file"`

	// Timeout tiers in seconds: light (health/stats/unload/delete),
	// load (model loading) and pull (downloads, can run for an hour).
	TimeoutLightSec int `json:"timeout_light_sec" yaml:"timeout_light_sec" toml:"timeout_light_sec"`
	TimeoutLoadSec  int `json:"timeout_load_sec" yaml:"timeout_load_sec" toml:"timeout_load_sec"`
	TimeoutPullSec  int `json:"timeout_pull_sec" yaml:"timeout_pull_sec" toml:"timeout_pull_sec"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`

	// CORS configuration (opt-in). If disabled, no CORS middleware is added.
	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
}

const (
	DefaultAddr       = ":9000"
	DefaultBaseURL    = "http://localhost:8000"
	DefaultRecipeFile = "~/.cache/lemonade/recipe_options.json"
	DefaultPrefsFile  = "manager_prefs.json"

	DefaultTimeoutLightSec = 10
	DefaultTimeoutLoadSec  = 120
	DefaultTimeoutPullSec  = 3600
)

// FromEnv builds a Config from the process environment. Env names are kept
// compatible with the original manager deployment.
func FromEnv() Config {
	var cfg Config
	if host, port := os.Getenv("MANAGER_HOST"), os.Getenv("MANAGER_PORT"); host != "" || port != "" {
		if port == "" {
			port = "9000"
		}
		cfg.Addr = host + ":" + port
	}
	cfg.BaseURL = os.Getenv("LEMONADE_BASE")
	cfg.APIKey = os.Getenv("LEMONADE_KEY")
	cfg.RecipeFile = os.Getenv("RECIPE_FILE")
	cfg.PrefsFile = os.Getenv("PREFS_FILE")
	cfg.TimeoutLightSec = envSeconds("TIMEOUT_LIGHT")
	cfg.TimeoutLoadSec = envSeconds("TIMEOUT_LOAD")
	cfg.TimeoutPullSec = envSeconds("TIMEOUT_PULL")
	cfg.LogLevel = os.Getenv("LEMONMAN_LOG_LEVEL")
	return cfg
}

// envSeconds parses an env var holding a duration in seconds. Fractional
// values are accepted for compatibility and truncated.
func envSeconds(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
		return int(f)
	}
	return 0
}

// Overlay fills zero fields of c from other. Later sources (env, flags) win
// by being applied to c before calling Overlay with earlier sources (file).
func (c *Config) Overlay(other Config) {
	if c.Addr == "" {
		c.Addr = other.Addr
	}
	if c.BaseURL == "" {
		c.BaseURL = other.BaseURL
	}
	if c.APIKey == "" {
		c.APIKey = other.APIKey
	}
	if c.RecipeFile == "" {
		c.RecipeFile = other.RecipeFile
	}
	if c.PrefsFile == "" {
		c.PrefsFile = other.PrefsFile
	}
	if c.TimeoutLightSec == 0 {
		c.TimeoutLightSec = other.TimeoutLightSec
	}
	if c.TimeoutLoadSec == 0 {
		c.TimeoutLoadSec = other.TimeoutLoadSec
	}
	if c.TimeoutPullSec == 0 {
		c.TimeoutPullSec = other.TimeoutPullSec
	}
	if c.LogLevel == "" {
		c.LogLevel = other.LogLevel
	}
	if !c.CORSEnabled {
		c.CORSEnabled = other.CORSEnabled
		if len(c.CORSAllowedOrigins) == 0 {
			c.CORSAllowedOrigins = other.CORSAllowedOrigins
		}
	}
}

// ApplyDefaults fills remaining zero fields and expands '~' in file paths.
func (c *Config) ApplyDefaults() error {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.RecipeFile == "" {
		c.RecipeFile = DefaultRecipeFile
	}
	if c.PrefsFile == "" {
		c.PrefsFile = DefaultPrefsFile
	}
	if c.TimeoutLightSec == 0 {
		c.TimeoutLightSec = DefaultTimeoutLightSec
	}
	if c.TimeoutLoadSec == 0 {
		c.TimeoutLoadSec = DefaultTimeoutLoadSec
	}
	if c.TimeoutPullSec == 0 {
		c.TimeoutPullSec = DefaultTimeoutPullSec
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	var err error
	if c.RecipeFile, err = fsutil.ExpandHome(c.RecipeFile); err != nil {
		return fmt.Errorf("recipe file: %w", err)
	}
	if c.PrefsFile, err = fsutil.ExpandHome(c.PrefsFile); err != nil {
		return fmt.Errorf("prefs file: %w", err)
	}
	return nil
}

// LightTimeout is the deadline for health/stats/unload/delete calls.
func (c *Config) LightTimeout() time.Duration {
	return time.Duration(c.TimeoutLightSec) * time.Second
}

// LoadTimeout is the deadline for model load calls.
func (c *Config) LoadTimeout() time.Duration {
	return time.Duration(c.TimeoutLoadSec) * time.Second
}

// PullTimeout is the deadline for streamed pull relays.
func (c *Config) PullTimeout() time.Duration {
	return time.Duration(c.TimeoutPullSec) * time.Second
}
