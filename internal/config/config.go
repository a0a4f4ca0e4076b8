// Package config loads local-voice-mcp settings from the YAML config file,
// LOCAL_VOICE_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// AppName is used for directories, the config file and the env prefix.
const AppName = "local-voice-mcp"

// Config contains every setting.
type Config struct {
	Engine      string
	Python      string
	OutputDir   string
	CacheDir    string
	AutoInstall bool

	Synthesis SynthesisConfig
	Text      TextConfig
	Cache     CacheConfig
	Playback  PlaybackConfig
	Janitor   JanitorConfig
	HTTP      HTTPConfig
	Log       LogConfig
}

// SynthesisConfig bounds synthesis work.
type SynthesisConfig struct {
	Timeout       time.Duration
	MaxConcurrent int
}

// TextConfig controls input preprocessing.
type TextConfig struct {
	StripMarkdown bool
}

// CacheConfig controls the synthesis cache.
type CacheConfig struct {
	Enabled   bool
	MaxSizeMB int
}

// PlaybackConfig controls the external player.
type PlaybackConfig struct {
	Timeout time.Duration
}

// JanitorConfig controls the stale artifact sweep.
type JanitorConfig struct {
	Schedule string
	MaxAge   time.Duration
}

// HTTPConfig controls the HTTP API.
type HTTPConfig struct {
	Addr                 string
	APIKey               string
	RateLimit            float64
	RateBurst            int
	AllowUnauthenticated bool
	ShutdownTimeout      time.Duration
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string
	Format string
	File   string
}

// DefaultConfig returns a Config with the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Engine:      "chatterbox",
		Python:      "auto",
		OutputDir:   filepath.Join(os.TempDir(), AppName),
		CacheDir:    defaultCacheDir(),
		AutoInstall: true,
		Synthesis: SynthesisConfig{
			Timeout:       5 * time.Minute,
			MaxConcurrent: 2,
		},
		Cache: CacheConfig{
			Enabled:   true,
			MaxSizeMB: 256,
		},
		Playback: PlaybackConfig{
			Timeout: 2 * time.Minute,
		},
		Janitor: JanitorConfig{
			Schedule: "@every 10m",
			MaxAge:   30 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr:            "127.0.0.1:59125",
			RateLimit:       2,
			RateBurst:       5,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName+"-cache")
	}
	return filepath.Join(dir, AppName)
}

// SetDefaults registers every default with v.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("engine", d.Engine)
	v.SetDefault("python", d.Python)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("auto_install", d.AutoInstall)

	v.SetDefault("synthesis.timeout", d.Synthesis.Timeout.String())
	v.SetDefault("synthesis.max_concurrent", d.Synthesis.MaxConcurrent)
	v.SetDefault("text.strip_markdown", d.Text.StripMarkdown)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.max_size_mb", d.Cache.MaxSizeMB)
	v.SetDefault("playback.timeout", d.Playback.Timeout.String())
	v.SetDefault("janitor.schedule", d.Janitor.Schedule)
	v.SetDefault("janitor.max_age", d.Janitor.MaxAge.String())

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.api_key", "")
	v.SetDefault("http.rate_limit", d.HTTP.RateLimit)
	v.SetDefault("http.rate_burst", d.HTTP.RateBurst)
	v.SetDefault("http.allow_unauthenticated", d.HTTP.AllowUnauthenticated)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout.String())

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", "")
}

// Load reads the settings from v, expands ~ in paths and validates the result.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Engine:      strings.TrimSpace(v.GetString("engine")),
		Python:      v.GetString("python"),
		OutputDir:   v.GetString("output_dir"),
		CacheDir:    v.GetString("cache_dir"),
		AutoInstall: v.GetBool("auto_install"),
		Synthesis: SynthesisConfig{
			Timeout:       v.GetDuration("synthesis.timeout"),
			MaxConcurrent: v.GetInt("synthesis.max_concurrent"),
		},
		Text: TextConfig{
			StripMarkdown: v.GetBool("text.strip_markdown"),
		},
		Cache: CacheConfig{
			Enabled:   v.GetBool("cache.enabled"),
			MaxSizeMB: v.GetInt("cache.max_size_mb"),
		},
		Playback: PlaybackConfig{
			Timeout: v.GetDuration("playback.timeout"),
		},
		Janitor: JanitorConfig{
			Schedule: v.GetString("janitor.schedule"),
			MaxAge:   v.GetDuration("janitor.max_age"),
		},
		HTTP: HTTPConfig{
			Addr:                 v.GetString("http.addr"),
			APIKey:               v.GetString("http.api_key"),
			RateLimit:            v.GetFloat64("http.rate_limit"),
			RateBurst:            v.GetInt("http.rate_burst"),
			AllowUnauthenticated: v.GetBool("http.allow_unauthenticated"),
			ShutdownTimeout:      v.GetDuration("http.shutdown_timeout"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
			File:   v.GetString("log.file"),
		},
	}

	var err error
	for _, p := range []*string{&cfg.OutputDir, &cfg.CacheDir, &cfg.Log.File} {
		if *p, err = ExpandPath(*p); err != nil {
			return cfg, err
		}
	}
	if cfg.Python != "auto" {
		if cfg.Python, err = ExpandPath(cfg.Python); err != nil {
			return cfg, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ExpandPath expands a leading ~ and environment variables.
func ExpandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(os.ExpandEnv(p))
	if err != nil {
		return "", fmt.Errorf("unable to expand %q: %w", p, err)
	}
	return expanded, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir must not be empty"))
	}
	if c.CacheDir == "" {
		errs = append(errs, errors.New("cache_dir must not be empty"))
	}
	if c.Synthesis.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("synthesis.timeout must be positive, got %s", c.Synthesis.Timeout))
	}
	if c.Synthesis.MaxConcurrent < 1 || c.Synthesis.MaxConcurrent > 32 {
		errs = append(errs, fmt.Errorf("synthesis.max_concurrent must be between 1 and 32, got %d", c.Synthesis.MaxConcurrent))
	}
	if c.Cache.MaxSizeMB < 1 || c.Cache.MaxSizeMB > 10000 {
		errs = append(errs, fmt.Errorf("cache.max_size_mb must be between 1 and 10000, got %d", c.Cache.MaxSizeMB))
	}
	if c.Playback.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("playback.timeout must be positive, got %s", c.Playback.Timeout))
	}
	if c.Janitor.MaxAge <= 0 {
		errs = append(errs, fmt.Errorf("janitor.max_age must be positive, got %s", c.Janitor.MaxAge))
	}
	if c.HTTP.RateLimit <= 0 || c.HTTP.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("http.rate_limit and http.rate_burst must be positive, got %v and %d", c.HTTP.RateLimit, c.HTTP.RateBurst))
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http.shutdown_timeout must be positive, got %s", c.HTTP.ShutdownTimeout))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be auto, text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
