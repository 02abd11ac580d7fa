// Package config loads the settings of the settle command line tool from
// defaults, an optional config file, SETTLE_* environment variables and
// command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/petrijr/settle/pkg/api"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SETTLE"

// Config holds the CLI settings.
type Config struct {
	Concurrency int           `mapstructure:"concurrency" validate:"gte=1"`
	Attempts    int           `mapstructure:"attempts" validate:"gte=0"`
	Delay       time.Duration `mapstructure:"delay" validate:"gte=0"`
	OmitResult  bool          `mapstructure:"omit_result"`

	// Timeout bounds each attempt of the per-item command. Zero means none.
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`

	// Format is the output encoding of results and history.
	Format   string `mapstructure:"format" validate:"oneof=json yaml"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	// History selects a history sink: "", "memory", "sqlite:PATH" or
	// "redis://HOST:PORT[/DB]".
	History string `mapstructure:"history" validate:"omitempty,history"`

	// Shell runs the per-item command as `Shell -c CMD _ ITEM`.
	Shell string `mapstructure:"shell" validate:"required"`
}

// flagKeys maps config keys to the flag names that override them.
var flagKeys = map[string]string{
	"concurrency": "concurrency",
	"attempts":    "attempts",
	"delay":       "delay",
	"omit_result": "omit-result",
	"timeout":     "timeout",
	"format":      "format",
	"log_level":   "log-level",
	"history":     "history",
	"shell":       "shell",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("history", func(fl validator.FieldLevel) bool {
		_, _, err := ParseHistory(fl.Field().String())
		return err == nil
	})
	return v
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		Concurrency: 4,
		Attempts:    0,
		Delay:       0,
		Format:      "json",
		LogLevel:    "warn",
		Shell:       "sh",
	}
}

// Load resolves the configuration. configFile may be empty, in which case a
// settle.{yaml,toml,json} in the working directory is used if present.
// flags may be nil; only flags that were set on the command line override
// the other sources.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	d := Defaults()
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("attempts", d.Attempts)
	v.SetDefault("delay", d.Delay)
	v.SetDefault("omit_result", d.OmitResult)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("format", d.Format)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("history", d.History)
	v.SetDefault("shell", d.Shell)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("settle")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Format = strings.ToLower(cfg.Format)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Options converts the run settings into engine options.
func (c *Config) Options() api.Options {
	return api.Options{
		Concurrency: c.Concurrency,
		OnFail: api.OnFail{
			Attempts: c.Attempts,
			Delay:    c.Delay,
		},
		OmitResult: c.OmitResult,
	}
}

// SlogLevel returns LogLevel as a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// History sink kinds returned by ParseHistory.
const (
	HistoryNone   = ""
	HistoryMemory = "memory"
	HistorySQLite = "sqlite"
	HistoryRedis  = "redis"
)

// ParseHistory splits a history setting into its kind and target. For
// SQLite the target is a file path, for Redis the full URL.
func ParseHistory(s string) (kind, target string, err error) {
	switch {
	case s == "":
		return HistoryNone, "", nil
	case s == HistoryMemory:
		return HistoryMemory, "", nil
	case strings.HasPrefix(s, "sqlite:"):
		path := strings.TrimPrefix(s, "sqlite:")
		if path == "" {
			return "", "", fmt.Errorf("history %q: missing sqlite path", s)
		}
		return HistorySQLite, path, nil
	case strings.HasPrefix(s, "redis://"), strings.HasPrefix(s, "rediss://"):
		return HistoryRedis, s, nil
	default:
		return "", "", fmt.Errorf("history %q: expected memory, sqlite:PATH or redis://ADDR", s)
	}
}
