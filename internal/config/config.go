// Package config loads server settings from the environment and an optional
// config file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	PublicURL   string `env:"PUBLIC_URL"`

	DefaultProvider string        `env:"DEFAULT_PROVIDER" envDefault:"openai"`
	DefaultModel    string        `env:"DEFAULT_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIKey       string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `env:"OPENAI_BASE_URL"`
	OllamaHost      string        `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`
	AITimeout       time.Duration `env:"AI_TIMEOUT" envDefault:"20s"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"none"`
	DatabaseURL    string `env:"DATABASE_URL"`

	ComposeTime   time.Duration `env:"COMPOSE_TIME" envDefault:"180s"`
	VoteTime      time.Duration `env:"VOTE_TIME" envDefault:"30s"`
	FinishGrace   time.Duration `env:"FINISH_GRACE" envDefault:"5s"`
	FallbackWait  time.Duration `env:"FALLBACK_WAIT" envDefault:"30s"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5s"`
	MaxLineLength int           `env:"MAX_LINE_LENGTH" envDefault:"50"`
	Themes        []string      `env:"THEMES" envSeparator:","`

	ExportEnabled bool   `env:"EXPORT_ENABLED" envDefault:"false"`
	ExportFile    string `env:"EXPORT_FILE" envDefault:"./aatto-results.txt"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// FromEnv parses the process environment.
func FromEnv() (Config, error) {
	return Load("")
}

// Load reads path (yaml, toml or json) when given and then the environment.
// Environment variables win over file values. File keys use the variable
// names in any case, e.g. compose_time.
func Load(path string) (Config, error) {
	vars := map[string]string{}
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		for _, k := range v.AllKeys() {
			name := strings.ToUpper(strings.ReplaceAll(k, ".", "_"))
			switch val := v.Get(k).(type) {
			case []any:
				vars[name] = strings.Join(v.GetStringSlice(k), ",")
			default:
				vars[name] = fmt.Sprint(val)
			}
		}
	}
	for _, kv := range os.Environ() {
		if k, val, ok := strings.Cut(kv, "="); ok {
			vars[k] = val
		}
	}

	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	durations := map[string]time.Duration{
		"COMPOSE_TIME":   c.ComposeTime,
		"VOTE_TIME":      c.VoteTime,
		"FALLBACK_WAIT":  c.FallbackWait,
		"SWEEP_INTERVAL": c.SweepInterval,
		"AI_TIMEOUT":     c.AITimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.FinishGrace < 0 {
		return fmt.Errorf("FINISH_GRACE must not be negative, got %s", c.FinishGrace)
	}
	if c.MaxLineLength <= 0 {
		return fmt.Errorf("MAX_LINE_LENGTH must be positive, got %d", c.MaxLineLength)
	}
	switch c.DatabaseDriver {
	case "none", "":
	case "sqlite", "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for driver %q", c.DatabaseDriver)
		}
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q (want none, sqlite or postgres)", c.DatabaseDriver)
	}
	switch strings.ToLower(c.DefaultProvider) {
	case "openai", "ollama", "none":
	default:
		return fmt.Errorf("unknown DEFAULT_PROVIDER %q (want openai, ollama or none)", c.DefaultProvider)
	}
	return nil
}

// ShareURL is the address advertised in share QR codes.
func (c Config) ShareURL() string {
	if c.PublicURL != "" {
		return c.PublicURL
	}
	return c.FrontendURL
}
