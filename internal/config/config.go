// Package config reads polychat's settings from the environment, after
// loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/manash/polychat/pkg/models"
)

const DefaultEnvFile = ".env"

type Config struct {
	// Logging
	LogLevel string `env:"POLYCHAT_LOG_LEVEL" envDefault:"info"`
	Verbose  bool   `env:"POLYCHAT_VERBOSE" envDefault:"false"`

	// Storage
	DBPath    string `env:"POLYCHAT_DB"`
	OutputDir string `env:"POLYCHAT_OUTPUT_DIR" envDefault:"."`

	// Backends
	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL"`
	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL string `env:"ANTHROPIC_BASE_URL"`
	TimeoutSec       int    `env:"POLYCHAT_TIMEOUT" envDefault:"120"`

	// Routing. Overrides look like "claude=anthropic:claude-sonnet-4-5,chatgpt=openai".
	Provider  string            `env:"POLYCHAT_PROVIDER"`
	Overrides map[string]string `env:"POLYCHAT_MODEL_OVERRIDES" envSeparator:"," envKeyValSeparator:"="`

	// Behaviour
	Premium    bool   `env:"POLYCHAT_PREMIUM" envDefault:"false"`
	Offline    bool   `env:"POLYCHAT_OFFLINE" envDefault:"false"`
	StrictURLs bool   `env:"POLYCHAT_STRICT_URLS" envDefault:"true"`
	Addr       string `env:"POLYCHAT_ADDR" envDefault:"127.0.0.1:8787"`
}

// Load reads envFile (missing is fine) and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.Provider != "" {
		if _, err := ParseProvider(c.Provider); err != nil {
			return err
		}
	}
	if _, err := c.ModelOverrides(); err != nil {
		return err
	}
	if c.TimeoutSec < 0 {
		return fmt.Errorf("POLYCHAT_TIMEOUT must not be negative, got %d", c.TimeoutSec)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level. Verbose forces debug.
func (c *Config) SlogLevel() (slog.Level, error) {
	if c.Verbose {
		return slog.LevelDebug, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid POLYCHAT_LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// ModelOverrides parses Overrides into registry overrides.
func (c *Config) ModelOverrides() (map[string]models.Override, error) {
	out := make(map[string]models.Override, len(c.Overrides))
	for id, route := range c.Overrides {
		providerName, backend, _ := strings.Cut(strings.TrimSpace(route), ":")
		p, err := ParseProvider(providerName)
		if err != nil {
			return nil, fmt.Errorf("override for %s: %w", id, err)
		}
		out[strings.TrimSpace(id)] = models.Override{Provider: p, BackendName: backend}
	}
	return out, nil
}

func ParseProvider(s string) (models.ProviderType, error) {
	p := models.ProviderType(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case models.ProviderGemini, models.ProviderOpenAI, models.ProviderAnthropic, models.ProviderMock:
		return p, nil
	}
	return "", fmt.Errorf("unknown provider %q (valid: gemini, openai, anthropic, mock)", s)
}

// Registry applies the configured routing to the built-in catalog.
func (c *Config) Registry() (*models.ModelRegistry, error) {
	reg := models.DefaultRegistry()
	if c.Offline {
		return reg.WithProvider(models.ProviderMock), nil
	}
	if c.Provider != "" {
		p, err := ParseProvider(c.Provider)
		if err != nil {
			return nil, err
		}
		reg = reg.WithProvider(p)
	}
	overrides, err := c.ModelOverrides()
	if err != nil {
		return nil, err
	}
	if len(overrides) == 0 {
		return reg, nil
	}
	return reg.WithOverrides(overrides)
}
