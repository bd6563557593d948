// Package config provides application configuration.
//
// Everything the session core needs is loaded here once and passed down
// explicitly; packages other than the model API clients never read the
// process environment themselves.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ModelConfig holds the chat-completion settings for one LLM role.
type ModelConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Config holds all application configuration.
type Config struct {
	Port       string
	Production bool

	// Backend API settings. BaseURL selects the provider (OpenAI-compatible
	// endpoints only: OpenAI, Groq, Together).
	APIKey  string
	BaseURL string

	// Sales bot model settings.
	Sales ModelConfig

	// Prospect model settings, used only by the batch simulator.
	Prospect ModelConfig

	// MaxExchanges is the hard cap on prospect turns per conversation.
	MaxExchanges int

	// Simulation batch settings.
	NumSimulations int
	SimWorkers     int
	LogDir         string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:       getEnv("PORT", "8080"),
		Production: os.Getenv("PRODUCTION") != "",
		APIKey:     getEnv("OPENAI_SECRET_KEY", ""),
		BaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		Sales: ModelConfig{
			Model:       getEnv("SALES_MODEL", "gpt-4o-mini"),
			Temperature: getEnvFloat("SALES_TEMPERATURE", 0.3),
			MaxTokens:   getEnvInt("SALES_MAX_TOKENS", 120),
		},
		Prospect: ModelConfig{
			Model:       getEnv("PROSPECT_MODEL", "gpt-4o-mini"),
			Temperature: getEnvFloat("PROSPECT_TEMPERATURE", 0.85),
			MaxTokens:   getEnvInt("PROSPECT_MAX_TOKENS", 100),
		},
		MaxExchanges:   getEnvInt("MAX_MESSAGE_EXCHANGES", 10),
		NumSimulations: getEnvInt("NUM_SIMULATIONS", 100),
		SimWorkers:     getEnvInt("SIM_WORKERS", 4),
		LogDir:         getEnv("TRANSCRIPT_LOG_DIR", "./logs"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("OPENAI_BASE_URL cannot be empty")
	}
	if c.MaxExchanges <= 0 {
		return fmt.Errorf("MAX_MESSAGE_EXCHANGES must be > 0")
	}
	if c.Sales.MaxTokens <= 0 || c.Prospect.MaxTokens <= 0 {
		return fmt.Errorf("model max tokens must be > 0")
	}
	if c.SimWorkers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}
