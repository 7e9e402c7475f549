// Package config builds the service configuration from the environment plus
// an optional YAML provider file, and validates it before anything starts.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full lexiad configuration.
type Config struct {
	Addr string

	Providers ProvidersConfig

	CreditLimit    int
	CreditFailOpen bool

	RateLimitMax    int
	RateLimitWindow time.Duration

	MaxAttempts    int
	AttemptTimeout time.Duration

	RedisAddr   string
	MongoURI    string
	PostgresDSN string
}

// ProvidersConfig holds the provider credentials and priority order.
type ProvidersConfig struct {
	Priority     []string `yaml:"priority"`
	AnthropicKey string   `yaml:"-"`
	OpenAIKey    string   `yaml:"-"`
	GeminiKey    string   `yaml:"-"`

	Models map[string]ModelOverride `yaml:"models"`
}

// ModelOverride tunes one intent's model choice from the provider file.
type ModelOverride struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
}

// FromEnv reads the configuration from LEXIA_* environment variables,
// falling back to sensible defaults.
func FromEnv() *Config {
	return &Config{
		Addr: envString("LEXIA_ADDR", ":8080"),
		Providers: ProvidersConfig{
			Priority:     []string{"claude", "openai", "gemini"},
			AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
			OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
			GeminiKey:    os.Getenv("GEMINI_API_KEY"),
		},
		CreditLimit:     envInt("LEXIA_CREDIT_LIMIT", 500),
		CreditFailOpen:  envBool("LEXIA_CREDIT_FAIL_OPEN", false),
		RateLimitMax:    envInt("LEXIA_RATE_LIMIT_MAX", 60),
		RateLimitWindow: envDuration("LEXIA_RATE_LIMIT_WINDOW", time.Minute),
		MaxAttempts:     envInt("LEXIA_MAX_ATTEMPTS", 3),
		AttemptTimeout:  envDuration("LEXIA_ATTEMPT_TIMEOUT", 45*time.Second),
		RedisAddr:       os.Getenv("LEXIA_REDIS_ADDR"),
		MongoURI:        os.Getenv("LEXIA_MONGO_URI"),
		PostgresDSN:     os.Getenv("LEXIA_POSTGRES_DSN"),
	}
}

// LoadProviderFile merges an optional YAML provider file into the config.
// Absent file is not an error; the env-derived defaults stand.
func (c *Config) LoadProviderFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read provider file: %w", err)
	}

	var file ProvidersConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse provider file %s: %w", path, err)
	}
	if len(file.Priority) > 0 {
		c.Providers.Priority = file.Priority
	}
	if len(file.Models) > 0 {
		c.Providers.Models = file.Models
	}
	return nil
}

// Validate checks the configuration before the server starts.
func (c *Config) Validate() error {
	v := NewValidator().
		RequireNonEmpty("addr", c.Addr).
		RequirePositive("credit_limit", c.CreditLimit).
		RequirePositive("rate_limit_max", c.RateLimitMax).
		RequirePositiveDuration("rate_limit_window", c.RateLimitWindow).
		ValidateRange("max_attempts", c.MaxAttempts, 1, 10).
		RequirePositiveDuration("attempt_timeout", c.AttemptTimeout).
		RequireProviders("providers.priority", c.Providers.Priority)

	for name, override := range c.Providers.Models {
		v.ValidateFloatRange("providers.models."+name+".temperature", override.Temperature, 0, 2)
	}

	return v.Error()
}

func envString(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return def
}
