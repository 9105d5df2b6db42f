package common

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every configuration key read from the environment (HARVESTOR_LLM_MODEL, ...).
const EnvPrefix = "HARVESTOR"

// Config holds all application configuration
type Config struct {
	LLM   LLMConfig   `mapstructure:"llm"`
	Cost  CostConfig  `mapstructure:"cost"`
	Text  TextConfig  `mapstructure:"text"`
	Store StoreConfig `mapstructure:"store"`
	Log   LogConfig   `mapstructure:"log"`
}

// LLMConfig holds provider-related configuration
type LLMConfig struct {
	Model         string        `mapstructure:"model"`
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Temperature   float32       `mapstructure:"temperature"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	MaxInputChars int           `mapstructure:"max_input_chars"`
	Timeout       time.Duration `mapstructure:"timeout"`

	// explicitKey is set when api_key came from the file or HARVESTOR_LLM_API_KEY.
	explicitKey bool
}

// CostConfig holds spend limits in USD; zero disables a limit.
type CostConfig struct {
	Ceiling     float64 `mapstructure:"ceiling"`
	PerDocument float64 `mapstructure:"per_document"`
	Daily       float64 `mapstructure:"daily"`
}

// TextConfig holds text-extraction configuration
type TextConfig struct {
	Pdftotext string `mapstructure:"pdftotext"`
}

// StoreConfig holds the optional result store DSN (postgres:// or a sqlite path)
type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LoadConfig loads configuration from defaults, an optional YAML file, and the environment.
// Provider API keys fall back to the provider's own variable (ANTHROPIC_API_KEY, OPENAI_API_KEY).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, NewAppError(CodeConfig, fmt.Sprintf("read config %s", path), err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, NewAppError(CodeConfig, "unmarshal config", err)
	}

	cfg.LLM.explicitKey = cfg.LLM.APIKey != ""
	if !cfg.LLM.explicitKey {
		cfg.LLM.APIKey = ProviderAPIKeyFromEnv(cfg.LLM.Model)
	}
	return &cfg, nil
}

// OverrideModel switches the model. A key taken from a provider variable is
// re-read for the new model's provider, so it may become empty; an explicit
// api_key is kept.
func (c *Config) OverrideModel(model string) {
	c.LLM.Model = model
	if !c.LLM.explicitKey {
		c.LLM.APIKey = ProviderAPIKeyFromEnv(model)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.model", "claude-haiku")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.max_input_chars", 8000)
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("cost.ceiling", 0.0)
	v.SetDefault("cost.per_document", 0.10)
	v.SetDefault("cost.daily", 0.0)

	v.SetDefault("text.pdftotext", "pdftotext")
	v.SetDefault("store.dsn", "")
	v.SetDefault("log.level", "info")
}

// ProviderAPIKeyFromEnv reads the key of the provider a model name points at.
func ProviderAPIKeyFromEnv(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"):
		return getEnv("OPENAI_API_KEY", "")
	case strings.HasPrefix(m, "claude"):
		return getEnv("ANTHROPIC_API_KEY", "")
	}
	return ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.LLM.Model) == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, errors.New("llm.max_tokens must be positive"))
	}
	if c.LLM.MaxInputChars <= 0 {
		errs = append(errs, errors.New("llm.max_input_chars must be positive"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, errors.New("llm.temperature must be within 0..2"))
	}
	if c.Cost.Ceiling < 0 || c.Cost.PerDocument < 0 || c.Cost.Daily < 0 {
		errs = append(errs, errors.New("cost limits must not be negative"))
	}
	if len(errs) > 0 {
		return NewAppError(CodeConfig, errors.Join(errs...).Error(), ErrInvalidInput)
	}
	return nil
}
