package common

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "claude-haiku", cfg.LLM.Model)
	assert.Equal(t, "sk-ant-test", cfg.LLM.APIKey)
	assert.Equal(t, 2048, cfg.LLM.MaxTokens)
	assert.Equal(t, 8000, cfg.LLM.MaxInputChars)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.InDelta(t, 0.10, cfg.Cost.PerDocument, 1e-9)
	assert.Zero(t, cfg.Cost.Ceiling)
	assert.Equal(t, "pdftotext", cfg.Text.Pdftotext)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("HARVESTOR_LLM_MODEL", "gpt-4o-mini")
	t.Setenv("HARVESTOR_COST_CEILING", "1.5")
	t.Setenv("HARVESTOR_LLM_TIMEOUT", "10s")
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "sk-openai", cfg.LLM.APIKey)
	assert.InDelta(t, 1.5, cfg.Cost.Ceiling, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.LLM.Timeout)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvestor.yaml")
	content := "llm:\n  model: claude-sonnet\n  max_tokens: 1024\ncost:\n  daily: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet", cfg.LLM.Model)
	assert.Equal(t, 1024, cfg.LLM.MaxTokens)
	assert.InDelta(t, 5.0, cfg.Cost.Daily, 1e-9)
}

func TestOverrideModelRereadsProviderKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "sk-ant-test", cfg.LLM.APIKey)

	cfg.OverrideModel("gpt-4o-mini")
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Empty(t, cfg.LLM.APIKey)

	t.Setenv("OPENAI_API_KEY", "sk-openai")
	cfg.OverrideModel("gpt-4o")
	assert.Equal(t, "sk-openai", cfg.LLM.APIKey)
}

func TestOverrideModelKeepsExplicitKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("HARVESTOR_LLM_API_KEY", "sk-explicit")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.OverrideModel("gpt-4o-mini")
	assert.Equal(t, "sk-explicit", cfg.LLM.APIKey)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, CodeConfig, appErr.Code)
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{Model: "", MaxTokens: 0, MaxInputChars: 10, Temperature: 3}, Cost: CostConfig{Daily: -1}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Contains(t, err.Error(), "llm.model is required")
	assert.Contains(t, err.Error(), "llm.max_tokens must be positive")
	assert.Contains(t, err.Error(), "temperature")
	assert.Contains(t, err.Error(), "cost limits")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", ParseLevel("debug").String())
	assert.Equal(t, "WARN", ParseLevel("WARNING").String())
	assert.Equal(t, "INFO", ParseLevel("nonsense").String())
}
