package harvest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/SIMOUNIX/harvestor/internal/common"
	"github.com/SIMOUNIX/harvestor/internal/llm"
	"github.com/SIMOUNIX/harvestor/internal/llm/anthropic"
	"github.com/SIMOUNIX/harvestor/internal/llm/ollama"
	"github.com/SIMOUNIX/harvestor/internal/llm/openai"
	"github.com/SIMOUNIX/harvestor/internal/models"
)

// ProviderConfig is what every provider client may need.
type ProviderConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewProvider builds the client for a resolved model.
func NewProvider(info models.Info, cfg ProviderConfig, logger *slog.Logger) (llm.Provider, error) {
	switch info.Provider {
	case models.Anthropic:
		return anthropic.NewClient(info, anthropic.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Timeout,
			HTTPClient: cfg.HTTPClient,
		}, logger)
	case models.OpenAI:
		return openai.NewClient(info, openai.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Timeout,
			HTTPClient: cfg.HTTPClient,
		}, logger)
	case models.Ollama:
		return ollama.NewClient(info, ollama.Config{
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Timeout,
			HTTPClient: cfg.HTTPClient,
		}, logger), nil
	}
	return nil, common.NewAppError(common.CodeConfig, "unknown provider "+info.Provider, common.ErrInvalidInput)
}
