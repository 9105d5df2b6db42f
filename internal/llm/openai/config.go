package openai

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/SIMOUNIX/harvestor/internal/common"
	"github.com/SIMOUNIX/harvestor/internal/models"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// Config for the OpenAI client.
type Config struct {
	APIKey     string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL    string        // default https://api.openai.com/v1
	Timeout    time.Duration // http client timeout
	HTTPClient *http.Client  // optional; overrides Timeout
}

type Client struct {
	cfg    Config
	info   models.Info
	http   *http.Client
	logger *slog.Logger
}

func NewClient(info models.Info, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, common.NewAppError(common.CodeConfig,
			"OpenAI API key required. Set OPENAI_API_KEY or pass an API key", common.ErrInvalidInput)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, info: info, http: hc, logger: logger}, nil
}

func (c *Client) Info() models.Info { return c.info }
