package anthropic

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/SIMOUNIX/harvestor/internal/common"
	"github.com/SIMOUNIX/harvestor/internal/models"
)

const (
	DefaultBaseURL = "https://api.anthropic.com/v1"
	APIVersion     = "2023-06-01"
)

type Config struct {
	APIKey     string // if empty, falls back to env ANTHROPIC_API_KEY
	BaseURL    string // default https://api.anthropic.com/v1
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	cfg    Config
	info   models.Info
	http   *http.Client
	logger *slog.Logger
}

func NewClient(info models.Info, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, common.NewAppError(common.CodeConfig,
			"Anthropic API key required. Set ANTHROPIC_API_KEY or pass an API key", common.ErrInvalidInput)
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
