package ollama

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/SIMOUNIX/harvestor/internal/models"
)

const DefaultBaseURL = "http://localhost:11434"

// Config for a local Ollama server. No API key is needed.
type Config struct {
	BaseURL    string // if empty, falls back to env OLLAMA_BASE_URL, then http://localhost:11434
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	cfg    Config
	info   models.Info
	http   *http.Client
	logger *slog.Logger
}

func NewClient(info models.Info, cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	// local models are slow to load on first use
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, info: info, http: hc, logger: logger}
}

func (c *Client) Info() models.Info { return c.info }
