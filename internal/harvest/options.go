package harvest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/SIMOUNIX/harvestor/internal/common"
	"github.com/SIMOUNIX/harvestor/internal/cost"
	"github.com/SIMOUNIX/harvestor/internal/llm"
	"github.com/SIMOUNIX/harvestor/internal/models"
	"github.com/SIMOUNIX/harvestor/internal/privacy"
	"github.com/SIMOUNIX/harvestor/internal/schema"
	"github.com/SIMOUNIX/harvestor/internal/textextract"
	"github.com/SIMOUNIX/harvestor/internal/validate"
)

type options struct {
	model         string
	apiKey        string
	baseURL       string
	timeout       time.Duration
	httpClient    *http.Client
	provider      llm.Provider
	maxTokens     int
	temperature   float32
	maxInputChars int

	tracker *cost.Tracker
	limits  *cost.Limits

	schema schema.Schema

	validate bool
	rules    []validate.Rule

	redact   bool
	entities []string

	text   textextract.Config
	runner textextract.Runner

	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func defaultOptions() options {
	return options{
		model:         models.DefaultModel,
		maxTokens:     llm.DefaultMaxTokens,
		temperature:   llm.DefaultTemperature,
		maxInputChars: llm.DefaultMaxInputChars,
		schema:        schema.Invoice,
		now:           time.Now,
	}
}

// Option configures a Harvester.
type Option func(*options)

// WithModel selects a registry alias, provider model id or custom Ollama model.
func WithModel(name string) Option {
	return func(o *options) { o.model = name }
}

// WithAPIKey overrides the provider key from the environment.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithProvider bypasses the provider factory. The provider's Info decides prices.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

func WithMaxTokens(n int) Option {
	return func(o *options) { o.maxTokens = n }
}

func WithTemperature(t float32) Option {
	return func(o *options) { o.temperature = t }
}

// WithMaxInputChars sets the truncation threshold for document text.
func WithMaxInputChars(n int) Option {
	return func(o *options) { o.maxInputChars = n }
}

// WithTracker shares a ledger between harvesters.
func WithTracker(t *cost.Tracker) Option {
	return func(o *options) { o.tracker = t }
}

// WithLimits replaces the tracker's limits. Zero fields disable a limit.
func WithLimits(l cost.Limits) Option {
	return func(o *options) { o.limits = &l }
}

// WithSchema sets the default output schema.
func WithSchema(s schema.Schema) Option {
	return func(o *options) { o.schema = s }
}

// WithValidation runs the rule engine on successful extractions. Extra rules run after the defaults.
func WithValidation(rules ...validate.Rule) Option {
	return func(o *options) {
		o.validate = true
		o.rules = append(o.rules, rules...)
	}
}

// WithRedaction replaces PII in document text before it is sent and restores it in the data.
// No entities means all built-in entities.
func WithRedaction(entities ...string) Option {
	return func(o *options) {
		o.redact = true
		o.entities = entities
	}
}

func WithTextConfig(cfg textextract.Config) Option {
	return func(o *options) { o.text = cfg }
}

// WithTextRunner swaps the command runner used for PDF text extraction.
func WithTextRunner(r textextract.Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithStore persists every successful result.
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// OptionsFromConfig maps loaded configuration onto options.
func OptionsFromConfig(cfg *common.Config) []Option {
	return []Option{
		WithModel(cfg.LLM.Model),
		WithAPIKey(cfg.LLM.APIKey),
		WithBaseURL(cfg.LLM.BaseURL),
		WithTimeout(cfg.LLM.Timeout),
		WithMaxTokens(cfg.LLM.MaxTokens),
		WithTemperature(cfg.LLM.Temperature),
		WithMaxInputChars(cfg.LLM.MaxInputChars),
		WithLimits(cost.Limits{
			Ceiling:     cfg.Cost.Ceiling,
			PerDocument: cfg.Cost.PerDocument,
			Daily:       cfg.Cost.Daily,
		}),
		WithTextConfig(textextract.Config{Pdftotext: cfg.Text.Pdftotext}),
	}
}

// CallOption adjusts a single Harvest call.
type CallOption func(*call)

type call struct {
	schema     schema.Schema
	docType    string
	documentID string
}

// ForSchema sets the output schema of one call.
func ForSchema(s schema.Schema) CallOption {
	return func(c *call) { c.schema = s }
}

// WithDocType overrides the document type derived from the schema name.
func WithDocType(docType string) CallOption {
	return func(c *call) { c.docType = docType }
}

// WithDocumentID overrides the id inferred from the input.
func WithDocumentID(id string) CallOption {
	return func(c *call) { c.documentID = id }
}

func newPrivacyRedactor(o options) *privacy.Redactor {
	opts := []privacy.Option{privacy.WithLogger(o.logger)}
	if len(o.entities) > 0 {
		opts = append(opts, privacy.WithEntities(o.entities...))
	}
	return privacy.NewRedactor(opts...)
}
