// Package harvest turns a document into structured data with one model call,
// under the spend limits of a cost ledger.
package harvest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/SIMOUNIX/harvestor/constants"
	"github.com/SIMOUNIX/harvestor/internal/common"
	"github.com/SIMOUNIX/harvestor/internal/cost"
	"github.com/SIMOUNIX/harvestor/internal/input"
	"github.com/SIMOUNIX/harvestor/internal/llm"
	"github.com/SIMOUNIX/harvestor/internal/metrics"
	"github.com/SIMOUNIX/harvestor/internal/models"
	"github.com/SIMOUNIX/harvestor/internal/privacy"
	"github.com/SIMOUNIX/harvestor/internal/schema"
	"github.com/SIMOUNIX/harvestor/internal/textextract"
	"github.com/SIMOUNIX/harvestor/internal/validate"
)

// Store persists finished results.
type Store interface {
	Save(ctx context.Context, r *Result) error
}

type Harvester struct {
	opts     options
	info     models.Info
	provider llm.Provider
	tracker  *cost.Tracker
	text     *textextract.Extractor
	engine   *validate.Engine
	redactor *privacy.Redactor
	logger   *slog.Logger
}

// New resolves the model and builds its provider. Unknown models and missing API keys fail here.
func New(opts ...Option) (*Harvester, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.maxInputChars <= 0 {
		o.maxInputChars = llm.DefaultMaxInputChars
	}

	h := &Harvester{opts: o, logger: o.logger}

	if o.provider != nil {
		h.provider = o.provider
		h.info = o.provider.Info()
	} else {
		info, err := models.Resolve(o.model)
		if err != nil {
			return nil, common.NewAppError(common.CodeConfig, err.Error(), common.ErrInvalidInput)
		}
		p, err := NewProvider(info, ProviderConfig{
			APIKey:     o.apiKey,
			BaseURL:    o.baseURL,
			Timeout:    o.timeout,
			HTTPClient: o.httpClient,
		}, o.logger)
		if err != nil {
			return nil, err
		}
		h.info = info
		h.provider = p
	}

	h.tracker = o.tracker
	if h.tracker == nil {
		h.tracker = cost.NewTracker(cost.WithLogger(o.logger))
	}
	if o.limits != nil {
		h.tracker.SetLimits(*o.limits)
	}

	h.text = textextract.NewExtractor(o.text, o.logger)
	if o.runner != nil {
		h.text.WithRunner(o.runner)
	}
	if o.validate {
		h.engine = validate.NewEngine(validate.WithRules(o.rules...), validate.WithLogger(o.logger))
	}
	if o.redact {
		h.redactor = newPrivacyRedactor(o)
	}

	o.logger.Info("harvest.init",
		"model", h.info.Name,
		"provider", h.info.Provider,
		"vision", h.info.SupportsVision,
		"validate", o.validate,
		"redact", o.redact,
	)
	return h, nil
}

func (h *Harvester) Tracker() *cost.Tracker { return h.tracker }

func (h *Harvester) Model() models.Info { return h.info }

// Harvest extracts data from a path, []byte or io.Reader. filename, when set, names byte and
// stream inputs and overrides the name of a path.
//
// The Result is never nil. On failure it carries the error message and kind, and the error is
// returned as well.
func (h *Harvester) Harvest(ctx context.Context, src any, filename string, opts ...CallOption) (*Result, error) {
	c := call{schema: h.opts.schema}
	for _, opt := range opts {
		opt(&c)
	}
	if c.docType == "" {
		c.docType = c.schema.DocType()
	}

	start := h.opts.now()
	res := &Result{
		Data:         map[string]any{},
		DocumentID:   c.documentID,
		DocumentType: c.docType,
		Model:        h.info.Name,
		Provider:     h.info.Provider,
		Strategy:     constants.StrategyNone,
		CreatedAt:    start,
	}

	doc, err := input.Normalize(src, filename)
	if err != nil {
		if p, ok := src.(string); ok {
			res.FilePath = p
		}
		return h.fail(ctx, res, start, err)
	}
	if c.documentID != "" {
		doc.DocumentID = c.documentID
	}
	res.DocumentID = doc.DocumentID
	res.FilePath = doc.FilePath
	res.FileSize = doc.Size
	res.MediaType = doc.MediaType
	res.SHA256 = doc.SHA256

	ctx = common.WithDocumentID(ctx, doc.DocumentID)
	h.logger.Info("harvest.start",
		"document_id", doc.DocumentID,
		"doc_type", c.docType,
		"media_type", doc.MediaType,
		"source", doc.Source,
		"bytes", doc.Size,
	)

	req, pmap, err := h.buildRequest(ctx, doc, c, res)
	if err != nil {
		return h.fail(ctx, res, start, err)
	}

	inTok, outTok := llm.EstimateRequestTokens(req)
	estimate := h.tracker.EstimateCost(h.info.Name, inTok, outTok)
	if err := h.tracker.CheckLimit(doc.DocumentID, estimate); err != nil {
		h.logger.Warn("harvest.denied",
			"document_id", doc.DocumentID,
			"estimate", estimate,
			"est_input_tokens", inTok,
			"est_output_tokens", outTok,
			"err", err,
		)
		return h.fail(ctx, res, start, err)
	}

	comp, err := h.provider.Complete(ctx, req)
	if err != nil {
		return h.fail(ctx, res, start, err)
	}
	res.InputTokens = comp.InputTokens
	res.OutputTokens = comp.OutputTokens

	data, perr := h.parse(comp.Content, c.schema, res)

	rec, rerr := h.tracker.Record(cost.Call{
		Model:        h.info.Name,
		DocumentID:   doc.DocumentID,
		Strategy:     string(res.Strategy),
		InputTokens:  comp.InputTokens,
		OutputTokens: comp.OutputTokens,
		Success:      perr == nil,
	})
	if rerr != nil {
		h.logger.Error("cost.record.failed", "document_id", doc.DocumentID, "err", rerr)
	}
	res.TotalCost = rec.Cost

	if perr != nil {
		return h.fail(ctx, res, start, perr)
	}

	if pmap != nil && pmap.Len() > 0 {
		data = h.redactor.Restore(data, pmap).(map[string]any)
	}
	res.Data = data
	res.Success = true
	res.Confidence = DefaultConfidence

	if h.engine != nil {
		rep := h.engine.Validate(data, c.schema)
		res.Validation = &rep
	}

	res.Duration = h.opts.now().Sub(start)
	if h.opts.store != nil {
		if err := h.opts.store.Save(ctx, res); err != nil {
			h.logger.Warn("store.save.failed", "document_id", doc.DocumentID, "err", err)
			res.Warnings = append(res.Warnings, "store: "+err.Error())
		}
	}

	metrics.RecordHarvest(c.docType, string(res.Strategy), "success", res.Duration.Seconds())
	h.logger.Info("harvest.ok",
		"document_id", doc.DocumentID,
		"strategy", res.Strategy,
		"cost", res.TotalCost,
		"input_tokens", res.InputTokens,
		"output_tokens", res.OutputTokens,
		"fields", len(res.Data),
		"dur_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// HarvestText extracts data from text that is already in memory.
func (h *Harvester) HarvestText(ctx context.Context, text string, opts ...CallOption) (*Result, error) {
	name := "text.txt"
	c := call{}
	for _, opt := range opts {
		opt(&c)
	}
	if c.documentID != "" {
		name = c.documentID + ".txt"
	}
	return h.Harvest(ctx, []byte(text), name, opts...)
}

func (h *Harvester) buildRequest(ctx context.Context, doc *input.Document, c call, res *Result) (llm.CompletionRequest, *privacy.Map, error) {
	req := llm.CompletionRequest{
		MaxTokens:   h.opts.maxTokens,
		Temperature: h.opts.temperature,
	}
	fields := c.schema.PromptFields()

	if doc.IsImage() {
		res.Strategy = constants.StrategyLLMVision
		if !h.info.SupportsVision {
			return req, nil, common.UnsupportedInputf("model %s does not support vision; use a vision model for %s",
				h.info.Name, doc.Filename)
		}
		req.Prompt = llm.BuildVisionPrompt(c.docType, fields)
		req.Image = &llm.Image{Data: doc.Data, MediaType: doc.MediaType}
		return req, nil, nil
	}

	res.Strategy = constants.StrategyLLMText
	tr, err := h.text.Extract(ctx, doc)
	if err != nil {
		return req, nil, err
	}
	res.Warnings = append(res.Warnings, tr.Warnings...)

	text := tr.Text
	var pmap *privacy.Map
	if h.redactor != nil {
		text, pmap = h.redactor.Redact(text)
		res.Redacted = pmap.Len()
	}

	text, truncated := llm.TruncateText(text, h.opts.maxInputChars)
	if truncated {
		res.Truncated = true
		h.logger.Warn("harvest.text.truncated", "document_id", doc.DocumentID, "max_chars", h.opts.maxInputChars)
	}
	req.Prompt = llm.BuildTextPrompt(c.docType, fields, text)
	return req, pmap, nil
}

// parse extracts the JSON object, coerces it to the schema and fills missing fields with null.
func (h *Harvester) parse(content string, s schema.Schema, res *Result) (map[string]any, error) {
	data, repaired, err := llm.ParseJSONObject(content)
	if err != nil {
		return nil, err
	}
	res.Repaired = repaired

	data, warnings := llm.Sanitize(data, s, h.logger)
	res.Warnings = append(res.Warnings, warnings...)

	if err := llm.ValidateAgainstSchema(s.JSONSchema(), data); err != nil {
		return nil, common.ResponseParseError("model output does not match schema "+s.Name, err)
	}
	return s.Complete(data), nil
}

func (h *Harvester) fail(ctx context.Context, res *Result, start time.Time, err error) (*Result, error) {
	res.Success = false
	res.Confidence = 0
	res.Error = err.Error()
	res.ErrorKind = common.KindOf(err)
	res.Duration = h.opts.now().Sub(start)

	level := slog.LevelError
	if errors.Is(err, common.ErrUnsupportedInput) || errors.Is(err, common.ErrCostLimitExceeded) {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, "harvest.failed",
		"document_id", res.DocumentID,
		"kind", res.ErrorKind,
		"err", err,
	)
	metrics.RecordHarvest(res.DocumentType, string(res.Strategy), strings.ToLower(res.ErrorKind), res.Duration.Seconds())
	return res, err
}
