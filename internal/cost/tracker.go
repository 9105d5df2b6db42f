// Package cost keeps the ledger of model calls and enforces spend limits.
package cost

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SIMOUNIX/harvestor/internal/common"
	"github.com/SIMOUNIX/harvestor/internal/metrics"
	"github.com/SIMOUNIX/harvestor/internal/models"
)

// Limit names reported in LimitError and metrics.
const (
	LimitCeiling     = "ceiling"
	LimitPerDocument = "per_document"
	LimitDaily       = "daily"
)

const dayLayout = "2006-01-02"

// Limits are spend ceilings in USD. Zero disables a limit.
type Limits struct {
	Ceiling     float64 `json:"ceiling"`      // cumulative spend of this tracker
	PerDocument float64 `json:"per_document"` // spend attributed to one document id
	Daily       float64 `json:"daily"`        // spend recorded on the current calendar day
}

// DefaultLimits caps each document at ten cents.
func DefaultLimits() Limits {
	return Limits{PerDocument: 0.10}
}

// Call is what a caller knows about a finished model call.
type Call struct {
	Model        string
	DocumentID   string
	Strategy     string
	InputTokens  int
	OutputTokens int
	Success      bool
}

// Record is one ledger entry. Records are never modified after being appended.
type Record struct {
	Model        string    `json:"model"`
	DocumentID   string    `json:"document_id,omitempty"`
	Strategy     string    `json:"strategy,omitempty"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	Success      bool      `json:"success"`
	Timestamp    time.Time `json:"timestamp"`
}

// LimitError reports which limit a pending call would exceed.
type LimitError struct {
	Limit      string
	DocumentID string
	Spent      float64
	Pending    float64
	Max        float64
}

func (e *LimitError) Error() string {
	scope := e.Limit
	if e.Limit == LimitPerDocument && e.DocumentID != "" {
		scope = fmt.Sprintf("%s (%s)", e.Limit, e.DocumentID)
	}
	return fmt.Sprintf("cost limit exceeded: %s spent $%.6f + estimated $%.6f > limit $%.6f", scope, e.Spent, e.Pending, e.Max)
}

func (e *LimitError) Unwrap() error {
	return common.ErrCostLimitExceeded
}

// PriceFunc resolves a model name to its prices.
type PriceFunc func(model string) (models.Info, bool)

// Tracker is the cost ledger. It is safe for concurrent use.
type Tracker struct {
	mu         sync.Mutex
	limits     Limits
	records    []Record
	total      float64
	byDocument map[string]float64
	byDay      map[string]float64

	prices PriceFunc
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLimits replaces DefaultLimits.
func WithLimits(l Limits) Option {
	return func(t *Tracker) { t.limits = l }
}

// WithPrices replaces the model registry as price source.
func WithPrices(p PriceFunc) Option {
	return func(t *Tracker) {
		if p != nil {
			t.prices = p
		}
	}
}

// WithClock sets the time source used for timestamps and the daily limit.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTracker returns an empty ledger.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		limits:     DefaultLimits(),
		byDocument: make(map[string]float64),
		byDay:      make(map[string]float64),
		prices:     registryPrices,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func registryPrices(model string) (models.Info, bool) {
	info, err := models.Resolve(model)
	return info, err == nil
}

// EstimateCost prices a call from the model's per-million token rates. Unknown models cost 0.
func (t *Tracker) EstimateCost(model string, inputTokens, outputTokens int) float64 {
	info, ok := t.prices(model)
	if !ok {
		return 0
	}
	return info.Cost(inputTokens, outputTokens)
}

// SetLimits replaces the limits; already recorded spend is kept.
func (t *Tracker) SetLimits(l Limits) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits = l
}

// Limits returns the active limits.
func (t *Tracker) Limits() Limits {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limits
}

// CheckLimit returns a *LimitError when spending pending more would exceed a limit.
// It must be called before the provider request so a denied call costs nothing.
func (t *Tracker) CheckLimit(documentID string, pending float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var lerr *LimitError
	switch {
	case t.limits.Ceiling > 0 && t.total+pending > t.limits.Ceiling:
		lerr = &LimitError{Limit: LimitCeiling, Spent: t.total, Pending: pending, Max: t.limits.Ceiling}
	case t.limits.PerDocument > 0 && documentID != "" && t.byDocument[documentID]+pending > t.limits.PerDocument:
		lerr = &LimitError{Limit: LimitPerDocument, DocumentID: documentID, Spent: t.byDocument[documentID], Pending: pending, Max: t.limits.PerDocument}
	case t.limits.Daily > 0 && t.byDay[t.today()]+pending > t.limits.Daily:
		lerr = &LimitError{Limit: LimitDaily, Spent: t.byDay[t.today()], Pending: pending, Max: t.limits.Daily}
	}
	if lerr == nil {
		return nil
	}

	metrics.RecordDenial(lerr.Limit)
	t.logger.Warn("cost.limit.denied",
		"limit", lerr.Limit,
		"document_id", documentID,
		"spent", lerr.Spent,
		"pending", lerr.Pending,
		"max", lerr.Max,
	)
	return lerr
}

// Record prices a finished call, appends it to the ledger and updates the running totals.
func (t *Tracker) Record(call Call) (Record, error) {
	if strings.TrimSpace(call.Model) == "" {
		return Record{}, common.NewAppError("COST_RECORD", "model is required", common.ErrInvalidInput)
	}
	if call.InputTokens < 0 || call.OutputTokens < 0 {
		return Record{}, common.NewAppError("COST_RECORD", "token counts must not be negative", common.ErrInvalidInput)
	}

	rec := Record{
		Model:        call.Model,
		DocumentID:   call.DocumentID,
		Strategy:     call.Strategy,
		InputTokens:  call.InputTokens,
		OutputTokens: call.OutputTokens,
		Cost:         t.EstimateCost(call.Model, call.InputTokens, call.OutputTokens),
		Success:      call.Success,
	}

	t.mu.Lock()
	rec.Timestamp = t.now()
	t.records = append(t.records, rec)
	t.total += rec.Cost
	if rec.DocumentID != "" {
		t.byDocument[rec.DocumentID] += rec.Cost
	}
	t.byDay[rec.Timestamp.Format(dayLayout)] += rec.Cost
	total := t.total
	t.mu.Unlock()

	metrics.RecordCall(rec.Model, rec.Success, rec.InputTokens, rec.OutputTokens, rec.Cost)
	t.logger.Info("cost.record",
		"model", rec.Model,
		"document_id", rec.DocumentID,
		"input_tokens", rec.InputTokens,
		"output_tokens", rec.OutputTokens,
		"cost", rec.Cost,
		"total", total,
	)
	return rec, nil
}

// Reset clears the ledger. Limits are kept.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = nil
	t.total = 0
	t.byDocument = make(map[string]float64)
	t.byDay = make(map[string]float64)
}

// Total returns the running total.
func (t *Tracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Records returns a copy of the ledger in insertion order.
func (t *Tracker) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// DocumentCost returns the spend attributed to a document id.
func (t *Tracker) DocumentCost(documentID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byDocument[documentID]
}

// Stats aggregates the whole ledger.
type Stats struct {
	TotalCalls         int                `json:"total_calls"`
	SuccessfulCalls    int                `json:"successful_calls"`
	FailedCalls        int                `json:"failed_calls"`
	TotalCost          float64            `json:"total_cost"`
	InputTokens        int                `json:"input_tokens"`
	OutputTokens       int                `json:"output_tokens"`
	DocumentsProcessed int                `json:"documents_processed"`
	CallsByModel       map[string]int     `json:"calls_by_model"`
	CostByModel        map[string]float64 `json:"cost_by_model"`
	AvgCostPerDocument float64            `json:"avg_cost_per_doc"`
}

// Stats returns aggregate numbers over every record.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		CallsByModel: make(map[string]int),
		CostByModel:  make(map[string]float64),
	}
	for _, r := range t.records {
		s.TotalCalls++
		if r.Success {
			s.SuccessfulCalls++
		} else {
			s.FailedCalls++
		}
		s.InputTokens += r.InputTokens
		s.OutputTokens += r.OutputTokens
		s.CallsByModel[r.Model]++
		s.CostByModel[r.Model] += r.Cost
	}
	s.TotalCost = t.total
	s.DocumentsProcessed = len(t.byDocument)
	if s.DocumentsProcessed > 0 {
		s.AvgCostPerDocument = s.TotalCost / float64(s.DocumentsProcessed)
	}
	return s
}

// Report summarizes the last days calendar days, today included.
type Report struct {
	Days                int                `json:"days"`
	From                time.Time          `json:"from"`
	To                  time.Time          `json:"to"`
	TotalDocuments      int                `json:"total_documents"`
	SuccessfulDocuments int                `json:"successful_documents"`
	FailedDocuments     int                `json:"failed_documents"`
	LLMCalls            int                `json:"llm_calls"`
	TotalCost           float64            `json:"total_cost"`
	CostByDay           map[string]float64 `json:"cost_by_day"`
}

// Report builds a report over a window of days (minimum 1).
func (t *Tracker) Report(days int) (Report, error) {
	if days <= 0 {
		return Report{}, common.NewAppError("COST_REPORT", "days must be positive", common.ErrInvalidInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	y, m, d := now.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(days - 1))

	rep := Report{Days: days, From: from, To: now, CostByDay: make(map[string]float64)}
	docOK := make(map[string]bool)
	for _, r := range t.records {
		if r.Timestamp.Before(from) || r.Timestamp.After(now) {
			continue
		}
		rep.LLMCalls++
		rep.TotalCost += r.Cost
		rep.CostByDay[r.Timestamp.Format(dayLayout)] += r.Cost
		if r.DocumentID == "" {
			continue
		}
		docOK[r.DocumentID] = docOK[r.DocumentID] || r.Success
	}
	rep.TotalDocuments = len(docOK)
	for _, ok := range docOK {
		if ok {
			rep.SuccessfulDocuments++
		} else {
			rep.FailedDocuments++
		}
	}
	return rep, nil
}

// ModelsByCost lists models from most to least expensive in this ledger.
func (s Stats) ModelsByCost() []string {
	names := make([]string, 0, len(s.CostByModel))
	for name := range s.CostByModel {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if s.CostByModel[names[i]] == s.CostByModel[names[j]] {
			return names[i] < names[j]
		}
		return s.CostByModel[names[i]] > s.CostByModel[names[j]]
	})
	return names
}

// IsLimitError reports whether err is a spend-limit denial and returns it.
func IsLimitError(err error) (*LimitError, bool) {
	var lerr *LimitError
	ok := errors.As(err, &lerr)
	return lerr, ok
}

func (t *Tracker) today() string {
	return t.now().Format(dayLayout)
}
