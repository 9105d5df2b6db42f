// Package validate runs consistency, format, business and anomaly rules over
// extracted data and scores the result.
package validate

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/SIMOUNIX/harvestor/internal/schema"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Fraud risk levels, from the capped sum of fraud weights.
const (
	RiskClean    = "clean"
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Finding is one problem reported by a rule.
type Finding struct {
	Rule             string   `json:"rule"`
	Severity         Severity `json:"severity"`
	Message          string   `json:"message"`
	Field            string   `json:"field,omitempty"`
	ConfidenceImpact float64  `json:"confidence_impact"`
	FraudSignal      bool     `json:"fraud_signal"`
	FraudWeight      float64  `json:"fraud_weight"`
}

// Rule checks extracted data. Rules must not modify data.
type Rule interface {
	Name() string
	Description() string
	AppliesTo(s schema.Schema) bool
	Check(data map[string]any, s schema.Schema) []Finding
}

// Report is the outcome of running every applicable rule.
type Report struct {
	IsValid      bool      `json:"is_valid"`
	Confidence   float64   `json:"confidence"`
	Errors       []string  `json:"errors"`
	Warnings     []string  `json:"warnings"`
	Findings     []Finding `json:"findings"`
	FraudChecked bool      `json:"fraud_checked"`
	FraudRisk    string    `json:"fraud_risk"`
	FraudReasons []string  `json:"fraud_reasons"`
	RulesChecked []string  `json:"rules_checked"`
	Cost         float64   `json:"cost"`
	Timestamp    time.Time `json:"timestamp"`
}

type Engine struct {
	rules  []Rule
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Engine)

// WithRules appends custom rules after the defaults.
func WithRules(rules ...Rule) Option {
	return func(e *Engine) { e.rules = append(e.rules, rules...) }
}

// WithoutDefaults drops the built-in rules; combine with WithRules.
func WithoutDefaults() Option {
	return func(e *Engine) { e.rules = nil }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{rules: DefaultRules(), now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

func (e *Engine) AddRule(r Rule) {
	e.rules = append(e.rules, r)
}

func (e *Engine) RemoveRule(name string) {
	kept := e.rules[:0]
	for _, r := range e.rules {
		if r.Name() != name {
			kept = append(kept, r)
		}
	}
	e.rules = kept
}

// Validate runs every rule that applies to s. A rule that panics is reported as a warning and skipped.
func (e *Engine) Validate(data map[string]any, s schema.Schema) Report {
	var findings []Finding
	checked := make([]string, 0, len(e.rules))

	for _, r := range e.rules {
		if !r.AppliesTo(s) {
			continue
		}
		checked = append(checked, r.Name())
		findings = append(findings, e.runRule(r, data, s)...)
	}

	rep := buildReport(findings, checked)
	rep.Timestamp = e.now()
	e.logger.Debug("validate.done",
		"schema", s.Name,
		"rules", len(checked),
		"errors", len(rep.Errors),
		"warnings", len(rep.Warnings),
		"fraud_risk", rep.FraudRisk,
		"confidence", rep.Confidence,
	)
	return rep
}

func (e *Engine) runRule(r Rule, data map[string]any, s schema.Schema) (out []Finding) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Warn("validate.rule.panic", "rule", r.Name(), "panic", fmt.Sprint(p))
			out = []Finding{{
				Rule:     r.Name(),
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Rule '%s' raised an exception and was skipped", r.Name()),
			}}
		}
	}()
	return r.Check(data, s)
}

func buildReport(findings []Finding, checked []string) Report {
	rep := Report{
		Findings:     findings,
		RulesChecked: checked,
		FraudChecked: len(checked) > 0,
		Errors:       []string{},
		Warnings:     []string{},
		FraudReasons: []string{},
	}

	confidence := 1.0
	var fraud []Finding
	for _, f := range findings {
		switch f.Severity {
		case SeverityError:
			rep.Errors = append(rep.Errors, f.Message)
		case SeverityWarning:
			rep.Warnings = append(rep.Warnings, f.Message)
		}
		confidence -= f.ConfidenceImpact
		if f.FraudSignal {
			fraud = append(fraud, f)
			rep.FraudReasons = append(rep.FraudReasons, f.Message)
		}
	}
	rep.Confidence = clamp01(confidence)
	rep.IsValid = len(rep.Errors) == 0
	rep.FraudRisk = fraudRisk(fraud)
	return rep
}

func fraudRisk(fraud []Finding) string {
	if len(fraud) == 0 {
		return RiskClean
	}
	var total float64
	for _, f := range fraud {
		total += f.FraudWeight
	}
	if total > 1 {
		total = 1
	}
	switch {
	case total < 0.01:
		return RiskClean
	case total < 0.2:
		return RiskLow
	case total < 0.5:
		return RiskMedium
	case total < 0.8:
		return RiskHigh
	default:
		return RiskCritical
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DefaultRules returns the built-in rules with default thresholds.
func DefaultRules() []Rule {
	return []Rule{
		// math
		NewLineItemsSumRule(DefaultTolerance),
		NewSubtotalTaxTotalRule(DefaultTolerance),
		NewLineItemMathRule(DefaultTolerance),
		NewTaxConsistencyRule(DefaultTolerance),
		// format
		DateFormatRule{},
		CurrencyCodeRule{},
		TaxIDFormatRule{},
		CardLastFourRule{},
		// business
		RequiredFieldsRule{},
		DueDateAfterIssueDateRule{},
		NegativeAmountsRule{},
		NewAmountThresholdRule(DefaultAmountThreshold),
		EmptyLineItemsRule{},
		// anomaly
		NewRoundNumberRule(DefaultRoundNumberMin),
		DuplicateLineItemRule{},
		NewExtremeQuantityRule(DefaultMaxQuantity),
	}
}
