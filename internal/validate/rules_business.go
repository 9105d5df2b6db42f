package validate

import (
	"fmt"
	"strings"

	"github.com/SIMOUNIX/harvestor/internal/schema"
)

const DefaultAmountThreshold = 100_000.0

// RequiredFieldsRule flags missing critical fields.
type RequiredFieldsRule struct{}

func (RequiredFieldsRule) Name() string                   { return "required_fields_present" }
func (RequiredFieldsRule) Description() string            { return "Verifies that critical fields are present and non-null" }
func (RequiredFieldsRule) AppliesTo(s schema.Schema) bool { return invoiceOrReceipt(s) }

func (r RequiredFieldsRule) Check(data map[string]any, s schema.Schema) []Finding {
	required := []string{"merchant_name", "date", "total"}
	if isInvoice(s) {
		required = []string{"invoice_number", "date", "total_amount", "vendor_name"}
	}
	var out []Finding
	for _, name := range required {
		v := data[name]
		if str, ok := v.(string); v != nil && (!ok || strings.TrimSpace(str) != "") {
			continue
		}
		out = append(out, Finding{
			Rule:             r.Name(),
			Severity:         SeverityWarning,
			Message:          fmt.Sprintf("Required field '%s' is missing or empty", name),
			Field:            name,
			ConfidenceImpact: 0.05,
		})
	}
	return out
}

// DueDateAfterIssueDateRule flags invoices due before they were issued.
type DueDateAfterIssueDateRule struct{}

func (DueDateAfterIssueDateRule) Name() string { return "due_date_after_issue_date" }
func (DueDateAfterIssueDateRule) Description() string {
	return "Verifies that due_date is on or after the issue date"
}
func (DueDateAfterIssueDateRule) AppliesTo(s schema.Schema) bool { return isInvoice(s) }

func (r DueDateAfterIssueDateRule) Check(data map[string]any, _ schema.Schema) []Finding {
	if data["date"] == nil || data["due_date"] == nil {
		return nil
	}
	issueStr, dueStr := fmt.Sprint(data["date"]), fmt.Sprint(data["due_date"])
	issue, ok1 := parseDate(issueStr)
	due, ok2 := parseDate(dueStr)
	if !ok1 || !ok2 || !due.Before(issue) {
		return nil
	}
	return []Finding{{
		Rule:             r.Name(),
		Severity:         SeverityWarning,
		Message:          fmt.Sprintf("Due date (%s) is before issue date (%s)", dueStr, issueStr),
		Field:            "due_date",
		ConfidenceImpact: 0.1,
		FraudSignal:      true,
		FraudWeight:      0.15,
	}}
}

// NegativeAmountsRule flags negative totals, subtotals and taxes.
type NegativeAmountsRule struct{}

func (NegativeAmountsRule) Name() string                   { return "no_negative_amounts" }
func (NegativeAmountsRule) Description() string            { return "Verifies that monetary amounts are non-negative" }
func (NegativeAmountsRule) AppliesTo(s schema.Schema) bool { return invoiceOrReceipt(s) }

func (r NegativeAmountsRule) Check(data map[string]any, s schema.Schema) []Finding {
	fields := []string{"total", "subtotal", "tax"}
	if isInvoice(s) {
		fields = []string{"total_amount", "subtotal", "tax_amount"}
	}
	var out []Finding
	for _, name := range fields {
		v, ok := number(data[name])
		if !ok || v >= 0 {
			continue
		}
		out = append(out, Finding{
			Rule:             r.Name(),
			Severity:         SeverityError,
			Message:          fmt.Sprintf("Field '%s' has negative value: %g", name, v),
			Field:            name,
			ConfidenceImpact: 0.15,
			FraudSignal:      true,
			FraudWeight:      0.3,
		})
	}
	return out
}

// AmountThresholdRule flags unusually large totals.
type AmountThresholdRule struct{ Threshold float64 }

func NewAmountThresholdRule(threshold float64) AmountThresholdRule {
	return AmountThresholdRule{Threshold: threshold}
}

func (AmountThresholdRule) Name() string { return "amount_threshold" }
func (r AmountThresholdRule) Description() string {
	return fmt.Sprintf("Flags documents with total amount exceeding %g", r.Threshold)
}
func (AmountThresholdRule) AppliesTo(s schema.Schema) bool { return invoiceOrReceipt(s) }

func (r AmountThresholdRule) Check(data map[string]any, s schema.Schema) []Finding {
	field := "total"
	if isInvoice(s) {
		field = "total_amount"
	}
	total, ok := number(data[field])
	if !ok || total <= r.Threshold {
		return nil
	}
	return []Finding{{
		Rule:             r.Name(),
		Severity:         SeverityWarning,
		Message:          fmt.Sprintf("Total amount (%.2f) exceeds threshold (%.2f)", total, r.Threshold),
		Field:            field,
		ConfidenceImpact: 0.05,
		FraudSignal:      true,
		FraudWeight:      0.1,
	}}
}

// EmptyLineItemsRule flags an item list that is present but empty.
type EmptyLineItemsRule struct{}

func (EmptyLineItemsRule) Name() string                   { return "line_items_not_empty" }
func (EmptyLineItemsRule) Description() string            { return "Verifies that line items list is not empty when present" }
func (EmptyLineItemsRule) AppliesTo(s schema.Schema) bool { return invoiceOrReceipt(s) }

func (r EmptyLineItemsRule) Check(data map[string]any, _ schema.Schema) []Finding {
	items, key := itemsOf(data)
	if items == nil || len(items) > 0 {
		return nil
	}
	return []Finding{{
		Rule:             r.Name(),
		Severity:         SeverityWarning,
		Message:          fmt.Sprintf("'%s' is present but empty", key),
		Field:            key,
		ConfidenceImpact: 0.05,
	}}
}
