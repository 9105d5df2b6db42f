package validate

import (
	"fmt"
	"math"

	"github.com/SIMOUNIX/harvestor/internal/schema"
)

const (
	DefaultRoundNumberMin = 1000.0
	DefaultMaxQuantity    = 10_000.0
)

// RoundNumberRule flags totals that are exact multiples of 1000.
type RoundNumberRule struct{ MinAmount float64 }

func NewRoundNumberRule(minAmount float64) RoundNumberRule {
	return RoundNumberRule{MinAmount: minAmount}
}

func (RoundNumberRule) Name() string                   { return "round_number_anomaly" }
func (RoundNumberRule) Description() string            { return "Flags suspiciously round total amounts above threshold" }
func (RoundNumberRule) AppliesTo(s schema.Schema) bool { return invoiceOrReceipt(s) }

func (r RoundNumberRule) Check(data map[string]any, s schema.Schema) []Finding {
	field := "total"
	if isInvoice(s) {
		field = "total_amount"
	}
	total, ok := number(data[field])
	if !ok || total < r.MinAmount {
		return nil
	}
	if total != math.Trunc(total) || math.Mod(total, 1000) != 0 {
		return nil
	}
	return []Finding{{
		Rule:             r.Name(),
		Severity:         SeverityWarning,
		Message:          fmt.Sprintf("Total amount (%.2f) is a suspiciously round number", total),
		Field:            field,
		ConfidenceImpact: 0.05,
		FraudSignal:      true,
		FraudWeight:      0.15,
	}}
}

// DuplicateLineItemRule flags items repeated with the same name and amount.
type DuplicateLineItemRule struct{}

func (DuplicateLineItemRule) Name() string                   { return "duplicate_line_items" }
func (DuplicateLineItemRule) Description() string            { return "Detects line items with identical name and amount" }
func (DuplicateLineItemRule) AppliesTo(s schema.Schema) bool { return invoiceOrReceipt(s) }

func (r DuplicateLineItemRule) Check(data map[string]any, _ schema.Schema) []Finding {
	items, key := itemsOf(data)
	type itemKey struct {
		name   any
		amount any
	}
	seen := make(map[itemKey]int)
	var out []Finding
	for i, it := range items {
		item, ok := it.(map[string]any)
		if !ok {
			continue
		}
		k := itemKey{name: keyPart(item["name"]), amount: keyPart(item["amount"])}
		if k.name == nil && k.amount == nil {
			continue
		}
		if first, dup := seen[k]; dup {
			out = append(out, Finding{
				Rule:     r.Name(),
				Severity: SeverityWarning,
				Message: fmt.Sprintf("Duplicate line item: '%v' with amount %v appears at positions %d and %d",
					item["name"], item["amount"], first, i),
				Field:            fmt.Sprintf("%s[%d]", key, i),
				ConfidenceImpact: 0.05,
				FraudSignal:      true,
				FraudWeight:      0.2,
			})
			continue
		}
		seen[k] = i
	}
	return out
}

// keyPart keeps scalar values usable as map keys; anything else is keyed by its printed form.
func keyPart(v any) any {
	switch v.(type) {
	case nil, string, float64, bool:
		return v
	}
	return fmt.Sprint(v)
}

// ExtremeQuantityRule flags negative or implausibly large item quantities.
type ExtremeQuantityRule struct{ MaxQuantity float64 }

func NewExtremeQuantityRule(maxQuantity float64) ExtremeQuantityRule {
	return ExtremeQuantityRule{MaxQuantity: maxQuantity}
}

func (ExtremeQuantityRule) Name() string                   { return "extreme_quantity" }
func (ExtremeQuantityRule) Description() string            { return "Flags line items with quantities outside normal range" }
func (ExtremeQuantityRule) AppliesTo(s schema.Schema) bool { return invoiceOrReceipt(s) }

func (r ExtremeQuantityRule) Check(data map[string]any, _ schema.Schema) []Finding {
	items, key := itemsOf(data)
	var out []Finding
	for i, it := range items {
		item, ok := it.(map[string]any)
		if !ok {
			continue
		}
		qty, ok := number(item["quantity"])
		if !ok {
			continue
		}
		field := fmt.Sprintf("%s[%d].quantity", key, i)
		switch {
		case qty < 0:
			out = append(out, Finding{
				Rule:             r.Name(),
				Severity:         SeverityWarning,
				Message:          fmt.Sprintf("Line item '%s' has negative quantity: %g", itemName(item, i), qty),
				Field:            field,
				ConfidenceImpact: 0.1,
				FraudSignal:      true,
				FraudWeight:      0.15,
			})
		case qty > r.MaxQuantity:
			out = append(out, Finding{
				Rule:     r.Name(),
				Severity: SeverityWarning,
				Message: fmt.Sprintf("Line item '%s' has extreme quantity: %g (threshold: %g)",
					itemName(item, i), qty, r.MaxQuantity),
				Field:            field,
				ConfidenceImpact: 0.05,
				FraudSignal:      true,
				FraudWeight:      0.15,
			})
		}
	}
	return out
}
