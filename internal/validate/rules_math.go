package validate

import (
	"fmt"
	"math"

	"github.com/SIMOUNIX/harvestor/internal/schema"
)

// DefaultTolerance is the absolute money difference ignored by arithmetic rules.
const DefaultTolerance = 0.02

// LineItemsSumRule checks that line item amounts add up to the subtotal.
type LineItemsSumRule struct{ Tolerance float64 }

func NewLineItemsSumRule(tolerance float64) LineItemsSumRule {
	return LineItemsSumRule{Tolerance: tolerance}
}

func (LineItemsSumRule) Name() string { return "line_items_sum_to_subtotal" }
func (LineItemsSumRule) Description() string {
	return "Verifies that the sum of line item amounts equals the subtotal"
}
func (LineItemsSumRule) AppliesTo(s schema.Schema) bool { return invoiceOrReceipt(s) }

func (r LineItemsSumRule) Check(data map[string]any, _ schema.Schema) []Finding {
	items, _ := itemsOf(data)
	subtotal, ok := number(data["subtotal"])
	if items == nil || !ok {
		return nil
	}

	var sum float64
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			if a, ok := number(m["amount"]); ok {
				sum += a
			}
		}
	}

	diff := math.Abs(sum - subtotal)
	if diff <= r.Tolerance {
		return nil
	}
	f := Finding{
		Rule:             r.Name(),
		Severity:         SeverityWarning,
		Message:          fmt.Sprintf("Line items sum (%.2f) does not match subtotal (%.2f), diff=%.2f", sum, subtotal, diff),
		Field:            "subtotal",
		ConfidenceImpact: 0.05,
	}
	if diff > 1.0 {
		f.Severity = SeverityError
		f.ConfidenceImpact = 0.15
		f.FraudSignal = true
		f.FraudWeight = 0.2
	}
	return []Finding{f}
}

// SubtotalTaxTotalRule checks subtotal + tax - discount = total.
type SubtotalTaxTotalRule struct{ Tolerance float64 }

func NewSubtotalTaxTotalRule(tolerance float64) SubtotalTaxTotalRule {
	return SubtotalTaxTotalRule{Tolerance: tolerance}
}

func (SubtotalTaxTotalRule) Name() string { return "subtotal_plus_tax_equals_total" }
func (SubtotalTaxTotalRule) Description() string {
	return "Verifies that subtotal + tax - discount equals total"
}
func (SubtotalTaxTotalRule) AppliesTo(s schema.Schema) bool { return invoiceOrReceipt(s) }

func (r SubtotalTaxTotalRule) Check(data map[string]any, s schema.Schema) []Finding {
	taxKey, totalKey := "tax", "total"
	var discount float64
	if isInvoice(s) {
		taxKey, totalKey = "tax_amount", "total_amount"
		discount, _ = number(data["discount"])
	}

	subtotal, okSub := number(data["subtotal"])
	total, okTotal := number(data[totalKey])
	if !okSub || !okTotal {
		return nil
	}
	tax, _ := number(data[taxKey])

	expected := subtotal + tax - discount
	diff := math.Abs(expected - total)
	if diff <= r.Tolerance {
		return nil
	}
	f := Finding{
		Rule:     r.Name(),
		Severity: SeverityWarning,
		Message: fmt.Sprintf("Subtotal (%.2f) + tax (%.2f) - discount (%.2f) = %.2f, but total is %.2f, diff=%.2f",
			subtotal, tax, discount, expected, total, diff),
		Field:            totalKey,
		ConfidenceImpact: 0.05,
	}
	if diff > 1.0 {
		f.Severity = SeverityError
		f.ConfidenceImpact = 0.15
		f.FraudSignal = true
		f.FraudWeight = 0.25
	}
	return []Finding{f}
}

// LineItemMathRule checks quantity * unit price ~= amount for each item.
type LineItemMathRule struct{ Tolerance float64 }

func NewLineItemMathRule(tolerance float64) LineItemMathRule {
	return LineItemMathRule{Tolerance: tolerance}
}

func (LineItemMathRule) Name() string { return "line_item_internal_math" }
func (LineItemMathRule) Description() string {
	return "Verifies that quantity * unit_price equals amount for each line item"
}
func (LineItemMathRule) AppliesTo(s schema.Schema) bool { return invoiceOrReceipt(s) }

func (r LineItemMathRule) Check(data map[string]any, _ schema.Schema) []Finding {
	items, key := itemsOf(data)
	var out []Finding
	for i, it := range items {
		item, ok := it.(map[string]any)
		if !ok {
			continue
		}
		qty, okQ := number(item["quantity"])
		amount, okA := number(item["amount"])
		price, okP := firstNonZero(item, "unit_price_with_taxes", "unit_price_without_taxes")
		if !okQ || !okA || !okP {
			continue
		}
		expected := qty * price
		if math.Abs(expected-amount) <= r.Tolerance {
			continue
		}
		out = append(out, Finding{
			Rule:     r.Name(),
			Severity: SeverityWarning,
			Message: fmt.Sprintf("Line item '%s': quantity (%g) * unit_price (%.2f) = %.2f, but amount is %.2f",
				itemName(item, i), qty, price, expected, amount),
			Field:            fmt.Sprintf("%s[%d].amount", key, i),
			ConfidenceImpact: 0.05,
		})
	}
	return out
}

// TaxConsistencyRule checks item taxes against taxes_percentage of the base price.
type TaxConsistencyRule struct{ Tolerance float64 }

func NewTaxConsistencyRule(tolerance float64) TaxConsistencyRule {
	return TaxConsistencyRule{Tolerance: tolerance}
}

func (TaxConsistencyRule) Name() string { return "tax_percentage_consistency" }
func (TaxConsistencyRule) Description() string {
	return "Verifies that taxes match taxes_percentage * base price for line items"
}
func (TaxConsistencyRule) AppliesTo(s schema.Schema) bool { return invoiceOrReceipt(s) }

func (r TaxConsistencyRule) Check(data map[string]any, _ schema.Schema) []Finding {
	items, key := itemsOf(data)
	var out []Finding
	for i, it := range items {
		item, ok := it.(map[string]any)
		if !ok {
			continue
		}
		taxes, okT := number(item["taxes"])
		pct, okP := number(item["taxes_percentage"])
		base, okB := firstNonZero(item, "unit_price_without_taxes", "amount")
		if !okT || !okP || !okB {
			continue
		}
		expected := base * pct / 100
		if math.Abs(expected-taxes) <= r.Tolerance {
			continue
		}
		out = append(out, Finding{
			Rule:     r.Name(),
			Severity: SeverityWarning,
			Message: fmt.Sprintf("Line item '%s': expected taxes %.2f (%g%% of %.2f), but got %.2f",
				itemName(item, i), expected, pct, base, taxes),
			Field:            fmt.Sprintf("%s[%d].taxes", key, i),
			ConfidenceImpact: 0.05,
		})
	}
	return out
}
