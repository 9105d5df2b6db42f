package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/SIMOUNIX/harvestor/constants"
	"github.com/SIMOUNIX/harvestor/internal/schema"
)

var reDateLike = regexp.MustCompile(strings.Join([]string{
	`(?:\d{4}-\d{2}-\d{2})`,
	`(?:\d{2}/\d{2}/\d{4})`,
	`(?:\d{2}-\d{2}-\d{4})`,
	`(?:\d{1,2}\s+\w+\s+\d{4})`,
	`(?:\w+\s+\d{1,2},?\s+\d{4})`,
	`(?:\d{2}\.\d{2}\.\d{4})`,
}, "|"))

var reFourDigits = regexp.MustCompile(`^\d{4}$`)

// DateFormatRule flags date fields that look like no known date format.
type DateFormatRule struct{}

func (DateFormatRule) Name() string                   { return "date_format_valid" }
func (DateFormatRule) Description() string            { return "Verifies that date fields match common date patterns" }
func (DateFormatRule) AppliesTo(s schema.Schema) bool { return invoiceOrReceipt(s) }

func (r DateFormatRule) Check(data map[string]any, s schema.Schema) []Finding {
	fields := []string{"date"}
	if isInvoice(s) {
		fields = append(fields, "due_date")
	}
	var out []Finding
	for _, name := range fields {
		v, ok := data[name].(string)
		if !ok || reDateLike.MatchString(v) {
			continue
		}
		out = append(out, Finding{
			Rule:             r.Name(),
			Severity:         SeverityWarning,
			Message:          fmt.Sprintf("Field '%s' value '%s' does not match common date formats", name, v),
			Field:            name,
			ConfidenceImpact: 0.05,
		})
	}
	return out
}

// CurrencyCodeRule flags invoice currencies that are not ISO 4217 codes.
type CurrencyCodeRule struct{}

func (CurrencyCodeRule) Name() string                   { return "currency_code_valid" }
func (CurrencyCodeRule) Description() string            { return "Verifies that currency field is a valid ISO 4217 code" }
func (CurrencyCodeRule) AppliesTo(s schema.Schema) bool { return isInvoice(s) }

func (r CurrencyCodeRule) Check(data map[string]any, _ schema.Schema) []Finding {
	cur, ok := data["currency"].(string)
	if !ok || constants.IsCurrency(cur) {
		return nil
	}
	return []Finding{{
		Rule:             r.Name(),
		Severity:         SeverityWarning,
		Message:          fmt.Sprintf("Currency code '%s' is not a recognized ISO 4217 code", cur),
		Field:            "currency",
		ConfidenceImpact: 0.05,
	}}
}

// TaxIDFormatRule flags vendor tax ids that are too short to be real.
type TaxIDFormatRule struct{}

func (TaxIDFormatRule) Name() string { return "tax_id_format_valid" }
func (TaxIDFormatRule) Description() string {
	return "Verifies that vendor tax ID is non-empty and has minimum length"
}
func (TaxIDFormatRule) AppliesTo(s schema.Schema) bool { return isInvoice(s) }

func (r TaxIDFormatRule) Check(data map[string]any, _ schema.Schema) []Finding {
	id, ok := data["vendor_tax_id"].(string)
	if !ok || len([]rune(strings.TrimSpace(id))) >= 5 {
		return nil
	}
	return []Finding{{
		Rule:             r.Name(),
		Severity:         SeverityWarning,
		Message:          fmt.Sprintf("Vendor tax ID '%s' is suspiciously short (< 5 characters)", id),
		Field:            "vendor_tax_id",
		ConfidenceImpact: 0.05,
		FraudSignal:      true,
		FraudWeight:      0.1,
	}}
}

// CardLastFourRule checks receipts carry exactly four card digits.
type CardLastFourRule struct{}

func (CardLastFourRule) Name() string                   { return "card_last_four_format" }
func (CardLastFourRule) Description() string            { return "Verifies that card_last_four is exactly 4 digits" }
func (CardLastFourRule) AppliesTo(s schema.Schema) bool { return isReceipt(s) }

func (r CardLastFourRule) Check(data map[string]any, _ schema.Schema) []Finding {
	v, ok := data["card_last_four"]
	if !ok || v == nil {
		return nil
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if reFourDigits.MatchString(s) {
		return nil
	}
	return []Finding{{
		Rule:             r.Name(),
		Severity:         SeverityWarning,
		Message:          fmt.Sprintf("card_last_four '%v' is not exactly 4 digits", v),
		Field:            "card_last_four",
		ConfidenceImpact: 0.05,
	}}
}
