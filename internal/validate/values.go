package validate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/SIMOUNIX/harvestor/internal/schema"
)

func isInvoice(s schema.Schema) bool { return s.DocType() == "invoice" }
func isReceipt(s schema.Schema) bool { return s.DocType() == "receipt" }

func invoiceOrReceipt(s schema.Schema) bool { return isInvoice(s) || isReceipt(s) }

// number reads a JSON number. Strings are not numbers here; sanitizing happens earlier.
func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

// firstNonZero mimics "a or b": the first present, non-zero number.
func firstNonZero(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := number(m[k]); ok && f != 0 {
			return f, true
		}
	}
	return 0, false
}

// itemsOf returns the line-item list and the key it lives under.
func itemsOf(data map[string]any) ([]any, string) {
	key := "items"
	if _, ok := data["line_items"]; ok {
		key = "line_items"
	}
	items, _ := data[key].([]any)
	return items, key
}

func itemName(item map[string]any, i int) string {
	if s, ok := item["name"].(string); ok && s != "" {
		return s
	}
	return fmt.Sprintf("item #%d", i+1)
}

var reISODate = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)

var dateLayouts = []string{
	"01/02/2006",
	"02/01/2006",
	"01-02-2006",
	"02-01-2006",
	"January 2, 2006",
	"January 2 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"02.01.2006",
}

// parseDate understands ISO dates and the common layouts models produce. US order wins on ambiguity.
func parseDate(s string) (time.Time, bool) {
	if m := reISODate.FindStringSubmatch(s); m != nil {
		if t, err := time.Parse("2006-01-02", m[1]+"-"+m[2]+"-"+m[3]); err == nil {
			return t, true
		}
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
