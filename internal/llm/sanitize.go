package llm

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/SIMOUNIX/harvestor/constants"
	"github.com/SIMOUNIX/harvestor/internal/schema"
)

var (
	reMoneyNoise = regexp.MustCompile(`[^\d.,\-]`)
	reDigits     = regexp.MustCompile(`\d`)
)

// Sanitize coerces model output toward the schema before it is validated:
//   - numbers written as strings ("$1,234.50", "12,50 €") become numbers
//   - scalar strings are trimmed; empty strings and "null" become null
//   - numbers in string fields become strings (invoice numbers, zip codes)
//   - currency symbols and names become ISO codes
//   - card_last_four keeps its last four digits
//
// Values that cannot be coerced are set to null and reported. The input map is not modified.
func Sanitize(data map[string]any, s schema.Schema, logger *slog.Logger) (map[string]any, []string) {
	if logger == nil {
		logger = slog.Default()
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	var warnings []string
	sanitizeFields(out, s.Fields, "", &warnings)

	if len(warnings) > 0 {
		logger.Warn("llm.extract.sanitize", "schema", s.Name, "changes", warnings)
	}
	return out, warnings
}

func sanitizeFields(m map[string]any, fields []schema.Field, prefix string, warnings *[]string) {
	for _, f := range fields {
		v, ok := m[f.Name]
		if !ok || v == nil {
			continue
		}
		path := prefix + f.Name
		nv, note := coerce(f, v, path, warnings)
		if note != "" {
			*warnings = append(*warnings, path+": "+note)
		}
		m[f.Name] = nv
	}
}

func coerce(f schema.Field, v any, path string, warnings *[]string) (any, string) {
	if s, ok := v.(string); ok {
		t := strings.TrimSpace(s)
		if t == "" || strings.EqualFold(t, "null") || strings.EqualFold(t, "n/a") {
			return nil, ""
		}
		v = t
	}

	switch f.Type {
	case schema.Number, schema.Integer:
		var n float64
		var note string
		switch t := v.(type) {
		case float64:
			n = t
		case string:
			p, ok := ParseAmount(t)
			if !ok {
				return nil, fmt.Sprintf("dropped non-numeric value %q", t)
			}
			n, note = p, fmt.Sprintf("coerced %q to number", t)
		default:
			return nil, fmt.Sprintf("dropped %T value", v)
		}
		if f.Type == schema.Integer && n != math.Trunc(n) {
			return nil, fmt.Sprintf("dropped non-integer value %v", v)
		}
		return n, note

	case schema.String, "":
		var str string
		switch t := v.(type) {
		case string:
			str = t
		case float64:
			str = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			str = strconv.FormatBool(t)
		default:
			return nil, fmt.Sprintf("dropped %T value", v)
		}
		return normalizeStringField(f.Name, str)

	case schema.Boolean:
		switch t := v.(type) {
		case bool:
			return t, ""
		case string:
			if b, err := strconv.ParseBool(strings.ToLower(t)); err == nil {
				return b, fmt.Sprintf("coerced %q to boolean", t)
			}
		}
		return nil, fmt.Sprintf("dropped non-boolean value %v", v)

	case schema.Array:
		items, ok := v.([]any)
		if !ok {
			if obj, isObj := v.(map[string]any); isObj {
				items = []any{obj}
			} else {
				return nil, fmt.Sprintf("dropped %T value, want array", v)
			}
		}
		items = append([]any(nil), items...)
		if len(f.Items) > 0 {
			for i, it := range items {
				if obj, ok := it.(map[string]any); ok {
					cp := make(map[string]any, len(obj))
					for k, val := range obj {
						cp[k] = val
					}
					sanitizeFields(cp, f.Items, fmt.Sprintf("%s[%d].", path, i), warnings)
					items[i] = cp
				}
			}
		}
		return items, ""

	case schema.Object:
		if _, ok := v.(map[string]any); ok {
			return v, ""
		}
		return nil, fmt.Sprintf("dropped %T value, want object", v)
	}
	return v, ""
}

func normalizeStringField(name, s string) (any, string) {
	switch name {
	case "currency":
		if code, ok := constants.CanonicalizeCurrency(s); ok {
			if code != s {
				return code, fmt.Sprintf("normalized %q to %s", s, code)
			}
			return code, ""
		}
		return s, ""
	case "card_last_four":
		digits := strings.Join(reDigits.FindAllString(s, -1), "")
		if len(digits) < 4 {
			return s, ""
		}
		last := digits[len(digits)-4:]
		if last != s {
			return last, fmt.Sprintf("kept last four digits of %q", s)
		}
		return last, ""
	}
	return s, ""
}

// ParseAmount reads a money-ish string: currency symbols and spaces are ignored, and both
// "1,234.50" and "1.234,50" are understood. A lone comma followed by one or two digits is a
// decimal separator.
func ParseAmount(s string) (float64, bool) {
	neg := strings.HasPrefix(strings.TrimSpace(s), "(") && strings.HasSuffix(strings.TrimSpace(s), ")")
	clean := reMoneyNoise.ReplaceAllString(s, "")
	if clean == "" || clean == "-" {
		return 0, false
	}

	lastDot := strings.LastIndex(clean, ".")
	lastComma := strings.LastIndex(clean, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(clean, ",") == 1 && len(clean)-lastComma-1 <= 2 {
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	}

	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}
	if neg && f > 0 {
		f = -f
	}
	return f, true
}
