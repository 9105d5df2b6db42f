// Package privacy replaces structured PII in document text with placeholders
// before it reaches a model, and puts the originals back into the extracted data.
package privacy

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Entity names.
const (
	Email      = "EMAIL"
	CreditCard = "CREDIT_CARD"
	IBAN       = "IBAN"
	SSN        = "SSN"
	PhoneUS    = "PHONE_US"
	PhoneIntl  = "PHONE_INTL"
	IPAddress  = "IP_ADDRESS"
	VATEU      = "VAT_EU"
)

// DefaultEntities is the detection order; on equal-length overlaps the earlier entity wins.
var DefaultEntities = []string{Email, CreditCard, IBAN, SSN, PhoneUS, PhoneIntl, IPAddress, VATEU}

var patterns = map[string]*regexp.Regexp{
	Email:      regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	CreditCard: regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`),
	IBAN:       regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{4,30}\b`),
	SSN:        regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	PhoneUS:    regexp.MustCompile(`(?:\+1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
	PhoneIntl:  regexp.MustCompile(`\+\d{10,15}\b`),
	IPAddress:  regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\b`),
	VATEU:      regexp.MustCompile(`\b[A-Z]{2}\d{8,12}\b`),
}

var reNonDigit = regexp.MustCompile(`\D`)

type entityPattern struct {
	name string
	re   *regexp.Regexp
}

type Redactor struct {
	patterns []entityPattern
	logger   *slog.Logger
}

type Option func(*Redactor)

// WithEntities limits detection to the named built-in entities. Unknown names are ignored.
func WithEntities(names ...string) Option {
	return func(r *Redactor) {
		r.patterns = r.patterns[:0]
		for _, n := range names {
			if re, ok := patterns[n]; ok {
				r.patterns = append(r.patterns, entityPattern{name: n, re: re})
			}
		}
	}
}

// WithPattern adds a custom entity, or replaces a built-in one of the same name.
func WithPattern(name string, re *regexp.Regexp) Option {
	return func(r *Redactor) {
		for i, p := range r.patterns {
			if p.name == name {
				r.patterns[i].re = re
				return
			}
		}
		r.patterns = append(r.patterns, entityPattern{name: name, re: re})
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Redactor) { r.logger = l }
}

func NewRedactor(opts ...Option) *Redactor {
	r := &Redactor{logger: slog.Default()}
	for _, n := range DefaultEntities {
		r.patterns = append(r.patterns, entityPattern{name: n, re: patterns[n]})
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Entities lists the entity names this redactor detects.
func (r *Redactor) Entities() []string {
	out := make([]string, len(r.patterns))
	for i, p := range r.patterns {
		out[i] = p.name
	}
	return out
}

type match struct {
	start, end int
	entity     string
	order      int
}

// Redact replaces every detected value with a placeholder such as [EMAIL_1].
// Overlapping detections keep the longest span. Placeholders are numbered in text order.
func (r *Redactor) Redact(text string) (string, *Map) {
	m := NewMap()

	var found []match
	for i, p := range r.patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if !plausible(text, loc[0], loc[1], p.name) {
				continue
			}
			found = append(found, match{start: loc[0], end: loc[1], entity: p.name, order: i})
		}
	}
	if len(found) == 0 {
		return text, m
	}

	sort.SliceStable(found, func(i, j int) bool {
		li, lj := found[i].end-found[i].start, found[j].end-found[j].start
		if li != lj {
			return li > lj
		}
		if found[i].order != found[j].order {
			return found[i].order < found[j].order
		}
		return found[i].start < found[j].start
	})
	var kept []match
	for _, f := range found {
		overlaps := false
		for _, k := range kept {
			if f.start < k.end && k.start < f.end {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, f)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].start < kept[j].start })

	var b strings.Builder
	last := 0
	for _, k := range kept {
		b.WriteString(text[last:k.start])
		b.WriteString(m.Add(text[k.start:k.end], k.entity))
		last = k.end
	}
	b.WriteString(text[last:])

	r.logger.Debug("privacy.redact", "entities", len(kept), "unique", m.Len())
	return b.String(), m
}

// plausible drops matches that only look like the entity.
func plausible(text string, start, end int, entity string) bool {
	value := text[start:end]
	switch entity {
	case CreditCard:
		n := len(reNonDigit.ReplaceAllString(value, ""))
		return n >= 13 && n <= 19
	case PhoneUS:
		digits := reNonDigit.ReplaceAllString(value, "")
		if len(digits) == 11 && digits[0] == '1' {
			digits = digits[1:]
		}
		return len(digits) == 10 && standalone(text, start, end)
	case PhoneIntl:
		return standalone(text, start, end)
	}
	return true
}

// standalone reports whether the span is not glued to letters or digits on either side.
func standalone(text string, start, end int) bool {
	if start > 0 && isAlnum(rune(text[start-1])) {
		return false
	}
	if end < len(text) && isAlnum(rune(text[end])) {
		return false
	}
	return true
}

func isAlnum(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

// Restore returns a copy of data with every placeholder replaced by its original value.
// Maps, slices and strings are walked; other values are returned as is.
func (r *Redactor) Restore(data any, m *Map) any {
	if m == nil || m.Len() == 0 {
		return data
	}
	return restore(data, m)
}

func restore(v any, m *Map) any {
	switch t := v.(type) {
	case string:
		return m.RestoreString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = restore(val, m)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = restore(val, m)
		}
		return out
	}
	return v
}
