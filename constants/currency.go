package constants

import (
	"strings"
)

// Currencies is the set of ISO 4217 codes accepted without a warning.
var Currencies = map[string]struct{}{
	"USD": {}, "EUR": {}, "GBP": {}, "JPY": {}, "CHF": {}, "CAD": {}, "AUD": {}, "NZD": {},
	"CNY": {}, "HKD": {}, "SGD": {}, "SEK": {}, "NOK": {}, "DKK": {}, "KRW": {}, "INR": {},
	"BRL": {}, "MXN": {}, "ZAR": {}, "RUB": {}, "TRY": {}, "PLN": {}, "CZK": {}, "HUF": {},
	"ILS": {}, "THB": {}, "MYR": {}, "PHP": {}, "IDR": {}, "TWD": {}, "AED": {}, "SAR": {},
	"ARS": {}, "CLP": {}, "COP": {}, "PEN": {}, "EGP": {}, "NGN": {}, "KES": {}, "MAD": {},
}

// IsCurrency reports whether code is a known ISO 4217 code (case-insensitive).
func IsCurrency(code string) bool {
	_, ok := Currencies[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// CanonicalizeCurrency maps symbols and common names to an ISO code.
// The second return value is false when nothing matched; the input is then returned trimmed.
func CanonicalizeCurrency(input string) (string, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", false
	}

	synonyms := map[string]string{
		"$":      "USD",
		"us$":    "USD",
		"dollar": "USD",
		"€":      "EUR",
		"euro":   "EUR",
		"euros":  "EUR",
		"£":      "GBP",
		"pound":  "GBP",
		"¥":      "JPY",
		"yen":    "JPY",
		"₹":      "INR",
		"rupee":  "INR",
		"fr.":    "CHF",
		"c$":     "CAD",
		"a$":     "AUD",
	}
	if code, ok := synonyms[strings.ToLower(s)]; ok {
		return code, true
	}

	upper := strings.ToUpper(s)
	if _, ok := Currencies[upper]; ok {
		return upper, true
	}
	return s, false
}
