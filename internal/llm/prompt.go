package llm

import (
	"fmt"
	"strings"
)

// DefaultMaxInputChars bounds the document text sent with a text prompt.
const DefaultMaxInputChars = 8000

// TruncateText keeps the first 60% and the last 30% of maxChars runes and replaces the
// middle (usually line items) with a marker. It reports whether anything was cut.
func TruncateText(text string, maxChars int) (string, bool) {
	if maxChars <= 0 {
		maxChars = DefaultMaxInputChars
	}
	rs := []rune(text)
	if len(rs) <= maxChars {
		return text, false
	}

	keepStart := int(float64(maxChars) * 0.6)
	keepEnd := int(float64(maxChars) * 0.3)

	start := string(rs[:keepStart])
	middle := string(rs[keepStart : len(rs)-keepEnd])
	end := string(rs[len(rs)-keepEnd:])

	removedChars := len(rs) - (keepStart + keepEnd)
	removedLines := strings.Count(middle, "\n")

	marker := fmt.Sprintf("\n\n[... %d lines removed (%d chars) ...]\n\n", removedLines, removedChars)
	return start + marker + end, true
}

// BuildTextPrompt is the minimal extraction prompt for document text.
func BuildTextPrompt(docType, fields, text string) string {
	var b strings.Builder
	b.WriteString("Extract structured data from this ")
	b.WriteString(docType)
	b.WriteString(".\n\nReturn JSON with fields: ")
	b.WriteString(fields)
	b.WriteString("\n\nDocument text:\n")
	b.WriteString(text)
	b.WriteString("\n\nJSON:")
	return b.String()
}

// BuildVisionPrompt is the prompt sent alongside an image.
func BuildVisionPrompt(docType, fields string) string {
	var b strings.Builder
	b.WriteString("Extract structured data from this ")
	b.WriteString(docType)
	b.WriteString(" image.\n\nReturn JSON with fields: ")
	b.WriteString(fields)
	b.WriteString("\n\nUse null for fields that are not visible. Return only the JSON object.\n\nJSON:")
	return b.String()
}
