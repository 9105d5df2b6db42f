package textextract

import (
	"context"
	"strings"
)

func (e *Extractor) pdfToText(ctx context.Context, path string) (text string, pages int, warnings []string, err error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		if len(errb) > 0 {
			warnings = []string{strings.TrimSpace(string(errb))}
		}
		return "", 0, warnings, err
	}
	text = strings.TrimRight(string(out), "\f")
	// form feed separates pages
	pages = 1 + strings.Count(text, "\f")
	return text, pages, nil, nil
}
