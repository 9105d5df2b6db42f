// Package textextract pulls plain text out of text-bearing documents (UTF-8 text files and PDFs with a text layer).
package textextract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/SIMOUNIX/harvestor/constants"
	"github.com/SIMOUNIX/harvestor/internal/common"
	"github.com/SIMOUNIX/harvestor/internal/input"
)

// ErrNoText is returned when a PDF has no extractable text layer.
var ErrNoText = errors.New("no text found in PDF (might need OCR)")

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
}

type Result struct {
	Text     string
	Pages    int
	Method   string // "plain" | "pdftotext"
	Duration time.Duration
	Warnings []string
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	return &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner swaps the command runner; tests use it to fake pdftotext.
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

// Extract returns the text of a TXT or PDF document.
func (e *Extractor) Extract(ctx context.Context, doc *input.Document) (Result, error) {
	start := time.Now()
	e.logger.Debug("textextract.start", "document_id", doc.DocumentID, "format", doc.Format, "bytes", doc.Size)

	var (
		res Result
		err error
	)
	switch doc.Format {
	case constants.TXT:
		res, err = e.extractPlain(doc)
	case constants.PDF:
		res, err = e.extractPDF(ctx, doc)
	default:
		return Result{}, common.UnsupportedInputf("no text extractor for %s documents", strings.ToLower(string(doc.Format)))
	}
	res.Duration = time.Since(start)
	if err != nil {
		e.logger.Warn("textextract.failed", "document_id", doc.DocumentID, "error", err)
		return res, err
	}
	e.logger.Debug("textextract.done",
		"document_id", doc.DocumentID,
		"method", res.Method,
		"chars", utf8.RuneCountInString(res.Text),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (e *Extractor) extractPlain(doc *input.Document) (Result, error) {
	if !utf8.Valid(doc.Data) {
		return Result{Method: "plain"}, common.UnreadableInput(
			fmt.Sprintf("%s is not valid UTF-8 text", doc.Filename), nil)
	}
	return Result{Text: string(doc.Data), Pages: 1, Method: "plain"}, nil
}

func (e *Extractor) extractPDF(ctx context.Context, doc *input.Document) (Result, error) {
	path := doc.FilePath
	if path == "" {
		tmpDir, err := os.MkdirTemp("", "harvestor-pdf-*")
		if err != nil {
			return Result{Method: "pdftotext"}, common.UnreadableInput("create temp dir", err)
		}
		defer func() {
			if err := os.RemoveAll(tmpDir); err != nil {
				e.logger.Warn("textextract.cleanup_failed", "dir", tmpDir, "error", err)
			}
		}()
		path = filepath.Join(tmpDir, "document.pdf")
		if err := os.WriteFile(path, doc.Data, 0o600); err != nil {
			return Result{Method: "pdftotext"}, common.UnreadableInput("write temp pdf", err)
		}
	}

	text, pages, warnings, err := e.pdfToText(ctx, path)
	res := Result{Text: text, Pages: pages, Method: "pdftotext", Warnings: warnings}
	if err != nil {
		return res, common.UnreadableInput(fmt.Sprintf("pdftotext %s", doc.Filename), err)
	}
	if strings.TrimSpace(strings.ReplaceAll(text, "\f", "")) == "" {
		return res, common.UnreadableInput(doc.Filename, ErrNoText)
	}
	return res, nil
}
