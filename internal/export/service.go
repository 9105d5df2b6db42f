// Package export writes harvest results and the cost ledger to XLSX workbooks.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/SIMOUNIX/harvestor/internal/common"
	"github.com/SIMOUNIX/harvestor/internal/cost"
	"github.com/SIMOUNIX/harvestor/internal/harvest"
)

const (
	ResultsSheet = "Results"
	LedgerSheet  = "Cost Ledger"

	// excelize rejects cells longer than this.
	maxCellChars = 32767
)

var resultHeaders = []string{
	"Document ID",
	"Document Type",
	"Success",
	"Model",
	"Strategy",
	"Confidence",
	"Cost (USD)",
	"Input Tokens",
	"Output Tokens",
	"Duration (ms)",
	"Fraud Risk",
	"Error",
}

var ledgerHeaders = []string{
	"Timestamp",
	"Model",
	"Document ID",
	"Strategy",
	"Input Tokens",
	"Output Tokens",
	"Cost (USD)",
	"Success",
}

// Service renders workbooks.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// WorkbookXLSX returns a workbook with one row per result and one row per ledger record.
// Extracted fields follow the fixed result columns, one column per top-level field.
func (s *Service) WorkbookXLSX(ctx context.Context, results []*harvest.Result, records []cost.Record) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(LedgerSheet); err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}
	idx, _ := f.GetSheetIndex(ResultsSheet)
	f.SetActiveSheet(idx)

	fields := dataFields(results)
	if err := writeResults(f, results, fields); err != nil {
		return nil, err
	}
	if err := writeLedger(f, records); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"req_id", common.RequestIDFromContext(ctx),
		"results", len(results),
		"ledger_rows", len(records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// WriteFile renders the workbook to path.
func (s *Service) WriteFile(ctx context.Context, path string, results []*harvest.Result, records []cost.Record) error {
	b, err := s.WorkbookXLSX(ctx, results, records)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeResults(f *excelize.File, results []*harvest.Result, fields []string) error {
	headers := append(append([]string{}, resultHeaders...), fields...)
	if err := writeRow(f, ResultsSheet, 1, stringsToAny(headers)); err != nil {
		return err
	}

	for i, r := range results {
		risk := ""
		if r.Validation != nil {
			risk = r.Validation.FraudRisk
		}
		row := []any{
			r.DocumentID,
			r.DocumentType,
			r.Success,
			r.Model,
			string(r.Strategy),
			r.Confidence,
			r.TotalCost,
			r.InputTokens,
			r.OutputTokens,
			r.Duration.Milliseconds(),
			risk,
			r.Error,
		}
		for _, field := range fields {
			row = append(row, cellValue(r.Data[field]))
		}
		if err := writeRow(f, ResultsSheet, i+2, row); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(ResultsSheet, "A", "A", 24) // document id
	_ = f.SetColWidth(ResultsSheet, "B", "E", 14)
	_ = f.SetColWidth(ResultsSheet, "L", "L", 48) // error
	return nil
}

func writeLedger(f *excelize.File, records []cost.Record) error {
	if err := writeRow(f, LedgerSheet, 1, stringsToAny(ledgerHeaders)); err != nil {
		return err
	}
	var total float64
	for i, rec := range records {
		total += rec.Cost
		row := []any{
			rec.Timestamp.UTC().Format(time.RFC3339),
			rec.Model,
			rec.DocumentID,
			rec.Strategy,
			rec.InputTokens,
			rec.OutputTokens,
			rec.Cost,
			rec.Success,
		}
		if err := writeRow(f, LedgerSheet, i+2, row); err != nil {
			return err
		}
	}
	if err := writeRow(f, LedgerSheet, len(records)+2, []any{"Total", "", "", "", "", "", total}); err != nil {
		return err
	}
	_ = f.SetColWidth(LedgerSheet, "A", "A", 22) // timestamp
	_ = f.SetColWidth(LedgerSheet, "B", "C", 24)
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

// dataFields is the sorted union of top-level keys across results.
func dataFields(results []*harvest.Result) []string {
	seen := map[string]bool{}
	for _, r := range results {
		for k := range r.Data {
			seen[k] = true
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// cellValue keeps scalars native and renders arrays and objects as JSON.
func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return truncate(t, maxCellChars)
	case bool, float64, float32, int, int64:
		return t
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return truncate(string(raw), maxCellChars)
	}
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
