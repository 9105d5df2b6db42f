package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SIMOUNIX/harvestor/constants"
	"github.com/SIMOUNIX/harvestor/internal/common"
	"github.com/SIMOUNIX/harvestor/internal/harvest"
	"github.com/SIMOUNIX/harvestor/internal/validate"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, Config{DSN: "sqlite://" + filepath.Join(t.TempDir(), "harvests.db")}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx), "migrate twice")
	return New(db, quietLogger())
}

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func invoiceResult(docID, vendor, number string, total float64, at time.Time) *harvest.Result {
	return &harvest.Result{
		Success:      true,
		DocumentID:   docID,
		DocumentType: "invoice",
		Model:        "claude-haiku",
		Provider:     "anthropic",
		Strategy:     constants.StrategyLLMText,
		Confidence:   harvest.DefaultConfidence,
		TotalCost:    0.0012,
		InputTokens:  900,
		OutputTokens: 120,
		Duration:     1500 * time.Millisecond,
		FileSize:     2048,
		Data: map[string]any{
			"invoice_number": number,
			"vendor_name":    vendor,
			"vendor_tax_id":  "FR123456789",
			"total_amount":   total,
			"currency":       "EUR",
		},
		CreatedAt: at,
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), Config{}, quietLogger())
	assert.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestHealthCheck(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.db.HealthCheck(context.Background(), time.Second))
}

func TestInsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := invoiceResult("inv-1", "Acme Corp", "INV-001", 1250.5, base)
	r.Warnings = []string{"truncated"}
	r.Validation = &validate.Report{IsValid: true, Confidence: 0.85, FraudRisk: "clean"}

	id, err := s.Insert(ctx, r)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := s.Get(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.True(t, got.Success)
	assert.Equal(t, "invoice", got.DocumentType)
	assert.Equal(t, constants.StrategyLLMText, got.Strategy)
	assert.Equal(t, 900, got.InputTokens)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	assert.Equal(t, "Acme Corp", got.EntityName)
	assert.Equal(t, "FR123456789", got.EntityID)
	assert.Equal(t, "INV-001", got.DocumentNumber)
	require.NotNil(t, got.TotalAmount)
	assert.InDelta(t, 1250.5, *got.TotalAmount, 1e-9)
	assert.Equal(t, "EUR", got.Currency)
	assert.Empty(t, got.BankAccount)
	assert.Equal(t, "INV-001", got.Data["invoice_number"])
	assert.Equal(t, []string{"truncated"}, got.Warnings)
	require.NotNil(t, got.Validation)
	assert.Equal(t, "clean", got.Validation.FraudRisk)
	assert.True(t, base.Equal(got.CreatedAt))
}

func TestGetReturnsNewest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, invoiceResult("inv-1", "Acme", "INV-1", 10, base)))
	require.NoError(t, s.Save(ctx, invoiceResult("inv-1", "Acme", "INV-1", 20, base.Add(time.Hour))))

	got, err := s.Get(ctx, "inv-1")
	require.NoError(t, err)
	assert.InDelta(t, 20, *got.TotalAmount, 1e-9)
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestSaveFailedResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &harvest.Result{
		DocumentID:   "broken",
		DocumentType: "receipt",
		Model:        "claude-haiku",
		Provider:     "anthropic",
		Strategy:     constants.StrategyNone,
		Error:        "unsupported file type: .docx",
		ErrorKind:    common.CodeUnsupportedInput,
		CreatedAt:    base,
	}
	require.NoError(t, s.Save(ctx, r))

	got, err := s.Get(ctx, "broken")
	require.NoError(t, err)
	assert.False(t, got.Success)
	assert.Nil(t, got.Data)
	assert.Nil(t, got.TotalAmount)
	assert.Equal(t, common.CodeUnsupportedInput, got.ErrorKind)
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i, vendor := range []string{"Acme", "Globex", "Acme", "Initech"} {
		require.NoError(t, s.Save(ctx, invoiceResult("inv-"+vendor, vendor, "N", float64(i), base.Add(time.Duration(i)*time.Hour))))
	}
	receipt := &harvest.Result{
		Success: true, DocumentID: "r-1", DocumentType: "receipt", Model: "claude-haiku",
		Provider: "anthropic", Strategy: constants.StrategyLLMVision,
		Data:      map[string]any{"merchant_name": "Cafe", "total": 4.5},
		CreatedAt: base.Add(10 * time.Hour),
	}
	require.NoError(t, s.Save(ctx, receipt))

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "r-1", all[0].DocumentID)
	assert.Equal(t, "Cafe", all[0].EntityName)

	invoices, err := s.List(ctx, Filter{DocumentType: "invoice"})
	require.NoError(t, err)
	assert.Len(t, invoices, 4)

	acme, err := s.List(ctx, Filter{EntityName: "Acme"})
	require.NoError(t, err)
	assert.Len(t, acme, 2)

	recent, err := s.List(ctx, Filter{Since: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	page, err := s.List(ctx, Filter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, all[1].ID, page[0].ID)
	assert.Equal(t, all[2].ID, page[1].ID)
}

func TestRegisterFieldMapping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RegisterFieldMapping("contract", FieldMapping{
		ColEntityName:     "counterparty_name",
		ColDocumentNumber: "contract_number",
		ColTotalAmount:    "contract_value",
		ColBankAccount:    "iban",
	}))
	r := &harvest.Result{
		Success: true, DocumentID: "c-1", DocumentType: "contract", Model: "claude-haiku",
		Provider: "anthropic", Strategy: constants.StrategyLLMText,
		Data: map[string]any{
			"counterparty_name": "Umbrella",
			"contract_number":   "C-9",
			"contract_value":    50000.0,
			"iban":              "DE89370400440532013000",
		},
		CreatedAt: base,
	}
	require.NoError(t, s.Save(ctx, r))

	got, err := s.Get(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "Umbrella", got.EntityName)
	assert.Equal(t, "C-9", got.DocumentNumber)
	assert.Equal(t, "DE89370400440532013000", got.BankAccount)

	err = s.RegisterFieldMapping("contract", FieldMapping{"nonsense": "x"})
	assert.True(t, errors.Is(err, common.ErrInvalidInput))
	assert.True(t, errors.Is(s.RegisterFieldMapping("", FieldMapping{}), common.ErrInvalidInput))
}

func TestEntityProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i, total := range []float64{100, 200, 300} {
		require.NoError(t, s.Save(ctx, invoiceResult("inv", "Acme", "N", total, base.Add(time.Duration(i)*24*time.Hour))))
	}
	failed := invoiceResult("inv-f", "Acme", "N", 99999, base.Add(96*time.Hour))
	failed.Success = false
	require.NoError(t, s.Save(ctx, failed))

	p, err := s.EntityProfile(ctx, "Acme")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 3, p.TotalDocuments)
	assert.InDelta(t, 600, p.TotalAmount, 1e-9)
	assert.InDelta(t, 200, p.AvgAmount, 1e-9)
	assert.InDelta(t, 100, p.StddevAmount, 1e-9)
	assert.InDelta(t, 100, p.MinAmount, 1e-9)
	assert.InDelta(t, 300, p.MaxAmount, 1e-9)
	assert.Equal(t, []string{"FR123456789"}, p.KnownEntityIDs)
	assert.Empty(t, p.KnownBankAccounts)
	assert.True(t, base.Equal(p.FirstSeen))
	assert.True(t, base.Add(48*time.Hour).Equal(p.LastSeen))

	none, err := s.EntityProfile(ctx, "Nobody")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestFindDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, invoiceResult("a", "Acme", "INV-7", 10, base)))
	require.NoError(t, s.Save(ctx, invoiceResult("b", "Acme", "INV-7", 10, base.Add(time.Hour))))
	require.NoError(t, s.Save(ctx, invoiceResult("c", "Globex", "INV-7", 10, base)))

	dups, err := s.FindDuplicates(ctx, "INV-7", "Acme")
	require.NoError(t, err)
	require.Len(t, dups, 2)
	assert.Equal(t, "a", dups[0].DocumentID)
	assert.Equal(t, "b", dups[1].DocumentID)

	none, err := s.FindDuplicates(ctx, "", "Acme")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func bankResult(docID, vendor, taxID, account string, at time.Time) *harvest.Result {
	r := invoiceResult(docID, vendor, docID, 100, at)
	r.DocumentType = "payment"
	r.Data["vendor_tax_id"] = taxID
	r.Data["account"] = account
	r.Data["routing"] = "BIC1"
	return r
}

func TestBankDetailHistoryAndIDConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RegisterFieldMapping("payment", FieldMapping{
		ColEntityName:  "vendor_name",
		ColEntityID:    "vendor_tax_id",
		ColTotalAmount: "total_amount",
		ColBankAccount: "account",
		ColBankRouting: "routing",
	}))

	require.NoError(t, s.Save(ctx, bankResult("p1", "Acme", "TAX-1", "ACC-1", base)))
	require.NoError(t, s.Save(ctx, bankResult("p2", "Acme", "TAX-1", "ACC-1", base.Add(time.Hour))))
	require.NoError(t, s.Save(ctx, bankResult("p3", "Acme", "TAX-1", "ACC-2", base.Add(2*time.Hour))))
	require.NoError(t, s.Save(ctx, bankResult("p4", "Acme Ltd", "TAX-1", "ACC-9", base.Add(3*time.Hour))))

	hist, err := s.BankDetailHistory(ctx, "Acme")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "ACC-1", hist[0].BankAccount)
	assert.Equal(t, "BIC1", hist[0].BankRouting)
	assert.Equal(t, 2, hist[0].Count)
	assert.True(t, base.Add(time.Hour).Equal(hist[0].LastSeen))
	assert.Equal(t, "ACC-2", hist[1].BankAccount)
	assert.Equal(t, 1, hist[1].Count)

	uses, err := s.EntityIDConflicts(ctx, "TAX-1")
	require.NoError(t, err)
	require.Len(t, uses, 2)
	assert.Equal(t, "Acme", uses[0].EntityName)
	assert.Equal(t, 3, uses[0].DocumentCount)
	assert.True(t, base.Equal(uses[0].FirstSeen))
	assert.True(t, base.Add(2*time.Hour).Equal(uses[0].LastSeen))
	assert.Equal(t, "Acme Ltd", uses[1].EntityName)
}

func TestFraudContext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i, total := range []float64{100, 200, 300} {
		require.NoError(t, s.Save(ctx, invoiceResult("inv", "Acme", "INV-"+string(rune('A'+i)), total, base.Add(time.Duration(i)*time.Hour))))
	}

	amount := 500.0
	fc, err := s.FraudContext(ctx, FraudQuery{
		DocumentNumber: "INV-B",
		EntityName:     "Acme",
		EntityID:       "FR123456789",
		TotalAmount:    &amount,
	})
	require.NoError(t, err)
	require.NotNil(t, fc.EntityProfile)
	assert.Len(t, fc.DuplicateDocuments, 1)
	assert.Empty(t, fc.BankDetailChanges)
	require.NotNil(t, fc.AmountZScore)
	assert.InDelta(t, 3.0, *fc.AmountZScore, 1e-9)
	require.Len(t, fc.EntityIDConflicts, 1)

	first, err := s.FraudContext(ctx, FraudQuery{DocumentNumber: "X", EntityName: "Newcomer", TotalAmount: &amount})
	require.NoError(t, err)
	assert.Nil(t, first.EntityProfile)
	assert.Nil(t, first.AmountZScore)
	assert.Empty(t, first.DuplicateDocuments)
	assert.Empty(t, first.EntityIDConflicts)
}

func TestStoreAsHarvestSink(t *testing.T) {
	s := newTestStore(t)
	var sink harvest.Store = s
	require.NoError(t, sink.Save(context.Background(), invoiceResult("sink", "Acme", "N", 1, base)))
	_, err := s.Get(context.Background(), "sink")
	assert.NoError(t, err)
}

func TestInsertFailureLeavesLoggingToCaller(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{DSN: "sqlite://" + filepath.Join(t.TempDir(), "harvests.db")}, quietLogger())
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))

	var logs bytes.Buffer
	s := New(db, slog.New(slog.NewJSONHandler(&logs, nil)))
	db.Close()

	_, err = s.Insert(ctx, invoiceResult("inv-1", "Acme", "INV-1", 100, base))
	require.Error(t, err)
	assert.Equal(t, common.CodeStore, common.KindOf(err))
	assert.False(t, strings.Contains(logs.String(), "store.save.failed"))
}
