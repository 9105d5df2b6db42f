package harvest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SIMOUNIX/harvestor/constants"
	"github.com/SIMOUNIX/harvestor/internal/common"
	"github.com/SIMOUNIX/harvestor/internal/cost"
	"github.com/SIMOUNIX/harvestor/internal/llm"
	"github.com/SIMOUNIX/harvestor/internal/metrics"
	"github.com/SIMOUNIX/harvestor/internal/models"
	"github.com/SIMOUNIX/harvestor/internal/schema"
)

// 1x1 transparent PNG
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

const invoiceJSON = `{"invoice_number": "INV-7", "date": "2024-01-15", "total_amount": "$1,210.00", "currency": "EUR", "vendor_name": "Acme", "subtotal": 1000, "tax_amount": 210}`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// claudeServer fakes the Messages API and counts requests.
type claudeServer struct {
	*httptest.Server
	hits   atomic.Int32
	mu     sync.Mutex
	bodies []map[string]any
}

func newClaudeServer(t *testing.T, reply string) *claudeServer {
	t.Helper()
	cs := &claudeServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.hits.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		cs.mu.Lock()
		cs.bodies = append(cs.bodies, body)
		cs.mu.Unlock()

		resp := map[string]any{
			"model":       "claude-3-haiku-20240307",
			"content":     []map[string]any{{"type": "text", "text": reply}},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 400, "output_tokens": 80},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func newTestHarvester(t *testing.T, url string, opts ...Option) *Harvester {
	t.Helper()
	base := []Option{
		WithModel("claude-haiku"),
		WithAPIKey("test-key"),
		WithBaseURL(url),
		WithLogger(quietLogger()),
	}
	h, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return h
}

func TestHarvestTextInvoice(t *testing.T) {
	srv := newClaudeServer(t, "Here you go:\n"+invoiceJSON+"\nThanks")
	h := newTestHarvester(t, srv.URL)

	res, err := h.Harvest(context.Background(), []byte("INVOICE INV-7\nTotal $1,210.00"), "inv-7.txt")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "inv-7", res.DocumentID)
	assert.Equal(t, "invoice", res.DocumentType)
	assert.Equal(t, constants.StrategyLLMText, res.Strategy)
	assert.Equal(t, "claude-haiku", res.Model)
	assert.Equal(t, models.Anthropic, res.Provider)
	assert.Equal(t, DefaultConfidence, res.Confidence)
	assert.Equal(t, "INV-7", res.Data["invoice_number"])
	assert.Equal(t, 1210.0, res.Data["total_amount"])
	assert.Contains(t, res.Data, "due_date")
	assert.Nil(t, res.Data["due_date"])
	assert.NotEmpty(t, res.Warnings)

	assert.Equal(t, 400, res.InputTokens)
	assert.Equal(t, 80, res.OutputTokens)
	assert.InDelta(t, 400.0/1e6*0.25+80.0/1e6*1.25, res.TotalCost, 1e-12)
	assert.InDelta(t, res.TotalCost, h.Tracker().Total(), 1e-12)

	require.Len(t, srv.bodies, 1)
	msgs := srv.bodies[0]["messages"].([]any)
	prompt := msgs[0].(map[string]any)["content"].(string)
	assert.True(t, strings.HasPrefix(prompt, "Extract structured data from this invoice."))
	assert.Contains(t, prompt, "Total $1,210.00")
}

func TestCeilingDeniesBeforeNetworkCall(t *testing.T) {
	srv := newClaudeServer(t, invoiceJSON)
	h := newTestHarvester(t, srv.URL, WithLimits(cost.Limits{Ceiling: 0.001}))

	res, err := h.Harvest(context.Background(), []byte("INVOICE"), "inv.txt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrCostLimitExceeded))
	assert.Equal(t, int32(0), srv.hits.Load())

	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, common.CodeCostLimitExceeded, res.ErrorKind)
	assert.Empty(t, h.Tracker().Records())
	assert.Zero(t, res.TotalCost)
}

func TestHarvestCountsEachCallOnce(t *testing.T) {
	srv := newClaudeServer(t, invoiceJSON)
	calls := metrics.LLMCallsTotal.WithLabelValues("claude-haiku", "ok")
	in := metrics.LLMTokensTotal.WithLabelValues("claude-haiku", "input")
	spend := metrics.LLMCostUSDTotal.WithLabelValues("claude-haiku")
	denials := metrics.CostLimitDenialsTotal.WithLabelValues(cost.LimitCeiling)

	beforeCalls := testutil.ToFloat64(calls)
	beforeIn := testutil.ToFloat64(in)
	beforeSpend := testutil.ToFloat64(spend)
	beforeDenials := testutil.ToFloat64(denials)

	h := newTestHarvester(t, srv.URL)
	res, err := h.Harvest(context.Background(), []byte("INVOICE INV-7"), "inv-7.txt")
	require.NoError(t, err)

	assert.InDelta(t, beforeCalls+1, testutil.ToFloat64(calls), 1e-9)
	assert.InDelta(t, beforeIn+400, testutil.ToFloat64(in), 1e-9)
	assert.InDelta(t, beforeSpend+res.TotalCost, testutil.ToFloat64(spend), 1e-12)

	denied := newTestHarvester(t, srv.URL, WithLimits(cost.Limits{Ceiling: 0.001}))
	_, err = denied.Harvest(context.Background(), []byte("INVOICE"), "inv.txt")
	require.Error(t, err)

	assert.InDelta(t, beforeDenials+1, testutil.ToFloat64(denials), 1e-9)
	assert.InDelta(t, beforeCalls+1, testutil.ToFloat64(calls), 1e-9)
}

func TestSameBytesAcrossInputKinds(t *testing.T) {
	srv := newClaudeServer(t, invoiceJSON)
	h := newTestHarvester(t, srv.URL)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "scan.png")
	require.NoError(t, os.WriteFile(path, tinyPNG, 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	fromPath, err := h.Harvest(ctx, path, "")
	require.NoError(t, err)
	fromBytes, err := h.Harvest(ctx, tinyPNG, "scan.png")
	require.NoError(t, err)
	fromStream, err := h.Harvest(ctx, f, "")
	require.NoError(t, err)
	fromBuffer, err := h.Harvest(ctx, bytes.NewReader(tinyPNG), "scan.png")
	require.NoError(t, err)

	for _, r := range []*Result{fromBytes, fromStream, fromBuffer} {
		assert.Equal(t, fromPath.Data, r.Data)
		assert.Equal(t, fromPath.DocumentID, r.DocumentID)
		assert.Equal(t, fromPath.SHA256, r.SHA256)
		assert.Equal(t, constants.StrategyLLMVision, r.Strategy)
	}
	assert.Equal(t, path, fromPath.FilePath)
	assert.Empty(t, fromBytes.FilePath)

	require.Len(t, srv.bodies, 4)
	for _, b := range srv.bodies[1:] {
		assert.Equal(t, srv.bodies[0]["messages"], b["messages"])
	}
}

func TestUnsupportedExtension(t *testing.T) {
	srv := newClaudeServer(t, invoiceJSON)
	h := newTestHarvester(t, srv.URL)

	res, err := h.Harvest(context.Background(), []byte("PK"), "contract.docx")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnsupportedInput))
	assert.Equal(t, common.CodeUnsupportedInput, res.ErrorKind)
	assert.Contains(t, res.Error, "unsupported file type: .docx")
	assert.Equal(t, constants.StrategyNone, res.Strategy)
	assert.Equal(t, int32(0), srv.hits.Load())
}

func TestMissingFile(t *testing.T) {
	srv := newClaudeServer(t, invoiceJSON)
	h := newTestHarvester(t, srv.URL)

	missing := filepath.Join(t.TempDir(), "gone.pdf")
	res, err := h.Harvest(context.Background(), missing, "")
	assert.True(t, errors.Is(err, common.ErrUnreadableInput))
	assert.Equal(t, missing, res.FilePath)
	assert.NotNil(t, res.Data)
}

func TestImageOnTextOnlyModel(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	defer srv.Close()

	h, err := New(WithModel("gpt-4"), WithAPIKey("k"), WithBaseURL(srv.URL), WithLogger(quietLogger()))
	require.NoError(t, err)

	res, err := h.Harvest(context.Background(), tinyPNG, "scan.png")
	assert.True(t, errors.Is(err, common.ErrUnsupportedInput))
	assert.Equal(t, constants.StrategyLLMVision, res.Strategy)
	assert.Equal(t, int32(0), hits.Load())
}

func TestUnparseableResponseIsRecorded(t *testing.T) {
	srv := newClaudeServer(t, "I cannot read this document.")
	h := newTestHarvester(t, srv.URL)

	res, err := h.Harvest(context.Background(), []byte("blurry"), "r.txt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrResponseParse))
	assert.Equal(t, common.CodeResponseParse, res.ErrorKind)

	records := h.Tracker().Records()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	assert.Equal(t, "r", records[0].DocumentID)
	assert.InDelta(t, records[0].Cost, res.TotalCost, 1e-12)
	assert.Positive(t, res.TotalCost)
}

func TestSchemaMismatchIsParseError(t *testing.T) {
	srv := newClaudeServer(t, `{"invoice_number": "1", "line_items": [1, 2]}`)
	h := newTestHarvester(t, srv.URL)

	_, err := h.Harvest(context.Background(), []byte("x"), "x.txt")
	assert.True(t, errors.Is(err, common.ErrResponseParse))
}

type fakeProvider struct {
	info    models.Info
	content string
	reqs    []llm.CompletionRequest
}

func (f *fakeProvider) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResult, error) {
	f.reqs = append(f.reqs, req)
	return llm.CompletionResult{Content: f.content, InputTokens: 10, OutputTokens: 5, Model: f.info.ID}, nil
}

func (f *fakeProvider) Info() models.Info { return f.info }

func newFakeProvider(t *testing.T, content string) *fakeProvider {
	t.Helper()
	info, ok := models.Lookup("claude-haiku")
	require.True(t, ok)
	return &fakeProvider{info: info, content: content}
}

func TestRedactionRoundTrip(t *testing.T) {
	contact := schema.New("ContactData",
		schema.Field{Name: "name", Type: schema.String},
		schema.Field{Name: "email", Type: schema.String},
	)
	fp := newFakeProvider(t, `{"name": "Jane", "email": "[EMAIL_1]"}`)
	h, err := New(WithProvider(fp), WithRedaction(), WithSchema(contact), WithLogger(quietLogger()))
	require.NoError(t, err)

	res, err := h.Harvest(context.Background(), []byte("Jane <jane@example.com>"), "c.txt")
	require.NoError(t, err)

	require.Len(t, fp.reqs, 1)
	assert.NotContains(t, fp.reqs[0].Prompt, "jane@example.com")
	assert.Contains(t, fp.reqs[0].Prompt, "[EMAIL_1]")
	assert.Contains(t, fp.reqs[0].Prompt, "from this contact.")
	assert.Equal(t, "jane@example.com", res.Data["email"])
	assert.Equal(t, 1, res.Redacted)
}

func TestValidationReportAttached(t *testing.T) {
	fp := newFakeProvider(t, `{"invoice_number": "1", "date": "2024-01-01", "vendor_name": "V", "subtotal": 100, "tax_amount": 20, "total_amount": 500}`)
	h, err := New(WithProvider(fp), WithValidation(), WithLogger(quietLogger()))
	require.NoError(t, err)

	res, err := h.Harvest(context.Background(), []byte("invoice"), "i.txt")
	require.NoError(t, err)
	require.NotNil(t, res.Validation)
	assert.False(t, res.Validation.IsValid)
	assert.NotEqual(t, "clean", res.Validation.FraudRisk)
}

func TestCallOptions(t *testing.T) {
	fp := newFakeProvider(t, `{"merchant_name": "Cafe"}`)
	h, err := New(WithProvider(fp), WithLogger(quietLogger()))
	require.NoError(t, err)

	res, err := h.Harvest(context.Background(), []byte("Cafe"), "a.txt",
		ForSchema(schema.Receipt), WithDocumentID("rcpt-1"), WithDocType("till_slip"))
	require.NoError(t, err)
	assert.Equal(t, "rcpt-1", res.DocumentID)
	assert.Equal(t, "till_slip", res.DocumentType)
	assert.Contains(t, fp.reqs[0].Prompt, "merchant_name, merchant_address")
	assert.Contains(t, res.Data, "card_last_four")
}

func TestHarvestText(t *testing.T) {
	fp := newFakeProvider(t, invoiceJSON)
	h, err := New(WithProvider(fp), WithLogger(quietLogger()))
	require.NoError(t, err)

	res, err := h.HarvestText(context.Background(), "Invoice INV-7", WithDocumentID("inv-7"))
	require.NoError(t, err)
	assert.Equal(t, "inv-7", res.DocumentID)
	assert.Equal(t, constants.StrategyLLMText, res.Strategy)
}

func TestTruncationFlag(t *testing.T) {
	fp := newFakeProvider(t, invoiceJSON)
	h, err := New(WithProvider(fp), WithMaxInputChars(100), WithLogger(quietLogger()))
	require.NoError(t, err)

	res, err := h.Harvest(context.Background(), []byte(strings.Repeat("line of text\n", 50)), "long.txt")
	require.NoError(t, err)
	assert.True(t, res.Truncated)
}

type memStore struct{ saved []*Result }

func (m *memStore) Save(_ context.Context, r *Result) error {
	m.saved = append(m.saved, r)
	return nil
}

type brokenStore struct{}

func (brokenStore) Save(context.Context, *Result) error { return errors.New("disk full") }

func TestStoreReceivesSuccessfulResults(t *testing.T) {
	st := &memStore{}
	fp := newFakeProvider(t, invoiceJSON)
	h, err := New(WithProvider(fp), WithStore(st), WithLogger(quietLogger()))
	require.NoError(t, err)

	res, err := h.Harvest(context.Background(), []byte("x"), "x.txt")
	require.NoError(t, err)
	require.Len(t, st.saved, 1)
	assert.Same(t, res, st.saved[0])

	_, _ = h.Harvest(context.Background(), []byte("x"), "x.docx")
	assert.Len(t, st.saved, 1)
}

func TestStoreFailureIsAWarning(t *testing.T) {
	fp := newFakeProvider(t, invoiceJSON)
	var logs bytes.Buffer
	h, err := New(WithProvider(fp), WithStore(brokenStore{}), WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))))
	require.NoError(t, err)

	res, err := h.Harvest(context.Background(), []byte("x"), "x.txt")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Warnings, "store: disk full")
	assert.Equal(t, 1, strings.Count(logs.String(), `"store.save.failed"`))
}

func TestNewErrors(t *testing.T) {
	_, err := New(WithModel("definitely-not-a-model"), WithLogger(quietLogger()))
	require.Error(t, err)
	assert.Equal(t, common.CodeConfig, common.KindOf(err))

	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err = New(WithModel("claude-haiku"), WithLogger(quietLogger()))
	require.Error(t, err)
	assert.Equal(t, common.CodeConfig, common.KindOf(err))
}

func TestSharedTracker(t *testing.T) {
	tr := cost.NewTracker(cost.WithLogger(quietLogger()))
	a, err := New(WithProvider(newFakeProvider(t, invoiceJSON)), WithTracker(tr), WithLogger(quietLogger()))
	require.NoError(t, err)
	b, err := New(WithProvider(newFakeProvider(t, invoiceJSON)), WithTracker(tr), WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = a.Harvest(context.Background(), []byte("x"), "a.txt")
	require.NoError(t, err)
	_, err = b.Harvest(context.Background(), []byte("x"), "b.txt")
	require.NoError(t, err)
	assert.Len(t, tr.Records(), 2)
}

func TestResultToStruct(t *testing.T) {
	fp := newFakeProvider(t, invoiceJSON)
	h, err := New(WithProvider(fp), WithLogger(quietLogger()))
	require.NoError(t, err)
	res, err := h.Harvest(context.Background(), []byte("x"), "x.txt")
	require.NoError(t, err)

	st, err := res.ToStruct()
	require.NoError(t, err)
	assert.True(t, st.Fields["success"].GetBoolValue())
	assert.Equal(t, "INV-7", st.Fields["data"].GetStructValue().Fields["invoice_number"].GetStringValue())
	assert.Equal(t, map[string]float64{"llm_text": res.TotalCost}, res.CostBreakdown())
}
