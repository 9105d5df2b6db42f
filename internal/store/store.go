package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/SIMOUNIX/harvestor/constants"
	"github.com/SIMOUNIX/harvestor/internal/common"
	"github.com/SIMOUNIX/harvestor/internal/harvest"
	"github.com/SIMOUNIX/harvestor/internal/validate"
)

// DefaultListLimit caps List when Filter.Limit is zero.
const DefaultListLimit = 100

// Timestamps are stored as fixed-width UTC text so they sort the same way in both dialects.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Harvest is a stored harvest row.
type Harvest struct {
	ID             string
	DocumentID     string
	DocumentType   string
	Success        bool
	Model          string
	Provider       string
	Strategy       constants.Strategy
	Confidence     float64
	TotalCost      float64
	InputTokens    int
	OutputTokens   int
	Duration       time.Duration
	FilePath       string
	FileSize       int64
	SHA256         string
	Error          string
	ErrorKind      string
	Data           map[string]any
	Validation     *validate.Report
	Warnings       []string
	EntityName     string
	EntityID       string
	DocumentNumber string
	TotalAmount    *float64
	Currency       string
	BankAccount    string
	BankRouting    string
	CreatedAt      time.Time
}

// Filter narrows List. Zero values are ignored.
type Filter struct {
	DocumentType string
	EntityName   string
	Since        time.Time
	Limit        int
	Offset       int
}

// Store persists harvest results. It satisfies harvest.Store.
type Store struct {
	db     *DB
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	mappings map[string]FieldMapping
}

var _ harvest.Store = (*Store)(nil)

// New wraps an open database. Call db.Migrate before the first Save.
func New(db *DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = db.logger
	}
	return &Store{
		db:       db,
		logger:   logger,
		now:      time.Now,
		mappings: DefaultFieldMappings(),
	}
}

// RegisterFieldMapping tells the store which fields of a custom document type fill the generic columns.
func (s *Store) RegisterFieldMapping(docType string, m FieldMapping) error {
	if docType == "" {
		return common.NewAppError(common.CodeStore, "document type is empty", common.ErrInvalidInput)
	}
	if err := validateMapping(m); err != nil {
		return err
	}
	cp := make(FieldMapping, len(m))
	for k, v := range m {
		cp[k] = v
	}
	s.mu.Lock()
	s.mappings[docType] = cp
	s.mu.Unlock()
	return nil
}

func (s *Store) mapping(docType string) FieldMapping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mappings[docType]
}

// Save implements harvest.Store.
func (s *Store) Save(ctx context.Context, r *harvest.Result) error {
	_, err := s.Insert(ctx, r)
	return err
}

// Insert stores r and returns the new row id.
func (s *Store) Insert(ctx context.Context, r *harvest.Result) (string, error) {
	if r == nil {
		return "", common.NewAppError(common.CodeStore, "nil result", common.ErrInvalidInput)
	}
	data, err := marshalNullable(r.Data)
	if err != nil {
		return "", common.NewAppError(common.CodeStore, "encode data", err)
	}
	var validation any
	if r.Validation != nil {
		if validation, err = marshalNullable(r.Validation); err != nil {
			return "", common.NewAppError(common.CodeStore, "encode validation", err)
		}
	}
	var warnings any
	if len(r.Warnings) > 0 {
		if warnings, err = marshalNullable(r.Warnings); err != nil {
			return "", common.NewAppError(common.CodeStore, "encode warnings", err)
		}
	}

	g := extractGeneric(s.mapping(r.DocumentType), r.Data)
	created := r.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	id := uuid.NewString()
	query, args := entsql.Dialect(s.db.Dialect()).
		Insert(harvestsTable).
		Columns(
			"id", "document_id", "document_type", "success", "model", "provider", "strategy",
			"confidence", "total_cost", "input_tokens", "output_tokens", "duration_ms",
			"file_path", "file_size", "sha256", "error", "error_kind", "data", "validation", "warnings",
			ColEntityName, ColEntityID, ColDocumentNumber, ColTotalAmount, ColCurrency, ColBankAccount, ColBankRouting,
			"created_at",
		).
		Values(
			id, r.DocumentID, r.DocumentType, boolInt(r.Success), r.Model, r.Provider, string(r.Strategy),
			r.Confidence, r.TotalCost, int64(r.InputTokens), int64(r.OutputTokens), r.Duration.Milliseconds(),
			nullString(r.FilePath), r.FileSize, nullString(r.SHA256), nullString(r.Error), nullString(r.ErrorKind),
			data, validation, warnings,
			strArg(g.EntityName), strArg(g.EntityID), strArg(g.DocumentNumber), floatArg(g.TotalAmount),
			strArg(g.Currency), strArg(g.BankAccount), strArg(g.BankRouting),
			formatTime(created),
		).
		Query()

	if _, err := s.db.drv.DB().ExecContext(ctx, query, args...); err != nil {
		return "", common.NewAppError(common.CodeStore, "insert harvest", err)
	}
	s.logger.Info("store.save.ok",
		"req_id", common.RequestIDFromContext(ctx),
		"id", id,
		"document_id", r.DocumentID,
		"document_type", r.DocumentType,
	)
	return id, nil
}

var harvestColumns = []string{
	"id", "document_id", "document_type", "success", "model", "provider", "strategy",
	"confidence", "total_cost", "input_tokens", "output_tokens", "duration_ms",
	"file_path", "file_size", "sha256", "error", "error_kind", "data", "validation", "warnings",
	ColEntityName, ColEntityID, ColDocumentNumber, ColTotalAmount, ColCurrency, ColBankAccount, ColBankRouting,
	"created_at",
}

func (s *Store) selectHarvests() *entsql.Selector {
	return entsql.Dialect(s.db.Dialect()).
		Select(harvestColumns...).
		From(entsql.Table(harvestsTable))
}

// Get returns the most recent harvest stored for documentID.
func (s *Store) Get(ctx context.Context, documentID string) (*Harvest, error) {
	sel := s.selectHarvests().
		Where(entsql.EQ("document_id", documentID)).
		OrderBy(entsql.Desc("created_at")).
		Limit(1)
	rows, err := s.queryHarvests(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, common.NewAppError(common.CodeStore, "no harvest for document "+documentID, common.ErrNotFound)
	}
	return rows[0], nil
}

// List returns harvests newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]*Harvest, error) {
	var preds []*entsql.Predicate
	if f.DocumentType != "" {
		preds = append(preds, entsql.EQ("document_type", f.DocumentType))
	}
	if f.EntityName != "" {
		preds = append(preds, entsql.EQ(ColEntityName, f.EntityName))
	}
	if !f.Since.IsZero() {
		preds = append(preds, entsql.GTE("created_at", formatTime(f.Since)))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	sel := s.selectHarvests()
	if len(preds) > 0 {
		sel = sel.Where(entsql.And(preds...))
	}
	sel = sel.OrderBy(entsql.Desc("created_at")).Limit(limit)
	if f.Offset > 0 {
		sel = sel.Offset(f.Offset)
	}
	return s.queryHarvests(ctx, sel)
}

func (s *Store) queryHarvests(ctx context.Context, sel *entsql.Selector) ([]*Harvest, error) {
	query, args := sel.Query()
	rows, err := s.db.drv.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "query harvests", err)
	}
	defer rows.Close()

	var out []*Harvest
	for rows.Next() {
		h, err := scanHarvest(rows)
		if err != nil {
			return nil, common.NewAppError(common.CodeStore, "scan harvest", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewAppError(common.CodeStore, "iterate harvests", err)
	}
	return out, nil
}

func scanHarvest(rows *sql.Rows) (*Harvest, error) {
	var (
		h                                    Harvest
		success, inTok, outTok, durMS        int64
		strategy, created                    string
		filePath, sha, errMsg, errKind       sql.NullString
		data, validation, warnings           sql.NullString
		entName, entID, docNum, cur, acc, rt sql.NullString
		total                                sql.NullFloat64
	)
	if err := rows.Scan(
		&h.ID, &h.DocumentID, &h.DocumentType, &success, &h.Model, &h.Provider, &strategy,
		&h.Confidence, &h.TotalCost, &inTok, &outTok, &durMS,
		&filePath, &h.FileSize, &sha, &errMsg, &errKind, &data, &validation, &warnings,
		&entName, &entID, &docNum, &total, &cur, &acc, &rt,
		&created,
	); err != nil {
		return nil, err
	}

	h.Success = success != 0
	h.Strategy = constants.Strategy(strategy)
	h.InputTokens = int(inTok)
	h.OutputTokens = int(outTok)
	h.Duration = time.Duration(durMS) * time.Millisecond
	h.FilePath = filePath.String
	h.SHA256 = sha.String
	h.Error = errMsg.String
	h.ErrorKind = errKind.String
	h.EntityName = entName.String
	h.EntityID = entID.String
	h.DocumentNumber = docNum.String
	h.Currency = cur.String
	h.BankAccount = acc.String
	h.BankRouting = rt.String
	if total.Valid {
		v := total.Float64
		h.TotalAmount = &v
	}

	if data.Valid {
		if err := json.Unmarshal([]byte(data.String), &h.Data); err != nil {
			return nil, fmt.Errorf("decode data: %w", err)
		}
	}
	if validation.Valid {
		h.Validation = &validate.Report{}
		if err := json.Unmarshal([]byte(validation.String), h.Validation); err != nil {
			return nil, fmt.Errorf("decode validation: %w", err)
		}
	}
	if warnings.Valid {
		if err := json.Unmarshal([]byte(warnings.String), &h.Warnings); err != nil {
			return nil, fmt.Errorf("decode warnings: %w", err)
		}
	}

	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	h.CreatedAt = t
	return &h, nil
}

func marshalNullable(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return string(raw), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func strArg(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatArg(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at %q: %w", s, err)
	}
	return t, nil
}
