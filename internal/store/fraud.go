package store

import (
	"context"
	"database/sql"
	"math"
	"sort"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/SIMOUNIX/harvestor/internal/common"
)

// EntityProfile aggregates the successful harvests of one entity.
type EntityProfile struct {
	EntityName        string
	TotalDocuments    int
	TotalAmount       float64
	AvgAmount         float64
	StddevAmount      float64 // sample standard deviation, 0 below two amounts
	MinAmount         float64
	MaxAmount         float64
	KnownBankAccounts []string
	KnownBankRoutings []string
	KnownEntityIDs    []string
	FirstSeen         time.Time
	LastSeen          time.Time
}

// BankDetail is one account/routing pair used by an entity.
type BankDetail struct {
	BankAccount string
	BankRouting string
	FirstSeen   time.Time
	LastSeen    time.Time
	Count       int
}

// EntityIDUse is one entity name seen with a given entity id.
type EntityIDUse struct {
	EntityName    string
	DocumentCount int
	FirstSeen     time.Time
	LastSeen      time.Time
}

// FraudQuery describes the document being checked.
type FraudQuery struct {
	DocumentNumber string
	EntityName     string
	EntityID       string
	TotalAmount    *float64
}

// FraudContext bundles the history relevant to one document.
type FraudContext struct {
	EntityProfile      *EntityProfile // nil for a first-seen entity
	DuplicateDocuments []*Harvest
	BankDetailChanges  []BankDetail
	AmountZScore       *float64 // nil without a profile, an amount or any spread
	EntityIDConflicts  []EntityIDUse
}

type entityRow struct {
	amount    sql.NullFloat64
	account   sql.NullString
	routing   sql.NullString
	entityID  sql.NullString
	name      sql.NullString
	createdAt time.Time
}

func (s *Store) entityRows(ctx context.Context, pred *entsql.Predicate) ([]entityRow, error) {
	query, args := entsql.Dialect(s.db.Dialect()).
		Select(ColTotalAmount, ColBankAccount, ColBankRouting, ColEntityID, ColEntityName, "created_at").
		From(entsql.Table(harvestsTable)).
		Where(entsql.And(pred, entsql.EQ("success", 1))).
		OrderBy(entsql.Asc("created_at")).
		Query()

	rows, err := s.db.drv.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "query entity history", err)
	}
	defer rows.Close()

	var out []entityRow
	for rows.Next() {
		var r entityRow
		var created string
		if err := rows.Scan(&r.amount, &r.account, &r.routing, &r.entityID, &r.name, &created); err != nil {
			return nil, common.NewAppError(common.CodeStore, "scan entity history", err)
		}
		if r.createdAt, err = parseTime(created); err != nil {
			return nil, common.NewAppError(common.CodeStore, "scan entity history", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewAppError(common.CodeStore, "iterate entity history", err)
	}
	return out, nil
}

// EntityProfile returns nil when the entity has no successful harvests.
func (s *Store) EntityProfile(ctx context.Context, entityName string) (*EntityProfile, error) {
	rows, err := s.entityRows(ctx, entsql.EQ(ColEntityName, entityName))
	if err != nil || len(rows) == 0 {
		return nil, err
	}

	p := &EntityProfile{
		EntityName:     entityName,
		TotalDocuments: len(rows),
		FirstSeen:      rows[0].createdAt,
		LastSeen:       rows[len(rows)-1].createdAt,
	}
	var amounts []float64
	accounts := newOrderedSet()
	routings := newOrderedSet()
	ids := newOrderedSet()
	for _, r := range rows {
		if r.amount.Valid {
			amounts = append(amounts, r.amount.Float64)
		}
		accounts.add(r.account)
		routings.add(r.routing)
		ids.add(r.entityID)
	}
	p.KnownBankAccounts = accounts.items
	p.KnownBankRoutings = routings.items
	p.KnownEntityIDs = ids.items

	if len(amounts) > 0 {
		p.MinAmount, p.MaxAmount = amounts[0], amounts[0]
		for _, a := range amounts {
			p.TotalAmount += a
			p.MinAmount = math.Min(p.MinAmount, a)
			p.MaxAmount = math.Max(p.MaxAmount, a)
		}
		p.AvgAmount = p.TotalAmount / float64(len(amounts))
		p.StddevAmount = sampleStddev(amounts, p.AvgAmount)
	}
	return p, nil
}

// FindDuplicates returns stored harvests with the same document number and entity.
func (s *Store) FindDuplicates(ctx context.Context, documentNumber, entityName string) ([]*Harvest, error) {
	if documentNumber == "" || entityName == "" {
		return nil, nil
	}
	sel := s.selectHarvests().
		Where(entsql.And(
			entsql.EQ(ColDocumentNumber, documentNumber),
			entsql.EQ(ColEntityName, entityName),
		)).
		OrderBy(entsql.Asc("created_at"))
	return s.queryHarvests(ctx, sel)
}

// BankDetailHistory lists the distinct bank details of an entity, oldest first.
func (s *Store) BankDetailHistory(ctx context.Context, entityName string) ([]BankDetail, error) {
	rows, err := s.entityRows(ctx, entsql.And(
		entsql.EQ(ColEntityName, entityName),
		entsql.NotNull(ColBankAccount),
	))
	if err != nil {
		return nil, err
	}

	var out []BankDetail
	index := map[[2]string]int{}
	for _, r := range rows {
		key := [2]string{r.account.String, r.routing.String}
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, BankDetail{
				BankAccount: key[0],
				BankRouting: key[1],
				FirstSeen:   r.createdAt,
				LastSeen:    r.createdAt,
				Count:       1,
			})
			continue
		}
		out[i].LastSeen = r.createdAt
		out[i].Count++
	}
	return out, nil
}

// EntityIDConflicts lists every entity name that used entityID.
func (s *Store) EntityIDConflicts(ctx context.Context, entityID string) ([]EntityIDUse, error) {
	if entityID == "" {
		return nil, nil
	}
	rows, err := s.entityRows(ctx, entsql.And(
		entsql.EQ(ColEntityID, entityID),
		entsql.NotNull(ColEntityName),
	))
	if err != nil {
		return nil, err
	}

	byName := map[string]*EntityIDUse{}
	for _, r := range rows {
		u, ok := byName[r.name.String]
		if !ok {
			byName[r.name.String] = &EntityIDUse{EntityName: r.name.String, DocumentCount: 1, FirstSeen: r.createdAt, LastSeen: r.createdAt}
			continue
		}
		u.DocumentCount++
		u.LastSeen = r.createdAt
	}
	out := make([]EntityIDUse, 0, len(byName))
	for _, u := range byName {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentCount != out[j].DocumentCount {
			return out[i].DocumentCount > out[j].DocumentCount
		}
		return out[i].EntityName < out[j].EntityName
	})
	return out, nil
}

// FraudContext gathers profile, duplicates, bank history, amount z-score and id conflicts.
func (s *Store) FraudContext(ctx context.Context, q FraudQuery) (*FraudContext, error) {
	fc := &FraudContext{}
	var err error

	if fc.EntityProfile, err = s.EntityProfile(ctx, q.EntityName); err != nil {
		return nil, err
	}
	if fc.DuplicateDocuments, err = s.FindDuplicates(ctx, q.DocumentNumber, q.EntityName); err != nil {
		return nil, err
	}
	if fc.BankDetailChanges, err = s.BankDetailHistory(ctx, q.EntityName); err != nil {
		return nil, err
	}
	if fc.EntityIDConflicts, err = s.EntityIDConflicts(ctx, q.EntityID); err != nil {
		return nil, err
	}

	if p := fc.EntityProfile; p != nil && q.TotalAmount != nil && p.StddevAmount > 0 {
		z := (*q.TotalAmount - p.AvgAmount) / p.StddevAmount
		fc.AmountZScore = &z
	}

	s.logger.Debug("store.fraud_context",
		"entity_name", q.EntityName,
		"duplicates", len(fc.DuplicateDocuments),
		"bank_details", len(fc.BankDetailChanges),
		"id_conflicts", len(fc.EntityIDConflicts),
	)
	return fc, nil
}

func sampleStddev(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

type orderedSet struct {
	seen  map[string]bool
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: map[string]bool{}}
}

func (o *orderedSet) add(v sql.NullString) {
	if !v.Valid || v.String == "" || o.seen[v.String] {
		return
	}
	o.seen[v.String] = true
	o.items = append(o.items, v.String)
}
