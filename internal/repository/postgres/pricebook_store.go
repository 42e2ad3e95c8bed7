package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/pricebook"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/errors"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/postgres"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/types"
	"github.com/patrickmn/go-cache"
)

// PriceBookStore is the sqlx-backed pricebook.Repository. FindRule results
// are cached briefly: price rules change rarely, and every rating request
// would otherwise re-resolve the same rule. FindEffective and GetBook are
// not cached.
type PriceBookStore struct {
	db     *postgres.DB
	logger *logger.Logger
	cache  *cache.Cache
}

func NewPriceBookStore(db *postgres.DB, logger *logger.Logger) pricebook.Repository {
	return &PriceBookStore{
		db:     db,
		logger: logger,
		cache:  cache.New(30*time.Second, time.Minute),
	}
}

type priceBookRow struct {
	PriceBookID    string         `db:"price_book_id"`
	Name           string         `db:"name"`
	Version        int            `db:"version"`
	EffectiveFrom  time.Time      `db:"effective_from"`
	EffectiveUntil sql.NullTime   `db:"effective_until"`
	Currency       string         `db:"currency"`
	ParentID       sql.NullString `db:"parent_id"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r *priceBookRow) toDomain() *pricebook.PriceBook {
	var effectiveUntil *time.Time
	if r.EffectiveUntil.Valid {
		effectiveUntil = &r.EffectiveUntil.Time
	}
	var parentID *string
	if r.ParentID.Valid {
		parentID = &r.ParentID.String
	}
	return &pricebook.PriceBook{
		PriceBookID:    r.PriceBookID,
		Name:           r.Name,
		Version:        r.Version,
		EffectiveFrom:  r.EffectiveFrom,
		EffectiveUntil: effectiveUntil,
		Currency:       r.Currency,
		ParentID:       parentID,
		BaseModel: types.BaseModel{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
	}
}

func (s *PriceBookStore) FindEffective(ctx context.Context, at time.Time) (*pricebook.PriceBook, error) {
	var row priceBookRow
	err := s.db.GetContext(ctx, &row, `
		SELECT price_book_id, name, version, effective_from, effective_until, currency, parent_id, created_at, updated_at
		FROM price_books
		WHERE effective_from <= $1 AND (effective_until IS NULL OR effective_until > $1)
		ORDER BY effective_from DESC
		LIMIT 1
	`, at)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNoPriceBook
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (s *PriceBookStore) GetBook(ctx context.Context, priceBookID string) (*pricebook.PriceBook, error) {
	var row priceBookRow
	err := s.db.GetContext(ctx, &row, `
		SELECT price_book_id, name, version, effective_from, effective_until, currency, parent_id, created_at, updated_at
		FROM price_books WHERE price_book_id = $1
	`, priceBookID)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

type priceRuleRow struct {
	RuleID       string    `db:"rule_id"`
	PriceBookID  string    `db:"price_book_id"`
	MetricType   string    `db:"metric_type"`
	PricingModel string    `db:"pricing_model"`
	Tiers        []byte    `db:"tiers"`
	Unit         string    `db:"unit"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (s *PriceBookStore) FindRule(ctx context.Context, priceBookID string, metricType types.MetricType) (*pricebook.PriceRule, error) {
	cacheKey := priceBookID + ":" + string(metricType)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.(*pricebook.PriceRule), nil
	}

	var row priceRuleRow
	err := s.db.GetContext(ctx, &row, `
		SELECT rule_id, price_book_id, metric_type, pricing_model, tiers, unit, created_at, updated_at
		FROM price_rules WHERE price_book_id = $1 AND metric_type = $2
	`, priceBookID, string(metricType))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNoPriceRule
		}
		return nil, err
	}

	var tiers []pricebook.PriceTier
	if len(row.Tiers) > 0 {
		if err := json.Unmarshal(row.Tiers, &tiers); err != nil {
			return nil, errors.Wrap(err, "ERR_MALFORMED_MESSAGE", "unmarshal price tiers")
		}
	}

	rule := &pricebook.PriceRule{
		RuleID:       row.RuleID,
		PriceBookID:  row.PriceBookID,
		MetricType:   types.MetricType(row.MetricType),
		PricingModel: pricebook.PricingModel(row.PricingModel),
		Tiers:        tiers,
		Unit:         types.Unit(row.Unit),
		BaseModel: types.BaseModel{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
	}

	s.cache.Set(cacheKey, rule, cache.DefaultExpiration)
	return rule, nil
}
