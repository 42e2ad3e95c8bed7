package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/charge"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/errors"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/postgres"
	"github.com/shopspring/decimal"
)

// ChargeStore is the sqlx-backed charge.Repository.
type ChargeStore struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewChargeStore(db *postgres.DB, logger *logger.Logger) charge.Repository {
	return &ChargeStore{db: db, logger: logger}
}

type ratedChargeRow struct {
	ChargeID           string          `db:"charge_id"`
	CustomerID         string          `db:"customer_id"`
	AggregationID      sql.NullString  `db:"aggregation_id"`
	PriceBookID        string          `db:"price_book_id"`
	PriceVersion       int             `db:"price_version"`
	RuleID             string          `db:"rule_id"`
	Quantity           decimal.Decimal `db:"quantity"`
	UnitPrice          decimal.Decimal `db:"unit_price"`
	Subtotal           decimal.Decimal `db:"subtotal"`
	Currency           string          `db:"currency"`
	CalculationMetadata []byte         `db:"calculation_metadata"`
	CalculatedAt       time.Time       `db:"calculated_at"`
	ReratingJobID      sql.NullString  `db:"rerating_job_id"`
	SupersedesChargeID sql.NullString  `db:"supersedes_charge_id"`
}

func (r *ratedChargeRow) toDomain() (*charge.RatedCharge, error) {
	var metadata charge.CalculationMetadata
	if len(r.CalculationMetadata) > 0 {
		if err := json.Unmarshal(r.CalculationMetadata, &metadata); err != nil {
			return nil, errors.Wrap(err, "ERR_MALFORMED_MESSAGE", "unmarshal calculation metadata")
		}
	}

	return &charge.RatedCharge{
		ChargeID:            r.ChargeID,
		CustomerID:           r.CustomerID,
		AggregationID:        nullableString(r.AggregationID),
		PriceBookID:          r.PriceBookID,
		PriceVersion:         r.PriceVersion,
		RuleID:               r.RuleID,
		Quantity:             r.Quantity,
		UnitPrice:            r.UnitPrice,
		Subtotal:             r.Subtotal,
		Currency:             r.Currency,
		CalculationMetadata:  metadata,
		CalculatedAt:         r.CalculatedAt,
		ReratingJobID:        nullableString(r.ReratingJobID),
		SupersedesChargeID:   nullableString(r.SupersedesChargeID),
	}, nil
}

func nullableString(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (s *ChargeStore) Insert(ctx context.Context, c *charge.RatedCharge) error {
	metadata, err := json.Marshal(c.CalculationMetadata)
	if err != nil {
		return errors.Wrap(err, "ERR_MALFORMED_MESSAGE", "marshal calculation metadata")
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO rated_charges
			(charge_id, customer_id, aggregation_id, price_book_id, price_version, rule_id, quantity, unit_price, subtotal, currency, calculation_metadata, calculated_at, rerating_job_id, supersedes_charge_id)
		VALUES
			(:charge_id, :customer_id, :aggregation_id, :price_book_id, :price_version, :rule_id, :quantity, :unit_price, :subtotal, :currency, :calculation_metadata, :calculated_at, :rerating_job_id, :supersedes_charge_id)
	`, map[string]interface{}{
		"charge_id":             c.ChargeID,
		"customer_id":           c.CustomerID,
		"aggregation_id":        toNullString(c.AggregationID),
		"price_book_id":         c.PriceBookID,
		"price_version":         c.PriceVersion,
		"rule_id":               c.RuleID,
		"quantity":              c.Quantity,
		"unit_price":            c.UnitPrice,
		"subtotal":              c.Subtotal,
		"currency":              c.Currency,
		"calculation_metadata":  metadata,
		"calculated_at":         c.CalculatedAt,
		"rerating_job_id":       toNullString(c.ReratingJobID),
		"supersedes_charge_id":  toNullString(c.SupersedesChargeID),
	})
	return err
}

func (s *ChargeStore) Get(ctx context.Context, chargeID string) (*charge.RatedCharge, error) {
	var row ratedChargeRow
	err := s.db.GetContext(ctx, &row, `
		SELECT charge_id, customer_id, aggregation_id, price_book_id, price_version, rule_id, quantity, unit_price, subtotal, currency, calculation_metadata, calculated_at, rerating_job_id, supersedes_charge_id
		FROM rated_charges WHERE charge_id = $1
	`, chargeID)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		return nil, err
	}
	return row.toDomain()
}

func (s *ChargeStore) FindLatestForWindow(ctx context.Context, customerID, metricType string, windowStart time.Time) (*charge.RatedCharge, error) {
	var row ratedChargeRow
	err := s.db.GetContext(ctx, &row, `
		SELECT rc.charge_id, rc.customer_id, rc.aggregation_id, rc.price_book_id, rc.price_version, rc.rule_id, rc.quantity, rc.unit_price, rc.subtotal, rc.currency, rc.calculation_metadata, rc.calculated_at, rc.rerating_job_id, rc.supersedes_charge_id
		FROM rated_charges rc
		LEFT JOIN aggregated_usage au ON au.aggregation_id = rc.aggregation_id
		WHERE rc.customer_id = $1
		  AND (au.metric_type = $2 AND au.window_start = $3)
		ORDER BY rc.calculated_at DESC
		LIMIT 1
	`, customerID, metricType, windowStart)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain()
}

func (s *ChargeStore) FindChargesForPeriod(ctx context.Context, customerID string, startDate, endDate time.Time) ([]*charge.RatedCharge, error) {
	var rows []ratedChargeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT charge_id, customer_id, aggregation_id, price_book_id, price_version, rule_id, quantity, unit_price, subtotal, currency, calculation_metadata, calculated_at, rerating_job_id, supersedes_charge_id
		FROM rated_charges
		WHERE customer_id = $1 AND calculated_at >= $2 AND calculated_at < $3
		ORDER BY calculated_at ASC
	`, customerID, startDate, endDate)
	if err != nil {
		return nil, err
	}

	out := make([]*charge.RatedCharge, 0, len(rows))
	for i := range rows {
		c, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
