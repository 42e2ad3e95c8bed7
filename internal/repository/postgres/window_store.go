package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/usage"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/errors"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/postgres"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/types"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// WindowStore is the sqlx-backed usage.WindowStore. GetOrCreate relies on the
// partial unique index on (customer_id, metric_type, window_start) WHERE
// rerating_job_id IS NULL to make concurrent creation race-safe; Update is a
// conditional write on version (optimistic concurrency).
type WindowStore struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewWindowStore(db *postgres.DB, logger *logger.Logger) usage.WindowStore {
	return &WindowStore{db: db, logger: logger}
}

type aggregatedUsageRow struct {
	AggregationID string         `db:"aggregation_id"`
	CustomerID    string         `db:"customer_id"`
	MetricType    string         `db:"metric_type"`
	WindowStart   time.Time      `db:"window_start"`
	WindowEnd     time.Time      `db:"window_end"`
	Value         decimal.Decimal `db:"value"`
	Unit          string         `db:"unit"`
	EventCount    int            `db:"event_count"`
	EventIDs      pq.StringArray `db:"event_ids"`
	IsFinal       bool           `db:"is_final"`
	Version       int            `db:"version"`
	ComputedAt    time.Time      `db:"computed_at"`
	ReratingJobID sql.NullString `db:"rerating_job_id"`
}

func (r *aggregatedUsageRow) toDomain() *usage.AggregatedUsage {
	var reratingJobID *string
	if r.ReratingJobID.Valid {
		reratingJobID = &r.ReratingJobID.String
	}
	return &usage.AggregatedUsage{
		AggregationID: r.AggregationID,
		CustomerID:    r.CustomerID,
		MetricType:    types.MetricType(r.MetricType),
		WindowStart:   r.WindowStart,
		WindowEnd:     r.WindowEnd,
		Value:         r.Value,
		Unit:          types.Unit(r.Unit),
		EventCount:    r.EventCount,
		EventIDs:      []string(r.EventIDs),
		IsFinal:       r.IsFinal,
		Version:       r.Version,
		ComputedAt:    r.ComputedAt,
		ReratingJobID: reratingJobID,
	}
}

func fromDomain(a *usage.AggregatedUsage) *aggregatedUsageRow {
	var reratingJobID sql.NullString
	if a.ReratingJobID != nil {
		reratingJobID = sql.NullString{String: *a.ReratingJobID, Valid: true}
	}
	return &aggregatedUsageRow{
		AggregationID: a.AggregationID,
		CustomerID:    a.CustomerID,
		MetricType:    string(a.MetricType),
		WindowStart:   a.WindowStart,
		WindowEnd:     a.WindowEnd,
		Value:         a.Value,
		Unit:          string(a.Unit),
		EventCount:    a.EventCount,
		EventIDs:      pq.StringArray(a.EventIDs),
		IsFinal:       a.IsFinal,
		Version:       a.Version,
		ComputedAt:    a.ComputedAt,
		ReratingJobID: reratingJobID,
	}
}

func (s *WindowStore) GetOrCreate(ctx context.Context, key usage.WindowKey, seed usage.SeedFactory) (*usage.AggregatedUsage, bool, error) {
	existing, err := s.findOpen(ctx, key)
	if err == nil {
		return existing, false, nil
	}
	if !errors.IsNotFound(err) {
		return nil, false, err
	}

	row := seed()
	insertRow := fromDomain(row)
	_, insertErr := s.db.NamedExecContext(ctx, `
		INSERT INTO aggregated_usage
			(aggregation_id, customer_id, metric_type, window_start, window_end, value, unit, event_count, event_ids, is_final, version, computed_at, rerating_job_id)
		VALUES
			(:aggregation_id, :customer_id, :metric_type, :window_start, :window_end, :value, :unit, :event_count, :event_ids, :is_final, :version, :computed_at, :rerating_job_id)
	`, insertRow)
	if insertErr != nil {
		if pqErr, ok := insertErr.(*pq.Error); ok && pqErr.Code == "23505" {
			// Lost the create race: reload the winner's row.
			existing, err = s.findOpen(ctx, key)
			if err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
		return nil, false, insertErr
	}

	return row, true, nil
}

func (s *WindowStore) findOpen(ctx context.Context, key usage.WindowKey) (*usage.AggregatedUsage, error) {
	var row aggregatedUsageRow
	err := s.db.GetContext(ctx, &row, `
		SELECT aggregation_id, customer_id, metric_type, window_start, window_end, value, unit, event_count, event_ids, is_final, version, computed_at, rerating_job_id
		FROM aggregated_usage
		WHERE customer_id = $1 AND metric_type = $2 AND window_start = $3 AND is_final = false AND rerating_job_id IS NULL
	`, key.CustomerID, string(key.MetricType), key.WindowStart)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// Update performs a conditional write on row.Version (the caller's
// in-memory copy, whose Version has already been incremented past what it
// read). If no row matches the previous version, the write lost a race and
// errors.ErrStorageConflict is returned for the caller to reload and retry.
func (s *WindowStore) Update(ctx context.Context, row *usage.AggregatedUsage) error {
	return s.casUpdate(ctx, row)
}

func (s *WindowStore) casUpdate(ctx context.Context, row *usage.AggregatedUsage) error {
	dbRow := fromDomain(row)
	result, err := s.db.NamedExecContext(ctx, `
		UPDATE aggregated_usage
		SET value = :value, event_count = :event_count, event_ids = :event_ids,
		    computed_at = :computed_at, version = :version, is_final = :is_final
		WHERE aggregation_id = :aggregation_id AND version = :prev_version
	`, map[string]interface{}{
		"value":          dbRow.Value,
		"event_count":    dbRow.EventCount,
		"event_ids":      dbRow.EventIDs,
		"computed_at":    dbRow.ComputedAt,
		"version":        dbRow.Version,
		"is_final":       dbRow.IsFinal,
		"aggregation_id": dbRow.AggregationID,
		"prev_version":   dbRow.Version - 1,
	})
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.ErrStorageConflict
	}
	return nil
}

func (s *WindowStore) ListExpired(ctx context.Context, watermark time.Time) ([]*usage.AggregatedUsage, error) {
	var rows []aggregatedUsageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT aggregation_id, customer_id, metric_type, window_start, window_end, value, unit, event_count, event_ids, is_final, version, computed_at, rerating_job_id
		FROM aggregated_usage
		WHERE is_final = false AND window_end <= $1
	`, watermark)
	if err != nil {
		return nil, err
	}
	out := make([]*usage.AggregatedUsage, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (s *WindowStore) Finalize(ctx context.Context, row *usage.AggregatedUsage) error {
	return s.casUpdate(ctx, row)
}

func (s *WindowStore) Get(ctx context.Context, aggregationID string) (*usage.AggregatedUsage, error) {
	var row aggregatedUsageRow
	err := s.db.GetContext(ctx, &row, `
		SELECT aggregation_id, customer_id, metric_type, window_start, window_end, value, unit, event_count, event_ids, is_final, version, computed_at, rerating_job_id
		FROM aggregated_usage WHERE aggregation_id = $1
	`, aggregationID)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}
