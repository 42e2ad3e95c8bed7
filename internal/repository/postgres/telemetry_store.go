package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/telemetry"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/errors"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/postgres"
	"github.com/lib/pq"
)

// TelemetryStore is the sqlx-backed telemetry.Repository.
type TelemetryStore struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewTelemetryStore(db *postgres.DB, logger *logger.Logger) telemetry.Repository {
	return &TelemetryStore{db: db, logger: logger}
}

type telemetryEventRow struct {
	EventID       string         `db:"event_id"`
	EventType     string         `db:"event_type"`
	CustomerID    string         `db:"customer_id"`
	EventTime     sql.NullTime   `db:"event_time"`
	IngestionTime sql.NullTime   `db:"ingestion_time"`
	Metadata      []byte         `db:"metadata"`
	Source        sql.NullString `db:"source"`
}

func (s *TelemetryStore) Insert(ctx context.Context, event *telemetry.Event) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return errors.Wrap(err, "ERR_MALFORMED_MESSAGE", "marshal event metadata")
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO telemetry_events (event_id, event_type, customer_id, event_time, ingestion_time, metadata, source)
		VALUES (:event_id, :event_type, :customer_id, :event_time, :ingestion_time, :metadata, :source)
	`, map[string]interface{}{
		"event_id":       event.EventID,
		"event_type":     event.EventType,
		"customer_id":    event.CustomerID,
		"event_time":     event.EventTime,
		"ingestion_time": event.IngestionTime,
		"metadata":       metadata,
		"source":         event.Source,
	})
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return errors.ErrDuplicateEvent
		}
		return err
	}
	return nil
}

func (s *TelemetryStore) Exists(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM telemetry_events WHERE event_id = $1)`, eventID)
	return exists, err
}

func (s *TelemetryStore) Get(ctx context.Context, eventID string) (*telemetry.Event, error) {
	var row telemetryEventRow
	err := s.db.GetContext(ctx, &row, `
		SELECT event_id, event_type, customer_id, event_time, ingestion_time, metadata, source
		FROM telemetry_events WHERE event_id = $1
	`, eventID)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		return nil, err
	}
	return rowToEvent(&row)
}

func rowToEvent(row *telemetryEventRow) (*telemetry.Event, error) {
	var metadata map[string]interface{}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			return nil, errors.Wrap(err, "ERR_MALFORMED_MESSAGE", "unmarshal event metadata")
		}
	}

	return &telemetry.Event{
		EventID:       row.EventID,
		EventType:     row.EventType,
		CustomerID:    row.CustomerID,
		EventTime:     row.EventTime.Time,
		IngestionTime: row.IngestionTime.Time,
		Metadata:      metadata,
		Source:        row.Source.String,
	}, nil
}
