package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/config"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/telemetry"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/errors"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/pubsub"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// Request is the inbound shape EventIngest accepts from cmd/ingest's HTTP
// handler. EventID is optional; when empty, Service generates one.
type Request struct {
	EventID    string                 `json:"event_id"`
	EventType  string                 `json:"event_type" validate:"required"`
	CustomerID string                 `json:"customer_id" validate:"required"`
	EventTime  time.Time              `json:"event_time" validate:"required"`
	Metadata   map[string]interface{} `json:"metadata"`
	Source     string                 `json:"source"`
}

// UnmarshalJSON decodes Request with metadata numbers kept as json.Number
// rather than float64 — gin's ShouldBindJSON otherwise decodes the inbound
// producer payload's metadata.value through the standard decoder, which
// would hand telemetry.NewEvent a float64 before it ever reaches
// Event.NumericValue's own json.Number handling.
func (r *Request) UnmarshalJSON(data []byte) error {
	type alias Request
	aux := &struct{ *alias }{alias: (*alias)(r)}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(aux)
}

// Result is what the caller gets back once an event has been accepted.
type Result struct {
	EventID       string    `json:"event_id"`
	IngestionTime time.Time `json:"ingestion_time"`
}

// Service implements EventIngest: deduplicate by EventID, persist the raw
// event, then publish it onto the events stream for the Aggregator to pick
// up. Publish happens after a successful persist, so a crash between the
// two leaves a durable event that a future re-publish (operator-triggered,
// out of scope here) could still recover — never the other way around.
type Service struct {
	repo      telemetry.Repository
	publisher pubsub.Publisher
	topic     string
	logger    *logger.Logger
}

func NewService(repo telemetry.Repository, publisher pubsub.Publisher, topic string, logger *logger.Logger) *Service {
	return &Service{repo: repo, publisher: publisher, topic: topic, logger: logger}
}

// Ingest persists req as a telemetry event and publishes it to the events
// stream. A duplicate EventID fails the request outright — no retry, no
// state change.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	event := telemetry.NewEvent(req.EventType, req.CustomerID, req.EventTime, req.Metadata, req.Source)
	if req.EventID != "" {
		event.EventID = req.EventID
	}
	event.IngestionTime = time.Now().UTC()

	if err := event.Validate(); err != nil {
		return nil, errors.Wrap(err, "ERR_VALIDATION", "validate telemetry event")
	}

	if err := s.repo.Insert(ctx, event); err != nil {
		return nil, errors.WithOp(err, "ingest.Service.Ingest")
	}

	if err := s.publish(ctx, event); err != nil {
		s.logger.Errorw("failed to publish ingested event", "event_id", event.EventID, "error", err)
		return nil, errors.Wrap(fmt.Errorf("%w: %w", errors.ErrStreamPublishFailure, err), "ERR_STREAM_PUBLISH_FAILURE", "publish telemetry event")
	}

	return &Result{EventID: event.EventID, IngestionTime: event.IngestionTime}, nil
}

func (s *Service) publish(ctx context.Context, event *telemetry.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "ERR_MALFORMED_MESSAGE", "marshal telemetry event")
	}
	msg := message.NewMessage(uuid.New().String(), payload)
	return s.publisher.Publish(ctx, s.topic, msg)
}
