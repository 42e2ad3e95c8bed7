package raterating

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/config"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/charge"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/telemetry"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/idempotency"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/pubsub/router"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/service/rater"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/types"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Service is the LateEventProcessor: consumes the late-events stream and
// invokes the Rater directly as a delta rating, linking the result to any
// prior charge for the same window via SupersedesChargeID.
type Service struct {
	rater      *rater.Service
	charges    charge.Repository
	generator  *idempotency.Generator
	windowSize time.Duration
	logger     *logger.Logger
}

func NewService(rater *rater.Service, charges charge.Repository, cfg *config.Configuration, logger *logger.Logger) *Service {
	return &Service{
		rater:      rater,
		charges:    charges,
		generator:  idempotency.NewGenerator(),
		windowSize: cfg.Window.WindowSize,
		logger:     logger,
	}
}

// Register attaches the LateEventProcessor's handler to r, consuming
// subscriber on the late-events topic.
func (s *Service) Register(r *router.Router, topic string, subscriber message.Subscriber) {
	r.AddNoPublishHandler("late-event-processor", topic, subscriber, s.HandleMessage)
}

// HandleMessage decodes msg as a telemetry.LateEnvelope and processes it.
// Failures are logged and the message is still considered consumed —
// the consumer moves on rather than blocking on a bad late event.
func (s *Service) HandleMessage(msg *message.Message) error {
	ctx := msg.Context()

	var envelope telemetry.LateEnvelope
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
		s.logger.Errorw("dropping malformed late envelope", "message_uuid", msg.UUID, "error", err)
		return nil
	}

	if err := s.Process(ctx, &envelope); err != nil {
		s.logger.Errorw("failed to process late event",
			"event_id", envelope.Event.EventID, "customer_id", envelope.Event.CustomerID, "error", err)
	}
	return nil
}

// Process resolves the window a late event belongs to, finds any prior
// charge for it, and rates the event as an additive delta charge.
func (s *Service) Process(ctx context.Context, envelope *telemetry.LateEnvelope) error {
	event := envelope.Event
	metricType := types.ResolveMetricType(event.EventType)
	windowStart := event.EventTime.Truncate(s.windowSize)

	reratingJobID := s.generator.GenerateKey(idempotency.ScopeRerating, map[string]interface{}{
		"customer_id":  event.CustomerID,
		"window_start": windowStart.UTC().Format(time.RFC3339),
	})

	previous, err := s.charges.FindLatestForWindow(ctx, event.CustomerID, string(metricType), windowStart)
	if err != nil {
		return err
	}

	var supersedesChargeID *string
	if previous != nil {
		supersedesChargeID = &previous.ChargeID
	}

	quantity := event.NumericValue(1)

	_, err = s.rater.Rate(ctx, rater.Request{
		AggregationID:      nil,
		CustomerID:         event.CustomerID,
		MetricType:         metricType,
		Quantity:           quantity,
		EffectiveDate:      event.EventTime,
		SourceEventIDs:     []string{event.EventID},
		ReratingJobID:      &reratingJobID,
		SupersedesChargeID: supersedesChargeID,
	})
	return err
}
