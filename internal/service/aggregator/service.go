package aggregator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/config"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/telemetry"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/usage"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/errors"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/pubsub"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/pubsub/router"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/types"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxUpdateRetries bounds the reload-and-retry loop on a lost version-CAS
// race. On exhaustion the caller surfaces the conflict to the router,
// which logs it and re-delivers by not acknowledging the message.
const maxUpdateRetries = 5

// Service is the Aggregator: consumes the events stream, assigns each
// event to its window, applies the metric's aggregation function, and
// redirects events past the watermark onto the late-events stream.
type Service struct {
	store          usage.WindowStore
	publisher      pubsub.Publisher
	lateTopic      string
	windowSize     time.Duration
	allowedLateness time.Duration
	logger         *logger.Logger
}

func NewService(store usage.WindowStore, publisher pubsub.Publisher, cfg *config.Configuration, logger *logger.Logger) *Service {
	return &Service{
		store:           store,
		publisher:       publisher,
		lateTopic:       cfg.Kafka.TopicLateEvents,
		windowSize:      cfg.Window.WindowSize,
		allowedLateness: cfg.Window.AllowedLateness,
		logger:          logger,
	}
}

// Register attaches the Aggregator's handler to r, consuming subscriber on
// the events topic.
func (s *Service) Register(r *router.Router, topic string, subscriber message.Subscriber) {
	r.AddNoPublishHandler("aggregator", topic, subscriber, s.HandleMessage)
}

// HandleMessage decodes msg as a telemetry.Event and folds it into its
// window, or redirects it to the late-events stream. A decode failure is
// logged and swallowed rather than blocking the partition.
func (s *Service) HandleMessage(msg *message.Message) error {
	ctx := msg.Context()

	var event telemetry.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		s.logger.Errorw("dropping malformed event", "message_uuid", msg.UUID, "error", err)
		return nil
	}

	return s.Process(ctx, &event)
}

// Watermark returns the current watermark: now - allowedLateness. The
// WatermarkDriver derives it with an identical method of its own.
func (s *Service) Watermark(now time.Time) time.Time {
	return now.Add(-s.allowedLateness)
}

// WindowStart aligns t down to the nearest window boundary.
func (s *Service) WindowStart(t time.Time) time.Time {
	return t.Truncate(s.windowSize)
}

// Process folds a single event into its window, or redirects it to the
// late-events stream if its window has already passed the watermark.
func (s *Service) Process(ctx context.Context, event *telemetry.Event) error {
	now := time.Now().UTC()
	windowStart := s.WindowStart(event.EventTime)
	windowEnd := windowStart.Add(s.windowSize)
	watermark := s.Watermark(now)

	if windowStart.Before(watermark) {
		return s.redirectLate(ctx, event, now, watermark)
	}

	metricType := types.ResolveMetricType(event.EventType)
	key := usage.WindowKey{CustomerID: event.CustomerID, MetricType: metricType, WindowStart: windowStart}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		row, _, err := s.store.GetOrCreate(ctx, key, func() *usage.AggregatedUsage {
			return usage.NewAggregatedUsage(key, windowEnd)
		})
		if err != nil {
			return errors.WithOp(err, "aggregator.Service.Process")
		}

		if row.HasEvent(event.EventID) {
			return nil
		}

		addend := s.addend(metricType, event)
		row.Apply(event.EventID, addend, now)
		row.Version++

		err = s.store.Update(ctx, row)
		if err == nil {
			return nil
		}
		if errors.IsStorageConflict(err) {
			continue
		}
		return errors.WithOp(err, "aggregator.Service.Process")
	}

	return errors.WithOp(errors.ErrStorageConflict, "aggregator.Service.Process: retries exhausted")
}

// addend resolves the value an event contributes under its metric's
// aggregation function.
func (s *Service) addend(metricType types.MetricType, event *telemetry.Event) decimal.Decimal {
	switch metricType.Aggregator() {
	case types.AggregationMax:
		return event.NumericValue(0)
	default:
		return event.NumericValue(1)
	}
}

func (s *Service) redirectLate(ctx context.Context, event *telemetry.Event, receivedAt, watermark time.Time) error {
	envelope := telemetry.LateEnvelope{
		Event:      *event,
		ReceivedAt: receivedAt,
		Watermark:  watermark,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, "ERR_MALFORMED_MESSAGE", "marshal late envelope")
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	if err := s.publisher.Publish(ctx, s.lateTopic, msg); err != nil {
		return errors.Wrap(err, "ERR_STREAM_PUBLISH_FAILURE", "publish late event")
	}
	return nil
}
