package watermark

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/config"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/usage"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/pubsub"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/robfig/cron"
	"github.com/sourcegraph/conc/pool"
)

// finalizeConcurrency bounds how many expired windows a single tick
// finalizes in parallel — they share no key, so there is no ordering
// requirement between them, only a bound on concurrent storage writes.
const finalizeConcurrency = 8

// finalizedPayload is the payload published to the aggregated-usage stream
// once a window has been finalized.
type finalizedPayload struct {
	AggregationID string    `json:"aggregation_id"`
	CustomerID    string    `json:"customer_id"`
	MetricType    string    `json:"metric_type"`
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
	Value         string    `json:"value"`
	Unit          string    `json:"unit"`
	EventCount    int       `json:"event_count"`
	EventIDs      []string  `json:"event_ids"`
	IsFinal       bool      `json:"is_final"`
}

// Service is the WatermarkDriver: on every tick, advances the watermark,
// finalizes every window whose windowEnd has passed it, and publishes
// each finalized aggregate.
type Service struct {
	store             usage.WindowStore
	publisher         pubsub.Publisher
	topic             string
	allowedLateness   time.Duration
	watermarkInterval time.Duration
	logger            *logger.Logger

	cron *cron.Cron
}

func NewService(store usage.WindowStore, publisher pubsub.Publisher, cfg *config.Configuration, logger *logger.Logger) *Service {
	return &Service{
		store:             store,
		publisher:         publisher,
		topic:             cfg.Kafka.TopicAggUsage,
		allowedLateness:   cfg.Window.AllowedLateness,
		watermarkInterval: cfg.Window.WatermarkInterval,
		logger:            logger,
	}
}

// Watermark returns now - allowedLateness, matching Aggregator's
// derivation — the two must never drift apart.
func (s *Service) Watermark(now time.Time) time.Time {
	return now.Add(-s.allowedLateness)
}

// Start schedules Tick to run every WatermarkInterval using a `@every`
// cron spec, rather than a hand-rolled time.Ticker loop.
func (s *Service) Start(ctx context.Context) error {
	s.cron = cron.New()
	spec := "@every " + s.watermarkInterval.String()
	err := s.cron.AddFunc(spec, func() {
		if err := s.Tick(ctx); err != nil {
			s.logger.Errorw("watermark tick failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron scheduler so no further tick starts — the first step
// of an orderly shutdown. A tick already running is not waited for.
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Tick finalizes every expired window and publishes it, in parallel up to
// finalizeConcurrency. Per-row failures are logged and left for the next
// tick to retry — Finalize is safe to re-run.
func (s *Service) Tick(ctx context.Context) error {
	now := time.Now().UTC()
	watermark := s.Watermark(now)

	rows, err := s.store.ListExpired(ctx, watermark)
	if err != nil {
		return err
	}

	p := pool.New().WithMaxGoroutines(finalizeConcurrency)
	for _, row := range rows {
		row := row
		p.Go(func() {
			if err := s.finalizeAndPublish(ctx, row, now); err != nil {
				s.logger.Errorw("failed to finalize window",
					"aggregation_id", row.AggregationID, "error", err)
			}
		})
	}
	p.Wait()
	return nil
}

func (s *Service) finalizeAndPublish(ctx context.Context, row *usage.AggregatedUsage, at time.Time) error {
	row.Finalize(at)
	if err := s.store.Finalize(ctx, row); err != nil {
		return err
	}

	payload := finalizedPayload{
		AggregationID: row.AggregationID,
		CustomerID:    row.CustomerID,
		MetricType:    string(row.MetricType),
		WindowStart:   row.WindowStart,
		WindowEnd:     row.WindowEnd,
		Value:         row.Value.String(),
		Unit:          string(row.Unit),
		EventCount:    row.EventCount,
		EventIDs:      row.EventIDs,
		IsFinal:       true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := message.NewMessage(uuid.New().String(), body)
	return s.publisher.Publish(ctx, s.topic, msg)
}
