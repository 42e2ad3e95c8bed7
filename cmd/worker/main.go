package main

import (
	"context"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/config"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/postgres"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/pubsub"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/pubsub/kafka"
	pubsubmemory "github.com/ReyAyanami/invoicing-pipeline-sub000/internal/pubsub/memory"
	pubsubRouter "github.com/ReyAyanami/invoicing-pipeline-sub000/internal/pubsub/router"
	storepg "github.com/ReyAyanami/invoicing-pipeline-sub000/internal/repository/postgres"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/sentry"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/service/aggregator"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/service/rater"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/service/raterating"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/service/watermark"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/types"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"
)

func init() {
	time.Local = time.UTC
}

// aggregationPubSub is the Kafka-backed pubsub bound to the
// aggregation-service-group consumer group: Aggregator subscribes to the
// events topic on it and publishes late events and finalized aggregates
// through it; the Rater also subscribes on it, to the finalized-aggregates
// topic, to drive the primary (non-late) rating path.
type aggregationPubSub struct{ pubsub.PubSub }

// reratingPubSub is the Kafka-backed pubsub bound to the re-rating-group
// consumer group: LateEventProcessor subscribes to the late-events topic
// on it; the Rater publishes rated charges through it.
type reratingPubSub struct{ pubsub.PubSub }

// sharedMemoryPubSub is the single in-process gochannel broker backing
// both consumer groups under ModeLocal, so a message the Aggregator's
// pubsub publishes (e.g. a late event) is visible to the rerating
// pubsub's subscription on that same topic — two independent gochannel
// instances would not share topics the way two Kafka clients sharing a
// cluster do.
type sharedMemoryPubSub struct{ pubsub.PubSub }

func provideSharedMemoryPubSub(logger *logger.Logger) sharedMemoryPubSub {
	return sharedMemoryPubSub{pubsubmemory.NewPubSub(logger)}
}

func provideAggregationPubSub(cfg *config.Configuration, logger *logger.Logger, shared sharedMemoryPubSub) (aggregationPubSub, error) {
	if cfg.Deployment.Mode == types.ModeLocal {
		return aggregationPubSub{shared.PubSub}, nil
	}
	ps, err := kafka.NewPubSubFromConfig(cfg, logger, cfg.Kafka.AggregationConsumerGroup)
	if err != nil {
		return aggregationPubSub{}, err
	}
	return aggregationPubSub{ps}, nil
}

func provideReratingPubSub(cfg *config.Configuration, logger *logger.Logger, shared sharedMemoryPubSub) (reratingPubSub, error) {
	if cfg.Deployment.Mode == types.ModeLocal {
		return reratingPubSub{shared.PubSub}, nil
	}
	ps, err := kafka.NewPubSubFromConfig(cfg, logger, cfg.Kafka.ReratingConsumerGroup)
	if err != nil {
		return reratingPubSub{}, err
	}
	return reratingPubSub{ps}, nil
}

func provideAggregatorPublisher(ps aggregationPubSub) pubsub.Publisher { return ps.PubSub }
func provideAggregatorSubscriber(ps aggregationPubSub) message.Subscriber { return ps.PubSub }
func provideWatermarkPublisher(ps aggregationPubSub) pubsub.Publisher { return ps.PubSub }
func provideRaterPublisher(ps reratingPubSub) pubsub.Publisher { return ps.PubSub }
func provideReratingSubscriber(ps reratingPubSub) message.Subscriber { return ps.PubSub }

// main wires the four stream-driven workers (Aggregator, WatermarkDriver,
// Rater, LateEventProcessor) behind a single fx app. This process owns no
// HTTP surface, only Kafka consumer groups and a cron-scheduled tick.
func main() {
	app := fx.New(
		fx.Provide(
			config.NewConfig,
			logger.NewLogger,
			sentry.NewSentryService,
			postgres.NewDB,

			storepg.NewTelemetryStore,
			storepg.NewWindowStore,
			storepg.NewPriceBookStore,
			storepg.NewChargeStore,

			provideSharedMemoryPubSub,
			provideAggregationPubSub,
			provideReratingPubSub,
			fx.Annotate(provideAggregatorPublisher, fx.ResultTags(`name:"aggregatorPublisher"`)),
			fx.Annotate(provideAggregatorSubscriber, fx.ResultTags(`name:"aggregatorSubscriber"`)),
			fx.Annotate(provideWatermarkPublisher, fx.ResultTags(`name:"watermarkPublisher"`)),
			fx.Annotate(provideRaterPublisher, fx.ResultTags(`name:"raterPublisher"`)),
			fx.Annotate(provideReratingSubscriber, fx.ResultTags(`name:"reratingSubscriber"`)),

			pubsubRouter.NewRouter,

			fx.Annotate(aggregator.NewService, fx.ParamTags(``, `name:"aggregatorPublisher"`, ``, ``)),
			fx.Annotate(watermark.NewService, fx.ParamTags(``, `name:"watermarkPublisher"`, ``, ``)),
			fx.Annotate(rater.NewService, fx.ParamTags(``, ``, `name:"raterPublisher"`, ``, ``)),
			raterating.NewService,
		),
		fx.Invoke(
			sentry.RegisterHooks,
			fx.Annotate(registerAggregator, fx.ParamTags(``, ``, `name:"aggregatorSubscriber"`, ``)),
			fx.Annotate(registerRater, fx.ParamTags(``, ``, `name:"aggregatorSubscriber"`, ``)),
			fx.Annotate(registerLateEventProcessor, fx.ParamTags(``, ``, `name:"reratingSubscriber"`, ``)),
			runRouter,
			registerWatermarkDriver,
		),
	)
	app.Run()
}

func registerAggregator(
	r *pubsubRouter.Router,
	svc *aggregator.Service,
	consumer message.Subscriber,
	cfg *config.Configuration,
) {
	svc.Register(r, cfg.Kafka.TopicEvents, consumer)
}

func registerRater(
	r *pubsubRouter.Router,
	svc *rater.Service,
	consumer message.Subscriber,
	cfg *config.Configuration,
) {
	svc.Register(r, cfg.Kafka.TopicAggUsage, consumer)
}

func registerLateEventProcessor(
	r *pubsubRouter.Router,
	svc *raterating.Service,
	consumer message.Subscriber,
	cfg *config.Configuration,
) {
	svc.Register(r, cfg.Kafka.TopicLateEvents, consumer)
}

func registerWatermarkDriver(lc fx.Lifecycle, svc *watermark.Service, logger *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting watermark driver")
			return svc.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping watermark driver")
			svc.Stop()
			return nil
		},
	})
}

func runRouter(lc fx.Lifecycle, r *pubsubRouter.Router, logger *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting message router")
			go func() {
				if err := r.Run(context.Background()); err != nil {
					logger.Errorw("message router failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping message router")
			return r.Close()
		},
	})
}
