package main

import (
	"context"
	"net/http"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/api"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/config"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/postgres"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/pubsub"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/pubsub/kafka"
	storepg "github.com/ReyAyanami/invoicing-pipeline-sub000/internal/repository/postgres"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/sentry"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/service/ingest"
	"go.uber.org/fx"
)

func init() {
	time.Local = time.UTC
}

func providePublisher(cfg *config.Configuration, logger *logger.Logger) (pubsub.Publisher, error) {
	return kafka.NewPubSubFromConfig(cfg, logger, cfg.Kafka.AggregationConsumerGroup+"-ingest")
}

func provideIngestTopic(cfg *config.Configuration) string {
	return cfg.Kafka.TopicEvents
}

func provideHTTPServer(cfg *config.Configuration, router *api.EventsHandler) *http.Server {
	return &http.Server{
		Addr:    cfg.Server.Address,
		Handler: api.SetupRouter(router),
	}
}

// main serves EventIngest behind a thin HTTP surface. It owns no Kafka
// consumer, only a producer onto the events topic.
func main() {
	app := fx.New(
		fx.Provide(
			config.NewConfig,
			logger.NewLogger,
			sentry.NewSentryService,
			postgres.NewDB,

			storepg.NewTelemetryStore,

			providePublisher,
			provideIngestTopic,
			ingest.NewService,

			api.NewEventsHandler,
			provideHTTPServer,
		),
		fx.Invoke(
			sentry.RegisterHooks,
			runHTTPServer,
		),
	)
	app.Run()
}

func runHTTPServer(lc fx.Lifecycle, srv *http.Server, logger *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Infow("starting ingest http server", "addr", srv.Addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Errorw("ingest http server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping ingest http server")
			return srv.Shutdown(ctx)
		},
	})
}
