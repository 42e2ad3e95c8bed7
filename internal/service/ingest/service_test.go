package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/errors"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/testutil"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingPublisher always fails Publish, for exercising Ingest's
// publish-failure path without a real broker.
type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, topic string, msg *message.Message) error {
	return assert.AnError
}

func (failingPublisher) Close() error { return nil }

func newTestIngestService(t *testing.T) (*Service, *testutil.InMemoryTelemetryStore) {
	t.Helper()
	repo := testutil.NewInMemoryTelemetryStore()
	ps := testutil.NewInMemoryPubSub()
	log, err := logger.NewLogger()
	require.NoError(t, err)

	svc := NewService(repo, ps, "telemetry-events", log)
	return svc, repo
}

func TestIngest_PersistsAndPublishes(t *testing.T) {
	svc, repo := newTestIngestService(t)
	ctx := context.Background()

	result, err := svc.Ingest(ctx, Request{
		EventType:  "api_calls",
		CustomerID: "cust-1",
		EventTime:  time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.EventID)

	exists, err := repo.Exists(ctx, result.EventID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIngest_DuplicateEventFailsOutright(t *testing.T) {
	svc, _ := newTestIngestService(t)
	ctx := context.Background()

	req := Request{
		EventID:    "fixed-event-id",
		EventType:  "api_calls",
		CustomerID: "cust-1",
		EventTime:  time.Now().UTC(),
	}

	_, err := svc.Ingest(ctx, req)
	require.NoError(t, err)

	_, err = svc.Ingest(ctx, req)
	require.Error(t, err)
	assert.True(t, errors.IsDuplicateEvent(err))
}

func TestIngest_PublishFailureIsReported(t *testing.T) {
	repo := testutil.NewInMemoryTelemetryStore()
	log, err := logger.NewLogger()
	require.NoError(t, err)

	svc := NewService(repo, failingPublisher{}, "telemetry-events", log)

	_, err = svc.Ingest(context.Background(), Request{
		EventType:  "api_calls",
		CustomerID: "cust-1",
		EventTime:  time.Now().UTC(),
	})
	require.Error(t, err)
}
