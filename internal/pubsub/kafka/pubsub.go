package kafka

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/config"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/pubsub"
)

type PubSub struct {
	producer *Producer
	consumer *Consumer
	config   *config.Configuration
	logger   *logger.Logger
}

// NewPubSub creates a new kafka-based pubsub
func NewPubSub(
	config *config.Configuration,
	logger *logger.Logger,
	producer *Producer,
	consumer *Consumer,
) pubsub.PubSub {
	return &PubSub{
		producer: producer,
		consumer: consumer,
		config:   config,
		logger:   logger,
	}
}

// NewPubSubFromConfig builds a producer and a consumer bound to
// consumerGroupID, then wraps both as a pubsub.PubSub.
func NewPubSubFromConfig(
	config *config.Configuration,
	logger *logger.Logger,
	consumerGroupID string,
) (pubsub.PubSub, error) {
	producer, err := NewProducer(config)
	if err != nil {
		logger.Errorw("failed to create producer", "error", err)
		return nil, err
	}

	consumer, err := NewConsumer(config, consumerGroupID)
	if err != nil {
		logger.Errorw("failed to create consumer", "error", err)
		return nil, err
	}

	return NewPubSub(config, logger, producer, consumer), nil
}

// Publish publishes a message to topic.
func (p *PubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	return p.producer.Publish(topic, msg)
}

// Subscribe starts consuming topic.
func (p *PubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.consumer.Subscribe(ctx, topic)
}

// Close closes both the producer and the consumer.
func (p *PubSub) Close() error {
	_ = p.producer.Close()
	return p.consumer.Close()
}
