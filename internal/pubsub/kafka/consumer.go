package kafka

import (
	"context"

	"github.com/Shopify/sarama"
	kafkapubsub "github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/config"
)

// Consumer wraps a watermill-kafka subscriber bound to one consumer group.
// offset semantics are "earliest-new": sarama's offset reset policy is
// configured to oldest, but since state lives entirely in the WindowStore
// (and not in any in-memory replay), a restarted consumer only needs to
// pick up from its last committed offset.
type Consumer struct {
	subscriber *kafkapubsub.Subscriber
}

// NewConsumer builds a Consumer for consumerGroupID.
func NewConsumer(cfg *config.Configuration, consumerGroupID string) (*Consumer, error) {
	saramaCfg := cfg.Kafka.GetSaramaConfig()
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Consumer.Return.Errors = true

	subscriber, err := kafkapubsub.NewSubscriber(
		kafkapubsub.SubscriberConfig{
			Brokers:               cfg.Kafka.Brokers,
			Unmarshaler:           kafkapubsub.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaCfg,
			ConsumerGroup:         consumerGroupID,
		},
		watermillStdLogger(),
	)
	if err != nil {
		return nil, err
	}

	return &Consumer{subscriber: subscriber}, nil
}

// Subscribe starts consuming topic, returning the channel of messages.
func (c *Consumer) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return c.subscriber.Subscribe(ctx, topic)
}

// Close closes the underlying subscriber.
func (c *Consumer) Close() error {
	return c.subscriber.Close()
}
