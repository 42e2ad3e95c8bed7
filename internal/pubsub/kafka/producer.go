package kafka

import (
	kafkapubsub "github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/config"
)

// Producer wraps a watermill-kafka publisher tuned per config.KafkaConfig's
// sarama settings (producer retry budget, required acks).
type Producer struct {
	publisher *kafkapubsub.Publisher
}

// NewProducer builds a Producer against the configured brokers.
func NewProducer(cfg *config.Configuration) (*Producer, error) {
	publisher, err := kafkapubsub.NewPublisher(
		kafkapubsub.PublisherConfig{
			Brokers:               cfg.Kafka.Brokers,
			Marshaler:             kafkapubsub.DefaultMarshaler{},
			OverwriteSaramaConfig: cfg.Kafka.GetSaramaConfig(),
		},
		watermillStdLogger(),
	)
	if err != nil {
		return nil, err
	}

	return &Producer{publisher: publisher}, nil
}

// Publish publishes a message to topic.
func (p *Producer) Publish(topic string, msg *message.Message) error {
	return p.publisher.Publish(topic, msg)
}

// Close closes the underlying publisher.
func (p *Producer) Close() error {
	return p.publisher.Close()
}
