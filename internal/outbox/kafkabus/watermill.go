// Package kafkabus provides Kafka-backed outbox.Bus implementations,
// mirroring operion/pkg/channels/kafka's publisher/subscriber construction
// and operion/pkg/eventbus's JSON envelope + metadata-key conventions.
package kafkabus

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/aob/pkg/models"
)

const (
	eventTypeMetadataKey = "event_type"
	eventKeyMetadataKey  = "key"
)

// WatermillBus publishes through a watermill message.Publisher backed by
// sarama, constructed the same way operion/pkg/channels/kafka.CreateChannel
// wires its publisher.
type WatermillBus struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillBus dials brokers (comma-separated, e.g. from KAFKA_BROKERS)
// and returns a Bus that publishes events to topic.
func NewWatermillBus(logger watermill.LoggerAdapter, brokers []string, topic string) (*WatermillBus, error) {
	if len(brokers) == 0 || brokers[0] == "" {
		return nil, errors.New("kafkabus: no brokers configured")
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true

	pub, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaCfg,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	return &WatermillBus{publisher: pub, topic: topic}, nil
}

// BrokersFromEnv splits the KAFKA_BROKERS environment variable, matching
// operion/pkg/channels/kafka.CreateChannel's convention.
func BrokersFromEnv() []string {
	return strings.Split(os.Getenv("KAFKA_BROKERS"), ",")
}

func (b *WatermillBus) Publish(_ context.Context, key string, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(eventKeyMetadataKey, key)
	msg.Metadata.Set(eventTypeMetadataKey, string(ev.Type))

	return b.publisher.Publish(b.topic, msg)
}

// Close releases the underlying publisher's connections.
func (b *WatermillBus) Close() error {
	return b.publisher.Close()
}
