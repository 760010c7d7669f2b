package cmdutil

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/aob/internal/outbox"
	"github.com/dukex/aob/internal/outbox/kafkabus"
	kafkago "github.com/segmentio/kafka-go"
)

// NewBus builds the outbox.Bus named by provider ("kafka-watermill",
// "kafka-raw", or "memory"). brokers/topic are required for the kafka
// variants; the returned closer is always safe to call.
func NewBus(logger *slog.Logger, provider, topic string, brokers []string) (outbox.Bus, func() error, error) {
	switch provider {
	case "kafka-watermill":
		bus, err := kafkabus.NewWatermillBus(watermill.NewSlogLogger(logger), brokers, topic)
		if err != nil {
			return nil, nil, fmt.Errorf("cmdutil: watermill kafka bus: %w", err)
		}

		return bus, bus.Close, nil
	case "kafka-raw":
		writer := &kafkago.Writer{
			Addr:     kafkago.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafkago.Hash{},
		}
		bus := kafkabus.NewRawBus(logger, writer)

		return bus, bus.Close, nil
	case "memory", "":
		bus := outbox.NewMemoryBus()

		return bus, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("cmdutil: unsupported bus provider %q", provider)
	}
}
