package kafkabus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/dukex/aob/pkg/models"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// RawBus publishes directly through a *kafkago.Writer, grounded on
// operion/pkg/eventbus/kafka.publishEvent: it injects the active OTel
// trace context into message headers and detaches the write from the
// caller's cancellation so an in-flight publish survives a request
// timeout (the write either lands or is retried by the polling loop).
type RawBus struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewRawBus wraps an already-configured kafka-go writer.
func NewRawBus(logger *slog.Logger, writer *kafkago.Writer) *RawBus {
	return &RawBus{writer: writer, logger: logger}
}

func (b *RawBus) Publish(ctx context.Context, key string, ev models.Event) error {
	b.logger.InfoContext(ctx, "publishing event", "key", key, "event_type", ev.Type)

	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	propagator := otel.GetTextMapPropagator()
	carrier := propagation.MapCarrier{}
	propagator.Inject(ctx, carrier)

	headers := make([]kafkago.Header, 0, len(carrier)+2)

	for k, v := range carrier {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}

	headers = append(headers,
		kafkago.Header{Key: eventKeyMetadataKey, Value: []byte(key)},
		kafkago.Header{Key: eventTypeMetadataKey, Value: []byte(ev.Type)},
	)

	publishCtx := context.WithoutCancel(ctx)

	return b.writer.WriteMessages(publishCtx, kafkago.Message{
		Key:     []byte(key),
		Value:   payload,
		Headers: headers,
	})
}

// Close flushes and closes the underlying writer.
func (b *RawBus) Close() error {
	return b.writer.Close()
}
