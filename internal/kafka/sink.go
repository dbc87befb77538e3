package kafka

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/ariefcatur/go-laundry-orders/internal/orders"
	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

type publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error
}

// EventSink mem-publish event order ke Kafka setelah commit. Gagal publish cuma
// di-log: state di DB sudah final.
type EventSink struct {
	pub publisher
	log *slog.Logger
}

func NewEventSink(pub publisher, log *slog.Logger) *EventSink {
	if log == nil {
		log = slog.Default()
	}
	return &EventSink{pub: pub, log: log}
}

func (s *EventSink) Emit(ctx context.Context, ev orders.Envelope) {
	if ev.TraceID == "" {
		ev.TraceID = TraceIDFrom(ctx)
	}
	b, err := Marshal(ev)
	if err != nil {
		s.log.Error("encode event", "event_type", ev.EventType, "order_id", ev.CorrelationID, "err", err)
		return
	}
	err = s.pub.Publish(context.WithoutCancel(ctx), orders.PartitionKey(ev.CorrelationID), b,
		kafka.Header{Key: HeaderEventType, Value: []byte(ev.EventType)},
		kafka.Header{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(ev.EventVersion))},
	)
	if err != nil {
		s.log.Warn("publish event dropped", "event_type", ev.EventType, "event_id", ev.EventID,
			"order_id", ev.CorrelationID, "err", err)
	}
}

type traceKey struct{}

// WithTraceID menempelkan trace id (mis. X-Request-Id) ke ctx supaya ikut di envelope.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, id)
}

func TraceIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(traceKey{}).(string)
	return s
}
