package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-laundry-orders/internal/orders"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	key, value []byte
	headers    []kafka.Header
}

type fakePublisher struct {
	got []published
	err error
}

func (f *fakePublisher) Publish(_ context.Context, key, value []byte, headers ...kafka.Header) error {
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, published{key, value, headers})
	return nil
}

func envelopeFor(t *testing.T) orders.Envelope {
	t.Helper()
	payload, err := Marshal(orders.OrderStatusChangedPayload{
		OrderID: "ord-1", OutletID: "o1", From: orders.StatusAntrian, To: orders.StatusProses,
		PaymentStatus: orders.PaymentUnpaid,
	})
	require.NoError(t, err)
	return orders.Envelope{
		EventID:       "ev-1",
		EventType:     orders.EventOrderStatusChanged,
		EventVersion:  1,
		OccurredAt:    time.Date(2025, 8, 30, 3, 0, 0, 0, time.UTC),
		Producer:      "laundry-order-api",
		CorrelationID: "ord-1",
		Payload:       payload,
	}
}

func TestEventSink_Emit(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewEventSink(pub, nil)

	ctx := WithTraceID(context.Background(), "req-42")
	sink.Emit(ctx, envelopeFor(t))

	require.Len(t, pub.got, 1)
	msg := pub.got[0]
	assert.Equal(t, "ord-1", string(msg.key))
	assert.Equal(t, []kafka.Header{
		{Key: HeaderEventType, Value: []byte(orders.EventOrderStatusChanged)},
		{Key: HeaderEventVersion, Value: []byte("1")},
	}, msg.headers)

	env, err := DecodeEnvelope(msg.value)
	require.NoError(t, err)
	assert.Equal(t, "req-42", env.TraceID)
	assert.Equal(t, "ev-1", env.EventID)

	pl, err := UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProses, pl.To)
}

func TestEventSink_PublishFailureIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: ErrProducerClosed}
	sink := NewEventSink(pub, nil)
	assert.NotPanics(t, func() { sink.Emit(context.Background(), envelopeFor(t)) })
	assert.Empty(t, pub.got)
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, TraceIDFrom(ctx))
	assert.Equal(t, ctx, WithTraceID(ctx, ""))
	assert.Equal(t, "abc", TraceIDFrom(WithTraceID(ctx, "abc")))
}

func TestDecodeEnvelope(t *testing.T) {
	_, err := DecodeEnvelope([]byte("not json"))
	assert.Error(t, err)

	_, err = DecodeEnvelope([]byte(`{"event_type":"OrderCreated","payload":{}}`))
	assert.Error(t, err, "event_id wajib")

	_, err = DecodeEnvelope([]byte(`{"event_id":"e1","payload":{}}`))
	assert.Error(t, err, "event_type wajib")

	env, err := DecodeEnvelope([]byte(`{"event_id":"e1","event_type":"OrderCreated","event_version":1,"payload":{"order_id":"x"}}`))
	require.NoError(t, err)
	pl, err := UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "x", pl.OrderID)

	_, err = UnwrapPayload[orders.OrderCreatedPayload]([]byte(`[1,2]`))
	assert.True(t, err != nil && !errors.Is(err, ErrProducerClosed))
}
