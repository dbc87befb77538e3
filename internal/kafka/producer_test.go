package kafka

import (
	"context"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed++
	return nil
}

func TestProducer_FlushOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 8, nil)
	p.Start(context.Background())

	ctx := context.Background()
	for _, k := range []string{"a", "b", "a"} {
		require.NoError(t, p.Publish(ctx, []byte(k), []byte("v-"+k)))
	}
	p.Close()
	p.Close() // aman dipanggil dua kali
	p.WaitClosed()

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "a", string(w.msgs[0].Key))
	assert.Equal(t, "b", string(w.msgs[1].Key))
	assert.Equal(t, "v-a", string(w.msgs[2].Value))
	assert.Equal(t, 1, w.closed)

	assert.ErrorIs(t, p.Publish(ctx, []byte("c"), nil), ErrProducerClosed)
}

func TestProducer_PublishRespectsContext(t *testing.T) {
	// belum Start: inbox penuh setelah 1 pesan
	p := newProducer(&fakeWriter{}, 1, nil)
	require.NoError(t, p.Publish(context.Background(), []byte("a"), nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, []byte("b"), nil), context.Canceled)
}
