package orders

import (
	"context"
	"log/slog"
	"time"
)

// Deps dipakai bersama oleh Pipeline, Lifecycle dan Reconciler.
type Deps struct {
	Store    Store
	Clock    func() time.Time // default time.Now
	Events   EventSink        // optional
	Producer string           // nama service di envelope event
	Logger   *slog.Logger
}

func (d *Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

func (d *Deps) log() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// outbox menampung event selama transaksi; baru dikirim setelah commit.
type outbox struct {
	producer string
	evs      []Envelope
}

func (o *outbox) add(eventType, orderID string, payload any, at time.Time) error {
	ev, err := newEnvelope(o.producer, eventType, orderID, payload, at)
	if err != nil {
		return err
	}
	o.evs = append(o.evs, ev)
	return nil
}

// unitOfWork menjalankan fn dalam satu transaksi dan mengirim event hasilnya
// hanya kalau commit berhasil.
func (d *Deps) unitOfWork(ctx context.Context, fn func(ctx context.Context, tx Tx, ob *outbox) error) error {
	ob := &outbox{producer: d.Producer}
	if err := d.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		ob.evs = ob.evs[:0]
		return fn(ctx, tx, ob)
	}); err != nil {
		return err
	}
	if d.Events == nil {
		return nil
	}
	for _, ev := range ob.evs {
		d.Events.Emit(ctx, ev)
	}
	return nil
}
