// Package projector menjaga cache status order di Redis dari event laundry.orders.
package projector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	kafkax "github.com/ariefcatur/go-laundry-orders/internal/kafka"
	"github.com/ariefcatur/go-laundry-orders/internal/orders"
	"github.com/ariefcatur/go-laundry-orders/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
)

type statusCache interface {
	SetStatus(ctx context.Context, v redisx.StatusView) error
	MarkProcessed(ctx context.Context, service, eventID string) (bool, error)
	ForgetProcessed(ctx context.Context, service, eventID string) error
}

type Projector struct {
	Cache   statusCache
	Service string // prefix key dedup, default "projector"
	Logger  *slog.Logger
}

func (p *Projector) log() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Projector) service() string {
	if p.Service != "" {
		return p.Service
	}
	return "projector"
}

// HandleMessage dipasang sebagai handler consumer.
func (p *Projector) HandleMessage(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope; pesan rusak di-skip (commit) supaya tidak macet di partition
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		p.log().Warn("skip malformed event", "partition", m.Partition, "offset", m.Offset, "err", err)
		return nil
	}

	// 2) dedup via Redis (pakai event_id)
	first, err := p.Cache.MarkProcessed(ctx, p.service(), env.EventID)
	if err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if !first {
		return nil
	}

	if err := p.apply(ctx, env); err != nil {
		if ferr := p.Cache.ForgetProcessed(ctx, p.service(), env.EventID); ferr != nil {
			p.log().Warn("dedup rollback", "event_id", env.EventID, "err", ferr)
		}
		return err
	}
	return nil
}

func (p *Projector) apply(ctx context.Context, env orders.Envelope) error {
	var v redisx.StatusView
	switch env.EventType {
	case orders.EventOrderCreated:
		pl, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		v = view(pl.OrderID, pl.OutletID, pl.Status, pl.PaymentStatus, env.OccurredAt)
		v.InvoiceNo = pl.InvoiceNo

	case orders.EventOrderStatusChanged:
		pl, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return err
		}
		v = view(pl.OrderID, pl.OutletID, pl.To, pl.PaymentStatus, pl.ChangedAt)

	case orders.EventPaymentRecorded, orders.EventPaymentVoided:
		pl, err := kafkax.UnwrapPayload[orders.PaymentPayload](env.Payload)
		if err != nil {
			return err
		}
		v = view(pl.OrderID, pl.OutletID, pl.OrderStatus, pl.PaymentStatus, env.OccurredAt)

	default:
		return nil // bukan urusan projector
	}

	if err := p.Cache.SetStatus(ctx, v); err != nil {
		return fmt.Errorf("set status cache: %w", err)
	}
	p.log().Debug("status projected", "event_type", env.EventType, "order_id", v.OrderID, "status", v.Status)
	return nil
}

func view(orderID, outletID string, st orders.Status, ps orders.PaymentStatus, at time.Time) redisx.StatusView {
	return redisx.StatusView{
		OrderID:       orderID,
		OutletID:      outletID,
		Status:        string(st),
		PaymentStatus: string(ps),
		UpdatedAt:     at,
	}
}
