package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const noteOrderCancelled = "Order cancelled"

type TransitionRequest struct {
	OutletID string
	OrderID  string
	To       Status
	ByUserID *string
	Notes    string
}

type PickupRequest struct {
	OutletID string
	OrderID  string
	ByUserID *string
	Notes    string
}

type CancelRequest struct {
	OutletID string
	OrderID  string
	ByUserID *string
	Reason   string
}

// Lifecycle adalah satu-satunya jalan untuk mengubah status order.
// Transition, Pickup, Cancel dan progres otomatis dari payment semuanya lewat apply.
type Lifecycle struct {
	Deps
}

// apply memvalidasi from->to terhadap tabel validNext, menulis status baru dan
// satu baris history. Harus dipanggil di dalam transaksi yang memegang lock order.
func (l *Lifecycle) apply(ctx context.Context, tx Tx, ob *outbox, o *Order, to Status, by *string, notes string, at time.Time) error {
	from := o.Status
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}

	o.Status = to
	o.UpdatedAt = at
	switch to {
	case StatusSiapDiambil:
		o.FinishedAt = &at
	case StatusBatal:
		o.CanceledAt = &at
	}
	if err := tx.UpdateOrderState(ctx, o); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	h := StatusHistory{
		ID:         uuid.NewString(),
		OrderID:    o.ID,
		FromStatus: &from,
		ToStatus:   to,
		ByUserID:   by,
		Notes:      notes,
		ChangedAt:  at,
	}
	if err := tx.InsertHistory(ctx, &h); err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}

	return ob.add(EventOrderStatusChanged, o.ID, OrderStatusChangedPayload{
		OrderID:       o.ID,
		OutletID:      o.OutletID,
		From:          from,
		To:            to,
		PaymentStatus: o.PaymentStatus,
		ByUserID:      by,
		ChangedAt:     at,
	}, at)
}

func lockOrder(ctx context.Context, tx Tx, outletID, orderID string) (Order, error) {
	if outletID == "" {
		return Order{}, &FieldError{Field: "outlet_id"}
	}
	if orderID == "" {
		return Order{}, &FieldError{Field: "order_id"}
	}
	o, err := tx.LockOrder(ctx, outletID, orderID)
	if err != nil {
		return Order{}, notFound("order", orderID, err)
	}
	return o, nil
}

func (l *Lifecycle) Transition(ctx context.Context, req TransitionRequest) (Order, error) {
	var out Order
	err := l.unitOfWork(ctx, func(ctx context.Context, tx Tx, ob *outbox) error {
		o, err := lockOrder(ctx, tx, req.OutletID, req.OrderID)
		if err != nil {
			return err
		}
		if err := l.apply(ctx, tx, ob, &o, req.To, req.ByUserID, req.Notes, l.now()); err != nil {
			return err
		}
		out, err = tx.LoadOrder(ctx, req.OutletID, req.OrderID)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	l.log().Info("order status changed",
		"outlet_id", out.OutletID, "order_id", out.ID, "invoice_no", out.InvoiceNo, "status", out.Status)
	return out, nil
}

// Pickup: hanya dari SIAP_DIAMBIL -> SELESAI, sekaligus set collected_at.
func (l *Lifecycle) Pickup(ctx context.Context, req PickupRequest) (Order, error) {
	var out Order
	err := l.unitOfWork(ctx, func(ctx context.Context, tx Tx, ob *outbox) error {
		o, err := lockOrder(ctx, tx, req.OutletID, req.OrderID)
		if err != nil {
			return err
		}
		if o.Status != StatusSiapDiambil {
			return fmt.Errorf("%w (current status: %s)", ErrPickupNotReady, o.Status)
		}
		now := l.now()
		o.CollectedAt = &now
		if err := l.apply(ctx, tx, ob, &o, StatusSelesai, req.ByUserID, req.Notes, now); err != nil {
			return err
		}
		out, err = tx.LoadOrder(ctx, req.OutletID, req.OrderID)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	l.log().Info("order collected", "outlet_id", out.OutletID, "order_id", out.ID, "invoice_no", out.InvoiceNo)
	return out, nil
}

// Cancel: dari status non-terminal mana pun. Payment SUCCESS di-VOID di transaksi yang sama.
func (l *Lifecycle) Cancel(ctx context.Context, req CancelRequest) (Order, error) {
	var out Order
	var voided bool
	err := l.unitOfWork(ctx, func(ctx context.Context, tx Tx, ob *outbox) error {
		voided = false
		o, err := lockOrder(ctx, tx, req.OutletID, req.OrderID)
		if err != nil {
			return err
		}
		if o.Status.Terminal() {
			return fmt.Errorf("%w from current status: %s", ErrCancelNotAllowed, o.Status)
		}

		now := l.now()
		p, err := tx.PaymentByOrder(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("load payment: %w", err)
		}
		if p != nil && p.Status == PaymentSuccess {
			// VOID cuma penanda pembukuan; refund uang di luar sistem ini.
			if err := tx.UpdatePaymentStatus(ctx, p.ID, PaymentVoid); err != nil {
				return fmt.Errorf("void payment: %w", err)
			}
			voided = true
			if err := ob.add(EventPaymentVoided, o.ID, PaymentPayload{
				OrderID:       o.ID,
				OutletID:      o.OutletID,
				PaymentID:     p.ID,
				Amount:        p.Amount,
				Status:        PaymentVoid,
				OrderStatus:   StatusBatal,
				PaymentStatus: o.PaymentStatus,
			}, now); err != nil {
				return err
			}
		}

		notes := req.Reason
		if notes == "" {
			notes = noteOrderCancelled
		}
		if err := l.apply(ctx, tx, ob, &o, StatusBatal, req.ByUserID, notes, now); err != nil {
			return err
		}
		out, err = tx.LoadOrder(ctx, req.OutletID, req.OrderID)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	l.log().Info("order cancelled",
		"outlet_id", out.OutletID, "order_id", out.ID, "invoice_no", out.InvoiceNo, "payment_voided", voided)
	return out, nil
}
