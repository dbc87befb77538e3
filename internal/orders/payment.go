package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const notePaymentProcessed = "Payment processed successfully"

type PaymentRequest struct {
	OutletID string
	OrderID  string
	MethodID string
	Amount   decimal.Decimal
	RefNo    string
	Note     string
	PaidAt   *time.Time          // default: sekarang
	Status   PaymentRecordStatus // default: SUCCESS
	ByUserID *string             // dicatat di history kalau payment memicu ANTRIAN -> PROSES
}

// Reconciler mencatat tepat satu payment per order.
type Reconciler struct {
	Deps
	Lifecycle *Lifecycle
}

func (r *Reconciler) ProcessPayment(ctx context.Context, req PaymentRequest) (Payment, error) {
	if req.MethodID == "" {
		return Payment{}, &FieldError{Field: "payment_method_id"}
	}
	status := req.Status
	if status == "" {
		status = PaymentSuccess
	}
	if !status.Valid() {
		return Payment{}, fmt.Errorf("%w: payment status %q", ErrInvalidField, status)
	}

	var out Payment
	var order Order
	err := r.unitOfWork(ctx, func(ctx context.Context, tx Tx, ob *outbox) error {
		// row lock di order menserialkan cek-lalu-insert payment untuk order yang sama
		o, err := lockOrder(ctx, tx, req.OutletID, req.OrderID)
		if err != nil {
			return err
		}

		existing, err := tx.PaymentByOrder(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("load payment: %w", err)
		}
		if existing != nil {
			return ErrAlreadyPaid
		}

		if !req.Amount.Equal(o.Total) {
			return &AmountMismatchError{Expected: o.Total, Got: req.Amount}
		}

		if _, err := tx.PaymentMethod(ctx, o.OutletID, req.MethodID); err != nil {
			return notFound("payment_method", req.MethodID, err)
		}

		now := r.now()
		paidAt := now
		if req.PaidAt != nil {
			paidAt = *req.PaidAt
		}
		p := Payment{
			ID:       uuid.NewString(),
			OrderID:  o.ID,
			MethodID: req.MethodID,
			Amount:   req.Amount,
			PaidAt:   paidAt,
			RefNo:    req.RefNo,
			Note:     req.Note,
			Status:   status,
		}
		if err := tx.InsertPayment(ctx, &p); err != nil {
			if errors.Is(err, ErrAlreadyPaid) {
				return ErrAlreadyPaid
			}
			return fmt.Errorf("insert payment: %w", err)
		}

		if p.Status == PaymentSuccess {
			o.PaymentStatus = PaymentPaid
			if o.Status == StatusAntrian {
				// payment memicu progres ANTRIAN -> PROSES, lewat FSM yang sama
				if err := r.Lifecycle.apply(ctx, tx, ob, &o, StatusProses, req.ByUserID, notePaymentProcessed, now); err != nil {
					return err
				}
			} else {
				o.UpdatedAt = now
				if err := tx.UpdateOrderState(ctx, &o); err != nil {
					return fmt.Errorf("update payment status: %w", err)
				}
			}
		}

		if err := ob.add(EventPaymentRecorded, o.ID, PaymentPayload{
			OrderID:       o.ID,
			OutletID:      o.OutletID,
			PaymentID:     p.ID,
			Amount:        p.Amount,
			Status:        p.Status,
			OrderStatus:   o.Status,
			PaymentStatus: o.PaymentStatus,
		}, now); err != nil {
			return err
		}

		out, order = p, o
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	r.log().Info("payment recorded",
		"outlet_id", order.OutletID, "order_id", order.ID, "invoice_no", order.InvoiceNo,
		"amount", out.Amount.StringFixed(2), "status", out.Status, "order_status", order.Status)
	return out, nil
}
