package orders

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultInvoiceAttempts = 5

type OrderItemInput struct {
	ServiceVariantID string
	Qty              *decimal.Decimal // nil = tidak diisi
	Note             string
}

type CreateOrderRequest struct {
	OutletID              string
	CustomerID            string
	Items                 []OrderItemInput
	PerfumeID             *string
	DiscountValueSnapshot decimal.Decimal // snapshot dari caller, tidak dihitung ulang dari Discount
	Notes                 string
	CreatedBy             *string
	InitialStatus         Status // default ANTRIAN
	CheckinAt             *time.Time
	EtaAt                 *time.Time
}

// Pipeline membuat order + items + history awal dalam satu transaksi.
// Bentrok nomor invoice (unique (outlet_id, invoice_no)) di-retry dengan
// menghitung ulang nomor, maksimal MaxInvoiceAttempts kali.
type Pipeline struct {
	Deps
	Sequencer          Sequencer
	MaxInvoiceAttempts int
}

func (p *Pipeline) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	if req.OutletID == "" {
		return Order{}, &FieldError{Field: "outlet_id"}
	}
	if req.CustomerID == "" {
		return Order{}, &FieldError{Field: "customer_id"}
	}
	initial := req.InitialStatus
	if initial == "" {
		initial = StatusAntrian
	}
	if !initial.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidField, initial)
	}
	if req.DiscountValueSnapshot.IsNegative() {
		return Order{}, fmt.Errorf("%w: discount_value_snapshot cannot be negative", ErrInvalidField)
	}

	attempts := p.MaxInvoiceAttempts
	if attempts <= 0 {
		attempts = DefaultInvoiceAttempts
	}

	var out Order
	var err error
	for attempt := 1; ; attempt++ {
		out, err = p.createOnce(ctx, req, initial)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrInvoiceTaken) || attempt >= attempts {
			return Order{}, err
		}
		p.log().Warn("invoice number conflict, retrying",
			"outlet_id", req.OutletID, "attempt", attempt, "err", err)
		if err := backoff(ctx, attempt); err != nil {
			return Order{}, err
		}
	}

	p.log().Info("order created",
		"outlet_id", out.OutletID, "order_id", out.ID, "invoice_no", out.InvoiceNo,
		"items", len(out.Items), "total", out.Total.StringFixed(2))
	return out, nil
}

func backoff(ctx context.Context, attempt int) error {
	d := time.Duration(attempt)*5*time.Millisecond + time.Duration(rand.IntN(5000))*time.Microsecond
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Pipeline) createOnce(ctx context.Context, req CreateOrderRequest, initial Status) (Order, error) {
	var out Order
	err := p.unitOfWork(ctx, func(ctx context.Context, tx Tx, ob *outbox) error {
		cust, err := tx.Customer(ctx, req.OutletID, req.CustomerID)
		if err != nil {
			return notFound("customer", req.CustomerID, err)
		}

		var perfumeID *string
		if req.PerfumeID != nil && *req.PerfumeID != "" {
			if _, err := tx.Perfume(ctx, req.OutletID, *req.PerfumeID); err != nil {
				return notFound("perfume", *req.PerfumeID, err)
			}
			perfumeID = req.PerfumeID
		}

		items, subtotal, err := priceItems(ctx, tx, req.OutletID, req.Items)
		if err != nil {
			return err
		}
		if req.DiscountValueSnapshot.GreaterThan(subtotal) {
			return fmt.Errorf("%w: discount_value_snapshot %s exceeds subtotal %s",
				ErrInvalidField, req.DiscountValueSnapshot.StringFixed(2), subtotal.StringFixed(2))
		}

		now := p.now()
		invoiceNo, err := p.Sequencer.Next(ctx, tx, req.OutletID, now)
		if err != nil {
			return err
		}

		checkin := now
		if req.CheckinAt != nil {
			checkin = *req.CheckinAt
		}
		o := Order{
			ID:                    uuid.NewString(),
			OutletID:              req.OutletID,
			CustomerID:            cust.ID,
			PerfumeID:             perfumeID,
			InvoiceNo:             invoiceNo,
			Status:                initial,
			PaymentStatus:         PaymentUnpaid,
			Subtotal:              subtotal,
			DiscountValueSnapshot: req.DiscountValueSnapshot,
			Total:                 subtotal.Sub(req.DiscountValueSnapshot),
			Notes:                 req.Notes,
			CheckinAt:             checkin,
			EtaAt:                 req.EtaAt,
			CreatedBy:             req.CreatedBy,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		for i := range items {
			items[i].OrderID = o.ID
		}
		o.Items = items

		if err := tx.InsertOrder(ctx, &o); err != nil {
			if errors.Is(err, ErrInvoiceTaken) {
				return fmt.Errorf("%w: %s", ErrInvoiceTaken, invoiceNo)
			}
			return fmt.Errorf("insert order: %w", err)
		}

		// history awal: null -> status awal
		if err := tx.InsertHistory(ctx, &StatusHistory{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			ToStatus:  o.Status,
			ByUserID:  req.CreatedBy,
			ChangedAt: now,
		}); err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}

		if err := ob.add(EventOrderCreated, o.ID, OrderCreatedPayload{
			OrderID:       o.ID,
			OutletID:      o.OutletID,
			InvoiceNo:     o.InvoiceNo,
			CustomerID:    o.CustomerID,
			Status:        o.Status,
			PaymentStatus: o.PaymentStatus,
			Total:         o.Total,
		}, now); err != nil {
			return err
		}

		out, err = tx.LoadOrder(ctx, o.OutletID, o.ID)
		return err
	})
	return out, err
}

// priceItems memvalidasi item dan men-snapshot unit + harga dari variant saat ini.
// Perubahan katalog setelah ini tidak pernah mengubah order yang sudah ada.
func priceItems(ctx context.Context, tx Tx, outletID string, in []OrderItemInput) ([]OrderItem, decimal.Decimal, error) {
	if len(in) == 0 {
		return nil, decimal.Zero, fmt.Errorf("%w: at least one item is required", ErrInvalidItem)
	}

	items := make([]OrderItem, 0, len(in))
	subtotal := decimal.Zero
	for i, it := range in {
		if it.ServiceVariantID == "" {
			return nil, decimal.Zero, &ItemError{Index: i, Reason: "required field missing: service_variant_id"}
		}
		if it.Qty == nil {
			return nil, decimal.Zero, &ItemError{Index: i, Reason: "required field missing: qty"}
		}
		qty := *it.Qty
		if !qty.IsPositive() {
			return nil, decimal.Zero, &ItemError{Index: i, Reason: "quantity must be positive"}
		}
		if !qty.Equal(qty.Round(2)) {
			return nil, decimal.Zero, &ItemError{Index: i, Reason: "quantity supports at most 2 decimal places"}
		}

		v, err := tx.Variant(ctx, outletID, it.ServiceVariantID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, decimal.Zero, &ItemError{
					Index:  i,
					Reason: "service variant not found: " + it.ServiceVariantID,
					Err:    &NotFoundError{Entity: "service_variant", ID: it.ServiceVariantID},
				}
			}
			return nil, decimal.Zero, fmt.Errorf("load variant: %w", err)
		}
		if !v.IsActive {
			return nil, decimal.Zero, &ItemError{Index: i, Reason: "service variant is inactive: " + v.ID}
		}
		if v.PricePerUnit.IsNegative() {
			return nil, decimal.Zero, &ItemError{Index: i, Reason: "price cannot be negative"}
		}
		if !v.Unit.Valid() {
			return nil, decimal.Zero, &ItemError{Index: i, Reason: fmt.Sprintf("invalid unit: %s", v.Unit)}
		}
		if v.Unit == UnitPcs && !qty.IsInteger() {
			return nil, decimal.Zero, &ItemError{Index: i, Reason: "quantity for 'pcs' unit must be an integer"}
		}

		line := qty.Mul(v.PricePerUnit).Round(2)
		items = append(items, OrderItem{
			ID:                   uuid.NewString(),
			ServiceVariantID:     v.ID,
			Unit:                 v.Unit,
			Qty:                  qty,
			PricePerUnitSnapshot: v.PricePerUnit,
			LineTotal:            line,
			Note:                 it.Note,
		})
		subtotal = subtotal.Add(line)
	}
	return items, subtotal, nil
}
