package orders

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
)

type pgTx struct{ tx pgx.Tx }

func noRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (t *pgTx) Customer(ctx context.Context, outletID, customerID string) (Customer, error) {
	var c Customer
	err := t.tx.QueryRow(ctx, `
		SELECT id, outlet_id, name, COALESCE(phone, '') FROM customers
		WHERE id = $1 AND outlet_id = $2`, customerID, outletID).
		Scan(&c.ID, &c.OutletID, &c.Name, &c.Phone)
	return c, noRows(err)
}

func (t *pgTx) Perfume(ctx context.Context, outletID, perfumeID string) (Perfume, error) {
	var p Perfume
	err := t.tx.QueryRow(ctx, `SELECT id, outlet_id, name FROM perfumes WHERE id = $1 AND outlet_id = $2`,
		perfumeID, outletID).Scan(&p.ID, &p.OutletID, &p.Name)
	return p, noRows(err)
}

func (t *pgTx) Variant(ctx context.Context, outletID, variantID string) (ServiceVariant, error) {
	var v ServiceVariant
	var unit string
	err := t.tx.QueryRow(ctx, `
		SELECT id, outlet_id, name, unit, price_per_unit, is_active FROM service_variants
		WHERE id = $1 AND outlet_id = $2`, variantID, outletID).
		Scan(&v.ID, &v.OutletID, &v.Name, &unit, &v.PricePerUnit, &v.IsActive)
	v.Unit = Unit(unit)
	return v, noRows(err)
}

func (t *pgTx) PaymentMethod(ctx context.Context, outletID, methodID string) (PaymentMethod, error) {
	var m PaymentMethod
	err := t.tx.QueryRow(ctx, `SELECT id, outlet_id, name FROM payment_methods WHERE id = $1 AND outlet_id = $2`,
		methodID, outletID).Scan(&m.ID, &m.OutletID, &m.Name)
	return m, noRows(err)
}

// Hanya invoice yang formatnya benar (prefix + 4 digit) yang dihitung; baris lain
// diabaikan supaya tidak menyeret sequence balik ke 0001 dan bentrok terus.
func (t *pgTx) LastInvoiceNo(ctx context.Context, outletID, prefix string, from, to time.Time) (string, error) {
	var no string
	err := t.tx.QueryRow(ctx, `
		SELECT invoice_no FROM orders
		WHERE outlet_id = $1 AND created_at >= $2 AND created_at < $3 AND invoice_no ~ $4
		ORDER BY invoice_no DESC
		LIMIT 1`, outletID, from, to, `^`+regexp.QuoteMeta(prefix)+`[0-9]{4}$`).Scan(&no)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return no, err
}

func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, outlet_id, customer_id, perfume_id, invoice_no, status, payment_status,
		                   subtotal, discount_value_snapshot, total, notes, checkin_at, eta_at,
		                   created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11, ''),$12,$13,$14,$15,$16)`,
		o.ID, o.OutletID, o.CustomerID, o.PerfumeID, o.InvoiceNo, string(o.Status), string(o.PaymentStatus),
		o.Subtotal, o.DiscountValueSnapshot, o.Total, o.Notes, o.CheckinAt, o.EtaAt,
		o.CreatedBy, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, constraintOrderInvoice) {
			return ErrInvoiceTaken
		}
		return err
	}

	// insert items
	for i, it := range o.Items {
		_, err = t.tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, position, service_variant_id, unit, qty,
			                        price_per_unit_snapshot, line_total, note)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9, ''))`,
			it.ID, o.ID, i, it.ServiceVariantID, string(it.Unit), it.Qty,
			it.PricePerUnitSnapshot, it.LineTotal, it.Note,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) InsertHistory(ctx context.Context, h *StatusHistory) error {
	var from *string
	if h.FromStatus != nil {
		s := string(*h.FromStatus)
		from = &s
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_status_histories(id, order_id, from_status, to_status, by_user_id, notes, changed_at)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6, ''),$7)`,
		h.ID, h.OrderID, from, string(h.ToStatus), h.ByUserID, h.Notes, h.ChangedAt)
	return err
}

// LockOrder: SELECT ... FOR UPDATE, transaksi lain untuk order yang sama menunggu sampai commit/rollback.
func (t *pgTx) LockOrder(ctx context.Context, outletID, orderID string) (Order, error) {
	return scanOrder(t.tx.QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders o WHERE o.id = $1 AND o.outlet_id = $2 FOR UPDATE`,
		orderID, outletID))
}

func (t *pgTx) UpdateOrderState(ctx context.Context, o *Order) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET status = $3, payment_status = $4, finished_at = $5, canceled_at = $6,
		    collected_at = $7, updated_at = $8
		WHERE id = $1 AND outlet_id = $2`,
		o.ID, o.OutletID, string(o.Status), string(o.PaymentStatus), o.FinishedAt, o.CanceledAt,
		o.CollectedAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) PaymentByOrder(ctx context.Context, orderID string) (*Payment, error) {
	return paymentByOrder(ctx, t.tx, orderID)
}

func (t *pgTx) InsertPayment(ctx context.Context, p *Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payments(id, order_id, method_id, amount, paid_at, ref_no, note, status)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6, ''),NULLIF($7, ''),$8)`,
		p.ID, p.OrderID, p.MethodID, p.Amount, p.PaidAt, p.RefNo, p.Note, string(p.Status))
	if isUniqueViolation(err, constraintPaymentOrder) {
		return ErrAlreadyPaid
	}
	return err
}

func (t *pgTx) UpdatePaymentStatus(ctx context.Context, paymentID string, st PaymentRecordStatus) error {
	ct, err := t.tx.Exec(ctx, `UPDATE payments SET status = $2 WHERE id = $1`, paymentID, string(st))
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) LoadOrder(ctx context.Context, outletID, orderID string) (Order, error) {
	return loadOrder(ctx, t.tx, outletID, orderID)
}
