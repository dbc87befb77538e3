package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo adalah Store di atas PostgreSQL (pgx).
type Repo struct{ DB *pgxpool.Pool }

// querier dipenuhi oleh *pgxpool.Pool maupun pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	constraintOrderInvoice = "orders_outlet_invoice_key"
	constraintPaymentOrder = "payments_order_id_key"
)

func (r *Repo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) GetOrder(ctx context.Context, outletID, orderID string) (Order, error) {
	return loadOrder(ctx, r.DB, outletID, orderID)
}

func (r *Repo) ListOrders(ctx context.Context, f ListFilter) ([]Order, error) {
	f = f.normalized()
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderCols+`, c.name, COALESCE(c.phone, '')
		FROM orders o
		JOIN customers c ON c.id = o.customer_id
		WHERE o.outlet_id = $1
		  AND ($2::text = '' OR o.status = $2)
		  AND ($3::text = '' OR o.invoice_no ILIKE '%' || $3 || '%'
		       OR c.name ILIKE '%' || $3 || '%' OR c.phone ILIKE '%' || $3 || '%')
		ORDER BY o.checkin_at DESC, o.invoice_no DESC
		LIMIT $4 OFFSET $5`,
		f.OutletID, string(f.Status), f.Query, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	return r.collectWithItems(ctx, rows)
}

func (r *Repo) OutstandingOrders(ctx context.Context, outletID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderCols+`, c.name, COALESCE(c.phone, '')
		FROM orders o
		JOIN customers c ON c.id = o.customer_id
		WHERE o.outlet_id = $1
		  AND o.status NOT IN ('SELESAI', 'BATAL')
		  AND NOT EXISTS (
		      SELECT 1 FROM payments p WHERE p.order_id = o.id AND p.status = 'SUCCESS')
		ORDER BY o.created_at ASC, o.invoice_no ASC`, outletID)
	if err != nil {
		return nil, err
	}
	return r.collectWithItems(ctx, rows)
}

// collectWithItems scan order + customer, lalu ambil items semua order dalam satu query.
func (r *Repo) collectWithItems(ctx context.Context, rows pgx.Rows) ([]Order, error) {
	defer rows.Close()

	var out []Order
	byID := map[string]int{}
	ids := []string{}
	for rows.Next() {
		var cust Customer
		o, err := scanOrder(rows, &cust.Name, &cust.Phone)
		if err != nil {
			return nil, err
		}
		cust.ID, cust.OutletID = o.CustomerID, o.OutletID
		o.Customer = &cust
		byID[o.ID] = len(out)
		ids = append(ids, o.ID)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	items, err := queryItems(ctx, r.DB, `WHERE order_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		i := byID[it.OrderID]
		out[i].Items = append(out[i].Items, it)
	}
	return out, nil
}

// ---- scan helpers ----

const orderCols = `o.id, o.outlet_id, o.customer_id, o.perfume_id, o.invoice_no, o.status, o.payment_status,
	o.subtotal, o.discount_value_snapshot, o.total, COALESCE(o.notes, ''), o.checkin_at, o.eta_at,
	o.finished_at, o.canceled_at, o.collected_at, o.created_by, o.created_at, o.updated_at`

func scanOrder(row pgx.Row, extra ...any) (Order, error) {
	var o Order
	var status, payStatus string
	dest := []any{
		&o.ID, &o.OutletID, &o.CustomerID, &o.PerfumeID, &o.InvoiceNo, &status, &payStatus,
		&o.Subtotal, &o.DiscountValueSnapshot, &o.Total, &o.Notes, &o.CheckinAt, &o.EtaAt,
		&o.FinishedAt, &o.CanceledAt, &o.CollectedAt, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	o.Status = Status(status)
	o.PaymentStatus = PaymentStatus(payStatus)
	return o, nil
}

func queryItems(ctx context.Context, q querier, where string, args ...any) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, service_variant_id, unit, qty, price_per_unit_snapshot, line_total, COALESCE(note, '')
		FROM order_items `+where+` ORDER BY order_id, position`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		var unit string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ServiceVariantID, &unit, &it.Qty,
			&it.PricePerUnitSnapshot, &it.LineTotal, &it.Note); err != nil {
			return nil, err
		}
		it.Unit = Unit(unit)
		out = append(out, it)
	}
	return out, rows.Err()
}

// loadOrder: order + items + customer + perfume + history + payment.
func loadOrder(ctx context.Context, q querier, outletID, orderID string) (Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderCols+` FROM orders o WHERE o.id = $1 AND o.outlet_id = $2`,
		orderID, outletID))
	if err != nil {
		return Order{}, err
	}

	if o.Items, err = queryItems(ctx, q, `WHERE order_id = $1`, o.ID); err != nil {
		return Order{}, fmt.Errorf("load items: %w", err)
	}

	var cust Customer
	err = q.QueryRow(ctx, `SELECT id, outlet_id, name, COALESCE(phone, '') FROM customers WHERE id = $1`, o.CustomerID).
		Scan(&cust.ID, &cust.OutletID, &cust.Name, &cust.Phone)
	if err == nil {
		o.Customer = &cust
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("load customer: %w", err)
	}

	if o.PerfumeID != nil {
		var pf Perfume
		err = q.QueryRow(ctx, `SELECT id, outlet_id, name FROM perfumes WHERE id = $1`, *o.PerfumeID).
			Scan(&pf.ID, &pf.OutletID, &pf.Name)
		if err == nil {
			o.Perfume = &pf
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("load perfume: %w", err)
		}
	}

	if o.History, err = queryHistory(ctx, q, o.ID); err != nil {
		return Order{}, fmt.Errorf("load history: %w", err)
	}
	if o.Payment, err = paymentByOrder(ctx, q, o.ID); err != nil {
		return Order{}, fmt.Errorf("load payment: %w", err)
	}
	return o, nil
}

func queryHistory(ctx context.Context, q querier, orderID string) ([]StatusHistory, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, from_status, to_status, by_user_id, COALESCE(notes, ''), changed_at
		FROM order_status_histories WHERE order_id = $1 ORDER BY seq`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusHistory
	for rows.Next() {
		var h StatusHistory
		var from *string
		var to string
		if err := rows.Scan(&h.ID, &h.OrderID, &from, &to, &h.ByUserID, &h.Notes, &h.ChangedAt); err != nil {
			return nil, err
		}
		if from != nil {
			s := Status(*from)
			h.FromStatus = &s
		}
		h.ToStatus = Status(to)
		out = append(out, h)
	}
	return out, rows.Err()
}

func paymentByOrder(ctx context.Context, q querier, orderID string) (*Payment, error) {
	var p Payment
	var status string
	err := q.QueryRow(ctx, `
		SELECT id, order_id, method_id, amount, paid_at, COALESCE(ref_no, ''), COALESCE(note, ''), status
		FROM payments WHERE order_id = $1`, orderID).
		Scan(&p.ID, &p.OrderID, &p.MethodID, &p.Amount, &p.PaidAt, &p.RefNo, &p.Note, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Status = PaymentRecordStatus(status)
	return &p, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
	}
	return false
}
