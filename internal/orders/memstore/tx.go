package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-laundry-orders/internal/orders"
)

// tx menampung tulisan sampai commit; read = data commit + tulisan sendiri.
type tx struct {
	s *Store

	orders    map[string]orders.Order // insert/update di tx ini
	inserted  map[string]bool
	history   []orders.StatusHistory
	payments  map[string]orders.Payment // order_id -> payment baru
	payStatus map[string]orders.PaymentRecordStatus

	held map[string]*sync.Mutex
}

func newTx(s *Store) *tx {
	return &tx{
		s:         s,
		orders:    map[string]orders.Order{},
		inserted:  map[string]bool{},
		payments:  map[string]orders.Payment{},
		payStatus: map[string]orders.PaymentRecordStatus{},
		held:      map[string]*sync.Mutex{},
	}
}

func (t *tx) release() {
	for id, m := range t.held {
		m.Unlock()
		delete(t.held, id)
	}
}

func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	// cek unique dulu, baru apply semua (all-or-nothing)
	for id := range t.inserted {
		o := t.orders[id]
		if _, ok := s.orders[id]; ok {
			return orders.ErrInvoiceTaken
		}
		if invoiceTakenLocked(s.orders, o.OutletID, o.InvoiceNo) {
			return orders.ErrInvoiceTaken
		}
	}
	for orderID := range t.payments {
		if _, ok := s.payments[orderID]; ok {
			return orders.ErrAlreadyPaid
		}
	}

	for id, o := range t.orders {
		s.orders[id] = cloneOrder(o)
	}
	for _, h := range t.history {
		s.history[h.OrderID] = append(s.history[h.OrderID], h)
	}
	for orderID, p := range t.payments {
		s.payments[orderID] = p
	}
	for paymentID, st := range t.payStatus {
		for orderID, p := range s.payments {
			if p.ID == paymentID {
				p.Status = st
				s.payments[orderID] = p
			}
		}
	}
	return nil
}

func invoiceTakenLocked(all map[string]orders.Order, outletID, invoiceNo string) bool {
	for _, o := range all {
		if o.OutletID == outletID && o.InvoiceNo == invoiceNo {
			return true
		}
	}
	return false
}

// ---- lookup data master ----

func (t *tx) Customer(_ context.Context, outletID, customerID string) (orders.Customer, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	c, ok := t.s.customers[customerID]
	if !ok || c.OutletID != outletID {
		return orders.Customer{}, orders.ErrNotFound
	}
	return c, nil
}

func (t *tx) Perfume(_ context.Context, outletID, perfumeID string) (orders.Perfume, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.perfumes[perfumeID]
	if !ok || p.OutletID != outletID {
		return orders.Perfume{}, orders.ErrNotFound
	}
	return p, nil
}

func (t *tx) Variant(_ context.Context, outletID, variantID string) (orders.ServiceVariant, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	v, ok := t.s.variants[variantID]
	if !ok || v.OutletID != outletID {
		return orders.ServiceVariant{}, orders.ErrNotFound
	}
	return v, nil
}

func (t *tx) PaymentMethod(_ context.Context, outletID, methodID string) (orders.PaymentMethod, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	m, ok := t.s.methods[methodID]
	if !ok || m.OutletID != outletID {
		return orders.PaymentMethod{}, orders.ErrNotFound
	}
	return m, nil
}

// ---- order ----

func (t *tx) LastInvoiceNo(_ context.Context, outletID, prefix string, from, to time.Time) (string, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	last := ""
	consider := func(o orders.Order) {
		if o.OutletID != outletID || o.CreatedAt.Before(from) || !o.CreatedAt.Before(to) {
			return
		}
		if !wellFormed(o.InvoiceNo, prefix) {
			return
		}
		if o.InvoiceNo > last {
			last = o.InvoiceNo
		}
	}
	for _, o := range t.s.orders {
		consider(o)
	}
	for id := range t.inserted {
		consider(t.orders[id])
	}
	return last, nil
}

// wellFormed: prefix + tepat 4 digit.
func wellFormed(no, prefix string) bool {
	if !strings.HasPrefix(no, prefix) || len(no) != len(prefix)+4 {
		return false
	}
	for _, r := range no[len(prefix):] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (t *tx) InsertOrder(_ context.Context, o *orders.Order) error {
	t.s.mu.Lock()
	taken := invoiceTakenLocked(t.s.orders, o.OutletID, o.InvoiceNo)
	t.s.mu.Unlock()
	if taken || invoiceTakenLocked(t.orders, o.OutletID, o.InvoiceNo) {
		return orders.ErrInvoiceTaken
	}
	t.orders[o.ID] = cloneOrder(*o)
	t.inserted[o.ID] = true
	return nil
}

func (t *tx) InsertHistory(_ context.Context, h *orders.StatusHistory) error {
	t.history = append(t.history, *h)
	return nil
}

func (t *tx) LockOrder(ctx context.Context, outletID, orderID string) (orders.Order, error) {
	if _, ok := t.held[orderID]; !ok && !t.inserted[orderID] {
		m := t.s.rowLock(orderID)
		m.Lock()
		t.held[orderID] = m
	}
	if err := ctx.Err(); err != nil {
		return orders.Order{}, err
	}
	return t.order(outletID, orderID)
}

// order: versi terbaru (tulisan tx ini dulu, lalu data commit).
func (t *tx) order(outletID, orderID string) (orders.Order, error) {
	o, ok := t.orders[orderID]
	if !ok {
		t.s.mu.Lock()
		o, ok = t.s.orders[orderID]
		t.s.mu.Unlock()
	}
	if !ok || o.OutletID != outletID {
		return orders.Order{}, orders.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (t *tx) UpdateOrderState(_ context.Context, o *orders.Order) error {
	cur, err := t.order(o.OutletID, o.ID)
	if err != nil {
		return err
	}
	cur.Status = o.Status
	cur.PaymentStatus = o.PaymentStatus
	cur.FinishedAt = o.FinishedAt
	cur.CanceledAt = o.CanceledAt
	cur.CollectedAt = o.CollectedAt
	cur.UpdatedAt = o.UpdatedAt
	t.orders[o.ID] = cur
	return nil
}

// ---- payment ----

func (t *tx) PaymentByOrder(_ context.Context, orderID string) (*orders.Payment, error) {
	p, ok := t.payments[orderID]
	if !ok {
		t.s.mu.Lock()
		p, ok = t.s.payments[orderID]
		t.s.mu.Unlock()
	}
	if !ok {
		return nil, nil
	}
	if st, ok := t.payStatus[p.ID]; ok {
		p.Status = st
	}
	return &p, nil
}

func (t *tx) InsertPayment(_ context.Context, p *orders.Payment) error {
	if _, ok := t.payments[p.OrderID]; ok {
		return orders.ErrAlreadyPaid
	}
	t.s.mu.Lock()
	_, ok := t.s.payments[p.OrderID]
	t.s.mu.Unlock()
	if ok {
		return orders.ErrAlreadyPaid
	}
	t.payments[p.OrderID] = *p
	return nil
}

func (t *tx) UpdatePaymentStatus(_ context.Context, paymentID string, st orders.PaymentRecordStatus) error {
	for orderID, p := range t.payments {
		if p.ID == paymentID {
			p.Status = st
			t.payments[orderID] = p
			return nil
		}
	}
	t.s.mu.Lock()
	found := false
	for _, p := range t.s.payments {
		if p.ID == paymentID {
			found = true
			break
		}
	}
	t.s.mu.Unlock()
	if !found {
		return orders.ErrNotFound
	}
	t.payStatus[paymentID] = st
	return nil
}

// ---- loader ----

func (t *tx) LoadOrder(ctx context.Context, outletID, orderID string) (orders.Order, error) {
	o, err := t.order(outletID, orderID)
	if err != nil {
		return orders.Order{}, err
	}

	t.s.mu.Lock()
	if c, ok := t.s.customers[o.CustomerID]; ok {
		o.Customer = &c
	}
	if o.PerfumeID != nil {
		if p, ok := t.s.perfumes[*o.PerfumeID]; ok {
			o.Perfume = &p
		}
	}
	hist := append([]orders.StatusHistory(nil), t.s.history[o.ID]...)
	t.s.mu.Unlock()

	for _, h := range t.history {
		if h.OrderID == o.ID {
			hist = append(hist, h)
		}
	}
	sort.SliceStable(hist, func(i, j int) bool { return hist[i].ChangedAt.Before(hist[j].ChangedAt) })
	o.History = hist

	if o.Payment, err = t.PaymentByOrder(ctx, o.ID); err != nil {
		return orders.Order{}, err
	}
	return o, nil
}
