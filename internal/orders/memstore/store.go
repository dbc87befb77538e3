// Package memstore adalah orders.Store in-memory untuk test dan STORE_DRIVER=memory.
//
// Semantiknya meniru Postgres read-committed: read melihat data yang sudah commit
// (plus tulisan transaksi sendiri), LockOrder memegang lock per order sampai
// transaksi selesai, dan unique (outlet_id, invoice_no) / payment per order
// dicek ulang saat commit.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ariefcatur/go-laundry-orders/internal/orders"
)

var _ orders.Store = (*Store)(nil)

type Store struct {
	mu sync.Mutex // guard semua map di bawah

	customers map[string]orders.Customer
	perfumes  map[string]orders.Perfume
	variants  map[string]orders.ServiceVariant
	methods   map[string]orders.PaymentMethod

	orders   map[string]orders.Order // id -> order (+items), tanpa relasi lain
	history  map[string][]orders.StatusHistory
	payments map[string]orders.Payment // order_id -> payment

	locks map[string]*sync.Mutex // order_id -> row lock
}

func New() *Store {
	return &Store{
		customers: map[string]orders.Customer{},
		perfumes:  map[string]orders.Perfume{},
		variants:  map[string]orders.ServiceVariant{},
		methods:   map[string]orders.PaymentMethod{},
		orders:    map[string]orders.Order{},
		history:   map[string][]orders.StatusHistory{},
		payments:  map[string]orders.Payment{},
		locks:     map[string]*sync.Mutex{},
	}
}

// ---- seeding data master ----

func (s *Store) AddCustomer(c orders.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

func (s *Store) AddPerfume(p orders.Perfume) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perfumes[p.ID] = p
}

func (s *Store) AddVariant(v orders.ServiceVariant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[v.ID] = v
}

func (s *Store) AddPaymentMethod(m orders.PaymentMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[m.ID] = m
}

// ---- Store ----

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	t := newTx(s)
	defer t.release()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	return t.commit()
}

func (s *Store) GetOrder(ctx context.Context, outletID, orderID string) (orders.Order, error) {
	return newTx(s).LoadOrder(ctx, outletID, orderID)
}

func (s *Store) ListOrders(_ context.Context, f orders.ListFilter) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(f.Query))
	var out []orders.Order
	for _, o := range s.orders {
		if o.OutletID != f.OutletID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		c := s.customers[o.CustomerID]
		if q != "" && !contains(o.InvoiceNo, q) && !contains(c.Name, q) && !contains(c.Phone, q) {
			continue
		}
		o = cloneOrder(o)
		o.Customer = &c
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CheckinAt.Equal(out[j].CheckinAt) {
			return out[i].CheckinAt.After(out[j].CheckinAt)
		}
		return out[i].InvoiceNo > out[j].InvoiceNo
	})

	if f.Limit <= 0 {
		f.Limit = orders.DefaultPageSize
	}
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[max(f.Offset, 0):]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) OutstandingOrders(_ context.Context, outletID string) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []orders.Order
	for _, o := range s.orders {
		if o.OutletID != outletID || o.Status.Terminal() {
			continue
		}
		if p, ok := s.payments[o.ID]; ok && p.Status == orders.PaymentSuccess {
			continue
		}
		c := s.customers[o.CustomerID]
		o = cloneOrder(o)
		o.Customer = &c
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].InvoiceNo < out[j].InvoiceNo
	})
	return out, nil
}

func (s *Store) rowLock(orderID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[orderID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[orderID] = m
	}
	return m
}

func contains(s, lowerQ string) bool {
	return strings.Contains(strings.ToLower(s), lowerQ)
}

func cloneOrder(o orders.Order) orders.Order {
	o.Items = append([]orders.OrderItem(nil), o.Items...)
	o.Customer, o.Perfume, o.History, o.Payment = nil, nil, nil, nil
	return o
}
