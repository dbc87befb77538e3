package orders_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-laundry-orders/internal/orders"
	"github.com/ariefcatur/go-laundry-orders/internal/orders/memstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var wib = time.FixedZone("WIB", 7*60*60)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingSink struct {
	mu  sync.Mutex
	evs []orders.Envelope
}

func (s *recordingSink) Emit(_ context.Context, ev orders.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evs = append(s.evs, ev)
}

func (s *recordingSink) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.evs))
	for _, ev := range s.evs {
		out = append(out, ev.EventType)
	}
	return out
}

func (s *recordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evs = nil
}

type fixture struct {
	svc   *orders.Service
	store *memstore.Store
	clock *clock
	sink  *recordingSink
}

const (
	outlet1 = "outlet-1"
	outlet2 = "outlet-2"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func qty(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func strp(s string) *string { return &s }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithAttempts(t, 0)
}

func newFixtureWithAttempts(t *testing.T, attempts int) *fixture {
	t.Helper()

	st := memstore.New()
	st.AddCustomer(orders.Customer{ID: "cust-1", OutletID: outlet1, Name: "Budi Santoso", Phone: "081234567890"})
	st.AddCustomer(orders.Customer{ID: "cust-3", OutletID: outlet1, Name: "Siti Aminah", Phone: "085700001111"})
	st.AddCustomer(orders.Customer{ID: "cust-2", OutletID: outlet2, Name: "Andi", Phone: "089900000000"})
	st.AddPerfume(orders.Perfume{ID: "perf-1", OutletID: outlet1, Name: "Lavender"})
	st.AddPerfume(orders.Perfume{ID: "perf-2", OutletID: outlet2, Name: "Sakura"})
	st.AddVariant(orders.ServiceVariant{ID: "kg-reg", OutletID: outlet1, Name: "Cuci Setrika Reguler", Unit: orders.UnitKg, PricePerUnit: dec("7000"), IsActive: true})
	st.AddVariant(orders.ServiceVariant{ID: "pcs-bed", OutletID: outlet1, Name: "Bed Cover", Unit: orders.UnitPcs, PricePerUnit: dec("25000"), IsActive: true})
	st.AddVariant(orders.ServiceVariant{ID: "m-karpet", OutletID: outlet1, Name: "Karpet", Unit: orders.UnitMeter, PricePerUnit: dec("12500.50"), IsActive: true})
	st.AddVariant(orders.ServiceVariant{ID: "kg-old", OutletID: outlet1, Name: "Paket Lama", Unit: orders.UnitKg, PricePerUnit: dec("5000"), IsActive: false})
	st.AddVariant(orders.ServiceVariant{ID: "kg-2", OutletID: outlet2, Name: "Kiloan", Unit: orders.UnitKg, PricePerUnit: dec("8000"), IsActive: true})
	st.AddPaymentMethod(orders.PaymentMethod{ID: "cash", OutletID: outlet1, Name: "Tunai"})
	st.AddPaymentMethod(orders.PaymentMethod{ID: "qris-2", OutletID: outlet2, Name: "QRIS"})

	clk := &clock{t: time.Date(2025, 8, 30, 9, 0, 0, 0, wib)}
	sink := &recordingSink{}
	svc := orders.NewService(orders.Options{
		Store:              st,
		Events:             sink,
		Producer:           "test",
		Location:           wib,
		MaxInvoiceAttempts: attempts,
		Clock:              clk.Now,
		Logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &fixture{svc: svc, store: st, clock: clk, sink: sink}
}

// basicRequest: 2.5 kg x 7000 + 2 pcs x 25000 = 67500, diskon 2500 -> 65000.
func basicRequest() orders.CreateOrderRequest {
	return orders.CreateOrderRequest{
		OutletID:   outlet1,
		CustomerID: "cust-1",
		PerfumeID:  strp("perf-1"),
		Items: []orders.OrderItemInput{
			{ServiceVariantID: "kg-reg", Qty: qty("2.5")},
			{ServiceVariantID: "pcs-bed", Qty: qty("2"), Note: "noda kopi"},
		},
		DiscountValueSnapshot: dec("2500"),
		CreatedBy:             strp("kasir-1"),
	}
}

func (f *fixture) create(t *testing.T) orders.Order {
	t.Helper()
	o, err := f.svc.CreateOrder(context.Background(), basicRequest())
	require.NoError(t, err)
	return o
}

func (f *fixture) move(t *testing.T, o orders.Order, path ...orders.Status) orders.Order {
	t.Helper()
	for _, to := range path {
		var err error
		o, err = f.svc.Transition(context.Background(), orders.TransitionRequest{
			OutletID: o.OutletID, OrderID: o.ID, To: to, ByUserID: strp("op-1"),
		})
		require.NoError(t, err)
	}
	return o
}

func (f *fixture) pay(t *testing.T, o orders.Order) orders.Payment {
	t.Helper()
	p, err := f.svc.ProcessPayment(context.Background(), orders.PaymentRequest{
		OutletID: o.OutletID, OrderID: o.ID, MethodID: "cash", Amount: o.Total,
	})
	require.NoError(t, err)
	return p
}
