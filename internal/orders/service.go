package orders

import (
	"context"
	"log/slog"
	"time"
)

type Options struct {
	Store              Store
	Events             EventSink
	Producer           string
	Location           *time.Location // zona waktu outlet untuk tanggal invoice
	MaxInvoiceAttempts int
	Clock              func() time.Time
	Logger             *slog.Logger
}

// Service menyatukan pipeline, lifecycle dan reconciler di atas satu Store.
type Service struct {
	*Pipeline
	*Lifecycle
	*Reconciler

	store Store
}

func NewService(opt Options) *Service {
	deps := Deps{
		Store:    opt.Store,
		Clock:    opt.Clock,
		Events:   opt.Events,
		Producer: opt.Producer,
		Logger:   opt.Logger,
	}
	lc := &Lifecycle{Deps: deps}
	return &Service{
		Pipeline: &Pipeline{
			Deps:               deps,
			Sequencer:          Sequencer{Location: opt.Location},
			MaxInvoiceAttempts: opt.MaxInvoiceAttempts,
		},
		Lifecycle:  lc,
		Reconciler: &Reconciler{Deps: deps, Lifecycle: lc},
		store:      opt.Store,
	}
}

func (s *Service) Get(ctx context.Context, outletID, orderID string) (Order, error) {
	if outletID == "" {
		return Order{}, &FieldError{Field: "outlet_id"}
	}
	o, err := s.store.GetOrder(ctx, outletID, orderID)
	if err != nil {
		return Order{}, notFound("order", orderID, err)
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, error) {
	if f.OutletID == "" {
		return nil, &FieldError{Field: "outlet_id"}
	}
	return s.store.ListOrders(ctx, f.normalized())
}

// Outstanding: order yang belum punya payment SUCCESS dan belum terminal, paling lama dulu.
func (s *Service) Outstanding(ctx context.Context, outletID string) ([]Order, error) {
	if outletID == "" {
		return nil, &FieldError{Field: "outlet_id"}
	}
	return s.store.OutstandingOrders(ctx, outletID)
}
