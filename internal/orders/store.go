package orders

import (
	"context"
	"time"
)

// Tx adalah unit of work. Semua method dijalankan di transaksi yang sama;
// lookup yang tidak ketemu mengembalikan ErrNotFound (bare, dibungkus oleh caller).
type Tx interface {
	Customer(ctx context.Context, outletID, customerID string) (Customer, error)
	Perfume(ctx context.Context, outletID, perfumeID string) (Perfume, error)
	Variant(ctx context.Context, outletID, variantID string) (ServiceVariant, error)
	PaymentMethod(ctx context.Context, outletID, methodID string) (PaymentMethod, error)

	// LastInvoiceNo: invoice_no tertinggi milik outlet untuk order yang dibuat di [from, to)
	// dan berawalan prefix (JL-yymmdd). "" kalau belum ada.
	LastInvoiceNo(ctx context.Context, outletID, prefix string, from, to time.Time) (string, error)

	// InsertOrder menyimpan order + items. Bentrok (outlet_id, invoice_no) -> ErrInvoiceTaken.
	InsertOrder(ctx context.Context, o *Order) error
	InsertHistory(ctx context.Context, h *StatusHistory) error

	// LockOrder membaca order terbaru yang sudah di-commit dan menahan row lock
	// sampai transaksi selesai.
	LockOrder(ctx context.Context, outletID, orderID string) (Order, error)
	UpdateOrderState(ctx context.Context, o *Order) error

	// PaymentByOrder: nil, nil kalau belum ada payment.
	PaymentByOrder(ctx context.Context, orderID string) (*Payment, error)
	// InsertPayment: payment kedua untuk order yang sama -> ErrAlreadyPaid.
	InsertPayment(ctx context.Context, p *Payment) error
	UpdatePaymentStatus(ctx context.Context, paymentID string, st PaymentRecordStatus) error

	// LoadOrder: order lengkap dengan items, customer, perfume, history, payment.
	LoadOrder(ctx context.Context, outletID, orderID string) (Order, error)
}

type Store interface {
	// WithinTx commit kalau fn return nil, selain itu rollback.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOrder(ctx context.Context, outletID, orderID string) (Order, error)
	ListOrders(ctx context.Context, f ListFilter) ([]Order, error)
	OutstandingOrders(ctx context.Context, outletID string) ([]Order, error)
}
