package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventPaymentRecorded    = "PaymentRecorded"
	EventPaymentVoided      = "PaymentVoided"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "laundry-order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`                  // payload spesifik
}

// EventSink menerima event setelah transaksi commit. Best-effort: kegagalan
// publish tidak membatalkan operasi yang sudah commit.
type EventSink interface {
	Emit(ctx context.Context, ev Envelope)
}

// ---- Payload tipe per event ----

type OrderCreatedPayload struct {
	OrderID       string          `json:"order_id"`
	OutletID      string          `json:"outlet_id"`
	InvoiceNo     string          `json:"invoice_no"`
	CustomerID    string          `json:"customer_id"`
	Status        Status          `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Total         decimal.Decimal `json:"total"`
}

type OrderStatusChangedPayload struct {
	OrderID       string        `json:"order_id"`
	OutletID      string        `json:"outlet_id"`
	From          Status        `json:"from"`
	To            Status        `json:"to"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	ByUserID      *string       `json:"by_user_id,omitempty"`
	ChangedAt     time.Time     `json:"changed_at"`
}

type PaymentPayload struct {
	OrderID       string              `json:"order_id"`
	OutletID      string              `json:"outlet_id"`
	PaymentID     string              `json:"payment_id"`
	Amount        decimal.Decimal     `json:"amount"`
	Status        PaymentRecordStatus `json:"status"`
	OrderStatus   Status              `json:"order_status"`
	PaymentStatus PaymentStatus       `json:"payment_status"`
}

func newEnvelope(producer, eventType, orderID string, payload any, at time.Time) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    at.UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}
