package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Unit string

const (
	UnitKg    Unit = "kg"
	UnitPcs   Unit = "pcs"
	UnitMeter Unit = "meter"
)

func (u Unit) Valid() bool {
	return u == UnitKg || u == UnitPcs || u == UnitMeter
}

// ---- snapshot dari collaborator (catalog, customer, dll) ----

type Customer struct {
	ID       string `json:"id"`
	OutletID string `json:"outlet_id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
}

type Perfume struct {
	ID       string `json:"id"`
	OutletID string `json:"outlet_id"`
	Name     string `json:"name"`
}

type ServiceVariant struct {
	ID           string          `json:"id"`
	OutletID     string          `json:"outlet_id"`
	Name         string          `json:"name"`
	Unit         Unit            `json:"unit"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	IsActive     bool            `json:"is_active"`
}

type PaymentMethod struct {
	ID       string `json:"id"`
	OutletID string `json:"outlet_id"`
	Name     string `json:"name"`
}

// ---- aggregate Order ----

type Order struct {
	ID                    string          `json:"id"`
	OutletID              string          `json:"outlet_id"`
	CustomerID            string          `json:"customer_id"`
	PerfumeID             *string         `json:"perfume_id,omitempty"`
	InvoiceNo             string          `json:"invoice_no"`
	Status                Status          `json:"status"` // lihat status.go
	PaymentStatus         PaymentStatus   `json:"payment_status"`
	Subtotal              decimal.Decimal `json:"subtotal"`
	DiscountValueSnapshot decimal.Decimal `json:"discount_value_snapshot"`
	Total                 decimal.Decimal `json:"total"`
	Notes                 string          `json:"notes,omitempty"`
	CheckinAt             time.Time       `json:"checkin_at"`
	EtaAt                 *time.Time      `json:"eta_at,omitempty"`
	FinishedAt            *time.Time      `json:"finished_at,omitempty"`
	CanceledAt            *time.Time      `json:"canceled_at,omitempty"`
	CollectedAt           *time.Time      `json:"collected_at,omitempty"`
	CreatedBy             *string         `json:"created_by,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`

	// relasi, diisi oleh loader
	Items    []OrderItem     `json:"items,omitempty"`
	Customer *Customer       `json:"customer,omitempty"`
	Perfume  *Perfume        `json:"perfume,omitempty"`
	History  []StatusHistory `json:"status_histories,omitempty"`
	Payment  *Payment        `json:"payment,omitempty"`
}

type OrderItem struct {
	ID                   string          `json:"id"`
	OrderID              string          `json:"order_id"`
	ServiceVariantID     string          `json:"service_variant_id"`
	Unit                 Unit            `json:"unit"`
	Qty                  decimal.Decimal `json:"qty"`
	PricePerUnitSnapshot decimal.Decimal `json:"price_per_unit_snapshot"`
	LineTotal            decimal.Decimal `json:"line_total"`
	Note                 string          `json:"note,omitempty"`
}

// StatusHistory append-only. FromStatus nil hanya untuk baris pembuatan order.
type StatusHistory struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	FromStatus *Status   `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ByUserID   *string   `json:"by_user_id,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}

type Payment struct {
	ID       string              `json:"id"`
	OrderID  string              `json:"order_id"`
	MethodID string              `json:"method_id"`
	Amount   decimal.Decimal     `json:"amount"`
	PaidAt   time.Time           `json:"paid_at"`
	RefNo    string              `json:"ref_no,omitempty"`
	Note     string              `json:"note,omitempty"`
	Status   PaymentRecordStatus `json:"status"`
}

// ListFilter untuk list order per outlet (tab + search).
type ListFilter struct {
	OutletID string
	Status   Status // kosong = semua
	Query    string // invoice_no / nama / no hp customer
	Limit    int
	Offset   int
}

const (
	DefaultPageSize = 15
	MaxPageSize     = 100
)

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
