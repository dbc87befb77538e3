package orders

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingField      = errors.New("required field missing")
	ErrNotFound          = errors.New("not found")
	ErrInvalidItem       = errors.New("invalid order item")
	ErrInvalidField      = errors.New("invalid field")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPickupNotReady    = errors.New("order must be ready for pickup before it can be collected")
	ErrAlreadyPaid       = errors.New("order already has a payment")
	ErrAmountMismatch    = errors.New("payment amount must equal order total")
	ErrCancelNotAllowed  = errors.New("order cannot be cancelled")

	// ErrInvoiceTaken: (outlet_id, invoice_no) bentrok. Store mengembalikan ini saat unique
	// violation; pipeline retry, dan baru keluar ke caller kalau jatah retry habis.
	ErrInvoiceTaken = errors.New("invoice number already taken")
)

type FieldError struct {
	Field string
}

func (e *FieldError) Error() string { return fmt.Sprintf("required field missing: %s", e.Field) }
func (e *FieldError) Unwrap() error { return ErrMissingField }

type NotFoundError struct {
	Entity string // customer | perfume | service_variant | order | payment_method
	ID     string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.Entity, e.ID) }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ItemError selalu match ErrInvalidItem; kalau Err diisi (mis. variant tidak ada)
// errors.Is juga match ke penyebabnya.
type ItemError struct {
	Index  int
	Reason string
	Err    error
}

func (e *ItemError) Error() string { return fmt.Sprintf("item %d: %s", e.Index, e.Reason) }

func (e *ItemError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidItem, e.Err}
	}
	return []error{ErrInvalidItem}
}

type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

type AmountMismatchError struct {
	Expected decimal.Decimal
	Got      decimal.Decimal
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("payment amount %s must equal order total %s", e.Got.StringFixed(2), e.Expected.StringFixed(2))
}
func (e *AmountMismatchError) Unwrap() error { return ErrAmountMismatch }

func notFound(entity, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return err
}
