package orders

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: constraintOrderInvoice}
	wrapped := fmt.Errorf("insert order: %w", dup)

	assert.True(t, isUniqueViolation(dup, constraintOrderInvoice))
	assert.True(t, isUniqueViolation(wrapped, constraintOrderInvoice))
	assert.True(t, isUniqueViolation(wrapped, ""))
	assert.False(t, isUniqueViolation(dup, constraintPaymentOrder))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	assert.False(t, isUniqueViolation(errors.New("boom"), ""))
	assert.False(t, isUniqueViolation(nil, ""))
}

func TestListFilterNormalized(t *testing.T) {
	f := ListFilter{Limit: 0, Offset: -3}.normalized()
	assert.Equal(t, DefaultPageSize, f.Limit)
	assert.Equal(t, 0, f.Offset)
	assert.Equal(t, MaxPageSize, ListFilter{Limit: 1000}.normalized().Limit)
}

func TestErrorsUnwrap(t *testing.T) {
	item := &ItemError{Index: 1, Reason: "service variant not found: x", Err: &NotFoundError{Entity: "service_variant", ID: "x"}}
	assert.ErrorIs(t, item, ErrInvalidItem)
	assert.ErrorIs(t, item, ErrNotFound)
	assert.NotErrorIs(t, &ItemError{Index: 0, Reason: "quantity must be positive"}, ErrNotFound)

	assert.ErrorIs(t, &FieldError{Field: "customer_id"}, ErrMissingField)
	assert.ErrorIs(t, &TransitionError{From: StatusSelesai, To: StatusProses}, ErrInvalidTransition)
	assert.EqualError(t, &TransitionError{From: StatusSelesai, To: StatusProses}, "invalid status transition from SELESAI to PROSES")
	assert.ErrorIs(t, notFound("customer", "c1", ErrNotFound), ErrNotFound)
	assert.EqualError(t, notFound("customer", "c1", ErrNotFound), "customer not found: c1")

	boom := errors.New("db down")
	assert.Equal(t, boom, notFound("customer", "c1", boom))
}
