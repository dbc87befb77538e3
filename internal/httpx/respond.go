package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-laundry-orders/internal/orders"
	"github.com/ariefcatur/go-laundry-orders/internal/redisx"
)

// Response adalah envelope standar semua endpoint.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"` // kode error, kosong kalau sukses
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, code int, msg string, data any) {
	writeJSON(w, code, Response{Success: true, Message: msg, Data: data})
}

func fail(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, Response{Success: false, Message: msg, Code: errCode})
}

type errMapping struct {
	target error
	status int
	code   string
}

// urutan penting: ItemError juga match ErrNotFound kalau variant tidak ada,
// dan harus tetap jadi INVALID_ITEM.
var errMappings = []errMapping{
	{orders.ErrInvalidItem, http.StatusUnprocessableEntity, "INVALID_ITEM"},
	{orders.ErrMissingField, http.StatusUnprocessableEntity, "MISSING_FIELD"},
	{orders.ErrInvalidField, http.StatusUnprocessableEntity, "INVALID_FIELD"},
	{orders.ErrAmountMismatch, http.StatusUnprocessableEntity, "AMOUNT_MISMATCH"},
	{orders.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{orders.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{orders.ErrPickupNotReady, http.StatusConflict, "PICKUP_NOT_READY"},
	{orders.ErrCancelNotAllowed, http.StatusConflict, "CANCEL_NOT_ALLOWED"},
	{orders.ErrAlreadyPaid, http.StatusConflict, "ALREADY_PAID"},
	{redisx.ErrIdemInFlight, http.StatusConflict, "REQUEST_IN_PROGRESS"},
	{orders.ErrInvoiceTaken, http.StatusServiceUnavailable, "INVOICE_BUSY"},
}

func statusFor(err error) (int, string) {
	for _, m := range errMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func (h *OrdersHandler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	code, errCode := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		h.log().Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "internal server error"
	}
	fail(w, code, errCode, msg)
}
