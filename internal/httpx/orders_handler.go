package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-laundry-orders/internal/orders"
	"github.com/ariefcatur/go-laundry-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	HeaderUserID         = "X-User-Id"
	HeaderIdempotencyKey = "Idempotency-Key"
)

var validate = validator.New()

type OrderService interface {
	CreateOrder(ctx context.Context, req orders.CreateOrderRequest) (orders.Order, error)
	Transition(ctx context.Context, req orders.TransitionRequest) (orders.Order, error)
	Pickup(ctx context.Context, req orders.PickupRequest) (orders.Order, error)
	Cancel(ctx context.Context, req orders.CancelRequest) (orders.Order, error)
	ProcessPayment(ctx context.Context, req orders.PaymentRequest) (orders.Payment, error)
	Get(ctx context.Context, outletID, orderID string) (orders.Order, error)
	List(ctx context.Context, f orders.ListFilter) ([]orders.Order, error)
	Outstanding(ctx context.Context, outletID string) ([]orders.Order, error)
}

type OrdersHandler struct {
	Service OrderService
	Cache   *redisx.Cache // nil = tanpa redis
	Logger  *slog.Logger
}

func (h *OrdersHandler) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/outlets/{outletID}/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/outstanding", h.outstanding)
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Get("/status", h.getStatus)
			r.Post("/status", h.transition)
			r.Post("/pay", h.pay)
			r.Post("/pickup", h.pickup)
			r.Post("/cancel", h.cancel)
		})
	})
}

// ---- request DTO ----

type createItemReq struct {
	ServiceVariantID string           `json:"service_variant_id"`
	Qty              *decimal.Decimal `json:"qty"`
	Note             string           `json:"note" validate:"max=255"`
}

type createOrderReq struct {
	CustomerID            string           `json:"customer_id"`
	PerfumeID             *string          `json:"perfume_id"`
	Items                 []createItemReq  `json:"items" validate:"dive"`
	DiscountValueSnapshot *decimal.Decimal `json:"discount_value_snapshot"`
	Notes                 string           `json:"notes" validate:"max=1000"`
	Status                string           `json:"status" validate:"omitempty,oneof=ANTRIAN PROSES SIAP_DIAMBIL SELESAI BATAL"`
	CheckinAt             *time.Time       `json:"checkin_at"`
	EtaAt                 *time.Time       `json:"eta_at"`
}

type transitionReq struct {
	Status string `json:"status" validate:"required,oneof=ANTRIAN PROSES SIAP_DIAMBIL SELESAI BATAL"`
	Notes  string `json:"notes" validate:"max=1000"`
}

type payReq struct {
	PaymentMethodID string           `json:"payment_method_id"`
	Amount          *decimal.Decimal `json:"amount" validate:"required"`
	RefNo           string           `json:"ref_no" validate:"max=100"`
	Note            string           `json:"note" validate:"max=1000"`
	PaidAt          *time.Time       `json:"paid_at"`
	Status          string           `json:"status" validate:"omitempty,oneof=SUCCESS VOID"`
}

type pickupReq struct {
	Notes string `json:"notes" validate:"max=1000"`
}

type cancelReq struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// decode: body kosong boleh (untuk pickup/cancel), JSON rusak -> 400.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
			fail(w, http.StatusBadRequest, "INVALID_JSON", "invalid json")
			return false
		}
	}
	if err := validate.Struct(v); err != nil {
		fail(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return false
	}
	return true
}

func actor(r *http.Request) *string {
	if v := strings.TrimSpace(r.Header.Get(HeaderUserID)); v != "" {
		return &v
	}
	return nil
}

func statusView(o orders.Order) redisx.StatusView {
	return redisx.StatusView{
		OrderID:       o.ID,
		OutletID:      o.OutletID,
		InvoiceNo:     o.InvoiceNo,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		UpdatedAt:     o.UpdatedAt,
	}
}

// cacheStatus best-effort; redis down tidak menggagalkan request.
func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	if err := h.Cache.SetStatus(ctx, statusView(o)); err != nil {
		h.log().Warn("cache order status", "order_id", o.ID, "err", err)
	}
}

// ---- handlers ----

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	outletID := chi.URLParam(r, "outletID")
	var req createOrderReq
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// Idempotency via Redis (optional, DB tetap jadi kebenaran)
	idemKey := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	existing, claimed, err := h.Cache.ClaimIdempotency(ctx, outletID, idemKey)
	if err != nil && !errors.Is(err, redisx.ErrIdemInFlight) {
		// redis bermasalah: lanjut tanpa idempotency
		h.log().Warn("idempotency claim", "outlet_id", outletID, "err", err)
		claimed, idemKey = true, ""
	} else if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if !claimed {
		o, err := h.Service.Get(ctx, outletID, existing)
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		ok(w, http.StatusOK, "order already created", o)
		return
	}

	items := make([]orders.OrderItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, orders.OrderItemInput{ServiceVariantID: it.ServiceVariantID, Qty: it.Qty, Note: it.Note})
	}
	in := orders.CreateOrderRequest{
		OutletID:      outletID,
		CustomerID:    req.CustomerID,
		Items:         items,
		PerfumeID:     req.PerfumeID,
		Notes:         req.Notes,
		CreatedBy:     actor(r),
		InitialStatus: orders.Status(req.Status),
		CheckinAt:     req.CheckinAt,
		EtaAt:         req.EtaAt,
	}
	if req.DiscountValueSnapshot != nil {
		in.DiscountValueSnapshot = *req.DiscountValueSnapshot
	}

	o, err := h.Service.CreateOrder(ctx, in)
	if err != nil {
		if rerr := h.Cache.ReleaseIdempotency(ctx, outletID, idemKey); rerr != nil {
			h.log().Warn("idempotency release", "outlet_id", outletID, "err", rerr)
		}
		h.writeErr(w, r, err)
		return
	}
	if err := h.Cache.CompleteIdempotency(ctx, outletID, idemKey, o.ID); err != nil {
		h.log().Warn("idempotency complete", "outlet_id", outletID, "order_id", o.ID, "err", err)
	}
	h.cacheStatus(ctx, o)

	ok(w, http.StatusCreated, "order created", o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := orders.ListFilter{
		OutletID: chi.URLParam(r, "outletID"),
		Query:    strings.TrimSpace(q.Get("q")),
	}
	if tab := strings.ToUpper(strings.TrimSpace(q.Get("tab"))); tab != "" && tab != "ALL" {
		f.Status = orders.Status(tab)
		if !f.Status.Valid() {
			fail(w, http.StatusUnprocessableEntity, "INVALID_FIELD", fmt.Sprintf("unknown tab %q", tab))
			return
		}
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		fail(w, http.StatusUnprocessableEntity, "INVALID_FIELD", "limit must be a non-negative integer")
		return
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		fail(w, http.StatusUnprocessableEntity, "INVALID_FIELD", "offset must be a non-negative integer")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Service.List(ctx, f)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	ok(w, http.StatusOK, "orders", list)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func (h *OrdersHandler) outstanding(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Service.Outstanding(ctx, chi.URLParam(r, "outletID"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	ok(w, http.StatusOK, "outstanding orders", list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Service.Get(ctx, chi.URLParam(r, "outletID"), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	ok(w, http.StatusOK, "order", o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	outletID, orderID := chi.URLParam(r, "outletID"), chi.URLParam(r, "orderID")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	v, hit, err := h.Cache.GetStatus(ctx, outletID, orderID)
	if err != nil {
		h.log().Warn("read status cache", "order_id", orderID, "err", err)
	}
	if hit {
		w.Header().Set("X-Cache", "HIT")
		ok(w, http.StatusOK, "order status", v)
		return
	}

	// 2) fallback DB
	o, err := h.Service.Get(ctx, outletID, orderID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.cacheStatus(ctx, o)
	w.Header().Set("X-Cache", "MISS")
	ok(w, http.StatusOK, "order status", statusView(o))
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.Transition(ctx, orders.TransitionRequest{
		OutletID: chi.URLParam(r, "outletID"),
		OrderID:  chi.URLParam(r, "orderID"),
		To:       orders.Status(req.Status),
		ByUserID: actor(r),
		Notes:    req.Notes,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.cacheStatus(ctx, o)
	ok(w, http.StatusOK, "order status updated", o)
}

func (h *OrdersHandler) pay(w http.ResponseWriter, r *http.Request) {
	var req payReq
	if !decode(w, r, &req) {
		return
	}
	outletID, orderID := chi.URLParam(r, "outletID"), chi.URLParam(r, "orderID")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Service.ProcessPayment(ctx, orders.PaymentRequest{
		OutletID: outletID,
		OrderID:  orderID,
		MethodID: req.PaymentMethodID,
		Amount:   *req.Amount,
		RefNo:    req.RefNo,
		Note:     req.Note,
		PaidAt:   req.PaidAt,
		Status:   orders.PaymentRecordStatus(req.Status),
		ByUserID: actor(r),
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	o, err := h.Service.Get(ctx, outletID, orderID)
	if err != nil {
		// payment sudah commit, cukup kembalikan payment-nya
		h.log().Warn("reload order after payment", "order_id", orderID, "err", err)
		ok(w, http.StatusCreated, "payment recorded", map[string]any{"payment": p})
		return
	}
	h.cacheStatus(ctx, o)
	ok(w, http.StatusCreated, "payment recorded", map[string]any{"payment": p, "order": o})
}

func (h *OrdersHandler) pickup(w http.ResponseWriter, r *http.Request) {
	var req pickupReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.Pickup(ctx, orders.PickupRequest{
		OutletID: chi.URLParam(r, "outletID"),
		OrderID:  chi.URLParam(r, "orderID"),
		ByUserID: actor(r),
		Notes:    req.Notes,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.cacheStatus(ctx, o)
	ok(w, http.StatusOK, "order collected", o)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.Cancel(ctx, orders.CancelRequest{
		OutletID: chi.URLParam(r, "outletID"),
		OrderID:  chi.URLParam(r, "orderID"),
		ByUserID: actor(r),
		Reason:   req.Reason,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.cacheStatus(ctx, o)
	ok(w, http.StatusOK, "order cancelled", o)
}
