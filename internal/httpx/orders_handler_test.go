package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/go-laundry-orders/internal/orders"
	"github.com/ariefcatur/go-laundry-orders/internal/orders/memstore"
	"github.com/ariefcatur/go-laundry-orders/internal/redisx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st := memstore.New()
	st.AddCustomer(orders.Customer{ID: "cust-1", OutletID: "outlet-1", Name: "Budi", Phone: "0812"})
	st.AddVariant(orders.ServiceVariant{ID: "kg-reg", OutletID: "outlet-1", Name: "Reguler", Unit: orders.UnitKg, PricePerUnit: decimal.NewFromInt(7000), IsActive: true})
	st.AddPaymentMethod(orders.PaymentMethod{ID: "cash", OutletID: "outlet-1", Name: "Tunai"})

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := orders.NewService(orders.Options{
		Store:    st,
		Location: time.FixedZone("WIB", 7*60*60),
		Clock:    func() time.Time { return time.Date(2025, 8, 30, 10, 0, 0, 0, time.UTC) },
		Logger:   log,
	})

	r := NewRouter(nil)
	(&OrdersHandler{Service: svc, Logger: log}).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string, hdr ...string) (*http.Response, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
	return res, env
}

const createBody = `{"customer_id":"cust-1","items":[{"service_variant_id":"kg-reg","qty":"3.5","note":"pisah putih"}],"discount_value_snapshot":500}`

func createOrder(t *testing.T, srv *httptest.Server) orders.Order {
	t.Helper()
	res, env := do(t, srv, http.MethodPost, "/outlets/outlet-1/orders", createBody, HeaderUserID, "kasir-1")
	require.Equal(t, http.StatusCreated, res.StatusCode, env.Message)
	var o orders.Order
	require.NoError(t, json.Unmarshal(env.Data, &o))
	return o
}

func TestCreateOrderEndpoint(t *testing.T) {
	srv := newTestServer(t)

	o := createOrder(t, srv)
	assert.Equal(t, "JL-2508300001", o.InvoiceNo)
	assert.Equal(t, orders.StatusAntrian, o.Status)
	assert.Equal(t, "24000.00", o.Total.StringFixed(2))
	require.NotNil(t, o.CreatedBy)
	assert.Equal(t, "kasir-1", *o.CreatedBy)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "pisah putih", o.Items[0].Note)

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"broken json", `{"customer_id":`, http.StatusBadRequest, "INVALID_JSON"},
		{"missing customer", `{"items":[{"service_variant_id":"kg-reg","qty":1}]}`, http.StatusUnprocessableEntity, "MISSING_FIELD"},
		{"unknown customer", `{"customer_id":"nobody","items":[{"service_variant_id":"kg-reg","qty":1}]}`, http.StatusNotFound, "NOT_FOUND"},
		{"no items", `{"customer_id":"cust-1","items":[]}`, http.StatusUnprocessableEntity, "INVALID_ITEM"},
		{"unknown variant", `{"customer_id":"cust-1","items":[{"service_variant_id":"nope","qty":1}]}`, http.StatusUnprocessableEntity, "INVALID_ITEM"},
		{"bad initial status", `{"customer_id":"cust-1","status":"DICUCI","items":[{"service_variant_id":"kg-reg","qty":1}]}`, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"discount too big", `{"customer_id":"cust-1","discount_value_snapshot":"99999","items":[{"service_variant_id":"kg-reg","qty":1}]}`, http.StatusUnprocessableEntity, "INVALID_FIELD"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, env := do(t, srv, http.MethodPost, "/outlets/outlet-1/orders", tc.body)
			assert.Equal(t, tc.status, res.StatusCode)
			assert.False(t, env.Success)
			assert.Equal(t, tc.code, env.Code)
		})
	}
}

func TestOrderLifecycleEndpoints(t *testing.T) {
	srv := newTestServer(t)
	o := createOrder(t, srv)
	base := "/outlets/outlet-1/orders/" + o.ID

	res, env := do(t, srv, http.MethodPost, base+"/pickup", "")
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "PICKUP_NOT_READY", env.Code)

	res, env = do(t, srv, http.MethodPost, base+"/status", `{"status":"SELESAI"}`)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", env.Code)

	res, env = do(t, srv, http.MethodPost, base+"/status", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)

	res, env = do(t, srv, http.MethodPost, base+"/pay", `{"payment_method_id":"cash","amount":"23999"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, "AMOUNT_MISMATCH", env.Code)

	res, env = do(t, srv, http.MethodPost, base+"/pay", `{"payment_method_id":"cash","amount":24000,"ref_no":"R1"}`, HeaderUserID, "kasir-1")
	require.Equal(t, http.StatusCreated, res.StatusCode, env.Message)
	var paid struct {
		Payment orders.Payment `json:"payment"`
		Order   orders.Order   `json:"order"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &paid))
	assert.Equal(t, orders.PaymentSuccess, paid.Payment.Status)
	assert.Equal(t, orders.StatusProses, paid.Order.Status)
	assert.Equal(t, orders.PaymentPaid, paid.Order.PaymentStatus)

	res, env = do(t, srv, http.MethodPost, base+"/pay", `{"payment_method_id":"cash","amount":24000}`)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "ALREADY_PAID", env.Code)

	res, _ = do(t, srv, http.MethodPost, base+"/status", `{"status":"SIAP_DIAMBIL","notes":"rapi"}`)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, env = do(t, srv, http.MethodGet, base+"/status", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "MISS", res.Header.Get("X-Cache"))
	var view redisx.StatusView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "SIAP_DIAMBIL", view.Status)
	assert.Equal(t, "PAID", view.PaymentStatus)
	assert.Equal(t, o.InvoiceNo, view.InvoiceNo)

	res, env = do(t, srv, http.MethodPost, base+"/pickup", `{"notes":"diambil"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var done orders.Order
	require.NoError(t, json.Unmarshal(env.Data, &done))
	assert.Equal(t, orders.StatusSelesai, done.Status)
	assert.NotNil(t, done.CollectedAt)

	res, env = do(t, srv, http.MethodPost, base+"/cancel", "")
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "CANCEL_NOT_ALLOWED", env.Code)

	res, env = do(t, srv, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var detail orders.Order
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Len(t, detail.History, 4)
	require.NotNil(t, detail.Payment)
}

func TestCancelEndpointVoidsPayment(t *testing.T) {
	srv := newTestServer(t)
	o := createOrder(t, srv)
	base := "/outlets/outlet-1/orders/" + o.ID

	res, _ := do(t, srv, http.MethodPost, base+"/pay", `{"payment_method_id":"cash","amount":"24000.00"}`)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res, env := do(t, srv, http.MethodPost, base+"/cancel", `{"reason":"salah input"}`, HeaderUserID, "spv-1")
	require.Equal(t, http.StatusOK, res.StatusCode, env.Message)
	var got orders.Order
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, orders.StatusBatal, got.Status)
	require.NotNil(t, got.Payment)
	assert.Equal(t, orders.PaymentVoid, got.Payment.Status)
}

func TestReadEndpoints(t *testing.T) {
	srv := newTestServer(t)
	a := createOrder(t, srv)
	b := createOrder(t, srv)
	res, _ := do(t, srv, http.MethodPost, "/outlets/outlet-1/orders/"+b.ID+"/status", `{"status":"PROSES"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)

	list := func(query string) (int, []orders.Order, string) {
		res, env := do(t, srv, http.MethodGet, "/outlets/outlet-1/orders"+query, "")
		var out []orders.Order
		if env.Success {
			require.NoError(t, json.Unmarshal(env.Data, &out))
		}
		return res.StatusCode, out, env.Code
	}

	code, all, _ := list("")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, all, 2)

	code, proses, _ := list("?tab=proses")
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, proses, 1)
	assert.Equal(t, b.ID, proses[0].ID)

	code, found, _ := list("?q=" + a.InvoiceNo)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, found, 1)
	assert.Equal(t, a.ID, found[0].ID)

	code, page, _ := list("?limit=1&offset=1")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, page, 1)

	code, _, errCode := list("?tab=dicuci")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "INVALID_FIELD", errCode)

	code, _, _ = list("?limit=abc")
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	res, env := do(t, srv, http.MethodGet, "/outlets/outlet-1/orders/outstanding", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var outstanding []orders.Order
	require.NoError(t, json.Unmarshal(env.Data, &outstanding))
	assert.Len(t, outstanding, 2)

	res, env = do(t, srv, http.MethodGet, "/outlets/outlet-2/orders/"+a.ID, "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "NOT_FOUND", env.Code)

	res, env = do(t, srv, http.MethodGet, "/outlets/outlet-2/orders", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&orders.FieldError{Field: "customer_id"}, http.StatusUnprocessableEntity, "MISSING_FIELD"},
		{&orders.ItemError{Index: 0, Reason: "x", Err: &orders.NotFoundError{Entity: "service_variant", ID: "x"}}, http.StatusUnprocessableEntity, "INVALID_ITEM"},
		{&orders.NotFoundError{Entity: "order", ID: "x"}, http.StatusNotFound, "NOT_FOUND"},
		{&orders.TransitionError{From: orders.StatusSelesai, To: orders.StatusProses}, http.StatusConflict, "INVALID_TRANSITION"},
		{fmt.Errorf("%w (current status: PROSES)", orders.ErrPickupNotReady), http.StatusConflict, "PICKUP_NOT_READY"},
		{orders.ErrAlreadyPaid, http.StatusConflict, "ALREADY_PAID"},
		{orders.ErrCancelNotAllowed, http.StatusConflict, "CANCEL_NOT_ALLOWED"},
		{&orders.AmountMismatchError{}, http.StatusUnprocessableEntity, "AMOUNT_MISMATCH"},
		{fmt.Errorf("%w: JL-2508300001", orders.ErrInvoiceTaken), http.StatusServiceUnavailable, "INVOICE_BUSY"},
		{redisx.ErrIdemInFlight, http.StatusConflict, "REQUEST_IN_PROGRESS"},
		{errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		status, code := statusFor(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
