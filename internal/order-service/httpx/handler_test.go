package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/fulfillment-saga/internal/capability"
	"github.com/jcmexdev/fulfillment-saga/internal/capability/fallback"
	"github.com/jcmexdev/fulfillment-saga/internal/capability/memory"
	"github.com/jcmexdev/fulfillment-saga/internal/coordinator"
	"github.com/jcmexdev/fulfillment-saga/internal/coordinator/sagalog"
	"github.com/jcmexdev/fulfillment-saga/internal/order-service/app"
	"github.com/jcmexdev/fulfillment-saga/internal/order-service/domain"
	"github.com/jcmexdev/fulfillment-saga/internal/order-service/repository"
	"github.com/jcmexdev/fulfillment-saga/internal/pkg/database"
	"github.com/jcmexdev/fulfillment-saga/internal/pkg/interceptors"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, repository.Migrate(db))

	store := memory.NewStore(&memory.Seed{
		Customers: []capability.Customer{{ID: "C1", Name: "Ada Lovelace", Email: "ada@example.com"}},
		Products: []capability.Product{
			{ID: "P1", SKU: "SKU-P1", Name: "Notebook", Price: decimal.RequireFromString("10.00"), IsActive: true},
			{ID: "P2", SKU: "SKU-P2", Name: "Sticker", Price: decimal.RequireFromString("5.00"), IsActive: true},
		},
		Inventory: []capability.StockLevel{
			{ProductID: "P1", Warehouse: "WH-A", OnHand: 10},
			{ProductID: "P2", Warehouse: "WH-A", OnHand: 10},
		},
	})
	svc := app.NewService(repository.New(db), app.Capabilities{
		Customers: store.Customers,
		Catalog:   store.Catalog,
		Inventory: store.Inventory,
		Payments:  store.Payments,
	}, app.WithSagaLog(sagalog.NewMemoryRepository()))

	return NewRouter(NewHandler(svc))
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeOrder(t *testing.T, rec *httptest.ResponseRecorder) OrderResponse {
	t.Helper()
	var out OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const createBody = `{"customer_id":"C1","items":[{"product_id":"P1","quantity":2},{"product_id":"P2","quantity":1}],"shipping":"10.00"}`

func TestOrderLifecycle(t *testing.T) {
	h := newTestRouter(t)
	key := map[string]string{"X-Idempotency-Key": "idem-1"}

	rec := do(t, h, http.MethodPost, "/orders", createBody, key)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(interceptors.HeaderRequestID))

	order := decodeOrder(t, rec)
	assert.Equal(t, "CONFIRMED", order.OrderStatus)
	assert.Equal(t, "PAID", order.PaymentStatus)
	assert.Equal(t, "35.00", order.OrderTotal)
	assert.Equal(t, "idem-1", order.IdempotencyKey)
	require.Len(t, order.Items, 2)

	replay := do(t, h, http.MethodPost, "/orders", createBody, key)
	require.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, order.ID, decodeOrder(t, replay).ID)

	got := do(t, h, http.MethodGet, "/orders/"+order.ID, "", nil)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, order.ID, decodeOrder(t, got).ID)

	history := do(t, h, http.MethodGet, "/orders/"+order.ID+"/saga", "", nil)
	require.Equal(t, http.StatusOK, history.Code)
	var entries []SagaLogResponse
	require.NoError(t, json.Unmarshal(history.Body.Bytes(), &entries))
	require.NotEmpty(t, entries)
	assert.Equal(t, "COMPLETED", entries[len(entries)-1].Status)

	delivered := do(t, h, http.MethodPost, "/orders/"+order.ID+"/deliver", "", nil)
	require.Equal(t, http.StatusOK, delivered.Code)
	assert.Equal(t, "DELIVERED", decodeOrder(t, delivered).OrderStatus)

	cancel := do(t, h, http.MethodPost, "/orders/"+order.ID+"/cancel", "", nil)
	assert.Equal(t, http.StatusConflict, cancel.Code)
	assert.Contains(t, cancel.Body.String(), "invalid_cancellation")
}

func TestCancelOrder(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/orders", createBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decodeOrder(t, rec)

	cancel := do(t, h, http.MethodPost, "/orders/"+order.ID+"/cancel", "", nil)
	require.Equal(t, http.StatusOK, cancel.Code)
	cancelled := decodeOrder(t, cancel)
	assert.Equal(t, "CANCELLED", cancelled.OrderStatus)
	assert.Equal(t, "REFUNDED", cancelled.PaymentStatus)
}

func TestCreateOrderErrors(t *testing.T) {
	h := newTestRouter(t)

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"broken json", `{`, http.StatusBadRequest, "invalid_json"},
		{"no items", `{"customer_id":"C1","items":[]}`, http.StatusBadRequest, "invalid_request"},
		{"unknown customer", `{"customer_id":"C9","items":[{"product_id":"P1","quantity":1}]}`, http.StatusNotFound, "not_found"},
		{"not enough stock", `{"customer_id":"C1","items":[{"product_id":"P1","quantity":50}]}`, http.StatusConflict, "insufficient_stock"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/orders", tc.body, nil)

			assert.Equal(t, tc.status, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.code, resp.Error)
		})
	}
}

func TestUnknownOrderIsNotFound(t *testing.T) {
	h := newTestRouter(t)

	for _, path := range []string{"/orders/nope", "/orders/nope/saga"} {
		rec := do(t, h, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestHealthz(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: bad", domain.ErrInvalidRequest), http.StatusBadRequest},
		{domain.ErrOrderNotFound, http.StatusNotFound},
		{coordinator.Fail(domain.ErrProductNotFound, "P9", capability.ErrNotFound), http.StatusNotFound},
		{coordinator.Fail(domain.ErrInactiveResource, "P2", nil), http.StatusConflict},
		{coordinator.Fail(domain.ErrPaymentDeclined, "limit", nil), http.StatusPaymentRequired},
		{domain.ErrPersistenceConflict, http.StatusConflict},
		{domain.ErrInvalidTransition, http.StatusConflict},
		{&fallback.UnavailableError{Capability: "payments", Preferred: context.DeadlineExceeded, Fallback: capability.ErrNotFound}, http.StatusServiceUnavailable},
		{coordinator.Fail(nil, "", capability.ErrUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		status, _ := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}
