package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/fulfillment-saga/internal/capability"
	"github.com/jcmexdev/fulfillment-saga/internal/coordinator"
	"github.com/jcmexdev/fulfillment-saga/internal/coordinator/sagalog"
	"github.com/jcmexdev/fulfillment-saga/internal/order-service/app"
	"github.com/jcmexdev/fulfillment-saga/internal/order-service/domain"
	"github.com/jcmexdev/fulfillment-saga/internal/pkg/interceptors"
)

// OrderService is the part of app.Service the HTTP layer drives.
type OrderService interface {
	CreateOrder(ctx context.Context, req app.CreateOrderRequest) (*domain.Order, bool, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	CancelOrderByID(ctx context.Context, id string) (*domain.Order, error)
	MarkDelivered(ctx context.Context, id string) (*domain.Order, error)
	SagaHistory(ctx context.Context, id string) ([]sagalog.SagaLog, error)
}

type Handler struct {
	orders OrderService
}

func NewHandler(orders OrderService) *Handler {
	return &Handler{orders: orders}
}

// CreateOrder runs the create saga synchronously. A replay of a known
// idempotency key answers 200 with the stored order instead of 201.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	items := make([]app.ItemRequest, len(req.Items))
	for i, it := range req.Items {
		items[i] = app.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	ctx := r.Context()
	slog.InfoContext(ctx, "creating order",
		"request_id", interceptors.RequestID(ctx), "customer_id", req.CustomerID, "items", len(items))

	order, created, err := h.orders.CreateOrder(ctx, app.CreateOrderRequest{
		CustomerID:     req.CustomerID,
		Items:          items,
		IdempotencyKey: interceptors.IdempotencyKey(ctx),
		Shipping:       req.Shipping,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, mapOrderToResponse(order))
}

func (h *Handler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.CancelOrderByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

func (h *Handler) DeliverOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.MarkDelivered(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

// SagaHistory answers 404 for unknown orders rather than an empty list.
func (h *Handler) SagaHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.orders.GetOrder(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.orders.SagaHistory(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSagaLogs(entries))
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}

	resp := ErrorResponse{Error: code, Message: err.Error()}
	var failure *coordinator.Failure
	if errors.As(err, &failure) {
		resp.Step = failure.Step
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, capability.ErrUnavailable):
		return http.StatusServiceUnavailable, "capability_unavailable"
	case errors.Is(err, domain.ErrPaymentDeclined):
		return http.StatusPaymentRequired, "payment_declined"
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, capability.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInactiveResource):
		return http.StatusConflict, "inactive_resource"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, domain.ErrInvalidCancellation):
		return http.StatusConflict, "invalid_cancellation"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrPersistenceConflict):
		return http.StatusConflict, "persistence_conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
