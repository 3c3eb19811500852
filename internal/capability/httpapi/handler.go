// Package httpapi exposes a set of capability implementations over HTTP, in
// the shape the httpclient package consumes.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/fulfillment-saga/internal/capability"
)

type Handler struct {
	customers capability.Customers
	catalog   capability.Catalog
	inventory capability.Inventory
	payments  capability.Payments
}

func NewHandler(customers capability.Customers, catalog capability.Catalog, inventory capability.Inventory, payments capability.Payments) *Handler {
	return &Handler{
		customers: customers,
		catalog:   catalog,
		inventory: inventory,
		payments:  payments,
	}
}

// Routes mounts the four capabilities under /customers, /products,
// /inventory and /payments.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/customers/{id}", h.GetCustomer)

	r.Get("/products", h.GetProductBySKU)
	r.Get("/products/{id}", h.GetProduct)

	r.Post("/inventory/reserve", h.ReserveStock)
	r.Delete("/inventory/reserve/{id}", h.ReleaseReservation)
	r.Get("/inventory/{productID}", h.GetInventory)

	r.Post("/payments/charge", h.Charge)
	r.Post("/payments/refund", h.Refund)
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.customers.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCapabilityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCapabilityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) GetProductBySKU(w http.ResponseWriter, r *http.Request) {
	sku := r.URL.Query().Get("sku")
	if sku == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "sku query parameter is required"})
		return
	}
	p, err := h.catalog.GetProductBySKU(r.Context(), sku)
	if err != nil {
		writeCapabilityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) GetInventory(w http.ResponseWriter, r *http.Request) {
	levels, err := h.inventory.GetInventory(r.Context(), chi.URLParam(r, "productID"), r.URL.Query().Get("warehouse"))
	if err != nil {
		writeCapabilityError(w, r, err)
		return
	}
	if levels == nil {
		levels = []capability.StockLevel{}
	}
	writeJSON(w, http.StatusOK, levels)
}

// ReserveStock answers 200 for refusals too; the body carries success=false.
func (h *Handler) ReserveStock(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ProductID == "" || req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "product_id and a positive quantity are required"})
		return
	}
	res, err := h.inventory.ReserveStock(r.Context(), req.ProductID, req.SKU, req.Quantity)
	if err != nil {
		writeCapabilityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ReleaseReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.inventory.ReleaseReservation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCapabilityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Charge(w http.ResponseWriter, r *http.Request) {
	var req ChargeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.OrderID == "" || req.IdempotencyKey == "" || req.Amount.IsNegative() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "order_id, idempotency_key and a non-negative amount are required"})
		return
	}
	res, err := h.payments.Charge(r.Context(), req.OrderID, req.Amount, req.IdempotencyKey)
	if err != nil {
		writeCapabilityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.payments.Refund(r.Context(), req.PaymentID, req.Amount)
	if err != nil {
		writeCapabilityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json: " + err.Error()})
		return false
	}
	return true
}

func writeCapabilityError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, capability.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, capability.ErrUnavailable):
		status = http.StatusServiceUnavailable
	default:
		slog.ErrorContext(r.Context(), "capability call failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
