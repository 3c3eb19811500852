package httpx

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/fulfillment-saga/internal/coordinator/sagalog"
	"github.com/jcmexdev/fulfillment-saga/internal/order-service/domain"
)

type CreateOrderRequest struct {
	CustomerID string               `json:"customer_id"`
	Items      []CreateOrderItemDTO `json:"items"`
	Shipping   *decimal.Decimal     `json:"shipping,omitempty"`
}

type CreateOrderItemDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type OrderResponse struct {
	ID             string              `json:"order_id"`
	CustomerID     string              `json:"customer_id"`
	CustomerName   string              `json:"customer_name"`
	CustomerEmail  string              `json:"customer_email"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
	OrderStatus    string              `json:"order_status"`
	PaymentStatus  string              `json:"payment_status"`
	PaymentID      string              `json:"payment_id,omitempty"`
	Subtotal       string              `json:"subtotal"`
	Tax            string              `json:"tax"`
	Shipping       string              `json:"shipping"`
	OrderTotal     string              `json:"order_total"`
	Items          []OrderItemResponse `json:"items"`
	OrderDate      time.Time           `json:"order_date"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

type OrderItemResponse struct {
	ProductID     string `json:"product_id"`
	SKU           string `json:"sku"`
	ProductName   string `json:"product_name"`
	Quantity      int    `json:"quantity"`
	UnitPrice     string `json:"unit_price"`
	LineTotal     string `json:"line_total"`
	ReservationID string `json:"reservation_id"`
	Warehouse     string `json:"warehouse"`
}

type SagaLogResponse struct {
	SagaID      string    `json:"saga_id"`
	Status      string    `json:"status"`
	CurrentStep string    `json:"current_step,omitempty"`
	Errors      []string  `json:"errors,omitempty"`
	TraceID     string    `json:"trace_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Step    string `json:"step,omitempty"`
}

func mapOrderToResponse(order *domain.Order) OrderResponse {
	return OrderResponse{
		ID:             order.ID,
		CustomerID:     order.CustomerID,
		CustomerName:   order.CustomerName,
		CustomerEmail:  order.CustomerEmail,
		IdempotencyKey: order.IdempotencyKeyValue(),
		OrderStatus:    string(order.OrderStatus),
		PaymentStatus:  string(order.PaymentStatus),
		PaymentID:      order.PaymentID,
		Subtotal:       order.Subtotal.StringFixed(2),
		Tax:            order.Tax.StringFixed(2),
		Shipping:       order.Shipping.StringFixed(2),
		OrderTotal:     order.OrderTotal.StringFixed(2),
		Items:          mapItems(order.Items),
		OrderDate:      order.OrderDate,
		UpdatedAt:      order.UpdatedAt,
	}
}

func mapItems(items []domain.OrderItem) []OrderItemResponse {
	out := make([]OrderItemResponse, len(items))
	for i, it := range items {
		out[i] = OrderItemResponse{
			ProductID:     it.ProductID,
			SKU:           it.SKU,
			ProductName:   it.ProductName,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice.StringFixed(2),
			LineTotal:     it.LineTotal.StringFixed(2),
			ReservationID: it.ReservationID,
			Warehouse:     it.Warehouse,
		}
	}
	return out
}

func mapSagaLogs(entries []sagalog.SagaLog) []SagaLogResponse {
	out := make([]SagaLogResponse, len(entries))
	for i, e := range entries {
		out[i] = SagaLogResponse{
			SagaID:      e.SagaID,
			Status:      string(e.Status),
			CurrentStep: e.CurrentStep,
			Errors:      e.Errors(),
			TraceID:     e.TraceID,
			UpdatedAt:   e.UpdatedAt,
		}
	}
	return out
}
