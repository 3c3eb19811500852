// Package app holds the order saga: creating an order reserves stock, charges
// the customer and persists the order as one compensated workflow;
// cancelling releases stock and refunds.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/fulfillment-saga/internal/capability"
	"github.com/jcmexdev/fulfillment-saga/internal/coordinator"
	"github.com/jcmexdev/fulfillment-saga/internal/coordinator/sagalog"
	"github.com/jcmexdev/fulfillment-saga/internal/order-service/domain"
	"github.com/jcmexdev/fulfillment-saga/internal/order-service/repository"
	"github.com/jcmexdev/fulfillment-saga/internal/pkg/events"
)

const tracerName = "github.com/jcmexdev/fulfillment-saga/internal/order-service/app"

// Capabilities are the collaborators the saga talks to. Each one may be a
// fallback wrapper around a networked and an in-memory implementation.
type Capabilities struct {
	Customers capability.Customers
	Catalog   capability.Catalog
	Inventory capability.Inventory
	Payments  capability.Payments
}

type ItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderRequest struct {
	CustomerID     string        `json:"customer_id"`
	Items          []ItemRequest `json:"items"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	// Shipping falls back to the service default when nil.
	Shipping *decimal.Decimal `json:"shipping,omitempty"`
}

func (r CreateOrderRequest) Validate() error {
	var problems []string
	if strings.TrimSpace(r.CustomerID) == "" {
		problems = append(problems, "customer_id is required")
	}
	if len(r.Items) == 0 {
		problems = append(problems, "at least one item is required")
	}
	for i, it := range r.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			problems = append(problems, fmt.Sprintf("items[%d].product_id is required", i))
		}
		if it.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("items[%d].quantity must be positive", i))
		}
	}
	if r.Shipping != nil && r.Shipping.IsNegative() {
		problems = append(problems, "shipping must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}

type Option func(*Service)

func WithSagaLog(log sagalog.Repository) Option {
	return func(s *Service) { s.sagaLog = log }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithTaxRate(rate decimal.Decimal) Option {
	return func(s *Service) { s.taxRate = rate }
}

func WithDefaultShipping(amount decimal.Decimal) Option {
	return func(s *Service) { s.defaultShipping = amount }
}

type Service struct {
	repo            repository.Repository
	caps            Capabilities
	sagaLog         sagalog.Repository
	publisher       events.Publisher
	taxRate         decimal.Decimal
	defaultShipping decimal.Decimal
	tracer          trace.Tracer
}

func NewService(repo repository.Repository, caps Capabilities, opts ...Option) *Service {
	s := &Service{
		repo:            repo,
		caps:            caps,
		publisher:       events.Noop{},
		taxRate:         decimal.Zero,
		defaultShipping: decimal.RequireFromString("10.00"),
		tracer:          otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder runs the create saga. It returns the order and whether it was
// created by this call; a replayed idempotency key returns the existing order
// with created=false and touches nothing.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	ctx, span := s.tracer.Start(ctx, "order.create", trace.WithAttributes(
		attribute.String("customer.id", req.CustomerID),
		attribute.Int("order.items", len(req.Items)),
		attribute.Bool("order.idempotent", req.IdempotencyKey != ""),
	))
	defer span.End()

	order, created, err := s.createOrder(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.WarnContext(ctx, "order creation failed",
			"customer_id", req.CustomerID, "idempotency_key", req.IdempotencyKey, "error", err)
		return nil, false, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID), attribute.Bool("order.created", created))
	if created {
		slog.InfoContext(ctx, "order created",
			"order_id", order.ID, "customer_id", order.CustomerID, "order_total", order.OrderTotal.StringFixed(2))
		s.publish(ctx, events.TypeOrderConfirmed, order)
	} else {
		slog.InfoContext(ctx, "idempotent replay, returning existing order",
			"order_id", order.ID, "idempotency_key", req.IdempotencyKey)
	}
	return order, created, nil
}

func (s *Service) createOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, bool, error) {
	key := req.IdempotencyKey
	if key != "" {
		existing, err := s.findByKey(ctx, s.repo, key)
		if err != nil || existing != nil {
			return existing, false, err
		}
	}

	customer, err := s.caps.Customers.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		if errors.Is(err, capability.ErrNotFound) {
			return nil, false, &coordinator.Failure{
				Step:   stepResolveCustomer,
				Kind:   domain.ErrCustomerNotFound,
				Detail: "customer " + req.CustomerID,
				Cause:  err,
			}
		}
		return nil, false, err
	}

	shipping := s.defaultShipping
	if req.Shipping != nil {
		shipping = *req.Shipping
	}
	paymentKey := key
	if paymentKey == "" {
		paymentKey = uuid.NewString()
	}

	var (
		result   *domain.Order
		replayed bool
		sagaID   string
		orch     *coordinator.Orchestrator
	)
	// The commit must survive a client disconnect.
	err = s.repo.WithinTx(context.WithoutCancel(ctx), func(tx repository.Repository) error {
		if key != "" {
			existing, err := s.findByKey(ctx, tx, key)
			if err != nil {
				return err
			}
			if existing != nil {
				result, replayed = existing, true
				return nil
			}
		}

		saga := newCreateSaga(s, tx, customer, req, shipping, paymentKey)
		sagaID = saga.order.ID
		orch = coordinator.NewOrchestrator(sagaID, saga.steps(),
			coordinator.WithLog(s.sagaLog),
			coordinator.WithPayload(payload(req)),
		)
		if err := orch.Start(ctx); err != nil {
			return err
		}
		result = saga.order
		return nil
	})
	if err != nil {
		if orch != nil && len(orch.Completed()) > 0 {
			s.undoUncommitted(ctx, orch, sagaID, err)
		}
		// Lost the race on the idempotency key: the winner committed first.
		if key != "" && errors.Is(err, domain.ErrPersistenceConflict) {
			if existing, ferr := s.findByKey(ctx, s.repo, key); ferr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}
	return result, !replayed, nil
}

// undoUncommitted releases the reservations and refunds the charge of a saga
// that completed but whose transaction did not commit. The order rows are
// already gone with the rollback.
func (s *Service) undoUncommitted(ctx context.Context, orch *coordinator.Orchestrator, sagaID string, cause error) {
	var external []coordinator.Step
	for _, step := range orch.Completed() {
		switch step.(type) {
		case *reserveStep, *paymentStep:
			external = append(external, step)
		}
	}

	slog.ErrorContext(ctx, "order commit failed after saga completed, undoing side effects",
		"saga_id", sagaID, "steps", len(external), "error", cause)
	s.record(ctx, sagaID, sagalog.StatusCompensating, stepCommitOrder, []string{cause.Error()})

	msgs := []string{cause.Error()}
	for _, cerr := range orch.Compensate(ctx, external) {
		msgs = append(msgs, cerr.Error())
	}
	s.record(ctx, sagaID, sagalog.StatusFailed, stepCommitOrder, msgs)
}

// findByKey returns nil, nil when no order carries key.
func (s *Service) findByKey(ctx context.Context, repo repository.Repository, key string) (*domain.Order, error) {
	order, err := repo.FindByIdempotencyKey(ctx, key)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// CancelOrderByID loads the order and cancels it.
func (s *Service) CancelOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.CancelOrder(ctx, order)
}

// CancelOrder releases every reservation, refunds a paid order and marks it
// CANCELLED. Release and refund failures are logged and do not stop the
// cancellation. Cancelling a cancelled order is a no-op; a delivered order
// cannot be cancelled.
func (s *Service) CancelOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if order.OrderStatus == domain.StatusCancelled {
		return order, nil
	}
	if !order.CanTransitionTo(domain.StatusCancelled) {
		return nil, order.TransitionTo(domain.StatusCancelled)
	}

	ctx, span := s.tracer.Start(ctx, "order.cancel", trace.WithAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.status", string(order.OrderStatus)),
	))
	defer span.End()

	s.record(ctx, order.ID, sagalog.StatusCompensating, stepCancelOrder, nil)

	var problems []string
	for _, id := range order.ReservationIDs() {
		res, err := s.caps.Inventory.ReleaseReservation(ctx, id)
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("release %s: %v", id, err))
		case !res.Success:
			problems = append(problems, fmt.Sprintf("release %s: refused", id))
		}
	}
	for _, p := range problems {
		slog.WarnContext(ctx, "reservation release failed during cancellation", "order_id", order.ID, "detail", p)
	}

	switch {
	case order.PaymentStatus != domain.PaymentPaid:
	case order.PaymentID == "":
		// Zero-total order, nothing was charged.
		order.PaymentStatus = domain.PaymentRefunded
	default:
		if detail := s.refund(ctx, order); detail != "" {
			problems = append(problems, detail)
			slog.ErrorContext(ctx, "refund failed, cancelling anyway",
				"order_id", order.ID, "payment_id", order.PaymentID, "detail", detail)
			span.AddEvent("refund.failed", trace.WithAttributes(
				attribute.String("payment.id", order.PaymentID),
				attribute.String("detail", detail),
			))
		} else {
			order.PaymentStatus = domain.PaymentRefunded
		}
	}

	if err := order.TransitionTo(domain.StatusCancelled); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.record(ctx, order.ID, sagalog.StatusCompleted, stepCancelOrder, problems)
	slog.InfoContext(ctx, "order cancelled",
		"order_id", order.ID, "payment_status", order.PaymentStatus, "problems", len(problems))
	s.publish(ctx, events.TypeOrderCancelled, order)
	return order, nil
}

// refund returns a description of the failure, or "" on success.
func (s *Service) refund(ctx context.Context, order *domain.Order) string {
	res, err := s.caps.Payments.Refund(ctx, order.PaymentID, order.OrderTotal)
	if err != nil {
		return fmt.Sprintf("refund %s: %v", order.PaymentID, err)
	}
	if !res.Success {
		return fmt.Sprintf("refund %s: %s", order.PaymentID, res.Error)
	}
	return ""
}

// MarkDelivered moves a confirmed order to DELIVERED.
func (s *Service) MarkDelivered(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := order.TransitionTo(domain.StatusDelivered); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "order delivered", "order_id", order.ID)
	s.publish(ctx, events.TypeOrderDelivered, order)
	return order, nil
}

// SagaHistory returns the saga log of an order, oldest entry first.
func (s *Service) SagaHistory(ctx context.Context, id string) ([]sagalog.SagaLog, error) {
	if s.sagaLog == nil {
		return nil, nil
	}
	return s.sagaLog.History(ctx, id)
}

func (s *Service) record(ctx context.Context, sagaID string, status sagalog.Status, step string, errs []string) {
	if s.sagaLog == nil {
		return
	}
	entry := sagalog.NewEntry(ctx, sagaID, status, step, "", errs)
	if err := s.sagaLog.Save(context.WithoutCancel(ctx), entry); err != nil {
		slog.WarnContext(ctx, "failed to write saga log", "saga_id", sagaID, "error", err)
	}
}

// publish is best effort: the order is already committed.
func (s *Service) publish(ctx context.Context, eventType string, order *domain.Order) {
	err := s.publisher.Publish(ctx, events.OrderEvent{
		Type:          eventType,
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		OrderStatus:   string(order.OrderStatus),
		PaymentStatus: string(order.PaymentStatus),
		OrderTotal:    order.OrderTotal,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to publish order event", "type", eventType, "order_id", order.ID, "error", err)
	}
}

func payload(req CreateOrderRequest) string {
	b, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	return string(b)
}
