package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/fulfillment-saga/internal/capability"
	"github.com/jcmexdev/fulfillment-saga/internal/coordinator"
	"github.com/jcmexdev/fulfillment-saga/internal/order-service/domain"
	"github.com/jcmexdev/fulfillment-saga/internal/order-service/repository"
)

const (
	stepResolveCustomer = "Resolve_Customer"
	stepCreateShell     = "Create_Order_Shell"
	stepComputeTotals   = "Compute_Totals"
	stepPaymentCharge   = "Payment_Charge"
	stepConfirmOrder    = "Confirm_Order"
	stepCommitOrder     = "Commit_Order"
	stepCancelOrder     = "Cancel_Order"
)

// line is the bookkeeping of one requested item as the saga progresses.
type line struct {
	req         ItemRequest
	product     *capability.Product
	reservation *capability.Reservation
}

// createSaga is the state shared by the steps of one CreateOrder call. Every
// persistence write goes through tx.
type createSaga struct {
	svc        *Service
	tx         repository.Repository
	order      *domain.Order
	lines      []line
	paymentKey string
	charge     *capability.Charge
}

func newCreateSaga(svc *Service, tx repository.Repository, customer *capability.Customer, req CreateOrderRequest, shipping decimal.Decimal, paymentKey string) *createSaga {
	lines := make([]line, len(req.Items))
	for i, it := range req.Items {
		lines[i] = line{req: it}
	}
	return &createSaga{
		svc:        svc,
		tx:         tx,
		order:      domain.NewOrder(customer.ID, customer.Name, customer.Email, shipping, req.IdempotencyKey),
		lines:      lines,
		paymentKey: paymentKey,
	}
}

// steps lays the saga out in submission order: the shell, then a
// reservation and an item row per line, then totals, payment and
// confirmation.
func (c *createSaga) steps() []coordinator.Step {
	steps := []coordinator.Step{&shellStep{c}}
	for i := range c.lines {
		steps = append(steps, &reserveStep{saga: c, index: i}, &recordItemStep{saga: c, index: i})
	}
	return append(steps, &totalsStep{c}, &paymentStep{c}, &confirmStep{c})
}

// --- shellStep ---

type shellStep struct{ saga *createSaga }

func (s *shellStep) Name() string { return stepCreateShell }

func (s *shellStep) Execute(ctx context.Context) error {
	return s.saga.tx.CreateOrder(ctx, s.saga.order)
}

func (s *shellStep) Compensate(ctx context.Context) error {
	return s.saga.tx.DeleteOrder(ctx, s.saga.order.ID)
}

// --- reserveStep ---

type reserveStep struct {
	saga  *createSaga
	index int
}

func (s *reserveStep) Name() string { return fmt.Sprintf("Reserve_Stock[%d]", s.index) }

func (s *reserveStep) Execute(ctx context.Context) error {
	l := &s.saga.lines[s.index]
	caps := s.saga.svc.caps

	product, err := caps.Catalog.GetProduct(ctx, l.req.ProductID)
	if err != nil {
		if errors.Is(err, capability.ErrNotFound) {
			return coordinator.Fail(domain.ErrProductNotFound, "product "+l.req.ProductID, err)
		}
		return err
	}
	if !product.IsActive {
		return coordinator.Fail(domain.ErrInactiveResource, fmt.Sprintf("product %s is inactive", product.ID), nil)
	}
	l.product = product

	res, err := caps.Inventory.ReserveStock(ctx, product.ID, product.SKU, l.req.Quantity)
	if err != nil {
		return err
	}
	if !res.Success {
		return coordinator.Fail(domain.ErrInsufficientStock, res.Error, nil)
	}
	l.reservation = res
	return nil
}

func (s *reserveStep) Compensate(ctx context.Context) error {
	l := s.saga.lines[s.index]
	if l.reservation == nil {
		return nil
	}
	res, err := s.saga.svc.caps.Inventory.ReleaseReservation(ctx, l.reservation.ReservationID)
	if err != nil {
		return fmt.Errorf("release %s: %w", l.reservation.ReservationID, err)
	}
	if !res.Success {
		return fmt.Errorf("release %s: refused by inventory", l.reservation.ReservationID)
	}
	return nil
}

// --- recordItemStep ---

type recordItemStep struct {
	saga  *createSaga
	index int
}

func (s *recordItemStep) Name() string { return fmt.Sprintf("Record_Item[%d]", s.index) }

func (s *recordItemStep) Execute(ctx context.Context) error {
	l := s.saga.lines[s.index]
	order := s.saga.order

	item := domain.NewOrderItem(order.ID, l.product.ID, l.product.SKU, l.product.Name,
		l.req.Quantity, l.product.Price, l.reservation.ReservationID, l.reservation.Warehouse)
	if err := s.saga.tx.CreateItem(ctx, &item); err != nil {
		return err
	}
	order.Items = append(order.Items, item)
	return nil
}

// Compensate is a no-op: the shell compensation deletes every item.
func (s *recordItemStep) Compensate(context.Context) error { return nil }

// --- totalsStep ---

type totalsStep struct{ saga *createSaga }

func (s *totalsStep) Name() string { return stepComputeTotals }

func (s *totalsStep) Execute(ctx context.Context) error {
	s.saga.order.CalculateTotals(s.saga.svc.taxRate)
	return s.saga.tx.UpdateOrder(ctx, s.saga.order)
}

func (s *totalsStep) Compensate(context.Context) error { return nil }

// --- paymentStep ---

type paymentStep struct{ saga *createSaga }

func (s *paymentStep) Name() string { return stepPaymentCharge }

func (s *paymentStep) Execute(ctx context.Context) error {
	order := s.saga.order
	if order.OrderTotal.IsZero() {
		return nil
	}
	res, err := s.saga.svc.caps.Payments.Charge(ctx, order.ID, order.OrderTotal, s.saga.paymentKey)
	if err != nil {
		return err
	}
	if !res.Success {
		return coordinator.Fail(domain.ErrPaymentDeclined, res.Error, nil)
	}
	// A replayed key can answer with an earlier charge that was refunded since.
	if res.Status != capability.PaymentStatusPaid {
		return coordinator.Fail(domain.ErrPaymentDeclined,
			fmt.Sprintf("payment %s is %s", res.PaymentID, res.Status), nil)
	}
	s.saga.charge = res
	return nil
}

// Compensate refunds the charge. Only reachable when confirmation or the
// commit fails.
func (s *paymentStep) Compensate(ctx context.Context) error {
	charge := s.saga.charge
	if charge == nil {
		return nil
	}
	res, err := s.saga.svc.caps.Payments.Refund(ctx, charge.PaymentID, charge.Amount)
	if err != nil {
		return fmt.Errorf("refund %s: %w", charge.PaymentID, err)
	}
	if !res.Success {
		return fmt.Errorf("refund %s: %s", charge.PaymentID, res.Error)
	}
	return nil
}

// --- confirmStep ---

type confirmStep struct{ saga *createSaga }

func (s *confirmStep) Name() string { return stepConfirmOrder }

func (s *confirmStep) Execute(ctx context.Context) error {
	order := s.saga.order
	var paymentID string
	if s.saga.charge != nil {
		paymentID = s.saga.charge.PaymentID
	}
	if err := order.Confirm(paymentID); err != nil {
		return err
	}
	return s.saga.tx.UpdateOrder(ctx, order)
}

func (s *confirmStep) Compensate(context.Context) error { return nil }
