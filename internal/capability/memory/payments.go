package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/fulfillment-saga/internal/capability"
)

var _ capability.Payments = (*Payments)(nil)

const (
	PaymentStatusPaid     = capability.PaymentStatusPaid
	PaymentStatusFailed   = capability.PaymentStatusFailed
	PaymentStatusRefunded = capability.PaymentStatusRefunded
)

type payment struct {
	orderID string
	amount  decimal.Decimal
	refund  *capability.Refund
}

type PaymentOption func(*Payments)

// WithChargeLimit declines every charge above limit.
func WithChargeLimit(limit decimal.Decimal) PaymentOption {
	return func(p *Payments) { p.limit = limit }
}

// Payments simulates a payment provider. Charges are idempotent on the
// idempotency key and refunds are idempotent per payment.
type Payments struct {
	mu       sync.Mutex
	byKey    map[string]*capability.Charge
	payments map[string]*payment
	limit    decimal.Decimal
}

func NewPayments(opts ...PaymentOption) *Payments {
	p := &Payments{
		byKey:    make(map[string]*capability.Charge),
		payments: make(map[string]*payment),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Payments) Charge(ctx context.Context, orderID string, amount decimal.Decimal, idempotencyKey string) (*capability.Charge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.byKey[idempotencyKey]; ok {
		if !prev.Amount.Equal(amount) {
			return &capability.Charge{
				Success: false,
				Amount:  amount,
				Status:  PaymentStatusFailed,
				Error:   fmt.Sprintf("idempotency key %s already used for amount %s", idempotencyKey, prev.Amount.StringFixed(2)),
			}, nil
		}
		if pay, ok := p.payments[prev.PaymentID]; ok && pay.refund != nil {
			return &capability.Charge{
				Success:   false,
				PaymentID: prev.PaymentID,
				Amount:    amount,
				Status:    PaymentStatusRefunded,
				Error:     fmt.Sprintf("payment %s for idempotency key %s has been refunded", prev.PaymentID, idempotencyKey),
			}, nil
		}
		slog.InfoContext(ctx, "duplicate charge request, returning previous result",
			"order_id", orderID, "idempotency_key", idempotencyKey)
		res := *prev
		return &res, nil
	}

	var res *capability.Charge
	if p.limit.IsPositive() && amount.GreaterThan(p.limit) {
		slog.WarnContext(ctx, "charge declined, amount exceeds limit",
			"order_id", orderID, "amount", amount.StringFixed(2), "limit", p.limit.StringFixed(2))
		res = &capability.Charge{
			Success: false,
			Amount:  amount,
			Status:  PaymentStatusFailed,
			Error:   fmt.Sprintf("amount %s exceeds limit %s", amount.StringFixed(2), p.limit.StringFixed(2)),
		}
	} else {
		id := shortID("PAY")
		p.payments[id] = &payment{orderID: orderID, amount: amount}
		res = &capability.Charge{
			Success:   true,
			PaymentID: id,
			Amount:    amount,
			Status:    PaymentStatusPaid,
		}
	}

	p.byKey[idempotencyKey] = res
	out := *res
	return &out, nil
}

func (p *Payments) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (*capability.Refund, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pay, ok := p.payments[paymentID]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", paymentID, capability.ErrNotFound)
	}
	if pay.refund != nil {
		res := *pay.refund
		return &res, nil
	}
	if amount.GreaterThan(pay.amount) {
		return &capability.Refund{
			Success: false,
			Amount:  amount,
			Status:  PaymentStatusFailed,
			Error:   fmt.Sprintf("refund %s exceeds charged amount %s", amount.StringFixed(2), pay.amount.StringFixed(2)),
		}, nil
	}

	pay.refund = &capability.Refund{
		Success:  true,
		RefundID: shortID("REF"),
		Amount:   amount,
		Status:   PaymentStatusRefunded,
	}
	slog.InfoContext(ctx, "payment refunded", "payment_id", paymentID, "order_id", pay.orderID, "amount", amount.StringFixed(2))

	res := *pay.refund
	return &res, nil
}

// ChargeCount returns the number of distinct successful charges.
func (p *Payments) ChargeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payments)
}

// RefundCount returns the number of refunded payments.
func (p *Payments) RefundCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, pay := range p.payments {
		if pay.refund != nil {
			n++
		}
	}
	return n
}

// Refunded reports whether the payment has been refunded.
func (p *Payments) Refunded(paymentID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	pay, ok := p.payments[paymentID]
	return ok && pay.refund != nil
}
