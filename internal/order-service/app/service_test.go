package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jcmexdev/fulfillment-saga/internal/capability"
	"github.com/jcmexdev/fulfillment-saga/internal/capability/fallback"
	"github.com/jcmexdev/fulfillment-saga/internal/capability/memory"
	"github.com/jcmexdev/fulfillment-saga/internal/coordinator"
	"github.com/jcmexdev/fulfillment-saga/internal/coordinator/sagalog"
	"github.com/jcmexdev/fulfillment-saga/internal/order-service/domain"
	"github.com/jcmexdev/fulfillment-saga/internal/order-service/repository"
	"github.com/jcmexdev/fulfillment-saga/internal/pkg/database"
	"github.com/jcmexdev/fulfillment-saga/internal/pkg/events"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testSeed() *memory.Seed {
	return &memory.Seed{
		Customers: []capability.Customer{{ID: "C1", Name: "Ada Lovelace", Email: "ada@example.com"}},
		Products: []capability.Product{
			{ID: "P1", SKU: "SKU-P1", Name: "Notebook", Price: dec("9.99"), IsActive: true},
			{ID: "P2", SKU: "SKU-P2", Name: "Retired pen", Price: dec("5.00"), IsActive: false},
			{ID: "P3", SKU: "SKU-P3", Name: "Mug", Price: dec("10.00"), IsActive: true},
			{ID: "P4", SKU: "SKU-P4", Name: "Sticker", Price: dec("5.00"), IsActive: true},
			{ID: "P5", SKU: "SKU-P5", Name: "Free sample", Price: dec("0.00"), IsActive: true},
		},
		Inventory: []capability.StockLevel{
			{ProductID: "P1", Warehouse: "WH-A", OnHand: 5},
			{ProductID: "P2", Warehouse: "WH-A", OnHand: 10},
			{ProductID: "P3", Warehouse: "WH-A", OnHand: 100},
			{ProductID: "P4", Warehouse: "WH-A", OnHand: 100},
			{ProductID: "P5", Warehouse: "WH-A", OnHand: 100},
		},
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e events.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// trackingLog remembers which sagas wrote entries.
type trackingLog struct {
	*sagalog.MemoryRepository
	mu  sync.Mutex
	ids []string
}

func (l *trackingLog) Save(ctx context.Context, entry *sagalog.SagaLog) error {
	l.mu.Lock()
	if len(l.ids) == 0 || l.ids[len(l.ids)-1] != entry.SagaID {
		l.ids = append(l.ids, entry.SagaID)
	}
	l.mu.Unlock()
	return l.MemoryRepository.Save(ctx, entry)
}

func (l *trackingLog) lastSagaID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.ids) == 0 {
		return ""
	}
	return l.ids[len(l.ids)-1]
}

type fixture struct {
	db        *gorm.DB
	repo      repository.Repository
	store     *memory.Store
	sagaLog   *trackingLog
	publisher *recordingPublisher
	caps      Capabilities
}

func newFixture(t *testing.T, opts ...memory.PaymentOption) *fixture {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, repository.Migrate(db))

	store := memory.NewStore(testSeed(), opts...)
	return &fixture{
		db:        db,
		repo:      repository.New(db),
		store:     store,
		sagaLog:   &trackingLog{MemoryRepository: sagalog.NewMemoryRepository()},
		publisher: &recordingPublisher{},
		caps: Capabilities{
			Customers: store.Customers,
			Catalog:   store.Catalog,
			Inventory: store.Inventory,
			Payments:  store.Payments,
		},
	}
}

func (f *fixture) service() *Service {
	return NewService(f.repo, f.caps, WithSagaLog(f.sagaLog), WithPublisher(f.publisher))
}

func (f *fixture) orderRows(t *testing.T) (orders, items int64) {
	t.Helper()
	require.NoError(t, f.db.Model(&domain.Order{}).Count(&orders).Error)
	require.NoError(t, f.db.Model(&domain.OrderItem{}).Count(&items).Error)
	return orders, items
}

func (f *fixture) reserved(t *testing.T, productID string) int {
	t.Helper()
	levels, err := f.store.Inventory.GetInventory(context.Background(), productID, "")
	require.NoError(t, err)
	total := 0
	for _, l := range levels {
		total += l.Reserved
	}
	return total
}

func shipping(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestCreateOrderComputesTotal(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	order, created, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items:      []ItemRequest{{ProductID: "P3", Quantity: 2}, {ProductID: "P4", Quantity: 1}},
		Shipping:   shipping("10.00"),
	})

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "35.00", order.OrderTotal.StringFixed(2))
	assert.Equal(t, domain.StatusConfirmed, order.OrderStatus)
	assert.Equal(t, domain.PaymentPaid, order.PaymentStatus)
	assert.NotEmpty(t, order.PaymentID)
	assert.Equal(t, "Ada Lovelace", order.CustomerName)

	stored, err := svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "35.00", stored.OrderTotal.StringFixed(2))
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "P3", stored.Items[0].ProductID)
	assert.Equal(t, "20.00", stored.Items[0].LineTotal.StringFixed(2))
	for _, it := range stored.Items {
		assert.NotEmpty(t, it.ReservationID)
		assert.Equal(t, "WH-A", it.Warehouse)
	}

	assert.Equal(t, []string{events.TypeOrderConfirmed}, f.publisher.types())
	latest, err := f.sagaLog.Latest(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, sagalog.StatusCompleted, latest.Status)
}

func TestCreateOrderUsesDefaultShipping(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.repo, f.caps, WithDefaultShipping(dec("4.50")), WithTaxRate(dec("0.10")))

	order, _, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items:      []ItemRequest{{ProductID: "P3", Quantity: 1}},
	})

	require.NoError(t, err)
	assert.Equal(t, "4.50", order.Shipping.StringFixed(2))
	assert.Equal(t, "1.00", order.Tax.StringFixed(2))
	assert.Equal(t, "15.50", order.OrderTotal.StringFixed(2))
}

func TestCreateOrderIsIdempotent(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	req := CreateOrderRequest{
		CustomerID:     "C1",
		Items:          []ItemRequest{{ProductID: "P3", Quantity: 2}, {ProductID: "P4", Quantity: 1}},
		IdempotencyKey: "idem-1",
		Shipping:       shipping("10.00"),
	}

	first, created, err := svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	orders, items := f.orderRows(t)
	assert.EqualValues(t, 1, orders)
	assert.EqualValues(t, 2, items)
	assert.Equal(t, 1, f.store.Payments.ChargeCount())
	assert.Equal(t, 2, f.store.Inventory.ActiveReservations())
	assert.Equal(t, []string{events.TypeOrderConfirmed}, f.publisher.types())
}

func TestCreateOrderConcurrentDuplicatesCreateOnce(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	req := CreateOrderRequest{
		CustomerID:     "C1",
		Items:          []ItemRequest{{ProductID: "P3", Quantity: 1}},
		IdempotencyKey: "race",
	}

	const n = 8
	var (
		wg      sync.WaitGroup
		created atomic.Int32
		ids     sync.Map
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, isNew, err := svc.CreateOrder(context.Background(), req)
			if !assert.NoError(t, err) {
				return
			}
			if isNew {
				created.Add(1)
			}
			ids.Store(order.ID, true)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, created.Load())
	distinct := 0
	ids.Range(func(_, _ any) bool { distinct++; return true })
	assert.Equal(t, 1, distinct)
	assert.Equal(t, 1, f.store.Payments.ChargeCount())
	assert.Equal(t, 1, f.store.Inventory.ActiveReservations())
}

// blindRepo hides existing idempotency keys so the insert itself hits the
// unique index, as a concurrent loser would on Postgres.
type blindRepo struct{ repository.Repository }

func (blindRepo) FindByIdempotencyKey(context.Context, string) (*domain.Order, error) {
	return nil, domain.ErrOrderNotFound
}

type racingRepo struct {
	repository.Repository
	winner *domain.Order
}

func (r *racingRepo) WithinTx(ctx context.Context, fn func(tx repository.Repository) error) error {
	if err := r.Repository.CreateOrder(ctx, r.winner); err != nil {
		return err
	}
	return r.Repository.WithinTx(ctx, func(tx repository.Repository) error {
		return fn(blindRepo{tx})
	})
}

func TestCreateOrderLosingTheRaceReturnsWinner(t *testing.T) {
	f := newFixture(t)
	winner := domain.NewOrder("C1", "Ada Lovelace", "ada@example.com", dec("10"), "race")
	repo := &racingRepo{Repository: f.repo, winner: winner}
	svc := NewService(repo, f.caps)

	order, created, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID:     "C1",
		Items:          []ItemRequest{{ProductID: "P3", Quantity: 1}},
		IdempotencyKey: "race",
	})

	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner.ID, order.ID)
	assert.Zero(t, f.store.Payments.ChargeCount())
	assert.Zero(t, f.store.Inventory.ActiveReservations())
}

func TestCreateOrderInactiveProductScenario(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	_, _, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID:     "C1",
		Items:          []ItemRequest{{ProductID: "P1", Quantity: 3}, {ProductID: "P2", Quantity: 1}},
		IdempotencyKey: "scenario",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInactiveResource)
	var failure *coordinator.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "Reserve_Stock[1]", failure.Step)

	assert.Zero(t, f.reserved(t, "P1"))
	assert.Zero(t, f.store.Inventory.ActiveReservations())
	orders, items := f.orderRows(t)
	assert.Zero(t, orders)
	assert.Zero(t, items)
	_, err = f.repo.FindByIdempotencyKey(context.Background(), "scenario")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.Zero(t, f.store.Payments.ChargeCount())
	assert.Empty(t, f.publisher.types())
}

func TestCreateOrderCompensatesFailureAtEveryItem(t *testing.T) {
	const n = 4
	for k := 1; k < n; k++ {
		t.Run(fmt.Sprintf("fail at item %d of %d", k, n), func(t *testing.T) {
			f := newFixture(t)
			svc := f.service()

			items := make([]ItemRequest, n)
			for i := range items {
				items[i] = ItemRequest{ProductID: "P3", Quantity: 1}
			}
			items[k-1] = ItemRequest{ProductID: "P4", Quantity: 1000}

			_, _, err := svc.CreateOrder(context.Background(), CreateOrderRequest{CustomerID: "C1", Items: items})

			require.ErrorIs(t, err, domain.ErrInsufficientStock)
			assert.Contains(t, err.Error(), "insufficient stock for product P4")
			assert.Zero(t, f.store.Inventory.ActiveReservations())
			assert.Zero(t, f.reserved(t, "P3"))
			orders, rows := f.orderRows(t)
			assert.Zero(t, orders)
			assert.Zero(t, rows)
		})
	}
}

func TestCreateOrderPaymentDeclinedReleasesEverything(t *testing.T) {
	f := newFixture(t, memory.WithChargeLimit(dec("20.00")))
	svc := f.service()

	_, _, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items:      []ItemRequest{{ProductID: "P3", Quantity: 2}, {ProductID: "P4", Quantity: 1}},
	})

	require.ErrorIs(t, err, domain.ErrPaymentDeclined)
	assert.Zero(t, f.store.Inventory.ActiveReservations())
	orders, _ := f.orderRows(t)
	assert.Zero(t, orders)
}

type failingConfirmRepo struct{ repository.Repository }

func (r failingConfirmRepo) WithinTx(ctx context.Context, fn func(tx repository.Repository) error) error {
	return r.Repository.WithinTx(ctx, func(tx repository.Repository) error {
		return fn(failingConfirmRepo{tx})
	})
}

func (r failingConfirmRepo) UpdateOrder(ctx context.Context, o *domain.Order) error {
	if o.OrderStatus == domain.StatusConfirmed {
		return errors.New("disk full")
	}
	return r.Repository.UpdateOrder(ctx, o)
}

func TestCreateOrderRefundsWhenConfirmationFails(t *testing.T) {
	f := newFixture(t)
	svc := NewService(failingConfirmRepo{f.repo}, f.caps, WithSagaLog(f.sagaLog))

	_, _, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items:      []ItemRequest{{ProductID: "P3", Quantity: 1}},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.Equal(t, 1, f.store.Payments.ChargeCount())
	assert.Equal(t, 1, f.store.Payments.RefundCount())
	assert.Zero(t, f.store.Inventory.ActiveReservations())
	orders, _ := f.orderRows(t)
	assert.Zero(t, orders)
}

var errCommit = errors.New("commit failed")

// commitFailingRepo runs fn in a real transaction and then fails it, as a
// commit error would.
type commitFailingRepo struct{ repository.Repository }

func (r commitFailingRepo) WithinTx(ctx context.Context, fn func(tx repository.Repository) error) error {
	return r.Repository.WithinTx(ctx, func(tx repository.Repository) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errCommit
	})
}

func TestCreateOrderUndoesSideEffectsWhenCommitFails(t *testing.T) {
	f := newFixture(t)
	svc := NewService(commitFailingRepo{f.repo}, f.caps, WithSagaLog(f.sagaLog))

	_, _, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items:      []ItemRequest{{ProductID: "P3", Quantity: 2}, {ProductID: "P4", Quantity: 1}},
	})

	require.ErrorIs(t, err, errCommit)
	orders, items := f.orderRows(t)
	assert.Zero(t, orders)
	assert.Zero(t, items)
	assert.Zero(t, f.store.Inventory.ActiveReservations())
	assert.Zero(t, f.reserved(t, "P3"))
	assert.Equal(t, 1, f.store.Payments.ChargeCount())
	assert.Equal(t, 1, f.store.Payments.RefundCount())

	latest, err := f.sagaLog.Latest(context.Background(), f.sagaLog.lastSagaID())
	require.NoError(t, err)
	assert.Equal(t, sagalog.StatusFailed, latest.Status)
	assert.Equal(t, stepCommitOrder, latest.CurrentStep)
}

func TestCreateOrderRetryAfterRefundedChargeIsDeclined(t *testing.T) {
	f := newFixture(t)
	req := CreateOrderRequest{
		CustomerID:     "C1",
		Items:          []ItemRequest{{ProductID: "P3", Quantity: 1}},
		IdempotencyKey: "K1",
	}

	_, _, err := NewService(failingConfirmRepo{f.repo}, f.caps).CreateOrder(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, 1, f.store.Payments.RefundCount())

	order, created, err := f.service().CreateOrder(context.Background(), req)

	require.ErrorIs(t, err, domain.ErrPaymentDeclined)
	assert.Nil(t, order)
	assert.False(t, created)
	orders, _ := f.orderRows(t)
	assert.Zero(t, orders)
	assert.Zero(t, f.store.Inventory.ActiveReservations())
	assert.Equal(t, 1, f.store.Payments.ChargeCount())
}

func TestCreateOrderWithZeroTotalSkipsCharge(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	order, created, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items:      []ItemRequest{{ProductID: "P5", Quantity: 3}},
		Shipping:   shipping("0"),
	})

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.StatusConfirmed, order.OrderStatus)
	assert.Equal(t, domain.PaymentPaid, order.PaymentStatus)
	assert.Empty(t, order.PaymentID)
	assert.True(t, order.OrderTotal.IsZero())
	assert.Zero(t, f.store.Payments.ChargeCount())

	cancelled, err := svc.CancelOrder(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.OrderStatus)
	assert.Equal(t, domain.PaymentRefunded, cancelled.PaymentStatus)
	assert.Zero(t, f.store.Inventory.ActiveReservations())
}

func TestCreateOrderCustomerNotFound(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.service().CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C404",
		Items:      []ItemRequest{{ProductID: "P3", Quantity: 1}},
	})

	assert.ErrorIs(t, err, domain.ErrCustomerNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	orders, _ := f.orderRows(t)
	assert.Zero(t, orders)
}

func TestCreateOrderProductNotFound(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.service().CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items:      []ItemRequest{{ProductID: "P3", Quantity: 1}, {ProductID: "P404", Quantity: 1}},
	})

	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.Zero(t, f.store.Inventory.ActiveReservations())
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	cases := map[string]CreateOrderRequest{
		"no items":      {CustomerID: "C1"},
		"no customer":   {Items: []ItemRequest{{ProductID: "P3", Quantity: 1}}},
		"zero quantity": {CustomerID: "C1", Items: []ItemRequest{{ProductID: "P3", Quantity: 0}}},
		"blank product": {CustomerID: "C1", Items: []ItemRequest{{ProductID: " ", Quantity: 1}}},
		"negative ship": {CustomerID: "C1", Items: []ItemRequest{{ProductID: "P3", Quantity: 1}}, Shipping: shipping("-1")},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := svc.CreateOrder(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}
}

type downCatalog struct{ calls atomic.Int32 }

func (d *downCatalog) GetProduct(context.Context, string) (*capability.Product, error) {
	d.calls.Add(1)
	return nil, fmt.Errorf("catalog: connection refused: %w", capability.ErrUnavailable)
}

func (d *downCatalog) GetProductBySKU(context.Context, string) (*capability.Product, error) {
	d.calls.Add(1)
	return nil, fmt.Errorf("catalog: connection refused: %w", capability.ErrUnavailable)
}

type countingCatalog struct {
	capability.Catalog
	calls atomic.Int32
}

func (c *countingCatalog) GetProduct(ctx context.Context, id string) (*capability.Product, error) {
	c.calls.Add(1)
	return c.Catalog.GetProduct(ctx, id)
}

func TestCreateOrderFallbackIsTransparent(t *testing.T) {
	req := CreateOrderRequest{
		CustomerID: "C1",
		Items:      []ItemRequest{{ProductID: "P3", Quantity: 2}, {ProductID: "P4", Quantity: 1}},
		Shipping:   shipping("10.00"),
	}

	baseline := newFixture(t)
	want, _, err := baseline.service().CreateOrder(context.Background(), req)
	require.NoError(t, err)

	f := newFixture(t)
	down := &downCatalog{}
	f.caps.Catalog = fallback.NewCatalog(down, f.store.Catalog, fallback.Policy{UsePreferred: true, AllowFallback: true})

	got, created, err := f.service().CreateOrder(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, created)
	assert.EqualValues(t, 2, down.calls.Load())
	assert.True(t, want.OrderTotal.Equal(got.OrderTotal))
	require.Len(t, got.Items, len(want.Items))
	for i := range want.Items {
		assert.Equal(t, want.Items[i].ProductName, got.Items[i].ProductName)
		assert.True(t, want.Items[i].UnitPrice.Equal(got.Items[i].UnitPrice))
	}
}

func TestCreateOrderFallbackSuppressed(t *testing.T) {
	f := newFixture(t)
	fb := &countingCatalog{Catalog: f.store.Catalog}
	f.caps.Catalog = fallback.NewCatalog(&downCatalog{}, fb, fallback.Policy{UsePreferred: true, AllowFallback: false})

	_, _, err := f.service().CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items:      []ItemRequest{{ProductID: "P3", Quantity: 1}},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, capability.ErrUnavailable)
	assert.Zero(t, fb.calls.Load())
	orders, _ := f.orderRows(t)
	assert.Zero(t, orders)
}

func TestCreateOrderBothCatalogsDown(t *testing.T) {
	f := newFixture(t)
	f.caps.Catalog = fallback.NewCatalog(&downCatalog{}, &downCatalog{}, fallback.Policy{UsePreferred: true, AllowFallback: true})

	_, _, err := f.service().CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items:      []ItemRequest{{ProductID: "P3", Quantity: 1}},
	})

	var unavailable *fallback.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.ErrorIs(t, err, capability.ErrUnavailable)
}

func createConfirmed(t *testing.T, f *fixture, svc *Service) *domain.Order {
	t.Helper()
	order, _, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items:      []ItemRequest{{ProductID: "P3", Quantity: 2}, {ProductID: "P4", Quantity: 1}},
		Shipping:   shipping("10.00"),
	})
	require.NoError(t, err)
	require.Equal(t, 2, f.store.Inventory.ActiveReservations())
	return order
}

func TestCancelConfirmedOrder(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	order := createConfirmed(t, f, svc)

	cancelled, err := svc.CancelOrderByID(context.Background(), order.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.OrderStatus)
	assert.Equal(t, domain.PaymentRefunded, cancelled.PaymentStatus)
	assert.True(t, f.store.Payments.Refunded(order.PaymentID))
	assert.Zero(t, f.store.Inventory.ActiveReservations())

	stored, err := svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.OrderStatus)
	assert.Len(t, stored.Items, 2, "items stay as history")
	assert.Equal(t, []string{events.TypeOrderConfirmed, events.TypeOrderCancelled}, f.publisher.types())
}

func TestCancelCancelledOrderIsNoop(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	order := createConfirmed(t, f, svc)
	_, err := svc.CancelOrderByID(context.Background(), order.ID)
	require.NoError(t, err)

	stored, err := svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	before := *stored

	again, err := svc.CancelOrder(context.Background(), stored)

	require.NoError(t, err)
	assert.Same(t, stored, again)
	assert.Equal(t, before.OrderStatus, again.OrderStatus)
	assert.Equal(t, before.PaymentStatus, again.PaymentStatus)
	assert.Equal(t, before.UpdatedAt, again.UpdatedAt)
	assert.Len(t, f.publisher.types(), 2)
}

func TestCancelDeliveredOrderFails(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	order := createConfirmed(t, f, svc)
	delivered, err := svc.MarkDelivered(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusDelivered, delivered.OrderStatus)

	_, err = svc.CancelOrder(context.Background(), delivered)

	assert.ErrorIs(t, err, domain.ErrInvalidCancellation)
	assert.Equal(t, domain.StatusDelivered, delivered.OrderStatus)
	assert.Equal(t, domain.PaymentPaid, delivered.PaymentStatus)
	assert.Equal(t, 2, f.store.Inventory.ActiveReservations())
	assert.False(t, f.store.Payments.Refunded(order.PaymentID))
}

func TestMarkDeliveredRequiresConfirmed(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	order := createConfirmed(t, f, svc)
	_, err := svc.CancelOrderByID(context.Background(), order.ID)
	require.NoError(t, err)

	_, err = svc.MarkDelivered(context.Background(), order.ID)

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

type refundDownPayments struct{ capability.Payments }

func (refundDownPayments) Refund(context.Context, string, decimal.Decimal) (*capability.Refund, error) {
	return nil, fmt.Errorf("payments: %w", capability.ErrUnavailable)
}

func TestCancelProceedsWhenRefundFails(t *testing.T) {
	f := newFixture(t)
	f.caps.Payments = refundDownPayments{f.store.Payments}
	svc := f.service()
	order := createConfirmed(t, f, svc)

	cancelled, err := svc.CancelOrderByID(context.Background(), order.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.OrderStatus)
	assert.Equal(t, domain.PaymentPaid, cancelled.PaymentStatus)
	assert.Zero(t, f.store.Inventory.ActiveReservations())

	latest, err := f.sagaLog.Latest(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, latest.Errors(), 1)
	assert.Contains(t, latest.Errors()[0], "refund")
}

func TestCancelUnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.service().CancelOrderByID(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestSagaHistoryRecordsCompensation(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	_, _, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: "C1",
		Items:      []ItemRequest{{ProductID: "P1", Quantity: 3}, {ProductID: "P2", Quantity: 1}},
	})
	var failure *coordinator.Failure
	require.ErrorAs(t, err, &failure)

	history, err := svc.SagaHistory(context.Background(), f.sagaLog.lastSagaID())
	require.NoError(t, err)
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	assert.Equal(t, sagalog.StatusFailed, last.Status)
	assert.Equal(t, "Reserve_Stock[1]", last.CurrentStep)
}
