// Package repository is the persistence boundary for orders and their items.
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jcmexdev/fulfillment-saga/internal/order-service/domain"
	"github.com/jcmexdev/fulfillment-saga/internal/pkg/database"
)

type Repository interface {
	// WithinTx runs fn against a repository bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx Repository) error) error

	CreateOrder(ctx context.Context, order *domain.Order) error
	UpdateOrder(ctx context.Context, order *domain.Order) error
	// DeleteOrder removes the order and all of its items.
	DeleteOrder(ctx context.Context, id string) error
	CreateItem(ctx context.Context, item *domain.OrderItem) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
}

type gormRepository struct {
	db *gorm.DB
}

func New(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.Order{}, &domain.OrderItem{}); err != nil {
		return fmt.Errorf("repository: migrate: %w", err)
	}
	return nil
}

func (r *gormRepository) WithinTx(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: idempotency key %q already used", domain.ErrPersistenceConflict, order.IdempotencyKeyValue())
	}
	if err != nil {
		return fmt.Errorf("repository: create order %s: %w", order.ID, err)
	}
	return nil
}

func (r *gormRepository) UpdateOrder(ctx context.Context, order *domain.Order) error {
	res := r.db.WithContext(ctx).Omit(clause.Associations).Save(order)
	if res.Error != nil {
		return fmt.Errorf("repository: update order %s: %w", order.ID, res.Error)
	}
	return nil
}

func (r *gormRepository) DeleteOrder(ctx context.Context, id string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("order_id = ?", id).Delete(&domain.OrderItem{}).Error; err != nil {
		return fmt.Errorf("repository: delete items of order %s: %w", id, err)
	}
	if err := db.Where("id = ?", id).Delete(&domain.Order{}).Error; err != nil {
		return fmt.Errorf("repository: delete order %s: %w", id, err)
	}
	return nil
}

func (r *gormRepository) CreateItem(ctx context.Context, item *domain.OrderItem) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("repository: create item for order %s: %w", item.OrderID, err)
	}
	return nil
}

func (r *gormRepository) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *gormRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	return r.first(ctx, "idempotency_key = ?", key)
}

func (r *gormRepository) first(ctx context.Context, query string, arg string) (*domain.Order, error) {
	var order domain.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where(query, arg).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get order: %w", err)
	}
	return &order, nil
}
