// Package store declares the persistence boundary used by the pricing, checkout
// and payment packages together with the shared row models.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrInsufficientStock is returned by DecrementStock when the product holds fewer units than requested.
	ErrInsufficientStock = errors.New("store: insufficient stock")
	// ErrDuplicatePaymentID is returned when another order already carries the payment identifier.
	ErrDuplicatePaymentID = errors.New("store: payment id already assigned")
)

// Catalog exposes product reads and stock mutation.
type Catalog interface {
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	// LockProducts returns the existing products among ids, locked for update until the
	// surrounding transaction ends. Missing ids are omitted from the result.
	LockProducts(ctx context.Context, ids []uuid.UUID) ([]Product, error)
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) error
	IncrementStock(ctx context.Context, id uuid.UUID, qty int) error
}

// Carts exposes the user's persisted cart.
type Carts interface {
	GetCart(ctx context.Context, userID uuid.UUID) ([]CartItem, error)
	ClearCart(ctx context.Context, userID uuid.UUID) error
}

// Coupons exposes coupon lookup and redemption bookkeeping.
type Coupons interface {
	GetCouponByCode(ctx context.Context, code string) (CouponRecord, error)
	LockCouponByCode(ctx context.Context, code string) (CouponRecord, error)
	CountCouponUsageByUser(ctx context.Context, couponID, userID uuid.UUID) (int, error)
	IncrementCouponUsage(ctx context.Context, couponID uuid.UUID) error
	RecordCouponUsage(ctx context.Context, usage CouponUsage) error
}

// Orders exposes order creation and payment transitions.
type Orders interface {
	CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error)
	CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error)
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	LockOrder(ctx context.Context, id uuid.UUID) (Order, error)
	FindOrderByPaymentID(ctx context.Context, paymentID string) (Order, error)
	FindOrderByBasketID(ctx context.Context, basketID string) (Order, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error)
	UpdateOrderPayment(ctx context.Context, arg UpdateOrderPaymentParams) (Order, error)
}

// Anomalies records callbacks that need manual reconciliation.
type Anomalies interface {
	RecordPaymentAnomaly(ctx context.Context, arg RecordPaymentAnomalyParams) (PaymentAnomaly, error)
}

// Events persists domain events.
type Events interface {
	InsertDomainEvent(ctx context.Context, arg InsertDomainEventParams) (DomainEvent, error)
}

// Queries is the full set of operations available both inside and outside a transaction.
type Queries interface {
	Catalog
	Carts
	Coupons
	Orders
	Anomalies
	Events
}

// Store adds the unit-of-work boundary. Every write performed through the
// Queries handed to fn commits together or not at all.
type Store interface {
	Queries
	WithinTx(ctx context.Context, fn func(q Queries) error) error
}
