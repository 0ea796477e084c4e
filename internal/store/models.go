package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OrderStatus enumerates the fulfilment lifecycle of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

// PaymentStatus enumerates the settlement state of an order payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Product is the catalog view required by pricing and stock reservation.
// Price is tax-inclusive and stored in minor units.
type Product struct {
	ID         uuid.UUID
	Name       string
	ImageURL   string
	Price      int64
	Stock      int
	CategoryID uuid.UUID
}

// CartItem is a single line of a user's cart.
type CartItem struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	CreatedAt time.Time
}

// CouponRecord is the flat storage representation of a coupon. Only a subset
// of the fields is meaningful for a given discount type.
type CouponRecord struct {
	ID                 uuid.UUID
	Code               string
	DiscountType       string
	Value              int64
	PercentBps         *int32
	BuyMode            *string
	BuyTargetID        *uuid.UUID
	GetTargetID        *uuid.UUID
	BuyQuantity        *int
	GetQuantity        *int
	MaxFreeQuantity    *int
	MinimumAmount      *int64
	StartsAt           *time.Time
	EndsAt             *time.Time
	TotalUsageLimit    *int
	CustomerUsageLimit *int
	UsedCount          int
	IsActive           bool
	ApplicableProducts []uuid.UUID
	ApplicableUsers    []uuid.UUID
}

// CouponUsage records one redemption of a coupon by a user for an order.
type CouponUsage struct {
	CouponID  uuid.UUID
	UserID    uuid.UUID
	OrderID   uuid.UUID
	CreatedAt time.Time
}

// Order is the persisted order header.
type Order struct {
	ID                 uuid.UUID
	OrderNumber        string
	UserID             uuid.UUID
	Subtotal           int64
	Tax                int64
	ShippingCost       int64
	ShippingTax        int64
	DiscountAmount     int64
	CouponCode         *string
	CouponDiscountType *string
	Total              int64
	Status             OrderStatus
	PaymentStatus      PaymentStatus
	PaymentMethod      string
	PaymentID          *string
	BasketID           *string
	ShippingAddress    json.RawMessage
	FailureReason      *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// OrderItem is a persisted order line. Price zero marks a coupon-granted free unit.
type OrderItem struct {
	ID              uuid.UUID
	OrderID         uuid.UUID
	ProductID       *uuid.UUID
	ProductName     string
	ProductImageURL string
	Quantity        int
	Price           int64
}

// PaymentAnomaly is a gateway callback that could not be reconciled automatically.
type PaymentAnomaly struct {
	ID            uuid.UUID
	Kind          string
	PaymentID     string
	CorrelationID string
	BasketID      string
	OrderID       *uuid.UUID
	Detail        string
	CreatedAt     time.Time
}

// DomainEvent is an entry of the append-only event log.
type DomainEvent struct {
	ID          uuid.UUID
	Topic       string
	AggregateID uuid.UUID
	Payload     json.RawMessage
	OccurredAt  time.Time
}

// CreateOrderParams carries the columns written when an order is created.
type CreateOrderParams struct {
	OrderNumber        string
	UserID             uuid.UUID
	Subtotal           int64
	Tax                int64
	ShippingCost       int64
	ShippingTax        int64
	DiscountAmount     int64
	CouponCode         *string
	CouponDiscountType *string
	Total              int64
	Status             OrderStatus
	PaymentStatus      PaymentStatus
	PaymentMethod      string
	PaymentID          *string
	BasketID           *string
	ShippingAddress    json.RawMessage
}

// CreateOrderItemParams carries the columns of a new order line.
type CreateOrderItemParams struct {
	OrderID         uuid.UUID
	ProductID       *uuid.UUID
	ProductName     string
	ProductImageURL string
	Quantity        int
	Price           int64
}

// UpdateOrderPaymentParams transitions the payment state of an order.
type UpdateOrderPaymentParams struct {
	ID            uuid.UUID
	Status        OrderStatus
	PaymentStatus PaymentStatus
	PaymentID     *string
	FailureReason *string
}

// RecordPaymentAnomalyParams carries the columns of a new anomaly row.
type RecordPaymentAnomalyParams struct {
	Kind          string
	PaymentID     string
	CorrelationID string
	BasketID      string
	OrderID       *uuid.UUID
	Detail        string
}

// InsertDomainEventParams carries the columns of a new domain event.
type InsertDomainEventParams struct {
	Topic       string
	AggregateID uuid.UUID
	Payload     []byte
}
