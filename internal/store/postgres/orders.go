package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-checkout/internal/store"
)

const paymentIDConstraint = "orders_payment_id_key"

const orderColumns = `id, order_number, user_id, subtotal, tax, shipping_cost, shipping_tax, discount_amount,
	coupon_code, coupon_discount_type, total, status, payment_status, payment_method, payment_id, basket_id,
	shipping_address, failure_reason, created_at, updated_at`

func scanOrder(row pgx.Row) (store.Order, error) {
	var o store.Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.Subtotal, &o.Tax, &o.ShippingCost, &o.ShippingTax, &o.DiscountAmount,
		&o.CouponCode, &o.CouponDiscountType, &o.Total, &o.Status, &o.PaymentStatus, &o.PaymentMethod, &o.PaymentID, &o.BasketID,
		&o.ShippingAddress, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func (q *Queries) CreateOrder(ctx context.Context, arg store.CreateOrderParams) (store.Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, `
		INSERT INTO orders (
			order_number, user_id, subtotal, tax, shipping_cost, shipping_tax, discount_amount,
			coupon_code, coupon_discount_type, total, status, payment_status, payment_method,
			payment_id, basket_id, shipping_address
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING `+orderColumns,
		arg.OrderNumber, arg.UserID, arg.Subtotal, arg.Tax, arg.ShippingCost, arg.ShippingTax, arg.DiscountAmount,
		arg.CouponCode, arg.CouponDiscountType, arg.Total, string(arg.Status), string(arg.PaymentStatus), arg.PaymentMethod,
		arg.PaymentID, arg.BasketID, []byte(arg.ShippingAddress),
	))
	if err != nil {
		if isUniqueViolation(err, paymentIDConstraint) {
			return store.Order{}, store.ErrDuplicatePaymentID
		}
		return store.Order{}, err
	}
	return o, nil
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg store.CreateOrderItemParams) (store.OrderItem, error) {
	var it store.OrderItem
	err := q.db.QueryRow(ctx, `
		INSERT INTO order_items (order_id, product_id, product_name, product_image_url, quantity, price)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, order_id, product_id, product_name, product_image_url, quantity, price`,
		arg.OrderID, arg.ProductID, arg.ProductName, arg.ProductImageURL, arg.Quantity, arg.Price,
	).Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.ProductImageURL, &it.Quantity, &it.Price)
	return it, err
}

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (store.Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return store.Order{}, notFound(err)
	}
	return o, nil
}

func (q *Queries) LockOrder(ctx context.Context, id uuid.UUID) (store.Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return store.Order{}, notFound(err)
	}
	return o, nil
}

func (q *Queries) FindOrderByPaymentID(ctx context.Context, paymentID string) (store.Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_id = $1`, paymentID))
	if err != nil {
		return store.Order{}, notFound(err)
	}
	return o, nil
}

// FindOrderByBasketID returns the most recent order carrying the basket id.
func (q *Queries) FindOrderByBasketID(ctx context.Context, basketID string) (store.Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE basket_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, basketID))
	if err != nil {
		return store.Order{}, notFound(err)
	}
	return o, nil
}

func (q *Queries) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]store.OrderItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, order_id, product_id, product_name, product_image_url, quantity, price
		FROM order_items
		WHERE order_id = $1
		ORDER BY price DESC, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.OrderItem, error) {
		var it store.OrderItem
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.ProductImageURL, &it.Quantity, &it.Price)
		return it, err
	})
}

// UpdateOrderPayment keeps the stored payment id when arg.PaymentID is nil.
func (q *Queries) UpdateOrderPayment(ctx context.Context, arg store.UpdateOrderPaymentParams) (store.Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, `
		UPDATE orders
		SET status = $2,
		    payment_status = $3,
		    payment_id = COALESCE($4, payment_id),
		    failure_reason = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+orderColumns,
		arg.ID, string(arg.Status), string(arg.PaymentStatus), arg.PaymentID, arg.FailureReason,
	))
	if err != nil {
		if isUniqueViolation(err, paymentIDConstraint) {
			return store.Order{}, store.ErrDuplicatePaymentID
		}
		return store.Order{}, notFound(err)
	}
	return o, nil
}

func (q *Queries) RecordPaymentAnomaly(ctx context.Context, arg store.RecordPaymentAnomalyParams) (store.PaymentAnomaly, error) {
	var a store.PaymentAnomaly
	err := q.db.QueryRow(ctx, `
		INSERT INTO payment_anomalies (kind, payment_id, correlation_id, basket_id, order_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, kind, payment_id, correlation_id, basket_id, order_id, detail, created_at`,
		arg.Kind, arg.PaymentID, arg.CorrelationID, arg.BasketID, arg.OrderID, arg.Detail,
	).Scan(&a.ID, &a.Kind, &a.PaymentID, &a.CorrelationID, &a.BasketID, &a.OrderID, &a.Detail, &a.CreatedAt)
	return a, err
}

func (q *Queries) InsertDomainEvent(ctx context.Context, arg store.InsertDomainEventParams) (store.DomainEvent, error) {
	var e store.DomainEvent
	err := q.db.QueryRow(ctx, `
		INSERT INTO domain_events (topic, aggregate_id, payload)
		VALUES ($1, $2, $3)
		RETURNING id, topic, aggregate_id, payload, occurred_at`,
		arg.Topic, arg.AggregateID, arg.Payload,
	).Scan(&e.ID, &e.Topic, &e.AggregateID, &e.Payload, &e.OccurredAt)
	return e, err
}
