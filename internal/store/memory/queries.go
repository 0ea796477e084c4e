package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/store"
)

type queries struct {
	st       *state
	now      func() time.Time
	failures map[string]error
}

var _ store.Queries = (*queries)(nil)

func (q *queries) fail(op string) error {
	return q.failures[op]
}

func (q *queries) GetProduct(_ context.Context, id uuid.UUID) (store.Product, error) {
	if err := q.fail("GetProduct"); err != nil {
		return store.Product{}, err
	}
	p, ok := q.st.products[id]
	if !ok {
		return store.Product{}, store.ErrNotFound
	}
	return p, nil
}

func (q *queries) LockProducts(_ context.Context, ids []uuid.UUID) ([]store.Product, error) {
	if err := q.fail("LockProducts"); err != nil {
		return nil, err
	}
	seen := map[uuid.UUID]bool{}
	out := make([]store.Product, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := q.st.products[id]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (q *queries) DecrementStock(_ context.Context, id uuid.UUID, qty int) error {
	if err := q.fail("DecrementStock"); err != nil {
		return err
	}
	p, ok := q.st.products[id]
	if !ok {
		return store.ErrNotFound
	}
	if p.Stock < qty {
		return store.ErrInsufficientStock
	}
	p.Stock -= qty
	q.st.products[id] = p
	return nil
}

func (q *queries) IncrementStock(_ context.Context, id uuid.UUID, qty int) error {
	if err := q.fail("IncrementStock"); err != nil {
		return err
	}
	p, ok := q.st.products[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Stock += qty
	q.st.products[id] = p
	return nil
}

func (q *queries) GetCart(_ context.Context, userID uuid.UUID) ([]store.CartItem, error) {
	if err := q.fail("GetCart"); err != nil {
		return nil, err
	}
	return append([]store.CartItem(nil), q.st.carts[userID]...), nil
}

func (q *queries) ClearCart(_ context.Context, userID uuid.UUID) error {
	if err := q.fail("ClearCart"); err != nil {
		return err
	}
	delete(q.st.carts, userID)
	return nil
}

func (q *queries) GetCouponByCode(_ context.Context, code string) (store.CouponRecord, error) {
	if err := q.fail("GetCouponByCode"); err != nil {
		return store.CouponRecord{}, err
	}
	id, ok := q.st.couponByCode[code]
	if !ok {
		return store.CouponRecord{}, store.ErrNotFound
	}
	return q.st.coupons[id], nil
}

func (q *queries) LockCouponByCode(ctx context.Context, code string) (store.CouponRecord, error) {
	if err := q.fail("LockCouponByCode"); err != nil {
		return store.CouponRecord{}, err
	}
	return q.GetCouponByCode(ctx, code)
}

func (q *queries) CountCouponUsageByUser(_ context.Context, couponID, userID uuid.UUID) (int, error) {
	if err := q.fail("CountCouponUsageByUser"); err != nil {
		return 0, err
	}
	n := 0
	for _, u := range q.st.usages {
		if u.CouponID == couponID && u.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (q *queries) IncrementCouponUsage(_ context.Context, couponID uuid.UUID) error {
	if err := q.fail("IncrementCouponUsage"); err != nil {
		return err
	}
	c, ok := q.st.coupons[couponID]
	if !ok {
		return store.ErrNotFound
	}
	c.UsedCount++
	q.st.coupons[couponID] = c
	return nil
}

func (q *queries) RecordCouponUsage(_ context.Context, usage store.CouponUsage) error {
	if err := q.fail("RecordCouponUsage"); err != nil {
		return err
	}
	for _, u := range q.st.usages {
		if u.CouponID == usage.CouponID && u.OrderID == usage.OrderID {
			return fmt.Errorf("coupon usage for order %s already recorded", usage.OrderID)
		}
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = q.now()
	}
	q.st.usages = append(q.st.usages, usage)
	return nil
}

func (q *queries) CreateOrder(_ context.Context, arg store.CreateOrderParams) (store.Order, error) {
	if err := q.fail("CreateOrder"); err != nil {
		return store.Order{}, err
	}
	for _, o := range q.st.orders {
		if o.OrderNumber == arg.OrderNumber {
			return store.Order{}, fmt.Errorf("order number %s already exists", arg.OrderNumber)
		}
		if arg.PaymentID != nil && o.PaymentID != nil && *o.PaymentID == *arg.PaymentID {
			return store.Order{}, store.ErrDuplicatePaymentID
		}
	}
	now := q.now()
	o := store.Order{
		ID:                 uuid.New(),
		OrderNumber:        arg.OrderNumber,
		UserID:             arg.UserID,
		Subtotal:           arg.Subtotal,
		Tax:                arg.Tax,
		ShippingCost:       arg.ShippingCost,
		ShippingTax:        arg.ShippingTax,
		DiscountAmount:     arg.DiscountAmount,
		CouponCode:         arg.CouponCode,
		CouponDiscountType: arg.CouponDiscountType,
		Total:              arg.Total,
		Status:             arg.Status,
		PaymentStatus:      arg.PaymentStatus,
		PaymentMethod:      arg.PaymentMethod,
		PaymentID:          arg.PaymentID,
		BasketID:           arg.BasketID,
		ShippingAddress:    append([]byte(nil), arg.ShippingAddress...),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	q.st.orders[o.ID] = o
	return o, nil
}

func (q *queries) CreateOrderItem(_ context.Context, arg store.CreateOrderItemParams) (store.OrderItem, error) {
	if err := q.fail("CreateOrderItem"); err != nil {
		return store.OrderItem{}, err
	}
	if _, ok := q.st.orders[arg.OrderID]; !ok {
		return store.OrderItem{}, store.ErrNotFound
	}
	it := store.OrderItem{
		ID:              uuid.New(),
		OrderID:         arg.OrderID,
		ProductID:       arg.ProductID,
		ProductName:     arg.ProductName,
		ProductImageURL: arg.ProductImageURL,
		Quantity:        arg.Quantity,
		Price:           arg.Price,
	}
	q.st.orderItems[arg.OrderID] = append(q.st.orderItems[arg.OrderID], it)
	return it, nil
}

func (q *queries) GetOrder(_ context.Context, id uuid.UUID) (store.Order, error) {
	if err := q.fail("GetOrder"); err != nil {
		return store.Order{}, err
	}
	o, ok := q.st.orders[id]
	if !ok {
		return store.Order{}, store.ErrNotFound
	}
	return o, nil
}

func (q *queries) LockOrder(ctx context.Context, id uuid.UUID) (store.Order, error) {
	if err := q.fail("LockOrder"); err != nil {
		return store.Order{}, err
	}
	return q.GetOrder(ctx, id)
}

func (q *queries) FindOrderByPaymentID(_ context.Context, paymentID string) (store.Order, error) {
	if err := q.fail("FindOrderByPaymentID"); err != nil {
		return store.Order{}, err
	}
	for _, o := range q.st.orders {
		if o.PaymentID != nil && *o.PaymentID == paymentID {
			return o, nil
		}
	}
	return store.Order{}, store.ErrNotFound
}

func (q *queries) FindOrderByBasketID(_ context.Context, basketID string) (store.Order, error) {
	if err := q.fail("FindOrderByBasketID"); err != nil {
		return store.Order{}, err
	}
	var (
		found store.Order
		ok    bool
	)
	for _, o := range q.st.orders {
		if o.BasketID == nil || *o.BasketID != basketID {
			continue
		}
		if !ok || o.CreatedAt.After(found.CreatedAt) {
			found, ok = o, true
		}
	}
	if !ok {
		return store.Order{}, store.ErrNotFound
	}
	return found, nil
}

func (q *queries) ListOrderItems(_ context.Context, orderID uuid.UUID) ([]store.OrderItem, error) {
	if err := q.fail("ListOrderItems"); err != nil {
		return nil, err
	}
	return append([]store.OrderItem(nil), q.st.orderItems[orderID]...), nil
}

func (q *queries) UpdateOrderPayment(_ context.Context, arg store.UpdateOrderPaymentParams) (store.Order, error) {
	if err := q.fail("UpdateOrderPayment"); err != nil {
		return store.Order{}, err
	}
	o, ok := q.st.orders[arg.ID]
	if !ok {
		return store.Order{}, store.ErrNotFound
	}
	if arg.PaymentID != nil {
		for id, other := range q.st.orders {
			if id != arg.ID && other.PaymentID != nil && *other.PaymentID == *arg.PaymentID {
				return store.Order{}, store.ErrDuplicatePaymentID
			}
		}
		o.PaymentID = arg.PaymentID
	}
	o.Status = arg.Status
	o.PaymentStatus = arg.PaymentStatus
	o.FailureReason = arg.FailureReason
	o.UpdatedAt = q.now()
	q.st.orders[o.ID] = o
	return o, nil
}

func (q *queries) RecordPaymentAnomaly(_ context.Context, arg store.RecordPaymentAnomalyParams) (store.PaymentAnomaly, error) {
	if err := q.fail("RecordPaymentAnomaly"); err != nil {
		return store.PaymentAnomaly{}, err
	}
	a := store.PaymentAnomaly{
		ID:            uuid.New(),
		Kind:          arg.Kind,
		PaymentID:     arg.PaymentID,
		CorrelationID: arg.CorrelationID,
		BasketID:      arg.BasketID,
		OrderID:       arg.OrderID,
		Detail:        arg.Detail,
		CreatedAt:     q.now(),
	}
	q.st.anomalies = append(q.st.anomalies, a)
	return a, nil
}

func (q *queries) InsertDomainEvent(_ context.Context, arg store.InsertDomainEventParams) (store.DomainEvent, error) {
	if err := q.fail("InsertDomainEvent"); err != nil {
		return store.DomainEvent{}, err
	}
	e := store.DomainEvent{
		ID:          uuid.New(),
		Topic:       arg.Topic,
		AggregateID: arg.AggregateID,
		Payload:     append([]byte(nil), arg.Payload...),
		OccurredAt:  q.now(),
	}
	q.st.events = append(q.st.events, e)
	return e, nil
}
