package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/coupon"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/store"
)

// InsufficientStockError names the product that cannot cover the requested quantity.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.ProductName)
}

func (e *InsufficientStockError) Unwrap() error { return store.ErrInsufficientStock }

func (e *InsufficientStockError) ErrorCode() string { return "INSUFFICIENT_STOCK" }

func (e *InsufficientStockError) StatusCode() int { return http.StatusConflict }

func (e *InsufficientStockError) ErrorDetails() any {
	return map[string]any{
		"productId":   e.ProductID,
		"productName": e.ProductName,
		"requested":   e.Requested,
		"available":   e.Available,
	}
}

// CommitInput is everything the ledger needs to turn a priced cart into an order.
type CommitInput struct {
	UserID        uuid.UUID
	Quote         cart.Quote
	Address       json.RawMessage
	PaymentMethod string
	// PaymentID is set when the gateway already confirmed the payment.
	PaymentID string
	BasketID  string
}

// Committed is the result of a successful commit.
type Committed struct {
	Order  store.Order
	Items  []store.OrderItem
	Events []store.DomainEvent
}

// Ledger owns every write that moves stock: order creation, release on payment
// failure and re-reservation on a late success.
type Ledger struct {
	Store  store.Store
	Events *events.Bus
	Now    func() time.Time
	Logger *zerolog.Logger
}

// Commit creates the order, its items, the stock decrement, the coupon
// redemption and the cart clearance in one transaction. Events are published
// only after the transaction commits.
func (l *Ledger) Commit(ctx context.Context, in CommitInput) (Committed, error) {
	if l == nil || l.Store == nil {
		return Committed{}, errors.New("ledger not configured")
	}
	if len(in.Quote.Lines) == 0 {
		return Committed{}, common.Validation("cart is empty", nil)
	}
	if len(in.Address) == 0 || string(in.Address) == "null" {
		return Committed{}, common.Validation("shipping address is required", nil)
	}

	var out Committed
	err := l.Store.WithinTx(ctx, func(q store.Queries) error {
		out = Committed{}
		wanted := aggregate(in.Quote.Lines)
		if err := l.checkStock(ctx, q, wanted); err != nil {
			return err
		}

		var couponRec *store.CouponRecord
		if in.Quote.Coupon != nil {
			rec, err := l.redeemable(ctx, q, in.Quote.Coupon.Coupon.Code, in.UserID)
			if err != nil {
				return err
			}
			couponRec = &rec
		}

		order, err := q.CreateOrder(ctx, l.orderParams(in))
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		items, err := l.createItems(ctx, q, order.ID, in.Quote)
		if err != nil {
			return err
		}
		for _, w := range wanted {
			if err := q.DecrementStock(ctx, w.product.ID, w.qty); err != nil {
				if errors.Is(err, store.ErrInsufficientStock) {
					obs.CountStockConflict()
					return &InsufficientStockError{ProductID: w.product.ID, ProductName: w.product.Name, Requested: w.qty}
				}
				return fmt.Errorf("decrement stock: %w", err)
			}
		}
		if err := q.ClearCart(ctx, in.UserID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		if couponRec != nil {
			if err := q.IncrementCouponUsage(ctx, couponRec.ID); err != nil {
				return fmt.Errorf("increment coupon usage: %w", err)
			}
			if err := q.RecordCouponUsage(ctx, store.CouponUsage{CouponID: couponRec.ID, UserID: in.UserID, OrderID: order.ID}); err != nil {
				return fmt.Errorf("record coupon usage: %w", err)
			}
		}

		payload := orderPayload(order)
		created, err := l.Events.Record(ctx, q, events.TopicOrderCreated, order.ID, payload)
		if err != nil {
			return err
		}
		out.Events = append(out.Events, created)
		if order.PaymentStatus == store.PaymentStatusCompleted {
			paid, err := l.Events.Record(ctx, q, events.TopicOrderPaid, order.ID, payload)
			if err != nil {
				return err
			}
			out.Events = append(out.Events, paid)
		}
		out.Order = order
		out.Items = items
		return nil
	})
	if err != nil {
		return Committed{}, err
	}
	l.publish(ctx, out.Events...)
	return out, nil
}

// ReleaseStock returns the units of every item of the order to the catalog.
// Products removed from the catalog since the order was placed are skipped.
func (l *Ledger) ReleaseStock(ctx context.Context, q store.Queries, orderID uuid.UUID) error {
	items, err := q.ListOrderItems(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list order items: %w", err)
	}
	for _, it := range items {
		if it.ProductID == nil || it.Quantity <= 0 {
			continue
		}
		if err := q.IncrementStock(ctx, *it.ProductID, it.Quantity); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return fmt.Errorf("restore stock: %w", err)
		}
	}
	return nil
}

// ReserveStock takes the units of every item of the order again, paid and free
// rows together.
func (l *Ledger) ReserveStock(ctx context.Context, q store.Queries, orderID uuid.UUID) error {
	items, err := q.ListOrderItems(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list order items: %w", err)
	}
	type need struct {
		name string
		qty  int
	}
	needs := map[uuid.UUID]*need{}
	var ids []uuid.UUID
	for _, it := range items {
		if it.ProductID == nil || it.Quantity <= 0 {
			continue
		}
		n, ok := needs[*it.ProductID]
		if !ok {
			n = &need{name: it.ProductName}
			needs[*it.ProductID] = n
			ids = append(ids, *it.ProductID)
		}
		n.qty += it.Quantity
	}
	sortIDs(ids)
	locked, err := q.LockProducts(ctx, ids)
	if err != nil {
		return fmt.Errorf("lock products: %w", err)
	}
	stock := make(map[uuid.UUID]int, len(locked))
	for _, p := range locked {
		stock[p.ID] = p.Stock
	}
	for _, id := range ids {
		n := needs[id]
		available, ok := stock[id]
		if !ok || available < n.qty {
			obs.CountStockConflict()
			return &InsufficientStockError{ProductID: id, ProductName: n.name, Requested: n.qty, Available: available}
		}
		if err := q.DecrementStock(ctx, id, n.qty); err != nil {
			if errors.Is(err, store.ErrInsufficientStock) {
				obs.CountStockConflict()
				return &InsufficientStockError{ProductID: id, ProductName: n.name, Requested: n.qty, Available: available}
			}
			return fmt.Errorf("reserve stock: %w", err)
		}
	}
	return nil
}

// MarkFailed moves a pending order to FAILED and gives its stock back. Orders
// that already left PENDING are returned unchanged with a nil event.
func (l *Ledger) MarkFailed(ctx context.Context, q store.Queries, order store.Order, reason string) (store.Order, *store.DomainEvent, error) {
	if order.PaymentStatus != store.PaymentStatusPending {
		return order, nil, nil
	}
	if err := l.ReleaseStock(ctx, q, order.ID); err != nil {
		return store.Order{}, nil, err
	}
	var reasonPtr *string
	if r := strings.TrimSpace(reason); r != "" {
		reasonPtr = &r
	}
	updated, err := q.UpdateOrderPayment(ctx, store.UpdateOrderPaymentParams{
		ID:            order.ID,
		Status:        store.OrderStatusPending,
		PaymentStatus: store.PaymentStatusFailed,
		FailureReason: reasonPtr,
	})
	if err != nil {
		return store.Order{}, nil, fmt.Errorf("mark order failed: %w", err)
	}
	ev, err := l.Events.Record(ctx, q, events.TopicPaymentFailed, updated.ID, map[string]any{
		"orderId":     updated.ID,
		"orderNumber": updated.OrderNumber,
		"userId":      updated.UserID,
		"reason":      reason,
	})
	if err != nil {
		return store.Order{}, nil, err
	}
	return updated, &ev, nil
}

// FailIntent fails an order whose payment intent could not be opened.
func (l *Ledger) FailIntent(ctx context.Context, orderID uuid.UUID, reason string) (store.Order, error) {
	var (
		order store.Order
		ev    *store.DomainEvent
	)
	err := l.Store.WithinTx(ctx, func(q store.Queries) error {
		locked, err := q.LockOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		order, ev, err = l.MarkFailed(ctx, q, locked, reason)
		return err
	})
	if err != nil {
		return store.Order{}, err
	}
	if ev != nil {
		l.publish(ctx, *ev)
	}
	return order, nil
}

// Publish forwards events recorded inside a committed transaction. Notifier
// failures are logged; the events themselves are already persisted.
func (l *Ledger) Publish(ctx context.Context, evs ...store.DomainEvent) {
	l.publish(ctx, evs...)
}

func (l *Ledger) publish(ctx context.Context, evs ...store.DomainEvent) {
	if len(evs) == 0 {
		return
	}
	if err := l.Events.Publish(ctx, evs...); err != nil {
		l.logger(ctx).Warn().Err(err).Int("events", len(evs)).Msg("domain event publish failed")
	}
}

func (l *Ledger) logger(ctx context.Context) *zerolog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return zerolog.Ctx(ctx)
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

type wantedStock struct {
	product store.Product
	qty     int
}

func aggregate(lines []cart.Line) []wantedStock {
	index := map[uuid.UUID]int{}
	var out []wantedStock
	for _, ln := range lines {
		if ln.Quantity <= 0 {
			continue
		}
		if i, ok := index[ln.Product.ID]; ok {
			out[i].qty += ln.Quantity
			continue
		}
		index[ln.Product.ID] = len(out)
		out = append(out, wantedStock{product: ln.Product, qty: ln.Quantity})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].product.ID.String() < out[j].product.ID.String() })
	return out
}

func (l *Ledger) checkStock(ctx context.Context, q store.Queries, wanted []wantedStock) error {
	ids := make([]uuid.UUID, 0, len(wanted))
	for _, w := range wanted {
		ids = append(ids, w.product.ID)
	}
	locked, err := q.LockProducts(ctx, ids)
	if err != nil {
		return fmt.Errorf("lock products: %w", err)
	}
	byID := make(map[uuid.UUID]store.Product, len(locked))
	for _, p := range locked {
		byID[p.ID] = p
	}
	for _, w := range wanted {
		p, ok := byID[w.product.ID]
		if !ok {
			return common.Validation("product no longer available", map[string]any{"productId": w.product.ID, "productName": w.product.Name})
		}
		if p.Stock < w.qty {
			obs.CountStockConflict()
			return &InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Requested: w.qty, Available: p.Stock}
		}
	}
	return nil
}

func (l *Ledger) redeemable(ctx context.Context, q store.Queries, code string, userID uuid.UUID) (store.CouponRecord, error) {
	rec, err := q.LockCouponByCode(ctx, code)
	if err != nil {
		return store.CouponRecord{}, fmt.Errorf("lock coupon: %w", err)
	}
	c := coupon.FromRecord(rec)
	var used int
	if c.CustomerUsageLimit != nil {
		used, err = q.CountCouponUsageByUser(ctx, rec.ID, userID)
		if err != nil {
			return store.CouponRecord{}, fmt.Errorf("count coupon usage: %w", err)
		}
	}
	if err := c.CheckRedemption(used); err != nil {
		if rej, ok := coupon.AsRejection(err); ok {
			obs.CountCouponRejection(string(rej.Reason))
		}
		return store.CouponRecord{}, err
	}
	return rec, nil
}

func (l *Ledger) orderParams(in CommitInput) store.CreateOrderParams {
	sum := in.Quote.Summary
	params := store.CreateOrderParams{
		OrderNumber:     OrderNumber(l.now()),
		UserID:          in.UserID,
		Subtotal:        sum.Subtotal,
		Tax:             sum.Tax,
		ShippingCost:    sum.Shipping,
		ShippingTax:     sum.ShippingTax,
		DiscountAmount:  sum.Discount,
		Total:           sum.Total,
		Status:          store.OrderStatusPending,
		PaymentStatus:   store.PaymentStatusPending,
		PaymentMethod:   in.PaymentMethod,
		ShippingAddress: in.Address,
	}
	if in.Quote.Coupon != nil {
		code := in.Quote.Coupon.Coupon.Code
		kind := string(in.Quote.Coupon.Coupon.Discount.Kind())
		params.CouponCode = &code
		params.CouponDiscountType = &kind
	}
	if id := strings.TrimSpace(in.PaymentID); id != "" {
		params.PaymentID = &id
		params.Status = store.OrderStatusProcessing
		params.PaymentStatus = store.PaymentStatusCompleted
	}
	if b := strings.TrimSpace(in.BasketID); b != "" {
		params.BasketID = &b
	}
	return params
}

// createItems writes one paid row and one zero-priced row per product as needed.
func (l *Ledger) createItems(ctx context.Context, q store.Queries, orderID uuid.UUID, quote cart.Quote) ([]store.OrderItem, error) {
	free := coupon.FreeQuantities(quote.FreeItems)
	items := make([]store.OrderItem, 0, len(quote.Lines))
	for _, ln := range quote.Lines {
		if ln.Quantity <= 0 {
			continue
		}
		freeQty := free[ln.Product.ID]
		if freeQty > ln.Quantity {
			freeQty = ln.Quantity
		}
		free[ln.Product.ID] -= freeQty
		productID := ln.Product.ID
		rows := []struct {
			qty   int
			price int64
		}{
			{qty: ln.Quantity - freeQty, price: ln.Product.Price},
			{qty: freeQty, price: 0},
		}
		for _, row := range rows {
			if row.qty <= 0 {
				continue
			}
			it, err := q.CreateOrderItem(ctx, store.CreateOrderItemParams{
				OrderID:         orderID,
				ProductID:       &productID,
				ProductName:     ln.Product.Name,
				ProductImageURL: ln.Product.ImageURL,
				Quantity:        row.qty,
				Price:           row.price,
			})
			if err != nil {
				return nil, fmt.Errorf("create order item: %w", err)
			}
			items = append(items, it)
		}
	}
	return items, nil
}

// OrderNumber formats ORD-YYYYMMDDHHMMSS-XXXXXX.
func OrderNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", at.UTC().Format("20060102150405"), suffix)
}

func orderPayload(o store.Order) map[string]any {
	payload := map[string]any{
		"orderId":       o.ID,
		"orderNumber":   o.OrderNumber,
		"userId":        o.UserID,
		"total":         o.Total,
		"paymentMethod": o.PaymentMethod,
		"paymentStatus": o.PaymentStatus,
	}
	if o.PaymentID != nil {
		payload["paymentId"] = *o.PaymentID
	}
	if o.CouponCode != nil {
		payload["couponCode"] = *o.CouponCode
	}
	return payload
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
