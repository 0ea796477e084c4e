// Package memory is an in-process store.Store used by unit tests and local runs.
// Transactions hold a single mutex and work on a copy of the state that replaces
// the committed state only when the callback succeeds.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/store"
)

type state struct {
	products     map[uuid.UUID]store.Product
	carts        map[uuid.UUID][]store.CartItem
	coupons      map[uuid.UUID]store.CouponRecord
	couponByCode map[string]uuid.UUID
	usages       []store.CouponUsage
	orders       map[uuid.UUID]store.Order
	orderItems   map[uuid.UUID][]store.OrderItem
	anomalies    []store.PaymentAnomaly
	events       []store.DomainEvent
}

func newState() *state {
	return &state{
		products:     map[uuid.UUID]store.Product{},
		carts:        map[uuid.UUID][]store.CartItem{},
		coupons:      map[uuid.UUID]store.CouponRecord{},
		couponByCode: map[string]uuid.UUID{},
		orders:       map[uuid.UUID]store.Order{},
		orderItems:   map[uuid.UUID][]store.OrderItem{},
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.carts {
		out.carts[k] = append([]store.CartItem(nil), v...)
	}
	for k, v := range s.coupons {
		out.coupons[k] = v
	}
	for k, v := range s.couponByCode {
		out.couponByCode[k] = v
	}
	for k, v := range s.orders {
		out.orders[k] = v
	}
	for k, v := range s.orderItems {
		out.orderItems[k] = append([]store.OrderItem(nil), v...)
	}
	out.usages = append([]store.CouponUsage(nil), s.usages...)
	out.anomalies = append([]store.PaymentAnomaly(nil), s.anomalies...)
	out.events = append([]store.DomainEvent(nil), s.events...)
	return out
}

// Store implements store.Store in memory.
type Store struct {
	mu       sync.Mutex
	st       *state
	failures map[string]error

	// Now stamps created rows. Defaults to time.Now.
	Now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), failures: map[string]error{}}
}

// FailOn makes every subsequent call of the named operation return err until
// cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// WithinTx implements store.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(q store.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(s.queries(work)); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) queries(st *state) *queries {
	return &queries{st: st, now: s.now, failures: s.failures}
}

func (s *Store) do(fn func(q *queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.queries(s.st))
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (p store.Product, err error) {
	err = s.do(func(q *queries) error { p, err = q.GetProduct(ctx, id); return err })
	return p, err
}

func (s *Store) LockProducts(ctx context.Context, ids []uuid.UUID) (out []store.Product, err error) {
	err = s.do(func(q *queries) error { out, err = q.LockProducts(ctx, ids); return err })
	return out, err
}

func (s *Store) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	return s.do(func(q *queries) error { return q.DecrementStock(ctx, id, qty) })
}

func (s *Store) IncrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	return s.do(func(q *queries) error { return q.IncrementStock(ctx, id, qty) })
}

func (s *Store) GetCart(ctx context.Context, userID uuid.UUID) (out []store.CartItem, err error) {
	err = s.do(func(q *queries) error { out, err = q.GetCart(ctx, userID); return err })
	return out, err
}

func (s *Store) ClearCart(ctx context.Context, userID uuid.UUID) error {
	return s.do(func(q *queries) error { return q.ClearCart(ctx, userID) })
}

func (s *Store) GetCouponByCode(ctx context.Context, code string) (c store.CouponRecord, err error) {
	err = s.do(func(q *queries) error { c, err = q.GetCouponByCode(ctx, code); return err })
	return c, err
}

func (s *Store) LockCouponByCode(ctx context.Context, code string) (c store.CouponRecord, err error) {
	err = s.do(func(q *queries) error { c, err = q.LockCouponByCode(ctx, code); return err })
	return c, err
}

func (s *Store) CountCouponUsageByUser(ctx context.Context, couponID, userID uuid.UUID) (n int, err error) {
	err = s.do(func(q *queries) error { n, err = q.CountCouponUsageByUser(ctx, couponID, userID); return err })
	return n, err
}

func (s *Store) IncrementCouponUsage(ctx context.Context, couponID uuid.UUID) error {
	return s.do(func(q *queries) error { return q.IncrementCouponUsage(ctx, couponID) })
}

func (s *Store) RecordCouponUsage(ctx context.Context, usage store.CouponUsage) error {
	return s.do(func(q *queries) error { return q.RecordCouponUsage(ctx, usage) })
}

func (s *Store) CreateOrder(ctx context.Context, arg store.CreateOrderParams) (o store.Order, err error) {
	err = s.do(func(q *queries) error { o, err = q.CreateOrder(ctx, arg); return err })
	return o, err
}

func (s *Store) CreateOrderItem(ctx context.Context, arg store.CreateOrderItemParams) (it store.OrderItem, err error) {
	err = s.do(func(q *queries) error { it, err = q.CreateOrderItem(ctx, arg); return err })
	return it, err
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (o store.Order, err error) {
	err = s.do(func(q *queries) error { o, err = q.GetOrder(ctx, id); return err })
	return o, err
}

func (s *Store) LockOrder(ctx context.Context, id uuid.UUID) (o store.Order, err error) {
	err = s.do(func(q *queries) error { o, err = q.LockOrder(ctx, id); return err })
	return o, err
}

func (s *Store) FindOrderByPaymentID(ctx context.Context, paymentID string) (o store.Order, err error) {
	err = s.do(func(q *queries) error { o, err = q.FindOrderByPaymentID(ctx, paymentID); return err })
	return o, err
}

func (s *Store) FindOrderByBasketID(ctx context.Context, basketID string) (o store.Order, err error) {
	err = s.do(func(q *queries) error { o, err = q.FindOrderByBasketID(ctx, basketID); return err })
	return o, err
}

func (s *Store) ListOrderItems(ctx context.Context, orderID uuid.UUID) (out []store.OrderItem, err error) {
	err = s.do(func(q *queries) error { out, err = q.ListOrderItems(ctx, orderID); return err })
	return out, err
}

func (s *Store) UpdateOrderPayment(ctx context.Context, arg store.UpdateOrderPaymentParams) (o store.Order, err error) {
	err = s.do(func(q *queries) error { o, err = q.UpdateOrderPayment(ctx, arg); return err })
	return o, err
}

func (s *Store) RecordPaymentAnomaly(ctx context.Context, arg store.RecordPaymentAnomalyParams) (a store.PaymentAnomaly, err error) {
	err = s.do(func(q *queries) error { a, err = q.RecordPaymentAnomaly(ctx, arg); return err })
	return a, err
}

func (s *Store) InsertDomainEvent(ctx context.Context, arg store.InsertDomainEventParams) (e store.DomainEvent, err error) {
	err = s.do(func(q *queries) error { e, err = q.InsertDomainEvent(ctx, arg); return err })
	return e, err
}
