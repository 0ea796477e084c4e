package memory

import (
	"sort"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/store"
)

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p store.Product) store.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.st.products[p.ID] = p
	return p
}

// DeleteProduct removes a product, leaving dangling cart lines behind.
func (s *Store) DeleteProduct(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.products, id)
}

// PutCartItem appends a cart line for the user.
func (s *Store) PutCartItem(userID, productID uuid.UUID, qty int) store.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := store.CartItem{ID: uuid.New(), UserID: userID, ProductID: productID, Quantity: qty, CreatedAt: s.now()}
	s.st.carts[userID] = append(s.st.carts[userID], item)
	return item
}

// PutCoupon inserts or replaces a coupon.
func (s *Store) PutCoupon(c store.CouponRecord) store.CouponRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	s.st.coupons[c.ID] = c
	s.st.couponByCode[c.Code] = c.ID
	return c
}

// Coupon returns the coupon by id.
func (s *Store) Coupon(id uuid.UUID) store.CouponRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.coupons[id]
}

// Stock returns the current stock of a product.
func (s *Store) Stock(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.products[id].Stock
}

// Orders returns every order ordered by creation time.
func (s *Store) Orders() []store.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Order, 0, len(s.st.orders))
	for _, o := range s.st.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// CouponUsages returns every recorded redemption.
func (s *Store) CouponUsages() []store.CouponUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.CouponUsage(nil), s.st.usages...)
}

// Anomalies returns every recorded payment anomaly.
func (s *Store) Anomalies() []store.PaymentAnomaly {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.PaymentAnomaly(nil), s.st.anomalies...)
}

// Events returns every persisted domain event.
func (s *Store) Events() []store.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.DomainEvent(nil), s.st.events...)
}
