package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/coupon"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/store"
)

// Querier captures the store methods required to price a user's cart.
type Querier interface {
	GetCart(ctx context.Context, userID uuid.UUID) ([]store.CartItem, error)
	GetProduct(ctx context.Context, id uuid.UUID) (store.Product, error)
}

// Line is a cart item joined with the product it refers to.
type Line struct {
	Product  store.Product
	Quantity int
}

// Quote is a priced cart.
type Quote struct {
	Lines     []Line
	Items     []pricing.Item
	Summary   pricing.Summary
	Coupon    *coupon.Applied
	FreeItems []coupon.FreeItem

	// Unavailable products are skipped when pricing.
	Unavailable []uuid.UUID
}

// Service prices carts.
type Service struct {
	Q       Querier
	Coupons *coupon.Service
	Pricing pricing.Pipeline
}

// Contents is a loaded cart. Unavailable lists the products that are still in
// the cart but no longer in the catalog.
type Contents struct {
	Lines       []Line
	Unavailable []uuid.UUID
}

// Load joins the user's cart items with their products.
func (s *Service) Load(ctx context.Context, userID uuid.UUID) (Contents, error) {
	if s == nil || s.Q == nil {
		return Contents{}, errors.New("cart service not configured")
	}
	items, err := s.Q.GetCart(ctx, userID)
	if err != nil {
		return Contents{}, fmt.Errorf("load cart: %w", err)
	}
	c := Contents{Lines: make([]Line, 0, len(items))}
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		product, err := s.Q.GetProduct(ctx, it.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			c.Unavailable = append(c.Unavailable, it.ProductID)
			continue
		}
		if err != nil {
			return Contents{}, fmt.Errorf("load product %s: %w", it.ProductID, err)
		}
		c.Lines = append(c.Lines, Line{Product: product, Quantity: it.Quantity})
	}
	return c, nil
}

// Lines loads the cart for ordering; any unavailable product rejects it.
func (s *Service) Lines(ctx context.Context, userID uuid.UUID) ([]Line, error) {
	c, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(c.Unavailable) > 0 {
		return nil, common.Validation("product no longer available", map[string]any{"productIds": c.Unavailable})
	}
	return c.Lines, nil
}

// PricingItems converts cart lines to pricing items.
func PricingItems(lines []Line) []pricing.Item {
	items := make([]pricing.Item, 0, len(lines))
	for _, l := range lines {
		items = append(items, pricing.Item{
			ProductID:  l.Product.ID,
			CategoryID: l.Product.CategoryID,
			Qty:        l.Quantity,
			UnitPrice:  l.Product.Price,
		})
	}
	return items
}

// Quote prices the user's cart. An empty coupon code prices the cart without a
// discount; a code that does not apply yields a *coupon.Rejection.
func (s *Service) Quote(ctx context.Context, userID uuid.UUID, couponCode string) (Quote, error) {
	c, err := s.Load(ctx, userID)
	if err != nil {
		return Quote{}, err
	}
	q, err := s.Price(ctx, userID, c.Lines, couponCode)
	if err != nil {
		return Quote{}, err
	}
	q.Unavailable = c.Unavailable
	return q, nil
}

// Price prices already loaded lines.
func (s *Service) Price(ctx context.Context, userID uuid.UUID, lines []Line, couponCode string) (Quote, error) {
	items := PricingItems(lines)
	q := Quote{Lines: lines, Items: items}
	var discounter pricing.Discounter
	if strings.TrimSpace(couponCode) != "" {
		if s.Coupons == nil {
			return Quote{}, errors.New("coupon service not configured")
		}
		applied, err := s.Coupons.Evaluate(ctx, couponCode, userID, items)
		if err != nil {
			return Quote{}, err
		}
		q.Coupon = &applied
		q.FreeItems = applied.FreeItems()
		discounter = applied
	}
	q.Summary = s.Pricing.Quote(items, discounter)
	return q, nil
}
