package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/store"
)

// Querier captures the store methods required by the coupon service.
type Querier interface {
	GetCouponByCode(ctx context.Context, code string) (store.CouponRecord, error)
	CountCouponUsageByUser(ctx context.Context, couponID, userID uuid.UUID) (int, error)
}

// Service resolves coupon codes and validates them against carts.
type Service struct {
	Q   Querier
	Now func() time.Time
}

// Evaluate loads the coupon by code and validates it for the user's cart. The
// returned Applied can be passed to pricing.Pipeline.Quote.
func (s *Service) Evaluate(ctx context.Context, code string, userID uuid.UUID, items []pricing.Item) (Applied, error) {
	if s == nil || s.Q == nil {
		return Applied{}, errors.New("coupon service not configured")
	}
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Applied{}, s.rejected(reject(normalized, ReasonNotFound))
	}
	rec, err := s.Q.GetCouponByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Applied{}, s.rejected(reject(normalized, ReasonNotFound))
		}
		return Applied{}, fmt.Errorf("get coupon: %w", err)
	}
	c := FromRecord(rec)

	var redemptions int
	if c.CustomerUsageLimit != nil {
		redemptions, err = s.Q.CountCouponUsageByUser(ctx, c.ID, userID)
		if err != nil {
			return Applied{}, fmt.Errorf("count coupon usage: %w", err)
		}
	}
	in := Input{
		Subtotal:        pricing.Subtotal(items),
		Items:           items,
		UserID:          userID,
		Now:             s.now(),
		UserRedemptions: redemptions,
	}
	if err := c.Validate(in); err != nil {
		return Applied{}, s.rejected(err)
	}
	return Applied{Coupon: c, Items: items}, nil
}

func (s *Service) rejected(err error) error {
	if rej, ok := AsRejection(err); ok {
		obs.CountCouponRejection(string(rej.Reason))
	}
	return err
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
