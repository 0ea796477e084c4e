// Package coupon validates coupons against carts and computes their discounts.
//
// A coupon's discount is modelled as a closed set of variants, each carrying only
// the fields it needs. FromRecord converts the flat storage row; rows that cannot
// form a valid variant become Misconfigured and are rejected during validation.
package coupon

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/store"
)

// Kind is the stored discount type.
type Kind string

const (
	KindPercentage   Kind = "PERCENTAGE"
	KindFixedAmount  Kind = "FIXED_AMOUNT"
	KindFreeShipping Kind = "FREE_SHIPPING"
	KindBuyXGetY     Kind = "BUY_X_GET_Y"
)

// BuyMode selects the BUY_X_GET_Y flavour.
type BuyMode string

const (
	BuyModeCategory        BuyMode = "CATEGORY"
	BuyModeProduct         BuyMode = "PRODUCT"
	BuyModeConditionalFree BuyMode = "CONDITIONAL_FREE"
)

// Discount is implemented by the discount variants of this package only.
type Discount interface {
	Kind() Kind
	sealed()
}

// Percentage takes Bps/10000 of the subtotal.
type Percentage struct {
	Bps int64
}

// FixedAmount takes a fixed amount off the subtotal.
type FixedAmount struct {
	Amount pricing.Money
}

// FreeShipping waives the shipping fee.
type FreeShipping struct{}

// CategoryBundle grants GetQuantity units of GetCategory for every BuyQuantity
// units of BuyCategory in the cart.
type CategoryBundle struct {
	BuyCategory uuid.UUID
	GetCategory uuid.UUID
	BuyQuantity int
	GetQuantity int
	MaxFree     int
}

// ProductBundle is CategoryBundle keyed on single products.
type ProductBundle struct {
	BuyProduct  uuid.UUID
	GetProduct  uuid.UUID
	BuyQuantity int
	GetQuantity int
	MaxFree     int
}

// ConditionalFree makes every unit of GetCategory free when the cart contains
// TriggerCategory or the subtotal reaches Threshold. At least one gate is set.
type ConditionalFree struct {
	TriggerCategory *uuid.UUID
	Threshold       *pricing.Money
	GetCategory     uuid.UUID
	MaxFree         int
}

// Misconfigured stands in for a row that does not describe a usable discount.
type Misconfigured struct {
	Raw    Kind
	Detail string
}

func (Percentage) Kind() Kind      { return KindPercentage }
func (FixedAmount) Kind() Kind     { return KindFixedAmount }
func (FreeShipping) Kind() Kind    { return KindFreeShipping }
func (CategoryBundle) Kind() Kind  { return KindBuyXGetY }
func (ProductBundle) Kind() Kind   { return KindBuyXGetY }
func (ConditionalFree) Kind() Kind { return KindBuyXGetY }
func (m Misconfigured) Kind() Kind { return m.Raw }

func (Percentage) sealed()      {}
func (FixedAmount) sealed()     {}
func (FreeShipping) sealed()    {}
func (CategoryBundle) sealed()  {}
func (ProductBundle) sealed()   {}
func (ConditionalFree) sealed() {}
func (Misconfigured) sealed()   {}

// Coupon is the evaluated form of a stored coupon.
type Coupon struct {
	ID                 uuid.UUID
	Code               string
	Active             bool
	StartsAt           *time.Time
	EndsAt             *time.Time
	MinimumAmount      *pricing.Money
	TotalUsageLimit    *int
	CustomerUsageLimit *int
	UsedCount          int
	ApplicableProducts []uuid.UUID
	ApplicableUsers    []uuid.UUID
	Discount           Discount
}

// NormalizeCode canonicalises user supplied coupon codes.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// FromRecord converts the flat storage row.
func FromRecord(r store.CouponRecord) Coupon {
	c := Coupon{
		ID:                 r.ID,
		Code:               r.Code,
		Active:             r.IsActive,
		StartsAt:           r.StartsAt,
		EndsAt:             r.EndsAt,
		MinimumAmount:      r.MinimumAmount,
		TotalUsageLimit:    r.TotalUsageLimit,
		CustomerUsageLimit: r.CustomerUsageLimit,
		UsedCount:          r.UsedCount,
		ApplicableProducts: r.ApplicableProducts,
		ApplicableUsers:    r.ApplicableUsers,
	}
	kind := Kind(strings.ToUpper(r.DiscountType))
	switch kind {
	case KindPercentage:
		bps := r.Value * 100
		if r.PercentBps != nil {
			bps = int64(*r.PercentBps)
		}
		c.Discount = Percentage{Bps: bps}
	case KindFixedAmount:
		c.Discount = FixedAmount{Amount: r.Value}
	case KindFreeShipping:
		c.Discount = FreeShipping{}
	case KindBuyXGetY:
		c.Discount = buyXGetYFromRecord(r)
		if _, ok := c.Discount.(ConditionalFree); ok {
			// the minimum is the OR gate threshold, not a precondition
			c.MinimumAmount = nil
		}
	default:
		c.Discount = Misconfigured{Raw: kind, Detail: fmt.Sprintf("unknown discount type %q", r.DiscountType)}
	}
	return c
}

func buyXGetYFromRecord(r store.CouponRecord) Discount {
	if r.BuyMode == nil {
		return Misconfigured{Raw: KindBuyXGetY, Detail: "buy mode missing"}
	}
	maxFree := derefInt(r.MaxFreeQuantity)
	mode := BuyMode(strings.ToUpper(*r.BuyMode))
	switch mode {
	case BuyModeCategory, BuyModeProduct:
		switch {
		case r.BuyTargetID == nil || r.GetTargetID == nil:
			return Misconfigured{Raw: KindBuyXGetY, Detail: "buy or get target missing"}
		case derefInt(r.BuyQuantity) <= 0 || derefInt(r.GetQuantity) <= 0:
			return Misconfigured{Raw: KindBuyXGetY, Detail: "buy or get quantity missing"}
		case *r.BuyTargetID == *r.GetTargetID:
			return Misconfigured{Raw: KindBuyXGetY, Detail: "buy and get targets are identical"}
		}
		if mode == BuyModeCategory {
			return CategoryBundle{
				BuyCategory: *r.BuyTargetID,
				GetCategory: *r.GetTargetID,
				BuyQuantity: *r.BuyQuantity,
				GetQuantity: *r.GetQuantity,
				MaxFree:     maxFree,
			}
		}
		return ProductBundle{
			BuyProduct:  *r.BuyTargetID,
			GetProduct:  *r.GetTargetID,
			BuyQuantity: *r.BuyQuantity,
			GetQuantity: *r.GetQuantity,
			MaxFree:     maxFree,
		}
	case BuyModeConditionalFree:
		switch {
		case r.GetTargetID == nil:
			return Misconfigured{Raw: KindBuyXGetY, Detail: "get target missing"}
		case r.BuyTargetID == nil && r.MinimumAmount == nil:
			return Misconfigured{Raw: KindBuyXGetY, Detail: "neither trigger category nor minimum amount set"}
		case r.BuyTargetID != nil && *r.BuyTargetID == *r.GetTargetID:
			return Misconfigured{Raw: KindBuyXGetY, Detail: "buy and get targets are identical"}
		}
		return ConditionalFree{
			TriggerCategory: r.BuyTargetID,
			Threshold:       r.MinimumAmount,
			GetCategory:     *r.GetTargetID,
			MaxFree:         maxFree,
		}
	default:
		return Misconfigured{Raw: KindBuyXGetY, Detail: fmt.Sprintf("unknown buy mode %q", *r.BuyMode)}
	}
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
