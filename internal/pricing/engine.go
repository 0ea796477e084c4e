package pricing

import "github.com/google/uuid"

// Money represents a monetary value stored in minor units.
type Money = int64

// Item describes a line item used for pricing calculation. UnitPrice is tax-inclusive.
type Item struct {
	ProductID  uuid.UUID
	CategoryID uuid.UUID
	Qty        int
	UnitPrice  Money
}

// Adjustment is the effect of an applied coupon on a quote.
type Adjustment struct {
	Code         string
	Type         string
	Amount       Money
	FreeShipping bool
}

// Discounter computes the adjustment for a cart subtotal and shipping fee.
type Discounter interface {
	Adjust(subtotal, shipping Money) Adjustment
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal    Money  `json:"subtotal"`
	Discount    Money  `json:"discount"`
	Net         Money  `json:"net"`
	Tax         Money  `json:"tax"`
	Shipping    Money  `json:"shipping_cost"`
	ShippingTax Money  `json:"shipping_tax"`
	Total       Money  `json:"total"`
	CouponCode  string `json:"coupon_code,omitempty"`
	CouponType  string `json:"coupon_type,omitempty"`
}

// Pipeline prices a cart with the configured tax and shipping rules.
type Pipeline struct {
	TaxBps      int
	TaxIncluded bool
	Shipping    ShippingSettings
}

// Subtotal sums qty x unit price over the items, ignoring non-positive quantities.
func Subtotal(items []Item) Money {
	var subtotal Money
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		subtotal += Money(it.Qty) * it.UnitPrice
	}
	return subtotal
}

// Quote calculates cart totals. A nil discounter prices the cart as is.
//
// The discount is taken off the tax-inclusive subtotal and tax is then backed
// out of what remains. A free-shipping adjustment removes the shipping fee and
// its tax but leaves the product amount untouched.
func (p Pipeline) Quote(items []Item, d Discounter) Summary {
	subtotal := Subtotal(items)
	var shipping Money
	if hasUnits(items) {
		shipping = p.Shipping.Fee(subtotal)
	}
	if d == nil {
		totals := WithShipping(subtotal, shipping, p.TaxBps, p.TaxIncluded)
		return Summary{
			Subtotal:    subtotal,
			Net:         totals.Net,
			Tax:         totals.Tax,
			Shipping:    totals.ShippingCost,
			ShippingTax: totals.ShippingTax,
			Total:       totals.Total,
		}
	}

	adj := d.Adjust(subtotal, shipping)
	discount := adj.Amount
	if discount < 0 {
		discount = 0
	}
	afterDiscount := subtotal
	if adj.FreeShipping {
		shipping = 0
	} else {
		if discount > subtotal {
			discount = subtotal
		}
		afterDiscount = subtotal - discount
	}
	split := Split(afterDiscount, p.TaxBps, p.TaxIncluded)
	shippingTax := TaxOn(shipping, p.TaxBps)
	return Summary{
		Subtotal:    subtotal,
		Discount:    discount,
		Net:         split.Net,
		Tax:         split.Tax,
		Shipping:    shipping,
		ShippingTax: shippingTax,
		Total:       split.Gross + shipping + shippingTax,
		CouponCode:  adj.Code,
		CouponType:  adj.Type,
	}
}

func hasUnits(items []Item) bool {
	for _, it := range items {
		if it.Qty > 0 {
			return true
		}
	}
	return false
}
