package pricing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fixedDiscount struct {
	amount Money
	free   bool
}

func (f fixedDiscount) Adjust(subtotal, shipping Money) Adjustment {
	if f.free {
		return Adjustment{Code: "SHIP", Type: "FREE_SHIPPING", Amount: shipping, FreeShipping: true}
	}
	return Adjustment{Code: "SAVE", Type: "FIXED_AMOUNT", Amount: f.amount}
}

func TestQuoteFixedAmountScenario(t *testing.T) {
	p := Pipeline{TaxBps: 2000, TaxIncluded: true, Shipping: ShippingSettings{FreeThreshold: 500_000, FlatFee: 5_000}}
	items := []Item{{ProductID: uuid.New(), Qty: 1, UnitPrice: 100_000}}

	sum := p.Quote(items, fixedDiscount{amount: 20_000})

	require.Equal(t, Money(100_000), sum.Subtotal)
	require.Equal(t, Money(20_000), sum.Discount)
	require.Equal(t, Money(66_667), sum.Net)
	require.Equal(t, Money(13_333), sum.Tax)
	require.Equal(t, Money(5_000), sum.Shipping)
	require.Equal(t, Money(1_000), sum.ShippingTax)
	require.Equal(t, Money(86_000), sum.Total)
	require.Equal(t, "SAVE", sum.CouponCode)
}

func TestQuoteWithoutCoupon(t *testing.T) {
	p := Pipeline{TaxBps: 2000, TaxIncluded: true, Shipping: ShippingSettings{FreeThreshold: 50_000, FlatFee: 5_000}}
	items := []Item{{Qty: 2, UnitPrice: 10_000}, {Qty: 0, UnitPrice: 99_999}}

	sum := p.Quote(items, nil)

	require.Equal(t, Money(20_000), sum.Subtotal)
	require.Zero(t, sum.Discount)
	require.Equal(t, Money(5_000), sum.Shipping)
	require.Equal(t, Money(26_000), sum.Total)
}

func TestQuoteFreeShippingKeepsProductAmount(t *testing.T) {
	p := Pipeline{TaxBps: 2000, TaxIncluded: true, Shipping: ShippingSettings{FreeThreshold: 50_000, FlatFee: 5_000}}
	items := []Item{{Qty: 1, UnitPrice: 12_000}}

	sum := p.Quote(items, fixedDiscount{free: true})

	require.Equal(t, Money(5_000), sum.Discount)
	require.Zero(t, sum.Shipping)
	require.Zero(t, sum.ShippingTax)
	require.Equal(t, Money(12_000), sum.Total)
	require.Equal(t, Money(10_000), sum.Net)
}

func TestQuoteFreeShippingMayExceedSubtotal(t *testing.T) {
	p := Pipeline{TaxBps: 2000, TaxIncluded: true, Shipping: ShippingSettings{FreeThreshold: 50_000, FlatFee: 5_000}}
	sum := p.Quote([]Item{{Qty: 1, UnitPrice: 1_200}}, fixedDiscount{free: true})

	require.Equal(t, Money(1_200), sum.Subtotal)
	require.Equal(t, Money(5_000), sum.Discount)
	require.Equal(t, Money(1_200), sum.Total)
}

func TestQuoteClampsDiscountToSubtotal(t *testing.T) {
	p := Pipeline{TaxBps: 1100, TaxIncluded: true, Shipping: ShippingSettings{FreeThreshold: 100_000, FlatFee: 2_000}}
	sum := p.Quote([]Item{{Qty: 1, UnitPrice: 3_000}}, fixedDiscount{amount: 9_000})

	require.Equal(t, Money(3_000), sum.Discount)
	require.Zero(t, sum.Net)
	require.Zero(t, sum.Tax)
	require.Equal(t, Money(2_000+220), sum.Total)
}

func TestQuoteEmptyCartHasNoShipping(t *testing.T) {
	p := Pipeline{TaxBps: 2000, TaxIncluded: true, Shipping: ShippingSettings{FreeThreshold: 50_000, FlatFee: 5_000}}
	sum := p.Quote(nil, nil)
	require.Equal(t, Summary{}, sum)
}

func TestQuoteConservation(t *testing.T) {
	rates := []int{0, 700, 1100, 2000, 2500}
	prices := []Money{1, 99, 333, 1_999, 10_001, 123_457}
	discounts := []Money{0, 1, 50, 777, 5_000, 1_000_000}
	for _, rate := range rates {
		for _, included := range []bool{true, false} {
			p := Pipeline{TaxBps: rate, TaxIncluded: included, Shipping: ShippingSettings{FreeThreshold: 20_000, FlatFee: 1_499}}
			for _, price := range prices {
				for _, d := range discounts {
					sum := p.Quote([]Item{{Qty: 3, UnitPrice: price}}, fixedDiscount{amount: d})
					after := sum.Subtotal - sum.Discount
					require.GreaterOrEqual(t, sum.Discount, Money(0))
					require.LessOrEqual(t, sum.Discount, sum.Subtotal)
					require.Equal(t, sum.Net+sum.Tax+sum.Shipping+sum.ShippingTax, sum.Total)
					if included {
						require.Equal(t, after+sum.Shipping+sum.ShippingTax, sum.Total)
					} else {
						require.Equal(t, after+sum.Tax+sum.Shipping+sum.ShippingTax, sum.Total)
					}
				}
			}
		}
	}
}
