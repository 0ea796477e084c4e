package pricing

import "github.com/shopspring/decimal"

const bpsDenominator = 10000

// Breakdown splits an amount into its net and tax components.
type Breakdown struct {
	Net   Money `json:"net"`
	Tax   Money `json:"tax"`
	Gross Money `json:"gross"`
}

// Totals is a product amount combined with a net shipping fee.
type Totals struct {
	Subtotal     Money `json:"subtotal"`
	Net          Money `json:"net"`
	Tax          Money `json:"tax"`
	ShippingCost Money `json:"shipping_cost"`
	ShippingTax  Money `json:"shipping_tax"`
	Total        Money `json:"total"`
}

// Split derives net and tax from amount. When taxIncluded is set the amount is
// treated as gross and the tax is backed out of it; otherwise tax is added on top.
// Rounding is half away from zero to the minor unit and happens once.
func Split(amount Money, rateBps int, taxIncluded bool) Breakdown {
	if rateBps <= 0 || amount == 0 {
		return Breakdown{Net: amount, Gross: amount}
	}
	if taxIncluded {
		net := decimal.NewFromInt(amount).
			Div(decimal.NewFromInt(1).Add(rate(int64(rateBps)))).
			Round(0).
			IntPart()
		return Breakdown{Net: net, Tax: amount - net, Gross: amount}
	}
	tax := TaxOn(amount, rateBps)
	return Breakdown{Net: amount, Tax: tax, Gross: amount + tax}
}

// TaxOn returns the tax due on a net amount.
func TaxOn(amount Money, rateBps int) Money {
	return Portion(amount, int64(rateBps))
}

// Portion returns bps/10000 of amount, rounded half away from zero.
func Portion(amount Money, bps int64) Money {
	if bps <= 0 || amount == 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(rate(bps)).Round(0).IntPart()
}

// WithShipping combines a product amount with a shipping fee. Shipping is quoted
// net, so its tax is always added on top regardless of taxIncluded.
func WithShipping(subtotal, shippingFee Money, rateBps int, taxIncluded bool) Totals {
	split := Split(subtotal, rateBps, taxIncluded)
	shippingTax := TaxOn(shippingFee, rateBps)
	return Totals{
		Subtotal:     subtotal,
		Net:          split.Net,
		Tax:          split.Tax,
		ShippingCost: shippingFee,
		ShippingTax:  shippingTax,
		Total:        split.Gross + shippingFee + shippingTax,
	}
}

func rate(bps int64) decimal.Decimal {
	return decimal.New(bps, 0).Div(decimal.New(bpsDenominator, 0))
}
