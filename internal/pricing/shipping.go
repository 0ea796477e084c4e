package pricing

// ShippingSettings configures the flat shipping fee and the subtotal from which
// shipping becomes free.
type ShippingSettings struct {
	FreeThreshold Money
	FlatFee       Money
}

// Fee returns the flat fee when subtotal is below the free threshold, zero otherwise.
func (s ShippingSettings) Fee(subtotal Money) Money {
	if s.FlatFee <= 0 {
		return 0
	}
	if subtotal < s.FreeThreshold {
		return s.FlatFee
	}
	return 0
}
