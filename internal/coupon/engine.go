package coupon

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// Input is the cart context a coupon is validated against.
type Input struct {
	Subtotal        pricing.Money
	Items           []pricing.Item
	UserID          uuid.UUID
	Now             time.Time
	UserRedemptions int
}

// FreeItem is a number of units of one product granted for free.
type FreeItem struct {
	ProductID uuid.UUID     `json:"product_id"`
	Quantity  int           `json:"quantity"`
	UnitPrice pricing.Money `json:"unit_price"`
}

// Validate checks the coupon against the cart and reports the first failing rule.
func (c Coupon) Validate(in Input) error {
	if !c.Active {
		return reject(c.Code, ReasonInactive)
	}
	if c.StartsAt != nil && in.Now.Before(*c.StartsAt) {
		return reject(c.Code, ReasonNotStarted)
	}
	if c.EndsAt != nil && in.Now.After(*c.EndsAt) {
		return reject(c.Code, ReasonExpired)
	}
	if c.MinimumAmount != nil && in.Subtotal < *c.MinimumAmount {
		return reject(c.Code, ReasonBelowMinimum)
	}
	if len(c.ApplicableProducts) > 0 && !cartHasAnyProduct(in.Items, c.ApplicableProducts) {
		return reject(c.Code, ReasonProductNotApplicable)
	}
	if len(c.ApplicableUsers) > 0 && !containsID(c.ApplicableUsers, in.UserID) {
		return reject(c.Code, ReasonUserNotApplicable)
	}
	if err := c.CheckRedemption(in.UserRedemptions); err != nil {
		return err
	}

	switch d := c.Discount.(type) {
	case nil, Misconfigured:
		return reject(c.Code, ReasonMisconfigured)
	case CategoryBundle:
		if units(in.Items, inCategory(d.BuyCategory)) < d.BuyQuantity {
			return reject(c.Code, ReasonBuyConditionUnmet)
		}
		if units(in.Items, inCategory(d.GetCategory)) == 0 {
			return reject(c.Code, ReasonGetConditionUnmet)
		}
	case ProductBundle:
		if units(in.Items, isProduct(d.BuyProduct)) < d.BuyQuantity {
			return reject(c.Code, ReasonBuyConditionUnmet)
		}
		if units(in.Items, isProduct(d.GetProduct)) == 0 {
			return reject(c.Code, ReasonGetConditionUnmet)
		}
	case ConditionalFree:
		if !d.gateOpen(in.Items, in.Subtotal) {
			return reject(c.Code, ReasonBuyConditionUnmet)
		}
		if units(in.Items, inCategory(d.GetCategory)) == 0 {
			return reject(c.Code, ReasonGetConditionUnmet)
		}
	}
	return nil
}

// CheckRedemption applies the total and per-customer usage limits. The ledger
// calls it again with the counters read under the coupon row lock.
func (c Coupon) CheckRedemption(userRedemptions int) error {
	if c.TotalUsageLimit != nil && c.UsedCount >= *c.TotalUsageLimit {
		return reject(c.Code, ReasonUsageLimitReached)
	}
	if c.CustomerUsageLimit != nil && userRedemptions >= *c.CustomerUsageLimit {
		return reject(c.Code, ReasonCustomerLimitReached)
	}
	return nil
}

// Amount returns the discount for the cart. It never errors; a coupon that
// grants nothing yields zero.
func (c Coupon) Amount(subtotal, shipping pricing.Money, items []pricing.Item) pricing.Money {
	var amount pricing.Money
	switch d := c.Discount.(type) {
	case Percentage:
		if d.Bps <= 0 {
			return 0
		}
		amount = pricing.Portion(subtotal, d.Bps)
	case FixedAmount:
		amount = d.Amount
	case FreeShipping:
		if shipping < 0 {
			return 0
		}
		return shipping
	case CategoryBundle, ProductBundle, ConditionalFree:
		for _, fi := range c.FreeItems(items, subtotal) {
			amount += pricing.Money(fi.Quantity) * fi.UnitPrice
		}
	default:
		return 0
	}
	if amount > subtotal {
		amount = subtotal
	}
	if amount < 0 {
		return 0
	}
	return amount
}

// FreeItems lists the units the coupon makes free, cheapest first. The sum of
// quantity x unit price over the result is the BUY_X_GET_Y discount.
func (c Coupon) FreeItems(items []pricing.Item, subtotal pricing.Money) []FreeItem {
	switch d := c.Discount.(type) {
	case CategoryBundle:
		sets := units(items, inCategory(d.BuyCategory)) / d.BuyQuantity
		return cheapestFirst(items, inCategory(d.GetCategory), capped(sets*d.GetQuantity, d.MaxFree))
	case ProductBundle:
		sets := units(items, isProduct(d.BuyProduct)) / d.BuyQuantity
		return cheapestFirst(items, isProduct(d.GetProduct), capped(sets*d.GetQuantity, d.MaxFree))
	case ConditionalFree:
		if !d.gateOpen(items, subtotal) {
			return nil
		}
		all := units(items, inCategory(d.GetCategory))
		return cheapestFirst(items, inCategory(d.GetCategory), capped(all, d.MaxFree))
	default:
		return nil
	}
}

// FreeQuantities indexes FreeItems by product.
func FreeQuantities(free []FreeItem) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(free))
	for _, fi := range free {
		out[fi.ProductID] += fi.Quantity
	}
	return out
}

// Applied binds a validated coupon to the cart it was validated against.
type Applied struct {
	Coupon Coupon
	Items  []pricing.Item
}

// Adjust implements pricing.Discounter.
func (a Applied) Adjust(subtotal, shipping pricing.Money) pricing.Adjustment {
	_, freeShipping := a.Coupon.Discount.(FreeShipping)
	return pricing.Adjustment{
		Code:         a.Coupon.Code,
		Type:         string(a.Coupon.Discount.Kind()),
		Amount:       a.Coupon.Amount(subtotal, shipping, a.Items),
		FreeShipping: freeShipping,
	}
}

// FreeItems returns the units the applied coupon makes free.
func (a Applied) FreeItems() []FreeItem {
	return a.Coupon.FreeItems(a.Items, pricing.Subtotal(a.Items))
}

func (d ConditionalFree) gateOpen(items []pricing.Item, subtotal pricing.Money) bool {
	if d.TriggerCategory != nil && units(items, inCategory(*d.TriggerCategory)) > 0 {
		return true
	}
	return d.Threshold != nil && subtotal >= *d.Threshold
}

type matcher func(pricing.Item) bool

func inCategory(id uuid.UUID) matcher {
	return func(it pricing.Item) bool { return it.CategoryID == id }
}

func isProduct(id uuid.UUID) matcher {
	return func(it pricing.Item) bool { return it.ProductID == id }
}

func units(items []pricing.Item, match matcher) int {
	n := 0
	for _, it := range items {
		if it.Qty > 0 && match(it) {
			n += it.Qty
		}
	}
	return n
}

func capped(n, maxFree int) int {
	if maxFree > 0 && n > maxFree {
		return maxFree
	}
	return n
}

// cheapestFirst consumes up to n units from the matching lines in ascending unit
// price, breaking ties by product id so the allocation is deterministic.
func cheapestFirst(items []pricing.Item, match matcher, n int) []FreeItem {
	if n <= 0 {
		return nil
	}
	var pool []FreeItem
	index := map[uuid.UUID]int{}
	for _, it := range items {
		if it.Qty <= 0 || !match(it) {
			continue
		}
		if i, ok := index[it.ProductID]; ok && pool[i].UnitPrice == it.UnitPrice {
			pool[i].Quantity += it.Qty
			continue
		}
		index[it.ProductID] = len(pool)
		pool = append(pool, FreeItem{ProductID: it.ProductID, Quantity: it.Qty, UnitPrice: it.UnitPrice})
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].UnitPrice != pool[j].UnitPrice {
			return pool[i].UnitPrice < pool[j].UnitPrice
		}
		return pool[i].ProductID.String() < pool[j].ProductID.String()
	})
	var out []FreeItem
	for _, candidate := range pool {
		if n == 0 {
			break
		}
		take := candidate.Quantity
		if take > n {
			take = n
		}
		out = append(out, FreeItem{ProductID: candidate.ProductID, Quantity: take, UnitPrice: candidate.UnitPrice})
		n -= take
	}
	return out
}

func cartHasAnyProduct(items []pricing.Item, ids []uuid.UUID) bool {
	for _, it := range items {
		if containsID(ids, it.ProductID) {
			return true
		}
	}
	return false
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
