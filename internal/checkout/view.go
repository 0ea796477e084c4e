package checkout

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/store"
)

// OrderView is the API representation of an order.
type OrderView struct {
	ID              uuid.UUID       `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"paymentStatus"`
	PaymentMethod   string          `json:"paymentMethod"`
	PaymentID       *string         `json:"paymentId,omitempty"`
	FailureReason   *string         `json:"failureReason,omitempty"`
	Subtotal        int64           `json:"subtotal"`
	Discount        int64           `json:"discount"`
	Tax             int64           `json:"tax"`
	ShippingCost    int64           `json:"shippingCost"`
	ShippingTax     int64           `json:"shippingTax"`
	Total           int64           `json:"total"`
	CouponCode      *string         `json:"couponCode,omitempty"`
	CouponType      *string         `json:"couponType,omitempty"`
	ShippingAddress json.RawMessage `json:"shippingAddress,omitempty"`
	Items           []OrderItemView `json:"items"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// OrderItemView is one order line. Free units are listed with price zero.
type OrderItemView struct {
	ProductID *uuid.UUID `json:"productId,omitempty"`
	Name      string     `json:"name"`
	ImageURL  string     `json:"imageUrl,omitempty"`
	Qty       int        `json:"qty"`
	Price     int64      `json:"price"`
	Free      bool       `json:"free"`
}

// NewOrderView renders an order with its items.
func NewOrderView(o store.Order, items []store.OrderItem) OrderView {
	view := OrderView{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		PaymentMethod:   o.PaymentMethod,
		PaymentID:       o.PaymentID,
		FailureReason:   o.FailureReason,
		Subtotal:        o.Subtotal,
		Discount:        o.DiscountAmount,
		Tax:             o.Tax,
		ShippingCost:    o.ShippingCost,
		ShippingTax:     o.ShippingTax,
		Total:           o.Total,
		CouponCode:      o.CouponCode,
		CouponType:      o.CouponDiscountType,
		ShippingAddress: o.ShippingAddress,
		Items:           make([]OrderItemView, 0, len(items)),
		CreatedAt:       o.CreatedAt,
	}
	for _, it := range items {
		view.Items = append(view.Items, OrderItemView{
			ProductID: it.ProductID,
			Name:      it.ProductName,
			ImageURL:  it.ProductImageURL,
			Qty:       it.Quantity,
			Price:     it.Price,
			Free:      it.Price == 0,
		})
	}
	return view
}
