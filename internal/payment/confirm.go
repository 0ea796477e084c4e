package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/checkout"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/store"
)

// ConfirmInput is a payment the gateway already settled on the client side.
type ConfirmInput struct {
	PaymentID  string           `json:"paymentId" validate:"required,max=128"`
	Address    checkout.Address `json:"address"`
	CouponCode string           `json:"couponCode,omitempty" validate:"max=64"`
}

// Confirmer creates paid orders from confirmed payments. Confirming the same
// payment id twice returns the order created the first time.
type Confirmer struct {
	Store    store.Store
	Cart     *cart.Service
	Ledger   *checkout.Ledger
	Validate *validator.Validate
}

// Confirm returns the order paid by in.PaymentID, creating it from the user's
// cart when none exists yet.
func (c *Confirmer) Confirm(ctx context.Context, userID uuid.UUID, in ConfirmInput) (checkout.OrderView, bool, error) {
	if c == nil || c.Store == nil || c.Cart == nil || c.Ledger == nil {
		return checkout.OrderView{}, false, errors.New("confirmer not configured")
	}
	ctx, span := otel.Tracer("payment.Confirmer").Start(ctx, "Confirmer.Confirm")
	defer span.End()

	in.PaymentID = strings.TrimSpace(in.PaymentID)
	if err := common.ValidateStruct(c.Validate, in); err != nil {
		return checkout.OrderView{}, false, err
	}
	span.SetAttributes(attribute.String("payment.id", in.PaymentID))

	if view, found, err := c.existing(ctx, userID, in.PaymentID); err != nil || found {
		return view, false, err
	}

	lines, err := c.Cart.Lines(ctx, userID)
	if err != nil {
		return checkout.OrderView{}, false, err
	}
	if len(lines) == 0 {
		return checkout.OrderView{}, false, common.Validation("cart is empty", nil)
	}
	quote, err := c.Cart.Price(ctx, userID, lines, in.CouponCode)
	if err != nil {
		return checkout.OrderView{}, false, err
	}
	address, err := json.Marshal(in.Address)
	if err != nil {
		return checkout.OrderView{}, false, fmt.Errorf("encode address: %w", err)
	}
	committed, err := c.Ledger.Commit(ctx, checkout.CommitInput{
		UserID:        userID,
		Quote:         quote,
		Address:       address,
		PaymentMethod: checkout.MethodCard,
		PaymentID:     in.PaymentID,
	})
	if errors.Is(err, store.ErrDuplicatePaymentID) {
		view, _, err := c.existing(ctx, userID, in.PaymentID)
		return view, false, err
	}
	if err != nil {
		return checkout.OrderView{}, false, err
	}
	span.SetAttributes(attribute.String("order.id", committed.Order.ID.String()))
	return checkout.NewOrderView(committed.Order, committed.Items), true, nil
}

func (c *Confirmer) existing(ctx context.Context, userID uuid.UUID, paymentID string) (checkout.OrderView, bool, error) {
	order, err := c.Store.FindOrderByPaymentID(ctx, paymentID)
	if errors.Is(err, store.ErrNotFound) {
		return checkout.OrderView{}, false, nil
	}
	if err != nil {
		return checkout.OrderView{}, false, fmt.Errorf("find order by payment id: %w", err)
	}
	if order.UserID != userID {
		return checkout.OrderView{}, false, common.NewAppError("PAYMENT_ALREADY_USED", "payment belongs to another order", http.StatusConflict, nil)
	}
	items, err := c.Store.ListOrderItems(ctx, order.ID)
	if err != nil {
		return checkout.OrderView{}, false, fmt.Errorf("list order items: %w", err)
	}
	return checkout.NewOrderView(order, items), true, nil
}
