package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/coupon"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/payment/gateway"
	"github.com/noah-isme/toko-checkout/internal/store"
)

// Payment methods accepted at checkout.
const (
	MethodCard         = "CARD"
	MethodBankTransfer = "BANK_TRANSFER"
	MethodCOD          = "COD"
)

// Address is the shipping destination captured at checkout.
type Address struct {
	ReceiverName string `json:"receiverName" validate:"required,max=120"`
	Phone        string `json:"phone" validate:"required,max=32"`
	Country      string `json:"country" validate:"required,len=2"`
	Province     string `json:"province" validate:"required"`
	City         string `json:"city" validate:"required"`
	PostalCode   string `json:"postalCode" validate:"required,max=16"`
	AddressLine1 string `json:"addressLine1" validate:"required"`
	AddressLine2 string `json:"addressLine2,omitempty"`
}

// Input is the checkout request body.
type Input struct {
	Address       Address `json:"address"`
	PaymentMethod string  `json:"paymentMethod" validate:"required,oneof=CARD BANK_TRANSFER COD"`
	CouponCode    string  `json:"couponCode,omitempty" validate:"max=64"`
}

// Output is returned to the shopper after a successful checkout.
type Output struct {
	Order   OrderView       `json:"order"`
	Payment *gateway.Intent `json:"payment,omitempty"`
}

// Service turns the authenticated user's cart into an order.
type Service struct {
	Cart        *cart.Service
	Ledger      *Ledger
	Provider    gateway.Provider
	Validate    *validator.Validate
	Currency    string
	CallbackURL string
	IntentTTL   time.Duration
	Now         func() time.Time
}

// Checkout validates the request, prices the cart, commits the order and, for
// card payments, opens a payment intent. When the intent cannot be opened the
// order is failed and its stock released before the error is returned.
func (s *Service) Checkout(ctx context.Context, userID uuid.UUID, in Input) (out Output, err error) {
	if s == nil || s.Cart == nil || s.Ledger == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "CheckoutService.Checkout")
	defer span.End()

	method := strings.ToUpper(strings.TrimSpace(in.PaymentMethod))
	in.PaymentMethod = method
	defer func() {
		result := "success"
		switch {
		case err == nil:
		case errors.Is(err, common.ErrValidation):
			result = "invalid"
		case errors.Is(err, coupon.ErrRejected):
			result = "coupon_rejected"
		case errors.Is(err, store.ErrInsufficientStock):
			result = "out_of_stock"
		default:
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("checkout.result", result))
		obs.CountCheckout(labelMethod(method), result)
	}()

	if err := common.ValidateStruct(s.Validate, in); err != nil {
		return Output{}, err
	}
	if method == MethodCard && s.Provider == nil {
		return Output{}, common.NewAppError("PAYMENT_NOT_CONFIGURED", "card payments are unavailable", http.StatusServiceUnavailable, nil)
	}

	lines, err := s.Cart.Lines(ctx, userID)
	if err != nil {
		return Output{}, err
	}
	if len(lines) == 0 {
		return Output{}, common.Validation("cart is empty", nil)
	}
	quote, err := s.Cart.Price(ctx, userID, lines, in.CouponCode)
	if err != nil {
		return Output{}, err
	}
	address, err := json.Marshal(in.Address)
	if err != nil {
		return Output{}, fmt.Errorf("encode address: %w", err)
	}

	commit := CommitInput{
		UserID:        userID,
		Quote:         quote,
		Address:       address,
		PaymentMethod: method,
	}
	if method == MethodCard {
		commit.BasketID = gateway.NewBasketID()
	}
	committed, err := s.Ledger.Commit(ctx, commit)
	if err != nil {
		return Output{}, err
	}
	order := committed.Order
	span.SetAttributes(
		attribute.String("order.id", order.ID.String()),
		attribute.Int64("order.total", order.Total),
	)
	out.Order = NewOrderView(order, committed.Items)
	if method != MethodCard {
		return out, nil
	}

	intent, err := s.openIntent(ctx, order)
	if err != nil {
		reason := "payment intent failed: " + err.Error()
		if _, failErr := s.Ledger.FailIntent(ctx, order.ID, reason); failErr != nil {
			err = errors.Join(err, failErr)
		}
		return Output{}, common.NewAppError("PAYMENT_INTENT_FAILED", "unable to start payment", http.StatusBadGateway, err)
	}
	out.Payment = &intent
	return out, nil
}

func (s *Service) openIntent(ctx context.Context, order store.Order) (gateway.Intent, error) {
	now := s.now()
	ttl := s.IntentTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	basket := ""
	if order.BasketID != nil {
		basket = *order.BasketID
	}
	intent, err := s.Provider.CreateIntent(ctx, gateway.IntentRequest{
		OrderID:       order.ID,
		CorrelationID: gateway.CorrelationID(order.ID, now),
		BasketID:      basket,
		Amount:        order.Total,
		Currency:      s.Currency,
		CallbackURL:   s.CallbackURL,
		ExpiresAt:     now.Add(ttl),
	})
	if err != nil {
		obs.CountPaymentIntent(s.Provider.Name(), "error")
		return gateway.Intent{}, err
	}
	obs.CountPaymentIntent(s.Provider.Name(), "success")
	return intent, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func labelMethod(method string) string {
	switch method {
	case MethodCard, MethodBankTransfer, MethodCOD:
		return strings.ToLower(method)
	default:
		return "unknown"
	}
}
