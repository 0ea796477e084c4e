package checkout_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/checkout"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/coupon"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/payment/gateway"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/store"
	"github.com/noah-isme/toko-checkout/internal/store/memory"
)

type failingProvider struct{}

func (failingProvider) Name() string { return "failing" }

func (failingProvider) CreateIntent(context.Context, gateway.IntentRequest) (gateway.Intent, error) {
	return gateway.Intent{}, errors.New("gateway down")
}

func (failingProvider) VerifyCallback(*http.Request, []byte) (gateway.Callback, error) {
	return gateway.Callback{}, gateway.ErrInvalidSignature
}

type fixture struct {
	st     *memory.Store
	svc    *checkout.Service
	ledger *checkout.Ledger
}

func newFixture(provider gateway.Provider) fixture {
	st := memory.New()
	ledger := &checkout.Ledger{Store: st, Events: &events.Bus{Store: st}}
	cartSvc := &cart.Service{
		Q:       st,
		Coupons: &coupon.Service{Q: st},
		Pricing: pricing.Pipeline{
			TaxBps:      1000,
			TaxIncluded: true,
			Shipping:    pricing.ShippingSettings{FreeThreshold: 500000, FlatFee: 5000},
		},
	}
	return fixture{
		st:     st,
		ledger: ledger,
		svc: &checkout.Service{
			Cart:     cartSvc,
			Ledger:   ledger,
			Provider: provider,
			Validate: common.NewValidator(),
			Currency: "IDR",
		},
	}
}

func validInput(method string) checkout.Input {
	return checkout.Input{
		PaymentMethod: method,
		Address: checkout.Address{
			ReceiverName: "Sari",
			Phone:        "08123456789",
			Country:      "ID",
			Province:     "Jawa Barat",
			City:         "Bandung",
			PostalCode:   "40115",
			AddressLine1: "Jl. Braga 1",
		},
	}
}

func TestCheckoutCODCreatesPendingOrder(t *testing.T) {
	f := newFixture(nil)
	user := uuid.New()
	p := f.st.PutProduct(store.Product{Name: "Kettle", Price: 50000, Stock: 5})
	f.st.PutCartItem(user, p.ID, 2)

	out, err := f.svc.Checkout(context.Background(), user, validInput("cod"))
	require.NoError(t, err)
	require.Nil(t, out.Payment)
	require.Equal(t, string(store.OrderStatusPending), out.Order.Status)
	require.Equal(t, string(store.PaymentStatusPending), out.Order.PaymentStatus)
	require.Equal(t, checkout.MethodCOD, out.Order.PaymentMethod)
	require.Regexp(t, `^ORD-\d{14}-[0-9A-F]{6}$`, out.Order.OrderNumber)
	require.Equal(t, int64(100000+5000+500), out.Order.Total)

	require.Equal(t, 3, f.st.Stock(p.ID))
	cartItems, err := f.st.GetCart(context.Background(), user)
	require.NoError(t, err)
	require.Empty(t, cartItems)

	evs := f.st.Events()
	require.Len(t, evs, 1)
	require.Equal(t, events.TopicOrderCreated, evs[0].Topic)
	require.Equal(t, out.Order.ID, evs[0].AggregateID)
}

func TestCheckoutBuyXGetYWritesFreeRows(t *testing.T) {
	f := newFixture(nil)
	user := uuid.New()
	shoes, socks := uuid.New(), uuid.New()
	boot := f.st.PutProduct(store.Product{Name: "Boot", Price: 300000, Stock: 10, CategoryID: shoes})
	sock := f.st.PutProduct(store.Product{Name: "Sock", Price: 20000, Stock: 10, CategoryID: socks})
	f.st.PutCartItem(user, boot.ID, 2)
	f.st.PutCartItem(user, sock.ID, 3)
	buy, get := 2, 1
	mode := string(coupon.BuyModeCategory)
	f.st.PutCoupon(store.CouponRecord{
		Code:         "B2G1",
		DiscountType: string(coupon.KindBuyXGetY),
		BuyMode:      &mode,
		BuyTargetID:  &shoes,
		GetTargetID:  &socks,
		BuyQuantity:  &buy,
		GetQuantity:  &get,
		IsActive:     true,
	})

	in := validInput(checkout.MethodBankTransfer)
	in.CouponCode = "b2g1"
	out, err := f.svc.Checkout(context.Background(), user, in)
	require.NoError(t, err)
	require.Equal(t, int64(20000), out.Order.Discount)
	require.Equal(t, "B2G1", *out.Order.CouponCode)

	var freeRows, sockUnits int
	for _, it := range out.Order.Items {
		if it.ProductID != nil && *it.ProductID == sock.ID {
			sockUnits += it.Qty
			if it.Free {
				freeRows++
				require.Equal(t, 1, it.Qty)
				require.Zero(t, it.Price)
			}
		}
	}
	require.Equal(t, 1, freeRows)
	require.Equal(t, 3, sockUnits)
	require.Equal(t, 7, f.st.Stock(sock.ID))
	require.Equal(t, 8, f.st.Stock(boot.ID))

	usages := f.st.CouponUsages()
	require.Len(t, usages, 1)
	require.Equal(t, out.Order.ID, usages[0].OrderID)
}

func TestCheckoutInsufficientStockLeavesNoTrace(t *testing.T) {
	f := newFixture(nil)
	user := uuid.New()
	p := f.st.PutProduct(store.Product{Name: "Kettle", Price: 50000, Stock: 1})
	f.st.PutCartItem(user, p.ID, 2)

	_, err := f.svc.Checkout(context.Background(), user, validInput(checkout.MethodCOD))
	var stockErr *checkout.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, "Kettle", stockErr.ProductName)
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	require.Equal(t, 1, f.st.Stock(p.ID))
	require.Empty(t, f.st.Orders())
	cartItems, err := f.st.GetCart(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, cartItems, 1)
}

func TestCheckoutRejectsRemovedProduct(t *testing.T) {
	f := newFixture(nil)
	user := uuid.New()
	kettle := f.st.PutProduct(store.Product{Name: "Kettle", Price: 50000, Stock: 5})
	mug := f.st.PutProduct(store.Product{Name: "Mug", Price: 30000, Stock: 5})
	f.st.PutCartItem(user, kettle.ID, 1)
	f.st.PutCartItem(user, mug.ID, 1)
	f.st.DeleteProduct(mug.ID)

	_, err := f.svc.Checkout(context.Background(), user, validInput(checkout.MethodCOD))
	require.ErrorIs(t, err, common.ErrValidation)

	require.Equal(t, 5, f.st.Stock(kettle.ID))
	require.Empty(t, f.st.Orders())
	require.Empty(t, f.st.Events())
	cartItems, err := f.st.GetCart(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, cartItems, 2)
}

func TestConcurrentCheckoutsForLastUnit(t *testing.T) {
	f := newFixture(nil)
	p := f.st.PutProduct(store.Product{Name: "Last one", Price: 50000, Stock: 1})
	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	for _, u := range users {
		f.st.PutCartItem(u, p.ID, 1)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		conflict int
	)
	for _, u := range users {
		wg.Add(1)
		go func(u uuid.UUID) {
			defer wg.Done()
			_, err := f.svc.Checkout(context.Background(), u, validInput(checkout.MethodCOD))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, store.ErrInsufficientStock):
				conflict++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(u)
	}
	wg.Wait()

	require.Equal(t, 1, success)
	require.Equal(t, len(users)-1, conflict)
	require.Zero(t, f.st.Stock(p.ID))
	require.Len(t, f.st.Orders(), 1)
}

func TestCheckoutCardOpensIntent(t *testing.T) {
	f := newFixture(gateway.Sandbox{Secret: "s"})
	f.svc.IntentTTL = time.Minute
	user := uuid.New()
	p := f.st.PutProduct(store.Product{Name: "Kettle", Price: 50000, Stock: 5})
	f.st.PutCartItem(user, p.ID, 1)

	out, err := f.svc.Checkout(context.Background(), user, validInput(checkout.MethodCard))
	require.NoError(t, err)
	require.NotNil(t, out.Payment)
	require.Equal(t, "sandbox", out.Payment.Provider)

	orders := f.st.Orders()
	require.Len(t, orders, 1)
	require.NotNil(t, orders[0].BasketID)
	require.Equal(t, "sbx-"+*orders[0].BasketID, out.Payment.Token)
	require.Equal(t, store.PaymentStatusPending, orders[0].PaymentStatus)
}

func TestCheckoutCardIntentFailureReleasesStock(t *testing.T) {
	f := newFixture(failingProvider{})
	user := uuid.New()
	p := f.st.PutProduct(store.Product{Name: "Kettle", Price: 50000, Stock: 5})
	f.st.PutCartItem(user, p.ID, 2)

	_, err := f.svc.Checkout(context.Background(), user, validInput(checkout.MethodCard))
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "PAYMENT_INTENT_FAILED", appErr.Code)

	require.Equal(t, 5, f.st.Stock(p.ID))
	orders := f.st.Orders()
	require.Len(t, orders, 1)
	require.Equal(t, store.PaymentStatusFailed, orders[0].PaymentStatus)
	require.Equal(t, store.OrderStatusPending, orders[0].Status)
	require.NotNil(t, orders[0].FailureReason)
	require.Contains(t, *orders[0].FailureReason, "gateway down")

	topics := []string{}
	for _, ev := range f.st.Events() {
		topics = append(topics, ev.Topic)
	}
	require.Equal(t, []string{events.TopicOrderCreated, events.TopicPaymentFailed}, topics)
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(nil)
	user := uuid.New()

	in := validInput("CASH")
	_, err := f.svc.Checkout(context.Background(), user, in)
	require.ErrorIs(t, err, common.ErrValidation)

	in = validInput(checkout.MethodCOD)
	in.Address.City = ""
	_, err = f.svc.Checkout(context.Background(), user, in)
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = f.svc.Checkout(context.Background(), user, validInput(checkout.MethodCOD))
	require.ErrorIs(t, err, common.ErrValidation, "empty cart")
}

func TestCheckoutCardWithoutProviderIsUnavailable(t *testing.T) {
	f := newFixture(nil)
	_, err := f.svc.Checkout(context.Background(), uuid.New(), validInput(checkout.MethodCard))
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, http.StatusServiceUnavailable, appErr.HTTPStatus)
}

func TestCommitRechecksCouponUsageLimit(t *testing.T) {
	f := newFixture(nil)
	user := uuid.New()
	p := f.st.PutProduct(store.Product{Name: "Kettle", Price: 50000, Stock: 5})
	f.st.PutCartItem(user, p.ID, 2)
	limit := 1
	rec := f.st.PutCoupon(store.CouponRecord{Code: "ONCE", DiscountType: string(coupon.KindFixedAmount), Value: 1000, IsActive: true, TotalUsageLimit: &limit})

	quote, err := f.svc.Cart.Quote(context.Background(), user, "ONCE")
	require.NoError(t, err)

	rec.UsedCount = 1
	f.st.PutCoupon(rec)

	_, err = f.ledger.Commit(context.Background(), checkout.CommitInput{
		UserID:        user,
		Quote:         quote,
		Address:       json.RawMessage(`{"city":"Bandung"}`),
		PaymentMethod: checkout.MethodCOD,
	})
	rej, ok := coupon.AsRejection(err)
	require.True(t, ok)
	require.Equal(t, coupon.ReasonUsageLimitReached, rej.Reason)
	require.Equal(t, 5, f.st.Stock(p.ID))
	require.Empty(t, f.st.Orders())
}

func TestCommitWithConfirmedPaymentIsProcessing(t *testing.T) {
	f := newFixture(nil)
	user := uuid.New()
	p := f.st.PutProduct(store.Product{Name: "Kettle", Price: 50000, Stock: 5})
	f.st.PutCartItem(user, p.ID, 1)
	quote, err := f.svc.Cart.Quote(context.Background(), user, "")
	require.NoError(t, err)

	committed, err := f.ledger.Commit(context.Background(), checkout.CommitInput{
		UserID:        user,
		Quote:         quote,
		Address:       json.RawMessage(`{"city":"Bandung"}`),
		PaymentMethod: checkout.MethodCard,
		PaymentID:     "pay-1",
	})
	require.NoError(t, err)
	require.Equal(t, store.OrderStatusProcessing, committed.Order.Status)
	require.Equal(t, store.PaymentStatusCompleted, committed.Order.PaymentStatus)
	require.Len(t, committed.Events, 2)
	require.Equal(t, events.TopicOrderPaid, committed.Events[1].Topic)
}

func TestReleaseStockSkipsDeletedProducts(t *testing.T) {
	f := newFixture(nil)
	user := uuid.New()
	keep := f.st.PutProduct(store.Product{Name: "Keep", Price: 1000, Stock: 5})
	gone := f.st.PutProduct(store.Product{Name: "Gone", Price: 1000, Stock: 5})
	f.st.PutCartItem(user, keep.ID, 2)
	f.st.PutCartItem(user, gone.ID, 2)
	out, err := f.svc.Checkout(context.Background(), user, validInput(checkout.MethodCOD))
	require.NoError(t, err)
	f.st.DeleteProduct(gone.ID)

	err = f.st.WithinTx(context.Background(), func(q store.Queries) error {
		return f.ledger.ReleaseStock(context.Background(), q, out.Order.ID)
	})
	require.NoError(t, err)
	require.Equal(t, 5, f.st.Stock(keep.ID))
}

func TestCheckoutHandler(t *testing.T) {
	f := newFixture(nil)
	user := uuid.New()
	p := f.st.PutProduct(store.Product{Name: "Kettle", Price: 50000, Stock: 1})
	f.st.PutCartItem(user, p.ID, 2)
	h := &checkout.Handler{Svc: f.svc}

	body, err := json.Marshal(validInput(checkout.MethodCOD))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(body))
	req = req.WithContext(common.WithUserID(req.Context(), user))
	rec := httptest.NewRecorder()
	h.Checkout(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "INSUFFICIENT_STOCK")
	require.Contains(t, rec.Body.String(), "Kettle")

	f.st.PutProduct(store.Product{ID: p.ID, Name: "Kettle", Price: 50000, Stock: 10})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(body))
	req = req.WithContext(common.WithUserID(req.Context(), user))
	rec = httptest.NewRecorder()
	h.Checkout(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
}
