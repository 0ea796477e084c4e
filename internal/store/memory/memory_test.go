package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/store"
)

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := New()
	p := s.PutProduct(store.Product{Name: "Kopi", Price: 10_000, Stock: 3})
	boom := errors.New("boom")

	err := s.WithinTx(context.Background(), func(q store.Queries) error {
		require.NoError(t, q.DecrementStock(context.Background(), p.ID, 2))
		_, err := q.CreateOrder(context.Background(), store.CreateOrderParams{OrderNumber: "ORD-1"})
		require.NoError(t, err)
		return boom
	})

	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, s.Stock(p.ID))
	require.Empty(t, s.Orders())
}

func TestDecrementStockNeverGoesNegative(t *testing.T) {
	s := New()
	p := s.PutProduct(store.Product{Name: "Teh", Stock: 1})

	require.ErrorIs(t, s.DecrementStock(context.Background(), p.ID, 2), store.ErrInsufficientStock)
	require.NoError(t, s.DecrementStock(context.Background(), p.ID, 1))
	require.ErrorIs(t, s.DecrementStock(context.Background(), p.ID, 1), store.ErrInsufficientStock)
	require.Zero(t, s.Stock(p.ID))
}

func TestPaymentIDUnique(t *testing.T) {
	s := New()
	ctx := context.Background()
	pay := "pay-1"
	first, err := s.CreateOrder(ctx, store.CreateOrderParams{OrderNumber: "ORD-1", PaymentID: &pay})
	require.NoError(t, err)

	_, err = s.CreateOrder(ctx, store.CreateOrderParams{OrderNumber: "ORD-2", PaymentID: &pay})
	require.ErrorIs(t, err, store.ErrDuplicatePaymentID)

	second, err := s.CreateOrder(ctx, store.CreateOrderParams{OrderNumber: "ORD-3"})
	require.NoError(t, err)
	_, err = s.UpdateOrderPayment(ctx, store.UpdateOrderPaymentParams{ID: second.ID, PaymentID: &pay})
	require.ErrorIs(t, err, store.ErrDuplicatePaymentID)

	found, err := s.FindOrderByPaymentID(ctx, pay)
	require.NoError(t, err)
	require.Equal(t, first.ID, found.ID)
}

func TestLockProductsSkipsMissingAndSorts(t *testing.T) {
	s := New()
	a := s.PutProduct(store.Product{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000b")})
	b := s.PutProduct(store.Product{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000a")})

	got, err := s.LockProducts(context.Background(), []uuid.UUID{a.ID, uuid.New(), b.ID, a.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, b.ID, got[0].ID)
	require.Equal(t, a.ID, got[1].ID)
}

func TestFailOn(t *testing.T) {
	s := New()
	boom := errors.New("disk full")
	s.FailOn("ClearCart", boom)
	require.ErrorIs(t, s.ClearCart(context.Background(), uuid.New()), boom)
	s.FailOn("ClearCart", nil)
	require.NoError(t, s.ClearCart(context.Background(), uuid.New()))
}
