// Package payment reconciles gateway outcomes with orders: asynchronous
// callbacks for card checkouts and synchronous confirmations for payments the
// gateway settled before an order existed.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-checkout/internal/checkout"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/lock"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/payment/gateway"
	"github.com/noah-isme/toko-checkout/internal/store"
)

// Anomaly kinds persisted for manual follow-up.
const (
	AnomalyOrderNotFound    = "ORDER_NOT_FOUND"
	AnomalyDuplicatePayment = "DUPLICATE_PAYMENT"
	AnomalyStockUnavailable = "STOCK_UNAVAILABLE"
)

// Outcome describes what a reconciliation did.
type Outcome string

const (
	OutcomePaid      Outcome = "paid"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeAnomaly   Outcome = "anomaly"
)

// OrderNotFoundAnomaly is returned when a callback matches no order by any of
// its identifiers. The anomaly has been persisted when this error is returned.
type OrderNotFoundAnomaly struct {
	PaymentID     string
	CorrelationID string
	BasketID      string
}

func (e *OrderNotFoundAnomaly) Error() string {
	return fmt.Sprintf("no order for payment %q (conversation %q, basket %q)", e.PaymentID, e.CorrelationID, e.BasketID)
}

func (e *OrderNotFoundAnomaly) ErrorCode() string { return AnomalyOrderNotFound }

func (e *OrderNotFoundAnomaly) StatusCode() int { return http.StatusNotFound }

func (e *OrderNotFoundAnomaly) ErrorDetails() any {
	return map[string]string{
		"paymentId":      e.PaymentID,
		"conversationId": e.CorrelationID,
		"basketId":       e.BasketID,
	}
}

// Result is the order after reconciliation together with what happened to it.
type Result struct {
	Order   store.Order
	Outcome Outcome
}

// Reconciler applies payment outcomes to orders exactly once per payment id.
type Reconciler struct {
	Store   store.Store
	Ledger  *checkout.Ledger
	Locker  *lock.Locker
	LockTTL time.Duration
	Logger  zerolog.Logger
}

// HandleCallback applies a verified gateway callback.
func (r *Reconciler) HandleCallback(ctx context.Context, cb gateway.Callback) (res Result, err error) {
	if r == nil || r.Store == nil || r.Ledger == nil {
		return Result{}, errors.New("reconciler not configured")
	}
	ctx, span := otel.Tracer("payment.Reconciler").Start(ctx, "Reconciler.HandleCallback")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.id", cb.PaymentID),
		attribute.String("payment.conversation_id", cb.CorrelationID),
		attribute.Bool("payment.success", cb.Success),
	)
	defer func() {
		label := string(res.Outcome)
		if err != nil {
			var notFound *OrderNotFoundAnomaly
			if errors.As(err, &notFound) {
				label = string(OutcomeAnomaly)
			} else {
				label = "error"
				span.RecordError(err)
			}
		}
		span.SetAttributes(attribute.String("payment.outcome", label))
		obs.CountPaymentCallback(label)
	}()

	err = r.withPaymentLock(ctx, cb.PaymentID, func(ctx context.Context) error {
		var innerErr error
		res, innerErr = r.handleCallback(ctx, cb)
		return innerErr
	})
	return res, err
}

func (r *Reconciler) handleCallback(ctx context.Context, cb gateway.Callback) (Result, error) {
	if cb.PaymentID != "" {
		existing, err := r.Store.FindOrderByPaymentID(ctx, cb.PaymentID)
		switch {
		case err == nil:
			return Result{Order: existing, Outcome: OutcomeDuplicate}, nil
		case !errors.Is(err, store.ErrNotFound):
			return Result{}, fmt.Errorf("find order by payment id: %w", err)
		}
	}

	order, err := r.resolveOrder(ctx, cb)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return Result{}, err
		}
		if anomalyErr := r.recordAnomaly(ctx, AnomalyOrderNotFound, cb, nil, "no order matches the callback identifiers"); anomalyErr != nil {
			return Result{}, anomalyErr
		}
		return Result{}, &OrderNotFoundAnomaly{PaymentID: cb.PaymentID, CorrelationID: cb.CorrelationID, BasketID: cb.BasketID}
	}

	if !cb.Success {
		return r.applyFailure(ctx, order.ID, cb)
	}
	return r.applySuccess(ctx, order.ID, cb)
}

// resolveOrder follows conversation id, then basket id.
func (r *Reconciler) resolveOrder(ctx context.Context, cb gateway.Callback) (store.Order, error) {
	if orderID, ok := gateway.ParseCorrelationID(cb.CorrelationID); ok {
		order, err := r.Store.GetOrder(ctx, orderID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return store.Order{}, fmt.Errorf("get order: %w", err)
		}
	}
	if cb.BasketID != "" {
		order, err := r.Store.FindOrderByBasketID(ctx, cb.BasketID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return store.Order{}, fmt.Errorf("find order by basket id: %w", err)
		}
	}
	return store.Order{}, store.ErrNotFound
}

func (r *Reconciler) applyFailure(ctx context.Context, orderID uuid.UUID, cb gateway.Callback) (Result, error) {
	var (
		res Result
		ev  *store.DomainEvent
	)
	err := r.Store.WithinTx(ctx, func(q store.Queries) error {
		order, err := q.LockOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if order.PaymentStatus != store.PaymentStatusPending {
			res = Result{Order: order, Outcome: OutcomeIgnored}
			return nil
		}
		updated, recorded, err := r.Ledger.MarkFailed(ctx, q, order, failureReason(cb))
		if err != nil {
			return err
		}
		res, ev = Result{Order: updated, Outcome: OutcomeFailed}, recorded
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if ev != nil {
		r.Ledger.Publish(ctx, *ev)
		r.Logger.Info().
			Str("order_id", res.Order.ID.String()).
			Str("payment_id", cb.PaymentID).
			Str("error_code", cb.ErrorCode).
			Msg("payment failed; stock released")
	}
	return res, nil
}

func (r *Reconciler) applySuccess(ctx context.Context, orderID uuid.UUID, cb gateway.Callback) (Result, error) {
	var (
		res     Result
		evs     []store.DomainEvent
		anomaly string
	)
	err := r.Store.WithinTx(ctx, func(q store.Queries) error {
		order, err := q.LockOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		switch order.PaymentStatus {
		case store.PaymentStatusCompleted:
			if order.PaymentID != nil && *order.PaymentID == cb.PaymentID {
				res = Result{Order: order, Outcome: OutcomeDuplicate}
				return nil
			}
			anomaly = AnomalyDuplicatePayment
			res = Result{Order: order, Outcome: OutcomeAnomaly}
			return nil
		case store.PaymentStatusFailed:
			if err := r.Ledger.ReserveStock(ctx, q, order.ID); err != nil {
				return err
			}
		case store.PaymentStatusPending:
		default:
			res = Result{Order: order, Outcome: OutcomeIgnored}
			return nil
		}

		var paymentID *string
		if cb.PaymentID != "" {
			id := cb.PaymentID
			paymentID = &id
		}
		updated, err := q.UpdateOrderPayment(ctx, store.UpdateOrderPaymentParams{
			ID:            order.ID,
			Status:        store.OrderStatusProcessing,
			PaymentStatus: store.PaymentStatusCompleted,
			PaymentID:     paymentID,
		})
		if err != nil {
			return err
		}
		if err := q.ClearCart(ctx, updated.UserID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		ev, err := r.Ledger.Events.Record(ctx, q, events.TopicOrderPaid, updated.ID, map[string]any{
			"orderId":     updated.ID,
			"orderNumber": updated.OrderNumber,
			"userId":      updated.UserID,
			"paymentId":   cb.PaymentID,
			"total":       updated.Total,
		})
		if err != nil {
			return err
		}
		evs = append(evs, ev)
		res = Result{Order: updated, Outcome: OutcomePaid}
		return nil
	})

	var stockErr *checkout.InsufficientStockError
	switch {
	case err == nil:
	case errors.Is(err, store.ErrDuplicatePaymentID):
		winner, findErr := r.Store.FindOrderByPaymentID(ctx, cb.PaymentID)
		if findErr != nil {
			return Result{}, fmt.Errorf("re-read order after duplicate payment id: %w", findErr)
		}
		return Result{Order: winner, Outcome: OutcomeDuplicate}, nil
	case errors.As(err, &stockErr):
		order, getErr := r.Store.GetOrder(ctx, orderID)
		if getErr != nil {
			return Result{}, fmt.Errorf("get order: %w", getErr)
		}
		if anomalyErr := r.recordAnomaly(ctx, AnomalyStockUnavailable, cb, &order.ID, stockErr.Error()); anomalyErr != nil {
			return Result{}, anomalyErr
		}
		return Result{Order: order, Outcome: OutcomeAnomaly}, nil
	default:
		return Result{}, err
	}

	if anomaly != "" {
		detail := "order already settled by another payment"
		if res.Order.PaymentID != nil {
			detail = fmt.Sprintf("order already settled by payment %s", *res.Order.PaymentID)
		}
		if anomalyErr := r.recordAnomaly(ctx, anomaly, cb, &res.Order.ID, detail); anomalyErr != nil {
			return Result{}, anomalyErr
		}
		return res, nil
	}
	if len(evs) > 0 {
		r.Ledger.Publish(ctx, evs...)
		r.Logger.Info().
			Str("order_id", res.Order.ID.String()).
			Str("payment_id", cb.PaymentID).
			Msg("payment completed")
	}
	return res, nil
}

// recordAnomaly persists the anomaly and its event in one transaction, then logs and counts it.
func (r *Reconciler) recordAnomaly(ctx context.Context, kind string, cb gateway.Callback, orderID *uuid.UUID, detail string) error {
	var ev store.DomainEvent
	err := r.Store.WithinTx(ctx, func(q store.Queries) error {
		a, err := q.RecordPaymentAnomaly(ctx, store.RecordPaymentAnomalyParams{
			Kind:          kind,
			PaymentID:     cb.PaymentID,
			CorrelationID: cb.CorrelationID,
			BasketID:      cb.BasketID,
			OrderID:       orderID,
			Detail:        detail,
		})
		if err != nil {
			return fmt.Errorf("record payment anomaly: %w", err)
		}
		aggregate := a.ID
		if orderID != nil {
			aggregate = *orderID
		}
		ev, err = r.Ledger.Events.Record(ctx, q, events.TopicPaymentAnomaly, aggregate, map[string]any{
			"anomalyId":      a.ID,
			"kind":           kind,
			"paymentId":      cb.PaymentID,
			"conversationId": cb.CorrelationID,
			"basketId":       cb.BasketID,
			"orderId":        orderID,
			"detail":         detail,
		})
		return err
	})
	if err != nil {
		return err
	}
	obs.CountPaymentAnomaly(kind)
	logEvt := r.Logger.Error().
		Str("anomaly", kind).
		Str("payment_id", cb.PaymentID).
		Str("conversation_id", cb.CorrelationID).
		Str("basket_id", cb.BasketID)
	if orderID != nil {
		logEvt = logEvt.Str("order_id", orderID.String())
	}
	logEvt.Msg(detail)
	r.Ledger.Publish(ctx, ev)
	return nil
}

func (r *Reconciler) withPaymentLock(ctx context.Context, paymentID string, fn func(context.Context) error) error {
	if r.Locker == nil || strings.TrimSpace(paymentID) == "" {
		return fn(ctx)
	}
	ttl := r.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return r.Locker.WithLock(ctx, lock.PaymentKey(paymentID), ttl, fn)
}

func failureReason(cb gateway.Callback) string {
	code := strings.TrimSpace(cb.ErrorCode)
	msg := strings.TrimSpace(cb.ErrorMessage)
	switch {
	case code != "" && msg != "":
		return code + ": " + msg
	case msg != "":
		return msg
	case code != "":
		return code
	default:
		return "payment declined"
	}
}
