package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/imrishuroy/go-cart-checkout/internal/orders"
)

// GetOrder returns one of the user's orders. Orders of other users are
// reported as ErrOrderNotFound.
func (e *Engine) GetOrder(ctx context.Context, userID, orderID string) (*orders.Order, error) {
	o, err := e.AdminGetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// AdminGetOrder returns any order.
func (e *Engine) AdminGetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return nil, e.storageFailure("get order", "order="+orderID, err)
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// ListOrders returns the user's orders, newest first.
func (e *Engine) ListOrders(ctx context.Context, userID string) ([]orders.Order, error) {
	list, err := e.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, e.storageFailure("list orders", "user="+userID, err)
	}
	if list == nil {
		list = []orders.Order{}
	}
	return list, nil
}

// ListAllOrders returns up to limit orders of every user, newest first.
func (e *Engine) ListAllOrders(ctx context.Context, limit int) ([]orders.Order, error) {
	list, err := e.orders.List(ctx, limit)
	if err != nil {
		return nil, e.storageFailure("list all orders", fmt.Sprintf("limit=%d", limit), err)
	}
	if list == nil {
		list = []orders.Order{}
	}
	return list, nil
}

// UpdateStatus moves an order along the fulfilment state machine. Setting the
// current status again is a no-op.
func (e *Engine) UpdateStatus(ctx context.Context, orderID, value string) (*orders.Order, error) {
	ctx, span := e.tracer.Start(ctx, "checkout.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", orderID), attribute.String("order.status", value)))
	defer span.End()

	next, err := orders.ParseStatus(value)
	if err != nil {
		return nil, err
	}
	o, err := e.AdminGetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == next {
		return o, nil
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	if err := e.orders.UpdateStatus(ctx, orderID, o.Status, next); err != nil {
		if errors.Is(err, orders.ErrStatusMismatch) {
			return nil, ErrStatusConflict
		}
		return nil, e.storageFailure("update status", "order="+orderID, err)
	}
	log.Printf("[checkout] status order=%s from=%s to=%s", orderID, o.Status, next)
	o.Status = next
	o.UpdatedAt = e.nowFunc().UTC()
	return o, nil
}

// UpdatePaymentStatus records a payment. Paid orders cannot go back to pending.
func (e *Engine) UpdatePaymentStatus(ctx context.Context, orderID, value string) (*orders.Order, error) {
	ctx, span := e.tracer.Start(ctx, "checkout.UpdatePaymentStatus", trace.WithAttributes(
		attribute.String("order.id", orderID), attribute.String("order.payment_status", value)))
	defer span.End()

	next, err := orders.ParsePaymentStatus(value)
	if err != nil {
		return nil, err
	}
	o, err := e.AdminGetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == next {
		return o, nil
	}
	if !o.PaymentStatus.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, o.PaymentStatus, next)
	}
	if err := e.orders.UpdatePaymentStatus(ctx, orderID, o.PaymentStatus, next); err != nil {
		if errors.Is(err, orders.ErrStatusMismatch) {
			return nil, ErrStatusConflict
		}
		return nil, e.storageFailure("update payment status", "order="+orderID, err)
	}
	log.Printf("[checkout] payment order=%s from=%s to=%s", orderID, o.PaymentStatus, next)
	o.PaymentStatus = next
	o.UpdatedAt = e.nowFunc().UTC()
	return o, nil
}
