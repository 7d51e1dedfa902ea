package checkout

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-cart-checkout/internal/orders"
	"github.com/imrishuroy/go-cart-checkout/internal/pricing"
)

func placed(t *testing.T, h *harness, userID string) *orders.Order {
	t.Helper()
	h.add(t, userID, 1, 1)
	o, err := h.engine.PlaceOrder(context.Background(), userID, PlaceOrderRequest{})
	require.NoError(t, err)
	return o
}

func TestUpdateStatus_Lifecycle(t *testing.T) {
	h := newHarness(t, pricing.Options{})
	o := placed(t, h, "u1")
	ctx := context.Background()

	for _, next := range []string{"processing", "preparing", "shipping", "delivered"} {
		got, err := h.engine.UpdateStatus(ctx, o.ID, next)
		require.NoError(t, err, next)
		assert.Equal(t, orders.Status(next), got.Status)
	}

	_, err := h.engine.UpdateStatus(ctx, o.ID, "admin_cancelled")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := h.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivered, stored.Status)
}

func TestUpdateStatus_Rejections(t *testing.T) {
	h := newHarness(t, pricing.Options{})
	o := placed(t, h, "u1")
	ctx := context.Background()

	_, err := h.engine.UpdateStatus(ctx, o.ID, "lost_in_space")
	var ise *InvalidStateError
	require.True(t, errors.As(err, &ise), "got %v", err)
	assert.Equal(t, "lost_in_space", ise.Value)

	_, err = h.engine.UpdateStatus(ctx, o.ID, "shipping")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = h.engine.UpdateStatus(ctx, "nope", "processing")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	same, err := h.engine.UpdateStatus(ctx, o.ID, "unprocessed")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusUnprocessed, same.Status)

	got, err := h.engine.UpdateStatus(ctx, o.ID, "customer_cancelled")
	require.NoError(t, err)
	assert.True(t, got.Status.Terminal())
	_, err = h.engine.UpdateStatus(ctx, o.ID, "processing")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdatePaymentStatus(t *testing.T) {
	h := newHarness(t, pricing.Options{})
	o := placed(t, h, "u1")
	ctx := context.Background()

	_, err := h.engine.UpdatePaymentStatus(ctx, o.ID, "refunded")
	var ise *InvalidStateError
	assert.True(t, errors.As(err, &ise))

	got, err := h.engine.UpdatePaymentStatus(ctx, o.ID, "paid")
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPaid, got.PaymentStatus)

	_, err = h.engine.UpdatePaymentStatus(ctx, o.ID, "pending")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

// mismatchStub simulates a concurrent admin write landing first.
type mismatchStub struct {
	orders.Repository
}

func (mismatchStub) UpdateStatus(ctx context.Context, orderID string, expected, next orders.Status) error {
	return orders.ErrStatusMismatch
}

func TestUpdateStatus_ConcurrentWrite(t *testing.T) {
	h := newHarness(t, pricing.Options{})
	o := placed(t, h, "u1")
	h.engine.orders = mismatchStub{Repository: h.orders}

	_, err := h.engine.UpdateStatus(context.Background(), o.ID, "processing")
	assert.ErrorIs(t, err, ErrStatusConflict)
}

func TestOrderReads(t *testing.T) {
	h := newHarness(t, pricing.Options{})
	mine := placed(t, h, "u1")
	placed(t, h, "u2")
	ctx := context.Background()

	got, err := h.engine.GetOrder(ctx, "u1", mine.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.ID)

	_, err = h.engine.GetOrder(ctx, "u2", mine.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	list, err := h.engine.ListOrders(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	none, err := h.engine.ListOrders(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	all, err := h.engine.ListAllOrders(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestStorageFailuresAreLogged(t *testing.T) {
	tests := []struct {
		op   string
		want string
		call func(h *harness, orderID string) error
	}{
		{"GetItem", "get order failed order=", func(h *harness, id string) error {
			_, err := h.engine.AdminGetOrder(context.Background(), id)
			return err
		}},
		{"Query", "list orders failed user=u1", func(h *harness, _ string) error {
			_, err := h.engine.ListOrders(context.Background(), "u1")
			return err
		}},
		{"Query", "list all orders failed limit=10", func(h *harness, _ string) error {
			_, err := h.engine.ListAllOrders(context.Background(), 10)
			return err
		}},
		{"GetItem", "get product failed user=u2", func(h *harness, _ string) error {
			_, err := h.engine.ApplicableCombos(context.Background(), "u2")
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			h := newHarness(t, pricing.Options{})
			o := placed(t, h, "u1")
			h.add(t, "u2", 1, 1)
			buf := captureLog(t)

			h.fake.FailNext(tc.op, errors.New("injected"))
			err := tc.call(h, o.ID)
			var pe *PersistenceError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Contains(t, buf.String(), "[checkout] "+tc.want)
		})
	}
}
