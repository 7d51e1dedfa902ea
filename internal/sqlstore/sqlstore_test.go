package sqlstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/imrishuroy/go-cart-checkout/internal/cart"
	"github.com/imrishuroy/go-cart-checkout/internal/catalogue"
	"github.com/imrishuroy/go-cart-checkout/internal/orders"
)

// openTestDB connects to MYSQL_TEST_DSN and resets the schema, e.g.
// MYSQL_TEST_DSN='checkout:checkout@tcp(127.0.0.1:3306)/checkout_test?parseTime=True&loc=UTC'
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN not set")
	}
	db, err := OpenDSN(dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrator().DropTable(&orderLineModel{}, &orderModel{}, &cartLineModel{}, &comboItemModel{}, &comboModel{}, &productModel{}))
	require.NoError(t, EnsureSchema(db))
	return db
}

type fixture struct {
	catalogue *CatalogueStore
	carts     *CartStore
	orders    *OrderStore
}

func newFixture(t *testing.T) *fixture {
	db := openTestDB(t)
	f := &fixture{catalogue: NewCatalogueStore(db), carts: NewCartStore(db), orders: NewOrderStore(db)}
	ctx := context.Background()
	for _, p := range []catalogue.Product{
		{ID: 1, Name: "Coke", Price: decimal.NewFromInt(10000), Active: true},
		{ID: 2, Name: "Chips", Price: decimal.NewFromInt(15000), Active: true},
	} {
		_, err := f.catalogue.PutProduct(ctx, p)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) line(t *testing.T, userID string, productID int64, qty int) cart.Line {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	l := cart.Line{UserID: userID, ProductID: productID, Quantity: qty, Version: 1, AddedAt: now, UpdatedAt: now}
	require.NoError(t, f.carts.Save(context.Background(), l))
	return l
}

func checkoutFor(id string, lines []cart.Line, products []orders.ProductVersion) orders.Checkout {
	now := time.Now().UTC().Truncate(time.Second)
	o := orders.Order{
		ID: id, UserID: "u1",
		Subtotal: decimal.NewFromInt(10000), Discount: decimal.Zero, Total: decimal.NewFromInt(10000),
		AppliedCombos: []int64{},
		Status:        orders.StatusUnprocessed, PaymentMethod: orders.PaymentCOD, PaymentStatus: orders.PaymentPending,
		Lines:     []orders.Line{{ProductID: 1, ProductName: "Coke", UnitPrice: decimal.NewFromInt(10000), Quantity: 1, LineTotal: decimal.NewFromInt(10000)}},
		CreatedAt: now, UpdatedAt: now,
	}
	return orders.Checkout{Order: o, Cart: lines, Products: products}
}

func TestCatalogueStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.catalogue.GetProduct(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(1), p.Version)
	assert.True(t, p.Price.Equal(decimal.NewFromInt(10000)))

	p.Price = decimal.NewFromInt(12000)
	updated, err := f.catalogue.PutProduct(ctx, *p)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	_, err = f.catalogue.PutProduct(ctx, *p) // stale version 1
	assert.ErrorIs(t, err, catalogue.ErrVersionConflict)

	_, err = f.catalogue.PutCombo(ctx, catalogue.Combo{
		ID: 1, Name: "Snack pack", Active: true, Discount: decimal.NewFromInt(5000),
		Items: []catalogue.ComboItem{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}},
	})
	require.NoError(t, err)
	combos, err := f.catalogue.ListActiveCombos(ctx)
	require.NoError(t, err)
	require.Len(t, combos, 1)
	assert.Equal(t, map[int64]int{1: 2, 2: 1}, combos[0].Requirements())

	got, err := f.catalogue.GetCombo(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Snack pack", got.Name)
	none, err := f.catalogue.GetCombo(ctx, 9)
	require.NoError(t, err)
	assert.Nil(t, none)

	all, err := f.catalogue.ListProducts(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, int64(1), all[0].ID)

	require.NoError(t, f.catalogue.DeleteCombo(ctx, 1))
	assert.ErrorIs(t, f.catalogue.DeleteCombo(ctx, 1), catalogue.ErrNotFound)
	missing, err := f.catalogue.GetProduct(ctx, 42)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCartStore_Versions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.line(t, "u1", 1, 1)

	assert.ErrorIs(t, f.carts.Save(ctx, l), cart.ErrVersionConflict)

	l.Quantity, l.Version = 3, 2
	require.NoError(t, f.carts.Save(ctx, l))
	assert.ErrorIs(t, f.carts.Save(ctx, l), cart.ErrVersionConflict)

	got, err := f.carts.Line(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Quantity)

	require.NoError(t, f.carts.Remove(ctx, "u1", 1))
	assert.ErrorIs(t, f.carts.Remove(ctx, "u1", 1), cart.ErrLineNotFound)
}

func TestOrderStore_CommitCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.line(t, "u1", 1, 1)
	pv := []orders.ProductVersion{{ProductID: 1, Version: 1}}

	require.NoError(t, f.orders.CommitCheckout(ctx, checkoutFor("o1", []cart.Line{l}, pv)))

	lines, err := f.carts.Lines(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, lines)

	o, err := f.orders.Get(ctx, "o1")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.True(t, o.Reconciles())
	assert.Len(t, o.Lines, 1)

	// the cart line is gone now
	err = f.orders.CommitCheckout(ctx, checkoutFor("o2", []cart.Line{l}, pv))
	assert.ErrorIs(t, err, orders.ErrCartChanged)

	l2 := f.line(t, "u1", 1, 1)
	err = f.orders.CommitCheckout(ctx, checkoutFor("o3", []cart.Line{l2}, []orders.ProductVersion{{ProductID: 1, Version: 7}}))
	var stale *orders.StaleProductError
	require.True(t, errors.As(err, &stale))
	assert.False(t, stale.Missing)

	err = f.orders.CommitCheckout(ctx, checkoutFor("o1", []cart.Line{l2}, pv))
	assert.ErrorIs(t, err, orders.ErrOrderExists)

	// failed commits leave the cart alone
	lines, err = f.carts.Lines(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestOrderStore_StatusUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.line(t, "u1", 1, 1)
	require.NoError(t, f.orders.CommitCheckout(ctx, checkoutFor("o1", []cart.Line{l}, []orders.ProductVersion{{ProductID: 1, Version: 1}})))

	require.NoError(t, f.orders.UpdateStatus(ctx, "o1", orders.StatusUnprocessed, orders.StatusProcessing))
	assert.ErrorIs(t, f.orders.UpdateStatus(ctx, "o1", orders.StatusUnprocessed, orders.StatusProcessing), orders.ErrStatusMismatch)
	require.NoError(t, f.orders.UpdatePaymentStatus(ctx, "o1", orders.PaymentPending, orders.PaymentPaid))

	list, err := f.orders.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, orders.StatusProcessing, list[0].Status)
	assert.Equal(t, orders.PaymentPaid, list[0].PaymentStatus)

	all, err := f.orders.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
