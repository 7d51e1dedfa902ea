package catalogue

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-cart-checkout/internal/aws/awstest"
)

func newTestStore(t *testing.T) (*Store, *awstest.FakeDynamo) {
	t.Helper()
	fake := awstest.NewFakeDynamo()
	fake.CreateTable("products", "product_id", "")
	fake.CreateTable("combos", "combo_id", "")
	s := NewStore(fake, "products", "combos")
	s.nowFunc = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s, fake
}

func TestPutGetProduct_RoundTripsFlashSale(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	flash := decimal.RequireFromString("7000.50")
	saved, err := s.PutProduct(ctx, Product{
		ID:             7,
		Name:           "Coke",
		Price:          decimal.NewFromInt(10000),
		FlashSalePrice: &flash,
		FlashSaleStart: &start,
		FlashSaleEnd:   &end,
		Active:         true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)

	got, err := s.GetProduct(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Coke", got.Name)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(10000)))
	require.NotNil(t, got.FlashSalePrice)
	assert.True(t, got.FlashSalePrice.Equal(flash))
	assert.True(t, got.FlashSaleStart.Equal(start))
	assert.True(t, got.FlashSaleEnd.Equal(end))
	assert.Equal(t, int64(1), got.Version)
}

func TestGetProduct_Missing(t *testing.T) {
	s, _ := newTestStore(t)
	got, err := s.GetProduct(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPutProduct_VersionConflict(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	p := Product{ID: 1, Name: "Chips", Price: decimal.NewFromInt(15000), Active: true}

	first, err := s.PutProduct(ctx, p)
	require.NoError(t, err)

	// a second create with version 0 must not clobber the first
	_, err = s.PutProduct(ctx, p)
	assert.ErrorIs(t, err, ErrVersionConflict)

	first.Price = decimal.NewFromInt(16000)
	second, err := s.PutProduct(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Version)

	// stale writer still holding version 1
	_, err = s.PutProduct(ctx, first)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestDeleteProduct(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.PutProduct(ctx, Product{ID: 1, Name: "Chips", Price: decimal.NewFromInt(15000), Active: true})
	require.NoError(t, err)

	require.NoError(t, s.DeleteProduct(ctx, 1))
	assert.ErrorIs(t, s.DeleteProduct(ctx, 1), ErrNotFound)
}

func TestListActiveCombos_FiltersAndOrders(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, c := range []Combo{
		{ID: 3, Name: "late", Items: []ComboItem{{ProductID: 1, Quantity: 1}}, Discount: decimal.NewFromInt(1000), Active: true},
		{ID: 1, Name: "early", Items: []ComboItem{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}, Discount: decimal.NewFromInt(5000), Active: true},
		{ID: 2, Name: "off", Items: []ComboItem{{ProductID: 2, Quantity: 1}}, Discount: decimal.NewFromInt(500), Active: false},
	} {
		_, err := s.PutCombo(ctx, c)
		require.NoError(t, err)
	}

	combos, err := s.ListActiveCombos(ctx)
	require.NoError(t, err)
	require.Len(t, combos, 2)
	assert.Equal(t, int64(1), combos[0].ID)
	assert.Equal(t, int64(3), combos[1].ID)
	assert.Equal(t, []ComboItem{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}, combos[0].Items)
	assert.True(t, combos[0].Discount.Equal(decimal.NewFromInt(5000)))
}

func TestPutCombo_RejectsInvalid(t *testing.T) {
	s, fake := newTestStore(t)
	_, err := s.PutCombo(context.Background(), Combo{ID: 1, Discount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, ErrInvalidCombo)
	assert.Equal(t, 0, fake.Calls("PutItem"))
}
