package app

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/imrishuroy/go-cart-checkout/internal/aws/awstest"
	"github.com/imrishuroy/go-cart-checkout/internal/catalogue"
	"github.com/imrishuroy/go-cart-checkout/internal/checkout"
	"github.com/imrishuroy/go-cart-checkout/internal/config"
	"github.com/imrishuroy/go-cart-checkout/internal/lock"
	"github.com/imrishuroy/go-cart-checkout/internal/orders"
)

func TestWire_DynamoBackend(t *testing.T) {
	cfg := config.Default()
	fake := awstest.NewFakeDynamo()
	fake.CreateTable(cfg.Tables.Products, "product_id", "")
	fake.CreateTable(cfg.Tables.Combos, "combo_id", "")
	fake.CreateTable(cfg.Tables.Carts, "user_id", "product_id")
	fake.CreateTable(cfg.Tables.Orders, "order_id", "")
	fake.CreateIndex(cfg.Tables.Orders, orders.FeedIndex, "created_ms")

	a := &App{}
	a.wire(cfg, dynamoStores(cfg.Tables, fake), lock.NewLocal(cfg.Lock.Wait), nil)
	ctx := context.Background()

	_, err := a.Catalogue.PutProduct(ctx, catalogue.Product{ID: 1, Name: "Coke", Price: decimal.NewFromInt(10000), Active: true})
	require.NoError(t, err)
	_, err = a.Carts.Add(ctx, "u1", 1, 2)
	require.NoError(t, err)

	o, err := a.Engine.PlaceOrder(ctx, "u1", checkout.PlaceOrderRequest{})
	require.NoError(t, err)
	assert.True(t, o.Total.Equal(decimal.NewFromInt(20000)))

	stored, err := a.Orders.Get(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NoError(t, a.Close())
}

func TestLocker_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Lock.Provider = config.LockRedis
	cfg.Redis.URL = "redis://" + mr.Addr()

	a := &App{}
	l, err := a.locker(context.Background(), cfg)
	require.NoError(t, err)
	_, ok := l.(*lock.Redis)
	assert.True(t, ok)

	release, err := l.Lock(context.Background(), lock.CartKey("u1"))
	require.NoError(t, err)
	release()
	assert.NoError(t, a.Close())
}

func TestMySQLStores_MigrateFailureClosesPool(t *testing.T) {
	// no server is contacted: version probing and the initial ping are off
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       config.Default().MySQL.DSN(),
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	a := &App{}
	_, err = a.mysqlStores(db, func(*gorm.DB) error { return errors.New("migration refused") })
	require.ErrorContains(t, err, "migrate mysql: migration refused")
	assert.Empty(t, a.closers)
	assert.ErrorContains(t, sqlDB.PingContext(context.Background()), "database is closed")
}

func TestMySQLStores_Success(t *testing.T) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       config.Default().MySQL.DSN(),
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)

	a := &App{}
	st, err := a.mysqlStores(db, func(*gorm.DB) error { return nil })
	require.NoError(t, err)
	assert.NotNil(t, st.catalogue)
	assert.NotNil(t, st.orders)
	assert.Len(t, a.closers, 1)
	assert.NoError(t, a.Close())
}
