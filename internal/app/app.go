// Package app wires the stores, lock and checkout engine from a Config.
package app

import (
	"context"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/imrishuroy/go-cart-checkout/internal/aws"
	"github.com/imrishuroy/go-cart-checkout/internal/cart"
	"github.com/imrishuroy/go-cart-checkout/internal/catalogue"
	"github.com/imrishuroy/go-cart-checkout/internal/checkout"
	"github.com/imrishuroy/go-cart-checkout/internal/config"
	"github.com/imrishuroy/go-cart-checkout/internal/lock"
	"github.com/imrishuroy/go-cart-checkout/internal/orders"
	"github.com/imrishuroy/go-cart-checkout/internal/pricing"
	"github.com/imrishuroy/go-cart-checkout/internal/sqlstore"
)

// Catalogue is implemented by both catalogue backends.
type Catalogue interface {
	GetProduct(ctx context.Context, id int64) (*catalogue.Product, error)
	ListProducts(ctx context.Context) ([]catalogue.Product, error)
	PutProduct(ctx context.Context, p catalogue.Product) (catalogue.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	GetCombo(ctx context.Context, id int64) (*catalogue.Combo, error)
	PutCombo(ctx context.Context, c catalogue.Combo) (catalogue.Combo, error)
	DeleteCombo(ctx context.Context, id int64) error
	ListActiveCombos(ctx context.Context) ([]catalogue.Combo, error)
}

// App is the wired service.
type App struct {
	Engine    *checkout.Engine
	Carts     *cart.Service
	Catalogue Catalogue
	Orders    orders.Repository

	closers []func() error
}

type stores struct {
	catalogue Catalogue
	carts     cart.Repository
	orders    orders.Repository
}

// New builds the App for cfg.Backend.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{}

	var (
		st        stores
		publisher checkout.Publisher
	)
	switch cfg.Backend {
	case config.BackendMySQL:
		db, err := sqlstore.Open(cfg.MySQL)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		if st, err = a.mysqlStores(db, sqlstore.EnsureSchema); err != nil {
			return nil, err
		}
	default:
		clients, err := aws.NewAWSClients(ctx, aws.ConfigOptions{
			Region:           cfg.AWS.Region,
			EndpointOverride: cfg.AWS.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("init aws clients: %w", err)
		}
		st = dynamoStores(cfg.Tables, clients.DynamoDB)
		if cfg.Queue.OrdersURL != "" {
			publisher = aws.NewPublisher(clients.SQS, cfg.Queue.OrdersURL)
		}
	}

	locker, err := a.locker(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.wire(cfg, st, locker, publisher)
	log.Printf("[app] wired backend=%s lock=%s publish=%t share_combo_units=%t",
		cfg.Backend, cfg.Lock.Provider, publisher != nil, cfg.Pricing.ShareComboUnits)
	return a, nil
}

// mysqlStores migrates db and builds the stores on it. The pool is closed when
// migration fails.
func (a *App) mysqlStores(db *gorm.DB, migrate func(*gorm.DB) error) (stores, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return stores{}, fmt.Errorf("mysql pool: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = sqlDB.Close()
		return stores{}, fmt.Errorf("migrate mysql: %w", err)
	}
	a.closers = append(a.closers, sqlDB.Close)
	return stores{
		catalogue: sqlstore.NewCatalogueStore(db),
		carts:     sqlstore.NewCartStore(db),
		orders:    sqlstore.NewOrderStore(db),
	}, nil
}

func dynamoStores(t config.TablesConfig, client aws.DynamoDBAPI) stores {
	return stores{
		catalogue: catalogue.NewStore(client, t.Products, t.Combos),
		carts:     cart.NewStore(client, t.Carts),
		orders:    orders.NewStore(client, t.Orders, t.Carts, t.Products),
	}
}

func (a *App) locker(ctx context.Context, cfg config.Config) (lock.Locker, error) {
	if cfg.Lock.Provider != config.LockRedis {
		return lock.NewLocal(cfg.Lock.Wait), nil
	}
	client, err := lock.Dial(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return lock.NewRedis(client, lock.RedisOptions{TTL: cfg.Lock.TTL, Wait: cfg.Lock.Wait}), nil
}

func (a *App) wire(cfg config.Config, st stores, locker lock.Locker, publisher checkout.Publisher) {
	a.Catalogue = st.catalogue
	a.Orders = st.orders
	a.Carts = cart.NewService(st.carts, st.catalogue, locker, cfg.Cart.MaxLines)
	a.Engine = checkout.NewEngine(checkout.Deps{
		Catalogue: st.catalogue,
		Carts:     st.carts,
		Orders:    st.orders,
		Locker:    locker,
		Publisher: publisher,
	}, pricing.Options{ShareComboUnits: cfg.Pricing.ShareComboUnits})
}

// Close releases connections opened by New.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
