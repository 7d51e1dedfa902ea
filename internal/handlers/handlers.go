package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-cart-checkout/internal/authz"
	"github.com/imrishuroy/go-cart-checkout/internal/cart"
	"github.com/imrishuroy/go-cart-checkout/internal/catalogue"
	"github.com/imrishuroy/go-cart-checkout/internal/checkout"
	"github.com/imrishuroy/go-cart-checkout/internal/lock"
	"github.com/imrishuroy/go-cart-checkout/internal/orders"
	"github.com/imrishuroy/go-cart-checkout/internal/pricing"
)

// Checkout is the engine surface the routes use.
type Checkout interface {
	PlaceOrder(ctx context.Context, userID string, req checkout.PlaceOrderRequest) (*orders.Order, error)
	ApplicableCombos(ctx context.Context, userID string) ([]catalogue.Combo, error)
	Quote(ctx context.Context, userID string) (pricing.Quote, error)
	GetOrder(ctx context.Context, userID, orderID string) (*orders.Order, error)
	AdminGetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	ListOrders(ctx context.Context, userID string) ([]orders.Order, error)
	ListAllOrders(ctx context.Context, limit int) ([]orders.Order, error)
	UpdateStatus(ctx context.Context, orderID, value string) (*orders.Order, error)
	UpdatePaymentStatus(ctx context.Context, orderID, value string) (*orders.Order, error)
}

// Carts is the cart service surface the routes use.
type Carts interface {
	Lines(ctx context.Context, userID string) ([]cart.Line, error)
	Add(ctx context.Context, userID string, productID int64, qty int) (cart.Line, error)
	SetQuantity(ctx context.Context, userID string, productID int64, qty int) (*cart.Line, error)
	Remove(ctx context.Context, userID string, productID int64) error
	Clear(ctx context.Context, userID string) error
}

// Catalogue is the catalogue surface: public reads and admin writes.
type Catalogue interface {
	GetProduct(ctx context.Context, id int64) (*catalogue.Product, error)
	ListProducts(ctx context.Context) ([]catalogue.Product, error)
	GetCombo(ctx context.Context, id int64) (*catalogue.Combo, error)
	ListActiveCombos(ctx context.Context) ([]catalogue.Combo, error)
	PutProduct(ctx context.Context, p catalogue.Product) (catalogue.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	PutCombo(ctx context.Context, c catalogue.Combo) (catalogue.Combo, error)
	DeleteCombo(ctx context.Context, id int64) error
}

// HandlerConfig groups dependencies for the API routes.
type HandlerConfig struct {
	Checkout  Checkout
	Carts     Carts
	Catalogue Catalogue
}

// RegisterRoutes registers the catalogue, cart, order and admin routes.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	registerCatalogueRoutes(r, cfg)
	registerCartRoutes(r, cfg)
	registerOrdersRoutes(r, cfg)
	registerAdminRoutes(r, cfg)
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var (
		invalidInput *checkout.InvalidInputError
		invalidState *checkout.InvalidStateError
		unavailable  *checkout.ProductUnavailableError
	)
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		status, code = http.StatusBadRequest, "empty_cart"
	case errors.As(err, &invalidInput):
		status, code = http.StatusBadRequest, "invalid_input"
	case errors.As(err, &invalidState):
		status, code = http.StatusBadRequest, "invalid_state"
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrTooManyLines),
		errors.Is(err, catalogue.ErrInvalidProduct), errors.Is(err, catalogue.ErrInvalidCombo):
		status, code = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, authz.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.As(err, &unavailable), errors.Is(err, cart.ErrProductUnavailable):
		status, code = http.StatusNotFound, "product_unavailable"
	case errors.Is(err, checkout.ErrOrderNotFound):
		status, code = http.StatusNotFound, "order_not_found"
	case errors.Is(err, cart.ErrLineNotFound), errors.Is(err, catalogue.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, checkout.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, checkout.ErrCartConflict), errors.Is(err, checkout.ErrStatusConflict),
		errors.Is(err, cart.ErrVersionConflict), errors.Is(err, catalogue.ErrVersionConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, lock.ErrTimeout):
		status, code = http.StatusLocked, "cart_busy"
	}

	if status == http.StatusInternalServerError {
		log.Printf("[http] %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": code})
		return
	}
	c.JSON(status, gin.H{"error": code, "msg": err.Error()})
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_path_param", "msg": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}
