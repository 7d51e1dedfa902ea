package checkout

import (
	"errors"
	"fmt"

	"github.com/imrishuroy/go-cart-checkout/internal/lock"
	"github.com/imrishuroy/go-cart-checkout/internal/orders"
)

var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrCartConflict   = errors.New("cart or catalogue changed during checkout, please retry")
	ErrOrderNotFound  = errors.New("order not found")
	ErrStatusConflict = errors.New("order was updated concurrently")
	ErrLockTimeout    = lock.ErrTimeout

	ErrInvalidTransition = orders.ErrInvalidTransition
)

// InvalidStateError is returned for a status value outside the enumerated set.
type InvalidStateError = orders.InvalidStateError

// ProductUnavailableError names a cart product that no longer exists or is
// no longer sold.
type ProductUnavailableError struct {
	ProductID int64
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %d is no longer available", e.ProductID)
}

// InvalidInputError reports a rejected checkout field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a storage failure. Checkouts that fail with it are
// not retried by the engine.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// reason is a low-cardinality label for failure metrics.
func reason(err error) string {
	var (
		pu *ProductUnavailableError
		ii *InvalidInputError
		pe *PersistenceError
	)
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrCartConflict):
		return "conflict"
	case errors.Is(err, ErrLockTimeout):
		return "lock_timeout"
	case errors.As(err, &pu):
		return "product_unavailable"
	case errors.As(err, &ii):
		return "invalid_input"
	case errors.As(err, &pe):
		return "persistence"
	}
	return "other"
}
