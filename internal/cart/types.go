package cart

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrLineNotFound       = errors.New("item not found in cart")
	ErrTooManyLines       = errors.New("cart has too many distinct products")
	ErrProductUnavailable = errors.New("product is not available")
	ErrVersionConflict    = errors.New("cart line was modified concurrently")
)

// Line is one product and its quantity in a user's cart.
type Line struct {
	UserID    string    `json:"-"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Version   int64     `json:"version"`
	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository persists cart lines.
type Repository interface {
	// Lines returns the user's lines ordered by product id.
	Lines(ctx context.Context, userID string) ([]Line, error)
	// Line returns (nil, nil) when the user has no line for productID.
	Line(ctx context.Context, userID string, productID int64) (*Line, error)
	// Save writes line, which must carry the next version: 1 for a new line,
	// stored version + 1 otherwise. ErrVersionConflict when that does not hold.
	Save(ctx context.Context, line Line) error
	// Remove deletes a line. ErrLineNotFound when absent.
	Remove(ctx context.Context, userID string, productID int64) error
}

// Quantities folds lines into product -> quantity.
func Quantities(lines []Line) map[int64]int {
	q := make(map[int64]int, len(lines))
	for _, l := range lines {
		q[l.ProductID] += l.Quantity
	}
	return q
}
