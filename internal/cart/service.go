package cart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/imrishuroy/go-cart-checkout/internal/catalogue"
	"github.com/imrishuroy/go-cart-checkout/internal/lock"
)

// DefaultMaxLines keeps a checkout within one DynamoDB transaction
// (one order put plus a delete and a product check per line).
const DefaultMaxLines = 40

// ProductLookup resolves catalogue products.
type ProductLookup interface {
	GetProduct(ctx context.Context, id int64) (*catalogue.Product, error)
}

// Service applies cart mutations under the per-user cart lock.
type Service struct {
	repo     Repository
	products ProductLookup
	locker   lock.Locker
	maxLines int
	nowFunc  func() time.Time
}

// NewService wires a cart Service. maxLines <= 0 uses DefaultMaxLines.
func NewService(repo Repository, products ProductLookup, locker lock.Locker, maxLines int) *Service {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Service{
		repo:     repo,
		products: products,
		locker:   locker,
		maxLines: maxLines,
		nowFunc:  time.Now,
	}
}

// Lines returns the user's cart.
func (s *Service) Lines(ctx context.Context, userID string) ([]Line, error) {
	return s.repo.Lines(ctx, userID)
}

// Add puts qty units of a product in the cart, incrementing an existing line.
func (s *Service) Add(ctx context.Context, userID string, productID int64, qty int) (Line, error) {
	if qty < 1 {
		return Line{}, ErrInvalidQuantity
	}
	release, err := s.locker.Lock(ctx, lock.CartKey(userID))
	if err != nil {
		return Line{}, fmt.Errorf("lock cart: %w", err)
	}
	defer release()

	if err := s.checkProduct(ctx, productID); err != nil {
		return Line{}, err
	}

	now := s.nowFunc().UTC()
	existing, err := s.repo.Line(ctx, userID, productID)
	if err != nil {
		return Line{}, err
	}

	var line Line
	if existing != nil {
		line = *existing
		line.Quantity += qty
		line.Version++
		line.UpdatedAt = now
	} else {
		lines, err := s.repo.Lines(ctx, userID)
		if err != nil {
			return Line{}, err
		}
		if len(lines) >= s.maxLines {
			return Line{}, ErrTooManyLines
		}
		line = Line{
			UserID:    userID,
			ProductID: productID,
			Quantity:  qty,
			Version:   1,
			AddedAt:   now,
			UpdatedAt: now,
		}
	}

	if err := s.repo.Save(ctx, line); err != nil {
		return Line{}, err
	}
	log.Printf("[cart] add user=%s product=%d qty=%d total=%d", userID, productID, qty, line.Quantity)
	return line, nil
}

// SetQuantity replaces a line's quantity. Zero removes the line and returns nil.
func (s *Service) SetQuantity(ctx context.Context, userID string, productID int64, qty int) (*Line, error) {
	if qty < 0 {
		return nil, ErrInvalidQuantity
	}
	release, err := s.locker.Lock(ctx, lock.CartKey(userID))
	if err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}
	defer release()

	if qty == 0 {
		return nil, s.repo.Remove(ctx, userID, productID)
	}

	existing, err := s.repo.Line(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrLineNotFound
	}
	line := *existing
	line.Quantity = qty
	line.Version++
	line.UpdatedAt = s.nowFunc().UTC()
	if err := s.repo.Save(ctx, line); err != nil {
		return nil, err
	}
	return &line, nil
}

// Remove deletes one product from the cart.
func (s *Service) Remove(ctx context.Context, userID string, productID int64) error {
	release, err := s.locker.Lock(ctx, lock.CartKey(userID))
	if err != nil {
		return fmt.Errorf("lock cart: %w", err)
	}
	defer release()
	return s.repo.Remove(ctx, userID, productID)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	release, err := s.locker.Lock(ctx, lock.CartKey(userID))
	if err != nil {
		return fmt.Errorf("lock cart: %w", err)
	}
	defer release()

	lines, err := s.repo.Lines(ctx, userID)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if err := s.repo.Remove(ctx, userID, l.ProductID); err != nil && !errors.Is(err, ErrLineNotFound) {
			return err
		}
	}
	return nil
}

func (s *Service) checkProduct(ctx context.Context, productID int64) error {
	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if p == nil || !p.Active {
		return fmt.Errorf("%w: %d", ErrProductUnavailable, productID)
	}
	return nil
}
