package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/imrishuroy/go-cart-checkout/internal/cart"
)

// CartStore implements cart.Repository.
type CartStore struct {
	db *gorm.DB
}

func NewCartStore(db *gorm.DB) *CartStore {
	return &CartStore{db: db}
}

var _ cart.Repository = (*CartStore)(nil)

func (s *CartStore) Lines(ctx context.Context, userID string) ([]cart.Line, error) {
	var ms []cartLineModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("product_id").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	lines := make([]cart.Line, 0, len(ms))
	for _, m := range ms {
		lines = append(lines, m.toLine())
	}
	return lines, nil
}

func (s *CartStore) Line(ctx context.Context, userID string, productID int64) (*cart.Line, error) {
	var m cartLineModel
	err := s.db.WithContext(ctx).First(&m, "user_id = ? AND product_id = ?", userID, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart line: %w", err)
	}
	l := m.toLine()
	return &l, nil
}

// Save inserts version 1 or updates from version-1.
func (s *CartStore) Save(ctx context.Context, line cart.Line) error {
	m := cartLineModel{
		UserID:    line.UserID,
		ProductID: line.ProductID,
		Quantity:  line.Quantity,
		Version:   line.Version,
		AddedAt:   line.AddedAt,
		UpdatedAt: line.UpdatedAt,
	}
	db := s.db.WithContext(ctx)
	if line.Version == 1 {
		if err := db.Create(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return cart.ErrVersionConflict
			}
			return fmt.Errorf("create cart line: %w", err)
		}
		return nil
	}
	res := db.Model(&cartLineModel{}).
		Where("user_id = ? AND product_id = ? AND version = ?", line.UserID, line.ProductID, line.Version-1).
		Updates(map[string]interface{}{
			"quantity":   line.Quantity,
			"version":    line.Version,
			"updated_at": line.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update cart line: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return cart.ErrVersionConflict
	}
	return nil
}

func (s *CartStore) Remove(ctx context.Context, userID string, productID int64) error {
	res := s.db.WithContext(ctx).Delete(&cartLineModel{}, "user_id = ? AND product_id = ?", userID, productID)
	if res.Error != nil {
		return fmt.Errorf("delete cart line: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}
