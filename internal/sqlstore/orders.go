package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/imrishuroy/go-cart-checkout/internal/orders"
)

// OrderStore implements orders.Repository.
type OrderStore struct {
	db      *gorm.DB
	nowFunc func() time.Time
}

func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db, nowFunc: time.Now}
}

var _ orders.Repository = (*OrderStore)(nil)

// CommitCheckout runs in one transaction: the consumed cart lines and the
// priced products are locked FOR UPDATE and compared to the versions that
// were read, then the order is inserted and the lines deleted.
func (s *OrderStore) CommitCheckout(ctx context.Context, c orders.Checkout) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, l := range c.Cart {
			var m cartLineModel
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&m, "user_id = ? AND product_id = ?", l.UserID, l.ProductID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return orders.ErrCartChanged
			}
			if err != nil {
				return fmt.Errorf("lock cart line: %w", err)
			}
			if m.Version != l.Version {
				return orders.ErrCartChanged
			}
		}

		for _, pv := range c.Products {
			var m productModel
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Select("id", "version").
				First(&m, "id = ?", pv.ProductID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &orders.StaleProductError{ProductID: pv.ProductID, Missing: true}
			}
			if err != nil {
				return fmt.Errorf("lock product: %w", err)
			}
			if m.Version != pv.Version {
				return &orders.StaleProductError{ProductID: pv.ProductID}
			}
		}

		m := orderToModel(c.Order)
		if err := tx.Create(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return orders.ErrOrderExists
			}
			return fmt.Errorf("create order: %w", err)
		}

		for _, l := range c.Cart {
			res := tx.Delete(&cartLineModel{}, "user_id = ? AND product_id = ? AND version = ?", l.UserID, l.ProductID, l.Version)
			if res.Error != nil {
				return fmt.Errorf("delete cart line: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return orders.ErrCartChanged
			}
		}
		return nil
	})
}

// Get returns (nil, nil) when the order does not exist.
func (s *OrderStore) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	var m orderModel
	err := s.withLines(ctx).First(&m, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	o := m.toOrder()
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (s *OrderStore) ListByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	var ms []orderModel
	err := s.withLines(ctx).Where("user_id = ?", userID).Order("created_at DESC, id").Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("list orders of user: %w", err)
	}
	return toOrders(ms), nil
}

// List returns up to limit orders across all users, newest first.
// limit <= 0 returns everything.
func (s *OrderStore) List(ctx context.Context, limit int) ([]orders.Order, error) {
	q := s.withLines(ctx).Order("created_at DESC, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ms []orderModel
	if err := q.Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return toOrders(ms), nil
}

// UpdateStatus writes next only if the stored status is still expected.
func (s *OrderStore) UpdateStatus(ctx context.Context, orderID string, expected, next orders.Status) error {
	return s.conditionalSet(ctx, orderID, "status", string(expected), string(next))
}

func (s *OrderStore) UpdatePaymentStatus(ctx context.Context, orderID string, expected, next orders.PaymentStatus) error {
	return s.conditionalSet(ctx, orderID, "payment_status", string(expected), string(next))
}

func (s *OrderStore) conditionalSet(ctx context.Context, orderID, column, expected, next string) error {
	res := s.db.WithContext(ctx).Model(&orderModel{}).
		Where("id = ? AND "+column+" = ?", orderID, expected).
		Updates(map[string]interface{}{
			column:       next,
			"updated_at": s.nowFunc().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("update order %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return orders.ErrStatusMismatch
	}
	return nil
}

func (s *OrderStore) withLines(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
}

func toOrders(ms []orderModel) []orders.Order {
	out := make([]orders.Order, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.toOrder())
	}
	return out
}
