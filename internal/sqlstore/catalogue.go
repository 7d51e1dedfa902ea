package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/imrishuroy/go-cart-checkout/internal/catalogue"
)

// CatalogueStore persists products and combos.
type CatalogueStore struct {
	db      *gorm.DB
	nowFunc func() time.Time
}

func NewCatalogueStore(db *gorm.DB) *CatalogueStore {
	return &CatalogueStore{db: db, nowFunc: time.Now}
}

// GetProduct returns (nil, nil) if the product does not exist.
func (s *CatalogueStore) GetProduct(ctx context.Context, id int64) (*catalogue.Product, error) {
	var m productModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	p := m.toProduct()
	return &p, nil
}

// ListProducts returns every product in ascending id order.
func (s *CatalogueStore) ListProducts(ctx context.Context) ([]catalogue.Product, error) {
	var ms []productModel
	if err := s.db.WithContext(ctx).Order("id").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out := make([]catalogue.Product, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.toProduct())
	}
	return out, nil
}

// PutProduct creates or replaces a product and bumps its version.
// p.Version must be the version the caller read (0 for a new product).
func (s *CatalogueStore) PutProduct(ctx context.Context, p catalogue.Product) (catalogue.Product, error) {
	if err := p.Validate(); err != nil {
		return catalogue.Product{}, err
	}
	expected := p.Version
	p.Version = expected + 1
	p.UpdatedAt = s.nowFunc().UTC()
	m := productToModel(p)

	db := s.db.WithContext(ctx)
	if expected == 0 {
		if err := db.Create(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return catalogue.Product{}, catalogue.ErrVersionConflict
			}
			return catalogue.Product{}, fmt.Errorf("create product: %w", err)
		}
		return p, nil
	}

	res := db.Model(&productModel{}).
		Where("id = ? AND version = ?", p.ID, expected).
		Updates(map[string]interface{}{
			"name":             m.Name,
			"price":            m.Price,
			"flash_sale_price": m.FlashSalePrice,
			"flash_sale_start": m.FlashSaleStart,
			"flash_sale_end":   m.FlashSaleEnd,
			"active":           m.Active,
			"version":          m.Version,
			"updated_at":       m.UpdatedAt,
		})
	if res.Error != nil {
		return catalogue.Product{}, fmt.Errorf("update product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return catalogue.Product{}, catalogue.ErrVersionConflict
	}
	return p, nil
}

// DeleteProduct removes a product. Returns catalogue.ErrNotFound if absent.
func (s *CatalogueStore) DeleteProduct(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&productModel{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return catalogue.ErrNotFound
	}
	return nil
}

// GetCombo returns (nil, nil) if the combo does not exist.
func (s *CatalogueStore) GetCombo(ctx context.Context, id int64) (*catalogue.Combo, error) {
	var m comboModel
	err := s.db.WithContext(ctx).Preload("Items").First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get combo: %w", err)
	}
	c := m.toCombo()
	return &c, nil
}

// PutCombo creates or replaces a combo and its items.
func (s *CatalogueStore) PutCombo(ctx context.Context, c catalogue.Combo) (catalogue.Combo, error) {
	if err := c.Validate(); err != nil {
		return catalogue.Combo{}, err
	}
	m := comboModel{
		ID:        c.ID,
		Name:      c.Name,
		Discount:  c.Discount,
		Active:    c.Active,
		UpdatedAt: s.nowFunc().UTC(),
	}
	items := make([]comboItemModel, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, comboItemModel{ComboID: c.ID, ProductID: it.ProductID, Quantity: it.Quantity})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&m).Error; err != nil {
			return err
		}
		if err := tx.Where("combo_id = ?", c.ID).Delete(&comboItemModel{}).Error; err != nil {
			return err
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		return catalogue.Combo{}, fmt.Errorf("put combo: %w", err)
	}
	return c, nil
}

// DeleteCombo removes a combo. Returns catalogue.ErrNotFound if absent.
func (s *CatalogueStore) DeleteCombo(ctx context.Context, id int64) error {
	var affected int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("combo_id = ?", id).Delete(&comboItemModel{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&comboModel{}, "id = ?", id)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("delete combo: %w", err)
	}
	if affected == 0 {
		return catalogue.ErrNotFound
	}
	return nil
}

// ListActiveCombos returns active combos in ascending id order.
func (s *CatalogueStore) ListActiveCombos(ctx context.Context) ([]catalogue.Combo, error) {
	var ms []comboModel
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("active = ?", true).
		Order("id").
		Find(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("list combos: %w", err)
	}
	out := make([]catalogue.Combo, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.toCombo())
	}
	return out, nil
}
