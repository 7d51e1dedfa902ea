package catalogue

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidProduct  = errors.New("invalid product")
	ErrInvalidCombo    = errors.New("invalid combo")
	ErrNotFound        = errors.New("catalogue entry not found")
	ErrVersionConflict = errors.New("catalogue entry was modified concurrently")
)

// Product is a sellable catalogue entry with an optional flash sale.
type Product struct {
	ID             int64            `json:"id"`
	Name           string           `json:"name"`
	Price          decimal.Decimal  `json:"price"`
	FlashSalePrice *decimal.Decimal `json:"flash_sale_price,omitempty"`
	FlashSaleStart *time.Time       `json:"flash_sale_start,omitempty"`
	FlashSaleEnd   *time.Time       `json:"flash_sale_end,omitempty"`
	Active         bool             `json:"active"`
	Version        int64            `json:"version"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// FlashSaleActive reports whether the flash-sale price applies at now.
// The window is half-open: [start, end).
func (p Product) FlashSaleActive(now time.Time) bool {
	if p.FlashSalePrice == nil || !p.FlashSalePrice.IsPositive() {
		return false
	}
	if p.FlashSaleStart == nil || p.FlashSaleEnd == nil {
		return false
	}
	return !now.Before(*p.FlashSaleStart) && now.Before(*p.FlashSaleEnd)
}

// EffectivePrice is the unit price charged at now.
func (p Product) EffectivePrice(now time.Time) decimal.Decimal {
	if p.FlashSaleActive(now) {
		return *p.FlashSalePrice
	}
	return p.Price
}

// Validate checks the invariants an admin write must satisfy.
func (p Product) Validate() error {
	if p.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidProduct)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if !p.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", ErrInvalidProduct)
	}
	if p.FlashSalePrice != nil && p.FlashSalePrice.IsNegative() {
		return fmt.Errorf("%w: flash sale price must not be negative", ErrInvalidProduct)
	}
	if (p.FlashSaleStart == nil) != (p.FlashSaleEnd == nil) {
		return fmt.Errorf("%w: flash sale window needs both start and end", ErrInvalidProduct)
	}
	if p.FlashSaleStart != nil && !p.FlashSaleStart.Before(*p.FlashSaleEnd) {
		return fmt.Errorf("%w: flash sale start must be before end", ErrInvalidProduct)
	}
	return nil
}

// ComboItem is one required product of a combo.
type ComboItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Combo grants a flat discount when all of its items are in a cart.
type Combo struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Items    []ComboItem     `json:"items"`
	Discount decimal.Decimal `json:"discount"`
	Active   bool            `json:"active"`
}

// Requirements returns the required quantity per product, merging duplicates.
func (c Combo) Requirements() map[int64]int {
	req := make(map[int64]int, len(c.Items))
	for _, it := range c.Items {
		req[it.ProductID] += it.Quantity
	}
	return req
}

// ProductIDs returns the distinct required products in ascending order.
func (c Combo) ProductIDs() []int64 {
	req := c.Requirements()
	ids := make([]int64, 0, len(req))
	for id := range req {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c Combo) Validate() error {
	if c.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidCombo)
	}
	if len(c.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidCombo)
	}
	for _, it := range c.Items {
		if it.ProductID <= 0 {
			return fmt.Errorf("%w: item product id must be positive", ErrInvalidCombo)
		}
		if it.Quantity < 1 {
			return fmt.Errorf("%w: item quantity must be at least 1", ErrInvalidCombo)
		}
	}
	if c.Discount.IsNegative() {
		return fmt.Errorf("%w: discount must not be negative", ErrInvalidCombo)
	}
	return nil
}

// SortCombos orders combos by ascending id, the order they are matched in.
func SortCombos(combos []Combo) {
	sort.SliceStable(combos, func(i, j int) bool { return combos[i].ID < combos[j].ID })
}
