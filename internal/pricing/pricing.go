// Package pricing turns a cart snapshot into priced lines, applied combos and
// totals. It performs no I/O; callers pass the catalogue state and the clock.
package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-cart-checkout/internal/cart"
	"github.com/imrishuroy/go-cart-checkout/internal/catalogue"
)

// Options tune combo matching.
type Options struct {
	// ShareComboUnits lets several combos be satisfied by the same cart units.
	// When false (default) each applied combo reserves the units it matched.
	ShareComboUnits bool
}

// MissingProductError reports a cart line whose product could not be priced.
type MissingProductError struct {
	ProductID int64
}

func (e *MissingProductError) Error() string {
	return fmt.Sprintf("product %d is not available", e.ProductID)
}

// PricedLine is a cart line with its effective unit price resolved.
type PricedLine struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
	FlashSale   bool            `json:"flash_sale"`
}

// AppliedCombo is a combo that matched together with the discount it earned,
// which may be lower than the combo's nominal discount.
type AppliedCombo struct {
	ComboID  int64           `json:"combo_id"`
	Name     string          `json:"name"`
	Discount decimal.Decimal `json:"discount"`
}

// Quote is a fully priced cart.
type Quote struct {
	Lines    []PricedLine    `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
	Combos   []AppliedCombo  `json:"combos"`
	PricedAt time.Time       `json:"priced_at"`
}

// ComboIDs lists the ids of the applied combos in application order.
func (q Quote) ComboIDs() []int64 {
	ids := make([]int64, 0, len(q.Combos))
	for _, c := range q.Combos {
		ids = append(ids, c.ComboID)
	}
	return ids
}

// Units is the number of items across all lines.
func (q Quote) Units() int {
	n := 0
	for _, l := range q.Lines {
		n += l.Quantity
	}
	return n
}

// Compute prices lines at now. Every line's product must be present in
// products and active, otherwise a *MissingProductError is returned.
func Compute(lines []cart.Line, products map[int64]catalogue.Product, combos []catalogue.Combo, now time.Time, opts Options) (Quote, error) {
	q := Quote{
		Lines:    make([]PricedLine, 0, len(lines)),
		Subtotal: decimal.Zero,
		Discount: decimal.Zero,
		Total:    decimal.Zero,
		Combos:   []AppliedCombo{},
		PricedAt: now,
	}

	unitPrices := make(map[int64]decimal.Decimal, len(lines))
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok || !p.Active {
			return Quote{}, &MissingProductError{ProductID: l.ProductID}
		}
		unit := p.EffectivePrice(now)
		total := unit.Mul(decimal.NewFromInt(int64(l.Quantity)))
		q.Lines = append(q.Lines, PricedLine{
			ProductID:   l.ProductID,
			ProductName: p.Name,
			UnitPrice:   unit,
			Quantity:    l.Quantity,
			LineTotal:   total,
			FlashSale:   p.FlashSaleActive(now),
		})
		unitPrices[l.ProductID] = unit
		q.Subtotal = q.Subtotal.Add(total)
	}

	for _, m := range MatchCombos(cart.Quantities(lines), combos, opts) {
		d := clampDiscount(m, unitPrices)
		q.Combos = append(q.Combos, AppliedCombo{ComboID: m.ID, Name: m.Name, Discount: d})
		q.Discount = q.Discount.Add(d)
	}

	q.Total = q.Subtotal.Sub(q.Discount)
	if q.Total.IsNegative() {
		q.Discount = q.Subtotal
		q.Total = decimal.Zero
	}
	return q, nil
}

// MatchCombos returns the active combos satisfied by quantities, tested in
// ascending id order. Each combo applies at most once.
func MatchCombos(quantities map[int64]int, combos []catalogue.Combo, opts Options) []catalogue.Combo {
	working := make(map[int64]int, len(quantities))
	for id, n := range quantities {
		working[id] = n
	}

	ordered := make([]catalogue.Combo, len(combos))
	copy(ordered, combos)
	catalogue.SortCombos(ordered)

	var matched []catalogue.Combo
	for _, c := range ordered {
		if !c.Active {
			continue
		}
		req := c.Requirements()
		if len(req) == 0 || !satisfied(working, req) {
			continue
		}
		matched = append(matched, c)
		if opts.ShareComboUnits {
			continue
		}
		for id, n := range req {
			working[id] -= n
		}
	}
	return matched
}

func satisfied(available, required map[int64]int) bool {
	for id, n := range required {
		if available[id] < n {
			return false
		}
	}
	return true
}

// clampDiscount caps a combo's discount at the value of the units it claims.
func clampDiscount(c catalogue.Combo, unitPrices map[int64]decimal.Decimal) decimal.Decimal {
	matchedValue := decimal.Zero
	for id, n := range c.Requirements() {
		matchedValue = matchedValue.Add(unitPrices[id].Mul(decimal.NewFromInt(int64(n))))
	}
	if c.Discount.GreaterThan(matchedValue) {
		return matchedValue
	}
	if c.Discount.IsNegative() {
		return decimal.Zero
	}
	return c.Discount
}
