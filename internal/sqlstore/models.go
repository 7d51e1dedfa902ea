package sqlstore

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-cart-checkout/internal/cart"
	"github.com/imrishuroy/go-cart-checkout/internal/catalogue"
	"github.com/imrishuroy/go-cart-checkout/internal/orders"
)

type productModel struct {
	ID             int64               `gorm:"primaryKey;autoIncrement:false"`
	Name           string              `gorm:"size:255"`
	Price          decimal.Decimal     `gorm:"type:decimal(15,2)"`
	FlashSalePrice decimal.NullDecimal `gorm:"type:decimal(15,2)"`
	FlashSaleStart *time.Time
	FlashSaleEnd   *time.Time
	Active         bool  `gorm:"index"`
	Version        int64 `gorm:"not null"`
	UpdatedAt      time.Time
}

func (productModel) TableName() string { return "products" }

func productToModel(p catalogue.Product) productModel {
	m := productModel{
		ID:             p.ID,
		Name:           p.Name,
		Price:          p.Price,
		FlashSaleStart: p.FlashSaleStart,
		FlashSaleEnd:   p.FlashSaleEnd,
		Active:         p.Active,
		Version:        p.Version,
		UpdatedAt:      p.UpdatedAt,
	}
	if p.FlashSalePrice != nil {
		m.FlashSalePrice = decimal.NullDecimal{Decimal: *p.FlashSalePrice, Valid: true}
	}
	return m
}

func (m productModel) toProduct() catalogue.Product {
	p := catalogue.Product{
		ID:             m.ID,
		Name:           m.Name,
		Price:          m.Price,
		FlashSaleStart: utcPtr(m.FlashSaleStart),
		FlashSaleEnd:   utcPtr(m.FlashSaleEnd),
		Active:         m.Active,
		Version:        m.Version,
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
	if m.FlashSalePrice.Valid {
		fs := m.FlashSalePrice.Decimal
		p.FlashSalePrice = &fs
	}
	return p
}

type comboModel struct {
	ID        int64            `gorm:"primaryKey;autoIncrement:false"`
	Name      string           `gorm:"size:255"`
	Discount  decimal.Decimal  `gorm:"type:decimal(15,2)"`
	Active    bool             `gorm:"index"`
	Items     []comboItemModel `gorm:"foreignKey:ComboID;constraint:OnDelete:CASCADE"`
	UpdatedAt time.Time
}

func (comboModel) TableName() string { return "combos" }

type comboItemModel struct {
	ID        uint  `gorm:"primaryKey"`
	ComboID   int64 `gorm:"index:idx_combo_items_combo_id"`
	ProductID int64
	Quantity  int
}

func (comboItemModel) TableName() string { return "combo_items" }

func (m comboModel) toCombo() catalogue.Combo {
	c := catalogue.Combo{
		ID:       m.ID,
		Name:     m.Name,
		Discount: m.Discount,
		Active:   m.Active,
		Items:    make([]catalogue.ComboItem, 0, len(m.Items)),
	}
	for _, it := range m.Items {
		c.Items = append(c.Items, catalogue.ComboItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return c
}

type cartLineModel struct {
	UserID    string `gorm:"primaryKey;size:64"`
	ProductID int64  `gorm:"primaryKey;autoIncrement:false"`
	Quantity  int
	Version   int64 `gorm:"not null"`
	AddedAt   time.Time
	UpdatedAt time.Time
}

func (cartLineModel) TableName() string { return "cart_lines" }

func (m cartLineModel) toLine() cart.Line {
	return cart.Line{
		UserID:    m.UserID,
		ProductID: m.ProductID,
		Quantity:  m.Quantity,
		Version:   m.Version,
		AddedAt:   m.AddedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

type orderModel struct {
	ID            string           `gorm:"primaryKey;size:36"`
	UserID        string           `gorm:"size:64;index:idx_orders_user_id"`
	Subtotal      decimal.Decimal  `gorm:"type:decimal(15,2)"`
	Discount      decimal.Decimal  `gorm:"type:decimal(15,2)"`
	Total         decimal.Decimal  `gorm:"type:decimal(15,2)"`
	AppliedCombos []int64          `gorm:"serializer:json"`
	Status        string           `gorm:"size:32;index"`
	PaymentMethod string           `gorm:"size:16"`
	PaymentStatus string           `gorm:"size:16"`
	PhoneNumber   string           `gorm:"size:16"`
	Address       string           `gorm:"size:255"`
	Notes         string           `gorm:"size:255"`
	Lines         []orderLineModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time        `gorm:"index"`
	UpdatedAt     time.Time
}

func (orderModel) TableName() string { return "orders" }

type orderLineModel struct {
	ID          uint   `gorm:"primaryKey"`
	OrderID     string `gorm:"size:36;index:idx_order_lines_order_id"`
	ProductID   int64
	ProductName string          `gorm:"size:255"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(15,2)"`
	Quantity    int
	LineTotal   decimal.Decimal `gorm:"type:decimal(15,2)"`
}

func (orderLineModel) TableName() string { return "order_lines" }

func orderToModel(o orders.Order) orderModel {
	m := orderModel{
		ID:            o.ID,
		UserID:        o.UserID,
		Subtotal:      o.Subtotal,
		Discount:      o.Discount,
		Total:         o.Total,
		AppliedCombos: o.AppliedCombos,
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		PaymentStatus: string(o.PaymentStatus),
		PhoneNumber:   o.Shipping.PhoneNumber,
		Address:       o.Shipping.Address,
		Notes:         o.Shipping.Notes,
		Lines:         make([]orderLineModel, 0, len(o.Lines)),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for _, l := range o.Lines {
		m.Lines = append(m.Lines, orderLineModel{
			OrderID:     o.ID,
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			UnitPrice:   l.UnitPrice,
			Quantity:    l.Quantity,
			LineTotal:   l.LineTotal,
		})
	}
	return m
}

func (m orderModel) toOrder() orders.Order {
	o := orders.Order{
		ID:            m.ID,
		UserID:        m.UserID,
		Subtotal:      m.Subtotal,
		Discount:      m.Discount,
		Total:         m.Total,
		AppliedCombos: m.AppliedCombos,
		Status:        orders.Status(m.Status),
		PaymentMethod: orders.PaymentMethod(m.PaymentMethod),
		PaymentStatus: orders.PaymentStatus(m.PaymentStatus),
		Shipping:      orders.Shipping{PhoneNumber: m.PhoneNumber, Address: m.Address, Notes: m.Notes},
		Lines:         make([]orders.Line, 0, len(m.Lines)),
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
	if o.AppliedCombos == nil {
		o.AppliedCombos = []int64{}
	}
	for _, l := range m.Lines {
		o.Lines = append(o.Lines, orders.Line{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			UnitPrice:   l.UnitPrice,
			Quantity:    l.Quantity,
			LineTotal:   l.LineTotal,
		})
	}
	return o
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
