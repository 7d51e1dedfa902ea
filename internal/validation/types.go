package validation

import "time"

// AddItemRequest is the payload for POST /cart/items
type AddItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,min=1"` // units to add to the line
}

// SetQuantityRequest is the payload for PATCH /cart/items/:product_id
// Zero removes the line.
type SetQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0"`
}

// PlaceOrderRequest is the payload for POST /orders
type PlaceOrderRequest struct {
	PaymentMethod string `json:"payment_method" validate:"omitempty,oneof=cod paypal"` // defaults to cod
	PhoneNumber   string `json:"phone_number" validate:"omitempty,phone"`
	Address       string `json:"address" validate:"omitempty,max=255"`
	Notes         string `json:"notes" validate:"max=150"`
}

// UpdateStatusRequest is the payload for PATCH /admin/orders/:id/status
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdatePaymentStatusRequest is the payload for PATCH /admin/orders/:id/payment-status
type UpdatePaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status" validate:"required"`
}

// ProductRequest is the payload for PUT /admin/products/:id
// Money is sent as a decimal string.
type ProductRequest struct {
	Name           string     `json:"name" validate:"required,max=255"`
	Price          string     `json:"price" validate:"required,numeric"`
	FlashSalePrice *string    `json:"flash_sale_price,omitempty" validate:"omitempty,numeric"`
	FlashSaleStart *time.Time `json:"flash_sale_start,omitempty"`
	FlashSaleEnd   *time.Time `json:"flash_sale_end,omitempty"`
	Active         bool       `json:"active"`
	Version        int64      `json:"version" validate:"min=0"` // 0 creates, otherwise the version read
}

// ComboItemRequest is one required product of a combo.
type ComboItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,min=1"`
}

// ComboRequest is the payload for PUT /admin/combos/:id
type ComboRequest struct {
	Name     string             `json:"name" validate:"required,max=255"`
	Items    []ComboItemRequest `json:"items" validate:"required,min=1,dive"`
	Discount string             `json:"discount" validate:"required,numeric"`
	Active   bool               `json:"active"`
}
