package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-cart-checkout/internal/orders"
)

// New returns a configured validator with the custom tags and struct-level
// validations registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	_ = v.RegisterValidation("phone", func(fl validatorv10.FieldLevel) bool {
		return orders.PhonePattern.MatchString(fl.Field().String())
	})

	// a flash sale needs both ends of its window, start strictly first
	v.RegisterStructValidation(productStructValidation, ProductRequest{})

	return v
}

func productStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(ProductRequest)

	if (req.FlashSaleStart == nil) != (req.FlashSaleEnd == nil) {
		sl.ReportError(req.FlashSaleEnd, "flash_sale_end", "FlashSaleEnd", "flash_sale_window", "")
		return
	}
	if req.FlashSaleStart != nil && !req.FlashSaleStart.Before(*req.FlashSaleEnd) {
		sl.ReportError(req.FlashSaleEnd, "flash_sale_end", "FlashSaleEnd", "flash_sale_window", "")
	}
	if req.FlashSalePrice != nil && req.FlashSaleStart == nil {
		sl.ReportError(req.FlashSalePrice, "flash_sale_price", "FlashSalePrice", "flash_sale_window", "")
	}
}
