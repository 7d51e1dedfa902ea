package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-cart-checkout/internal/authz"
	"github.com/imrishuroy/go-cart-checkout/internal/catalogue"
	"github.com/imrishuroy/go-cart-checkout/internal/validation"
)

// Limits for GET /admin/orders.
const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func registerAdminRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	admin := r.Group("/admin")

	admin.GET("/orders", requireAction(authz.ViewAllOrders), func(c *gin.Context) {
		limit := defaultListLimit
		if s := c.Query("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_query_param", "msg": "limit must be a positive integer"})
				return
			}
			limit = min(n, maxListLimit)
		}
		list, err := cfg.Checkout.ListAllOrders(c.Request.Context(), limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": list})
	})

	admin.PATCH("/orders/:id/status", requireAction(authz.UpdateStatus), func(c *gin.Context) {
		var req validation.UpdateStatusRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		order, err := cfg.Checkout.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	})

	admin.PATCH("/orders/:id/payment-status", requireAction(authz.UpdatePayment), func(c *gin.Context) {
		var req validation.UpdatePaymentStatusRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		order, err := cfg.Checkout.UpdatePaymentStatus(c.Request.Context(), c.Param("id"), req.PaymentStatus)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	})

	manage := requireAction(authz.ManageCatalogue)

	admin.PUT("/products/:id", manage, func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req validation.ProductRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		price, ok := money(c, "price", req.Price)
		if !ok {
			return
		}
		p := catalogue.Product{
			ID:             id,
			Name:           req.Name,
			Price:          price,
			FlashSaleStart: req.FlashSaleStart,
			FlashSaleEnd:   req.FlashSaleEnd,
			Active:         req.Active,
			Version:        req.Version,
		}
		if req.FlashSalePrice != nil {
			fs, ok := money(c, "flash_sale_price", *req.FlashSalePrice)
			if !ok {
				return
			}
			p.FlashSalePrice = &fs
		}
		saved, err := cfg.Catalogue.PutProduct(c.Request.Context(), p)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, saved)
	})

	admin.DELETE("/products/:id", manage, func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		if err := cfg.Catalogue.DeleteProduct(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	admin.PUT("/combos/:id", manage, func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req validation.ComboRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		discount, ok := money(c, "discount", req.Discount)
		if !ok {
			return
		}
		combo := catalogue.Combo{
			ID:       id,
			Name:     req.Name,
			Discount: discount,
			Active:   req.Active,
		}
		for _, it := range req.Items {
			combo.Items = append(combo.Items, catalogue.ComboItem{ProductID: it.ProductID, Quantity: it.Quantity})
		}
		saved, err := cfg.Catalogue.PutCombo(c.Request.Context(), combo)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, saved)
	})

	admin.DELETE("/combos/:id", manage, func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		if err := cfg.Catalogue.DeleteCombo(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func money(c *gin.Context, field, s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "fields": map[string]string{field: "numeric"}})
		return decimal.Decimal{}, false
	}
	return d, true
}
