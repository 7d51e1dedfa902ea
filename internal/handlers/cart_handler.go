package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-cart-checkout/internal/authz"
	"github.com/imrishuroy/go-cart-checkout/internal/cart"
	"github.com/imrishuroy/go-cart-checkout/internal/validation"
)

func registerCartRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	view := requireAction(authz.ViewCart)
	edit := requireAction(authz.EditCart)

	r.GET("/cart", view, func(c *gin.Context) {
		lines, err := cfg.Carts.Lines(c.Request.Context(), userID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		if lines == nil {
			lines = []cart.Line{}
		}
		c.JSON(http.StatusOK, gin.H{"items": lines})
	})

	r.POST("/cart/items", edit, func(c *gin.Context) {
		var req validation.AddItemRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		line, err := cfg.Carts.Add(c.Request.Context(), userID(c), req.ProductID, req.Quantity)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, line)
	})

	r.PATCH("/cart/items/:product_id", edit, func(c *gin.Context) {
		productID, ok := idParam(c, "product_id")
		if !ok {
			return
		}
		var req validation.SetQuantityRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		line, err := cfg.Carts.SetQuantity(c.Request.Context(), userID(c), productID, *req.Quantity)
		if err != nil {
			writeError(c, err)
			return
		}
		if line == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, line)
	})

	r.DELETE("/cart/items/:product_id", edit, func(c *gin.Context) {
		productID, ok := idParam(c, "product_id")
		if !ok {
			return
		}
		if err := cfg.Carts.Remove(c.Request.Context(), userID(c), productID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.DELETE("/cart", edit, func(c *gin.Context) {
		if err := cfg.Carts.Clear(c.Request.Context(), userID(c)); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.GET("/cart/combos", view, func(c *gin.Context) {
		combos, err := cfg.Checkout.ApplicableCombos(c.Request.Context(), userID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"combos": combos})
	})

	r.GET("/cart/quote", view, func(c *gin.Context) {
		q, err := cfg.Checkout.Quote(c.Request.Context(), userID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, q)
	})
}
