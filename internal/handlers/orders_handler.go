package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-cart-checkout/internal/authz"
	"github.com/imrishuroy/go-cart-checkout/internal/checkout"
	"github.com/imrishuroy/go-cart-checkout/internal/orders"
	"github.com/imrishuroy/go-cart-checkout/internal/validation"
)

func registerOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	r.POST("/orders", requireAction(authz.PlaceOrder), func(c *gin.Context) {
		var req validation.PlaceOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		order, err := cfg.Checkout.PlaceOrder(c.Request.Context(), userID(c), checkout.PlaceOrderRequest{
			PaymentMethod: req.PaymentMethod,
			PhoneNumber:   req.PhoneNumber,
			Address:       req.Address,
			Notes:         req.Notes,
		})
		if err != nil {
			writeError(c, err)
			return
		}

		c.Header("Location", fmt.Sprintf("/orders/%s", order.ID))
		c.JSON(http.StatusCreated, order)
	})

	r.GET("/orders", requireAction(authz.ViewOwnOrders), func(c *gin.Context) {
		list, err := cfg.Checkout.ListOrders(c.Request.Context(), userID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": list})
	})

	r.GET("/orders/:id", requireAction(authz.ViewOwnOrders), func(c *gin.Context) {
		var (
			order *orders.Order
			err   error
		)
		if isAdmin(c) {
			order, err = cfg.Checkout.AdminGetOrder(c.Request.Context(), c.Param("id"))
		} else {
			order, err = cfg.Checkout.GetOrder(c.Request.Context(), userID(c), c.Param("id"))
		}
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	})
}
