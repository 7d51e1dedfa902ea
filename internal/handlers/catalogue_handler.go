package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-cart-checkout/internal/catalogue"
)

// productView is a product as shown to shoppers, with the price in force now.
type productView struct {
	catalogue.Product
	CurrentPrice decimal.Decimal `json:"effective_price"`
	OnFlashSale  bool            `json:"flash_sale_active"`
}

func newProductView(p catalogue.Product, now time.Time) productView {
	return productView{
		Product:      p,
		CurrentPrice: p.EffectivePrice(now),
		OnFlashSale:  p.FlashSaleActive(now),
	}
}

// Catalogue reads are public; identity headers are not required.
func registerCatalogueRoutes(r *gin.Engine, cfg HandlerConfig) {
	r.GET("/products", func(c *gin.Context) {
		list, err := cfg.Catalogue.ListProducts(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		now := time.Now()
		views := make([]productView, 0, len(list))
		for _, p := range list {
			if p.Active {
				views = append(views, newProductView(p, now))
			}
		}
		c.JSON(http.StatusOK, gin.H{"products": views})
	})

	r.GET("/products/:product_id", func(c *gin.Context) {
		id, ok := idParam(c, "product_id")
		if !ok {
			return
		}
		p, err := cfg.Catalogue.GetProduct(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		if p == nil || !p.Active {
			writeError(c, catalogue.ErrNotFound)
			return
		}
		c.JSON(http.StatusOK, newProductView(*p, time.Now()))
	})

	r.GET("/combos", func(c *gin.Context) {
		list, err := cfg.Catalogue.ListActiveCombos(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		if list == nil {
			list = []catalogue.Combo{}
		}
		c.JSON(http.StatusOK, gin.H{"combos": list})
	})

	r.GET("/combos/:combo_id", func(c *gin.Context) {
		id, ok := idParam(c, "combo_id")
		if !ok {
			return
		}
		combo, err := cfg.Catalogue.GetCombo(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		if combo == nil || !combo.Active {
			writeError(c, catalogue.ErrNotFound)
			return
		}
		c.JSON(http.StatusOK, combo)
	})
}
