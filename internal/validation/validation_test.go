package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestPlaceOrderRequest_Valid(t *testing.T) {
	v := New()

	req := PlaceOrderRequest{
		PaymentMethod: "paypal",
		PhoneNumber:   "0912345678",
		Address:       "12 Nguyen Hue, District 1",
		Notes:         "leave at the door",
	}
	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}

	// every field is optional
	if err := v.Struct(PlaceOrderRequest{}); err != nil {
		t.Fatalf("expected empty request to be valid, got %v", err)
	}
}

func TestPlaceOrderRequest_Invalid(t *testing.T) {
	v := New()

	cases := map[string]PlaceOrderRequest{
		"phone without leading zero": {PhoneNumber: "9123456789"},
		"phone too short":            {PhoneNumber: "091234"},
		"unknown payment method":     {PaymentMethod: "bitcoin"},
		"notes too long":             {Notes: strings.Repeat("n", 151)},
	}
	for name, req := range cases {
		if err := v.Struct(req); err == nil {
			t.Fatalf("%s: expected validation error, got nil", name)
		}
	}
}

func TestAddItemRequest_MissingFields(t *testing.T) {
	v := New()

	if err := v.Struct(AddItemRequest{ProductID: 1}); err == nil {
		t.Fatal("expected error for missing quantity")
	}
	if err := v.Struct(AddItemRequest{Quantity: 1}); err == nil {
		t.Fatal("expected error for missing product id")
	}
}

func TestSetQuantityRequest_ZeroAllowed(t *testing.T) {
	v := New()
	zero, neg := 0, -1

	if err := v.Struct(SetQuantityRequest{Quantity: &zero}); err != nil {
		t.Fatalf("expected zero to be valid, got %v", err)
	}
	if err := v.Struct(SetQuantityRequest{Quantity: &neg}); err == nil {
		t.Fatal("expected error for negative quantity")
	}
	if err := v.Struct(SetQuantityRequest{}); err == nil {
		t.Fatal("expected error for missing quantity")
	}
}

func TestProductRequest_FlashSaleWindow(t *testing.T) {
	v := New()
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	price := "35000"

	ok := ProductRequest{Name: "Coke", Price: "10000", FlashSalePrice: &price, FlashSaleStart: &start, FlashSaleEnd: &end}
	if err := v.Struct(ok); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	reversed := ok
	reversed.FlashSaleStart, reversed.FlashSaleEnd = &end, &start
	if err := v.Struct(reversed); err == nil {
		t.Fatal("expected error for reversed window")
	}

	halfOpen := ok
	halfOpen.FlashSaleEnd = nil
	if err := v.Struct(halfOpen); err == nil {
		t.Fatal("expected error for window without end")
	}

	if err := v.Struct(ProductRequest{Name: "Coke", Price: "ten"}); err == nil {
		t.Fatal("expected error for non-numeric price")
	}
}

func TestComboRequest_DivesIntoItems(t *testing.T) {
	v := New()

	req := ComboRequest{Name: "Snack pack", Discount: "5000", Items: []ComboItemRequest{{ProductID: 1, Quantity: 0}}}
	if err := v.Struct(req); err == nil {
		t.Fatal("expected error for zero quantity item")
	}
	if err := v.Struct(ComboRequest{Name: "Empty", Discount: "1"}); err == nil {
		t.Fatal("expected error for combo without items")
	}
}

func TestBindAndValidate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := New()

	for body, want := range map[string]int{
		`{"product_id":1,"quantity":2}`: http.StatusOK,
		`{"product_id":1}`:              http.StatusBadRequest,
		`{not json`:                     http.StatusBadRequest,
	} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(body))
		c.Request.Header.Set("Content-Type", "application/json")

		var req AddItemRequest
		if err := BindAndValidate(c, &req, v); err == nil {
			c.Status(http.StatusOK)
		}
		if w.Code != want {
			t.Fatalf("body %s: expected %d, got %d", body, want, w.Code)
		}
	}
}
