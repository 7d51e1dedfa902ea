package orders

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-cart-checkout/internal/cart"
)

// Status is the fulfilment state of an order.
type Status string

// Order statuses
const (
	StatusUnprocessed       Status = "unprocessed"
	StatusProcessing        Status = "processing"
	StatusPreparing         Status = "preparing"
	StatusShipping          Status = "shipping"
	StatusDelivered         Status = "delivered"
	StatusCustomerCancelled Status = "customer_cancelled"
	StatusAdminCancelled    Status = "admin_cancelled"
)

var statusTransitions = map[Status][]Status{
	StatusUnprocessed: {StatusProcessing, StatusCustomerCancelled, StatusAdminCancelled},
	StatusProcessing:  {StatusPreparing, StatusCustomerCancelled, StatusAdminCancelled},
	StatusPreparing:   {StatusShipping},
	StatusShipping:    {StatusDelivered},
}

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentPaypal PaymentMethod = "paypal"
)

var (
	ErrInvalidTransition = errors.New("illegal status transition")
	// ErrStatusMismatch is returned by the stores when a conditional status
	// write finds a different current value.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrCartChanged is returned by CommitCheckout when a cart line was
	// modified or removed after it was read.
	ErrCartChanged = errors.New("cart changed during checkout")
	// ErrOrderExists is returned when an order id is reused.
	ErrOrderExists = errors.New("order already exists")
)

// InvalidStateError reports a status or payment status value that is not one
// of the enumerated states.
type InvalidStateError struct {
	Field string
	Value string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// StaleProductError is returned by CommitCheckout when a product was deleted
// (Missing) or edited after it was priced.
type StaleProductError struct {
	ProductID int64
	Missing   bool
}

func (e *StaleProductError) Error() string {
	if e.Missing {
		return fmt.Sprintf("product %d no longer exists", e.ProductID)
	}
	return fmt.Sprintf("product %d changed during checkout", e.ProductID)
}

var allStatuses = []Status{
	StatusUnprocessed, StatusProcessing, StatusPreparing, StatusShipping,
	StatusDelivered, StatusCustomerCancelled, StatusAdminCancelled,
}

// ParseStatus validates s against the enumerated statuses.
func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", &InvalidStateError{Field: "status", Value: s}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(statusTransitions[s]) == 0
}

// CanTransitionTo reports whether s -> next is a legal move.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParsePaymentStatus validates s against the enumerated payment statuses.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentPending, PaymentPaid:
		return PaymentStatus(s), nil
	}
	return "", &InvalidStateError{Field: "payment_status", Value: s}
}

// CanTransitionTo reports whether p -> next is a legal move. Paid is terminal.
func (p PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return p == PaymentPending && next == PaymentPaid
}

// ParsePaymentMethod validates s. An empty value defaults to cash on delivery.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case "":
		return PaymentCOD, nil
	case PaymentCOD, PaymentPaypal:
		return PaymentMethod(s), nil
	}
	return "", &InvalidStateError{Field: "payment_method", Value: s}
}

// PhonePattern is a ten digit phone number with a leading zero.
var PhonePattern = regexp.MustCompile(`^0[0-9]{9}$`)

// Shipping holds the optional delivery details captured at checkout.
type Shipping struct {
	PhoneNumber string `json:"phone_number,omitempty"`
	Address     string `json:"address,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Line is the frozen record of one purchased product.
type Line struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Order is a placed order. Only Status and PaymentStatus change after creation.
type Order struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	AppliedCombos []int64         `json:"applied_combos"`
	Status        Status          `json:"status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Shipping      Shipping        `json:"shipping"`
	Lines         []Line          `json:"lines"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Reconciles reports whether the lines add up to the subtotal and the
// subtotal minus the discount equals the total.
func (o Order) Reconciles() bool {
	sum := decimal.Zero
	for _, l := range o.Lines {
		if !l.LineTotal.Equal(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))) {
			return false
		}
		sum = sum.Add(l.LineTotal)
	}
	return sum.Equal(o.Subtotal) && o.Subtotal.Sub(o.Discount).Equal(o.Total) && !o.Total.IsNegative()
}

// Units is the number of items in the order.
func (o Order) Units() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

// ProductVersion pins a priced product to the version that was read.
type ProductVersion struct {
	ProductID int64
	Version   int64
}

// Checkout is everything CommitCheckout writes or checks in one unit:
// the new order, the cart lines it consumes and the products it priced.
type Checkout struct {
	Order    Order
	Cart     []cart.Line
	Products []ProductVersion
}

// Repository persists orders.
type Repository interface {
	// CommitCheckout atomically stores the order, deletes the consumed cart
	// lines and verifies the priced products. Nothing is written on error.
	CommitCheckout(ctx context.Context, c Checkout) error
	// Get returns (nil, nil) when the order does not exist.
	Get(ctx context.Context, orderID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	List(ctx context.Context, limit int) ([]Order, error)
	// UpdateStatus writes next only if the stored status is still expected.
	UpdateStatus(ctx context.Context, orderID string, expected, next Status) error
	UpdatePaymentStatus(ctx context.Context, orderID string, expected, next PaymentStatus) error
}

// EventOrderPlaced is the type attribute of published order events.
const EventOrderPlaced = "order.placed"

// PlacedEvent is the message body published after a successful checkout.
type PlacedEvent struct {
	EventID       string          `json:"event_id"`
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	Units         int             `json:"units"`
	AppliedCombos []int64         `json:"applied_combos"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PlacedAt      time.Time       `json:"placed_at"`
}

// NewPlacedEvent derives the published event from a stored order.
func NewPlacedEvent(o Order) PlacedEvent {
	return PlacedEvent{
		EventID:       o.ID,
		OrderID:       o.ID,
		UserID:        o.UserID,
		Subtotal:      o.Subtotal,
		Discount:      o.Discount,
		Total:         o.Total,
		Units:         o.Units(),
		AppliedCombos: o.AppliedCombos,
		PaymentMethod: o.PaymentMethod,
		PlacedAt:      o.CreatedAt,
	}
}
