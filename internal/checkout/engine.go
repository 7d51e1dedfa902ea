// Package checkout prices carts and turns them into orders.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/imrishuroy/go-cart-checkout/internal/cart"
	"github.com/imrishuroy/go-cart-checkout/internal/catalogue"
	"github.com/imrishuroy/go-cart-checkout/internal/lock"
	"github.com/imrishuroy/go-cart-checkout/internal/orders"
	"github.com/imrishuroy/go-cart-checkout/internal/pricing"
)

const instrumentationName = "github.com/imrishuroy/go-cart-checkout/internal/checkout"

// MaxNotesLength bounds the free-text delivery notes.
const MaxNotesLength = 150

// Catalogue is the read side of the product catalogue.
type Catalogue interface {
	GetProduct(ctx context.Context, id int64) (*catalogue.Product, error)
	ListActiveCombos(ctx context.Context) ([]catalogue.Combo, error)
}

// CartReader reads a user's cart.
type CartReader interface {
	Lines(ctx context.Context, userID string) ([]cart.Line, error)
}

// Publisher sends order events. internal/aws.Publisher satisfies it.
type Publisher interface {
	SendOrderMessage(ctx context.Context, body string, attrs map[string]string) error
}

// Deps are the collaborators of an Engine. Publisher may be nil.
type Deps struct {
	Catalogue Catalogue
	Carts     CartReader
	Orders    orders.Repository
	Locker    lock.Locker
	Publisher Publisher
}

// PlaceOrderRequest carries the customer-supplied checkout fields.
type PlaceOrderRequest struct {
	PaymentMethod string
	PhoneNumber   string
	Address       string
	Notes         string
}

// Engine implements checkout, combo previews and order administration.
type Engine struct {
	catalogue Catalogue
	carts     CartReader
	orders    orders.Repository
	locker    lock.Locker
	publisher Publisher
	opts      pricing.Options

	nowFunc func() time.Time
	newID   func() string

	tracer trace.Tracer
	placed metric.Int64Counter
	failed metric.Int64Counter
}

// NewEngine wires an Engine over the global OpenTelemetry providers.
func NewEngine(d Deps, opts pricing.Options) *Engine {
	meter := otel.Meter(instrumentationName)
	placed, err := meter.Int64Counter("checkout.orders.placed", metric.WithDescription("Orders committed"))
	if err != nil {
		log.Printf("[checkout] counter init failed name=checkout.orders.placed err=%v", err)
	}
	failed, err := meter.Int64Counter("checkout.orders.failed", metric.WithDescription("Checkouts that did not commit"))
	if err != nil {
		log.Printf("[checkout] counter init failed name=checkout.orders.failed err=%v", err)
	}
	return &Engine{
		catalogue: d.Catalogue,
		carts:     d.Carts,
		orders:    d.Orders,
		locker:    d.Locker,
		publisher: d.Publisher,
		opts:      opts,
		nowFunc:   time.Now,
		newID:     func() string { return uuid.New().String() },
		tracer:    otel.Tracer(instrumentationName),
		placed:    placed,
		failed:    failed,
	}
}

// PlaceOrder converts the user's cart into an order and clears the cart in
// one atomic commit. On error nothing has been written.
func (e *Engine) PlaceOrder(ctx context.Context, userID string, req PlaceOrderRequest) (*orders.Order, error) {
	ctx, span := e.tracer.Start(ctx, "checkout.PlaceOrder", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	o, err := e.placeOrder(ctx, userID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if e.failed != nil {
			e.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason(err))))
		}
		return nil, err
	}
	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.total", o.Total.String()),
		attribute.Int("order.lines", len(o.Lines)),
	)
	if e.placed != nil {
		e.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(o.PaymentMethod))))
	}
	return o, nil
}

func (e *Engine) placeOrder(ctx context.Context, userID string, req PlaceOrderRequest) (*orders.Order, error) {
	method, shipping, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	release, err := e.locker.Lock(ctx, lock.CartKey(userID))
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return nil, fmt.Errorf("lock cart of %s: %w", userID, ErrLockTimeout)
		}
		return nil, e.storageFailure("lock cart", "user="+userID, err)
	}
	defer release()

	lines, err := e.carts.Lines(ctx, userID)
	if err != nil {
		return nil, e.storageFailure("read cart", "user="+userID, err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	now := e.nowFunc().UTC()
	quote, versions, err := e.price(ctx, userID, lines, now)
	if err != nil {
		return nil, err
	}

	order := orders.Order{
		ID:            e.newID(),
		UserID:        userID,
		Subtotal:      quote.Subtotal,
		Discount:      quote.Discount,
		Total:         quote.Total,
		AppliedCombos: quote.ComboIDs(),
		Status:        orders.StatusUnprocessed,
		PaymentMethod: method,
		PaymentStatus: orders.PaymentPending,
		Shipping:      shipping,
		Lines:         make([]orders.Line, 0, len(quote.Lines)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, l := range quote.Lines {
		order.Lines = append(order.Lines, orders.Line{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			UnitPrice:   l.UnitPrice,
			Quantity:    l.Quantity,
			LineTotal:   l.LineTotal,
		})
	}
	if !order.Reconciles() {
		return nil, fmt.Errorf("order %s does not reconcile: subtotal=%s discount=%s total=%s", order.ID, order.Subtotal, order.Discount, order.Total)
	}

	err = e.orders.CommitCheckout(ctx, orders.Checkout{Order: order, Cart: lines, Products: versions})
	if err != nil {
		var stale *orders.StaleProductError
		switch {
		case errors.Is(err, orders.ErrCartChanged):
			return nil, ErrCartConflict
		case errors.As(err, &stale) && stale.Missing:
			return nil, &ProductUnavailableError{ProductID: stale.ProductID}
		case errors.As(err, &stale):
			return nil, ErrCartConflict
		}
		return nil, e.storageFailure("commit checkout", "user="+userID, err)
	}

	log.Printf("[checkout] placed order=%s user=%s lines=%d subtotal=%s discount=%s total=%s combos=%v",
		order.ID, userID, len(order.Lines), order.Subtotal, order.Discount, order.Total, order.AppliedCombos)
	e.publishPlaced(ctx, order)
	return &order, nil
}

// ApplicableCombos lists the combos PlaceOrder would apply to the current cart.
func (e *Engine) ApplicableCombos(ctx context.Context, userID string) ([]catalogue.Combo, error) {
	ctx, span := e.tracer.Start(ctx, "checkout.ApplicableCombos", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	lines, err := e.carts.Lines(ctx, userID)
	if err != nil {
		return nil, e.storageFailure("read cart", "user="+userID, err)
	}
	if len(lines) == 0 {
		return []catalogue.Combo{}, nil
	}
	products, _, err := e.snapshot(ctx, userID, lines)
	if err != nil {
		return nil, err
	}
	combos, err := e.catalogue.ListActiveCombos(ctx)
	if err != nil {
		return nil, e.storageFailure("list combos", "user="+userID, err)
	}
	q, err := pricing.Compute(lines, products, combos, e.nowFunc().UTC(), e.opts)
	if err != nil {
		return nil, mapPricingErr(err)
	}
	byID := make(map[int64]catalogue.Combo, len(combos))
	for _, c := range combos {
		byID[c.ID] = c
	}
	out := make([]catalogue.Combo, 0, len(q.Combos))
	for _, ac := range q.Combos {
		out = append(out, byID[ac.ComboID])
	}
	return out, nil
}

// Quote prices the current cart without placing an order.
func (e *Engine) Quote(ctx context.Context, userID string) (pricing.Quote, error) {
	ctx, span := e.tracer.Start(ctx, "checkout.Quote", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	lines, err := e.carts.Lines(ctx, userID)
	if err != nil {
		return pricing.Quote{}, e.storageFailure("read cart", "user="+userID, err)
	}
	q, _, err := e.price(ctx, userID, lines, e.nowFunc().UTC())
	return q, err
}

// price resolves products and combos for lines and computes the quote.
func (e *Engine) price(ctx context.Context, userID string, lines []cart.Line, now time.Time) (pricing.Quote, []orders.ProductVersion, error) {
	products, versions, err := e.snapshot(ctx, userID, lines)
	if err != nil {
		return pricing.Quote{}, nil, err
	}
	combos, err := e.catalogue.ListActiveCombos(ctx)
	if err != nil {
		return pricing.Quote{}, nil, e.storageFailure("list combos", "user="+userID, err)
	}
	q, err := pricing.Compute(lines, products, combos, now, e.opts)
	if err != nil {
		return pricing.Quote{}, nil, mapPricingErr(err)
	}
	return q, versions, nil
}

// snapshot reads every product referenced by lines and records the version seen.
func (e *Engine) snapshot(ctx context.Context, userID string, lines []cart.Line) (map[int64]catalogue.Product, []orders.ProductVersion, error) {
	products := make(map[int64]catalogue.Product, len(lines))
	versions := make([]orders.ProductVersion, 0, len(lines))
	for _, l := range lines {
		if _, ok := products[l.ProductID]; ok {
			continue
		}
		p, err := e.catalogue.GetProduct(ctx, l.ProductID)
		if err != nil {
			return nil, nil, e.storageFailure("get product", "user="+userID, err)
		}
		if p == nil || !p.Active {
			return nil, nil, &ProductUnavailableError{ProductID: l.ProductID}
		}
		products[p.ID] = *p
		versions = append(versions, orders.ProductVersion{ProductID: p.ID, Version: p.Version})
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].ProductID < versions[j].ProductID })
	return products, versions, nil
}

func mapPricingErr(err error) error {
	var missing *pricing.MissingProductError
	if errors.As(err, &missing) {
		return &ProductUnavailableError{ProductID: missing.ProductID}
	}
	return err
}

// storageFailure logs err once with subject ("user=u1", "order=o1") and wraps it
// as a PersistenceError.
func (e *Engine) storageFailure(op, subject string, err error) error {
	log.Printf("[checkout] %s failed %s err=%v", op, subject, err)
	return persistence(op, err)
}

func (e *Engine) publishPlaced(ctx context.Context, o orders.Order) {
	if e.publisher == nil {
		return
	}
	body, err := json.Marshal(orders.NewPlacedEvent(o))
	if err != nil {
		log.Printf("[checkout] marshal event failed order=%s err=%v", o.ID, err)
		return
	}
	attrs := map[string]string{
		"event_type":     orders.EventOrderPlaced,
		"order_id":       o.ID,
		"user_id":        o.UserID,
		"payment_method": string(o.PaymentMethod),
	}
	if err := e.publisher.SendOrderMessage(ctx, string(body), attrs); err != nil {
		log.Printf("[checkout] publish failed order=%s err=%v", o.ID, err)
	}
}

func validateRequest(req PlaceOrderRequest) (orders.PaymentMethod, orders.Shipping, error) {
	method, err := orders.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return "", orders.Shipping{}, &InvalidInputError{Field: "payment_method", Reason: "must be cod or paypal"}
	}
	if req.PhoneNumber != "" && !orders.PhonePattern.MatchString(req.PhoneNumber) {
		return "", orders.Shipping{}, &InvalidInputError{Field: "phone_number", Reason: "must be 10 digits starting with 0"}
	}
	if utf8.RuneCountInString(req.Notes) > MaxNotesLength {
		return "", orders.Shipping{}, &InvalidInputError{Field: "notes", Reason: fmt.Sprintf("must be at most %d characters", MaxNotesLength)}
	}
	return method, orders.Shipping{PhoneNumber: req.PhoneNumber, Address: req.Address, Notes: req.Notes}, nil
}
