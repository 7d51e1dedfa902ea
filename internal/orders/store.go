package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-cart-checkout/internal/aws"
	"github.com/imrishuroy/go-cart-checkout/internal/cart"
	"github.com/imrishuroy/go-cart-checkout/internal/catalogue"
)

// UserIndex is the GSI on user_id used by ListByUser.
const UserIndex = "user_id-index"

// FeedIndex is the GSI (feed, created_ms) used by List to read the newest
// orders first without scanning the table.
const (
	FeedIndex = "feed-created_ms-index"
	feedAll   = "orders"
)

// maxTransactItems is the DynamoDB TransactWriteItems limit.
const maxTransactItems = 100

// Store encapsulates operations on the orders table. Checkout commits also
// touch the carts and products tables.
type Store struct {
	client        aws.DynamoDBAPI
	tableName     string
	cartsTable    string
	productsTable string
	nowFunc       func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName, cartsTable, productsTable string) *Store {
	return &Store{
		client:        client,
		tableName:     tableName,
		cartsTable:    cartsTable,
		productsTable: productsTable,
		nowFunc:       time.Now,
	}
}

type lineRecord struct {
	ProductID   int64  `dynamodbav:"product_id"`
	ProductName string `dynamodbav:"product_name"`
	UnitPrice   string `dynamodbav:"unit_price"`
	Quantity    int    `dynamodbav:"quantity"`
	LineTotal   string `dynamodbav:"line_total"`
}

// orderRecord is the item stored in the Orders DynamoDB table.
// Lines are embedded so an order is always read whole.
type orderRecord struct {
	OrderID       string       `dynamodbav:"order_id"` // PK
	UserID        string       `dynamodbav:"user_id"`  // GSI
	Subtotal      string       `dynamodbav:"subtotal"`
	Discount      string       `dynamodbav:"discount"`
	Total         string       `dynamodbav:"total"`
	AppliedCombos []int64      `dynamodbav:"applied_combos,omitempty"`
	Status        string       `dynamodbav:"status"`
	PaymentMethod string       `dynamodbav:"payment_method"`
	PaymentStatus string       `dynamodbav:"payment_status"`
	PhoneNumber   string       `dynamodbav:"phone_number,omitempty"`
	Address       string       `dynamodbav:"address,omitempty"`
	Notes         string       `dynamodbav:"notes,omitempty"`
	Lines         []lineRecord `dynamodbav:"lines"`
	CreatedAt     time.Time    `dynamodbav:"created_at"`
	UpdatedAt     time.Time    `dynamodbav:"updated_at"`
	Feed          string       `dynamodbav:"feed"`       // FeedIndex PK
	CreatedMs     int64        `dynamodbav:"created_ms"` // FeedIndex SK
}

func toRecord(o Order) orderRecord {
	rec := orderRecord{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Subtotal:      o.Subtotal.String(),
		Discount:      o.Discount.String(),
		Total:         o.Total.String(),
		AppliedCombos: o.AppliedCombos,
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		PaymentStatus: string(o.PaymentStatus),
		PhoneNumber:   o.Shipping.PhoneNumber,
		Address:       o.Shipping.Address,
		Notes:         o.Shipping.Notes,
		Lines:         make([]lineRecord, 0, len(o.Lines)),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		Feed:          feedAll,
		CreatedMs:     o.CreatedAt.UnixMilli(),
	}
	for _, l := range o.Lines {
		rec.Lines = append(rec.Lines, lineRecord{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			UnitPrice:   l.UnitPrice.String(),
			Quantity:    l.Quantity,
			LineTotal:   l.LineTotal.String(),
		})
	}
	return rec
}

func (r orderRecord) toOrder() (Order, error) {
	var err error
	o := Order{
		ID:            r.OrderID,
		UserID:        r.UserID,
		AppliedCombos: r.AppliedCombos,
		Status:        Status(r.Status),
		PaymentMethod: PaymentMethod(r.PaymentMethod),
		PaymentStatus: PaymentStatus(r.PaymentStatus),
		Shipping:      Shipping{PhoneNumber: r.PhoneNumber, Address: r.Address, Notes: r.Notes},
		Lines:         make([]Line, 0, len(r.Lines)),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if o.AppliedCombos == nil {
		o.AppliedCombos = []int64{}
	}
	if o.Subtotal, err = decimal.NewFromString(r.Subtotal); err != nil {
		return Order{}, fmt.Errorf("parse subtotal of order %s: %w", r.OrderID, err)
	}
	if o.Discount, err = decimal.NewFromString(r.Discount); err != nil {
		return Order{}, fmt.Errorf("parse discount of order %s: %w", r.OrderID, err)
	}
	if o.Total, err = decimal.NewFromString(r.Total); err != nil {
		return Order{}, fmt.Errorf("parse total of order %s: %w", r.OrderID, err)
	}
	for _, lr := range r.Lines {
		l := Line{ProductID: lr.ProductID, ProductName: lr.ProductName, Quantity: lr.Quantity}
		if l.UnitPrice, err = decimal.NewFromString(lr.UnitPrice); err != nil {
			return Order{}, fmt.Errorf("parse unit price of order %s: %w", r.OrderID, err)
		}
		if l.LineTotal, err = decimal.NewFromString(lr.LineTotal); err != nil {
			return Order{}, fmt.Errorf("parse line total of order %s: %w", r.OrderID, err)
		}
		o.Lines = append(o.Lines, l)
	}
	return o, nil
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

// CommitCheckout atomically:
//   - puts the order (condition attribute_not_exists(order_id))
//   - deletes every consumed cart line (condition version = :v)
//   - checks every priced product (condition attribute_exists(product_id) AND version = :v)
//
// A cancelled transaction is mapped to ErrOrderExists, ErrCartChanged or
// *StaleProductError from the cancellation reasons.
func (s *Store) CommitCheckout(ctx context.Context, c Checkout) error {
	if n := 1 + len(c.Cart) + len(c.Products); n > maxTransactItems {
		return fmt.Errorf("checkout needs %d transaction items, limit is %d", n, maxTransactItems)
	}

	order := c.Order
	now := s.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	orderMap, err := attributevalue.MarshalMap(toRecord(order))
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	transactItems := make([]types.TransactWriteItem, 0, 1+len(c.Cart)+len(c.Products))
	transactItems = append(transactItems, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                orderMap,
			ConditionExpression: awsString("attribute_not_exists(order_id)"),
		},
	})
	for _, l := range c.Cart {
		transactItems = append(transactItems, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName:           &s.cartsTable,
				Key:                 cart.LineKey(l.UserID, l.ProductID),
				ConditionExpression: awsString("version = :v"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(l.Version, 10)},
				},
			},
		})
	}
	for _, p := range c.Products {
		transactItems = append(transactItems, types.TransactWriteItem{
			ConditionCheck: &types.ConditionCheck{
				TableName:           &s.productsTable,
				Key:                 catalogue.ProductKey(p.ProductID),
				ConditionExpression: awsString("attribute_exists(product_id) AND version = :v"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(p.Version, 10)},
				},
				ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
			},
		})
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			if cause := checkoutCancellation(tce.CancellationReasons, c); cause != nil {
				return cause
			}
			return fmt.Errorf("transaction canceled: %w", err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// checkoutCancellation maps the first failed condition back to its item.
// Reasons are positional: order put, cart deletes, product checks.
func checkoutCancellation(reasons []types.CancellationReason, c Checkout) error {
	for i, r := range reasons {
		if r.Code == nil || *r.Code != "ConditionalCheckFailed" {
			continue
		}
		switch {
		case i == 0:
			return ErrOrderExists
		case i <= len(c.Cart):
			return ErrCartChanged
		case i-1-len(c.Cart) < len(c.Products):
			p := c.Products[i-1-len(c.Cart)]
			return &StaleProductError{ProductID: p.ProductID, Missing: len(r.Item) == 0}
		}
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	o, err := unmarshalOrder(out.Item)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	var (
		orders []Order
		start  map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			IndexName:              awsString(UserIndex),
			KeyConditionExpression: awsString("user_id = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: userID},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("query orders: %w", err)
		}
		for _, item := range out.Items {
			o, err := unmarshalOrder(item)
			if err != nil {
				return nil, err
			}
			orders = append(orders, o)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	sortNewestFirst(orders)
	return orders, nil
}

// List returns up to limit orders across all users, newest first. It reads
// FeedIndex in descending order and stops once limit orders are read.
// limit <= 0 returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Order, error) {
	var (
		orders []Order
		start  map[string]types.AttributeValue
	)
	for {
		in := &dyn.QueryInput{
			TableName:              &s.tableName,
			IndexName:              awsString(FeedIndex),
			KeyConditionExpression: awsString("feed = :feed"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":feed": &types.AttributeValueMemberS{Value: feedAll},
			},
			ScanIndexForward:  awsBool(false),
			ExclusiveStartKey: start,
		}
		if limit > 0 {
			in.Limit = sdkaws.Int32(int32(limit - len(orders)))
		}
		out, err := s.client.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("query orders feed: %w", err)
		}
		for _, item := range out.Items {
			o, err := unmarshalOrder(item)
			if err != nil {
				return nil, err
			}
			orders = append(orders, o)
		}
		if len(out.LastEvaluatedKey) == 0 || (limit > 0 && len(orders) >= limit) {
			break
		}
		start = out.LastEvaluatedKey
	}
	sortNewestFirst(orders)
	return orders, nil
}

// UpdateStatus conditionally updates the order status from expected -> next.
// Returns nil on success, ErrStatusMismatch if condition failed.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, expected, next Status) error {
	return s.conditionalSet(ctx, orderID, "status", string(expected), string(next))
}

// UpdatePaymentStatus conditionally updates payment_status from expected -> next.
func (s *Store) UpdatePaymentStatus(ctx context.Context, orderID string, expected, next PaymentStatus) error {
	return s.conditionalSet(ctx, orderID, "payment_status", string(expected), string(next))
}

func (s *Store) conditionalSet(ctx context.Context, orderID, attr, expected, next string) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      orderKey(orderID),
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: next},
			":ua":       &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)},
			":expected": &types.AttributeValueMemberS{Value: expected},
		},
		ConditionExpression: awsString("#s = :expected"),
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func unmarshalOrder(item map[string]types.AttributeValue) (Order, error) {
	var rec orderRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return Order{}, fmt.Errorf("unmarshal order: %w", err)
	}
	return rec.toOrder()
}

func sortNewestFirst(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
