package catalogue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-cart-checkout/internal/aws"
)

// Store encapsulates product and combo operations on DynamoDB.
type Store struct {
	client        aws.DynamoDBAPI
	productsTable string
	combosTable   string
	nowFunc       func() time.Time
}

// NewStore creates a new catalogue Store.
func NewStore(client aws.DynamoDBAPI, productsTable, combosTable string) *Store {
	return &Store{
		client:        client,
		productsTable: productsTable,
		combosTable:   combosTable,
		nowFunc:       time.Now,
	}
}

type productRecord struct {
	ProductID      int64      `dynamodbav:"product_id"`
	Name           string     `dynamodbav:"name"`
	Price          string     `dynamodbav:"price"`
	FlashSalePrice string     `dynamodbav:"flash_sale_price,omitempty"`
	FlashSaleStart *time.Time `dynamodbav:"flash_sale_start,omitempty"`
	FlashSaleEnd   *time.Time `dynamodbav:"flash_sale_end,omitempty"`
	Active         bool       `dynamodbav:"active"`
	Version        int64      `dynamodbav:"version"`
	UpdatedAt      time.Time  `dynamodbav:"updated_at"`
}

type comboItemRecord struct {
	ProductID int64 `dynamodbav:"product_id"`
	Quantity  int   `dynamodbav:"quantity"`
}

type comboRecord struct {
	ComboID   int64             `dynamodbav:"combo_id"`
	Name      string            `dynamodbav:"name"`
	Items     []comboItemRecord `dynamodbav:"items"`
	Discount  string            `dynamodbav:"discount"`
	Active    bool              `dynamodbav:"active"`
	UpdatedAt time.Time         `dynamodbav:"updated_at"`
}

func productToRecord(p Product) productRecord {
	rec := productRecord{
		ProductID:      p.ID,
		Name:           p.Name,
		Price:          p.Price.String(),
		FlashSaleStart: p.FlashSaleStart,
		FlashSaleEnd:   p.FlashSaleEnd,
		Active:         p.Active,
		Version:        p.Version,
		UpdatedAt:      p.UpdatedAt,
	}
	if p.FlashSalePrice != nil {
		rec.FlashSalePrice = p.FlashSalePrice.String()
	}
	return rec
}

func (r productRecord) toProduct() (Product, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return Product{}, fmt.Errorf("parse price of product %d: %w", r.ProductID, err)
	}
	p := Product{
		ID:             r.ProductID,
		Name:           r.Name,
		Price:          price,
		FlashSaleStart: r.FlashSaleStart,
		FlashSaleEnd:   r.FlashSaleEnd,
		Active:         r.Active,
		Version:        r.Version,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.FlashSalePrice != "" {
		fp, err := decimal.NewFromString(r.FlashSalePrice)
		if err != nil {
			return Product{}, fmt.Errorf("parse flash sale price of product %d: %w", r.ProductID, err)
		}
		p.FlashSalePrice = &fp
	}
	return p, nil
}

func (r comboRecord) toCombo() (Combo, error) {
	discount, err := decimal.NewFromString(r.Discount)
	if err != nil {
		return Combo{}, fmt.Errorf("parse discount of combo %d: %w", r.ComboID, err)
	}
	c := Combo{
		ID:       r.ComboID,
		Name:     r.Name,
		Discount: discount,
		Active:   r.Active,
		Items:    make([]ComboItem, 0, len(r.Items)),
	}
	for _, it := range r.Items {
		c.Items = append(c.Items, ComboItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return c, nil
}

// ProductKey is the DynamoDB key of a product item, for callers that
// condition transactions on catalogue state.
func ProductKey(id int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"product_id": &types.AttributeValueMemberN{Value: strconv.FormatInt(id, 10)},
	}
}

func comboKey(id int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"combo_id": &types.AttributeValueMemberN{Value: strconv.FormatInt(id, 10)},
	}
}

// GetProduct fetches a product by id. Returns (nil, nil) if not found.
func (s *Store) GetProduct(ctx context.Context, id int64) (*Product, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.productsTable,
		Key:            ProductKey(id),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec productRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	p, err := rec.toProduct()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts returns every product ordered by id.
func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	items, err := s.scanAll(ctx, s.productsTable)
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	products := make([]Product, 0, len(items))
	for _, item := range items {
		var rec productRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal product: %w", err)
		}
		p, err := rec.toProduct()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	sortProducts(products)
	return products, nil
}

// PutProduct creates or replaces a product and bumps its version.
// p.Version must be the version the caller read (0 for a new product);
// ErrVersionConflict is returned when it no longer matches.
func (s *Store) PutProduct(ctx context.Context, p Product) (Product, error) {
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	expected := p.Version
	p.Version = expected + 1
	p.UpdatedAt = s.nowFunc().UTC()

	item, err := attributevalue.MarshalMap(productToRecord(p))
	if err != nil {
		return Product{}, fmt.Errorf("marshal product: %w", err)
	}
	input := &dyn.PutItemInput{
		TableName: &s.productsTable,
		Item:      item,
	}
	if expected == 0 {
		input.ConditionExpression = awsString("attribute_not_exists(product_id)")
	} else {
		input.ConditionExpression = awsString("version = :expected")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return Product{}, ErrVersionConflict
		}
		return Product{}, fmt.Errorf("put product: %w", err)
	}
	return p, nil
}

// DeleteProduct removes a product. Returns ErrNotFound if it does not exist.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.productsTable,
		Key:                 ProductKey(id),
		ConditionExpression: awsString("attribute_exists(product_id)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrNotFound
		}
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

// GetCombo fetches a combo by id. Returns (nil, nil) if not found.
func (s *Store) GetCombo(ctx context.Context, id int64) (*Combo, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.combosTable,
		Key:       comboKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("get combo: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec comboRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal combo: %w", err)
	}
	c, err := rec.toCombo()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// PutCombo creates or replaces a combo.
func (s *Store) PutCombo(ctx context.Context, c Combo) (Combo, error) {
	if err := c.Validate(); err != nil {
		return Combo{}, err
	}
	rec := comboRecord{
		ComboID:   c.ID,
		Name:      c.Name,
		Discount:  c.Discount.String(),
		Active:    c.Active,
		UpdatedAt: s.nowFunc().UTC(),
	}
	for _, it := range c.Items {
		rec.Items = append(rec.Items, comboItemRecord{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return Combo{}, fmt.Errorf("marshal combo: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{TableName: &s.combosTable, Item: item}); err != nil {
		return Combo{}, fmt.Errorf("put combo: %w", err)
	}
	return c, nil
}

// DeleteCombo removes a combo. Returns ErrNotFound if it does not exist.
func (s *Store) DeleteCombo(ctx context.Context, id int64) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.combosTable,
		Key:                 comboKey(id),
		ConditionExpression: awsString("attribute_exists(combo_id)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrNotFound
		}
		return fmt.Errorf("delete combo: %w", err)
	}
	return nil
}

// ListActiveCombos returns active combos in ascending id order.
// The combos table is small, so it is scanned and filtered client side.
func (s *Store) ListActiveCombos(ctx context.Context) ([]Combo, error) {
	items, err := s.scanAll(ctx, s.combosTable)
	if err != nil {
		return nil, fmt.Errorf("scan combos: %w", err)
	}
	combos := make([]Combo, 0, len(items))
	for _, item := range items {
		var rec comboRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal combo: %w", err)
		}
		if !rec.Active {
			continue
		}
		c, err := rec.toCombo()
		if err != nil {
			return nil, err
		}
		combos = append(combos, c)
	}
	SortCombos(combos)
	return combos, nil
}

func (s *Store) scanAll(ctx context.Context, tableName string) ([]map[string]types.AttributeValue, error) {
	var (
		items []map[string]types.AttributeValue
		start map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &tableName,
			ExclusiveStartKey: start,
			ConsistentRead:    awsBool(true),
		})
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		start = out.LastEvaluatedKey
	}
}

func sortProducts(products []Product) {
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
