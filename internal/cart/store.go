package cart

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

	"github.com/imrishuroy/go-cart-checkout/internal/aws"
)

// Store keeps cart lines in DynamoDB: partition user_id, sort product_id.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a new cart Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// TableName is the carts table, used by checkout to delete lines in a transaction.
func (s *Store) TableName() string { return s.tableName }

type lineRecord struct {
	UserID    string    `dynamodbav:"user_id"`
	ProductID int64     `dynamodbav:"product_id"`
	Quantity  int       `dynamodbav:"quantity"`
	Version   int64     `dynamodbav:"version"`
	AddedAt   time.Time `dynamodbav:"added_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

func (r lineRecord) toLine() Line {
	return Line{
		UserID:    r.UserID,
		ProductID: r.ProductID,
		Quantity:  r.Quantity,
		Version:   r.Version,
		AddedAt:   r.AddedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// LineKey is the DynamoDB key of a cart line.
func LineKey(userID string, productID int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id":    &types.AttributeValueMemberS{Value: userID},
		"product_id": &types.AttributeValueMemberN{Value: strconv.FormatInt(productID, 10)},
	}
}

func (s *Store) Lines(ctx context.Context, userID string) ([]Line, error) {
	var (
		lines []Line
		start map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			KeyConditionExpression: awsString("user_id = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: userID},
			},
			ConsistentRead:    awsBool(true),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("query cart: %w", err)
		}
		for _, item := range out.Items {
			var rec lineRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, fmt.Errorf("unmarshal cart line: %w", err)
			}
			lines = append(lines, rec.toLine())
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func (s *Store) Line(ctx context.Context, userID string, productID int64) (*Line, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            LineKey(userID, productID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get cart line: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec lineRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal cart line: %w", err)
	}
	l := rec.toLine()
	return &l, nil
}

func (s *Store) Save(ctx context.Context, line Line) error {
	if line.Quantity < 1 {
		return ErrInvalidQuantity
	}
	item, err := attributevalue.MarshalMap(lineRecord{
		UserID:    line.UserID,
		ProductID: line.ProductID,
		Quantity:  line.Quantity,
		Version:   line.Version,
		AddedAt:   line.AddedAt,
		UpdatedAt: line.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal cart line: %w", err)
	}
	input := &dyn.PutItemInput{TableName: &s.tableName, Item: item}
	if line.Version <= 1 {
		input.ConditionExpression = awsString("attribute_not_exists(product_id)")
	} else {
		input.ConditionExpression = awsString("version = :prev")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":prev": &types.AttributeValueMemberN{Value: strconv.FormatInt(line.Version-1, 10)},
		}
	}
	if _, err := s.client.PutItem(ctx, input); err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrVersionConflict
		}
		return fmt.Errorf("put cart line: %w", err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, userID string, productID int64) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 LineKey(userID, productID),
		ConditionExpression: awsString("attribute_exists(product_id)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrLineNotFound
		}
		return fmt.Errorf("delete cart line: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
