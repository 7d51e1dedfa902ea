// Package idempotency records which events a consumer has already handled so
// that redelivered messages are not applied twice.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-cart-checkout/internal/aws"
)

// Store encapsulates ledger operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // how long entries are kept
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// ttlWindow: TTL of entries (e.g., 48*time.Hour), at least the queue's retention.
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// Claim creates an IN_PROGRESS entry for eventID if none exists.
// Returns (true, nil) if this caller now owns the event.
// Returns (false, nil) if an entry already exists (caller should Get to inspect).
func (s *Store) Claim(ctx context.Context, eventID, orderID string) (bool, error) {
	now := s.nowFunc().UTC()
	rec := Record{
		EventID:   eventID,
		Status:    StatusInProgress,
		OrderID:   orderID,
		Attempts:  1,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(event_id)"),
	})
	if err != nil {
		var sc smithy.APIError
		if errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// Reclaim takes over an entry previously read as seen, typically FAILED or an
// abandoned IN_PROGRESS. It succeeds only if nobody touched the entry since.
func (s *Store) Reclaim(ctx context.Context, seen Record) (bool, error) {
	now := s.nowFunc().UTC()
	ua, err := attributevalue.Marshal(now)
	if err != nil {
		return false, fmt.Errorf("marshal time: %w", err)
	}
	seenAt, err := attributevalue.Marshal(seen.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("marshal time: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              eventKey(seen.EventID),
		UpdateExpression: awsString("SET #s = :inprogress, attempts = :attempts, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":inprogress": &types.AttributeValueMemberS{Value: StatusInProgress},
			":attempts":   &types.AttributeValueMemberN{Value: strconv.Itoa(seen.Attempts + 1)},
			":ua":         ua,
			":seen":       &types.AttributeValueMemberS{Value: seen.Status},
			":seenAt":     seenAt,
		},
		ConditionExpression: awsString("#s = :seen AND updated_at = :seenAt"),
	})
	if err != nil {
		var sc smithy.APIError
		if errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, fmt.Errorf("update item (reclaim): %w", err)
	}
	return true, nil
}

// Get retrieves a ledger entry. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, eventID string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            eventKey(eventID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// MarkDone sets status to DONE.
func (s *Store) MarkDone(ctx context.Context, eventID string) error {
	return s.finish(ctx, eventID, StatusDone, "")
}

// MarkFailed marks the entry as FAILED and stores a note.
func (s *Store) MarkFailed(ctx context.Context, eventID, note string) error {
	return s.finish(ctx, eventID, StatusFailed, note)
}

func (s *Store) finish(ctx context.Context, eventID, status, note string) error {
	ua, err := attributevalue.Marshal(s.nowFunc().UTC())
	if err != nil {
		return fmt.Errorf("marshal time: %w", err)
	}
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              eventKey(eventID),
		UpdateExpression: awsString("SET #s = :st, note = :n, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st": &types.AttributeValueMemberS{Value: status},
			":n":  &types.AttributeValueMemberS{Value: note},
			":ua": ua,
		},
		ConditionExpression: awsString("attribute_exists(event_id)"),
		ReturnValues:        types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return fmt.Errorf("update item (mark %s): %w", status, err)
	}
	return nil
}

func eventKey(eventID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"event_id": &types.AttributeValueMemberS{Value: eventID},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
