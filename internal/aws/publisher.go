package aws

import (
	"context"
	"fmt"
	"strings"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Attribute keys with a meaning for FIFO queues.
const (
	AttrOrderID = "order_id"
	AttrUserID  = "user_id"
)

// Publisher sends order events to one SQS queue.
type Publisher struct {
	client   SQSAPI
	queueURL string
	fifo     bool
}

// NewPublisher returns a Publisher bound to queueURL. A ".fifo" queue gets a
// message group per user and deduplication per order.
func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

// SendOrderMessage sends body (JSON) with attrs as String message attributes.
// Empty values are dropped because SQS rejects them.
func (p *Publisher) SendOrderMessage(ctx context.Context, body string, attrs map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:          sdkaws.String(p.queueURL),
		MessageBody:       sdkaws.String(body),
		MessageAttributes: messageAttributes(attrs),
	}
	if p.fifo {
		group := attrs[AttrUserID]
		if group == "" {
			group = attrs[AttrOrderID]
		}
		input.MessageGroupId = sdkaws.String(group)
		input.MessageDeduplicationId = sdkaws.String(attrs[AttrOrderID])
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send order message to %s: %w", p.queueURL, err)
	}
	return nil
}

func messageAttributes(attrs map[string]string) map[string]sqstypes.MessageAttributeValue {
	var out map[string]sqstypes.MessageAttributeValue
	for k, v := range attrs {
		if v == "" {
			continue
		}
		if out == nil {
			out = make(map[string]sqstypes.MessageAttributeValue, len(attrs))
		}
		out[k] = sqstypes.MessageAttributeValue{
			DataType:    sdkaws.String("String"),
			StringValue: sdkaws.String(v),
		}
	}
	return out
}
