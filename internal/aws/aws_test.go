package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

func TestLoadAWSConfig_DefaultRegion(t *testing.T) {
	cfg, err := LoadAWSConfig(context.Background(), ConfigOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Region != DefaultRegion {
		t.Fatalf("expected default region %q, got %s", DefaultRegion, cfg.Region)
	}
}

func TestLoadAWSConfig_WithEndpointOverride(t *testing.T) {
	cfg, err := LoadAWSConfig(context.Background(), ConfigOptions{
		Region:           "ap-southeast-1",
		EndpointOverride: "http://localhost:4566",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Region != "ap-southeast-1" {
		t.Fatalf("region mismatch, got %s", cfg.Region)
	}
	if cfg.BaseEndpoint == nil || *cfg.BaseEndpoint != "http://localhost:4566" {
		t.Fatalf("base endpoint not applied: %v", cfg.BaseEndpoint)
	}
}

type fakeSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = params
	return &sqs.SendMessageOutput{}, f.err
}

func TestPublisher_SendOrderMessage(t *testing.T) {
	client := &fakeSQS{}
	p := NewPublisher(client, "https://sqs.local/orders")

	err := p.SendOrderMessage(context.Background(), `{"order_id":"o1"}`, map[string]string{
		"event_type": "order.placed",
		"empty":      "",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if *client.input.QueueUrl != "https://sqs.local/orders" || *client.input.MessageBody != `{"order_id":"o1"}` {
		t.Fatalf("unexpected input: %+v", client.input)
	}
	if _, ok := client.input.MessageAttributes["empty"]; ok {
		t.Fatalf("empty attribute should be dropped")
	}
	if got := *client.input.MessageAttributes["event_type"].StringValue; got != "order.placed" {
		t.Fatalf("event_type attribute = %q", got)
	}

	client.err = errors.New("throttled")
	if err := p.SendOrderMessage(context.Background(), "{}", nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPublisher_FIFOQueue(t *testing.T) {
	client := &fakeSQS{}
	p := NewPublisher(client, "https://sqs.local/orders.fifo")

	err := p.SendOrderMessage(context.Background(), "{}", map[string]string{AttrOrderID: "o1", AttrUserID: "u1"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if *client.input.MessageGroupId != "u1" || *client.input.MessageDeduplicationId != "o1" {
		t.Fatalf("fifo fields not set: %+v", client.input)
	}
}

type fakeCloudWatch struct {
	calls []*cloudwatch.PutMetricDataInput
}

func (f *fakeCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.calls = append(f.calls, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestMetricsEmitter_Batches(t *testing.T) {
	client := &fakeCloudWatch{}
	m := NewMetricsEmitter(client, "CartCheckout")

	datums := make([]Datum, 0, maxDatumsPerCall+5)
	for i := 0; i < maxDatumsPerCall+5; i++ {
		datums = append(datums, Datum{Name: "OrdersPlaced", Value: 1})
	}
	datums[0].Unit = cwtypes.StandardUnitCount
	datums[0].Timestamp = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	datums[0].Dimensions = map[string]string{"PaymentMethod": "cod", "Backend": "dynamodb"}

	if err := m.Emit(context.Background(), datums); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(client.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(client.calls))
	}
	if n := len(client.calls[1].MetricData); n != 5 {
		t.Fatalf("expected 5 datums in second call, got %d", n)
	}
	first := client.calls[0].MetricData[0]
	if *first.Dimensions[0].Name != "Backend" || first.Unit != cwtypes.StandardUnitCount {
		t.Fatalf("unexpected datum: %+v", first)
	}
	if client.calls[0].MetricData[1].Unit != cwtypes.StandardUnitNone {
		t.Fatalf("expected default unit None")
	}
}
