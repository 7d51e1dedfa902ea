package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-cart-checkout/internal/aws"
	"github.com/imrishuroy/go-cart-checkout/internal/aws/awstest"
	"github.com/imrishuroy/go-cart-checkout/internal/idempotency"
	"github.com/imrishuroy/go-cart-checkout/internal/orders"
)

type fakeSink struct {
	batches [][]aws.Datum
	err     error
}

func (f *fakeSink) Emit(ctx context.Context, datums []aws.Datum) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, datums)
	return nil
}

func newTestProcessor(t *testing.T) (*Processor, *idempotency.Store, *fakeSink) {
	t.Helper()
	fake := awstest.NewFakeDynamo()
	fake.CreateTable("processed-events", "event_id", "")
	ledger := idempotency.NewStore(fake, "processed-events", 48*time.Hour)
	sink := &fakeSink{}
	return NewProcessor(ledger, sink, time.Minute), ledger, sink
}

func placedMessage(t *testing.T, id string) events.SQSMessage {
	t.Helper()
	body, err := json.Marshal(orders.PlacedEvent{
		EventID:       id,
		OrderID:       id,
		UserID:        "u1",
		Subtotal:      decimal.NewFromInt(35000),
		Discount:      decimal.NewFromInt(5000),
		Total:         decimal.NewFromInt(30000),
		Units:         3,
		PaymentMethod: orders.PaymentCOD,
		PlacedAt:      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return events.SQSMessage{MessageId: "msg-" + id, Body: string(body)}
}

func TestWorkerProcess_Success(t *testing.T) {
	p, ledger, sink := newTestProcessor(t)

	resp, err := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{placedMessage(t, "o1")}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)

	require.Len(t, sink.batches, 1)
	byName := map[string]aws.Datum{}
	for _, d := range sink.batches[0] {
		byName[d.Name] = d
	}
	assert.Equal(t, 1.0, byName["OrdersPlaced"].Value)
	assert.Equal(t, 30000.0, byName["OrderRevenue"].Value)
	assert.Equal(t, 5000.0, byName["ComboDiscount"].Value)
	assert.Equal(t, 3.0, byName["OrderUnits"].Value)
	assert.Equal(t, "cod", byName["OrdersPlaced"].Dimensions["PaymentMethod"])

	rec, err := ledger.Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.StatusDone, rec.Status)
}

func TestWorkerProcess_DuplicateDeliverySkipped(t *testing.T) {
	p, _, sink := newTestProcessor(t)
	msg := placedMessage(t, "o2")

	for i := 0; i < 3; i++ {
		resp, err := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{msg}})
		require.NoError(t, err)
		assert.Empty(t, resp.BatchItemFailures)
	}
	assert.Len(t, sink.batches, 1)
}

func TestWorkerProcess_FailureIsRetried(t *testing.T) {
	p, ledger, sink := newTestProcessor(t)
	msg := placedMessage(t, "o3")

	sink.err = errors.New("cloudwatch unavailable")
	resp, err := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{msg}})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "msg-o3", resp.BatchItemFailures[0].ItemIdentifier)

	rec, err := ledger.Get(context.Background(), "o3")
	require.NoError(t, err)
	assert.Equal(t, idempotency.StatusFailed, rec.Status)

	sink.err = nil
	resp, err = p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{msg}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Len(t, sink.batches, 1)

	rec, err = ledger.Get(context.Background(), "o3")
	require.NoError(t, err)
	assert.Equal(t, idempotency.StatusDone, rec.Status)
	assert.Equal(t, 2, rec.Attempts)
}

func TestWorkerProcess_InProgressElsewhere(t *testing.T) {
	p, ledger, sink := newTestProcessor(t)
	_, err := ledger.Claim(context.Background(), "o4", "o4")
	require.NoError(t, err)

	resp, err := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{placedMessage(t, "o4")}})
	require.NoError(t, err)
	assert.Len(t, resp.BatchItemFailures, 1)
	assert.Empty(t, sink.batches)

	// once the lease has expired the entry is taken over
	p.nowFunc = func() time.Time { return time.Now().Add(2 * time.Minute) }
	resp, err = p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{placedMessage(t, "o4")}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Len(t, sink.batches, 1)
}

func TestWorkerProcess_BadAndForeignMessages(t *testing.T) {
	p, _, sink := newTestProcessor(t)
	other := "order.shipped"
	ev := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "bad", Body: "{not json"},
		{MessageId: "empty", Body: `{"total":"1"}`},
		{MessageId: "foreign", Body: `{}`, MessageAttributes: map[string]events.SQSMessageAttribute{
			"event_type": {StringValue: &other, DataType: "String"},
		}},
		placedMessage(t, "o5"),
	}}

	resp, err := p.Handle(context.Background(), ev)
	require.NoError(t, err)
	var failed []string
	for _, f := range resp.BatchItemFailures {
		failed = append(failed, f.ItemIdentifier)
	}
	assert.Equal(t, []string{"bad", "empty"}, failed)
	assert.Len(t, sink.batches, 1)
}
