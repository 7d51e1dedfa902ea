package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/go-cart-checkout/internal/aws"
	"github.com/imrishuroy/go-cart-checkout/internal/idempotency"
	"github.com/imrishuroy/go-cart-checkout/internal/orders"
)

// Ledger remembers consumed events. *idempotency.Store satisfies it.
type Ledger interface {
	Claim(ctx context.Context, eventID, orderID string) (bool, error)
	Reclaim(ctx context.Context, seen idempotency.Record) (bool, error)
	Get(ctx context.Context, eventID string) (*idempotency.Record, error)
	MarkDone(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID, note string) error
}

// MetricsSink receives order metrics. *aws.MetricsEmitter satisfies it.
type MetricsSink interface {
	Emit(ctx context.Context, datums []aws.Datum) error
}

// Processor turns order.placed events into CloudWatch metrics exactly once
// per event id.
type Processor struct {
	ledger  Ledger
	metrics MetricsSink
	lease   time.Duration // after this an IN_PROGRESS entry is considered abandoned
	nowFunc func() time.Time
}

// NewProcessor creates a new worker processor.
func NewProcessor(ledger Ledger, metrics MetricsSink, lease time.Duration) *Processor {
	return &Processor{
		ledger:  ledger,
		metrics: metrics,
		lease:   lease,
		nowFunc: time.Now,
	}
}

// Handle receives an SQS batch and reports the messages that must be retried.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// failed messages stay on the queue; repeated failures go to the DLQ
			log.Printf("[worker] error message=%s: %v", rec.MessageId, err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	if t, ok := rec.MessageAttributes["event_type"]; ok && t.StringValue != nil && *t.StringValue != orders.EventOrderPlaced {
		log.Printf("[worker] skipping event_type=%s message=%s", *t.StringValue, rec.MessageId)
		return nil
	}

	var ev orders.PlacedEvent
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if ev.OrderID == "" {
		return fmt.Errorf("message %s has no order_id", rec.MessageId)
	}
	eventID := ev.EventID
	if eventID == "" {
		eventID = rec.MessageId
	}

	log.Printf("[worker] received order=%s event=%s total=%s", ev.OrderID, eventID, ev.Total)

	owned, err := p.claim(ctx, eventID, ev.OrderID)
	if err != nil {
		return err
	}
	if !owned {
		return nil
	}

	if err := p.metrics.Emit(ctx, orderMetrics(ev)); err != nil {
		if markErr := p.ledger.MarkFailed(ctx, eventID, err.Error()); markErr != nil {
			log.Printf("[worker] mark failed event=%s: %v", eventID, markErr)
		}
		return fmt.Errorf("emit metrics for order=%s: %w", ev.OrderID, err)
	}

	if err := p.ledger.MarkDone(ctx, eventID); err != nil {
		return fmt.Errorf("failed to update ledger: %w", err)
	}
	log.Printf("[worker] recorded order=%s", ev.OrderID)
	return nil
}

// claim returns true when this worker owns eventID, false when it was
// already handled. An error means the message should be retried later.
func (p *Processor) claim(ctx context.Context, eventID, orderID string) (bool, error) {
	created, err := p.ledger.Claim(ctx, eventID, orderID)
	if err != nil {
		return false, fmt.Errorf("claim event: %w", err)
	}
	if created {
		return true, nil
	}

	seen, err := p.ledger.Get(ctx, eventID)
	if err != nil {
		return false, fmt.Errorf("read ledger: %w", err)
	}
	if seen == nil {
		return false, fmt.Errorf("ledger entry for event=%s vanished", eventID)
	}
	switch seen.Status {
	case idempotency.StatusDone:
		log.Printf("[worker] already recorded event=%s", eventID)
		return false, nil
	case idempotency.StatusInProgress:
		if p.nowFunc().Sub(seen.UpdatedAt) < p.lease {
			return false, fmt.Errorf("event=%s is being processed by another worker", eventID)
		}
	case idempotency.StatusFailed:
	default:
		return false, fmt.Errorf("unexpected ledger status for event=%s: %s", eventID, seen.Status)
	}

	ok, err := p.ledger.Reclaim(ctx, *seen)
	if err != nil {
		return false, fmt.Errorf("reclaim event: %w", err)
	}
	if !ok {
		return false, fmt.Errorf("event=%s was reclaimed by another worker", eventID)
	}
	log.Printf("[worker] reclaimed event=%s attempt=%d", eventID, seen.Attempts+1)
	return true, nil
}

func orderMetrics(ev orders.PlacedEvent) []aws.Datum {
	dims := map[string]string{"PaymentMethod": string(ev.PaymentMethod)}
	at := ev.PlacedAt
	total, _ := ev.Total.Float64()
	discount, _ := ev.Discount.Float64()
	return []aws.Datum{
		{Name: "OrdersPlaced", Value: 1, Unit: cwtypes.StandardUnitCount, Dimensions: dims, Timestamp: at},
		{Name: "OrderRevenue", Value: total, Unit: cwtypes.StandardUnitNone, Dimensions: dims, Timestamp: at},
		{Name: "ComboDiscount", Value: discount, Unit: cwtypes.StandardUnitNone, Dimensions: dims, Timestamp: at},
		{Name: "OrderUnits", Value: float64(ev.Units), Unit: cwtypes.StandardUnitCount, Dimensions: dims, Timestamp: at},
	}
}
