package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-cart-checkout/internal/aws"
	"github.com/imrishuroy/go-cart-checkout/internal/config"
	"github.com/imrishuroy/go-cart-checkout/internal/idempotency"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ValidateWorker(); err != nil {
		log.Fatalf("invalid worker config: %v", err)
	}

	ctx := context.Background()
	clients, err := aws.NewAWSClients(ctx, aws.ConfigOptions{
		Region:           cfg.AWS.Region,
		EndpointOverride: cfg.AWS.Endpoint,
	})
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	ledger := idempotency.NewStore(clients.DynamoDB, cfg.Tables.ProcessedEvents, cfg.Worker.LedgerTTL)
	metrics := aws.NewMetricsEmitter(clients.CloudWatch, cfg.Worker.MetricsNamespace)
	p := NewProcessor(ledger, metrics, cfg.Worker.Lease)

	// If RUN_LOCAL=true, simulate a single SQS delivery for local testing.
	if cfg.HTTP.RunLocal {
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{MessageId: "local-message-1", Body: cfg.Worker.LocalBody},
			},
		}
		resp, err := p.Handle(ctx, event)
		if err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		if len(resp.BatchItemFailures) > 0 {
			log.Fatalf("local handler reported %d failed messages", len(resp.BatchItemFailures))
		}
		return
	}

	lambda.Start(p.Handle)
}
