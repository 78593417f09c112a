package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/bookshop/internal/config"
	"github.com/example/bookshop/internal/infrastructure/kinesis"
	"github.com/example/bookshop/internal/projection"
)

var projector *projection.Projector

func init() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Lambda Indexer] Invalid configuration: %v", err)
	}

	// Events arrive from the stream; the replica never publishes.
	cfg.KafkaBrokers, cfg.EventBackend = nil, config.BackendMemory
	backends, err := cfg.Open(context.Background())
	if err != nil {
		log.Fatalf("[Lambda Indexer] Failed to open replica store: %v", err)
	}

	projector = projection.NewProjector(backends.Documents)
	log.Printf("[Lambda Indexer] Initialized successfully (replica: %s)", cfg.CatalogBackend)
}

func handler(ctx context.Context, batch events.KinesisEvent) (events.KinesisEventResponse, error) {
	return kinesis.Dispatch(ctx, "Lambda Indexer", batch, projector.HandleEvent), nil
}

func main() {
	lambda.Start(handler)
}
