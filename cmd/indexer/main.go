package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/bookshop/internal/config"
	"github.com/example/bookshop/internal/infrastructure/kafka"
	"github.com/example/bookshop/internal/projection"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Indexer] Invalid configuration: %v", err)
	}
	if !cfg.FeedEnabled() {
		log.Fatal("[Indexer] KAFKA_BROKERS is required")
	}

	log.Println("[Indexer] ========================================")
	log.Println("[Indexer] Bookshop - Replica Indexer")
	log.Println("[Indexer] ========================================")
	log.Printf("[Indexer] Kafka: %v", cfg.KafkaBrokers)
	log.Printf("[Indexer] Topic: %s", cfg.KafkaTopic)
	log.Printf("[Indexer] Group: %s", cfg.KafkaGroup)
	log.Printf("[Indexer] Replica: %s", cfg.CatalogBackend)

	// The indexer only reads the feed; it never publishes.
	brokers := cfg.KafkaBrokers
	cfg.KafkaBrokers, cfg.EventBackend = nil, config.BackendMemory
	backends, err := cfg.Open(ctx)
	if err != nil {
		log.Fatalf("[Indexer] Failed to open replica store: %v", err)
	}
	defer backends.Close()

	projector := projection.NewProjector(backends.Documents)

	consumer := kafka.NewConsumer(brokers, cfg.KafkaTopic, cfg.KafkaGroup)
	defer consumer.Close()

	go func() {
		log.Println("[Indexer] Starting event consumer...")
		if err := consumer.Consume(ctx, projector.HandleEvent); err != nil && ctx.Err() == nil {
			log.Printf("[Indexer] Consumer error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Indexer] Shutting down...")
	cancel()
}
