package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/bookshop/internal/config"
	"github.com/example/bookshop/internal/email"
	"github.com/example/bookshop/internal/infrastructure/kafka"
	"github.com/example/bookshop/internal/notification"
)

// Dedicated consumer group so receipts are mailed once, independent of the indexer
const consumerGroup = "bookshop-notifier"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Notifier] Invalid configuration: %v", err)
	}
	if !cfg.FeedEnabled() {
		log.Fatal("[Notifier] KAFKA_BROKERS is required")
	}
	brokers := cfg.KafkaBrokers

	log.Println("[Notifier] ========================================")
	log.Println("[Notifier] Bookshop - Receipt Notification Service")
	log.Println("[Notifier] ========================================")
	log.Printf("[Notifier] Kafka: %v", brokers)
	log.Printf("[Notifier] Topic: %s", cfg.KafkaTopic)
	log.Printf("[Notifier] Group: %s", consumerGroup)
	log.Printf("[Notifier] SMTP: %s:%s", cfg.SMTPHost, cfg.SMTPPort)
	log.Printf("[Notifier] From: %s", cfg.SMTPFrom)

	// Only the user documents are read
	cfg.KafkaBrokers, cfg.EventBackend = nil, config.BackendMemory
	backends, err := cfg.Open(ctx)
	if err != nil {
		log.Fatalf("[Notifier] Failed to open user store: %v", err)
	}
	defer backends.Close()

	emailSvc := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	handler := notification.NewHandler(emailSvc, backends.Documents)

	consumer := kafka.NewConsumer(brokers, cfg.KafkaTopic, consumerGroup)
	defer consumer.Close()

	go func() {
		log.Println("[Notifier] Starting event consumer...")
		if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && ctx.Err() == nil {
			log.Printf("[Notifier] Consumer error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Notifier] Shutting down...")
	cancel()
}
