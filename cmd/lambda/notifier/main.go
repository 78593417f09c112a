package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/bookshop/internal/config"
	"github.com/example/bookshop/internal/email"
	"github.com/example/bookshop/internal/infrastructure/kinesis"
	"github.com/example/bookshop/internal/notification"
)

var notificationHandler *notification.Handler

func init() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Lambda Notifier] Invalid configuration: %v", err)
	}

	cfg.KafkaBrokers, cfg.EventBackend = nil, config.BackendMemory
	backends, err := cfg.Open(context.Background())
	if err != nil {
		log.Fatalf("[Lambda Notifier] Failed to open user store: %v", err)
	}

	emailSvc := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	notificationHandler = notification.NewHandler(emailSvc, backends.Documents)

	log.Printf("[Lambda Notifier] Initialized successfully (SMTP: %s:%s)", cfg.SMTPHost, cfg.SMTPPort)
}

func handler(ctx context.Context, batch events.KinesisEvent) (events.KinesisEventResponse, error) {
	return kinesis.Dispatch(ctx, "Lambda Notifier", batch, notificationHandler.HandleEvent), nil
}

func main() {
	lambda.Start(handler)
}
