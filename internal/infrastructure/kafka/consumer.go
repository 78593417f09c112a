package kafka

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

type MessageHandler func(ctx context.Context, key, value []byte) error

// reader is the part of *kafka.Reader the consumer drives.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads the change feed as a member of a consumer group. A failed
// message is retried with exponential backoff; once the attempts are used
// up it is logged and skipped so one bad entry cannot stall the partition.
type Consumer struct {
	reader   reader
	attempts int
	backoff  time.Duration
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			Topic:       topic,
			GroupID:     groupID,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     500 * time.Millisecond,
			StartOffset: kafka.FirstOffset,
		}),
		attempts: 3,
		backoff:  200 * time.Millisecond,
	}
}

// Consume runs until ctx is done. An offset is committed only after its
// message was handled or given up on.
func (c *Consumer) Consume(ctx context.Context, handle MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Kafka] fetch failed: %v", err)
			continue
		}

		if err := c.deliver(ctx, msg, handle); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Kafka] giving up on %s/%d@%d after %d attempts: %v",
				msg.Topic, msg.Partition, msg.Offset, c.attempts, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Printf("[Kafka] commit of offset %d failed: %v", msg.Offset, err)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, msg kafka.Message, handle MessageHandler) error {
	wait := c.backoff
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err = handle(ctx, msg.Key, msg.Value); err == nil {
			return nil
		}
		if attempt == c.attempts {
			break
		}
		log.Printf("[Kafka] attempt %d for offset %d failed: %v", attempt, msg.Offset, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
