package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer appends entries to the change feed. Messages are keyed by
// aggregate id, so all events of one book or user share a partition and
// stay in order.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            5,
		AllowAutoTopicCreation: true,
	}}
}

// Publish blocks until the brokers acknowledged the entry.
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
