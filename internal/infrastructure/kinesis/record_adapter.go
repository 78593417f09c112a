// Package kinesis feeds events captured from the DynamoDB event table
// (DynamoDB Streams delivered through Kinesis) to change-feed handlers.
package kinesis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/bookshop/internal/infrastructure/store"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handler consumes one encoded event, like a Kafka message handler.
type Handler func(ctx context.Context, key, value []byte) error

// ConvertFromKinesisRecord converts a Kinesis record carrying a DynamoDB
// stream record to a store.Event. Records other than INSERT yield nil.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*store.Event, error) {
	var dynamoDBRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &dynamoDBRecord); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DynamoDB record: %w", err)
	}
	return ConvertFromDynamoDBStreamRecord(dynamoDBRecord)
}

// ConvertFromDynamoDBStreamRecord converts a DynamoDB stream record to a
// store.Event. Events are append-only, so only INSERT carries one.
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*store.Event, error) {
	if record.EventName != "INSERT" {
		return nil, nil
	}
	return convertDynamoDBImage(record.Change.NewImage)
}

// convertDynamoDBImage reads the attributes written by DynamoEventStore.
func convertDynamoDBImage(image map[string]events.DynamoDBAttributeValue) (*store.Event, error) {
	if image == nil {
		return nil, fmt.Errorf("DynamoDB image is nil")
	}

	str := func(name string) string {
		if v, ok := image[name]; ok && v.DataType() == events.DataTypeString {
			return v.String()
		}
		return ""
	}

	event := &store.Event{
		ID:            str("id"),
		AggregateID:   str("aggregate_id"),
		AggregateType: str("aggregate_type"),
		EventType:     str("event_type"),
	}
	if data := str("data"); data != "" {
		event.Data = jsoniter.RawMessage(data)
	}
	if created := str("created_at"); created != "" {
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		event.Timestamp = t
	}
	if v, ok := image["version"]; ok {
		version, err := v.Integer()
		if err != nil {
			return nil, fmt.Errorf("failed to parse version: %w", err)
		}
		event.Version = int(version)
	}

	if event.ID == "" || event.AggregateID == "" || event.EventType == "" {
		return nil, fmt.Errorf("missing required fields: id=%q, aggregate_id=%q, event_type=%q",
			event.ID, event.AggregateID, event.EventType)
	}
	return event, nil
}

// Dispatch passes every INSERT in a batch to handle, keyed by aggregate ID.
// Records that cannot be converted or handled are reported as batch item
// failures so Lambda retries only those.
func Dispatch(ctx context.Context, name string, batch events.KinesisEvent, handle Handler) events.KinesisEventResponse {
	log.Printf("[%s] Received %d records", name, len(batch.Records))

	var failures []events.KinesisBatchItemFailure
	fail := func(record events.KinesisEventRecord) {
		failures = append(failures, events.KinesisBatchItemFailure{ItemIdentifier: record.Kinesis.SequenceNumber})
	}

	for _, record := range batch.Records {
		event, err := ConvertFromKinesisRecord(record)
		if err != nil {
			log.Printf("[%s] Failed to convert record %s: %v", name, record.EventID, err)
			fail(record)
			continue
		}
		if event == nil {
			continue
		}

		value, err := event.Encode()
		if err != nil {
			log.Printf("[%s] Failed to encode event %s: %v", name, event.ID, err)
			fail(record)
			continue
		}
		if err := handle(ctx, []byte(event.AggregateID), value); err != nil {
			log.Printf("[%s] Failed to process event %s: %v", name, event.ID, err)
			fail(record)
		}
	}

	log.Printf("[%s] Processed %d/%d records successfully", name, len(batch.Records)-len(failures), len(batch.Records))
	return events.KinesisEventResponse{BatchItemFailures: failures}
}
