package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const eventsIndex = "GSI1"

// dynamoEventAPI is the subset of the DynamoDB client used by DynamoEventStore.
type dynamoEventAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoEventStore stores events in a DynamoDB table keyed by aggregate_id
// (partition) and version (sort). A GSI with a fixed partition value orders
// the whole feed by creation time.
type DynamoEventStore struct {
	client    dynamoEventAPI
	tableName string
	publisher Publisher
}

// dynamoEvent represents the DynamoDB item structure
type dynamoEvent struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	Version       int    `dynamodbav:"version"`
	ID            string `dynamodbav:"id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	EventType     string `dynamodbav:"event_type"`
	Data          string `dynamodbav:"data"`
	CreatedAt     string `dynamodbav:"created_at"`
	GSI1PK        string `dynamodbav:"gsi1pk"`
}

func NewDynamoEventStore(client dynamoEventAPI, tableName string, publisher Publisher) *DynamoEventStore {
	return &DynamoEventStore{
		client:    client,
		tableName: tableName,
		publisher: publisher,
	}
}

// Append stores an event under the next free version of its aggregate. Two
// writers racing for the same version are resolved by a conditional put;
// the loser retries with a fresh version.
func (es *DynamoEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		version, err := es.nextVersion(ctx, aggregateID)
		if err != nil {
			return nil, err
		}
		event, err := newEvent(aggregateID, aggregateType, eventType, data, version)
		if err != nil {
			return nil, err
		}

		av, err := attributevalue.MarshalMap(dynamoEvent{
			AggregateID:   event.AggregateID,
			Version:       event.Version,
			ID:            event.ID,
			AggregateType: event.AggregateType,
			EventType:     event.EventType,
			Data:          string(event.Data),
			CreatedAt:     event.Timestamp.Format(time.RFC3339Nano),
			GSI1PK:        "EVENTS",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event: %w", err)
		}

		_, err = es.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(es.tableName),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(aggregate_id) AND attribute_not_exists(version)"),
		})
		if isConditionFailed(err) {
			continue
		}
		if err != nil {
			return nil, unavailable(err)
		}

		if err := publish(ctx, es.publisher, event); err != nil {
			log.Printf("[EventStore] publish %s for %s failed: %v", eventType, aggregateID, err)
		}
		return &event, nil
	}
	return nil, ErrContention
}

// nextVersion queries for the current max version and returns the next one
func (es *DynamoEventStore) nextVersion(ctx context.Context, aggregateID string) (int, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward:     aws.Bool(false),
		Limit:                aws.Int32(1),
		ProjectionExpression: aws.String("version"),
	})
	if err != nil {
		return 0, unavailable(err)
	}
	if len(result.Items) == 0 {
		return 1, nil
	}

	var item struct {
		Version int `dynamodbav:"version"`
	}
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return 0, err
	}
	return item.Version + 1, nil
}

// GetEvents returns the events of one aggregate in version order.
func (es *DynamoEventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward: aws.Bool(true),
	})
}

// GetAllEvents returns every event ordered by creation time.
func (es *DynamoEventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	return es.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		IndexName:              aws.String(eventsIndex),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "EVENTS"},
		},
		ScanIndexForward: aws.Bool(true),
	})
}

// query follows LastEvaluatedKey until the result set is exhausted.
func (es *DynamoEventStore) query(ctx context.Context, in *dynamodb.QueryInput) ([]Event, error) {
	var events []Event
	for {
		result, err := es.client.Query(ctx, in)
		if err != nil {
			return nil, unavailable(err)
		}
		events = append(events, unmarshalEvents(result.Items)...)
		if len(result.LastEvaluatedKey) == 0 {
			return events, nil
		}
		in.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

// unmarshalEvents converts DynamoDB items to events, skipping unreadable items
func unmarshalEvents(items []map[string]types.AttributeValue) []Event {
	events := make([]Event, 0, len(items))
	for _, item := range items {
		var de dynamoEvent
		if err := attributevalue.UnmarshalMap(item, &de); err != nil {
			log.Printf("[EventStore] skipping unreadable event item: %v", err)
			continue
		}

		timestamp, _ := time.Parse(time.RFC3339Nano, de.CreatedAt)
		events = append(events, Event{
			ID:            de.ID,
			AggregateID:   de.AggregateID,
			AggregateType: de.AggregateType,
			EventType:     de.EventType,
			Data:          []byte(de.Data),
			Timestamp:     timestamp,
			Version:       de.Version,
		})
	}
	return events
}
