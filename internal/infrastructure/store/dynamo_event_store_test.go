package store

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEventTable keeps items in append order and answers the two query
// shapes DynamoEventStore issues.
type fakeEventTable struct {
	mu    sync.Mutex
	items []map[string]types.AttributeValue

	// collide makes the next n conditional puts fail
	collide int
	failAll error
}

func eventKey(item map[string]types.AttributeValue) (string, int) {
	aid := item["aggregate_id"].(*types.AttributeValueMemberS).Value
	v, _ := strconv.Atoi(item["version"].(*types.AttributeValueMemberN).Value)
	return aid, v
}

func (f *fakeEventTable) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	if f.collide > 0 {
		f.collide--
		return nil, conditionFailed()
	}

	aid, v := eventKey(in.Item)
	for _, item := range f.items {
		if a, w := eventKey(item); a == aid && w == v {
			return nil, conditionFailed()
		}
	}
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeEventTable) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}

	if aws.ToString(in.IndexName) == eventsIndex {
		return &dynamodb.QueryOutput{Items: append([]map[string]types.AttributeValue(nil), f.items...)}, nil
	}

	aid := in.ExpressionAttributeValues[":aid"].(*types.AttributeValueMemberS).Value
	var items []map[string]types.AttributeValue
	for _, item := range f.items {
		if a, _ := eventKey(item); a == aid {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		_, vi := eventKey(items[i])
		_, vj := eventKey(items[j])
		if aws.ToBool(in.ScanIndexForward) {
			return vi < vj
		}
		return vi > vj
	})
	if in.Limit != nil && int(*in.Limit) < len(items) {
		items = items[:*in.Limit]
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

func TestDynamoEventStore_AppendAndRead(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	es := NewDynamoEventStore(&fakeEventTable{}, "events", pub)

	e1, err := es.Append(ctx, "book-1", "Book", "BookListed", map[string]string{"title": "Dracula"})
	require.NoError(t, err)
	_, err = es.Append(ctx, "book-2", "Book", "BookListed", map[string]string{"title": "Emma"})
	require.NoError(t, err)
	e3, err := es.Append(ctx, "book-1", "Book", "ReviewAdded", map[string]int{"rating": 5})
	require.NoError(t, err)

	assert.Equal(t, 1, e1.Version)
	assert.Equal(t, 2, e3.Version)

	events, err := es.GetEvents(ctx, "book-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ReviewAdded", events[1].EventType)
	assert.JSONEq(t, `{"rating":5}`, string(events[1].Data))

	all, err := es.GetAllEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, []string{"book-1", "book-2", "book-1"}, pub.keys)
}

func TestDynamoEventStore_RetriesVersionCollision(t *testing.T) {
	ctx := context.Background()
	table := &fakeEventTable{collide: 2}
	es := NewDynamoEventStore(table, "events", nil)

	e, err := es.Append(ctx, "book-1", "Book", "BookListed", nil)

	require.NoError(t, err)
	assert.Equal(t, 1, e.Version)
}

func TestDynamoEventStore_GivesUp(t *testing.T) {
	table := &fakeEventTable{collide: maxUpdateAttempts}
	es := NewDynamoEventStore(table, "events", nil)

	_, err := es.Append(context.Background(), "book-1", "Book", "BookListed", nil)

	assert.ErrorIs(t, err, ErrContention)
}

func TestDynamoEventStore_Unavailable(t *testing.T) {
	table := &fakeEventTable{failAll: errors.New("connection refused")}
	es := NewDynamoEventStore(table, "events", nil)

	_, err := es.Append(context.Background(), "book-1", "Book", "BookListed", nil)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = es.GetAllEvents(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}
