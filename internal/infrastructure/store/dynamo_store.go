package store

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	maxUpdateAttempts = 5

	// collection is a reserved word, so every expression goes through names.
	condNotExists = "attribute_not_exists(#id)"
	condExists    = "attribute_exists(#id)"
	condVersion   = "#version = :version"
)

var dynamoNames = map[string]string{
	"#collection": "collection",
	"#id":         "id",
	"#version":    "version",
}

func namesFor(expr string) map[string]string {
	out := make(map[string]string)
	for placeholder, name := range dynamoNames {
		if strings.Contains(expr, placeholder) {
			out[placeholder] = name
		}
	}
	return out
}

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore keeps documents in a table keyed by collection (partition) and
// id (sort). Updates are optimistic on the version attribute. Unique indexes
// are checked by reading the collection before writing, so two concurrent
// writers can still both pass the check.
type DynamoStore struct {
	client  DynamoAPI
	opts    options
	lastSeq atomic.Int64
}

// dynamoDocument represents the DynamoDB item structure
type dynamoDocument struct {
	Collection string `dynamodbav:"collection"`
	ID         string `dynamodbav:"id"`
	Seq        int64  `dynamodbav:"seq"`
	Version    int64  `dynamodbav:"version"`
	Doc        string `dynamodbav:"doc"`
}

// NewDynamoClient builds a client from the default AWS configuration chain.
// A non-empty endpoint points the client at a local DynamoDB.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func NewDynamoStore(client DynamoAPI, opts ...Option) (*DynamoStore, error) {
	o, err := buildOptions("bookshop-documents", opts)
	if err != nil {
		return nil, err
	}
	return &DynamoStore{client: client, opts: o}, nil
}

func (s *DynamoStore) key(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"collection": &types.AttributeValueMemberS{Value: collection},
		"id":         &types.AttributeValueMemberS{Value: id},
	}
}

func (s *DynamoStore) load(ctx context.Context, collection, id string) (*dynamoDocument, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.opts.tableName),
		Key:            s.key(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		log.Printf("[DynamoStore] get %s/%s failed: %v", collection, id, err)
		return nil, unavailable(err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var item dynamoDocument
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *DynamoStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	item, err := s.load(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	return []byte(item.Doc), nil
}

func (s *DynamoStore) records(ctx context.Context, collection string) ([]record, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                aws.String(s.opts.tableName),
		KeyConditionExpression:   aws.String("#collection = :c"),
		ExpressionAttributeNames: namesFor("#collection"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: collection},
		},
		ConsistentRead: aws.Bool(true),
	})

	var records []record
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			log.Printf("[DynamoStore] query %s failed: %v", collection, err)
			return nil, unavailable(err)
		}
		for _, av := range page.Items {
			var item dynamoDocument
			if err := attributevalue.UnmarshalMap(av, &item); err != nil {
				log.Printf("[DynamoStore] skipping malformed item in %s: %v", collection, err)
				continue
			}
			records = append(records, record{id: item.ID, seq: item.Seq, doc: []byte(item.Doc)})
		}
	}
	return records, nil
}

func (s *DynamoStore) Find(ctx context.Context, collection string, q Query) ([][]byte, error) {
	records, err := s.records(ctx, collection)
	if err != nil {
		return nil, err
	}
	return applyQuery(records, q), nil
}

func (s *DynamoStore) checkUnique(ctx context.Context, collection, id string, doc []byte) error {
	indexes := s.opts.indexesFor(collection)
	if len(indexes) == 0 {
		return nil
	}

	records, err := s.records(ctx, collection)
	if err != nil {
		return err
	}
	for _, idx := range indexes {
		key := indexKey(doc, idx)
		if key == "" {
			continue
		}
		for _, r := range records {
			if r.id != id && indexKey(r.doc, idx) == key {
				return ErrDuplicate
			}
		}
	}
	return nil
}

func (s *DynamoStore) put(ctx context.Context, item dynamoDocument, condition string, values map[string]types.AttributeValue) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}

	input := &dynamodb.PutItemInput{
		TableName:                aws.String(s.opts.tableName),
		Item:                     av,
		ConditionExpression:      aws.String(condition),
		ExpressionAttributeNames: namesFor(condition),
	}
	if len(values) > 0 {
		input.ExpressionAttributeValues = values
	}
	_, err = s.client.PutItem(ctx, input)
	return err
}

func (s *DynamoStore) Insert(ctx context.Context, collection, id string, doc []byte) error {
	if !validDocument(doc) {
		return ErrInvalidDocument
	}
	if err := s.checkUnique(ctx, collection, id, doc); err != nil {
		return err
	}

	err := s.put(ctx, dynamoDocument{
		Collection: collection,
		ID:         id,
		Seq:        s.nextSeq(),
		Version:    1,
		Doc:        string(doc),
	}, condNotExists, nil)
	if err != nil {
		if isConditionFailed(err) {
			return ErrDuplicate
		}
		log.Printf("[DynamoStore] insert %s/%s failed: %v", collection, id, err)
		return unavailable(err)
	}
	return nil
}

func (s *DynamoStore) Upsert(ctx context.Context, collection, id string, doc []byte) error {
	err := s.Insert(ctx, collection, id, doc)
	if !errors.Is(err, ErrDuplicate) {
		return err
	}
	return s.Update(ctx, collection, id, func([]byte) ([]byte, error) { return doc, nil })
}

func (s *DynamoStore) Update(ctx context.Context, collection, id string, fn func(current []byte) ([]byte, error)) error {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		current, err := s.load(ctx, collection, id)
		if err != nil {
			return err
		}

		updated, err := fn([]byte(current.Doc))
		if err != nil {
			return err
		}
		if !validDocument(updated) {
			return ErrInvalidDocument
		}
		if err := s.checkUnique(ctx, collection, id, updated); err != nil {
			return err
		}

		next := *current
		next.Version = current.Version + 1
		next.Doc = string(updated)
		err = s.put(ctx, next, condVersion, map[string]types.AttributeValue{
			":version": &types.AttributeValueMemberN{Value: formatInt(current.Version)},
		})
		if err == nil {
			return nil
		}
		if !isConditionFailed(err) {
			log.Printf("[DynamoStore] update %s/%s failed: %v", collection, id, err)
			return unavailable(err)
		}
		log.Printf("[DynamoStore] update %s/%s lost a race (attempt %d)", collection, id, attempt)
	}
	return ErrContention
}

func (s *DynamoStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.opts.tableName),
		Key:                      s.key(collection, id),
		ConditionExpression:      aws.String(condExists),
		ExpressionAttributeNames: namesFor(condExists),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		log.Printf("[DynamoStore] delete %s/%s failed: %v", collection, id, err)
		return unavailable(err)
	}
	return nil
}

// nextSeq is a wall clock sequence that never repeats within this process.
func (s *DynamoStore) nextSeq() int64 {
	for {
		last := s.lastSeq.Load()
		next := time.Now().UnixNano()
		if next <= last {
			next = last + 1
		}
		if s.lastSeq.CompareAndSwap(last, next) {
			return next
		}
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
