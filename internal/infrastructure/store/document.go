package store

import (
	"context"
	"errors"
)

// Op is the comparison applied by a Condition.
type Op int

const (
	// OpEq matches a field equal to the value.
	OpEq Op = iota
	// OpEqFold matches a field equal to the value ignoring case.
	OpEqFold
	// OpContainsFold matches a field containing the value ignoring case.
	OpContainsFold
	// OpHas matches an array field holding the value ignoring case.
	OpHas
)

// Condition filters documents on a top level field.
type Condition struct {
	Field string
	Op    Op
	Value string
}

// Query selects documents of one collection. All conditions must hold.
// Without SortBy documents come back in insertion order.
type Query struct {
	Where  []Condition
	SortBy string
	Desc   bool
	Skip   int
	Limit  int
}

// UniqueIndex rejects two documents of Collection sharing a non-empty Field.
type UniqueIndex struct {
	Collection string
	Field      string
	Fold       bool
}

// DefaultIndexes are the unique indexes the bookshop collections rely on.
var DefaultIndexes = []UniqueIndex{
	{Collection: "users", Field: "username_key", Fold: true},
	{Collection: "users", Field: "email_key", Fold: true},
	{Collection: "books", Field: "isbn"},
}

// DocumentStore keeps JSON documents keyed by collection and id.
type DocumentStore interface {
	// Get returns the document or ErrNotFound.
	Get(ctx context.Context, collection, id string) ([]byte, error)

	// Find returns the documents matching q.
	Find(ctx context.Context, collection string, q Query) ([][]byte, error)

	// Insert stores a new document. It fails with ErrDuplicate when the id or
	// a unique index value is taken.
	Insert(ctx context.Context, collection, id string, doc []byte) error

	// Upsert stores doc whether or not id exists.
	Upsert(ctx context.Context, collection, id string, doc []byte) error

	// Update atomically replaces the document with the result of fn.
	Update(ctx context.Context, collection, id string, fn func(current []byte) ([]byte, error)) error

	// Delete removes the document or returns ErrNotFound.
	Delete(ctx context.Context, collection, id string) error
}

type options struct {
	tableName string
	indexes   []UniqueIndex
}

// Option configures a document store backend.
type Option func(*options) error

// WithTableName overrides the table used by the SQL and DynamoDB backends.
func WithTableName(name string) Option {
	return func(o *options) error {
		if name == "" {
			return errors.New("table name must not be empty")
		}
		o.tableName = name
		return nil
	}
}

// WithUniqueIndexes declares unique indexes enforced by the store.
func WithUniqueIndexes(indexes ...UniqueIndex) Option {
	return func(o *options) error {
		for _, idx := range indexes {
			if idx.Collection == "" || idx.Field == "" {
				return errors.New("unique index needs a collection and a field")
			}
		}
		o.indexes = append(o.indexes, indexes...)
		return nil
	}
}

func buildOptions(defaultTable string, opts []Option) (options, error) {
	o := options{tableName: defaultTable}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return options{}, err
		}
	}
	return o, nil
}

func (o options) indexesFor(collection string) []UniqueIndex {
	var out []UniqueIndex
	for _, idx := range o.indexes {
		if idx.Collection == collection {
			out = append(out, idx)
		}
	}
	return out
}
