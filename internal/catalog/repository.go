package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/example/bookshop/internal/domain"
	"github.com/example/bookshop/internal/domain/book"
	"github.com/example/bookshop/internal/infrastructure/store"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// Collection is the document collection holding books.
const Collection = "books"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Repository is the authoritative book catalog on top of a DocumentStore.
type Repository struct {
	docs store.DocumentStore
}

var _ book.Repository = (*Repository)(nil)

// NewRepository creates a catalog repository.
func NewRepository(docs store.DocumentStore) *Repository {
	return &Repository{docs: docs}
}

func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return book.ErrInvalidID
	}
	return nil
}

// translate maps store errors onto the book error vocabulary.
func translate(op, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return book.ErrBookNotFound
	case errors.Is(err, store.ErrDuplicate):
		return book.ErrDuplicateISBN
	case errors.Is(err, store.ErrUnavailable):
		log.Printf("[Catalog] %s %s: %v", op, id, err)
		return err
	}
	return fmt.Errorf("catalog %s %s: %w", op, id, err)
}

func decode(doc []byte) (*book.Book, error) {
	var b book.Book
	if err := json.Unmarshal(doc, &b); err != nil {
		return nil, fmt.Errorf("decode book: %w", err)
	}
	b.Normalize()
	return &b, nil
}

func decodeAll(docs [][]byte) ([]*book.Book, error) {
	books := make([]*book.Book, 0, len(docs))
	for _, doc := range docs {
		b, err := decode(doc)
		if err != nil {
			log.Printf("[Catalog] skipping unreadable record: %v", err)
			continue
		}
		books = append(books, b)
	}
	return books, nil
}

func encode(b *book.Book) ([]byte, error) {
	b.Normalize()
	return json.Marshal(b)
}

// Get returns a book by id.
func (r *Repository) Get(ctx context.Context, id string) (*book.Book, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	doc, err := r.docs.Get(ctx, Collection, id)
	if err != nil {
		return nil, translate("get", id, err)
	}
	return decode(doc)
}

// GetAll returns every book in listing order.
func (r *Repository) GetAll(ctx context.Context) ([]*book.Book, error) {
	return r.find(ctx, store.Query{})
}

// Featured returns the books flagged for the featured shelf.
func (r *Repository) Featured(ctx context.Context) ([]*book.Book, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	featured := make([]*book.Book, 0)
	for _, b := range all {
		if b.Featured {
			featured = append(featured, b)
		}
	}
	return featured, nil
}

// GetByField matches identifiers exactly, categories by membership and free
// text by case-insensitive substring.
func (r *Repository) GetByField(ctx context.Context, field book.Field, value string) ([]*book.Book, error) {
	op, err := opFor(field)
	if err != nil {
		return nil, err
	}
	if field == book.FieldISBN {
		value = book.NormalizeISBN(value)
	}
	books, err := r.find(ctx, store.Query{
		Where: []store.Condition{{Field: string(field), Op: op, Value: value}},
	})
	if err != nil || field != book.FieldCategory {
		return books, err
	}
	// store membership ignores case; categories match exactly
	exact := books[:0]
	for _, b := range books {
		if b.HasCategory(value) {
			exact = append(exact, b)
		}
	}
	return exact, nil
}

func opFor(field book.Field) (store.Op, error) {
	switch field {
	case book.FieldSeller, book.FieldHolder, book.FieldISBN, book.FieldListingType:
		return store.OpEq, nil
	case book.FieldLanguage:
		return store.OpEqFold, nil
	case book.FieldCategory:
		return store.OpHas, nil
	case book.FieldTitle, book.FieldAuthor, book.FieldPublisher, book.FieldDescription:
		return store.OpContainsFold, nil
	}
	return 0, fmt.Errorf("%w: unknown book field %q", domain.ErrInvalidArgument, field)
}

func (r *Repository) find(ctx context.Context, q store.Query) ([]*book.Book, error) {
	docs, err := r.docs.Find(ctx, Collection, q)
	if err != nil {
		return nil, translate("find", "", err)
	}
	return decodeAll(docs)
}

// Insert assigns a new id to b and stores it.
func (r *Repository) Insert(ctx context.Context, b *book.Book) (string, error) {
	b.ID = uuid.New().String()
	doc, err := encode(b)
	if err != nil {
		return "", err
	}
	if err := r.docs.Insert(ctx, Collection, b.ID, doc); err != nil {
		return "", translate("insert", b.ID, err)
	}
	log.Printf("[Catalog] listed %s: %s", b.ID, b.Describe())
	return b.ID, nil
}

// Update replaces the stored book and reports whether it existed.
func (r *Repository) Update(ctx context.Context, b *book.Book) (bool, error) {
	if err := checkID(b.ID); err != nil {
		return false, err
	}
	doc, err := encode(b)
	if err != nil {
		return false, err
	}
	err = r.docs.Update(ctx, Collection, b.ID, func([]byte) ([]byte, error) {
		return doc, nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, translate("update", b.ID, err)
	}
	return true, nil
}

// Upsert stores b whether or not it already exists. The change feed
// projection uses it to mirror books into a secondary store.
func (r *Repository) Upsert(ctx context.Context, b *book.Book) error {
	if err := checkID(b.ID); err != nil {
		return err
	}
	doc, err := encode(b)
	if err != nil {
		return err
	}
	return translate("upsert", b.ID, r.docs.Upsert(ctx, Collection, b.ID, doc))
}

// Modify applies fn to the stored book inside one atomic store update.
func (r *Repository) Modify(ctx context.Context, id string, fn func(b *book.Book) error) (*book.Book, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var result *book.Book
	err := r.docs.Update(ctx, Collection, id, func(current []byte) ([]byte, error) {
		b, err := decode(current)
		if err != nil {
			return nil, err
		}
		if err := fn(b); err != nil {
			return nil, err
		}
		b.ID = id
		result = b
		return encode(b)
	})
	if err != nil {
		return nil, translate("modify", id, err)
	}
	return result, nil
}

// Delete removes a book and reports whether it existed.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	if err := checkID(id); err != nil {
		return false, err
	}
	err := r.docs.Delete(ctx, Collection, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, translate("delete", id, err)
	}
	return true, nil
}
