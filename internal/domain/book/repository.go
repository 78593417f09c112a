package book

import "context"

// Field names a book attribute that GetByField can search.
type Field string

const (
	FieldSeller      Field = "seller_id"
	FieldHolder      Field = "holder_id"
	FieldISBN        Field = "isbn"
	FieldLanguage    Field = "language"
	FieldListingType Field = "listing_type"
	FieldCategory    Field = "categories"
	FieldTitle       Field = "title"
	FieldAuthor      Field = "author"
	FieldPublisher   Field = "publisher"
	FieldDescription Field = "description"
)

// Repository owns the authoritative set of books.
type Repository interface {
	Get(ctx context.Context, id string) (*Book, error)
	GetAll(ctx context.Context) ([]*Book, error)
	// GetByField matches identifiers exactly, categories by membership and
	// free text fields by case-insensitive substring.
	GetByField(ctx context.Context, field Field, value string) ([]*Book, error)
	// Insert assigns and returns the book id.
	Insert(ctx context.Context, b *Book) (string, error)
	// Update replaces the stored book and reports whether it existed.
	Update(ctx context.Context, b *Book) (bool, error)
	// Modify applies fn to the stored book as one atomic step and returns
	// the result.
	Modify(ctx context.Context, id string, fn func(b *Book) error) (*Book, error)
	// Delete reports whether the book existed.
	Delete(ctx context.Context, id string) (bool, error)
}
