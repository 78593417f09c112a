package book

import "time"

const (
	EventBookListed    = "BookListed"
	EventBookUpdated   = "BookUpdated"
	EventBookDeleted   = "BookDeleted"
	EventReviewAdded   = "ReviewAdded"
	EventBookBorrowed  = "BookBorrowed"
	EventBookReturned  = "BookReturned"
	EventBookPurchased = "BookPurchased"
	EventBookFeatured  = "BookFeatured"
)

// Every event except BookDeleted carries the book as it was after the
// change, so replaying the feed can simply overwrite the record.

type BookListed struct {
	Book     Book      `json:"book"`
	ListedAt time.Time `json:"listed_at"`
}

type BookUpdated struct {
	Book      Book      `json:"book"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BookDeleted struct {
	BookID    string    `json:"book_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

type ReviewAdded struct {
	BookID string `json:"book_id"`
	Review Review `json:"review"`
	Book   Book   `json:"book"`
}

type BookBorrowed struct {
	BookID   string    `json:"book_id"`
	HolderID string    `json:"holder_id"`
	DueDate  time.Time `json:"due_date"`
	Book     Book      `json:"book"`
}

type BookReturned struct {
	BookID     string    `json:"book_id"`
	HolderID   string    `json:"holder_id"`
	ReturnedAt time.Time `json:"returned_at"`
	Book       Book      `json:"book"`
}

type BookPurchased struct {
	BookID   string `json:"book_id"`
	Quantity int    `json:"quantity"`
	Book     Book   `json:"book"`
}

type BookFeatured struct {
	BookID   string `json:"book_id"`
	Featured bool   `json:"featured"`
	Book     Book   `json:"book"`
}

// Snapshot extracts the post-change book from any event payload but BookDeleted.
type Snapshot struct {
	Book *Book `json:"book"`
}
