package command

import (
	"github.com/example/bookshop/internal/domain/book"
	"github.com/example/bookshop/internal/domain/cart"
)

// Catalog Commands
type ListBook struct {
	SellerID string       `json:"seller_id"`
	Listing  book.Listing `json:"listing"`
}

type EditBook struct {
	BookID   string       `json:"book_id"`
	SellerID string       `json:"seller_id"`
	Listing  book.Listing `json:"listing"`
}

type DeleteBook struct {
	BookID   string `json:"book_id"`
	SellerID string `json:"seller_id"`
}

type FeatureBook struct {
	BookID   string `json:"book_id"`
	SellerID string `json:"seller_id"`
	Featured bool   `json:"featured"`
}

type ReviewBook struct {
	BookID     string  `json:"book_id"`
	ReviewerID string  `json:"reviewer_id"`
	Rating     float64 `json:"rating"`
	Comment    string  `json:"comment"`
}

type ReturnBook struct {
	BookID   string `json:"book_id"`
	HolderID string `json:"holder_id"`
}

// Cart Commands
type AddToCart struct {
	UserID string `json:"user_id"`
	BookID string `json:"book_id"`
}

type SetQuantity struct {
	UserID   string `json:"user_id"`
	BookID   string `json:"book_id"`
	Quantity int    `json:"quantity"`
}

type SetBorrowDays struct {
	UserID string `json:"user_id"`
	BookID string `json:"book_id"`
	Days   int    `json:"days"`
}

type RemoveFromCart struct {
	UserID  string       `json:"user_id"`
	BookID  string       `json:"book_id"`
	Variant cart.Variant `json:"variant"`
}

type ClearCart struct {
	UserID  string       `json:"user_id"`
	Variant cart.Variant `json:"variant"`
}

type ApplyPromo struct {
	UserID  string       `json:"user_id"`
	Variant cart.Variant `json:"variant"`
	Code    string       `json:"code"`
}

// Checkout Commands
type Checkout struct {
	UserID  string       `json:"user_id"`
	Variant cart.Variant `json:"variant"`
}
