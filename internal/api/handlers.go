package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/bookshop/internal/api/middleware"
	"github.com/example/bookshop/internal/auth"
	"github.com/example/bookshop/internal/command"
	"github.com/example/bookshop/internal/domain"
	"github.com/example/bookshop/internal/domain/book"
	"github.com/example/bookshop/internal/domain/cart"
	"github.com/example/bookshop/internal/domain/user"
	"github.com/example/bookshop/internal/query"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	bookService  *book.Service
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler, bookService *book.Service) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		bookService:  bookService,
	}
}

// Book Handlers

// paramsFromQuery maps the query string of GET /books onto query.Params.
// Bounds stay raw; the query engine ignores the ones it cannot parse.
func paramsFromQuery(r *http.Request) query.Params {
	q := r.URL.Query()
	p := query.Params{
		SearchTerm:   q.Get("q"),
		Author:       q.Get("author"),
		Publisher:    q.Get("publisher"),
		Language:     q.Get("language"),
		Category:     q.Get("category"),
		MinPrice:     q.Get("min_price"),
		MaxPrice:     q.Get("max_price"),
		MinRating:    q.Get("min_rating"),
		FromDate:     q.Get("from"),
		ToDate:       q.Get("to"),
		Availability: query.ParseAvailability(q.Get("availability")),
		DiscountOnly: q.Get("discount") == "true",
		SortBy:       query.ParseSortKey(q.Get("sort")),
	}
	switch strings.ToLower(q.Get("order")) {
	case "asc":
		asc := true
		p.Ascending = &asc
	case "desc":
		asc := false
		p.Ascending = &asc
	}
	p.Page, _ = strconv.Atoi(q.Get("page"))
	p.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	p.PageSize = min(p.PageSize, query.MaxPageSize)
	return p
}

func (h *Handlers) SearchBooks(w http.ResponseWriter, r *http.Request) {
	page, err := h.queryHandler.Query(r.Context(), paramsFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *Handlers) FeaturedBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.queryHandler.Featured(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, books)
}

func (h *Handlers) GetBook(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/books/")
	b, err := h.bookService.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

func (h *Handlers) MyBooks(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	listed, err := h.bookService.ListBySeller(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	borrowed, err := h.bookService.ListHeldBy(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]*book.Book{
		"listed":   listed,
		"borrowed": borrowed,
	})
}

func (h *Handlers) ListBook(w http.ResponseWriter, r *http.Request) {
	var listing book.Listing
	if err := json.NewDecoder(r.Body).Decode(&listing); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	b, err := h.cmdHandler.ListBook(r.Context(), command.ListBook{
		SellerID: middleware.GetUserID(r.Context()),
		Listing:  listing,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, b)
}

func (h *Handlers) EditBook(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/books/")

	var listing book.Listing
	if err := json.NewDecoder(r.Body).Decode(&listing); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	b, err := h.cmdHandler.EditBook(r.Context(), command.EditBook{
		BookID:   id,
		SellerID: middleware.GetUserID(r.Context()),
		Listing:  listing,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

func (h *Handlers) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/books/")

	cmd := command.DeleteBook{BookID: id, SellerID: middleware.GetUserID(r.Context())}
	if err := h.cmdHandler.DeleteBook(r.Context(), cmd); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Book deleted"})
}

func (h *Handlers) ReviewBook(w http.ResponseWriter, r *http.Request) {
	id := bookIDBefore(r.URL.Path, "/reviews")

	var req struct {
		Rating  float64 `json:"rating"`
		Comment string  `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	b, err := h.cmdHandler.ReviewBook(r.Context(), command.ReviewBook{
		BookID:     id,
		ReviewerID: middleware.GetUserID(r.Context()),
		Rating:     req.Rating,
		Comment:    req.Comment,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, b)
}

func (h *Handlers) ReturnBook(w http.ResponseWriter, r *http.Request) {
	id := bookIDBefore(r.URL.Path, "/return")

	b, err := h.cmdHandler.ReturnBook(r.Context(), command.ReturnBook{
		BookID:   id,
		HolderID: middleware.GetUserID(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// Cart Handlers

// CartResponse holds both carts of the caller.
type CartResponse struct {
	Purchase cart.Snapshot `json:"purchase"`
	Borrow   cart.Snapshot `json:"borrow"`
}

func (h *Handlers) carts(userID string) CartResponse {
	return CartResponse{
		Purchase: h.cmdHandler.Cart(userID, cart.Purchase),
		Borrow:   h.cmdHandler.Cart(userID, cart.Borrow),
	}
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.carts(middleware.GetUserID(r.Context())))
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		BookID string `json:"book_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	outcome, err := h.cmdHandler.AddToCart(r.Context(), command.AddToCart{UserID: userID, BookID: req.BookID})
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"outcome": outcome.String(),
		"cart":    h.carts(userID),
	})
}

// UpdateCartItem sets the quantity of a purchase line or the days of a
// borrow line, whichever the body carries.
func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	bookID := extractPathParam(r.URL.Path, "/cart/items/")

	var req struct {
		Quantity *int `json:"quantity"`
		Days     *int `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var err error
	switch {
	case req.Quantity != nil:
		err = h.cmdHandler.SetQuantity(r.Context(), command.SetQuantity{UserID: userID, BookID: bookID, Quantity: *req.Quantity})
	case req.Days != nil:
		err = h.cmdHandler.SetBorrowDays(r.Context(), command.SetBorrowDays{UserID: userID, BookID: bookID, Days: *req.Days})
	default:
		respondJSONError(w, "quantity or days is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.carts(userID))
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	bookID := extractPathParam(r.URL.Path, "/cart/items/")
	variant, ok := variantParam(w, r)
	if !ok {
		return
	}

	cmd := command.RemoveFromCart{UserID: userID, BookID: bookID, Variant: variant}
	if err := h.cmdHandler.RemoveFromCart(r.Context(), cmd); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.carts(userID))
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	variant, ok := variantParam(w, r)
	if !ok {
		return
	}

	if err := h.cmdHandler.ClearCart(r.Context(), command.ClearCart{UserID: userID, Variant: variant}); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.carts(userID))
}

func (h *Handlers) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		Variant cart.Variant `json:"variant"`
		Code    string       `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Variant == "" {
		req.Variant = cart.Purchase
	}
	if !req.Variant.Valid() {
		respondJSONError(w, "variant must be purchase or borrow", http.StatusBadRequest)
		return
	}

	applied, err := h.cmdHandler.ApplyPromo(r.Context(), command.ApplyPromo{UserID: userID, Variant: req.Variant, Code: req.Code})
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"applied": applied,
		"cart":    h.carts(userID),
	})
}

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		Variant cart.Variant `json:"variant"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Variant.Valid() {
		respondJSONError(w, "variant must be purchase or borrow", http.StatusBadRequest)
		return
	}

	receipt, err := h.cmdHandler.Checkout(r.Context(), command.Checkout{UserID: userID, Variant: req.Variant})
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, receipt)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeError maps a domain error onto an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
	case errors.Is(err, command.ErrNotSeller):
		respondJSONError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, user.ErrInvalidCredentials):
		respondJSONError(w, "Invalid username or password", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrPasswordTooShort), errors.Is(err, domain.ErrInvalidArgument):
		respondJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		respondJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrConflict):
		respondJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrStorageUnavailable):
		log.Printf("[API] storage unavailable: %v", err)
		respondJSONError(w, "Storage unavailable", http.StatusServiceUnavailable)
	default:
		log.Printf("[API] unexpected error: %v", err)
		respondJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}

// bookIDBefore extracts {id} from /books/{id}<suffix>.
func bookIDBefore(path, suffix string) string {
	return strings.TrimSuffix(extractPathParam(path, "/books/"), suffix)
}

func variantParam(w http.ResponseWriter, r *http.Request) (cart.Variant, bool) {
	v := cart.Variant(r.URL.Query().Get("variant"))
	if v == "" {
		return cart.Purchase, true
	}
	if !v.Valid() {
		respondJSONError(w, "variant must be purchase or borrow", http.StatusBadRequest)
		return "", false
	}
	return v, true
}
