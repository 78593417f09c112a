package api

import (
	"log"
	"net/http"

	"github.com/example/bookshop/internal/query"
)

// CategoryHandlers serves the labels the catalog views browse by
type CategoryHandlers struct {
	queryHandler *query.Handler
}

// NewCategoryHandlers creates a new CategoryHandlers instance
func NewCategoryHandlers(queryHandler *query.Handler) *CategoryHandlers {
	return &CategoryHandlers{queryHandler: queryHandler}
}

// ListCategories returns every category label with its book count
func (h *CategoryHandlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.queryHandler.Categories(r.Context())
	if err != nil {
		log.Printf("[API] Error getting categories: %v", err)
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

// ListPublishers returns every publisher with its book count
func (h *CategoryHandlers) ListPublishers(w http.ResponseWriter, r *http.Request) {
	publishers, err := h.queryHandler.Publishers(r.Context())
	if err != nil {
		log.Printf("[API] Error getting publishers: %v", err)
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, publishers)
}
