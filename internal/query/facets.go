package query

import (
	"context"
	"sort"
	"strings"

	"github.com/example/bookshop/internal/domain/book"
	"github.com/example/bookshop/internal/normalize"
)

// Facet is a category or publisher label with the number of books carrying it.
type Facet struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Categories lists the category labels in use, most used first.
func (h *Handler) Categories(ctx context.Context) ([]Facet, error) {
	books, err := h.catalog.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return facets(books, false, func(b *book.Book) []string { return b.Categories }), nil
}

// Publishers lists the publishers in the catalog, most used first.
func (h *Handler) Publishers(ctx context.Context) ([]Facet, error) {
	books, err := h.catalog.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return facets(books, true, func(b *book.Book) []string { return []string{b.Publisher} }), nil
}

// facets counts labels. Categories filter exactly, so they are grouped by
// exact spelling; publishers match case-insensitively and are grouped by
// folded spelling, keeping the first one seen.
func facets(books []*book.Book, fold bool, labels func(*book.Book) []string) []Facet {
	index := make(map[string]int)
	out := make([]Facet, 0)
	for _, b := range books {
		seen := make(map[string]bool)
		for _, label := range labels(b) {
			label = strings.TrimSpace(label)
			key := label
			if fold {
				key = normalize.Fold(label)
			}
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			if i, ok := index[key]; ok {
				out[i].Count++
				continue
			}
			index[key] = len(out)
			out = append(out, Facet{Label: label, Count: 1})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return normalize.Fold(out[i].Label) < normalize.Fold(out[j].Label)
	})
	return out
}
