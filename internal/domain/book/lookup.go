package book

import (
	"context"
	"errors"
)

// ErrLookupUnavailable is returned by lookups without a backing service.
var ErrLookupUnavailable = errors.New("bibliographic lookup unavailable")

// Metadata is best-effort bibliographic data for an ISBN.
type Metadata struct {
	Title           string
	Author          string
	Publisher       string
	PublicationDate string
	Language        string
	PageCount       int
	Description     string
	Categories      []string
	CoverRef        string
}

// Lookup fetches bibliographic data for an ISBN.
type Lookup interface {
	LookupISBN(ctx context.Context, isbn string) (*Metadata, error)
}

// NopLookup never finds anything.
type NopLookup struct{}

func (NopLookup) LookupISBN(ctx context.Context, isbn string) (*Metadata, error) {
	return nil, ErrLookupUnavailable
}

// enrich fills the empty fields of b from m.
func enrich(b *Book, m *Metadata) {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&b.Title, m.Title)
	fill(&b.Author, m.Author)
	fill(&b.Publisher, m.Publisher)
	fill(&b.PublicationDate, m.PublicationDate)
	fill(&b.Language, m.Language)
	fill(&b.Description, m.Description)
	fill(&b.CoverRef, m.CoverRef)
	if b.PageCount == 0 && m.PageCount > 0 {
		b.PageCount = m.PageCount
	}
	if len(b.Categories) == 0 && len(m.Categories) > 0 {
		n := len(m.Categories)
		if n > MaxCategories {
			n = MaxCategories
		}
		b.Categories = append([]string(nil), m.Categories[:n]...)
	}
}
