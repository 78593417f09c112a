package store

import (
	"errors"
	"fmt"

	"github.com/example/bookshop/internal/domain"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrDuplicate       = errors.New("duplicate document")
	ErrInvalidDocument = errors.New("document is not a JSON object")

	// ErrUnavailable is returned when the backing engine cannot be reached or
	// fails unexpectedly. It matches domain.ErrStorageUnavailable.
	ErrUnavailable = fmt.Errorf("%w: document store", domain.ErrStorageUnavailable)

	// ErrContention is returned when an optimistic update keeps losing races.
	ErrContention = fmt.Errorf("%w: document changed concurrently", domain.ErrConflict)
)

func unavailable(err error) error {
	return errors.Join(ErrUnavailable, err)
}
