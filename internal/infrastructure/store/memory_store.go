package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process DocumentStore. Documents are copied on the way
// in and out so callers never share bytes with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]record // collection -> id -> record
	seq         int64
	opts        options
}

func NewMemoryStore(opts ...Option) (*MemoryStore, error) {
	o, err := buildOptions("", opts)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{
		collections: make(map[string]map[string]record),
		opts:        o,
	}, nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(r.doc), nil
}

func (s *MemoryStore) Find(ctx context.Context, collection string, q Query) ([][]byte, error) {
	s.mu.RLock()
	records := make([]record, 0, len(s.collections[collection]))
	for _, r := range s.collections[collection] {
		records = append(records, r)
	}
	s.mu.RUnlock()

	return applyQuery(records, q), nil
}

func (s *MemoryStore) Insert(ctx context.Context, collection, id string, doc []byte) error {
	if !validDocument(doc) {
		return ErrInvalidDocument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; ok {
		return ErrDuplicate
	}
	if err := s.checkUnique(collection, id, doc); err != nil {
		return err
	}
	s.put(collection, id, doc, 0)
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, collection, id string, doc []byte) error {
	if !validDocument(doc) {
		return ErrInvalidDocument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUnique(collection, id, doc); err != nil {
		return err
	}
	s.put(collection, id, doc, s.collections[collection][id].seq)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fn func(current []byte) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}

	updated, err := fn(cloneBytes(current.doc))
	if err != nil {
		return err
	}
	if !validDocument(updated) {
		return ErrInvalidDocument
	}
	if err := s.checkUnique(collection, id, updated); err != nil {
		return err
	}
	s.put(collection, id, updated, current.seq)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return ErrNotFound
	}
	delete(s.collections[collection], id)
	return nil
}

// put stores doc keeping seq when non-zero. Caller holds the write lock.
func (s *MemoryStore) put(collection, id string, doc []byte, seq int64) {
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]record)
	}
	if seq == 0 {
		s.seq++
		seq = s.seq
	}
	s.collections[collection][id] = record{id: id, seq: seq, doc: cloneBytes(doc)}
}

// checkUnique scans the collection for index collisions. Caller holds the lock.
func (s *MemoryStore) checkUnique(collection, id string, doc []byte) error {
	for _, idx := range s.opts.indexesFor(collection) {
		key := indexKey(doc, idx)
		if key == "" {
			continue
		}
		for otherID, other := range s.collections[collection] {
			if otherID != id && indexKey(other.doc, idx) == key {
				return ErrDuplicate
			}
		}
	}
	return nil
}
