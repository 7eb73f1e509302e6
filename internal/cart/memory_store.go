package cart

import (
	"context"
	"sync"
)

// MemoryStore keeps carts in process. It enforces the same version rules as
// PostgresStore.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]*Cart
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string]*Cart)}
}

func (s *MemoryStore) FindByUser(_ context.Context, userID string) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, c *Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carts[c.UserID]; ok {
		return ErrAlreadyExists
	}
	c.Version = 1
	s.carts[c.UserID] = c.Clone()
	return nil
}

func (s *MemoryStore) Save(_ context.Context, c *Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A cart deleted since it was read counts as a conflict, like a row the
	// conditional UPDATE no longer matches.
	cur, ok := s.carts[c.UserID]
	if !ok || cur.Version != c.Version {
		return ErrVersionConflict
	}
	c.Version++
	s.carts[c.UserID] = c.Clone()
	return nil
}

func (s *MemoryStore) DeleteByUser(_ context.Context, userID string) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.carts, userID)
	return c, nil
}
