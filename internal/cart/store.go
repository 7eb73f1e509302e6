package cart

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidItem = errors.New("invalid item")
	// ErrConflict is returned when a mutation keeps losing to concurrent writers.
	ErrConflict = errors.New("cart modified concurrently")

	// Store-level errors; the engine retries on these.
	ErrVersionConflict = errors.New("cart version conflict")
	ErrAlreadyExists   = errors.New("cart already exists")
)

// Store persists carts keyed by user id.
//
// Save only succeeds when the stored version equals c.Version; on success the
// implementation increments c.Version. Create sets c.Version to 1.
type Store interface {
	FindByUser(ctx context.Context, userID string) (*Cart, error)
	Create(ctx context.Context, c *Cart) error
	Save(ctx context.Context, c *Cart) error
	DeleteByUser(ctx context.Context, userID string) (*Cart, error)
}
