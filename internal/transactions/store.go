package transactions

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no transaction has the given checkout request id.
	ErrNotFound = errors.New("transaction not found")
	// ErrAlreadyExists is returned by Put when the checkout request id is taken.
	ErrAlreadyExists = errors.New("transaction already exists")
)

// Fields is a partial update keyed by attribute name (see the Attr constants).
type Fields map[string]interface{}

// Store is the persistence capability the relay needs; DynamoStore, MongoStore
// and MemoryStore satisfy it.
type Store interface {
	// Put creates a record. It never overwrites an existing checkout id.
	Put(ctx context.Context, tx *Transaction) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, checkoutRequestID string) (*Transaction, error)
	// UpdateFields merges fields into an existing record (last writer wins per field)
	// and stamps updated_at. Returns ErrNotFound when the record is missing.
	UpdateFields(ctx context.Context, checkoutRequestID string, fields Fields) error
	// List returns records matching f, newest first, at most f.Limit.
	List(ctx context.Context, f Filter) ([]Transaction, error)
}
