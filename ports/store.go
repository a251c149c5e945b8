package ports

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Store.Get for absent or expired keys.
var ErrKeyNotFound = errors.New("key not found")

// Store is the key-value persistence abstraction all services depend on.
// Implementations guarantee atomic single-key operations but no cross-key
// transactions. Expiry may additionally be enforced by the backend; callers
// still re-check record timestamps at read time.
type Store interface {
	// Get retrieves the value for a key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Put stores a value under a key. A zero ttl means no expiry.
	Put(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
