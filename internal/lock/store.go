package lock

import (
	"context"
	"time"
)

// Store is a single backing lock store. A Client spreads each acquisition
// over several independent Stores and requires a majority to agree.
type Store interface {
	// TryAcquire sets key to token with the given TTL iff key is currently
	// unset. It returns false, nil when another owner holds the key.
	TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// Release deletes key iff it still holds token. Releasing a key that
	// expired and was reclaimed by another owner must be a no-op.
	Release(ctx context.Context, key, token string) error

	Name() string
}
