// Package lock implements Redlock-style distributed mutual exclusion over a
// quorum of independent backing stores. It serializes per-account balance
// mutations; everything else in the service is built on top of it.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	mrand "math/rand/v2"
	"time"
)

const (
	DefaultTTL         = 30 * time.Second
	DefaultDriftFactor = 0.01
	DefaultRetryDelay  = 200 * time.Millisecond
	DefaultRetryJitter = 200 * time.Millisecond

	// UnboundedRetries makes Acquire retry until the context is done.
	// Callers using it must supply a deadline or cancellation.
	UnboundedRetries = -1

	releaseTimeout = 2 * time.Second
)

var (
	// ErrLockUnavailable means the quorum or TTL validity window could not
	// be satisfied within the configured retries. The caller may re-submit.
	ErrLockUnavailable = errors.New("lock unavailable")

	// ErrLockStoreUnreachable means every backing store failed in a single
	// acquisition round. Retrying locally cannot help.
	ErrLockStoreUnreachable = errors.New("no lock store reachable")
)

type Config struct {
	// DriftFactor is the fraction of the TTL reserved as a safety margin
	// for clock drift between stores.
	DriftFactor float64

	// RetryCount is the number of re-acquisition attempts after the first
	// one fails. UnboundedRetries (-1) retries until ctx is done.
	RetryCount int

	RetryDelay  time.Duration
	RetryJitter time.Duration
}

func (c Config) withDefaults() Config {
	if c.DriftFactor <= 0 {
		c.DriftFactor = DefaultDriftFactor
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.RetryJitter < 0 {
		c.RetryJitter = DefaultRetryJitter
	}
	return c
}

// Client acquires and releases distributed locks. At most one holder exists
// per key at a time, within the bound imposed by clock drift and TTL.
type Client struct {
	stores []Store
	cfg    Config
	logger *slog.Logger
}

func NewClient(stores []Store, cfg Config, logger *slog.Logger) (*Client, error) {
	if len(stores) == 0 {
		return nil, errors.New("lock: at least one backing store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		stores: stores,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}, nil
}

// Lock is a held lock. It must be released exactly once.
type Lock struct {
	Key string

	token    string
	acquired []Store
	client   *Client
}

func (c *Client) quorum() int {
	return len(c.stores)/2 + 1
}

// Acquire obtains the lock for key, retrying with jittered backoff per the
// client config. The returned lock is valid for roughly ttl minus the drift
// margin and acquisition latency.
func (c *Client) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("lock: generating owner token: %w", err)
	}
	drift := time.Duration(float64(ttl) * c.cfg.DriftFactor)

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		var acquired []Store
		storeErrs := 0
		for _, s := range c.stores {
			ok, err := s.TryAcquire(ctx, key, token, ttl)
			if err != nil {
				storeErrs++
				c.logger.Warn("lock store attempt failed",
					slog.String("store", s.Name()),
					slog.String("key", key),
					slog.String("error", err.Error()))
				continue
			}
			if ok {
				acquired = append(acquired, s)
			}
		}

		// The lock only counts if a majority agreed and enough of the TTL
		// remains after subtracting acquisition latency and drift.
		validity := ttl - time.Since(start) - drift
		if len(acquired) >= c.quorum() && validity > 0 {
			return &Lock{Key: key, token: token, acquired: acquired, client: c}, nil
		}

		c.releaseFrom(ctx, acquired, key, token)

		if storeErrs == len(c.stores) {
			return nil, fmt.Errorf("%w: key %q", ErrLockStoreUnreachable, key)
		}
		if c.cfg.RetryCount >= 0 && attempt >= c.cfg.RetryCount {
			return nil, fmt.Errorf("%w: key %q after %d attempts", ErrLockUnavailable, key, attempt+1)
		}
		if err := c.backoff(ctx); err != nil {
			return nil, err
		}
	}
}

// Release frees the lock on every store where it was obtained. Only entries
// still owned by this lock's token are deleted.
func (l *Lock) Release(ctx context.Context) {
	l.client.releaseFrom(ctx, l.acquired, l.Key, l.token)
}

// WithLock runs fn while holding the lock for key and guarantees release on
// every exit path before returning, including error returns and
// cancellation inside fn.
func (c *Client) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	l, err := c.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer l.Release(ctx)
	return fn(ctx)
}

func (c *Client) releaseFrom(ctx context.Context, stores []Store, key, token string) {
	// Release must still run when the caller's ctx is already done.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	for _, s := range stores {
		if err := s.Release(ctx, key, token); err != nil {
			c.logger.Warn("lock release failed",
				slog.String("store", s.Name()),
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}
}

func (c *Client) backoff(ctx context.Context) error {
	delay := c.cfg.RetryDelay
	if c.cfg.RetryJitter > 0 {
		delay += time.Duration(mrand.Int64N(int64(c.cfg.RetryJitter)))
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
