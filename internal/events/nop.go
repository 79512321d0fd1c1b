// Package events holds publisher implementations that are not tied to a
// specific broker.
package events

import (
	"context"

	"github.com/DmitryOnishchenko/accounting-notebook/internal/interfaces"
)

// NopPublisher discards events. Used when no broker is configured and in
// tests.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, key string, event any) error {
	return nil
}

var _ interfaces.EventPublisher = NopPublisher{}
