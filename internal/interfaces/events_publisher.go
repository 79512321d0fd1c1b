package interfaces

import "context"

// EventPublisher emits domain events to downstream consumers. The key
// selects the partition so events for one account keep their order.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}
