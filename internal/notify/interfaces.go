package notify

import (
	"context"
	"time"
)

// DedupCache stores VisitorKey -> last-notified timestamp with a TTL.
// Expiry is enforced by the implementation.
type DedupCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
}

// Relay delivers a rendered alert to an operator chat.
type Relay interface {
	SendMessage(ctx context.Context, destination, text string) error
}

// Background schedules work that must keep running after the response is sent.
type Background interface {
	Go(name string, fn func(ctx context.Context))
}

// Publisher fans visit events out to downstream consumers (Pub/Sub or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher derives a stable pseudonymous digest from a VisitorKey.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces visit event IDs.
type IDGenerator interface {
	NewID() (string, error)
}
