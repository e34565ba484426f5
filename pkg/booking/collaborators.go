package booking

import (
	"context"
	"time"
)

// PaymentResult is the payment collaborator's answer to a capture.
type PaymentResult struct {
	Success     bool
	ExternalRef string
}

// PaymentGateway captures and refunds deposits. Refund must be idempotent
// for a given external reference and amount.
type PaymentGateway interface {
	AuthorizeOrCapture(ctx context.Context, amount AmountCents, reference string) (PaymentResult, error)
	Refund(ctx context.Context, externalRef string, amount AmountCents) error
}

// Notifier delivers guest-facing messages. Delivery is fire-and-forget.
type Notifier interface {
	Send(ctx context.Context, kind string, recipient string, payload map[string]string) error
}

// EventPublisher fans domain events out to external consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// CacheBucket groups cached availability snapshots that a mutation invalidates together.
type CacheBucket struct {
	RestaurantID RestaurantID
	ServiceDate  string
}

// AvailabilityCache stores availability snapshots with a TTL.
type AvailabilityCache interface {
	Get(ctx context.Context, key string) (AvailabilitySnapshot, bool, error)
	Set(ctx context.Context, key string, bucket CacheBucket, snapshot AvailabilitySnapshot, ttl time.Duration) error
	InvalidateBucket(ctx context.Context, bucket CacheBucket) error
}

// TaskScheduler runs cancellable delayed tasks keyed by a string. Scheduling
// a key that already has a pending task replaces it.
type TaskScheduler interface {
	Schedule(key string, delay time.Duration, task func())
	Cancel(key string) bool
}

type noopNotifier struct{}

func (noopNotifier) Send(context.Context, string, string, map[string]string) error { return nil }

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) error { return nil }
