package domain

import "time"

// IdempotencyRepository stores the state of (key, resource_type)
// idempotency slots.
type IdempotencyRepository interface {
	CreateProcessing(key string, resourceType ResourceType, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string, resourceType ResourceType) (IdempotencyRecord, error)
	MarkDone(key string, resourceType ResourceType, responseBody []byte, httpStatus int) error
	MarkFailed(key string, resourceType ResourceType, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// DeferredWebhookRepository stores webhooks that arrived before their
// target order existed.
type DeferredWebhookRepository interface {
	Enqueue(w DeferredWebhook) (DeferredWebhook, error)
	ListByOrder(orderID string) ([]DeferredWebhook, error)
	Delete(id string) error
	// ListStale returns deferred webhooks received before the cutoff;
	// Processor.ReplayStale uses it to replay very old orphans.
	ListStale(before time.Time, limit int) ([]DeferredWebhook, error)
}

// FailedWebhookRepository is the dead-letter table for webhooks that
// exhausted their apply-outcome retry budget.
type FailedWebhookRepository interface {
	Enqueue(w FailedWebhook) error
}

// StockCache is a low-latency, possibly stale read of computed
// available stock. It never participates in the reservation decision —
// the engine always reads current stock under row lock.
type StockCache interface {
	// Get returns the cached stock and true if a fresh entry exists.
	Get(productID string) (stock int32, fresh bool)
	Put(productID string, stock int32, ttl time.Duration)
	Invalidate(productID string)
	// WithSingleflight collapses concurrent misses for the same key so
	// loader runs at most once; other callers await its result.
	WithSingleflight(productID string, loader func() (int32, error)) (int32, error)
}

// OutboxPublisher publishes an outbox event to its transport. Publish
// must be idempotent from the caller's perspective (at-least-once
// delivery is acceptable; consumers dedupe on event id).
type OutboxPublisher interface {
	Publish(event OutboxMessage) error
}

// OutboxRepository persists events for later publication.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository records an audit trail of order lifecycle events,
// independent of the authoritative order row.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// EventType names the domain events published through the outbox.
type EventType string

const (
	EventHoldCreated     EventType = "hold.created"
	EventHoldReleased    EventType = "hold.released"
	EventHoldConsumed    EventType = "hold.consumed"
	EventOrderCreated    EventType = "order.created"
	EventOrderPaid       EventType = "order.paid"
	EventOrderFailed     EventType = "order.failed"
	EventOrderCancelled  EventType = "order.cancelled"
	EventWebhookDeferred EventType = "webhook.deferred"
	EventWebhookReplayed EventType = "webhook.replayed"
)

// OutboxMessage carries one domain event row for eventual delivery.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats summarizes backlog for health/metrics reporting.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
