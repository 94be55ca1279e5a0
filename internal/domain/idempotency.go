package domain

import "time"

// IdempotencyStatus is the locked-incomplete -> completed lifecycle of a
// single idempotency slot.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — the slot is locked; a request is in
	// flight. A lock younger than the conflict window is a 409, not a
	// dedup hit.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — the request completed; ResponseBody holds
	// the cached reply for dedup replay.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — the request failed terminally; cached so
	// identical retries see the same failure instead of re-executing.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// ResourceType namespaces idempotency keys: the same key string scoped
// to "payment_webhook" and to "order" are independent slots.
type ResourceType string

const (
	ResourceTypeWebhook ResourceType = "payment_webhook"
	ResourceTypeOrder   ResourceType = "order"
	ResourceTypeHold    ResourceType = "hold"
	// ResourceTypeWebhookReplay namespaces the internal replay of a
	// DeferredWebhook, keyed by the deferred row's own id rather than the
	// original delivery's Idempotency-Key header. It must never share a
	// slot with ResourceTypeWebhook: that slot is already marked done with
	// the cached "deferred" response, so guarding the replay under the
	// same key would return the stale cached body instead of applying the
	// payment outcome.
	ResourceTypeWebhookReplay ResourceType = "payment_webhook_replay"
)

// IdempotencyRecord holds the state of one (key, resource_type) slot.
type IdempotencyRecord struct {
	Key          string
	ResourceType ResourceType
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	LockedAt     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid reports whether s is one of the supported status values.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}
