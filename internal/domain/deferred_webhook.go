package domain

import "time"

// DeferredWebhook is a payment callback received for an order_id that
// did not yet exist. It is consumed (replayed through the Webhook
// Processor and deleted) when the order is later created.
type DeferredWebhook struct {
	ID             string
	OrderID        string
	IdempotencyKey string
	Payload        []byte
	ReceivedAt     time.Time
}

// FailedWebhook is the dead-letter row a webhook lands in once it has
// exhausted its apply-outcome retry budget. It is parked for manual
// inspection and never retried automatically.
type FailedWebhook struct {
	ID             string
	OrderID        string
	IdempotencyKey string
	Payload        []byte
	LastError      string
	Attempts       int
	CreatedAt      time.Time
}
