package domain

import "errors"

var (
	// Product
	ErrProductNotFound   = errors.New("product not found")
	ErrProductInactive   = errors.New("product is inactive")
	ErrProductIDRequired = errors.New("product_id is required")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be between 1 and max_hold_quantity")

	// Hold
	ErrHoldNotFound        = errors.New("hold not found")
	ErrHoldAlreadyTerminal = errors.New("hold is already consumed or expired")
	ErrHoldExpired         = errors.New("hold has expired")
	ErrHoldAlreadyConsumed = errors.New("hold already consumed")

	// Order
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderVersionConflict = errors.New("order version conflict")
	ErrCustomerRequired     = errors.New("customer_email is required")
	ErrOrderAlreadyTerminal = errors.New("order is already in a terminal state")
	ErrUnitPriceInvalid     = errors.New("unit price must be non-negative")
	ErrAmountMismatch       = errors.New("order total does not match quantity * unit price")

	// Idempotency
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency record not found")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already processing or completed")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with a different payload")
	ErrIdempotencyLockConflict        = errors.New("idempotency key is being processed by a concurrent request")

	// Webhook
	ErrWebhookSignatureInvalid = errors.New("webhook signature invalid")
	ErrWebhookValidationFailed = errors.New("webhook payload failed validation")
	ErrWebhookStatusUnknown    = errors.New("webhook status must be success or failed")

	// Cross-cutting
	ErrDeadlockRetriesExhausted = errors.New("operation failed after the deadlock retry budget was exhausted")
	ErrOutboxPublish            = errors.New("outbox publish failed")
	ErrStoreUnavailable         = errors.New("store is unavailable")
)

// IsVersionConflict reports whether err is (or wraps) an optimistic
// concurrency conflict on the order row.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsIdempotencyConflict reports whether err is a conflict the HTTP
// adapter should surface as 409, as opposed to a not-found or transient
// error.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) ||
		errors.Is(err, ErrIdempotencyHashMismatch) ||
		errors.Is(err, ErrIdempotencyLockConflict)
}

// IsRetryable reports whether the Reservation Engine's deadlock retry
// loop, or the webhook processor's ApplyOutcome retry loop, should
// attempt the operation again. Business and validation
// failures are never retried; only the store's own transient signals are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrOrderVersionConflict)
}
