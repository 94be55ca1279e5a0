package kafka

// Topics for checkout domain events published from the transactional
// outbox. Event types themselves travel as domain.OutboxMessage.EventType
// strings inside the envelope, not as a separate Kafka-level enum.
const (
	TopicOrderEvents     = "checkout.order.events"
	TopicHoldEvents      = "checkout.hold.events"
	TopicDeadLetterQueue = "checkout.dlq"
)

// Kafka headers for the retry/DLQ path; the consumer reads
// HeaderRetryCount to decide when a message goes to the DLQ.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)
