// Package webhook implements the Idempotent Webhook Processor:
// signature verification, payload validation, idempotency dedup, order
// lookup with deferral, and outcome application.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/flashsale/checkout/internal/clock"
	"github.com/flashsale/checkout/internal/domain"
	"github.com/flashsale/checkout/internal/idempotency"
	"github.com/flashsale/checkout/internal/metrics"
)

// Payload is the recognized shape of a payment-provider callback body.
type Payload struct {
	OrderID          string          `json:"order_id"`
	Status           string          `json:"status"`
	PaymentReference string          `json:"payment_reference"`
	Amount           int64           `json:"amount"`
	Currency         string          `json:"currency"`
	Timestamp        string          `json:"timestamp"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
}

// Outcome names which of the processor's documented paths was taken.
type Outcome string

const (
	OutcomeAccepted         Outcome = "accepted"
	OutcomeDeduplicated     Outcome = "deduplicated"
	OutcomeDeferred         Outcome = "deferred"
	OutcomeValidationFailed Outcome = "validation_failed"
	OutcomeSignatureInvalid Outcome = "signature_invalid"
	OutcomeConflict         Outcome = "conflict"
)

// Response is the JSON body the HTTP adapter writes back, cached
// verbatim by the idempotency guard for replay.
type Response struct {
	Processed   bool   `json:"processed"`
	OrderID     string `json:"order_id,omitempty"`
	OrderStatus string `json:"order_status,omitempty"`
	Deferred    bool   `json:"deferred,omitempty"`
}

// Result carries the outcome and the HTTP status the adapter should
// use, alongside the (possibly replayed) response body.
type Result struct {
	Outcome Outcome
	Status  int
	Body    Response
}

// OrderApplier is the subset of the Order State Machine the processor
// drives.
type OrderApplier interface {
	ApplyOutcome(orderID string, success bool, paymentReference string) (domain.Order, error)
}

// Processor implements spec.md §4.4.
type Processor struct {
	idempotency domain.IdempotencyRepository
	deferred    domain.DeferredWebhookRepository
	failed      domain.FailedWebhookRepository
	orders      domain.OrderRepository
	machine     OrderApplier
	metrics     *metrics.CheckoutMetrics
	clock       clock.Clock
	logger      *log.Entry

	hmacSecret       string
	requireSignature bool
	idempotencyTTL   time.Duration
	maxApplyAttempts int
}

// Option configures a Processor at construction time.
type Option func(*Processor)

func WithLogger(logger *log.Entry) Option { return func(p *Processor) { p.logger = logger } }
func WithClock(c clock.Clock) Option      { return func(p *Processor) { p.clock = c } }
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(p *Processor) { p.metrics = m }
}
func WithHMACSecret(secret string) Option {
	return func(p *Processor) { p.hmacSecret = secret }
}

// WithSignatureRequired toggles signature verification; production
// deployments require it, test mode skips it (spec.md §4.4 step 1).
func WithSignatureRequired(required bool) Option {
	return func(p *Processor) { p.requireSignature = required }
}
func WithIdempotencyTTL(d time.Duration) Option {
	return func(p *Processor) { p.idempotencyTTL = d }
}
func WithMaxApplyAttempts(n int) Option {
	return func(p *Processor) { p.maxApplyAttempts = n }
}

// New builds a Webhook Processor.
func New(
	idemRepo domain.IdempotencyRepository,
	deferredRepo domain.DeferredWebhookRepository,
	failedRepo domain.FailedWebhookRepository,
	orders domain.OrderRepository,
	machine OrderApplier,
	opts ...Option,
) *Processor {
	p := &Processor{
		idempotency:      idemRepo,
		deferred:         deferredRepo,
		failed:           failedRepo,
		orders:           orders,
		machine:          machine,
		clock:            clock.NewSystem(),
		requireSignature: true,
		idempotencyTTL:   24 * time.Hour,
		maxApplyAttempts: 3,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.New().WithField("component", "webhook-processor")
	}
	return p
}

// SetOrderApplier wires the Order State Machine in after construction,
// breaking the Machine<->Processor construction cycle (the Machine needs
// the Processor as its DeferredReplayer, the Processor needs the Machine
// as its OrderApplier).
func (p *Processor) SetOrderApplier(applier OrderApplier) {
	p.machine = applier
}

// Process runs the full pipeline for one callback delivery: signature
// verify, payload validation, idempotency dedup, order lookup
// (deferring if missing), and outcome application.
func (p *Processor) Process(rawBody []byte, signature, idempotencyKey string) (Result, error) {
	start := p.clock.Now()
	defer func() { p.recordDuration(p.clock.Now().Sub(start)) }()

	if err := p.verifySignature(rawBody, signature); err != nil {
		p.record(OutcomeSignatureInvalid)
		return Result{Outcome: OutcomeSignatureInvalid, Status: 401}, err
	}

	var payload Payload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		p.record(OutcomeValidationFailed)
		return Result{Outcome: OutcomeValidationFailed, Status: 422}, domain.ErrWebhookValidationFailed
	}
	if err := validate(payload); err != nil {
		p.record(OutcomeValidationFailed)
		return Result{Outcome: OutcomeValidationFailed, Status: 422}, err
	}
	if idempotencyKey == "" {
		p.record(OutcomeValidationFailed)
		return Result{Outcome: OutcomeValidationFailed, Status: 422}, domain.ErrIdempotencyKeyRequired
	}

	guardResult, err := idempotency.Guard(
		p.idempotency, idempotencyKey, domain.ResourceTypeWebhook, rawBody, p.idempotencyTTL,
		func() ([]byte, int, error) { return p.apply(payload, idempotencyKey) },
	)
	if err != nil {
		return p.translateGuardError(err)
	}

	switch guardResult.Outcome {
	case idempotency.OutcomeReplayed:
		var resp Response
		_ = json.Unmarshal(guardResult.Body, &resp)
		outcome := OutcomeAccepted
		if resp.Deferred {
			outcome = OutcomeDeferred
		} else {
			outcome = OutcomeDeduplicated
		}
		p.record(outcome)
		return Result{Outcome: outcome, Status: guardResult.Status, Body: resp}, nil
	default:
		var resp Response
		_ = json.Unmarshal(guardResult.Body, &resp)
		outcome := OutcomeAccepted
		if resp.Deferred {
			outcome = OutcomeDeferred
		}
		p.record(outcome)
		return Result{Outcome: outcome, Status: guardResult.Status, Body: resp}, nil
	}
}

func (p *Processor) translateGuardError(err error) (Result, error) {
	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		p.record(OutcomeConflict)
		return Result{Outcome: OutcomeConflict, Status: 409}, err
	case errors.Is(err, domain.ErrIdempotencyLockConflict):
		p.record(OutcomeConflict)
		return Result{Outcome: OutcomeConflict, Status: 409}, err
	default:
		return Result{Status: 500}, err
	}
}

// apply is the idempotency-guarded body: look up the order (deferring
// if missing) and apply the payment outcome.
func (p *Processor) apply(payload Payload, idempotencyKey string) ([]byte, int, error) {
	_, err := p.orders.Get(payload.OrderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return p.deferWebhook(payload, idempotencyKey)
	}
	if err != nil {
		return nil, 500, err
	}

	return p.applyToExistingOrder(payload)
}

func (p *Processor) applyToExistingOrder(payload Payload) ([]byte, int, error) {
	success := payload.Status == "success"

	var order domain.Order
	var applyErr error
	for attempt := 1; attempt <= p.maxApplyAttempts; attempt++ {
		order, applyErr = p.machine.ApplyOutcome(payload.OrderID, success, payload.PaymentReference)
		if applyErr == nil || !domain.IsRetryable(applyErr) {
			break
		}
	}
	if applyErr != nil {
		p.deadLetter(payload, applyErr)
		return nil, 500, applyErr
	}

	body, err := json.Marshal(Response{
		Processed:   true,
		OrderID:     order.ID,
		OrderStatus: string(order.Status),
	})
	if err != nil {
		return nil, 500, fmt.Errorf("marshal webhook response: %w", err)
	}
	return body, 200, nil
}

func (p *Processor) deferWebhook(payload Payload, idempotencyKey string) ([]byte, int, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, 500, fmt.Errorf("marshal deferred payload: %w", err)
	}

	if _, err := p.deferred.Enqueue(domain.DeferredWebhook{
		ID:             uuid.NewString(),
		OrderID:        payload.OrderID,
		IdempotencyKey: idempotencyKey,
		Payload:        raw,
		ReceivedAt:     p.clock.Now(),
	}); err != nil {
		return nil, 500, fmt.Errorf("enqueue deferred webhook: %w", err)
	}

	if p.metrics != nil {
		p.metrics.RecordWebhookDeferred()
	}

	body, err := json.Marshal(Response{Processed: false, OrderID: payload.OrderID, Deferred: true})
	if err != nil {
		return nil, 500, fmt.Errorf("marshal deferred response: %w", err)
	}
	return body, 202, nil
}

func (p *Processor) deadLetter(payload Payload, lastErr error) {
	if p.failed == nil {
		return
	}
	raw, _ := json.Marshal(payload)
	if err := p.failed.Enqueue(domain.FailedWebhook{
		ID:             uuid.NewString(),
		OrderID:        payload.OrderID,
		IdempotencyKey: "",
		Payload:        raw,
		LastError:      lastErr.Error(),
		Attempts:       p.maxApplyAttempts,
		CreatedAt:      p.clock.Now(),
	}); err != nil {
		p.logger.WithError(err).WithField("order_id", payload.OrderID).Warn("failed to park dead-letter webhook")
	}
}

// ReplayForOrder replays, in received_at order, every deferred webhook
// recorded against orderID — called post-commit from order creation
// (synchronously) and from the stale-orphan janitor.
func (p *Processor) ReplayForOrder(orderID string) error {
	pending, err := p.deferred.ListByOrder(orderID)
	if err != nil {
		return err
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ReceivedAt.Before(pending[j].ReceivedAt) })

	for _, dw := range pending {
		if _, err := p.replayDeferred(dw); err != nil {
			p.logger.WithError(err).WithField("order_id", orderID).Warn("deferred webhook replay failed")
			continue
		}
		if err := p.deferred.Delete(dw.ID); err != nil {
			p.logger.WithError(err).WithField("deferred_id", dw.ID).Warn("failed to delete replayed deferred webhook")
		}
		if p.metrics != nil {
			p.metrics.RecordWebhookProcessed(string(OutcomeAccepted))
		}
	}
	return nil
}

// replayDeferred applies a previously-deferred webhook's payload now that
// its order may exist. It must not run through Process's idempotency
// guard under the delivery's original (key, ResourceTypeWebhook) slot:
// that slot was already marked done with the cached "deferred" response
// when the webhook first arrived, so replaying under the same slot would
// return the stale cached body without ever calling ApplyOutcome. Instead
// the replay is guarded under its own (dw.ID, ResourceTypeWebhookReplay)
// slot, so it executes exactly once per deferred row regardless of how
// many times ReplayForOrder/ReplayStale race over it, while still letting
// apply() re-defer (under a fresh row) if the order genuinely still
// doesn't exist.
func (p *Processor) replayDeferred(dw domain.DeferredWebhook) (Result, error) {
	var payload Payload
	if err := json.Unmarshal(dw.Payload, &payload); err != nil {
		return Result{Status: 500}, fmt.Errorf("unmarshal deferred payload: %w", err)
	}

	guardResult, err := idempotency.Guard(
		p.idempotency, dw.ID, domain.ResourceTypeWebhookReplay, dw.Payload, p.idempotencyTTL,
		func() ([]byte, int, error) { return p.apply(payload, dw.IdempotencyKey) },
	)
	if err != nil {
		return p.translateGuardError(err)
	}

	var resp Response
	_ = json.Unmarshal(guardResult.Body, &resp)
	outcome := OutcomeAccepted
	if resp.Deferred {
		outcome = OutcomeDeferred
	}
	p.record(outcome)
	return Result{Outcome: outcome, Status: guardResult.Status, Body: resp}, nil
}

// ReplayStale replays very old orphaned deferred webhooks whose order
// may have been created by a path that didn't trigger the synchronous
// replay (e.g. a crash between hold-consume and fan-out). Nothing in the
// service schedules it; it runs only when a caller invokes it.
func (p *Processor) ReplayStale(before time.Time, limit int) (int, error) {
	stale, err := p.deferred.ListStale(before, limit)
	if err != nil {
		return 0, err
	}

	replayed := 0
	byOrder := map[string][]domain.DeferredWebhook{}
	for _, dw := range stale {
		byOrder[dw.OrderID] = append(byOrder[dw.OrderID], dw)
	}
	for orderID := range byOrder {
		if err := p.ReplayForOrder(orderID); err != nil {
			p.logger.WithError(err).WithField("order_id", orderID).Warn("stale deferred webhook replay failed")
			continue
		}
		replayed += len(byOrder[orderID])
	}
	return replayed, nil
}

func (p *Processor) verifySignature(body []byte, signature string) error {
	if !p.requireSignature {
		return nil
	}
	if p.hmacSecret == "" || signature == "" {
		return domain.ErrWebhookSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(p.hmacSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return domain.ErrWebhookSignatureInvalid
	}
	return nil
}

func validate(p Payload) error {
	if p.OrderID == "" {
		return domain.ErrWebhookValidationFailed
	}
	if p.Status != "success" && p.Status != "failed" {
		return domain.ErrWebhookStatusUnknown
	}
	if p.Timestamp == "" {
		return domain.ErrWebhookValidationFailed
	}
	if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
		return domain.ErrWebhookValidationFailed
	}
	return nil
}

func (p *Processor) record(outcome Outcome) {
	if p.metrics != nil {
		p.metrics.RecordWebhookProcessed(string(outcome))
	}
}

func (p *Processor) recordDuration(d time.Duration) {
	if p.metrics != nil {
		p.metrics.RecordWebhookDuration(d)
	}
}
