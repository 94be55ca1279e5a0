// Package reservation implements the Stock Reservation Engine: atomic
// hold creation and release against a product's available stock.
package reservation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/flashsale/checkout/internal/clock"
	"github.com/flashsale/checkout/internal/domain"
	"github.com/flashsale/checkout/internal/metrics"
	"github.com/flashsale/checkout/internal/resilience"
)

// Engine reserves and releases stock holds against the product catalog.
type Engine struct {
	products domain.ProductRepository
	holds    domain.HoldRepository
	cache    domain.StockCache
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	metrics  *metrics.CheckoutMetrics
	clock    clock.Clock
	logger   *log.Entry

	holdTTL         time.Duration
	maxHoldQuantity int32
	cacheTTL        time.Duration
	retryConfig     resilience.RetryConfig
}

// Option configures an Engine at construction time.
type Option func(*Engine)

func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithHoldTTL(d time.Duration) Option {
	return func(e *Engine) { e.holdTTL = d }
}

func WithMaxHoldQuantity(q int32) Option {
	return func(e *Engine) { e.maxHoldQuantity = q }
}

func WithCacheTTL(d time.Duration) Option {
	return func(e *Engine) { e.cacheTTL = d }
}

func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(e *Engine) { e.retryConfig = cfg }
}

func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New builds a Reservation Engine. outbox/timeline may be nil, in which
// case events/audit entries are skipped.
func New(
	products domain.ProductRepository,
	holds domain.HoldRepository,
	cache domain.StockCache,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	opts ...Option,
) *Engine {
	e := &Engine{
		products:        products,
		holds:           holds,
		cache:           cache,
		outbox:          outbox,
		timeline:        timeline,
		clock:           clock.NewSystem(),
		holdTTL:         120 * time.Second,
		maxHoldQuantity: 10,
		cacheTTL:        30 * time.Second,
		retryConfig:     resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.New().WithField("component", "reservation-engine")
	}
	return e
}

// Reserve creates a pending hold for quantity units of productID,
// decrementing available_stock in the same transaction as the hold
// insert. It retries the underlying transaction up to the configured
// deadlock budget; validation and business failures are never retried.
func (e *Engine) Reserve(productID string, quantity int32, sessionID string) (domain.Hold, error) {
	if quantity <= 0 || quantity > e.maxHoldQuantity {
		e.recordFailure("invalid_quantity")
		return domain.Hold{}, domain.ErrInvalidQuantity
	}

	var hold domain.Hold
	err := resilience.WithDeadlockRetry(e.retryConfig, domain.IsRetryable, e.logger, func(attempt int) error {
		h, runErr := e.reserveOnce(productID, quantity, sessionID)
		if runErr == nil {
			hold = h
		}
		return runErr
	})
	if err != nil {
		e.recordFailure(failureReason(err))
		return domain.Hold{}, err
	}

	e.recordHoldCreated()
	e.cache.Invalidate(productID)
	e.publish(domain.EventHoldCreated, hold.ID, productID)

	return hold, nil
}

func (e *Engine) reserveOnce(productID string, quantity int32, sessionID string) (domain.Hold, error) {
	var hold domain.Hold

	err := e.products.WithProductLock(productID, func(p domain.Product, save func(domain.Product) error) error {
		if !p.Active {
			return domain.ErrProductInactive
		}
		if p.AvailableStock < quantity {
			return domain.ErrInsufficientStock
		}

		now := e.clock.Now()
		hold = domain.Hold{
			ID:        uuid.NewString(),
			ProductID: productID,
			Quantity:  quantity,
			Status:    domain.HoldStatusPending,
			ExpiresAt: now.Add(e.holdTTL),
			CreatedAt: now,
			SessionID: sessionID,
		}
		if errs := hold.Validate(); len(errs) > 0 {
			return errs[0]
		}

		p.AvailableStock -= quantity
		if err := save(p); err != nil {
			return err
		}
		return e.holds.Create(hold)
	})

	return hold, err
}

// Release marks a pending hold expired, whether it timed out or is
// released explicitly, and returns its quantity to available_stock.
// Idempotent: releasing an already-terminal hold is a no-op success.
func (e *Engine) Release(holdID string) error {
	err := resilience.WithDeadlockRetry(e.retryConfig, domain.IsRetryable, e.logger, func(attempt int) error {
		return e.releaseOnce(holdID)
	})
	if err != nil {
		return err
	}
	return nil
}

func (e *Engine) releaseOnce(holdID string) error {
	var productID string
	var alreadyTerminal bool

	err := e.holds.WithHoldLock(holdID, func(h domain.Hold, saveHold func(domain.Hold) error) error {
		if h.Status != domain.HoldStatusPending {
			alreadyTerminal = true
			return nil
		}

		productID = h.ProductID
		h.Status = domain.HoldStatusExpired

		return e.products.WithProductLock(h.ProductID, func(p domain.Product, saveProduct func(domain.Product) error) error {
			p.AvailableStock += h.Quantity
			if p.AvailableStock > p.InitialStock {
				return fmt.Errorf("%w: release would exceed initial stock", domain.ErrStockInvariant)
			}
			if err := saveProduct(p); err != nil {
				return err
			}
			return saveHold(h)
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrHoldNotFound) {
			return err
		}
		return err
	}

	if alreadyTerminal {
		return nil
	}

	e.recordHoldReleased("release")
	e.cache.Invalidate(productID)
	e.publish(domain.EventHoldReleased, holdID, productID)
	return nil
}

func (e *Engine) recordHoldCreated() {
	if e.metrics != nil {
		e.metrics.RecordHoldCreated()
	}
}

func (e *Engine) recordHoldReleased(reason string) {
	if e.metrics != nil {
		e.metrics.RecordHoldReleased(reason)
	}
}

func (e *Engine) publish(eventType domain.EventType, holdID, productID string) {
	if e.outbox == nil {
		return
	}
	payload := fmt.Sprintf(`{"hold_id":%q,"product_id":%q}`, holdID, productID)
	if _, err := e.outbox.Enqueue(domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: "hold",
		AggregateID:   holdID,
		EventType:     string(eventType),
		Payload:       []byte(payload),
	}); err != nil {
		e.logger.WithError(err).WithField("hold_id", holdID).Warn("failed to enqueue outbox event")
		return
	}
	if e.metrics != nil {
		e.metrics.RecordOutboxEvent()
	}
}

func (e *Engine) recordFailure(reason string) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordReservationFailure(reason)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrProductInactive):
		return "inactive"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrProductNotFound):
		return "not_found"
	default:
		return "transient"
	}
}
