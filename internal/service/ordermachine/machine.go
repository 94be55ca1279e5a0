// Package ordermachine implements the Order State Machine: creating
// orders from consumed holds and driving the monotonic pending ->
// paid|failed|cancelled transition.
package ordermachine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/flashsale/checkout/internal/clock"
	"github.com/flashsale/checkout/internal/domain"
	"github.com/flashsale/checkout/internal/metrics"
)

// DeferredReplayer replays any deferred webhooks recorded against an
// order id, in received-at order, once the order has been created.
type DeferredReplayer interface {
	ReplayForOrder(orderID string) error
}

// Machine drives order creation and lifecycle transitions.
type Machine struct {
	orders   domain.OrderRepository
	holds    domain.HoldRepository
	products domain.ProductRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	replayer DeferredReplayer
	metrics  *metrics.CheckoutMetrics
	clock    clock.Clock
	logger   *log.Entry
}

// Option configures a Machine at construction time.
type Option func(*Machine)

func WithLogger(logger *log.Entry) Option { return func(m *Machine) { m.logger = logger } }
func WithClock(c clock.Clock) Option      { return func(m *Machine) { m.clock = c } }
func WithMetrics(mt *metrics.CheckoutMetrics) Option {
	return func(m *Machine) { m.metrics = mt }
}
func WithDeferredReplayer(r DeferredReplayer) Option {
	return func(m *Machine) { m.replayer = r }
}

// New builds an Order State Machine.
func New(
	orders domain.OrderRepository,
	holds domain.HoldRepository,
	products domain.ProductRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	opts ...Option,
) *Machine {
	m := &Machine{
		orders:   orders,
		holds:    holds,
		products: products,
		outbox:   outbox,
		timeline: timeline,
		clock:    clock.NewSystem(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.New().WithField("component", "order-machine")
	}
	return m
}

// CreateOrder consumes holdID and creates a pending Order snapshotting
// quantity and unit price at consumption time.
func (m *Machine) CreateOrder(holdID, customerEmail string, customerDetails []byte) (domain.Order, error) {
	var order domain.Order

	err := m.holds.WithHoldLock(holdID, func(h domain.Hold, saveHold func(domain.Hold) error) error {
		now := m.clock.Now()

		if h.Status == domain.HoldStatusExpired {
			return domain.ErrHoldExpired
		}
		if h.Status == domain.HoldStatusConsumed {
			return domain.ErrHoldAlreadyConsumed
		}
		if !h.ExpiresAt.After(now) {
			return domain.ErrHoldExpired
		}

		product, err := m.products.Get(h.ProductID)
		if err != nil {
			return err
		}

		h.Status = domain.HoldStatusConsumed
		consumedAt := now
		h.ConsumedAt = &consumedAt

		order = domain.Order{
			ID:               uuid.NewString(),
			ProductID:        h.ProductID,
			HoldID:           h.ID,
			CustomerEmail:    customerEmail,
			CustomerDetails:  customerDetails,
			Quantity:         h.Quantity,
			UnitPriceMinor:   product.PriceMinor,
			Currency:         product.Currency,
			TotalAmountMinor: int64(h.Quantity) * product.PriceMinor,
			Status:           domain.OrderStatusPending,
			Version:          1,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return errs[0]
		}

		if err := saveHold(h); err != nil {
			return err
		}
		return m.orders.Create(order)
	})
	if err != nil {
		return domain.Order{}, err
	}

	m.recordOrderCreated()
	m.appendTimeline(order.ID, "order_created", "")
	m.publish(domain.EventOrderCreated, order.ID)
	m.publish(domain.EventHoldConsumed, order.HoldID)

	if m.replayer != nil {
		if err := m.replayer.ReplayForOrder(order.ID); err != nil {
			m.logger.WithError(err).WithField("order_id", order.ID).Warn("deferred webhook replay failed")
		}
	}

	return order, nil
}

// ApplyOutcome drives the order's monotonic transition in response to a
// settled payment outcome. A disallowed transition is a no-op: it
// returns the order's current (already-terminal) state, never an error.
func (m *Machine) ApplyOutcome(orderID string, success bool, paymentReference string) (domain.Order, error) {
	var order domain.Order
	var releaseHoldID string

	err := m.orders.WithOrderLock(orderID, func(o domain.Order, save func(domain.Order) error) error {
		now := m.clock.Now()

		if o.Status != domain.OrderStatusPending {
			// Already terminal: no-op. The caller (Webhook Processor)
			// distinguishes "idempotent replay" from "conflicting
			// outcome" by comparing the returned status/reference
			// against what this callback asked for.
			order = o
			return nil
		}

		target := domain.OrderStatusFailed
		if success {
			target = domain.OrderStatusPaid
		}
		if !o.Status.CanTransitionTo(target) {
			order = o
			return nil
		}

		o.Status = target
		o.PaymentReference = paymentReference
		o.UpdatedAt = now
		if success {
			paidAt := now
			o.PaidAt = &paidAt
		} else {
			cancelledAt := now
			o.CancelledAt = &cancelledAt
			releaseHoldID = o.HoldID
		}

		if err := save(o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if order.Status != domain.OrderStatusPending {
		m.recordTransition(string(order.Status))
		m.appendTimeline(order.ID, "order_"+string(order.Status), "")
		m.publish(eventForStatus(order.Status), order.ID)
	}

	if releaseHoldID != "" {
		if err := m.releaseIfStillPending(releaseHoldID); err != nil {
			m.logger.WithError(err).WithField("hold_id", releaseHoldID).Warn("failed to release hold on order failure")
		}
	}

	return order, nil
}

// releaseIfStillPending implements the defensive branch spec.md §4.3
// retains: a failed order's hold should never still be pending (it was
// consumed at CreateOrder time), but the check costs nothing.
func (m *Machine) releaseIfStillPending(holdID string) error {
	return m.holds.WithHoldLock(holdID, func(h domain.Hold, save func(domain.Hold) error) error {
		if h.Status != domain.HoldStatusPending {
			return nil
		}
		h.Status = domain.HoldStatusExpired
		return save(h)
	})
}

// Cancel explicitly cancels a pending order. A terminal order is a
// no-op returning its current state.
func (m *Machine) Cancel(orderID string) (domain.Order, error) {
	var order domain.Order

	err := m.orders.WithOrderLock(orderID, func(o domain.Order, save func(domain.Order) error) error {
		if o.Status != domain.OrderStatusPending {
			order = o
			return nil
		}
		now := m.clock.Now()
		o.Status = domain.OrderStatusCancelled
		o.CancelledAt = &now
		o.UpdatedAt = now
		if err := save(o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if order.Status == domain.OrderStatusCancelled {
		m.recordTransition(string(order.Status))
		m.appendTimeline(order.ID, "order_cancelled", "explicit")
		m.publish(domain.EventOrderCancelled, order.ID)
	}
	return order, nil
}

// SweepStale cancels pending orders older than the payment window, for
// buyers whose payment provider never called back.
func (m *Machine) SweepStale(before time.Time, limit int) (int, error) {
	stale, err := m.orders.SweepStale(before, limit)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, o := range stale {
		if _, err := m.Cancel(o.ID); err != nil {
			m.logger.WithError(err).WithField("order_id", o.ID).Warn("failed to cancel stale order")
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

func eventForStatus(status domain.OrderStatus) domain.EventType {
	switch status {
	case domain.OrderStatusPaid:
		return domain.EventOrderPaid
	case domain.OrderStatusFailed:
		return domain.EventOrderFailed
	case domain.OrderStatusCancelled:
		return domain.EventOrderCancelled
	default:
		return domain.EventOrderCreated
	}
}

func (m *Machine) publish(eventType domain.EventType, orderID string) {
	if m.outbox == nil {
		return
	}
	payload := fmt.Sprintf(`{"order_id":%q}`, orderID)
	if _, err := m.outbox.Enqueue(domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     string(eventType),
		Payload:       []byte(payload),
	}); err != nil {
		m.logger.WithError(err).WithField("order_id", orderID).Warn("failed to enqueue outbox event")
		return
	}
	if m.metrics != nil {
		m.metrics.RecordOutboxEvent()
	}
}

func (m *Machine) appendTimeline(orderID, eventType, reason string) {
	if m.timeline == nil {
		return
	}
	if err := m.timeline.Append(domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: m.clock.Now(),
	}); err != nil {
		m.logger.WithError(err).WithField("order_id", orderID).Warn("failed to append timeline event")
		return
	}
	if m.metrics != nil {
		m.metrics.RecordTimelineEvent()
	}
}

func (m *Machine) recordOrderCreated() {
	if m.metrics != nil {
		m.metrics.RecordOrderCreated()
	}
}

func (m *Machine) recordTransition(status string) {
	if m.metrics != nil {
		m.metrics.RecordOrderTransition(status)
	}
}

// IsNotFound is a small helper HTTP handlers use to decide status codes.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrOrderNotFound) || errors.Is(err, domain.ErrHoldNotFound)
}
