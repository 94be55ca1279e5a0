package domain

import "time"

// OrderStatus is the monotonic lifecycle for checkout orders: pending
// is the only non-terminal state, every other state is absorbing.
type OrderStatus string

const (
	// OrderStatusPending — the order was created from a consumed hold;
	// settlement has not yet been applied.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid — the Webhook Processor applied a success outcome.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusFailed — the Webhook Processor applied a failed outcome.
	OrderStatusFailed OrderStatus = "failed"
	// OrderStatusCancelled — the order was explicitly cancelled, or swept
	// by the payment-window sweep for orders that never settled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether s absorbs all further transitions.
func (s OrderStatus) IsTerminal() bool {
	return s != OrderStatusPending
}

// CanTransitionTo reports whether the monotonic transition matrix
// allows moving from s to next. Any disallowed transition must be
// treated by the caller as a no-op returning the current state, never an
// error that corrupts the row.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s != OrderStatusPending {
		return false
	}
	switch next {
	case OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Order is created from exactly one consumed Hold; quantity and unit
// price are value-snapshots taken at hold-consumption time, not live
// links back to the product row.
type Order struct {
	ID               string
	ProductID        string
	HoldID           string
	CustomerEmail    string
	CustomerDetails  []byte
	Quantity         int32
	UnitPriceMinor   int64
	Currency         string
	TotalAmountMinor int64
	Status           OrderStatus
	PaymentReference string
	PaidAt           *time.Time
	CancelledAt      *time.Time
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ValidateInvariants checks the fields the Order State Machine must have
// filled in at create_order time.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.ProductID == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if o.HoldID == "" {
		errs = append(errs, ErrHoldNotFound)
	}
	if o.Quantity <= 0 {
		errs = append(errs, ErrInvalidQuantity)
	}
	if o.UnitPriceMinor < 0 {
		errs = append(errs, ErrUnitPriceInvalid)
	}
	if calc := int64(o.Quantity) * o.UnitPriceMinor; calc != o.TotalAmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
