package domain

import (
	"errors"
	"time"
)

// ErrStockInvariant marks a product row observed with available_stock
// outside [0, initial_stock] — a Store-level bug, never a business error.
var ErrStockInvariant = errors.New("available_stock out of bounds for initial_stock")

// Product is the catalog entity the Reservation Engine reserves stock
// against. InitialStock never changes after creation; AvailableStock is
// the authoritative counter of unreserved units and is mutated only
// under the product row's exclusive lock.
type Product struct {
	ID             string
	Name           string
	PriceMinor     int64
	Currency       string
	InitialStock   int32
	AvailableStock int32
	Active         bool
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ValidateInvariants checks the bounds the Store is expected to enforce
// on every read: 0 <= available_stock <= initial_stock.
func (p *Product) ValidateInvariants() []error {
	var errs []error

	if p.ID == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if p.InitialStock < 0 {
		errs = append(errs, ErrInsufficientStock)
	}
	if p.AvailableStock < 0 || p.AvailableStock > p.InitialStock {
		errs = append(errs, ErrStockInvariant)
	}

	return errs
}
