package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/flashsale/checkout/internal/domain"
)

// orderRepositoryInMemory is a development/test OrderRepository. The
// package mutex stands in for the row lock a real Store takes.
type orderRepositoryInMemory struct {
	mu     sync.Mutex
	items  map[string]domain.Order
	byHold map[string]string // hold_id -> order_id, enforces the 1:1 invariant
}

// NewOrderRepository returns an in-memory OrderRepository for local
// development and tests.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:  make(map[string]domain.Order),
		byHold: make(map[string]string),
	}
}

func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	if _, exists := r.byHold[order.HoldID]; exists {
		return domain.ErrOrderVersionConflict
	}
	r.items[order.ID] = order
	r.byHold[order.HoldID] = order.ID
	return nil
}

func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (r *orderRepositoryInMemory) GetByHoldID(holdID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byHold[holdID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.items[id], nil
}

func (r *orderRepositoryInMemory) WithOrderLock(id string, fn func(o domain.Order, save func(domain.Order) error) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.ErrOrderNotFound
	}

	save := func(next domain.Order) error {
		next.Version = order.Version + 1
		r.items[id] = next
		return nil
	}

	return fn(order, save)
}

func (r *orderRepositoryInMemory) SweepStale(before time.Time, limit int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Order, 0, limit)
	for _, order := range r.items {
		if order.Status != domain.OrderStatusPending {
			continue
		}
		if !order.CreatedAt.Before(before) {
			continue
		}
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
