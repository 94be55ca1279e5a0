package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/flashsale/checkout/internal/domain"
)

// holdRepositoryInMemory is a development/test HoldRepository.
type holdRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.Hold
}

// NewHoldRepository returns an in-memory HoldRepository.
func NewHoldRepository() domain.HoldRepository {
	return &holdRepositoryInMemory{items: make(map[string]domain.Hold)}
}

func (r *holdRepositoryInMemory) Create(hold domain.Hold) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[hold.ID]; exists {
		return domain.ErrHoldAlreadyTerminal
	}
	r.items[hold.ID] = hold
	return nil
}

func (r *holdRepositoryInMemory) Get(id string) (domain.Hold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.items[id]
	if !ok {
		return domain.Hold{}, domain.ErrHoldNotFound
	}
	return h, nil
}

func (r *holdRepositoryInMemory) WithHoldLock(id string, fn func(h domain.Hold, save func(domain.Hold) error) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.items[id]
	if !ok {
		return domain.ErrHoldNotFound
	}

	save := func(next domain.Hold) error {
		r.items[id] = next
		return nil
	}

	return fn(h, save)
}

func (r *holdRepositoryInMemory) SweepExpired(before time.Time, limit int) ([]domain.Hold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Hold, 0, limit)
	for _, h := range r.items {
		if h.Status != domain.HoldStatusPending {
			continue
		}
		if h.ExpiresAt.After(before) {
			continue
		}
		result = append(result, h)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt.Before(result[j].ExpiresAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ domain.HoldRepository = (*holdRepositoryInMemory)(nil)
