package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flashsale/checkout/internal/domain"
)

// deferredWebhookRepositoryInMemory is a development/test
// DeferredWebhookRepository.
type deferredWebhookRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.DeferredWebhook
}

// NewDeferredWebhookRepository returns an in-memory
// DeferredWebhookRepository.
func NewDeferredWebhookRepository() domain.DeferredWebhookRepository {
	return &deferredWebhookRepositoryInMemory{items: make(map[string]domain.DeferredWebhook)}
}

func (r *deferredWebhookRepositoryInMemory) Enqueue(w domain.DeferredWebhook) (domain.DeferredWebhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.ReceivedAt.IsZero() {
		w.ReceivedAt = time.Now().UTC()
	}
	r.items[w.ID] = w
	return w, nil
}

func (r *deferredWebhookRepositoryInMemory) ListByOrder(orderID string) ([]domain.DeferredWebhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.DeferredWebhook
	for _, w := range r.items {
		if w.OrderID == orderID {
			result = append(result, w)
		}
	}
	return result, nil
}

func (r *deferredWebhookRepositoryInMemory) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, id)
	return nil
}

func (r *deferredWebhookRepositoryInMemory) ListStale(before time.Time, limit int) ([]domain.DeferredWebhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.DeferredWebhook, 0, limit)
	for _, w := range r.items {
		if !w.ReceivedAt.Before(before) {
			continue
		}
		result = append(result, w)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

var _ domain.DeferredWebhookRepository = (*deferredWebhookRepositoryInMemory)(nil)
