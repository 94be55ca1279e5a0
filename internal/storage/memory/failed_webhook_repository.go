package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/flashsale/checkout/internal/domain"
)

// failedWebhookRepositoryInMemory is a development/test dead-letter
// store for webhooks that exhausted their retry budget.
type failedWebhookRepositoryInMemory struct {
	mu    sync.Mutex
	items []domain.FailedWebhook
}

// NewFailedWebhookRepository returns an in-memory
// FailedWebhookRepository.
func NewFailedWebhookRepository() domain.FailedWebhookRepository {
	return &failedWebhookRepositoryInMemory{}
}

func (r *failedWebhookRepositoryInMemory) Enqueue(w domain.FailedWebhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	r.items = append(r.items, w)
	return nil
}

var _ domain.FailedWebhookRepository = (*failedWebhookRepositoryInMemory)(nil)
