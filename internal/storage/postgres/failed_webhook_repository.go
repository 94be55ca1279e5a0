package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flashsale/checkout/internal/domain"
)

type failedWebhookRepository struct {
	db *sql.DB
}

// NewFailedWebhookRepository returns a PostgreSQL-backed dead-letter
// store for webhooks that exhausted their retry budget.
func NewFailedWebhookRepository(store *Store) domain.FailedWebhookRepository {
	return &failedWebhookRepository{db: store.DB()}
}

func (r *failedWebhookRepository) Enqueue(w domain.FailedWebhook) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO failed_webhooks (
			id, order_id, idempotency_key, payload, last_error, attempts, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, w.ID, w.OrderID, w.IdempotencyKey, w.Payload, w.LastError, w.Attempts, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue failed webhook: %w", err)
	}
	return nil
}

var _ domain.FailedWebhookRepository = (*failedWebhookRepository)(nil)
