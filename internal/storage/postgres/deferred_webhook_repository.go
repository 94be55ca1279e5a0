package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flashsale/checkout/internal/domain"
)

type deferredWebhookRepository struct {
	db *sql.DB
}

// NewDeferredWebhookRepository returns a PostgreSQL-backed
// DeferredWebhookRepository.
func NewDeferredWebhookRepository(store *Store) domain.DeferredWebhookRepository {
	return &deferredWebhookRepository{db: store.DB()}
}

func (r *deferredWebhookRepository) Enqueue(w domain.DeferredWebhook) (domain.DeferredWebhook, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.ReceivedAt.IsZero() {
		w.ReceivedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO deferred_webhooks (id, order_id, idempotency_key, payload, received_at)
		VALUES ($1,$2,$3,$4,$5)
	`, w.ID, w.OrderID, w.IdempotencyKey, w.Payload, w.ReceivedAt)
	if err != nil {
		return domain.DeferredWebhook{}, fmt.Errorf("enqueue deferred webhook: %w", err)
	}
	return w, nil
}

func (r *deferredWebhookRepository) ListByOrder(orderID string) ([]domain.DeferredWebhook, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, idempotency_key, payload, received_at
		FROM deferred_webhooks
		WHERE order_id = $1
		ORDER BY received_at ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list deferred webhooks: %w", err)
	}
	defer rows.Close()

	var result []domain.DeferredWebhook
	for rows.Next() {
		var w domain.DeferredWebhook
		if err := rows.Scan(&w.ID, &w.OrderID, &w.IdempotencyKey, &w.Payload, &w.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan deferred webhook: %w", err)
		}
		result = append(result, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deferred webhooks: %w", err)
	}
	return result, nil
}

func (r *deferredWebhookRepository) Delete(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM deferred_webhooks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete deferred webhook: %w", err)
	}
	return nil
}

func (r *deferredWebhookRepository) ListStale(before time.Time, limit int) ([]domain.DeferredWebhook, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, idempotency_key, payload, received_at
		FROM deferred_webhooks
		WHERE received_at <= $1
		ORDER BY received_at ASC
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale deferred webhooks: %w", err)
	}
	defer rows.Close()

	result := make([]domain.DeferredWebhook, 0, limit)
	for rows.Next() {
		var w domain.DeferredWebhook
		if err := rows.Scan(&w.ID, &w.OrderID, &w.IdempotencyKey, &w.Payload, &w.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan stale deferred webhook: %w", err)
		}
		result = append(result, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale deferred webhooks: %w", err)
	}
	return result, nil
}

var _ domain.DeferredWebhookRepository = (*deferredWebhookRepository)(nil)
