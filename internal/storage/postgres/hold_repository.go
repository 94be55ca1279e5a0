package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flashsale/checkout/internal/domain"
)

type holdRepository struct {
	db *sql.DB
}

// NewHoldRepository returns a PostgreSQL-backed HoldRepository.
func NewHoldRepository(store *Store) domain.HoldRepository {
	return &holdRepository{db: store.DB()}
}

const holdSelectColumns = `
	SELECT id, product_id, quantity, status, expires_at, created_at, consumed_at, session_id
`

func (r *holdRepository) Create(hold domain.Hold) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO holds (
			id, product_id, quantity, status, expires_at, created_at, consumed_at, session_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, hold.ID, hold.ProductID, hold.Quantity, string(hold.Status), hold.ExpiresAt,
		hold.CreatedAt, hold.ConsumedAt, hold.SessionID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrHoldAlreadyTerminal
		}
		return fmt.Errorf("insert hold: %w", err)
	}
	return nil
}

func (r *holdRepository) Get(id string) (domain.Hold, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return scanHold(r.db.QueryRowContext(ctx, holdSelectColumns+`
		FROM holds
		WHERE id = $1
	`, id))
}

// WithHoldLock loads the hold under SELECT ... FOR UPDATE inside a
// transaction, runs fn, and commits iff fn returns nil.
func (r *holdRepository) WithHoldLock(id string, fn func(h domain.Hold, save func(domain.Hold) error) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin hold lock tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	hold, err := scanHold(tx.QueryRowContext(ctx, holdSelectColumns+`
		FROM holds
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return err
	}

	save := func(next domain.Hold) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE holds
			SET status = $1,
			    consumed_at = $2
			WHERE id = $3
		`, string(next.Status), next.ConsumedAt, id)
		if err != nil {
			return fmt.Errorf("update hold: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("hold rows affected: %w", err)
		}
		if affected == 0 {
			return domain.ErrHoldNotFound
		}
		return nil
	}

	if err := fn(hold, save); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit hold lock tx: %w", err)
	}
	committed = true
	return nil
}

func (r *holdRepository) SweepExpired(before time.Time, limit int) ([]domain.Hold, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, holdSelectColumns+`
		FROM holds
		WHERE status = $1 AND expires_at <= $2
		ORDER BY expires_at ASC
		LIMIT $3
	`, string(domain.HoldStatusPending), before, limit)
	if err != nil {
		return nil, fmt.Errorf("sweep expired holds: %w", err)
	}
	defer rows.Close()

	holds := make([]domain.Hold, 0, limit)
	for rows.Next() {
		h, err := scanHoldRow(rows)
		if err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired holds: %w", err)
	}

	return holds, nil
}

func scanHold(row rowScanner) (domain.Hold, error) {
	h, err := scanHoldRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Hold{}, domain.ErrHoldNotFound
		}
		return domain.Hold{}, err
	}
	return h, nil
}

func scanHoldRow(row rowScanner) (domain.Hold, error) {
	var (
		h      domain.Hold
		status string
	)
	err := row.Scan(&h.ID, &h.ProductID, &h.Quantity, &status, &h.ExpiresAt,
		&h.CreatedAt, &h.ConsumedAt, &h.SessionID)
	if err != nil {
		return domain.Hold{}, fmt.Errorf("scan hold: %w", err)
	}
	h.Status = domain.HoldStatus(status)
	return h, nil
}

var _ domain.HoldRepository = (*holdRepository)(nil)
