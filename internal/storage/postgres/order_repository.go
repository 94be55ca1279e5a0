package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/flashsale/checkout/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository returns a PostgreSQL-backed OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (
			id, product_id, hold_id, customer_email, customer_details,
			quantity, unit_price_minor, currency, total_amount_minor,
			status, payment_reference, paid_at, cancelled_at,
			version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`,
		order.ID, order.ProductID, order.HoldID, order.CustomerEmail, order.CustomerDetails,
		order.Quantity, order.UnitPriceMinor, order.Currency, order.TotalAmountMinor,
		string(order.Status), order.PaymentReference, order.PaidAt, order.CancelledAt,
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return scanOrder(r.db.QueryRowContext(ctx, orderSelectColumns+`
		FROM orders
		WHERE id = $1
	`, id))
}

func (r *orderRepository) GetByHoldID(holdID string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return scanOrder(r.db.QueryRowContext(ctx, orderSelectColumns+`
		FROM orders
		WHERE hold_id = $1
	`, holdID))
}

// WithOrderLock loads the order under SELECT ... FOR UPDATE inside a
// transaction, runs fn, and commits iff fn returns nil. An error from fn
// rolls back, leaving the row untouched.
func (r *orderRepository) WithOrderLock(id string, fn func(o domain.Order, save func(domain.Order) error) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin order lock tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	order, err := scanOrder(tx.QueryRowContext(ctx, orderSelectColumns+`
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return err
	}

	save := func(next domain.Order) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $1,
			    payment_reference = $2,
			    paid_at = $3,
			    cancelled_at = $4,
			    version = version + 1,
			    updated_at = $5
			WHERE id = $6
			  AND version = $7
		`,
			string(next.Status), next.PaymentReference, next.PaidAt, next.CancelledAt,
			next.UpdatedAt, id, order.Version,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("order rows affected: %w", err)
		}
		if affected == 0 {
			return domain.ErrOrderVersionConflict
		}
		return nil
	}

	if err := fn(order, save); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order lock tx: %w", err)
	}
	committed = true
	return nil
}

func (r *orderRepository) SweepStale(before time.Time, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, orderSelectColumns+`
		FROM orders
		WHERE status = $1 AND created_at <= $2
		ORDER BY created_at ASC
		LIMIT $3
	`, string(domain.OrderStatusPending), before, limit)
	if err != nil {
		return nil, fmt.Errorf("sweep stale orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale orders: %w", err)
	}

	return orders, nil
}

const orderSelectColumns = `
	SELECT id, product_id, hold_id, customer_email, customer_details,
	       quantity, unit_price_minor, currency, total_amount_minor,
	       status, payment_reference, paid_at, cancelled_at,
	       version, created_at, updated_at
`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	order, err := scanOrderRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}
	return order, nil
}

func scanOrderRow(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	err := row.Scan(
		&order.ID, &order.ProductID, &order.HoldID, &order.CustomerEmail, &order.CustomerDetails,
		&order.Quantity, &order.UnitPriceMinor, &order.Currency, &order.TotalAmountMinor,
		&status, &order.PaymentReference, &order.PaidAt, &order.CancelledAt,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	order.Status = domain.OrderStatus(status)
	return order, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
