package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flashsale/checkout/internal/domain"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository returns a PostgreSQL-backed ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

const productSelectColumns = `
	SELECT id, name, price_minor, currency, initial_stock, available_stock,
	       active, version, created_at, updated_at
`

func (r *productRepository) Get(id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return scanProduct(r.db.QueryRowContext(ctx, productSelectColumns+`
		FROM products
		WHERE id = $1
	`, id))
}

// WithProductLock loads the product row under SELECT ... FOR UPDATE
// inside a transaction, runs fn, and commits iff fn returns nil.
func (r *productRepository) WithProductLock(id string, fn func(p domain.Product, save func(domain.Product) error) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin product lock tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	product, err := scanProduct(tx.QueryRowContext(ctx, productSelectColumns+`
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return err
	}

	save := func(next domain.Product) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET available_stock = $1,
			    active = $2,
			    version = version + 1,
			    updated_at = $3
			WHERE id = $4
			  AND version = $5
		`, next.AvailableStock, next.Active, next.UpdatedAt, id, product.Version)
		if err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("product rows affected: %w", err)
		}
		if affected == 0 {
			return domain.ErrStockInvariant
		}
		return nil
	}

	if err := fn(product, save); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit product lock tx: %w", err)
	}
	committed = true
	return nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.PriceMinor, &p.Currency, &p.InitialStock, &p.AvailableStock,
		&p.Active, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("scan product: %w", err)
	}
	return p, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
