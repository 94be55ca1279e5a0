package postgres

import (
	"errors"
	"testing"

	"github.com/flashsale/checkout/internal/domain"
)

func TestProductRepository_PostgresGetAndLock(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)

	if _, err := store.DB().Exec(`
		INSERT INTO products (id, name, price_minor, currency, initial_stock, available_stock, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, "widget-1", "Widget", int64(2500), "USD", 10, 10, true); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	product, err := repo.Get("widget-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Name != "Widget" || product.AvailableStock != 10 {
		t.Fatalf("unexpected product: %+v", product)
	}

	err = repo.WithProductLock("widget-1", func(p domain.Product, save func(domain.Product) error) error {
		p.AvailableStock -= 3
		return save(p)
	})
	if err != nil {
		t.Fatalf("with product lock: %v", err)
	}

	updated, err := repo.Get("widget-1")
	if err != nil {
		t.Fatalf("get updated product: %v", err)
	}
	if updated.AvailableStock != 7 {
		t.Fatalf("expected available stock 7, got %d", updated.AvailableStock)
	}
	if updated.Version != product.Version+1 {
		t.Fatalf("expected version bump, got %d", updated.Version)
	}
}

func TestProductRepository_PostgresMissing(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)

	if _, err := repo.Get("missing-product"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	err := repo.WithProductLock("missing-product", func(p domain.Product, save func(domain.Product) error) error {
		return save(p)
	})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound on lock, got %v", err)
	}
}

func TestProductRepository_PostgresStockBoundsConstraintRejectsOverflow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)

	if _, err := store.DB().Exec(`
		INSERT INTO products (id, name, price_minor, currency, initial_stock, available_stock, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, "widget-2", "Widget Two", int64(500), "USD", 5, 5, true); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	err := repo.WithProductLock("widget-2", func(p domain.Product, save func(domain.Product) error) error {
		p.AvailableStock = p.InitialStock + 1
		return save(p)
	})
	if err == nil {
		t.Fatal("expected the database stock-bounds check constraint to reject overflowing available_stock")
	}
}
