package memory_test

import (
	"errors"
	"testing"

	"github.com/flashsale/checkout/internal/domain"
	"github.com/flashsale/checkout/internal/storage/memory"
)

func seedProduct() domain.Product {
	return domain.Product{
		ID:             "product-1",
		Name:           "Widget",
		PriceMinor:     1000,
		Currency:       "USD",
		InitialStock:   10,
		AvailableStock: 10,
		Active:         true,
	}
}

func TestProductRepository_Get(t *testing.T) {
	repo := memory.NewProductRepository(seedProduct())

	product, err := repo.Get("product-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if product.Name != "Widget" {
		t.Fatalf("expected name Widget, got %s", product.Name)
	}

	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
}

func TestProductRepository_WithProductLockMutatesStock(t *testing.T) {
	repo := memory.NewProductRepository(seedProduct())

	err := repo.WithProductLock("product-1", func(p domain.Product, save func(domain.Product) error) error {
		p.AvailableStock -= 3
		return save(p)
	})
	if err != nil {
		t.Fatalf("with product lock failed: %v", err)
	}

	updated, err := repo.Get("product-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if updated.AvailableStock != 7 {
		t.Fatalf("expected available stock 7, got %d", updated.AvailableStock)
	}
}

func TestProductRepository_WithProductLockMissingProduct(t *testing.T) {
	repo := memory.NewProductRepository()

	err := repo.WithProductLock("missing", func(p domain.Product, save func(domain.Product) error) error {
		return save(p)
	})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
}

func TestProductRepository_WithProductLockPropagatesCallbackError(t *testing.T) {
	repo := memory.NewProductRepository(seedProduct())
	sentinel := errors.New("callback failure")

	err := repo.WithProductLock("product-1", func(p domain.Product, save func(domain.Product) error) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected callback error to propagate, got %v", err)
	}

	unchanged, err := repo.Get("product-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if unchanged.AvailableStock != 10 {
		t.Fatalf("expected stock unchanged at 10, got %d", unchanged.AvailableStock)
	}
}
