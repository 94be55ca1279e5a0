package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/flashsale/checkout/internal/domain"
)

func seedBareProduct(t *testing.T, store *Store, productID string) {
	t.Helper()

	if _, err := store.DB().Exec(`
		INSERT INTO products (id, name, price_minor, currency, initial_stock, available_stock, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, productID, "Seed Product", int64(1000), "USD", 20, 20, true); err != nil {
		t.Fatalf("seed product %s: %v", productID, err)
	}
}

func TestHoldRepository_PostgresCreateGetAndLock(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewHoldRepository(store)

	seedBareProduct(t, store, "hold-product-1")
	now := time.Now().UTC().Round(time.Microsecond)

	hold := domain.Hold{
		ID:        "hold-1",
		ProductID: "hold-product-1",
		Quantity:  2,
		Status:    domain.HoldStatusPending,
		ExpiresAt: now.Add(time.Minute),
		CreatedAt: now,
		SessionID: "session-1",
	}
	if err := repo.Create(hold); err != nil {
		t.Fatalf("create hold: %v", err)
	}

	got, err := repo.Get(hold.ID)
	if err != nil {
		t.Fatalf("get hold: %v", err)
	}
	if got.ProductID != hold.ProductID || got.Quantity != hold.Quantity || got.Status != domain.HoldStatusPending {
		t.Fatalf("unexpected hold: %+v", got)
	}

	consumedAt := now.Add(30 * time.Second)
	err = repo.WithHoldLock(hold.ID, func(h domain.Hold, save func(domain.Hold) error) error {
		h.Status = domain.HoldStatusConsumed
		h.ConsumedAt = &consumedAt
		return save(h)
	})
	if err != nil {
		t.Fatalf("with hold lock: %v", err)
	}

	updated, err := repo.Get(hold.ID)
	if err != nil {
		t.Fatalf("get updated hold: %v", err)
	}
	if updated.Status != domain.HoldStatusConsumed {
		t.Fatalf("expected consumed status, got %s", updated.Status)
	}
	if updated.ConsumedAt == nil || !updated.ConsumedAt.Equal(consumedAt) {
		t.Fatalf("expected consumed_at %s, got %v", consumedAt, updated.ConsumedAt)
	}
}

func TestHoldRepository_PostgresDuplicateIDRejected(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewHoldRepository(store)

	seedBareProduct(t, store, "hold-product-2")
	now := time.Now().UTC().Round(time.Microsecond)
	hold := domain.Hold{
		ID:        "hold-dup",
		ProductID: "hold-product-2",
		Quantity:  1,
		Status:    domain.HoldStatusPending,
		ExpiresAt: now.Add(time.Minute),
		CreatedAt: now,
	}
	if err := repo.Create(hold); err != nil {
		t.Fatalf("create hold: %v", err)
	}
	if err := repo.Create(hold); !errors.Is(err, domain.ErrHoldAlreadyTerminal) {
		t.Fatalf("expected ErrHoldAlreadyTerminal on duplicate id, got %v", err)
	}
}

func TestHoldRepository_PostgresMissing(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewHoldRepository(store)

	if _, err := repo.Get("missing-hold"); !errors.Is(err, domain.ErrHoldNotFound) {
		t.Fatalf("expected ErrHoldNotFound, got %v", err)
	}
}

func TestHoldRepository_PostgresSweepExpired(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewHoldRepository(store)

	seedBareProduct(t, store, "hold-product-sweep")
	now := time.Now().UTC().Round(time.Microsecond)

	expired := domain.Hold{
		ID:        "hold-sweep-expired",
		ProductID: "hold-product-sweep",
		Quantity:  1,
		Status:    domain.HoldStatusPending,
		ExpiresAt: now.Add(-time.Minute),
		CreatedAt: now.Add(-2 * time.Minute),
	}
	live := domain.Hold{
		ID:        "hold-sweep-live",
		ProductID: "hold-product-sweep",
		Quantity:  1,
		Status:    domain.HoldStatusPending,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	if err := repo.Create(expired); err != nil {
		t.Fatalf("create expired hold: %v", err)
	}
	if err := repo.Create(live); err != nil {
		t.Fatalf("create live hold: %v", err)
	}

	swept, err := repo.SweepExpired(now, 0)
	if err != nil {
		t.Fatalf("sweep expired: %v", err)
	}
	if len(swept) != 1 || swept[0].ID != expired.ID {
		t.Fatalf("expected only the expired hold, got %+v", swept)
	}
}
