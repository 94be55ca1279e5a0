package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flashsale/checkout/internal/domain"
)

// newTestServer starts an httptest.Server serving mux; the caller closes
// it.
func newTestServer(t *testing.T, mux http.Handler) *httptest.Server {
	t.Helper()
	return httptest.NewServer(mux)
}

// newTestOrder создаёт тестовый заказ для использования в тестах.
func newTestOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:               "test-order-1",
		ProductID:        "test-product-1",
		HoldID:           "test-hold-1",
		CustomerEmail:    "buyer@example.com",
		Status:           domain.OrderStatusPending,
		Quantity:         1,
		UnitPriceMinor:   1000,
		Currency:         "USD",
		TotalAmountMinor: 1000,
		Version:          0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
