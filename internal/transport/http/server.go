// Package http wires the checkout service's HTTP surface: product reads,
// hold creation/inspection/release, order creation, and the payment
// webhook endpoint.
package http

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/flashsale/checkout/internal/domain"
	"github.com/flashsale/checkout/internal/service/webhook"
)

// ProductGetter is the subset of domain.ProductRepository the product
// handler needs.
type ProductGetter interface {
	Get(id string) (domain.Product, error)
}

// HoldGetter is the subset of domain.HoldRepository the hold-read handler
// needs.
type HoldGetter interface {
	Get(id string) (domain.Hold, error)
}

// HoldReserver is the subset of *reservation.Engine the hold-create
// handler needs.
type HoldReserver interface {
	Reserve(productID string, quantity int32, sessionID string) (domain.Hold, error)
}

// HoldReleaser is the subset of *reservation.Engine the hold-delete
// handler needs.
type HoldReleaser interface {
	Release(holdID string) error
}

// OrderCreator is the subset of *ordermachine.Machine the order-create
// handler needs.
type OrderCreator interface {
	CreateOrder(holdID, customerEmail string, customerDetails []byte) (domain.Order, error)
}

// WebhookProcessor is the subset of *webhook.Processor the webhook
// handler needs.
type WebhookProcessor interface {
	Process(rawBody []byte, signature, idempotencyKey string) (webhook.Result, error)
}

// Deps bundles every service the HTTP surface depends on.
type Deps struct {
	Products     ProductGetter
	Holds        HoldGetter
	Reserver     HoldReserver
	Releaser     HoldReleaser
	Orders       OrderCreator
	WebhookProc  WebhookProcessor
	Logger       *log.Entry
	SignatureHdr string
}

// NewMux builds the *http.ServeMux wiring every route to its handler,
// using Go 1.22+ method+pattern routing.
func NewMux(deps Deps) *http.ServeMux {
	if deps.Logger == nil {
		deps.Logger = log.NewEntry(log.New())
	}
	if deps.SignatureHdr == "" {
		deps.SignatureHdr = "X-Webhook-Signature"
	}

	mux := http.NewServeMux()
	mux.Handle("GET /products/{id}", handleGetProduct(deps.Products))
	mux.Handle("POST /holds", handleCreateHold(deps.Reserver))
	mux.Handle("GET /holds/{id}", handleGetHold(deps.Holds))
	mux.Handle("DELETE /holds/{id}", handleReleaseHold(deps.Releaser))
	mux.Handle("POST /orders", handleCreateOrder(deps.Orders))
	mux.Handle("POST /payments/webhook", handleWebhook(deps.WebhookProc, deps.SignatureHdr, deps.Logger))
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
