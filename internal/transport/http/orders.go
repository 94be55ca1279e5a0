package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/flashsale/checkout/internal/domain"
)

type createOrderRequest struct {
	HoldID          string          `json:"hold_id"`
	CustomerEmail   string          `json:"customer_email"`
	CustomerDetails json.RawMessage `json:"customer_details"`
}

// validate checks only what spec.md §6 requires: a hold_id. customer_email
// is optional and is passed through to CreateOrder unvalidated.
func (r createOrderRequest) validate() error {
	if r.HoldID == "" {
		return domain.ErrHoldNotFound
	}
	return nil
}

type orderResponse struct {
	OrderID   string    `json:"order_id"`
	ProductID string    `json:"product_id"`
	HoldID    string    `json:"hold_id"`
	Quantity  int32     `json:"quantity"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		OrderID:   o.ID,
		ProductID: o.ProductID,
		HoldID:    o.HoldID,
		Quantity:  o.Quantity,
		Amount:    o.TotalAmountMinor,
		Currency:  o.Currency,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
	}
}

func handleCreateOrder(creator OrderCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := req.validate(); err != nil {
			writeOrderError(w, err)
			return
		}

		order, err := creator.CreateOrder(req.HoldID, req.CustomerEmail, req.CustomerDetails)
		if err != nil {
			writeOrderError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toOrderResponse(order))
	}
}

// writeOrderError maps domain errors to spec.md §6's POST /orders contract:
// 422 for a hold that's missing, expired, or already consumed/terminal, 404
// only for an order lookup that names an id that never existed, 400 for
// malformed pricing the client controls, 409 for an order already resolved
// by a concurrent request.
func writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrHoldNotFound),
		errors.Is(err, domain.ErrHoldAlreadyTerminal),
		errors.Is(err, domain.ErrHoldAlreadyConsumed),
		errors.Is(err, domain.ErrHoldExpired):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrOrderNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrCustomerRequired),
		errors.Is(err, domain.ErrUnitPriceInvalid),
		errors.Is(err, domain.ErrAmountMismatch):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrOrderAlreadyTerminal):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
