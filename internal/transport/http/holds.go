package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/flashsale/checkout/internal/domain"
)

type createHoldRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	SessionID string `json:"session_id"`
}

type holdResponse struct {
	HoldID           string    `json:"hold_id"`
	ProductID        string    `json:"product_id"`
	Quantity         int32     `json:"quantity"`
	Status           string    `json:"status"`
	ExpiresAt        time.Time `json:"expires_at"`
	ExpiresInSeconds int64     `json:"expires_in_seconds"`
	CreatedAt        time.Time `json:"created_at"`
}

func toHoldResponse(h domain.Hold) holdResponse {
	remaining := int64(time.Until(h.ExpiresAt).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return holdResponse{
		HoldID:           h.ID,
		ProductID:        h.ProductID,
		Quantity:         h.Quantity,
		Status:           string(h.Status),
		ExpiresAt:        h.ExpiresAt,
		ExpiresInSeconds: remaining,
		CreatedAt:        h.CreatedAt,
	}
}

func handleCreateHold(reserver HoldReserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createHoldRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.ProductID == "" {
			http.Error(w, domain.ErrProductIDRequired.Error(), http.StatusBadRequest)
			return
		}

		hold, err := reserver.Reserve(req.ProductID, req.Quantity, req.SessionID)
		if err != nil {
			writeHoldError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toHoldResponse(hold))
	}
}

func handleGetHold(getter HoldGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		hold, err := getter.Get(id)
		if err != nil {
			writeHoldError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toHoldResponse(hold))
	}
}

func handleReleaseHold(releaser HoldReleaser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := releaser.Release(id); err != nil {
			writeHoldError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, releaseResponse{Released: true})
	}
}

type releaseResponse struct {
	Released bool `json:"released"`
}

// writeHoldError maps domain errors to spec.md §6's POST/DELETE /holds
// contract: 404 for a missing resource, 422 for every other
// invalid/insufficient/inactive/already-terminal business rejection.
func writeHoldError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrHoldNotFound), errors.Is(err, domain.ErrProductNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrProductInactive),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrProductIDRequired),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrHoldAlreadyTerminal),
		errors.Is(err, domain.ErrHoldAlreadyConsumed):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
