package http

import (
	"errors"
	"net/http"

	"github.com/flashsale/checkout/internal/domain"
)

type productResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Price          int64  `json:"price"`
	Currency       string `json:"currency"`
	InitialStock   int32  `json:"initial_stock"`
	AvailableStock int32  `json:"available_stock"`
	Active         bool   `json:"active"`
}

func handleGetProduct(products ProductGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" {
			http.Error(w, domain.ErrProductIDRequired.Error(), http.StatusBadRequest)
			return
		}

		product, err := products.Get(id)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, productResponse{
			ID:             product.ID,
			Name:           product.Name,
			Price:          product.PriceMinor,
			Currency:       product.Currency,
			InitialStock:   product.InitialStock,
			AvailableStock: product.AvailableStock,
			Active:         product.Active,
		})
	}
}
