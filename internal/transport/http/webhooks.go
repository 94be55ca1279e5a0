package http

import (
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
)

func handleWebhook(processor WebhookProcessor, signatureHeader string, logger *log.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		signature := r.Header.Get(signatureHeader)
		idempotencyKey := r.Header.Get("Idempotency-Key")

		result, err := processor.Process(body, signature, idempotencyKey)
		if err != nil {
			// Process returns a non-nil error alongside the correct Result.Status
			// for every documented 4xx path (bad signature, validation failure,
			// idempotency conflict/hash-mismatch); only a zero status means the
			// failure was never classified and is a genuine internal error.
			if result.Status == 0 {
				logger.WithError(err).Error("webhook processing failed")
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			logger.WithError(err).WithField("status", result.Status).Warn("webhook rejected")
			http.Error(w, err.Error(), result.Status)
			return
		}

		writeJSON(w, result.Status, result.Body)
	}
}
