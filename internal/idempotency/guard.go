// Package idempotency lifts the request/response dedup pattern out of
// the transport layer so both the HTTP webhook handler and the HTTP
// order-creation handler can share it.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flashsale/checkout/internal/domain"
)

// ConflictWindow is the lock age below which a processing record counts
// as a concurrent duplicate in flight. Guard does not consult it: a
// processing record of any age is answered with a 409 conflict, and an
// older lock is never taken over.
const ConflictWindow = 10 * time.Second

// Outcome tells the caller which of the four paths Guard took, so the
// HTTP adapter can choose the right status code.
type Outcome int

const (
	OutcomeExecuted Outcome = iota
	OutcomeReplayed
	OutcomeConflict
	OutcomeHashMismatch
)

// Result is what Guard returns: the body to write back to the client,
// its HTTP status, and which path produced it.
type Result struct {
	Body    []byte
	Status  int
	Outcome Outcome
}

// Guard runs handler at most once for a given (key, resourceType, body)
// triple. Concurrent or repeated calls with the same key replay the
// cached response; the same key with a different body fingerprint is
// rejected.
func Guard(
	repo domain.IdempotencyRepository,
	key string,
	resourceType domain.ResourceType,
	body []byte,
	ttl time.Duration,
	handler func() (respBody []byte, httpStatus int, err error),
) (Result, error) {
	if key == "" {
		return Result{}, domain.ErrIdempotencyKeyRequired
	}

	reqHash := fingerprint(body)
	record, err := repo.CreateProcessing(key, resourceType, reqHash, time.Now().UTC().Add(ttl))
	if err != nil {
		return replay(err, record)
	}

	respBody, status, runErr := handler()
	if runErr != nil {
		_ = repo.MarkFailed(key, resourceType, []byte(runErr.Error()), status)
		return Result{}, runErr
	}

	if markErr := repo.MarkDone(key, resourceType, respBody, status); markErr != nil {
		return Result{}, fmt.Errorf("mark idempotency record done: %w", markErr)
	}

	return Result{Body: respBody, Status: status, Outcome: OutcomeExecuted}, nil
}

func replay(createErr error, record domain.IdempotencyRecord) (Result, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return Result{Outcome: OutcomeHashMismatch}, domain.ErrIdempotencyHashMismatch
	case errors.Is(createErr, domain.ErrIdempotencyLockConflict):
		return Result{Outcome: OutcomeConflict}, domain.ErrIdempotencyLockConflict
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			return Result{
				Body:    record.ResponseBody,
				Status:  record.HTTPStatus,
				Outcome: OutcomeReplayed,
			}, nil
		default:
			// Still processing. Within the conflict window this is a
			// concurrent duplicate in flight; past it we still refuse
			// to take over the slot rather than risk a second handler
			// racing the first to completion.
			return Result{Outcome: OutcomeConflict}, domain.ErrIdempotencyLockConflict
		}
	default:
		return Result{}, createErr
	}
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// MarshalFingerprint is a convenience for callers whose "body" is a
// decoded struct rather than raw bytes (the handler already consumed
// the request body before Guard runs).
func MarshalFingerprint(v any) ([]byte, error) {
	return json.Marshal(v)
}
