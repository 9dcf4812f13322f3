package postgres

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"ncfpos/internal/core/apperror"
)

// IdempotencyStatus is the state of a keyed request.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
	IdempotencyStatusFailed  IdempotencyStatus = "failed"
)

// staleAfter is how long a pending key may sit before another request may
// take it over; the original request most likely crashed.
const staleAfter = time.Minute

// IdempotencyRecord is one row of sys_idempotency.
type IdempotencyRecord struct {
	Key         string            `db:"idempotency_key"`
	StoreID     string            `db:"store_id"`
	UserID      string            `db:"user_id"`
	Operation   string            `db:"operation"`
	Status      IdempotencyStatus `db:"status"`
	RequestHash string            `db:"request_hash"`
	Response    []byte            `db:"response"`
	StatusCode  *int              `db:"response_status"`
	ContentType *string           `db:"response_content_type"`
	Inserted    bool              `db:"inserted"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
}

// IdempotencyReplay is a stored response served again for a retried request.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyRequest identifies a keyed request.
type IdempotencyRequest struct {
	Key         string
	StoreID     string
	UserID      string
	Operation   string
	RequestHash string
}

// IdempotencyStore keeps the responses of keyed write requests, so a terminal
// that resends a sale after losing connectivity receives the invoice number
// it was originally issued instead of a new one.
type IdempotencyStore struct {
	txManager *TxManager
	ttl       time.Duration
}

// NewIdempotencyStore creates a store keeping keys for ttl.
func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{txManager: txManager, ttl: ttl}
}

// AcquireKey claims req.Key.
//
// Returns (nil, nil) when the caller owns the key and must execute the
// request, a replay when the request already finished, or an
// IDEMPOTENCY_CONFLICT error while another request holds it.
func (s *IdempotencyStore) AcquireKey(ctx context.Context, req IdempotencyRequest) (*IdempotencyReplay, error) {
	now := time.Now().UTC()

	var rec IdempotencyRecord
	err := pgxscan.Get(ctx, s.txManager.GetQuerier(ctx), &rec, `
		INSERT INTO sys_idempotency (idempotency_key, store_id, user_id, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8)
		ON CONFLICT (idempotency_key) DO UPDATE SET expires_at = GREATEST(sys_idempotency.expires_at, EXCLUDED.expires_at)
		RETURNING idempotency_key, store_id, user_id, operation, status, request_hash, response,
			response_status, response_content_type, (xmax = 0) AS inserted, created_at, updated_at, expires_at`,
		req.Key, req.StoreID, req.UserID, req.Operation, IdempotencyStatusPending, req.RequestHash, now, now.Add(s.ttl))
	if err != nil {
		return nil, mapError(fmt.Errorf("acquire idempotency key: %w", err))
	}

	if rec.Inserted {
		return nil, nil
	}

	if rec.StoreID != req.StoreID || rec.UserID != req.UserID ||
		rec.Operation != req.Operation || rec.RequestHash != req.RequestHash {
		return nil, apperror.NewIdempotencyMismatch(req.Key).
			WithDetail("stored_operation", rec.Operation).
			WithDetail("request_operation", req.Operation)
	}

	switch rec.Status {
	case IdempotencyStatusSuccess, IdempotencyStatusFailed:
		return rec.replay(), nil
	default:
		if now.Sub(rec.UpdatedAt) <= staleAfter {
			return nil, apperror.NewIdempotencyConflict(req.Key)
		}
		tag, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
			UPDATE sys_idempotency SET updated_at = $1
			WHERE idempotency_key = $2 AND status = $3 AND updated_at = $4`,
			now, req.Key, IdempotencyStatusPending, rec.UpdatedAt)
		if err != nil {
			return nil, mapError(fmt.Errorf("reclaim stale key: %w", err))
		}
		if tag.RowsAffected() == 0 {
			// Somebody else reclaimed it first.
			return nil, apperror.NewIdempotencyConflict(req.Key)
		}
		return nil, nil
	}
}

// CompleteKey stores a successful response for replay.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error {
	return s.finish(ctx, key, IdempotencyStatusSuccess, statusCode, contentType, body)
}

// FailKey stores a final error response for replay.
func (s *IdempotencyStore) FailKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error {
	return s.finish(ctx, key, IdempotencyStatusFailed, statusCode, contentType, body)
}

// ReleaseKey drops a pending key so the client may retry the request.
// Used for transient failures, which must not be replayed.
func (s *IdempotencyStore) ReleaseKey(ctx context.Context, key string) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx,
		`DELETE FROM sys_idempotency WHERE idempotency_key = $1 AND status = $2`,
		key, IdempotencyStatusPending)
	return mapError(err)
}

func (s *IdempotencyStore) finish(ctx context.Context, key string, status IdempotencyStatus, statusCode int, contentType string, body []byte) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1, response = $2, response_status = $3, response_content_type = $4, updated_at = $5
		WHERE idempotency_key = $6`,
		status, body, statusCode, contentType, time.Now().UTC(), key)
	return mapError(err)
}

// CleanupExpired removes expired keys and returns how many were deleted.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := s.txManager.GetQuerier(ctx).Exec(ctx,
		`DELETE FROM sys_idempotency WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

func (r *IdempotencyRecord) replay() *IdempotencyReplay {
	out := &IdempotencyReplay{
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Body:        r.Response,
	}
	if r.StatusCode != nil && *r.StatusCode != 0 {
		out.StatusCode = *r.StatusCode
	}
	if r.ContentType != nil && *r.ContentType != "" {
		out.ContentType = *r.ContentType
	}
	return out
}
