package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"ncfpos/internal/core/apperror"
	appctx "ncfpos/internal/core/context"
	"ncfpos/internal/infrastructure/storage/postgres"
	"ncfpos/pkg/logger"
)

const (
	HeaderIdempotencyKey    = "X-Idempotency-Key"
	HeaderIdempotentReplay  = "X-Idempotent-Replay"
	maxIdempotencyBodyBytes = 1 << 20
	maxIdempotencyKeyLength = 128
)

// IdempotencyStore is the persistence used by Idempotency.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, req postgres.IdempotencyRequest) (*postgres.IdempotencyReplay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	FailKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	ReleaseKey(ctx context.Context, key string) error
}

var _ IdempotencyStore = (*postgres.IdempotencyStore)(nil)

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response when a write request is repeated
// with the same X-Idempotency-Key. A terminal that resends a sale after a
// network drop gets back the invoice number it was issued the first time.
//
// Final outcomes (2xx and client errors) are stored. Transient failures
// release the key so the request can be retried for real. onReplay may be nil.
func Idempotency(store IdempotencyStore, onReplay func()) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut {
			c.Next()
			return
		}
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			abort(c, apperror.NewValidation("idempotency key too long").
				WithDetail("max_length", maxIdempotencyKeyLength))
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1))
		if err != nil {
			abort(c, apperror.NewValidation("cannot read request body"))
			return
		}
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency").
				WithDetail("max_bytes", maxIdempotencyBodyBytes)
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			abort(c, appErr)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		sum := sha256.Sum256(body)

		ctx := c.Request.Context()
		req := postgres.IdempotencyRequest{
			Key:         key,
			StoreID:     appctx.GetStoreID(ctx),
			UserID:      appctx.GetUserID(ctx),
			Operation:   c.Request.Method + " " + c.FullPath(),
			RequestHash: hex.EncodeToString(sum[:]),
		}

		replay, err := store.AcquireKey(ctx, req)
		if err != nil {
			if _, ok := apperror.AsAppError(err); !ok {
				err = apperror.NewInternal(err).WithDetail("component", "idempotency")
			}
			_ = c.Error(err)
			c.Abort()
			return
		}
		if replay != nil {
			if onReplay != nil {
				onReplay()
			}
			c.Header(HeaderIdempotentReplay, "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec

		c.Next()

		// The client may have gone away; the outcome must still be recorded.
		saveCtx := context.WithoutCancel(ctx)

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err
			status, errBody := errorBody(c, err)
			c.AbortWithStatusJSON(status, errBody)

			if retryable(err) {
				if rErr := store.ReleaseKey(saveCtx, key); rErr != nil {
					logger.Warn(ctx, "release idempotency key failed", "key", key, "error", rErr)
				}
				return
			}
			raw, _ := json.Marshal(errBody)
			if fErr := store.FailKey(saveCtx, key, status, "application/json", raw); fErr != nil {
				logger.Warn(ctx, "store idempotent failure failed", "key", key, "error", fErr)
			}
			return
		}

		status := c.Writer.Status()
		contentType := c.Writer.Header().Get("Content-Type")
		var sErr error
		switch {
		case status >= 500:
			sErr = store.ReleaseKey(saveCtx, key)
		case status >= 400:
			sErr = store.FailKey(saveCtx, key, status, contentType, rec.body.Bytes())
		default:
			sErr = store.CompleteKey(saveCtx, key, status, contentType, rec.body.Bytes())
		}
		if sErr != nil {
			logger.Warn(ctx, "store idempotent response failed", "key", key, "error", sErr)
		}
	}
}

// retryable errors must not be replayed: the same request may succeed later.
func retryable(err error) bool {
	status := apperror.GetHTTPStatus(err)
	return status >= 500 ||
		apperror.IsConcurrentModification(err) ||
		hasIdempotencyCode(err)
}

func hasIdempotencyCode(err error) bool {
	appErr, ok := apperror.AsAppError(err)
	return ok && appErr.Code == apperror.CodeIdempotency
}
