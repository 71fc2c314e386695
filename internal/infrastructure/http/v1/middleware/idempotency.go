package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"routeledger/internal/core/apperror"
	appctx "routeledger/internal/core/context"
	"routeledger/internal/infrastructure/idempotency"
	"routeledger/pkg/logger"
)

const (
	HeaderIdempotencyKey    = "X-Idempotency-Key"
	maxIdempotencyBodyBytes = 1 << 20
)

// Idempotency replays the first successful response to a POST carrying an
// X-Idempotency-Key. Failed attempts release the key so the client can retry.
func Idempotency(store idempotency.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1))
		if err != nil {
			_ = c.Error(apperror.NewValidation("unreadable request body"))
			c.Abort()
			return
		}
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		h := sha256.New()
		h.Write([]byte(appctx.GetSubject(ctx) + "\n" + c.Request.Method + " " + c.Request.URL.Path + "\n"))
		h.Write(body)
		fingerprint := hex.EncodeToString(h.Sum(nil))

		replay, err := store.Acquire(ctx, key, fingerprint)
		if err != nil {
			if _, ok := apperror.AsAppError(err); !ok {
				err = apperror.NewInternal(err).WithDetail("component", "idempotency")
			}
			_ = c.Error(err)
			c.Abort()
			return
		}
		if replay != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		rec := &recorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := c.Writer.Status()
		if len(c.Errors) > 0 || status >= http.StatusBadRequest {
			if err := store.Release(ctx, key); err != nil {
				logger.Warn(ctx, "idempotency release failed", "key", key, "error", err)
			}
			return
		}
		err = store.Complete(ctx, key, idempotency.Replay{
			StatusCode:  status,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
		if err != nil {
			logger.Warn(ctx, "idempotency complete failed", "key", key, "error", err)
		}
	}
}

// recorder tees the response body.
type recorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *recorder) WriteString(s string) (int, error) {
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}
