// Package idempotency replays the stored response of a mutating request when
// a client retries it with the same Idempotency-Key.
package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log"
	"net/http"
	"time"

	"bazaar/models"
	"bazaar/utils"

	"github.com/julienschmidt/httprouter"
)

const Header = "Idempotency-Key"

// Store persists idempotency records.
type Store interface {
	// Reserve inserts rec. If an unexpired record with the same key exists it
	// is returned instead and nothing is written.
	Reserve(ctx context.Context, rec *models.IdempotencyRecord) (*models.IdempotencyRecord, error)
	Complete(ctx context.Context, key string, status int, contentType string, body []byte) error
	Release(ctx context.Context, key string) error
}

func computeRequestHash(r *http.Request, body []byte, userID string) string {
	h := sha256.New()
	h.Write([]byte(r.Method + ":" + r.URL.Path + ":" + userID + ":"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// captureResponseWriter passes writes through while keeping a copy.
type captureResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	buf         bytes.Buffer
	wroteHeader bool
}

func (c *captureResponseWriter) WriteHeader(statusCode int) {
	if !c.wroteHeader {
		c.statusCode = statusCode
		c.wroteHeader = true
		c.ResponseWriter.WriteHeader(statusCode)
	}
}

func (c *captureResponseWriter) Write(b []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}

// Middleware makes next safe to retry. Requests without the header pass
// through. The first request with a key runs and its response is stored for
// ttl; a retry with the same body gets the stored response, a retry with a
// different body or while the first is still running gets 409. Server errors
// are not stored, so the client may retry them. It must run after
// middleware.Authenticate, since keys are scoped per user.
func Middleware(store Store, ttl time.Duration) func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			key := r.Header.Get(Header)
			if key == "" {
				next(w, r, ps)
				return
			}
			userID := utils.GetUserIDFromRequest(r)

			// Limit body size to 1 MB to prevent memory issues
			body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
			if err != nil {
				utils.RespondWithError(w, http.StatusBadRequest, "failed to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			now := time.Now().UTC()
			rec := &models.IdempotencyRecord{
				Key:         userID + ":" + key,
				UserID:      userID,
				Method:      r.Method,
				Path:        r.URL.Path,
				RequestHash: computeRequestHash(r, body, userID),
				CreatedAt:   now,
				ExpiresAt:   now.Add(ttl),
			}

			ctx := r.Context()
			existing, err := store.Reserve(ctx, rec)
			if err != nil {
				log.Printf("idempotency reserve: %v", err)
				utils.RespondWithError(w, http.StatusInternalServerError, "idempotency lookup error")
				return
			}
			if existing != nil {
				replay(w, existing, rec.RequestHash)
				return
			}

			crw := &captureResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next(crw, r, ps)

			// The response is already sent; store it even if the client went away.
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if crw.statusCode >= http.StatusInternalServerError {
				if err := store.Release(saveCtx, rec.Key); err != nil {
					log.Printf("idempotency release %s: %v", key, err)
				}
				return
			}
			if err := store.Complete(saveCtx, rec.Key, crw.statusCode, crw.Header().Get("Content-Type"), crw.buf.Bytes()); err != nil {
				log.Printf("idempotency complete %s: %v", key, err)
			}
		}
	}
}

func replay(w http.ResponseWriter, existing *models.IdempotencyRecord, reqHash string) {
	if existing.RequestHash != reqHash {
		utils.RespondWithError(w, http.StatusConflict, "idempotency-key reused with a different request")
		return
	}
	if existing.Status == 0 {
		utils.RespondWithError(w, http.StatusConflict, "a request with this idempotency-key is still in progress")
		return
	}
	if existing.ContentType != "" {
		w.Header().Set("Content-Type", existing.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(existing.Status)
	w.Write(existing.Body)
}
