package utils

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"bazaar/errs"
)

func RespondWithError(w http.ResponseWriter, code int, msg string) {
	RespondWithJSON(w, code, map[string]string{"error": msg})
}

// Sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// RespondWithAppError maps err onto its taxonomy kind. Persistence failures are
// logged with op and answered with a generic message. A write that kept
// losing version races is answered 503 with Retry-After.
func RespondWithAppError(w http.ResponseWriter, op string, err error) {
	kind := errs.KindOf(err)
	if kind == errs.Persistence {
		log.Printf("%s: %v", op, err)
	}
	status := errs.HTTPStatus(kind)
	if errors.Is(err, errs.ErrStale) {
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	}
	RespondWithJSON(w, status, map[string]string{
		"error": errs.Message(err),
		"kind":  string(kind),
	})
}

type M map[string]any
