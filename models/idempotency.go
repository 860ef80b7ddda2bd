package models

import "time"

// IdempotencyRecord remembers the outcome of a request sent with an
// Idempotency-Key header. Status is 0 while the first request is in flight.
type IdempotencyRecord struct {
	Key         string    `bson:"key"`
	UserID      string    `bson:"user_id"`
	Method      string    `bson:"method"`
	Path        string    `bson:"path"`
	RequestHash string    `bson:"request_hash"`
	Status      int       `bson:"status,omitempty"`
	ContentType string    `bson:"content_type,omitempty"`
	Body        []byte    `bson:"body,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
	ExpiresAt   time.Time `bson:"expires_at"`
}
