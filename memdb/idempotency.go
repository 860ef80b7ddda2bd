package memdb

import (
	"context"
	"sync"
	"time"

	"bazaar/models"
)

type Idempotency struct {
	mu      sync.Mutex
	records map[string]models.IdempotencyRecord
	now     func() time.Time
}

func NewIdempotency() *Idempotency {
	return &Idempotency{records: make(map[string]models.IdempotencyRecord), now: time.Now}
}

func (s *Idempotency) Reserve(ctx context.Context, rec *models.IdempotencyRecord) (*models.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.records[rec.Key]; ok && s.now().Before(cur.ExpiresAt) {
		cur.Body = append([]byte(nil), cur.Body...)
		return &cur, nil
	}
	s.records[rec.Key] = *rec
	return nil, nil
}

func (s *Idempotency) Complete(ctx context.Context, key string, status int, contentType string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[key]
	if !ok {
		return nil
	}
	cur.Status = status
	cur.ContentType = contentType
	cur.Body = append([]byte(nil), body...)
	s.records[key] = cur
	return nil
}

func (s *Idempotency) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
