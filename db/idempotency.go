package db

import (
	"context"
	"errors"
	"time"

	"bazaar/errs"
	"bazaar/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type IdempotencyStore struct {
	coll *mongo.Collection
}

func NewIdempotencyStore(m *Mongo) *IdempotencyStore {
	return &IdempotencyStore{coll: m.IdempotencyCollection}
}

// Reserve relies on the unique index on key. The TTL monitor only runs once a
// minute, so an expired record that is still present is replaced.
func (s *IdempotencyStore) Reserve(ctx context.Context, rec *models.IdempotencyRecord) (*models.IdempotencyRecord, error) {
	for attempt := 0; attempt < 2; attempt++ {
		_, err := s.coll.InsertOne(ctx, rec)
		if err == nil {
			return nil, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, errs.Wrap(err, "reserve idempotency key")
		}

		var existing models.IdempotencyRecord
		err = s.coll.FindOne(ctx, bson.M{"key": rec.Key}).Decode(&existing)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return nil, errs.Wrap(err, "load idempotency key")
		}
		if time.Now().Before(existing.ExpiresAt) {
			return &existing, nil
		}
		if _, err := s.coll.DeleteOne(ctx, bson.M{"key": rec.Key, "expires_at": existing.ExpiresAt}); err != nil {
			return nil, errs.Wrap(err, "expire idempotency key")
		}
	}
	return nil, errs.Conflictf("idempotency key %s is contended", rec.Key)
}

func (s *IdempotencyStore) Complete(ctx context.Context, key string, status int, contentType string, body []byte) error {
	_, err := s.coll.UpdateOne(ctx, bson.M{"key": key}, bson.M{"$set": bson.M{
		"status":       status,
		"content_type": contentType,
		"body":         body,
	}})
	return errs.Wrap(err, "complete idempotency key")
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"key": key})
	return errs.Wrap(err, "release idempotency key")
}
