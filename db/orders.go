package db

import (
	"context"
	"errors"

	"bazaar/errs"
	"bazaar/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type OrderStore struct {
	coll *mongo.Collection
}

func NewOrderStore(m *Mongo) *OrderStore {
	return &OrderStore{coll: m.OrdersCollection}
}

func (s *OrderStore) Insert(ctx context.Context, o *models.Order) error {
	_, err := s.coll.InsertOne(ctx, o)
	if mongo.IsDuplicateKeyError(err) {
		return errs.Conflictf("order %s already exists", o.ID)
	}
	return errs.Wrap(err, "insert order")
}

func (s *OrderStore) Get(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	err := s.coll.FindOne(ctx, idFilter(id)).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.NotFoundf("Order not found")
	}
	if err != nil {
		return nil, errs.Wrap(err, "load order")
	}
	return &o, nil
}

// Update writes the mutable part of an order (status, tracking) guarded by
// its version. Items, total and ownership are never rewritten.
func (s *OrderStore) Update(ctx context.Context, o *models.Order) error {
	set := bson.M{
		"status":    o.Status,
		"updatedAt": o.UpdatedAt,
		"version":   o.Version + 1,
	}
	if o.Tracking != nil {
		set["tracking"] = o.Tracking
	}
	update := bson.M{"$set": set}
	res, err := s.coll.UpdateOne(ctx, versionFilter(o.ID, o.Version), update)
	if err != nil {
		return errs.Wrap(err, "update order")
	}
	if res.MatchedCount == 0 {
		return s.missOrStale(ctx, o.ID)
	}
	o.Version++
	return nil
}

func (s *OrderStore) missOrStale(ctx context.Context, id string) error {
	n, err := s.coll.CountDocuments(ctx, idFilter(id), options.Count().SetLimit(1))
	if err != nil {
		return errs.Wrap(err, "check order")
	}
	if n == 0 {
		return errs.NotFoundf("Order not found")
	}
	return errs.ErrStale
}

func (s *OrderStore) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	return s.find(ctx, bson.M{"user": anyID(userID)})
}

func (s *OrderStore) ListByStore(ctx context.Context, storeID string) ([]models.Order, error) {
	return s.find(ctx, bson.M{"store": anyID(storeID)})
}

func (s *OrderStore) ListAll(ctx context.Context) ([]models.Order, error) {
	return s.find(ctx, bson.M{})
}

func (s *OrderStore) find(ctx context.Context, filter bson.M) ([]models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.Wrap(err, "list orders")
	}
	defer cursor.Close(ctx)

	orders := []models.Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, errs.Wrap(err, "decode orders")
	}
	return orders, nil
}
