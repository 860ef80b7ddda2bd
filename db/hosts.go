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

// HostStore reads and writes the review part of product and store documents.
type HostStore struct {
	products *mongo.Collection
	stores   *mongo.Collection
}

func NewHostStore(m *Mongo) *HostStore {
	return &HostStore{products: m.ProductsCollection, stores: m.StoresCollection}
}

var hostProjection = bson.M{
	"name": 1, "owner": 1, "createdBy": 1,
	"reviews": 1, "rating": 1, "numReviews": 1, "version": 1,
}

func (s *HostStore) collection(kind models.HostKind) *mongo.Collection {
	if kind == models.StoreHost {
		return s.stores
	}
	return s.products
}

func notFound(kind models.HostKind) error {
	if kind == models.StoreHost {
		return errs.NotFoundf("Store not found")
	}
	return errs.NotFoundf("Product not found")
}

func (s *HostStore) GetHost(ctx context.Context, kind models.HostKind, id string) (*models.Host, error) {
	var h models.Host
	opts := options.FindOne().SetProjection(hostProjection)
	err := s.collection(kind).FindOne(ctx, idFilter(id), opts).Decode(&h)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(kind)
	}
	if err != nil {
		return nil, errs.Wrap(err, "load "+string(kind))
	}
	h.Kind = kind
	return &h, nil
}

func (s *HostStore) ListHosts(ctx context.Context, kind models.HostKind) ([]models.Host, error) {
	opts := options.Find().
		SetProjection(hostProjection).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.collection(kind).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, errs.Wrap(err, "list "+string(kind)+"s")
	}
	defer cursor.Close(ctx)

	hosts := []models.Host{}
	if err := cursor.All(ctx, &hosts); err != nil {
		return nil, errs.Wrap(err, "decode "+string(kind)+"s")
	}
	for i := range hosts {
		hosts[i].Kind = kind
	}
	return hosts, nil
}

// SaveReviews sets the review array and both aggregates in a single document
// update, conditional on the version the caller read.
func (s *HostStore) SaveReviews(ctx context.Context, h *models.Host) error {
	reviews := h.Reviews
	if reviews == nil {
		reviews = []models.Review{}
	}
	update := bson.M{"$set": bson.M{
		"reviews":    reviews,
		"rating":     h.Rating,
		"numReviews": h.NumReviews,
		"version":    h.Version + 1,
	}}
	coll := s.collection(h.Kind)
	res, err := coll.UpdateOne(ctx, versionFilter(h.ID, h.Version), update)
	if err != nil {
		return errs.Wrap(err, "save reviews")
	}
	if res.MatchedCount == 0 {
		n, err := coll.CountDocuments(ctx, idFilter(h.ID), options.Count().SetLimit(1))
		if err != nil {
			return errs.Wrap(err, "check "+string(h.Kind))
		}
		if n == 0 {
			return notFound(h.Kind)
		}
		return errs.ErrStale
	}
	h.Version++
	return nil
}

// Exists lets the order manager check store and product references.
func (s *HostStore) Exists(ctx context.Context, kind models.HostKind, id string) (bool, error) {
	n, err := s.collection(kind).CountDocuments(ctx, idFilter(id), options.Count().SetLimit(1))
	if err != nil {
		return false, errs.Wrap(err, "check "+string(kind))
	}
	return n > 0, nil
}
