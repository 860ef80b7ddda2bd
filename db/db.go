package db

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo holds the client and the collections this service touches.
type Mongo struct {
	Client             *mongo.Client
	OrdersCollection   *mongo.Collection
	ProductsCollection *mongo.Collection
	StoresCollection   *mongo.Collection

	IdempotencyCollection *mongo.Collection
}

// Connect dials MongoDB with the decimal-aware registry and verifies the
// connection with a ping.
func Connect(ctx context.Context, uri, database string) (*Mongo, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetRegistry(NewRegistry()).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	dbase := client.Database(database)
	m := &Mongo{
		Client:             client,
		OrdersCollection:   dbase.Collection("orders"),
		ProductsCollection: dbase.Collection("products"),
		StoresCollection:   dbase.Collection("stores"),

		IdempotencyCollection: dbase.Collection("idempotency"),
	}
	log.Printf("Connected to MongoDB database %q", database)
	return m, nil
}

// CreateIndexes backs the order listings by user and by store, and gives
// idempotency keys a unique index plus a TTL.
func (m *Mongo) CreateIndexes(ctx context.Context) error {
	_, err := m.OrdersCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "store", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = m.IdempotencyCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.M{"key": 1},
			Options: options.Index().SetUnique(true).SetName("unique_key"),
		},
		{
			Keys:    bson.M{"expires_at": 1},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("ttl_expires_at"),
		},
	})
	return err
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
