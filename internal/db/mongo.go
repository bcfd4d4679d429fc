package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/Ratchadaporn07043/astrobot/internal/config"
	"github.com/Ratchadaporn07043/astrobot/internal/models"
)

// Mongo keeps each logical store as its own database.
type Mongo struct {
	client *mongo.Client
	cfg    config.StoreConfig
}

// mongoRecord adds the object id the server assigns.
type mongoRecord struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	models.Record `bson:",inline"`
}

func ConnectMongo(ctx context.Context, cfg *config.StoreConfig) (*Mongo, error) {
	opts := options.Client().
		ApplyURI(cfg.URL).
		SetServerSelectionTimeout(cfg.ConnectTimeout).
		SetConnectTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	return &Mongo{client: client, cfg: *cfg}, nil
}

func (m *Mongo) coll(database, collection string) *mongo.Collection {
	return m.client.Database(database).Collection(collection)
}

func (m *Mongo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("failed to ping mongo: %w", err)
	}
	return nil
}

func (m *Mongo) Clear(ctx context.Context, database, collection string) error {
	if _, err := m.coll(database, collection).DeleteMany(ctx, bson.D{}); err != nil {
		return fmt.Errorf("failed to clear %s.%s: %w", database, collection, err)
	}
	return nil
}

func (m *Mongo) InsertMany(ctx context.Context, database, collection string, records []models.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	docs := make([]interface{}, len(records))
	for i := range records {
		docs[i] = mongoRecord{Record: records[i]}
	}
	res, err := m.coll(database, collection).InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s.%s: %w", database, collection, err)
	}
	return len(res.InsertedIDs), nil
}

// FindAll returns the records in insertion order.
func (m *Mongo) FindAll(ctx context.Context, database, collection string) ([]models.Record, error) {
	cursor, err := m.coll(database, collection).Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s.%s: %w", database, collection, err)
	}
	defer cursor.Close(ctx)

	var docs []mongoRecord
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode %s.%s: %w", database, collection, err)
	}

	out := make([]models.Record, len(docs))
	for i, d := range docs {
		out[i] = d.Record
		out[i].StoreID = d.ID.Hex()
	}
	return out, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
