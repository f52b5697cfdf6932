package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "payment_callbacks"

// DefaultRetention bounds how long journal entries are kept.
const DefaultRetention = 90 * 24 * time.Hour

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(20)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

type MongoJournal struct {
	collection *mongo.Collection
	retention  time.Duration
}

func NewMongoJournal(db *mongo.Database, retention time.Duration) *MongoJournal {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MongoJournal{collection: db.Collection(collectionName), retention: retention}
}

// CreateIndexes adds the lookup index and the TTL index that expires old entries.
func (j *MongoJournal) CreateIndexes(ctx context.Context) error {
	idxs := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "order_number", Value: 1}, {Key: "occurred_at", Value: -1}},
			Options: options.Index().SetName("order_occurred"),
		},
		{
			Keys:    bson.M{"occurred_at": 1},
			Options: options.Index().SetExpireAfterSeconds(int32(j.retention.Seconds())).SetName("ttl_occurred_at"),
		},
	}
	if _, err := j.collection.Indexes().CreateMany(ctx, idxs); err != nil {
		return fmt.Errorf("failed to create journal indexes: %w", err)
	}
	return nil
}

func (j *MongoJournal) Record(ctx context.Context, entry Entry) error {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	if _, err := j.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to record payment callback: %w", err)
	}
	return nil
}

// ByOrder returns the journal of one order, newest first.
func (j *MongoJournal) ByOrder(ctx context.Context, orderNumber string, limit int64) ([]Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: -1}}).SetLimit(limit)
	cursor, err := j.collection.Find(ctx, bson.M{"order_number": orderNumber}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode journal: %w", err)
	}
	return entries, nil
}
