package activity

import (
	"context"
	"time"

	"collabdeck/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository keeps both feeds in one "activities" collection keyed by
// scope and scope id.
type MongoRepository struct {
	activities *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	r := &MongoRepository{activities: db.Collection("activities")}
	r.ensureIndexes()
	return r
}

func (r *MongoRepository) ensureIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Feed reads filter on scope + scope_id and sort by created_at descending.
	_, err := r.activities.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "scope", Value: 1},
			{Key: "scope_id", Value: 1},
			{Key: "created_at", Value: -1},
		},
	})
	if err != nil {
		logger.Sugar.Warnf("Failed to create activities index: %v", err)
	}
}

func (r *MongoRepository) Append(ctx context.Context, e *Entry) error {
	if _, err := r.activities.InsertOne(ctx, e); err != nil {
		logger.Sugar.Errorf("Failed to append %s activity for %s %s: %v", e.ActionType, e.Scope, e.ScopeID, err)
		return err
	}
	return nil
}

func (r *MongoRepository) List(ctx context.Context, scope Scope, scopeID string, limit, offset int) ([]Entry, error) {
	filter := bson.M{"scope": scope, "scope_id": scopeID}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.activities.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
