package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore persists job records in a MongoDB collection. The atomic claim is
// a FindOneAndUpdate on (lane, pending, eligible), so concurrent consumers can
// never receive the same record, and queued work survives process restarts.
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore creates a store over the given jobs collection.
func NewMongoStore(collection *mongo.Collection) *MongoStore {
	return &MongoStore{collection: collection}
}

func (s *MongoStore) Enqueue(ctx context.Context, job *Job) error {
	if _, err := s.collection.InsertOne(ctx, job); err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *MongoStore) ClaimNext(ctx context.Context, lane Lane, now time.Time) (*Job, error) {
	filter := bson.M{
		"lane":      lane,
		"state":     StatePending,
		"notBefore": bson.M{"$lte": now},
	}
	update := bson.M{
		"$set": bson.M{"state": StateActive, "claimedAt": now},
		"$inc": bson.M{"attempts": 1},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "notBefore", Value: 1}}).
		SetReturnDocument(options.After)

	var job Job
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return &job, nil
}

func (s *MongoStore) Complete(ctx context.Context, id string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *MongoStore) Retry(ctx context.Context, id string, notBefore time.Time, lastErr string) error {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"state":     StatePending,
			"notBefore": notBefore,
			"lastError": lastErr,
		}, "$unset": bson.M{"claimedAt": ""}},
	)
	if err != nil {
		return fmt.Errorf("failed to retry job: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *MongoStore) Exhaust(ctx context.Context, id string, retain bool, lastErr string) error {
	if !retain {
		res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("failed to drop exhausted job: %w", err)
		}
		if res.DeletedCount == 0 {
			return ErrJobNotFound
		}
		return nil
	}

	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"state": StateExhausted, "lastError": lastErr}},
	)
	if err != nil {
		return fmt.Errorf("failed to retain exhausted job: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *MongoStore) ReclaimStale(ctx context.Context, deadline time.Time) (int, error) {
	res, err := s.collection.UpdateMany(ctx,
		bson.M{"state": StateActive, "claimedAt": bson.M{"$lt": deadline}},
		bson.M{"$set": bson.M{"state": StatePending}, "$unset": bson.M{"claimedAt": ""}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale jobs: %w", err)
	}
	return int(res.ModifiedCount), nil
}

// CountByState returns record counts per state, used by admin analytics.
func (s *MongoStore) CountByState(ctx context.Context) (map[State]int64, error) {
	counts := make(map[State]int64)
	for _, state := range []State{StatePending, StateActive, StateExhausted} {
		n, err := s.collection.CountDocuments(ctx, bson.M{"state": state})
		if err != nil {
			return nil, fmt.Errorf("failed to count %s jobs: %w", state, err)
		}
		counts[state] = n
	}
	return counts, nil
}
