package services

import (
	"context"
	"fmt"
	"time"

	"talkasaurus/internal/database"
	"talkasaurus/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FeedbackService stores free-text feedback for operator review. Feedback is
// intentionally stored without any link back to a pseudonym.
type FeedbackService struct {
	collection *mongo.Collection
}

// NewFeedbackService creates a new feedback service
func NewFeedbackService(db *database.MongoDB) *FeedbackService {
	return &FeedbackService{
		collection: db.Collection(database.CollectionFeedback),
	}
}

// Submit stores one feedback note.
func (s *FeedbackService) Submit(ctx context.Context, text string) error {
	if text == "" {
		return fmt.Errorf("feedback text is required")
	}
	entry := models.Feedback{
		Text:      text,
		Reviewed:  false,
		CreatedAt: time.Now().UnixMilli(),
	}
	if _, err := s.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}
	return nil
}

// Unreviewed returns the oldest unreviewed notes, up to limit.
func (s *FeedbackService) Unreviewed(ctx context.Context, limit int64) ([]models.Feedback, error) {
	opts := options.Find().
		SetSort(bson.M{"createdAt": 1}).
		SetLimit(limit)

	cursor, err := s.collection.Find(ctx, bson.M{"reviewed": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []models.Feedback
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode feedback: %w", err)
	}
	return entries, nil
}

// MarkReviewed flags a batch of notes as handled.
func (s *FeedbackService) MarkReviewed(ctx context.Context, ids []string) (int64, error) {
	oids := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return 0, fmt.Errorf("invalid feedback id %q: %w", id, err)
		}
		oids = append(oids, oid)
	}
	res, err := s.collection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": oids}},
		bson.M{"$set": bson.M{"reviewed": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark feedback reviewed: %w", err)
	}
	return res.ModifiedCount, nil
}
