package services

import (
	"context"
	"fmt"
	"time"

	"talkasaurus/internal/crypto"
	"talkasaurus/internal/database"
	"talkasaurus/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrReminderNotFound is returned when a reminder id has no stored row.
var ErrReminderNotFound = fmt.Errorf("reminder not found")

// ReminderService handles time-shifted messages with MongoDB. Recipient and
// body are sealed at creation; the executed flag only ever moves from false
// to true, through a conditional update.
type ReminderService struct {
	db         *database.MongoDB
	collection *mongo.Collection
	keyring    *crypto.Keyring
}

// NewReminderService creates a new reminder service
func NewReminderService(db *database.MongoDB, keyring *crypto.Keyring) *ReminderService {
	return &ReminderService{
		db:         db,
		collection: db.Collection(database.CollectionReminders),
		keyring:    keyring,
	}
}

// Create seals recipient and body under the current generation and stores the
// reminder. Returns the hex id used to address it in delayed jobs.
func (s *ReminderService) Create(ctx context.Context, recipientRawID, body string, remindAt time.Time) (string, error) {
	if remindAt.Before(time.Now()) {
		return "", fmt.Errorf("remind time is in the past")
	}

	// Both envelopes are sealed under the current generation, so a single
	// version field on the row covers them.
	sealedRecipient, version, err := s.keyring.Seal(crypto.ContextReminder, recipientRawID)
	if err != nil {
		return "", fmt.Errorf("failed to seal recipient: %w", err)
	}
	sealedBody, _, err := s.keyring.Seal(crypto.ContextReminder, body)
	if err != nil {
		return "", fmt.Errorf("failed to seal body: %w", err)
	}

	reminder := models.Reminder{
		EncryptedRecipient: sealedRecipient,
		EncryptedBody:      sealedBody,
		KeyVersion:         version,
		RemindAt:           remindAt.UnixMilli(),
		Executed:           false,
		CreatedAt:          time.Now().UnixMilli(),
	}

	res, err := s.collection.InsertOne(ctx, reminder)
	if err != nil {
		return "", fmt.Errorf("failed to store reminder: %w", err)
	}
	id := res.InsertedID.(primitive.ObjectID)
	return id.Hex(), nil
}

// Get retrieves a reminder by its hex id.
func (s *ReminderService) Get(ctx context.Context, id string) (*models.Reminder, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid reminder id %q: %w", id, err)
	}

	var reminder models.Reminder
	err = s.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&reminder)
	if err == mongo.ErrNoDocuments {
		return nil, ErrReminderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}
	return &reminder, nil
}

// MarkExecuted flips executed false to true. The filter requires the flag to
// still be false, so only one caller can ever win a concurrent flip; losers
// see ok=false.
func (s *ReminderService) MarkExecuted(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, fmt.Errorf("invalid reminder id %q: %w", id, err)
	}

	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": oid, "executed": false},
		bson.M{"$set": bson.M{"executed": true}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder executed: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// MarkFailed takes an unexecuted reminder out of the delivery pipeline for
// good, recording why. The row is kept for inspection; the catch-up scan
// never picks failed rows back up.
func (s *ReminderService) MarkFailed(ctx context.Context, id, reason string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid reminder id %q: %w", id, err)
	}

	_, err = s.collection.UpdateOne(ctx,
		bson.M{"_id": oid, "executed": false},
		bson.M{"$set": bson.M{"failed": true, "failureReason": reason}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark reminder failed: %w", err)
	}
	return nil
}

// RecordDeliveryFailure counts one failed delivery attempt against the row
// and returns the running total. The count survives re-enqueues, so the
// worker can bound total attempts across catch-up scans, not just within one
// job's retry budget.
func (s *ReminderService) RecordDeliveryFailure(ctx context.Context, id, reason string) (int, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, fmt.Errorf("invalid reminder id %q: %w", id, err)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var reminder models.Reminder
	err = s.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{
			"$inc": bson.M{"deliveryAttempts": 1},
			"$set": bson.M{"failureReason": reason},
		},
		opts,
	).Decode(&reminder)
	if err == mongo.ErrNoDocuments {
		return 0, ErrReminderNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record delivery failure: %w", err)
	}
	return reminder.DeliveryAttempts, nil
}

// UnexecutedDue returns reminders whose time has passed but whose executed
// flag is still false, used by the scheduler's catch-up scan. Failed rows are
// excluded; re-enqueueing them could never succeed.
func (s *ReminderService) UnexecutedDue(ctx context.Context, now time.Time, limit int64) ([]models.Reminder, error) {
	opts := options.Find().
		SetSort(bson.M{"remindAt": 1}).
		SetLimit(limit)

	cursor, err := s.collection.Find(ctx, bson.M{
		"executed": false,
		"failed":   bson.M{"$ne": true},
		"remindAt": bson.M{"$lte": now.UnixMilli()},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query due reminders: %w", err)
	}
	defer cursor.Close(ctx)

	var reminders []models.Reminder
	if err := cursor.All(ctx, &reminders); err != nil {
		return nil, fmt.Errorf("failed to decode due reminders: %w", err)
	}
	return reminders, nil
}

// OpenRecipient opens the sealed recipient with the generation recorded on
// the row.
func (s *ReminderService) OpenRecipient(reminder *models.Reminder) (string, error) {
	recipient, err := s.keyring.Open(crypto.ContextReminder, reminder.EncryptedRecipient, reminder.KeyVersion)
	if err != nil {
		return "", fmt.Errorf("failed to open reminder recipient: %w", err)
	}
	return recipient, nil
}

// OpenBody opens the sealed body with the generation recorded on the row.
func (s *ReminderService) OpenBody(reminder *models.Reminder) (string, error) {
	body, err := s.keyring.Open(crypto.ContextReminder, reminder.EncryptedBody, reminder.KeyVersion)
	if err != nil {
		return "", fmt.Errorf("failed to open reminder body: %w", err)
	}
	return body, nil
}

// CountPending returns how many reminders still await delivery.
func (s *ReminderService) CountPending(ctx context.Context) (int64, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{
		"executed": false,
		"failed":   bson.M{"$ne": true},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count pending reminders: %w", err)
	}
	return n, nil
}
