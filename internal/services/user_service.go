package services

import (
	"context"
	"fmt"
	"time"

	"talkasaurus/internal/crypto"
	"talkasaurus/internal/database"
	"talkasaurus/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrUserNotFound is returned when a pseudonym has no stored row.
var ErrUserNotFound = fmt.Errorf("user not found")

// UserService handles user rows keyed by pseudonym with MongoDB
type UserService struct {
	db         *database.MongoDB
	collection *mongo.Collection
	keyring    *crypto.Keyring
}

// NewUserService creates a new user service
func NewUserService(db *database.MongoDB, keyring *crypto.Keyring) *UserService {
	return &UserService{
		db:         db,
		collection: db.Collection(database.CollectionUsers),
		keyring:    keyring,
	}
}

// FindOrCreate returns the row for pseudonymID, creating it on first contact.
// The raw external id is sealed before it ever reaches storage, together with
// the generation it was sealed under. The boolean reports whether the row was
// created by this call.
func (s *UserService) FindOrCreate(ctx context.Context, pseudonymID, rawID string) (*models.User, bool, error) {
	if pseudonymID == "" {
		return nil, false, fmt.Errorf("pseudonym ID is required")
	}

	now := time.Now().UnixMilli()

	encryptedRawID, keyVersion, err := s.keyring.Seal(crypto.ContextIdentity, rawID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to seal raw id: %w", err)
	}

	filter := bson.M{"pseudonymId": pseudonymID}
	update := bson.M{
		"$set": bson.M{"lastActiveAt": now},
		"$setOnInsert": bson.M{
			"pseudonymId":    pseudonymID,
			"encryptedRawId": encryptedRawID,
			"keyVersion":     keyVersion,
			"createdAt":      now,
			"subscribed":     true,
			"temporaryMode":  false,
			"writingStyle":   models.StyleDefault,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var user models.User
	if err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&user); err != nil {
		return nil, false, fmt.Errorf("failed to find or create user: %w", err)
	}

	created := user.CreatedAt == now
	return &user, created, nil
}

// GetByPseudonym retrieves a user row by its pseudonym.
func (s *UserService) GetByPseudonym(ctx context.Context, pseudonymID string) (*models.User, error) {
	var user models.User
	err := s.collection.FindOne(ctx, bson.M{"pseudonymId": pseudonymID}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// RawID opens the stored envelope with the generation recorded on the row.
func (s *UserService) RawID(user *models.User) (string, error) {
	rawID, err := s.keyring.Open(crypto.ContextIdentity, user.EncryptedRawID, user.KeyVersion)
	if err != nil {
		return "", fmt.Errorf("failed to open raw id for %s: %w", user.PseudonymID, err)
	}
	return rawID, nil
}

// UpdateLastActive stamps the row with an activity time. Missing rows are not
// an error; the user may have been deleted between the event and its delivery.
func (s *UserService) UpdateLastActive(ctx context.Context, pseudonymID string, timestampMs int64) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"pseudonymId": pseudonymID},
		bson.M{"$set": bson.M{"lastActiveAt": timestampMs}},
	)
	if err != nil {
		return fmt.Errorf("failed to update activity: %w", err)
	}
	return nil
}

// SetSubscribed toggles daily message delivery for a user.
func (s *UserService) SetSubscribed(ctx context.Context, pseudonymID string, subscribed bool) error {
	return s.setField(ctx, pseudonymID, "subscribed", subscribed)
}

// SetTemporaryMode toggles temporary conversation mode.
func (s *UserService) SetTemporaryMode(ctx context.Context, pseudonymID string, temporary bool) error {
	return s.setField(ctx, pseudonymID, "temporaryMode", temporary)
}

// SetWritingStyle updates the reply style after validating the choice.
func (s *UserService) SetWritingStyle(ctx context.Context, pseudonymID, style string) error {
	if !models.ValidWritingStyle(style) {
		return fmt.Errorf("invalid writing style: %q", style)
	}
	return s.setField(ctx, pseudonymID, "writingStyle", style)
}

// SetCustomInstructions seals the user's personalization text under the
// current generation and records that generation alongside it. Empty text
// clears the instructions.
func (s *UserService) SetCustomInstructions(ctx context.Context, pseudonymID, text string) error {
	if text == "" {
		res, err := s.collection.UpdateOne(ctx,
			bson.M{"pseudonymId": pseudonymID},
			bson.M{"$unset": bson.M{"customInstructions": "", "customInstructionsKeyVersion": ""}},
		)
		if err != nil {
			return fmt.Errorf("failed to clear instructions: %w", err)
		}
		if res.MatchedCount == 0 {
			return ErrUserNotFound
		}
		return nil
	}

	sealed, version, err := s.keyring.Seal(crypto.ContextInstructions, text)
	if err != nil {
		return fmt.Errorf("failed to seal instructions: %w", err)
	}

	res, err := s.collection.UpdateOne(ctx,
		bson.M{"pseudonymId": pseudonymID},
		bson.M{"$set": bson.M{
			"customInstructions":           sealed,
			"customInstructionsKeyVersion": version,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to set instructions: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CustomInstructions opens the user's personalization text, or returns "" if
// none is set.
func (s *UserService) CustomInstructions(user *models.User) (string, error) {
	if user.CustomInstructions == "" {
		return "", nil
	}
	text, err := s.keyring.Open(crypto.ContextInstructions, user.CustomInstructions, user.CustomInstructionsKeyVersion)
	if err != nil {
		return "", fmt.Errorf("failed to open instructions for %s: %w", user.PseudonymID, err)
	}
	return text, nil
}

// EligibleForDailyMessage returns the subscribed users whose last activity is
// older than inactiveSinceMs. Recently active users are already engaged and
// are skipped by the fan-out.
func (s *UserService) EligibleForDailyMessage(ctx context.Context, inactiveSinceMs int64) ([]models.User, error) {
	cursor, err := s.collection.Find(ctx, bson.M{
		"subscribed":   true,
		"lastActiveAt": bson.M{"$lt": inactiveSinceMs},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode subscribers: %w", err)
	}
	return users, nil
}

// All returns every stored user row, used by the admin broadcast fan-out.
func (s *UserService) All(ctx context.Context) ([]models.User, error) {
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

// CountUsers returns the total number of stored users.
func (s *UserService) CountUsers(ctx context.Context) (int64, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// CountActiveSince returns how many users were active at or after sinceMs.
func (s *UserService) CountActiveSince(ctx context.Context, sinceMs int64) (int64, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{"lastActiveAt": bson.M{"$gte": sinceMs}})
	if err != nil {
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return n, nil
}

func (s *UserService) setField(ctx context.Context, pseudonymID, field string, value interface{}) error {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"pseudonymId": pseudonymID},
		bson.M{"$set": bson.M{field: value}},
	)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", field, err)
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}
