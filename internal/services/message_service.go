package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"talkasaurus/internal/crypto"
	"talkasaurus/internal/database"
	"talkasaurus/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageService handles conversation history with MongoDB. Content is sealed
// before insert and opened with the generation recorded on each row, so
// history written before a key rotation stays readable after it.
type MessageService struct {
	db         *database.MongoDB
	collection *mongo.Collection
	keyring    *crypto.Keyring
}

// NewMessageService creates a new message service
func NewMessageService(db *database.MongoDB, keyring *crypto.Keyring) *MessageService {
	return &MessageService{
		db:         db,
		collection: db.Collection(database.CollectionMessages),
		keyring:    keyring,
	}
}

// Append seals and stores one conversation turn.
func (s *MessageService) Append(ctx context.Context, pseudonymID, role, content string, temporary bool) error {
	if role != models.RoleUser && role != models.RoleAssistant {
		return fmt.Errorf("invalid role: %q", role)
	}

	sealed, version, err := s.keyring.Seal(crypto.ContextMessage, content)
	if err != nil {
		return fmt.Errorf("failed to seal message: %w", err)
	}

	msg := models.Message{
		PseudonymID:      pseudonymID,
		Role:             role,
		EncryptedContent: sealed,
		KeyVersion:       version,
		Temporary:        temporary,
		CreatedAt:        time.Now().UnixMilli(),
	}
	if _, err := s.collection.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}
	return nil
}

// Turn is a decrypted conversation turn.
type Turn struct {
	Role    string
	Content string
}

// History returns the most recent limit turns in chronological order, each
// opened with its own recorded generation. A row that fails to open is
// dropped from the result rather than failing the whole conversation.
func (s *MessageService) History(ctx context.Context, pseudonymID string, limit int64) ([]Turn, error) {
	opts := options.Find().
		SetSort(bson.M{"createdAt": -1}).
		SetLimit(limit)

	cursor, err := s.collection.Find(ctx, bson.M{"pseudonymId": pseudonymID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []models.Message
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}

	// Newest-first from the query; flip to chronological while decrypting.
	turns := make([]Turn, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		content, err := s.keyring.Open(crypto.ContextMessage, row.EncryptedContent, row.KeyVersion)
		if err != nil {
			log.Printf("⚠️ Dropping unreadable message %s: %v", row.ID.Hex(), err)
			continue
		}
		turns = append(turns, Turn{Role: row.Role, Content: content})
	}
	return turns, nil
}

// ClearHistory deletes every stored turn for a user.
func (s *MessageService) ClearHistory(ctx context.Context, pseudonymID string) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, bson.M{"pseudonymId": pseudonymID})
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	return res.DeletedCount, nil
}

// DeleteTemporary removes a user's temporary turns, called when the user
// leaves temporary mode.
func (s *MessageService) DeleteTemporary(ctx context.Context, pseudonymID string) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, bson.M{"pseudonymId": pseudonymID, "temporary": true})
	if err != nil {
		return 0, fmt.Errorf("failed to delete temporary messages: %w", err)
	}
	return res.DeletedCount, nil
}

// ExpireTemporary removes temporary turns older than cutoffMs across all
// users. Run periodically by the scheduler.
func (s *MessageService) ExpireTemporary(ctx context.Context, cutoffMs int64) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, bson.M{
		"temporary": true,
		"createdAt": bson.M{"$lt": cutoffMs},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to expire temporary messages: %w", err)
	}
	return res.DeletedCount, nil
}

// CountMessages returns the total number of stored turns.
func (s *MessageService) CountMessages(ctx context.Context) (int64, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}
