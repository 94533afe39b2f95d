package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn, content encrypted at rest. Temporary turns
// are bulk-deleted when the user leaves temporary mode or after the inactivity
// window expires.
type Message struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PseudonymID      string             `bson:"pseudonymId" json:"pseudonymId"`
	Role             string             `bson:"role" json:"role"`
	EncryptedContent string             `bson:"encryptedContent" json:"-"`
	KeyVersion       int                `bson:"keyVersion" json:"keyVersion"`
	Temporary        bool               `bson:"temporary" json:"temporary"`
	CreatedAt        int64              `bson:"createdAt" json:"createdAt"` // unix ms
}
