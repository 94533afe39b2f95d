package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Feedback is a free-text note left by a user, held for operator review. It is
// deliberately not linked to a pseudonym.
type Feedback struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Text      string             `bson:"text" json:"text"`
	Reviewed  bool               `bson:"reviewed" json:"reviewed"`
	CreatedAt int64              `bson:"createdAt" json:"createdAt"` // unix ms
}
