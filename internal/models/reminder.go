package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Reminder is a user-scheduled time-shifted message. Recipient and body are
// sealed under the generation recorded in KeyVersion. Executed transitions
// false to true exactly once, via a conditional update at the storage layer.
// Failed marks a reminder that can never deliver; failed rows are kept for
// inspection but leave the delivery pipeline for good.
type Reminder struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EncryptedRecipient string             `bson:"encryptedRecipient" json:"-"`
	EncryptedBody      string             `bson:"encryptedBody" json:"-"`
	KeyVersion         int                `bson:"keyVersion" json:"keyVersion"`
	RemindAt           int64              `bson:"remindAt" json:"remindAt"` // unix ms
	Executed           bool               `bson:"executed" json:"executed"`
	Failed             bool               `bson:"failed,omitempty" json:"failed"`
	FailureReason      string             `bson:"failureReason,omitempty" json:"-"`
	DeliveryAttempts   int                `bson:"deliveryAttempts,omitempty" json:"-"`
	CreatedAt          int64              `bson:"createdAt" json:"createdAt"` // unix ms
}
