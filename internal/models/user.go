package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Writing styles a user can pick for assistant replies.
const (
	StyleDefault     = "DEFAULT"
	StyleFormal      = "FORMAL"
	StyleDescriptive = "DESCRIPTIVE"
	StyleConcise     = "CONCISE"
)

// ValidWritingStyle reports whether s is one of the selectable styles.
func ValidWritingStyle(s string) bool {
	switch s {
	case StyleDefault, StyleFormal, StyleDescriptive, StyleConcise:
		return true
	}
	return false
}

// User is keyed by a deterministic pseudonym of the external Telegram id; the
// raw id is only stored as an AEAD envelope so that delayed jobs can address
// the user later. KeyVersion records the generation the envelope was sealed
// under and must be used to open it, regardless of later rotations.
type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PseudonymID    string             `bson:"pseudonymId" json:"pseudonymId"`
	EncryptedRawID string             `bson:"encryptedRawId,omitempty" json:"-"`
	KeyVersion     int                `bson:"keyVersion" json:"keyVersion"`

	CreatedAt    int64 `bson:"createdAt" json:"createdAt"`       // unix ms
	LastActiveAt int64 `bson:"lastActiveAt" json:"lastActiveAt"` // unix ms

	Subscribed    bool   `bson:"subscribed" json:"subscribed"`
	TemporaryMode bool   `bson:"temporaryMode" json:"temporaryMode"`
	WritingStyle  string `bson:"writingStyle" json:"writingStyle"`

	// Free-text personalization, encrypted at rest under its own recorded
	// generation (it can be written long after the user row was created).
	CustomInstructions           string `bson:"customInstructions,omitempty" json:"-"`
	CustomInstructionsKeyVersion int    `bson:"customInstructionsKeyVersion,omitempty" json:"-"`
}
