package queue

import "time"

// Lane names one category of deferred work with its own policy and consumer
// pool.
type Lane string

const (
	LaneActivityUpdate  Lane = "activityUpdate"
	LaneReminder        Lane = "reminder"
	LaneBroadcast       Lane = "broadcast"
	LaneDailyMsgCreator Lane = "dailyMsgCreator"
	LaneDailyMsgSender  Lane = "dailyMsgSender"
)

// Policy controls retries and retention for one lane.
type Policy struct {
	// MaxAttempts is the total delivery attempts before a job is exhausted.
	MaxAttempts int
	// Backoff is the base delay before a retry; it doubles per attempt.
	Backoff time.Duration
	// RetainOnFailure keeps exhausted job records for inspection instead of
	// dropping them.
	RetainOnFailure bool
}

// DefaultPolicies mirrors the delivery guarantees each lane needs:
// activity updates are latest-wins best-effort, reminders are user-visible
// commitments whose failures must stay inspectable, broadcasts and daily
// sends get bounded retries with no backlog growth, and daily content
// creation runs at most once per tick to avoid duplicate generation.
func DefaultPolicies() map[Lane]Policy {
	return map[Lane]Policy{
		LaneActivityUpdate:  {MaxAttempts: 1, Backoff: 15 * time.Second, RetainOnFailure: false},
		LaneReminder:        {MaxAttempts: 3, Backoff: 30 * time.Second, RetainOnFailure: true},
		LaneBroadcast:       {MaxAttempts: 2, Backoff: 30 * time.Second, RetainOnFailure: false},
		LaneDailyMsgCreator: {MaxAttempts: 1, Backoff: 15 * time.Second, RetainOnFailure: false},
		LaneDailyMsgSender:  {MaxAttempts: 3, Backoff: 30 * time.Second, RetainOnFailure: false},
	}
}

// Job payloads, one per lane. Serialized as JSON into Job.Payload.

// ActivityUpdatePayload carries a best-effort "seen at" update.
type ActivityUpdatePayload struct {
	Pseudonym   string `json:"pseudonym"`
	TimestampMs int64  `json:"timestampMs"`
}

// ReminderPayload references a reminder row by id; everything else lives
// encrypted on the row itself.
type ReminderPayload struct {
	ReminderID string `json:"reminderId"`
}

// BroadcastPayload carries one admin broadcast delivery. The recipient stays
// sealed until the worker runs; KeyVersion is the generation it was sealed
// under.
type BroadcastPayload struct {
	EncryptedRecipient string `json:"encryptedRecipient"`
	KeyVersion         int    `json:"keyVersion"`
	Message            string `json:"message"`
}

// DailyMsgCreatorPayload triggers one generate-and-fan-out run.
type DailyMsgCreatorPayload struct{}

// DailyMsgSenderPayload carries one per-recipient daily message delivery.
type DailyMsgSenderPayload struct {
	EncryptedRecipient string `json:"encryptedRecipient"`
	KeyVersion         int    `json:"keyVersion"`
	Message            string `json:"message"`
}
