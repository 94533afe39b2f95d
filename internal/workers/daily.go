package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"talkasaurus/internal/crypto"
	"talkasaurus/internal/models"
	"talkasaurus/internal/queue"
	"talkasaurus/internal/services"
)

// DailyContentSource generates the day's message once per run.
type DailyContentSource interface {
	DailyMessage(ctx context.Context) (string, error)
}

// SubscriberLister is the slice of the user service the fan-out needs.
type SubscriberLister interface {
	EligibleForDailyMessage(ctx context.Context, inactiveSinceMs int64) ([]models.User, error)
}

// DailyCreatorWorker generates one daily message and fans it out as one
// sender job per eligible subscriber. Content is generated exactly once per
// run; every recipient gets the same text. Recipient envelopes are copied
// from the user rows untouched, so the raw ids stay sealed in the queue.
type DailyCreatorWorker struct {
	content             DailyContentSource
	users               SubscriberLister
	jobs                *queue.Queue
	inactivityThreshold time.Duration
	metrics             *services.Metrics
}

// NewDailyCreatorWorker creates a new daily creator worker
func NewDailyCreatorWorker(content DailyContentSource, users SubscriberLister, jobs *queue.Queue, inactivityThreshold time.Duration, metrics *services.Metrics) *DailyCreatorWorker {
	return &DailyCreatorWorker{
		content:             content,
		users:               users,
		jobs:                jobs,
		inactivityThreshold: inactivityThreshold,
		metrics:             metrics,
	}
}

// Handle processes one generate-and-fan-out run.
func (w *DailyCreatorWorker) Handle(ctx context.Context, job *queue.Job) error {
	message, err := w.content.DailyMessage(ctx)
	if err != nil {
		return fmt.Errorf("daily content generation: %w", err)
	}

	cutoff := time.Now().Add(-w.inactivityThreshold).UnixMilli()
	subscribers, err := w.users.EligibleForDailyMessage(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("daily subscriber query: %w", err)
	}

	enqueued := 0
	for _, user := range subscribers {
		if user.EncryptedRawID == "" {
			log.Printf("⚠️ Subscriber %s has no sealed raw id, skipping", user.PseudonymID)
			continue
		}
		payload := queue.DailyMsgSenderPayload{
			EncryptedRecipient: user.EncryptedRawID,
			KeyVersion:         user.KeyVersion,
			Message:            message,
		}
		if _, err := w.jobs.Enqueue(ctx, queue.LaneDailyMsgSender, payload); err != nil {
			// One failed enqueue must not abort the rest of the fan-out.
			log.Printf("⚠️ Failed to enqueue daily message for %s: %v", user.PseudonymID, err)
			continue
		}
		enqueued++
	}

	log.Printf("📬 Daily message fan-out: %d of %d subscribers enqueued", enqueued, len(subscribers))
	if w.metrics != nil {
		w.metrics.RecordDailyFanout(enqueued)
	}
	return nil
}

// DailySenderWorker delivers one daily message to one recipient.
type DailySenderWorker struct {
	keyring *crypto.Keyring
	sender  MessageSender
}

// NewDailySenderWorker creates a new daily sender worker
func NewDailySenderWorker(keyring *crypto.Keyring, sender MessageSender) *DailySenderWorker {
	return &DailySenderWorker{keyring: keyring, sender: sender}
}

// Handle processes one daily message delivery job.
func (w *DailySenderWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload queue.DailyMsgSenderPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("bad daily sender payload: %w", err)
	}

	recipient, err := w.keyring.Open(crypto.ContextIdentity, payload.EncryptedRecipient, payload.KeyVersion)
	if err != nil {
		return fmt.Errorf("daily recipient: %w", err)
	}
	text := payload.Message + "\n\nYou can turn these off anytime with /unsubscribe."
	if err := w.sender.SendMessage(ctx, recipient, text); err != nil {
		return fmt.Errorf("daily send: %w", err)
	}
	return nil
}
