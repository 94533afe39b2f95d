package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"talkasaurus/internal/models"
	"talkasaurus/internal/queue"
	"talkasaurus/internal/services"

	"github.com/google/uuid"
)

// How long a delivery attempt may hold the per-reminder send lock.
const reminderLockTTL = 2 * time.Minute

// Total delivery attempts allowed per reminder, counted on the row itself.
// The lane's own retry budget resets every time the catch-up scan re-enqueues
// an overdue reminder; this cap bounds the sum across those re-enqueues.
const maxDeliveryAttempts = 9

// ReminderStore is the slice of the reminder service the worker needs.
type ReminderStore interface {
	Get(ctx context.Context, id string) (*models.Reminder, error)
	MarkExecuted(ctx context.Context, id string) (bool, error)
	MarkFailed(ctx context.Context, id, reason string) error
	RecordDeliveryFailure(ctx context.Context, id, reason string) (int, error)
	OpenRecipient(reminder *models.Reminder) (string, error)
	OpenBody(reminder *models.Reminder) (string, error)
}

// ReminderWorker delivers due reminders. Exactly one send per reminder is
// enforced in layers: the executed flag is checked before sending, a
// per-reminder lock keeps concurrent attempts from sending in parallel, and
// the final flip is conditional so only one attempt can ever record the send.
type ReminderWorker struct {
	reminders ReminderStore
	locker    Locker
	sender    MessageSender
	metrics   *services.Metrics
}

// NewReminderWorker creates a new reminder worker
func NewReminderWorker(reminders ReminderStore, locker Locker, sender MessageSender, metrics *services.Metrics) *ReminderWorker {
	return &ReminderWorker{
		reminders: reminders,
		locker:    locker,
		sender:    sender,
		metrics:   metrics,
	}
}

// Handle processes one reminder delivery job.
func (w *ReminderWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload queue.ReminderPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("bad reminder payload: %w", err)
	}

	reminder, err := w.reminders.Get(ctx, payload.ReminderID)
	if errors.Is(err, services.ErrReminderNotFound) {
		// Deleted between scheduling and delivery. Nothing to do.
		log.Printf("Reminder %s no longer exists, skipping", payload.ReminderID)
		return nil
	}
	if err != nil {
		return err
	}
	if reminder.Executed || reminder.Failed {
		return nil
	}

	lockKey := "reminder-send:" + payload.ReminderID
	lockValue := uuid.NewString()
	acquired, err := w.locker.AcquireLock(ctx, lockKey, lockValue, reminderLockTTL)
	if err != nil {
		return fmt.Errorf("reminder lock: %w", err)
	}
	if !acquired {
		// Another delivery attempt is in flight. Its outcome stands.
		return nil
	}
	defer func() {
		if _, err := w.locker.ReleaseLock(context.Background(), lockKey, lockValue); err != nil {
			log.Printf("⚠️ Failed to release reminder lock %s: %v", lockKey, err)
		}
	}()

	// Re-check under the lock: a competing attempt may have finished between
	// our first read and the acquire.
	reminder, err = w.reminders.Get(ctx, payload.ReminderID)
	if errors.Is(err, services.ErrReminderNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if reminder.Executed || reminder.Failed {
		return nil
	}

	// An envelope that fails to open is tampered or written under an unknown
	// generation. No retry can fix either, so the row leaves the pipeline.
	recipient, err := w.reminders.OpenRecipient(reminder)
	if err != nil {
		return w.failTerminal(ctx, payload.ReminderID, err)
	}
	body, err := w.reminders.OpenBody(reminder)
	if err != nil {
		return w.failTerminal(ctx, payload.ReminderID, err)
	}

	if err := w.sender.SendMessage(ctx, recipient, "⏰ "+body); err != nil {
		attempts, recErr := w.reminders.RecordDeliveryFailure(ctx, payload.ReminderID, err.Error())
		if recErr != nil {
			log.Printf("⚠️ Failed to record delivery failure for reminder %s: %v", payload.ReminderID, recErr)
			return fmt.Errorf("reminder send: %w", err)
		}
		if attempts >= maxDeliveryAttempts {
			return w.failTerminal(ctx, payload.ReminderID,
				fmt.Errorf("undeliverable after %d attempts: %w", attempts, err))
		}
		return fmt.Errorf("reminder send: %w", err)
	}

	flipped, err := w.reminders.MarkExecuted(ctx, payload.ReminderID)
	if err != nil {
		// The message went out but the flip failed. Surfacing the error would
		// retry the send, so log loudly and settle.
		log.Printf("🚨 Reminder %s sent but executed flag not recorded: %v", payload.ReminderID, err)
		return nil
	}
	if flipped && w.metrics != nil {
		w.metrics.RecordReminderSent()
	}
	return nil
}

// failTerminal takes the reminder out of the pipeline for good and settles
// the job. Nothing has been sent at this point, so surfacing a marking error
// is safe: the retry repeats the marking, not a delivery.
func (w *ReminderWorker) failTerminal(ctx context.Context, id string, cause error) error {
	log.Printf("🚨 Reminder %s will never deliver, marking failed: %v", id, cause)
	if err := w.reminders.MarkFailed(ctx, id, cause.Error()); err != nil {
		return fmt.Errorf("mark reminder failed: %w", err)
	}
	return nil
}
