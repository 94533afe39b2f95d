// Package jobs runs the periodic ticks: the daily-message trigger and a
// minutely scan that re-enqueues overdue reminders and expires temporary
// messages. Ticks select work by data state, never by tick count, so a missed
// or doubled tick cannot create work idempotent handlers don't already absorb.
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"talkasaurus/internal/models"
	"talkasaurus/internal/queue"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Batch size for the reminder catch-up scan.
const reminderScanLimit = 200

// Tick lock TTLs. A lock must outlive the window it names: the daily lock
// covers a calendar day plus clock skew, so a sibling whose cron fires late
// cannot rerun the day; the scan lock only needs to cover its minute.
const (
	dailyLockTTL = 25 * time.Hour
	scanLockTTL  = 5 * time.Minute
)

// TickLocker takes the per-window tick locks.
type TickLocker interface {
	AcquireLock(ctx context.Context, lockKey, lockValue string, expiration time.Duration) (bool, error)
}

// DueReminderSource lists reminders whose time passed without delivery.
type DueReminderSource interface {
	UnexecutedDue(ctx context.Context, now time.Time, limit int64) ([]models.Reminder, error)
}

// TemporaryExpirer bulk-deletes expired temporary messages.
type TemporaryExpirer interface {
	ExpireTemporary(ctx context.Context, cutoffMs int64) (int64, error)
}

// Scheduler owns the gocron instance and the tick handlers. Every tick is
// guarded by a Redis lock keyed to its time window, so overlapping instances
// agree on who runs it.
type Scheduler struct {
	scheduler          gocron.Scheduler
	locks              TickLocker
	jobs               *queue.Queue
	reminders          DueReminderSource
	messages           TemporaryExpirer
	instanceID         string
	dailyCron          string
	temporaryRetention time.Duration
}

// New creates a scheduler. dailyCron is a standard 5-field cron expression in
// UTC; it is validated here so a bad expression fails at startup.
func New(locks TickLocker, jobs *queue.Queue, reminders DueReminderSource, messages TemporaryExpirer, dailyCron string, temporaryRetention time.Duration) (*Scheduler, error) {
	if _, err := cron.ParseStandard(dailyCron); err != nil {
		return nil, fmt.Errorf("invalid daily cron %q: %w", dailyCron, err)
	}

	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Scheduler{
		scheduler:          scheduler,
		locks:              locks,
		jobs:               jobs,
		reminders:          reminders,
		messages:           messages,
		instanceID:         uuid.NewString(),
		dailyCron:          dailyCron,
		temporaryRetention: temporaryRetention,
	}, nil
}

// Start registers the ticks and starts the scheduler.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.CronJob(s.dailyCron, false),
		gocron.NewTask(s.dailyTick),
		gocron.WithName("daily-message"),
	)
	if err != nil {
		return fmt.Errorf("failed to register daily job: %w", err)
	}

	_, err = s.scheduler.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(s.minutelyTick),
		gocron.WithName("minutely-scan"),
	)
	if err != nil {
		return fmt.Errorf("failed to register minutely scan: %w", err)
	}

	s.scheduler.Start()
	log.Printf("🚀 [SCHEDULER] Started (daily cron %q, instance %s)", s.dailyCron, s.instanceID)
	return nil
}

// Stop shuts the scheduler down, waiting for running ticks.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

// dailyTick enqueues one DailyMsgCreator job. The lock window is the calendar
// day, so two instances firing the same cron produce one job.
func (s *Scheduler) dailyTick() {
	ctx := context.Background()
	lockKey := fmt.Sprintf("tick-lock:daily:%s", time.Now().UTC().Format("2006-01-02"))
	if !s.acquireTick(ctx, lockKey, dailyLockTTL) {
		return
	}

	if _, err := s.jobs.Enqueue(ctx, queue.LaneDailyMsgCreator, queue.DailyMsgCreatorPayload{}); err != nil {
		log.Printf("❌ [SCHEDULER] Failed to enqueue daily creator: %v", err)
		return
	}
	log.Printf("📅 [SCHEDULER] Daily message creator enqueued")
}

// minutelyTick re-enqueues overdue unexecuted reminders and expires old
// temporary messages. Re-enqueueing an already-queued reminder is harmless:
// the worker skips executed rows.
func (s *Scheduler) minutelyTick() {
	ctx := context.Background()
	lockKey := fmt.Sprintf("tick-lock:scan:%d", time.Now().Unix()/60)
	if !s.acquireTick(ctx, lockKey, scanLockTTL) {
		return
	}

	now := time.Now()
	overdue, err := s.reminders.UnexecutedDue(ctx, now, reminderScanLimit)
	if err != nil {
		log.Printf("❌ [SCHEDULER] Due reminder scan failed: %v", err)
	} else {
		for _, reminder := range overdue {
			payload := queue.ReminderPayload{ReminderID: reminder.ID.Hex()}
			if _, err := s.jobs.Enqueue(ctx, queue.LaneReminder, payload); err != nil {
				log.Printf("⚠️ [SCHEDULER] Failed to re-enqueue reminder %s: %v", reminder.ID.Hex(), err)
			}
		}
		if len(overdue) > 0 {
			log.Printf("⏰ [SCHEDULER] Re-enqueued %d overdue reminders", len(overdue))
		}
	}

	cutoff := now.Add(-s.temporaryRetention).UnixMilli()
	deleted, err := s.messages.ExpireTemporary(ctx, cutoff)
	if err != nil {
		log.Printf("❌ [SCHEDULER] Temporary message expiry failed: %v", err)
	} else if deleted > 0 {
		log.Printf("🧹 [SCHEDULER] Expired %d temporary messages", deleted)
	}
}

// acquireTick takes the window lock for a tick. The lock is left to expire on
// its own: releasing it early would let a slow sibling rerun the window.
func (s *Scheduler) acquireTick(ctx context.Context, lockKey string, ttl time.Duration) bool {
	acquired, err := s.locks.AcquireLock(ctx, lockKey, s.instanceID, ttl)
	if err != nil {
		log.Printf("❌ [SCHEDULER] Failed to acquire %s: %v", lockKey, err)
		return false
	}
	if !acquired {
		log.Printf("⏭️ [SCHEDULER] %s already handled by another instance", lockKey)
		return false
	}
	return true
}
