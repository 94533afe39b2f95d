package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"talkasaurus/internal/models"
	"talkasaurus/internal/queue"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type recordingLocker struct {
	mu   sync.Mutex
	held map[string]string
	ttls map[string]time.Duration
}

func newRecordingLocker() *recordingLocker {
	return &recordingLocker{held: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (l *recordingLocker) AcquireLock(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[key]; taken {
		return false, nil
	}
	l.held[key] = value
	l.ttls[key] = ttl
	return true, nil
}

type staticDueReminders struct{ due []models.Reminder }

func (s *staticDueReminders) UnexecutedDue(_ context.Context, _ time.Time, _ int64) ([]models.Reminder, error) {
	return s.due, nil
}

type noopExpirer struct{}

func (noopExpirer) ExpireTemporary(_ context.Context, _ int64) (int64, error) { return 0, nil }

func testScheduler(t *testing.T, locks TickLocker, due []models.Reminder) (*Scheduler, *queue.MemoryStore) {
	t.Helper()
	store := queue.NewMemoryStore()
	s, err := New(locks, queue.New(store), &staticDueReminders{due: due}, noopExpirer{}, "0 6 * * *", 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return s, store
}

func jobsInLane(store *queue.MemoryStore, lane queue.Lane) int {
	n := 0
	for _, j := range store.Snapshot() {
		if j.Lane == lane {
			n++
		}
	}
	return n
}

func TestNewRejectsBadCron(t *testing.T) {
	if _, err := New(newRecordingLocker(), queue.New(queue.NewMemoryStore()), &staticDueReminders{}, noopExpirer{}, "not a cron", time.Hour); err == nil {
		t.Fatal("expected an invalid cron expression to fail construction")
	}
}

func TestDailyTickEnqueuesOnce(t *testing.T) {
	locks := newRecordingLocker()
	first, firstStore := testScheduler(t, locks, nil)
	second, secondStore := testScheduler(t, locks, nil)

	// Two instances firing the same cron share the lock, so only one
	// produces the creator job.
	first.dailyTick()
	second.dailyTick()

	total := jobsInLane(firstStore, queue.LaneDailyMsgCreator) + jobsInLane(secondStore, queue.LaneDailyMsgCreator)
	if total != 1 {
		t.Fatalf("expected exactly 1 daily creator job across instances, got %d", total)
	}
}

func TestDailyTickLockOutlivesItsDay(t *testing.T) {
	locks := newRecordingLocker()
	s, _ := testScheduler(t, locks, nil)

	s.dailyTick()

	for key, ttl := range locks.ttls {
		if ttl < 24*time.Hour {
			t.Errorf("daily lock %s expires after %v; a sibling firing later the same day could rerun it", key, ttl)
		}
	}
	if len(locks.ttls) != 1 {
		t.Fatalf("expected 1 lock acquisition, got %d", len(locks.ttls))
	}
}

func TestMinutelyTickReenqueuesOverdue(t *testing.T) {
	due := []models.Reminder{
		{ID: primitive.NewObjectID(), RemindAt: time.Now().Add(-time.Hour).UnixMilli()},
		{ID: primitive.NewObjectID(), RemindAt: time.Now().Add(-time.Minute).UnixMilli()},
	}
	s, store := testScheduler(t, newRecordingLocker(), due)

	s.minutelyTick()

	if n := jobsInLane(store, queue.LaneReminder); n != len(due) {
		t.Fatalf("expected %d re-enqueued reminder jobs, got %d", len(due), n)
	}
}
