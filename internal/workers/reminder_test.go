package workers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"talkasaurus/internal/crypto"
	"talkasaurus/internal/models"
	"talkasaurus/internal/queue"
	"talkasaurus/internal/services"
)

type memoryLocker struct {
	mu    sync.Mutex
	locks map[string]string
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{locks: make(map[string]string)}
}

func (l *memoryLocker) AcquireLock(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.locks[key]; held {
		return false, nil
	}
	l.locks[key] = value
	return true, nil
}

func (l *memoryLocker) ReleaseLock(_ context.Context, key, value string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[key] != value {
		return false, nil
	}
	delete(l.locks, key)
	return true, nil
}

type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	to    []string
	fail  bool
	calls int
}

func (s *recordingSender) SendMessage(_ context.Context, chatID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return errors.New("channel unavailable")
	}
	s.to = append(s.to, chatID)
	s.sent = append(s.sent, text)
	return nil
}

type memoryReminderStore struct {
	mu        sync.Mutex
	keyring   *crypto.Keyring
	reminders map[string]*models.Reminder
}

func newMemoryReminderStore(k *crypto.Keyring) *memoryReminderStore {
	return &memoryReminderStore{keyring: k, reminders: make(map[string]*models.Reminder)}
}

func (s *memoryReminderStore) add(t *testing.T, id, recipient, body string) {
	t.Helper()
	sealedRecipient, version, err := s.keyring.Seal(crypto.ContextReminder, recipient)
	if err != nil {
		t.Fatal(err)
	}
	sealedBody, _, err := s.keyring.Seal(crypto.ContextReminder, body)
	if err != nil {
		t.Fatal(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders[id] = &models.Reminder{
		EncryptedRecipient: sealedRecipient,
		EncryptedBody:      sealedBody,
		KeyVersion:         version,
		RemindAt:           time.Now().UnixMilli(),
	}
}

func (s *memoryReminderStore) Get(_ context.Context, id string) (*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return nil, services.ErrReminderNotFound
	}
	clone := *r
	return &clone, nil
}

func (s *memoryReminderStore) MarkExecuted(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok || r.Executed {
		return false, nil
	}
	r.Executed = true
	return true, nil
}

func (s *memoryReminderStore) MarkFailed(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return services.ErrReminderNotFound
	}
	if r.Executed {
		return nil
	}
	r.Failed = true
	r.FailureReason = reason
	return nil
}

func (s *memoryReminderStore) RecordDeliveryFailure(_ context.Context, id, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return 0, services.ErrReminderNotFound
	}
	r.DeliveryAttempts++
	r.FailureReason = reason
	return r.DeliveryAttempts, nil
}

// corruptBody flips one byte of the sealed body, simulating storage-level
// tampering.
func (s *memoryReminderStore) corruptBody(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body := []byte(s.reminders[id].EncryptedBody)
	body[len(body)/2] ^= 0x01
	s.reminders[id].EncryptedBody = string(body)
}

func (s *memoryReminderStore) OpenRecipient(r *models.Reminder) (string, error) {
	return s.keyring.Open(crypto.ContextReminder, r.EncryptedRecipient, r.KeyVersion)
}

func (s *memoryReminderStore) OpenBody(r *models.Reminder) (string, error) {
	return s.keyring.Open(crypto.ContextReminder, r.EncryptedBody, r.KeyVersion)
}

func workerKeyring(t *testing.T) *crypto.Keyring {
	t.Helper()
	k, err := crypto.NewKeyring(
		[]string{"identity-secret-a"},
		[]string{"envelope-secret-a"},
		0,
	)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func reminderJob(t *testing.T, id string) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(queue.ReminderPayload{ReminderID: id})
	if err != nil {
		t.Fatal(err)
	}
	return &queue.Job{ID: "job-" + id, Lane: queue.LaneReminder, Payload: payload}
}

func TestReminderDelivered(t *testing.T) {
	keyring := workerKeyring(t)
	store := newMemoryReminderStore(keyring)
	store.add(t, "r1", "592417", "water the plants")
	sender := &recordingSender{}
	w := NewReminderWorker(store, newMemoryLocker(), sender, nil)

	if err := w.Handle(context.Background(), reminderJob(t, "r1")); err != nil {
		t.Fatal(err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sender.sent))
	}
	if sender.to[0] != "592417" {
		t.Errorf("sent to %s, want 592417", sender.to[0])
	}
	if sender.sent[0] != "⏰ water the plants" {
		t.Errorf("unexpected body: %q", sender.sent[0])
	}
	r, _ := store.Get(context.Background(), "r1")
	if !r.Executed {
		t.Error("executed flag not recorded after send")
	}
}

func TestReminderExactlyOnceUnderConcurrency(t *testing.T) {
	keyring := workerKeyring(t)
	store := newMemoryReminderStore(keyring)
	store.add(t, "r1", "592417", "standup in 10")
	sender := &recordingSender{}
	w := NewReminderWorker(store, newMemoryLocker(), sender, nil)

	// The same reminder delivered by many racing attempts, as happens when a
	// stale claim is reclaimed while the original consumer is still alive.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Handle(context.Background(), reminderJob(t, "r1")); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if len(sender.sent) != 1 {
		t.Fatalf("expected exactly 1 send, got %d", len(sender.sent))
	}
}

func TestReminderAlreadyExecutedSkipped(t *testing.T) {
	keyring := workerKeyring(t)
	store := newMemoryReminderStore(keyring)
	store.add(t, "r1", "592417", "done already")
	store.MarkExecuted(context.Background(), "r1")
	sender := &recordingSender{}
	w := NewReminderWorker(store, newMemoryLocker(), sender, nil)

	if err := w.Handle(context.Background(), reminderJob(t, "r1")); err != nil {
		t.Fatal(err)
	}
	if sender.calls != 0 {
		t.Errorf("executed reminder must not be sent again, got %d sends", sender.calls)
	}
}

func TestReminderMissingSkipped(t *testing.T) {
	keyring := workerKeyring(t)
	store := newMemoryReminderStore(keyring)
	sender := &recordingSender{}
	w := NewReminderWorker(store, newMemoryLocker(), sender, nil)

	// A deleted reminder settles the job instead of burning retries.
	if err := w.Handle(context.Background(), reminderJob(t, "gone")); err != nil {
		t.Fatalf("missing reminder should not error: %v", err)
	}
	if sender.calls != 0 {
		t.Errorf("nothing should be sent for a missing reminder")
	}
}

func TestReminderSendFailureRetried(t *testing.T) {
	keyring := workerKeyring(t)
	store := newMemoryReminderStore(keyring)
	store.add(t, "r1", "592417", "flaky channel")
	sender := &recordingSender{fail: true}
	w := NewReminderWorker(store, newMemoryLocker(), sender, nil)

	if err := w.Handle(context.Background(), reminderJob(t, "r1")); err == nil {
		t.Fatal("send failure must surface so the lane can retry")
	}

	r, _ := store.Get(context.Background(), "r1")
	if r.Executed {
		t.Error("executed flag must stay false after a failed send")
	}

	// The lock must have been released so the retry can proceed.
	sender.fail = false
	if err := w.Handle(context.Background(), reminderJob(t, "r1")); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected the retry to deliver once, got %d", len(sender.sent))
	}
}

func TestReminderTamperedEnvelopeMarkedFailed(t *testing.T) {
	keyring := workerKeyring(t)
	store := newMemoryReminderStore(keyring)
	store.add(t, "r1", "592417", "never arrives")
	store.corruptBody("r1")
	sender := &recordingSender{}
	w := NewReminderWorker(store, newMemoryLocker(), sender, nil)

	// An unreadable envelope settles the job: retrying cannot make the
	// ciphertext authenticate.
	if err := w.Handle(context.Background(), reminderJob(t, "r1")); err != nil {
		t.Fatalf("tampered reminder must settle, not retry: %v", err)
	}
	if sender.calls != 0 {
		t.Errorf("nothing should be sent for a tampered reminder, got %d sends", sender.calls)
	}

	r, _ := store.Get(context.Background(), "r1")
	if !r.Failed {
		t.Fatal("tampered reminder not marked failed")
	}
	if r.FailureReason == "" {
		t.Error("failure reason not recorded")
	}

	// A later delivery of the same reminder, as the catch-up scan could have
	// produced before the row was marked, is a no-op.
	if err := w.Handle(context.Background(), reminderJob(t, "r1")); err != nil {
		t.Fatal(err)
	}
	if sender.calls != 0 {
		t.Errorf("failed reminder must never be sent, got %d sends", sender.calls)
	}
}

func TestReminderUndeliverableGivesUpAfterCap(t *testing.T) {
	keyring := workerKeyring(t)
	store := newMemoryReminderStore(keyring)
	store.add(t, "r1", "592417", "blocked recipient")
	sender := &recordingSender{fail: true}
	w := NewReminderWorker(store, newMemoryLocker(), sender, nil)

	// Every attempt before the cap surfaces the error so the lane retries.
	for i := 1; i < maxDeliveryAttempts; i++ {
		if err := w.Handle(context.Background(), reminderJob(t, "r1")); err == nil {
			t.Fatalf("attempt %d should surface the send failure", i)
		}
	}

	// The capth attempt settles the job and fails the row, so the catch-up
	// scan stops producing fresh retry budgets for it.
	if err := w.Handle(context.Background(), reminderJob(t, "r1")); err != nil {
		t.Fatalf("final attempt must settle, not retry: %v", err)
	}

	r, _ := store.Get(context.Background(), "r1")
	if !r.Failed {
		t.Fatal("undeliverable reminder not marked failed")
	}
	if r.Executed {
		t.Error("executed flag must stay false for an undeliverable reminder")
	}
	if r.DeliveryAttempts != maxDeliveryAttempts {
		t.Errorf("recorded %d attempts, want %d", r.DeliveryAttempts, maxDeliveryAttempts)
	}

	// Even if a stale job for it still exists, nothing more goes out.
	sender.fail = false
	if err := w.Handle(context.Background(), reminderJob(t, "r1")); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("failed reminder must never be delivered, got %d sends", len(sender.sent))
	}
}
