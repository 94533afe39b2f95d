package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"talkasaurus/internal/logging"

	"github.com/google/uuid"
)

// Outcome labels reported to the Observer.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRetried   = "retried"
	OutcomeExhausted = "exhausted"
)

// Observer receives job outcome notifications, one call per terminal or retry
// transition.
type Observer interface {
	JobDone(lane, outcome string)
}

// Handler executes one claimed job. Returning an error triggers the lane's
// retry policy; returning nil completes the job. Handlers run under
// at-least-once semantics and must be idempotent.
type Handler func(ctx context.Context, job *Job) error

type consumer struct {
	lane        Lane
	concurrency int
	handler     Handler
}

// Queue is the durable delivery backbone: named lanes of persisted jobs with
// delay, retry/backoff and per-lane retention policy. One consumer pool per
// lane; claim-once semantics come from the store.
type Queue struct {
	store    Store
	policies map[Lane]Policy
	observer Observer

	pollInterval      time.Duration
	visibilityTimeout time.Duration

	mu        sync.Mutex
	consumers []consumer
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithObserver wires outcome metrics.
func WithObserver(o Observer) Option {
	return func(q *Queue) { q.observer = o }
}

// WithPollInterval overrides how often idle consumers look for work.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) { q.pollInterval = d }
}

// WithVisibilityTimeout overrides how long a claim may stay active before the
// reclaim sweep treats its consumer as dead.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(q *Queue) { q.visibilityTimeout = d }
}

// WithPolicies replaces the default lane policies.
func WithPolicies(p map[Lane]Policy) Option {
	return func(q *Queue) { q.policies = p }
}

// New creates a queue over the given store with default lane policies.
func New(store Store, opts ...Option) *Queue {
	q := &Queue{
		store:             store,
		policies:          DefaultPolicies(),
		pollInterval:      time.Second,
		visibilityTimeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// EnqueueOption configures a single enqueue.
type EnqueueOption func(*Job)

// WithDelay defers eligibility by d.
func WithDelay(d time.Duration) EnqueueOption {
	return func(j *Job) { j.NotBefore = time.Now().Add(d) }
}

// WithNotBefore defers eligibility until an absolute time.
func WithNotBefore(t time.Time) EnqueueOption {
	return func(j *Job) { j.NotBefore = t }
}

// Enqueue persists one job on a lane. The payload is JSON-serialized. Returns
// the job id.
func (q *Queue) Enqueue(ctx context.Context, lane Lane, payload any, opts ...EnqueueOption) (string, error) {
	if _, ok := q.policies[lane]; !ok {
		return "", fmt.Errorf("unknown lane %q", lane)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	now := time.Now()
	job := &Job{
		ID:        uuid.NewString(),
		Lane:      lane,
		Payload:   data,
		NotBefore: now,
		State:     StatePending,
		CreatedAt: now,
	}
	for _, opt := range opts {
		opt(job)
	}

	if err := q.store.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("failed to enqueue %s job: %w", lane, err)
	}
	return job.ID, nil
}

// Consume registers a handler with a fixed number of concurrent consumers for
// a lane. Must be called before Start.
func (q *Queue) Consume(lane Lane, concurrency int, handler Handler) {
	if concurrency < 1 {
		concurrency = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.consumers = append(q.consumers, consumer{lane: lane, concurrency: concurrency, handler: handler})
}

// Start launches the consumer pools and the stale-claim reclaim sweep.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	for _, c := range q.consumers {
		for i := 0; i < c.concurrency; i++ {
			q.wg.Add(1)
			go q.run(ctx, c)
		}
	}

	q.wg.Add(1)
	go q.sweep(ctx)

	slog.Info("queue started", "lanes", len(q.consumers))
}

// Stop halts claiming and waits for in-flight handlers to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	cancel := q.cancel
	q.mu.Unlock()

	cancel()
	q.wg.Wait()
	slog.Info("queue stopped")
}

// run is one consumer goroutine: claim, execute, settle, repeat.
func (q *Queue) run(ctx context.Context, c consumer) {
	defer q.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := q.store.ClaimNext(ctx, c.lane, time.Now())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("claim failed", "lane", c.lane, "error", err)
			q.idle(ctx)
			continue
		}
		if job == nil {
			q.idle(ctx)
			continue
		}

		q.execute(ctx, c, job)
	}
}

// execute runs the handler for one claimed job and settles the record
// according to the lane policy. Settlement uses a background context so a
// shutdown mid-job still records the result.
func (q *Queue) execute(ctx context.Context, c consumer, job *Job) {
	err := c.handler(ctx, job)

	settleCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	policy := q.policies[c.lane]
	jobLog := logging.WithJob(string(c.lane), job.ID)

	if err == nil {
		if cerr := q.store.Complete(settleCtx, job.ID); cerr != nil {
			jobLog.Error("failed to complete job", "error", cerr)
		}
		q.report(c.lane, OutcomeSucceeded)
		return
	}

	if job.Attempts < policy.MaxAttempts {
		delay := backoff(policy.Backoff, job.Attempts)
		jobLog.Warn("job failed, retrying", "attempt", job.Attempts, "retry_in", delay, "error", err)
		if rerr := q.store.Retry(settleCtx, job.ID, time.Now().Add(delay), err.Error()); rerr != nil {
			jobLog.Error("failed to schedule retry", "error", rerr)
		}
		q.report(c.lane, OutcomeRetried)
		return
	}

	jobLog.Error("job exhausted", "attempts", job.Attempts, "retained", policy.RetainOnFailure, "error", err)
	if xerr := q.store.Exhaust(settleCtx, job.ID, policy.RetainOnFailure, err.Error()); xerr != nil {
		jobLog.Error("failed to exhaust job", "error", xerr)
	}
	q.report(c.lane, OutcomeExhausted)
}

// idle sleeps one poll interval with jitter, returning early on shutdown.
func (q *Queue) idle(ctx context.Context) {
	jitter := time.Duration(rand.Int63n(int64(q.pollInterval) / 4))
	select {
	case <-ctx.Done():
	case <-time.After(q.pollInterval + jitter):
	}
}

// sweep periodically returns stale claims to pending so work orphaned by a
// crashed consumer is redelivered.
func (q *Queue) sweep(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.store.ReclaimStale(ctx, time.Now().Add(-q.visibilityTimeout))
			if err != nil {
				slog.Error("stale claim sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Warn("reclaimed stale jobs", "count", n)
			}
		}
	}
}

func (q *Queue) report(lane Lane, outcome string) {
	if q.observer != nil {
		q.observer.JobDone(string(lane), outcome)
	}
}

// backoff doubles the base delay per completed attempt.
func backoff(base time.Duration, attempts int) time.Duration {
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}
