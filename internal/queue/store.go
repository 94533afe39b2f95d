package queue

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned by store mutations aimed at a job id that no
// longer exists (already completed and removed, for example).
var ErrJobNotFound = errors.New("job not found")

// State of a persisted job record.
type State string

const (
	// StatePending means the job is waiting to become eligible and claimed.
	StatePending State = "pending"
	// StateActive means a consumer has claimed the job and is executing it.
	StateActive State = "active"
	// StateExhausted means all attempts failed and the lane policy retained
	// the record for inspection.
	StateExhausted State = "exhausted"
)

// Job is one persisted unit of deferred work. Records live in an arena indexed
// by id; consumers claim by id and never hold live references across the
// store boundary.
type Job struct {
	ID        string    `bson:"_id"`
	Lane      Lane      `bson:"lane"`
	Payload   []byte    `bson:"payload"`
	NotBefore time.Time `bson:"notBefore"`
	Attempts  int       `bson:"attempts"`
	State     State     `bson:"state"`
	ClaimedAt time.Time `bson:"claimedAt,omitempty"`
	LastError string    `bson:"lastError,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
}

// Store is the durable arena of job records. Implementations must make
// ClaimNext atomic: no two concurrent consumers may ever receive the same job
// instance.
type Store interface {
	// Enqueue persists a new pending job.
	Enqueue(ctx context.Context, job *Job) error

	// ClaimNext atomically claims the eligible pending job with the earliest
	// notBefore in the lane (eligible means notBefore <= now). The claim
	// increments the attempt counter. Returns (nil, nil) when nothing is
	// eligible.
	ClaimNext(ctx context.Context, lane Lane, now time.Time) (*Job, error)

	// Complete retires a successfully handled job, removing its record.
	Complete(ctx context.Context, id string) error

	// Retry returns a claimed job to pending with a new eligibility time.
	Retry(ctx context.Context, id string, notBefore time.Time, lastErr string) error

	// Exhaust retires a job whose attempts are spent. When retain is true the
	// record is kept in StateExhausted for inspection; otherwise it is
	// dropped.
	Exhaust(ctx context.Context, id string, retain bool, lastErr string) error

	// ReclaimStale returns active jobs claimed before the deadline to pending,
	// recovering work orphaned by a crashed consumer. Reports how many were
	// reclaimed.
	ReclaimStale(ctx context.Context, deadline time.Time) (int, error)
}
