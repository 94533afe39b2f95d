package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-process arena of job records. It provides
// the same claim-once semantics as the Mongo store and is used by tests and
// by single-instance deployments that can tolerate losing queued work on
// restart.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Enqueue(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *MemoryStore) ClaimNext(_ context.Context, lane Lane, now time.Time) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Job
	for _, j := range s.jobs {
		if j.Lane != lane || j.State != StatePending || j.NotBefore.After(now) {
			continue
		}
		if best == nil || j.NotBefore.Before(best.NotBefore) {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}

	best.State = StateActive
	best.ClaimedAt = now
	best.Attempts++

	clone := *best
	return &clone, nil
}

func (s *MemoryStore) Complete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) Retry(_ context.Context, id string, notBefore time.Time, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.State = StatePending
	j.NotBefore = notBefore
	j.LastError = lastErr
	j.ClaimedAt = time.Time{}
	return nil
}

func (s *MemoryStore) Exhaust(_ context.Context, id string, retain bool, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if !retain {
		delete(s.jobs, id)
		return nil
	}
	j.State = StateExhausted
	j.LastError = lastErr
	return nil
}

func (s *MemoryStore) ReclaimStale(_ context.Context, deadline time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reclaimed := 0
	for _, j := range s.jobs {
		if j.State == StateActive && j.ClaimedAt.Before(deadline) {
			j.State = StatePending
			j.ClaimedAt = time.Time{}
			reclaimed++
		}
	}
	return reclaimed, nil
}

// Snapshot returns a copy of every record, for inspection in tests and the
// admin analytics endpoint.
func (s *MemoryStore) Snapshot() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out
}
