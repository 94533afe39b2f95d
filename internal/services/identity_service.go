package services

import (
	"context"
	"log"
	"time"

	"talkasaurus/internal/crypto"
	"talkasaurus/internal/models"
	"talkasaurus/internal/queue"
)

// How long an existence marker is trusted before the next resolve goes back
// to storage.
const existenceMarkerTTL = 3 * time.Hour

// UserRegistrar is the slice of the user service the identity boundary needs.
type UserRegistrar interface {
	FindOrCreate(ctx context.Context, pseudonymID, rawID string) (*models.User, bool, error)
}

// IdentityService resolves raw external ids to pseudonymous user rows.
// The raw id never reaches storage or logs in the clear; everything past this
// boundary works on the pseudonym.
type IdentityService struct {
	keyring *crypto.Keyring
	users   UserRegistrar
	cache   ExistenceCache
	jobs    *queue.Queue
}

// NewIdentityService creates a new identity service
func NewIdentityService(keyring *crypto.Keyring, users UserRegistrar, cache ExistenceCache, jobs *queue.Queue) *IdentityService {
	return &IdentityService{
		keyring: keyring,
		users:   users,
		cache:   cache,
		jobs:    jobs,
	}
}

// Resolve maps a raw external id to its pseudonym and makes sure a user row
// exists for it. On a cache hit the storage round trip is skipped entirely.
// An activity update is enqueued best-effort either way; a queue failure is
// logged and never blocks the caller.
func (s *IdentityService) Resolve(ctx context.Context, rawID string) (string, error) {
	pseudonym := s.keyring.Pseudonymize(rawID)

	known, err := s.cache.Exists(ctx, pseudonym)
	if err != nil {
		// Cache trouble degrades to a storage hit, not a failure.
		log.Printf("⚠️ Existence cache lookup failed: %v", err)
		known = false
	}

	if !known {
		if _, _, err := s.users.FindOrCreate(ctx, pseudonym, rawID); err != nil {
			return "", err
		}
		if err := s.cache.Mark(ctx, pseudonym, existenceMarkerTTL); err != nil {
			log.Printf("⚠️ Existence cache mark failed: %v", err)
		}
	}

	s.enqueueActivity(ctx, pseudonym)
	return pseudonym, nil
}

func (s *IdentityService) enqueueActivity(ctx context.Context, pseudonym string) {
	if s.jobs == nil {
		return
	}
	payload := queue.ActivityUpdatePayload{
		Pseudonym:   pseudonym,
		TimestampMs: time.Now().UnixMilli(),
	}
	if _, err := s.jobs.Enqueue(ctx, queue.LaneActivityUpdate, payload); err != nil {
		log.Printf("⚠️ Failed to enqueue activity update for %s: %v", pseudonym, err)
	}
}
