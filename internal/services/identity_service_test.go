package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"talkasaurus/internal/crypto"
	"talkasaurus/internal/models"
)

type fakeRegistrar struct {
	mu    sync.Mutex
	calls int
	rows  map[string]*models.User
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{rows: make(map[string]*models.User)}
}

func (f *fakeRegistrar) FindOrCreate(_ context.Context, pseudonymID, rawID string) (*models.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if u, ok := f.rows[pseudonymID]; ok {
		return u, false, nil
	}
	u := &models.User{PseudonymID: pseudonymID, CreatedAt: time.Now().UnixMilli()}
	f.rows[pseudonymID] = u
	return u, true, nil
}

func testKeyring(t *testing.T) *crypto.Keyring {
	t.Helper()
	k, err := crypto.NewKeyring(
		[]string{"identity-secret-gen0"},
		[]string{"envelope-secret-gen0"},
		0,
	)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func TestResolveCreatesRowOnce(t *testing.T) {
	keyring := testKeyring(t)
	registrar := newFakeRegistrar()
	cache := NewMemoryExistenceCache(time.Hour)
	svc := NewIdentityService(keyring, registrar, cache, nil)

	p1, err := svc.Resolve(context.Background(), "592417")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := svc.Resolve(context.Background(), "592417")
	if err != nil {
		t.Fatal(err)
	}

	if p1 != p2 {
		t.Errorf("same raw id resolved to different pseudonyms: %s vs %s", p1, p2)
	}
	if p1 == "592417" {
		t.Error("pseudonym must not equal the raw id")
	}
	if len(registrar.rows) != 1 {
		t.Errorf("expected 1 user row, got %d", len(registrar.rows))
	}
}

func TestResolveCacheHitSkipsStorage(t *testing.T) {
	keyring := testKeyring(t)
	registrar := newFakeRegistrar()
	cache := NewMemoryExistenceCache(time.Hour)
	svc := NewIdentityService(keyring, registrar, cache, nil)

	for i := 0; i < 5; i++ {
		if _, err := svc.Resolve(context.Background(), "592417"); err != nil {
			t.Fatal(err)
		}
	}

	// First resolve populates the marker; the rest must not reach storage.
	if registrar.calls != 1 {
		t.Errorf("expected 1 storage call, got %d", registrar.calls)
	}
}

func TestResolveConcurrent(t *testing.T) {
	keyring := testKeyring(t)
	registrar := newFakeRegistrar()
	cache := NewMemoryExistenceCache(time.Hour)
	svc := NewIdentityService(keyring, registrar, cache, nil)

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := svc.Resolve(context.Background(), "592417")
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range results {
		if p != results[0] {
			t.Fatalf("concurrent resolves disagree: %s vs %s", p, results[0])
		}
	}
	// Find-or-create is idempotent, so racing resolvers still end up with one
	// row no matter how many of them missed the cache.
	if len(registrar.rows) != 1 {
		t.Errorf("expected 1 user row after concurrent resolves, got %d", len(registrar.rows))
	}
}

func TestResolveDistinctUsers(t *testing.T) {
	keyring := testKeyring(t)
	registrar := newFakeRegistrar()
	cache := NewMemoryExistenceCache(time.Hour)
	svc := NewIdentityService(keyring, registrar, cache, nil)

	p1, err := svc.Resolve(context.Background(), "592417")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := svc.Resolve(context.Background(), "592418")
	if err != nil {
		t.Fatal(err)
	}

	if p1 == p2 {
		t.Error("distinct raw ids must map to distinct pseudonyms")
	}
	if len(registrar.rows) != 2 {
		t.Errorf("expected 2 user rows, got %d", len(registrar.rows))
	}
}
