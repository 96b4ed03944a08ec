package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/authkit"
	gocache "github.com/patrickmn/go-cache"
)

type loginTxEntry struct {
	userID    string
	expiresAt time.Time
}

// LoginTxStore is an in-process authkit.LoginTxStore backed by go-cache.
// Entries carry their own deadline so an injected clock decides expiry;
// the cache janitor only reclaims memory.
type LoginTxStore struct {
	mu    sync.Mutex
	cache *gocache.Cache
	now   func() time.Time
}

// NewLoginTxStore returns a store whose janitor runs every cleanup interval.
func NewLoginTxStore(cleanup time.Duration) *LoginTxStore {
	if cleanup <= 0 {
		cleanup = time.Minute
	}
	return &LoginTxStore{
		cache: gocache.New(gocache.NoExpiration, cleanup),
		now:   time.Now,
	}
}

// WithClock replaces the clock used for expiry checks.
func (s *LoginTxStore) WithClock(now func() time.Time) *LoginTxStore {
	s.now = now
	return s
}

func (s *LoginTxStore) Put(_ context.Context, loginTx, userID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	// the cache entry outlives the deadline a little so Resolve reports expiry itself
	s.cache.Set(loginTx, loginTxEntry{userID: userID, expiresAt: s.now().Add(ttl)}, ttl+time.Minute)
	return nil
}

func (s *LoginTxStore) Resolve(_ context.Context, loginTx string) (string, error) {
	v, ok := s.cache.Get(loginTx)
	if !ok {
		return "", authkit.ErrLoginTxNotFound
	}
	entry := v.(loginTxEntry)
	if !s.now().Before(entry.expiresAt) {
		s.cache.Delete(loginTx)
		return "", authkit.ErrLoginTxNotFound
	}
	return entry.userID, nil
}

func (s *LoginTxStore) Consume(_ context.Context, loginTx string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(loginTx)
	if !ok {
		return false, nil
	}
	s.cache.Delete(loginTx)
	return s.now().Before(v.(loginTxEntry).expiresAt), nil
}
