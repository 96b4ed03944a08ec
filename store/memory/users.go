package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/google/uuid"
)

// ErrDuplicateUsername is returned by Add for a username already present.
var ErrDuplicateUsername = errors.New("username already exists")

// UserStore is an in-memory authkit.UserRepository.
type UserStore struct {
	mu         sync.RWMutex
	byID       map[string]*authkit.User
	byUsername map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{
		byID:       make(map[string]*authkit.User),
		byUsername: make(map[string]string),
	}
}

// Add stores u, filling ID, Key and CreatedAt when empty, and returns the stored copy.
func (s *UserStore) Add(u authkit.User) (*authkit.User, error) {
	if u.Username == "" || u.PasswordHash == "" {
		return nil, errors.New("username and password hash required")
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Key == "" {
		u.Key = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byUsername[u.Username]; exists {
		return nil, ErrDuplicateUsername
	}
	stored := u
	s.byID[u.ID] = &stored
	s.byUsername[u.Username] = u.ID
	out := stored
	return &out, nil
}

func (s *UserStore) GetUserByUsername(_ context.Context, username string) (*authkit.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[username]
	if !ok {
		return nil, nil
	}
	u := *s.byID[id]
	return &u, nil
}

func (s *UserStore) GetUserByID(_ context.Context, id string) (*authkit.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}
