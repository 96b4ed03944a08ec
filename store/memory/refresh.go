package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/authkit"
)

// RefreshTokenStore is an in-memory authkit.RefreshTokenRepository. Revoked
// records are kept and flagged so token chains stay inspectable.
type RefreshTokenStore struct {
	mu     sync.Mutex
	byJTI  map[string]*authkit.RefreshTokenRecord
	byHash map[string]string
}

func NewRefreshTokenStore() *RefreshTokenStore {
	return &RefreshTokenStore{
		byJTI:  make(map[string]*authkit.RefreshTokenRecord),
		byHash: make(map[string]string),
	}
}

func hashKey(userID, hash string) string {
	return userID + "\x00" + hash
}

func (s *RefreshTokenStore) Save(_ context.Context, rec *authkit.RefreshTokenRecord) error {
	if rec == nil || rec.JTI == "" || rec.UserID == "" || rec.TokenHash == "" {
		return errors.New("incomplete refresh token record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byJTI[rec.JTI]; exists {
		return errors.New("duplicate jti")
	}
	s.byJTI[rec.JTI] = cloneRecord(rec)
	s.byHash[hashKey(rec.UserID, rec.TokenHash)] = rec.JTI
	return nil
}

func (s *RefreshTokenStore) FindByTokenHash(_ context.Context, userID, tokenHash string) (*authkit.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jti, ok := s.byHash[hashKey(userID, tokenHash)]
	if !ok {
		return nil, nil
	}
	rec := s.byJTI[jti]
	if rec == nil || rec.Revoked {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (s *RefreshTokenStore) MarkUsed(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byJTI[jti]
	if !ok || rec.Used || rec.Revoked {
		return false, nil
	}
	rec.Used = true
	return true, nil
}

func (s *RefreshTokenStore) MarkRotated(_ context.Context, jti string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.byJTI[jti]; ok {
		rec.Rotated = true
		rec.RotatedAt = at
	}
	return nil
}

func (s *RefreshTokenStore) Revoke(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.byJTI[jti]; ok {
		rec.Revoked = true
	}
	return nil
}

func (s *RefreshTokenStore) RevokeByUserID(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, rec := range s.byJTI {
		if rec.UserID == userID && !rec.Revoked {
			rec.Revoked = true
			n++
		}
	}
	return n, nil
}

func (s *RefreshTokenStore) FindByJTI(_ context.Context, jti string) (*authkit.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byJTI[jti]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (s *RefreshTokenStore) FindByParentJTI(_ context.Context, parentJTI string) ([]*authkit.RefreshTokenRecord, error) {
	if parentJTI == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*authkit.RefreshTokenRecord
	for _, rec := range s.byJTI {
		if rec.ParentJTI == parentJTI {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Len returns the number of stored records, revoked ones included.
func (s *RefreshTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byJTI)
}

func cloneRecord(rec *authkit.RefreshTokenRecord) *authkit.RefreshTokenRecord {
	c := *rec
	if rec.Meta != nil {
		c.Meta = make(map[string]string, len(rec.Meta))
		for k, v := range rec.Meta {
			c.Meta[k] = v
		}
	}
	return &c
}
