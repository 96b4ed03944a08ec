package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/google/uuid"
)

// RecoveryCodeStore is an in-memory authkit.RecoveryCodeRepository.
type RecoveryCodeStore struct {
	mu    sync.Mutex
	codes map[string][]*authkit.RecoveryCode
}

func NewRecoveryCodeStore() *RecoveryCodeStore {
	return &RecoveryCodeStore{codes: make(map[string][]*authkit.RecoveryCode)}
}

func (s *RecoveryCodeStore) ReplaceCodes(_ context.Context, userID string, hashes []string) error {
	now := time.Now().UTC()
	codes := make([]*authkit.RecoveryCode, 0, len(hashes))
	for _, h := range hashes {
		codes = append(codes, &authkit.RecoveryCode{
			ID:        uuid.NewString(),
			UserID:    userID,
			CodeHash:  h,
			CreatedAt: now,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[userID] = codes
	return nil
}

func (s *RecoveryCodeStore) ListUnused(_ context.Context, userID string) ([]*authkit.RecoveryCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*authkit.RecoveryCode
	for _, c := range s.codes[userID] {
		if !c.Used {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *RecoveryCodeStore) MarkUsed(_ context.Context, codeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, codes := range s.codes {
		for _, c := range codes {
			if c.ID != codeID {
				continue
			}
			if c.Used {
				return false, nil
			}
			c.Used = true
			c.UsedAt = time.Now().UTC()
			return true, nil
		}
	}
	return false, nil
}
