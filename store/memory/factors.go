package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/google/uuid"
)

// FactorStore is an in-memory authkit.MFAFactorRepository.
type FactorStore struct {
	mu      sync.Mutex
	factors map[string]*authkit.MFAFactor
	seq     int64
	order   map[string]int64
	now     func() time.Time
}

func NewFactorStore() *FactorStore {
	return &FactorStore{
		factors: make(map[string]*authkit.MFAFactor),
		order:   make(map[string]int64),
		now:     time.Now,
	}
}

func (s *FactorStore) CreatePending(_ context.Context, userID string, factorType authkit.FactorType, secret string) (*authkit.MFAFactor, error) {
	now := s.now().UTC()
	f := &authkit.MFAFactor{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      factorType,
		Secret:    secret,
		Status:    authkit.FactorPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.factors[f.ID] = f
	s.order[f.ID] = s.seq
	out := *f
	return &out, nil
}

// newest returns the most recently created factor matching the filter.
// Creation order is tracked by sequence so equal timestamps still resolve.
func (s *FactorStore) newest(userID string, factorType authkit.FactorType, status authkit.FactorStatus) *authkit.MFAFactor {
	var (
		best    *authkit.MFAFactor
		bestSeq int64
	)
	for id, f := range s.factors {
		if f.UserID != userID || f.Type != factorType || f.Status != status {
			continue
		}
		if seq := s.order[id]; best == nil || seq > bestSeq {
			best, bestSeq = f, seq
		}
	}
	return best
}

func (s *FactorStore) GetPending(_ context.Context, userID string, factorType authkit.FactorType) (*authkit.MFAFactor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.newest(userID, factorType, authkit.FactorPending)
	if f == nil {
		return nil, nil
	}
	out := *f
	return &out, nil
}

func (s *FactorStore) ActivateFactor(_ context.Context, factorID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.factors[factorID]
	if !ok || f.Status != authkit.FactorPending {
		return false, nil
	}
	now := s.now().UTC()
	for _, other := range s.factors {
		if other.UserID == f.UserID && other.Type == f.Type && other.Status == authkit.FactorActive {
			other.Status = authkit.FactorRevoked
			other.UpdatedAt = now
		}
	}
	f.Status = authkit.FactorActive
	f.UpdatedAt = now
	return true, nil
}

func (s *FactorStore) GetActive(_ context.Context, userID string, factorType authkit.FactorType) (*authkit.MFAFactor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.newest(userID, factorType, authkit.FactorActive)
	if f == nil {
		return nil, nil
	}
	out := *f
	return &out, nil
}

func (s *FactorStore) ListByUser(_ context.Context, userID string) ([]*authkit.MFAFactor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*authkit.MFAFactor
	for _, f := range s.factors {
		if f.UserID == userID {
			c := *f
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.order[out[i].ID] < s.order[out[j].ID] })
	return out, nil
}

func (s *FactorStore) RevokeFactor(_ context.Context, factorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.factors[factorID]; ok {
		f.Status = authkit.FactorRevoked
		f.UpdatedAt = s.now().UTC()
	}
	return nil
}

func (s *FactorStore) AdvanceStep(_ context.Context, factorID string, step int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.factors[factorID]
	if !ok || step <= f.LastUsedStep {
		return false, nil
	}
	f.LastUsedStep = step
	f.UpdatedAt = s.now().UTC()
	return true, nil
}
