package memory

import (
	"time"

	"github.com/MrEthical07/authkit"
)

// Stores bundles one of each in-memory store.
type Stores struct {
	Users    *UserStore
	Refresh  *RefreshTokenStore
	Factors  *FactorStore
	Recovery *RecoveryCodeStore
	LoginTxs *LoginTxStore
}

func New() *Stores {
	return &Stores{
		Users:    NewUserStore(),
		Refresh:  NewRefreshTokenStore(),
		Factors:  NewFactorStore(),
		Recovery: NewRecoveryCodeStore(),
		LoginTxs: NewLoginTxStore(time.Minute),
	}
}

// WithClock points every clock-aware store at now.
func (s *Stores) WithClock(now func() time.Time) *Stores {
	s.Factors.now = now
	s.LoginTxs.now = now
	return s
}

// Apply registers all stores on b.
func (s *Stores) Apply(b *authkit.Builder) *authkit.Builder {
	return b.
		WithUserRepository(s.Users).
		WithRefreshTokenRepository(s.Refresh).
		WithMFAFactorRepository(s.Factors).
		WithRecoveryCodeRepository(s.Recovery).
		WithLoginTxStore(s.LoginTxs)
}
