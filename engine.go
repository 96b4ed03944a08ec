package authkit

import (
	"context"
	"time"

	"github.com/MrEthical07/authkit/jwt"
	"github.com/MrEthical07/authkit/totp"
	"go.uber.org/zap"
)

// Engine runs credential verification, token issuance and rotation, and the
// MFA state machine on top of pluggable repositories. It is safe for
// concurrent use; per-record atomicity is provided by the repositories.
type Engine struct {
	config    Config
	users     UserRepository
	refresh   RefreshTokenRepository
	factors   MFAFactorRepository
	recovery  RecoveryCodeRepository
	loginTxs  LoginTxStore
	signer    TokenSigner
	hasher    PasswordHasher
	sealer    FactorSecretSealer
	totp      *totp.Manager
	audit     *auditQueue
	metrics   *Metrics
	log       *zap.Logger
	now       func() time.Time
	dummyHash string
}

// Close flushes queued audit events to the sink.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// JWKS returns the public verification keys when the signer can publish them.
// Custom signers and HS256 yield an empty set.
func (e *Engine) JWKS(ctx context.Context) (*jwt.JWKSet, error) {
	publisher, ok := e.signer.(interface {
		JWKS(context.Context) (*jwt.JWKSet, error)
	})
	if !ok {
		return &jwt.JWKSet{Keys: []jwt.JWK{}}, nil
	}
	set, err := publisher.JWKS(ctx)
	if err != nil {
		e.log.Error("jwks export failed", zap.Error(err))
		return nil, ErrTokenSigning
	}
	return set, nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}
