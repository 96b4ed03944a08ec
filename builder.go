package authkit

import (
	"errors"
	"time"

	"github.com/MrEthical07/authkit/jwt"
	"github.com/MrEthical07/authkit/password"
	"github.com/MrEthical07/authkit/totp"
	"github.com/pquerna/otp"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config

	users     UserRepository
	refresh   RefreshTokenRepository
	factors   MFAFactorRepository
	recovery  RecoveryCodeRepository
	loginTxs  LoginTxStore
	keySource jwt.KeySource
	signer    TokenSigner
	hasher    PasswordHasher
	sealer    FactorSecretSealer
	auditSink AuditSink
	logger    *zap.Logger
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

func (b *Builder) WithUserRepository(r UserRepository) *Builder {
	b.users = r
	return b
}

func (b *Builder) WithRefreshTokenRepository(r RefreshTokenRepository) *Builder {
	b.refresh = r
	return b
}

func (b *Builder) WithMFAFactorRepository(r MFAFactorRepository) *Builder {
	b.factors = r
	return b
}

func (b *Builder) WithRecoveryCodeRepository(r RecoveryCodeRepository) *Builder {
	b.recovery = r
	return b
}

func (b *Builder) WithLoginTxStore(s LoginTxStore) *Builder {
	b.loginTxs = s
	return b
}

// WithKeySource sets where the access token signing key is read from. It is
// ignored when WithTokenSigner is used.
func (b *Builder) WithKeySource(src jwt.KeySource) *Builder {
	b.keySource = src
	return b
}

// WithTokenSigner replaces the built-in jwt.Manager.
func (b *Builder) WithTokenSigner(s TokenSigner) *Builder {
	b.signer = s
	return b
}

// WithPasswordHasher replaces the Argon2id hasher built from Config.Password.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithSecretSealer encrypts MFA secrets before they reach the factor repository.
func (b *Builder) WithSecretSealer(s FactorSecretSealer) *Builder {
	b.sealer = s
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time.Now for expiry decisions, TOTP steps and token stamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and collaborators and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch {
	case b.users == nil:
		return nil, errors.New("user repository required")
	case b.refresh == nil:
		return nil, errors.New("refresh token repository required")
	case b.factors == nil:
		return nil, errors.New("mfa factor repository required")
	case b.recovery == nil:
		return nil, errors.New("recovery code repository required")
	case b.loginTxs == nil:
		return nil, errors.New("login transaction store required")
	case b.signer == nil && b.keySource == nil:
		return nil, errors.New("key source or token signer required")
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}
	log := b.logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := &Engine{
		config:   cfg,
		users:    b.users,
		refresh:  b.refresh,
		factors:  b.factors,
		recovery: b.recovery,
		loginTxs: b.loginTxs,
		signer:   b.signer,
		hasher:   b.hasher,
		sealer:   b.sealer,
		log:      log.Named("authkit"),
		now:      now,
	}

	// -------- TOKEN SIGNER --------
	if engine.signer == nil {
		jc := cfg.jwtConfig()
		jc.Now = now
		jm, err := jwt.NewManager(jc, b.keySource)
		if err != nil {
			return nil, err
		}
		engine.signer = jm
	}

	// -------- PASSWORD HASHER --------
	if engine.hasher == nil {
		ph, err := password.NewArgon2(cfg.HasherConfig())
		if err != nil {
			return nil, err
		}
		engine.hasher = ph
	}
	dummy, err := engine.hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}
	engine.dummyHash = dummy

	if engine.sealer == nil {
		engine.sealer = plainSealer{}
	}

	digits := otp.DigitsSix
	if cfg.MFA.Digits == 8 {
		digits = otp.DigitsEight
	}
	engine.totp = totp.NewManager(totp.Config{
		Period:     cfg.MFA.Period,
		Skew:       cfg.MFA.Skew,
		Digits:     digits,
		Algorithm:  otp.AlgorithmSHA1,
		SecretSize: cfg.MFA.SecretSize,
	})

	engine.metrics = NewMetrics(cfg.Metrics)
	engine.audit = newAuditQueue(cfg.Audit, b.auditSink, log)

	b.built = true

	return engine, nil
}
