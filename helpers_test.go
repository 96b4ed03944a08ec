package authkit_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/password"
	"github.com/MrEthical07/authkit/secrets"
	"github.com/MrEthical07/authkit/store/memory"
	"github.com/MrEthical07/authkit/totp"
	"github.com/pquerna/otp"
)

const testPassword = "correct horse battery"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	engine *authkit.Engine
	stores *memory.Stores
	clock  *testClock
	user   *authkit.User
	sink   *authkit.ChannelSink
}

func testConfig() authkit.Config {
	cfg := authkit.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.KeyLength = 16
	cfg.Token.DefaultAudience = "api"
	cfg.Token.DefaultScope = "default"
	return cfg
}

func ecKeyPEM(t *testing.T) string {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

type harnessOption func(*authkit.Builder, *memory.Stores)

func withRefreshRepo(wrap func(*memory.RefreshTokenStore) authkit.RefreshTokenRepository) harnessOption {
	return func(b *authkit.Builder, s *memory.Stores) {
		b.WithRefreshTokenRepository(wrap(s.Refresh))
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = true

	clock := newTestClock()
	stores := memory.New().WithClock(clock.Now)
	sink := authkit.NewChannelSink(1024)

	b := stores.Apply(authkit.New().WithConfig(cfg)).
		WithKeySource(secrets.MapSource{"ec-private-key": ecKeyPEM(t)}).
		WithClock(clock.Now).
		WithAuditSink(sink)
	for _, opt := range opts {
		opt(b, stores)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	hasher, err := password.NewArgon2(password.Config{
		Memory: cfg.Password.Memory, Time: cfg.Password.Time, Parallelism: 1,
		SaltLength: 16, KeyLength: 16, MinPasswordBytes: 8,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user, err := stores.Users.Add(authkit.User{ID: "u1", Username: "alice", PasswordHash: hash, Key: "key-u1"})
	if err != nil {
		t.Fatalf("add user: %v", err)
	}

	return &harness{engine: engine, stores: stores, clock: clock, user: user, sink: sink}
}

func (h *harness) login(t *testing.T) *authkit.IssuedSession {
	t.Helper()
	res, err := h.engine.Login(context.Background(), "alice", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !res.Authenticated() {
		t.Fatalf("expected direct session, got %+v", res)
	}
	return res.Session
}

// enrollTOTP sets up and activates TOTP for u1 and returns the shared secret.
func (h *harness) enrollTOTP(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	url, err := h.engine.SetupTOTP(ctx, h.user.ID, h.user.Username, "Svc")
	if err != nil {
		t.Fatalf("setup totp: %v", err)
	}
	secret := secretFromURL(t, url)
	if err := h.engine.ActivateTOTP(ctx, h.user.ID, h.code(t, secret)); err != nil {
		t.Fatalf("activate totp: %v", err)
	}
	// the activation step is spent; later checks need the next one
	h.clock.Advance(30 * time.Second)
	return secret
}

func (h *harness) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.NewManager(totp.DefaultConfig()).Code(secret, h.clock.Now())
	if err != nil {
		t.Fatalf("totp code: %v", err)
	}
	return code
}

func secretFromURL(t *testing.T, url string) string {
	t.Helper()
	key, err := otp.NewKeyFromURL(url)
	if err != nil {
		t.Fatalf("parse otpauth url: %v", err)
	}
	return key.Secret()
}
