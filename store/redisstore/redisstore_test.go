package redisstore

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/internal"
	"github.com/MrEthical07/authkit/password"
	"github.com/MrEthical07/authkit/secrets"
	"github.com/MrEthical07/authkit/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func record(jti, userID, hash, parent string, created time.Time) *authkit.RefreshTokenRecord {
	return &authkit.RefreshTokenRecord{
		JTI:       jti,
		UserID:    userID,
		TokenHash: hash,
		ParentJTI: parent,
		CreatedAt: created,
		ExpiresAt: created.Add(time.Hour),
	}
}

func TestRefreshStoreSaveAndFind(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	s := NewRefreshTokenStore(client, "")

	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := record("j1", "u1", "h1", "", now)
	rec.Meta = map[string]string{"ip": "10.0.0.1"}
	require.NoError(t, s.Save(ctx, rec))
	assert.Error(t, s.Save(ctx, rec), "duplicate jti must fail")

	got, err := s.FindByTokenHash(ctx, "u1", "h1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "j1", got.JTI)
	assert.True(t, got.IsRoot())
	assert.True(t, got.ExpiresAt.Equal(rec.ExpiresAt))
	assert.Equal(t, "10.0.0.1", got.Meta["ip"])

	other, err := s.FindByTokenHash(ctx, "u2", "h1")
	require.NoError(t, err)
	assert.Nil(t, other, "hash lookups are scoped to the user")

	missing, err := s.FindByJTI(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRefreshStoreMarkUsedSingleWinner(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	s := NewRefreshTokenStore(client, "")
	require.NoError(t, s.Save(ctx, record("j1", "u1", "h1", "", time.Now())))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.MarkUsed(ctx, "j1")
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	ok, err := s.MarkUsed(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRefreshStoreRevoke(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	s := NewRefreshTokenStore(client, "")
	now := time.Now()
	require.NoError(t, s.Save(ctx, record("j1", "u1", "h1", "", now)))
	require.NoError(t, s.Save(ctx, record("j2", "u1", "h2", "", now)))
	require.NoError(t, s.Save(ctx, record("j3", "u2", "h3", "", now)))

	require.NoError(t, s.Revoke(ctx, "j1"))
	require.NoError(t, s.Revoke(ctx, "j1"))
	require.NoError(t, s.Revoke(ctx, "missing"))

	got, err := s.FindByTokenHash(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.Nil(t, got)
	kept, err := s.FindByJTI(ctx, "j1")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.True(t, kept.Revoked)

	ok, err := s.MarkUsed(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, ok, "revoked records cannot be used")

	n, err := s.RevokeByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	live, err := s.FindByTokenHash(ctx, "u2", "h3")
	require.NoError(t, err)
	assert.NotNil(t, live)
}

func TestRefreshStoreChildrenOrdered(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	s := NewRefreshTokenStore(client, "")
	base := time.Now()
	require.NoError(t, s.Save(ctx, record("root", "u1", "h0", "", base)))
	require.NoError(t, s.Save(ctx, record("c2", "u1", "h2", "root", base.Add(2*time.Second))))
	require.NoError(t, s.Save(ctx, record("c1", "u1", "h1", "root", base.Add(time.Second))))

	require.NoError(t, s.MarkRotated(ctx, "root", base.Add(time.Second)))
	root, err := s.FindByJTI(ctx, "root")
	require.NoError(t, err)
	assert.True(t, root.Rotated)
	assert.False(t, root.RotatedAt.IsZero())

	children, err := s.FindByParentJTI(ctx, "root")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "c1", children[0].JTI)
	assert.Equal(t, "c2", children[1].JTI)

	none, err := s.FindByParentJTI(ctx, "c2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRefreshStoreRecordsExpireWithToken(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	s := NewRefreshTokenStore(client, "")
	require.NoError(t, s.Save(ctx, record("j1", "u1", "h1", "", time.Now())))

	mr.FastForward(2 * time.Hour)
	got, err := s.FindByTokenHash(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLoginTxStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewLoginTxStore(client, "").WithClock(func() time.Time { return now })

	require.NoError(t, s.Put(ctx, "tx1", "u1", time.Minute))
	uid, err := s.Resolve(ctx, "tx1")
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	ok, err := s.Consume(ctx, "tx1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Consume(ctx, "tx1")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s.Resolve(ctx, "tx1")
	assert.ErrorIs(t, err, authkit.ErrLoginTxNotFound)
}

func TestLoginTxStoreDeadline(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewLoginTxStore(client, "").WithClock(func() time.Time { return now })

	require.NoError(t, s.Put(ctx, "tx1", "u1", time.Minute))
	require.NoError(t, s.Put(ctx, "tx2", "u1", time.Minute))

	// the key still exists in redis but the embedded deadline has passed
	now = now.Add(2 * time.Minute)
	_, err := s.Resolve(ctx, "tx1")
	assert.ErrorIs(t, err, authkit.ErrLoginTxNotFound)

	ok, err := s.Consume(ctx, "tx2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoginTxStoreBackendDown(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewLoginTxStore(client, "")
	mr.Close()

	_, err := s.Resolve(context.Background(), "tx1")
	assert.ErrorIs(t, err, ErrBackend)
}

func TestEngineReuseDetectionOnRedis(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	keyPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))

	cfg := authkit.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.KeyLength = 16

	mem := memory.New()
	refresh := NewRefreshTokenStore(client, "")
	engine, err := mem.Apply(authkit.New().WithConfig(cfg)).
		WithRefreshTokenRepository(refresh).
		WithLoginTxStore(NewLoginTxStore(client, "")).
		WithKeySource(secrets.MapSource{cfg.Token.PrivateKeyName: keyPEM}).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	hasher, err := password.NewArgon2(password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16, MinPasswordBytes: 8,
	})
	require.NoError(t, err)
	hash, err := hasher.Hash("correct horse battery")
	require.NoError(t, err)
	_, err = mem.Users.Add(authkit.User{ID: "u1", Username: "alice", PasswordHash: hash})
	require.NoError(t, err)

	res, err := engine.Login(ctx, "alice", "correct horse battery")
	require.NoError(t, err)
	first := res.Session

	second, err := engine.Rotate(ctx, "u1", first.RefreshToken)
	require.NoError(t, err)

	_, err = engine.Rotate(ctx, "u1", first.RefreshToken)
	assert.ErrorIs(t, err, authkit.ErrReuseDetected)

	_, err = engine.Rotate(ctx, "u1", second.RefreshToken)
	assert.ErrorIs(t, err, authkit.ErrInvalidToken)

	rec, err := refresh.FindByJTI(ctx, mustJTI(t, refresh, "u1", first.RefreshToken))
	require.NoError(t, err)
	assert.True(t, rec.Used)
	assert.True(t, rec.Revoked)
}

func mustJTI(t *testing.T, s *RefreshTokenStore, userID, token string) string {
	t.Helper()
	jti, err := s.redis.Get(context.Background(), s.hashKey(userID, internal.HashToken(token))).Result()
	require.NoError(t, err)
	return jti
}
