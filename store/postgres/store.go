package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/store/postgres/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig tunes the connection pool. Zero values keep pgxpool defaults.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store owns the pool shared by every repository in this package.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time

	Users    *UserStore
	Refresh  *RefreshTokenStore
	Factors  *FactorStore
	Recovery *RecoveryCodeStore
	LoginTxs *LoginTxStore
}

// Open connects to dsn and pings the server.
func Open(ctx context.Context, dsn string, cfg PoolConfig) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
		pcfg.MaxConnIdleTime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return NewFromPool(pool), nil
}

// NewFromPool wraps an existing pool. Close still closes it.
func NewFromPool(pool *pgxpool.Pool) *Store {
	s := &Store{pool: pool, now: time.Now}
	s.Users = &UserStore{pool: pool}
	s.Refresh = &RefreshTokenStore{pool: pool}
	s.Factors = &FactorStore{store: s}
	s.Recovery = &RecoveryCodeStore{store: s}
	s.LoginTxs = &LoginTxStore{store: s}
	return s
}

// WithClock replaces the clock used for timestamps and login tx deadlines.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Close closes the pool. Safe to call more than once.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Apply registers every repository on b.
func (s *Store) Apply(b *authkit.Builder) *authkit.Builder {
	return b.
		WithUserRepository(s.Users).
		WithRefreshTokenRepository(s.Refresh).
		WithMFAFactorRepository(s.Factors).
		WithRecoveryCodeRepository(s.Recovery).
		WithLoginTxStore(s.LoginTxs)
}

func migrationFiles(suffix string) ([]string, error) {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), suffix) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Migrate applies every embedded *_up.sql file in name order. The scripts are
// idempotent, so running Migrate on an up-to-date schema is a no-op.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	files, err := migrationFiles("_up.sql")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		b, err := fs.ReadFile(migrations.FS, f)
		if err != nil {
			return nil, err
		}
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return nil, fmt.Errorf("exec %s: %w", f, err)
		}
	}
	return files, nil
}

// MigrateDown applies every *_down.sql file in reverse name order.
func (s *Store) MigrateDown(ctx context.Context) ([]string, error) {
	files, err := migrationFiles("_down.sql")
	if err != nil {
		return nil, err
	}
	applied := make([]string, 0, len(files))
	for i := len(files) - 1; i >= 0; i-- {
		b, err := fs.ReadFile(migrations.FS, files[i])
		if err != nil {
			return applied, err
		}
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return applied, fmt.Errorf("exec %s: %w", files[i], err)
		}
		applied = append(applied, files[i])
	}
	return applied, nil
}
