package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/jackc/pgx/v5"
)

// LoginTxStore keeps login transactions in authkit_login_txs for deployments
// without Redis. Expired rows are ignored on read and removed by Purge.
type LoginTxStore struct {
	store *Store
}

func (s *LoginTxStore) Put(ctx context.Context, loginTx, userID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	_, err := s.store.pool.Exec(ctx, `
		INSERT INTO authkit_login_txs (id, user_id, expires_at) VALUES ($1, $2, $3)
	`, loginTx, userID, s.store.now().Add(ttl).UTC())
	return err
}

func (s *LoginTxStore) Resolve(ctx context.Context, loginTx string) (string, error) {
	var userID string
	err := s.store.pool.QueryRow(ctx, `
		SELECT user_id FROM authkit_login_txs WHERE id = $1 AND expires_at > $2
	`, loginTx, s.store.now().UTC()).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", authkit.ErrLoginTxNotFound
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *LoginTxStore) Consume(ctx context.Context, loginTx string) (bool, error) {
	var expiresAt time.Time
	err := s.store.pool.QueryRow(ctx, `
		DELETE FROM authkit_login_txs WHERE id = $1 RETURNING expires_at
	`, loginTx).Scan(&expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.store.now().Before(expiresAt), nil
}

// Purge deletes expired login transactions and returns how many were removed.
func (s *LoginTxStore) Purge(ctx context.Context) (int64, error) {
	tag, err := s.store.pool.Exec(ctx, `DELETE FROM authkit_login_txs WHERE expires_at <= $1`, s.store.now().UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
