package postgres

import (
	"context"

	"github.com/MrEthical07/authkit"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RecoveryCodeStore keeps hashed recovery codes in authkit_recovery_codes.
type RecoveryCodeStore struct {
	store *Store
}

// ReplaceCodes deletes the old set and inserts the new one in a single
// transaction, so a failed regeneration leaves the previous codes usable.
func (s *RecoveryCodeStore) ReplaceCodes(ctx context.Context, userID string, hashes []string) error {
	tx, err := s.store.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM authkit_recovery_codes WHERE user_id = $1`, userID); err != nil {
		return err
	}

	now := s.store.now().UTC()
	var b pgx.Batch
	for _, h := range hashes {
		b.Queue(`INSERT INTO authkit_recovery_codes (id, user_id, code_hash, created_at) VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), userID, h, now)
	}
	br := tx.SendBatch(ctx, &b)
	for range hashes {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *RecoveryCodeStore) ListUnused(ctx context.Context, userID string) ([]*authkit.RecoveryCode, error) {
	rows, err := s.store.pool.Query(ctx, `
		SELECT id, user_id, code_hash, created_at
		FROM authkit_recovery_codes
		WHERE user_id = $1 AND used_at IS NULL
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*authkit.RecoveryCode
	for rows.Next() {
		var c authkit.RecoveryCode
		if err := rows.Scan(&c.ID, &c.UserID, &c.CodeHash, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *RecoveryCodeStore) MarkUsed(ctx context.Context, codeID string) (bool, error) {
	tag, err := s.store.pool.Exec(ctx, `
		UPDATE authkit_recovery_codes SET used_at = $2
		WHERE id = $1 AND used_at IS NULL
	`, codeID, s.store.now().UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
