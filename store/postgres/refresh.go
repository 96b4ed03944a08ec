package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const refreshColumns = `jti, user_id, token_hash, COALESCE(parent_jti, ''), expires_at, used, rotated,
	rotated_at, revoked_at IS NOT NULL, meta, created_at`

// RefreshTokenStore keeps refresh tokens in authkit_refresh_tokens. Revoke
// sets revoked_at so chains survive revocation.
type RefreshTokenStore struct {
	pool *pgxpool.Pool
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *RefreshTokenStore) Save(ctx context.Context, rec *authkit.RefreshTokenRecord) error {
	if rec == nil || rec.JTI == "" || rec.UserID == "" || rec.TokenHash == "" {
		return errors.New("incomplete refresh token record")
	}
	var meta []byte
	if len(rec.Meta) > 0 {
		var err error
		if meta, err = json.Marshal(rec.Meta); err != nil {
			return err
		}
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO authkit_refresh_tokens
			(jti, user_id, token_hash, parent_jti, expires_at, used, rotated, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.JTI, rec.UserID, rec.TokenHash, nullable(rec.ParentJTI), rec.ExpiresAt, rec.Used, rec.Rotated, meta, created)
	return err
}

func scanRecord(row pgx.Row) (*authkit.RefreshTokenRecord, error) {
	var (
		rec       authkit.RefreshTokenRecord
		rotatedAt *time.Time
		meta      []byte
	)
	err := row.Scan(&rec.JTI, &rec.UserID, &rec.TokenHash, &rec.ParentJTI, &rec.ExpiresAt,
		&rec.Used, &rec.Rotated, &rotatedAt, &rec.Revoked, &meta, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if rotatedAt != nil {
		rec.RotatedAt = *rotatedAt
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Meta); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

func (s *RefreshTokenStore) FindByTokenHash(ctx context.Context, userID, tokenHash string) (*authkit.RefreshTokenRecord, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, `
		SELECT `+refreshColumns+`
		FROM authkit_refresh_tokens
		WHERE user_id = $1 AND token_hash = $2 AND revoked_at IS NULL
	`, userID, tokenHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// MarkUsed is a single conditional UPDATE; the row lock makes it the
// compare-and-set between concurrent rotations.
func (s *RefreshTokenStore) MarkUsed(ctx context.Context, jti string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE authkit_refresh_tokens SET used = true
		WHERE jti = $1 AND used = false AND revoked_at IS NULL
	`, jti)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *RefreshTokenStore) MarkRotated(ctx context.Context, jti string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE authkit_refresh_tokens SET rotated = true, rotated_at = $2 WHERE jti = $1
	`, jti, at)
	return err
}

func (s *RefreshTokenStore) Revoke(ctx context.Context, jti string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE authkit_refresh_tokens SET revoked_at = now()
		WHERE jti = $1 AND revoked_at IS NULL
	`, jti)
	return err
}

func (s *RefreshTokenStore) RevokeByUserID(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE authkit_refresh_tokens SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *RefreshTokenStore) FindByJTI(ctx context.Context, jti string) (*authkit.RefreshTokenRecord, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, `
		SELECT `+refreshColumns+` FROM authkit_refresh_tokens WHERE jti = $1
	`, jti))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *RefreshTokenStore) FindByParentJTI(ctx context.Context, parentJTI string) ([]*authkit.RefreshTokenRecord, error) {
	if parentJTI == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+refreshColumns+`
		FROM authkit_refresh_tokens
		WHERE parent_jti = $1
		ORDER BY created_at, jti
	`, parentJTI)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*authkit.RefreshTokenRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
