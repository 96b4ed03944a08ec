package postgres

import (
	"context"
	"errors"

	"github.com/MrEthical07/authkit"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const factorColumns = `id, user_id, factor_type, secret, status, last_used_step, created_at, updated_at`

// FactorStore keeps MFA factors in authkit_mfa_factors. The seq column orders
// factors created within the same timestamp.
type FactorStore struct {
	store *Store
}

func scanFactor(row pgx.Row) (*authkit.MFAFactor, error) {
	var (
		f          authkit.MFAFactor
		factorType string
		status     string
	)
	if err := row.Scan(&f.ID, &f.UserID, &factorType, &f.Secret, &status, &f.LastUsedStep, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.Type = authkit.FactorType(factorType)
	f.Status = authkit.FactorStatus(status)
	return &f, nil
}

func (s *FactorStore) CreatePending(ctx context.Context, userID string, factorType authkit.FactorType, secret string) (*authkit.MFAFactor, error) {
	now := s.store.now().UTC()
	f := &authkit.MFAFactor{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      factorType,
		Secret:    secret,
		Status:    authkit.FactorPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.store.pool.Exec(ctx, `
		INSERT INTO authkit_mfa_factors (id, user_id, factor_type, secret, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, f.ID, f.UserID, string(f.Type), f.Secret, string(f.Status), now)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *FactorStore) newest(ctx context.Context, userID string, factorType authkit.FactorType, status authkit.FactorStatus) (*authkit.MFAFactor, error) {
	f, err := scanFactor(s.store.pool.QueryRow(ctx, `
		SELECT `+factorColumns+`
		FROM authkit_mfa_factors
		WHERE user_id = $1 AND factor_type = $2 AND status = $3
		ORDER BY seq DESC
		LIMIT 1
	`, userID, string(factorType), string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

func (s *FactorStore) GetPending(ctx context.Context, userID string, factorType authkit.FactorType) (*authkit.MFAFactor, error) {
	return s.newest(ctx, userID, factorType, authkit.FactorPending)
}

func (s *FactorStore) GetActive(ctx context.Context, userID string, factorType authkit.FactorType) (*authkit.MFAFactor, error) {
	return s.newest(ctx, userID, factorType, authkit.FactorActive)
}

// ActivateFactor promotes the pending factor and revokes the previously active
// one of the same type inside one transaction. The user's factor rows of that
// type are locked first so concurrent activations leave exactly one active.
func (s *FactorStore) ActivateFactor(ctx context.Context, factorID string) (bool, error) {
	tx, err := s.store.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID, factorType string
	err = tx.QueryRow(ctx, `
		SELECT user_id, factor_type FROM authkit_mfa_factors WHERE id = $1
	`, factorID).Scan(&userID, &factorType)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := tx.Exec(ctx, `
		SELECT 1 FROM authkit_mfa_factors
		WHERE user_id = $1 AND factor_type = $2
		ORDER BY seq
		FOR UPDATE
	`, userID, factorType); err != nil {
		return false, err
	}

	now := s.store.now().UTC()
	tag, err := tx.Exec(ctx, `
		UPDATE authkit_mfa_factors SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
	`, factorID, string(authkit.FactorActive), now, string(authkit.FactorPending))
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE authkit_mfa_factors SET status = $4, updated_at = $5
		WHERE user_id = $1 AND factor_type = $2 AND status = $3 AND id <> $6
	`, userID, factorType, string(authkit.FactorActive), string(authkit.FactorRevoked), now, factorID)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FactorStore) ListByUser(ctx context.Context, userID string) ([]*authkit.MFAFactor, error) {
	rows, err := s.store.pool.Query(ctx, `
		SELECT `+factorColumns+` FROM authkit_mfa_factors WHERE user_id = $1 ORDER BY seq
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*authkit.MFAFactor
	for rows.Next() {
		f, err := scanFactor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *FactorStore) RevokeFactor(ctx context.Context, factorID string) error {
	_, err := s.store.pool.Exec(ctx, `
		UPDATE authkit_mfa_factors SET status = $2, updated_at = $3 WHERE id = $1
	`, factorID, string(authkit.FactorRevoked), s.store.now().UTC())
	return err
}

func (s *FactorStore) AdvanceStep(ctx context.Context, factorID string, step int64) (bool, error) {
	tag, err := s.store.pool.Exec(ctx, `
		UPDATE authkit_mfa_factors SET last_used_step = $2, updated_at = $3
		WHERE id = $1 AND last_used_step < $2
	`, factorID, step, s.store.now().UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
