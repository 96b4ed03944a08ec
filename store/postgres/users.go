package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateUsername is returned by Create for a taken username.
var ErrDuplicateUsername = errors.New("username already exists")

const uniqueViolation = "23505"

// UserStore reads and creates rows in authkit_users.
type UserStore struct {
	pool *pgxpool.Pool
}

// Create inserts u, filling ID, Key and CreatedAt when empty.
func (s *UserStore) Create(ctx context.Context, u authkit.User) (*authkit.User, error) {
	if u.Username == "" || u.PasswordHash == "" {
		return nil, errors.New("username and password hash required")
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Key == "" {
		u.Key = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO authkit_users (id, username, password_hash, user_key, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Username, u.PasswordHash, u.Key, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateUsername
		}
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*authkit.User, error) {
	return s.getOne(ctx, `
		SELECT id, username, password_hash, user_key, created_at
		FROM authkit_users WHERE username = $1
	`, username)
}

func (s *UserStore) GetUserByID(ctx context.Context, id string) (*authkit.User, error) {
	return s.getOne(ctx, `
		SELECT id, username, password_hash, user_key, created_at
		FROM authkit_users WHERE id = $1
	`, id)
}

func (s *UserStore) getOne(ctx context.Context, query string, arg string) (*authkit.User, error) {
	var u authkit.User
	err := s.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Key, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
