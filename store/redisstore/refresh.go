package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/redis/go-redis/v9"
)

// Records live in a hash per jti. Side keys:
//
//	<prefix>:h:<user>:<hash>  -> jti
//	<prefix>:u:<user>         set of jtis
//	<prefix>:p:<parent jti>   set of child jtis
//
// Every key expires with the record it belongs to.

const markUsedScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "used") == "1" or redis.call("HGET", KEYS[1], "revoked") == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "used", "1")
return 1
`

var markUsedLua = redis.NewScript(markUsedScript)

const revokeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1")
return 1
`

var revokeLua = redis.NewScript(revokeScript)

const markRotatedScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  redis.call("HSET", KEYS[1], "rotated", "1", "rotated_at", ARGV[1])
end
return 0
`

var markRotatedLua = redis.NewScript(markRotatedScript)

// RefreshTokenStore is an authkit.RefreshTokenRepository on Redis.
type RefreshTokenStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRefreshTokenStore(client redis.UniversalClient, prefix string) *RefreshTokenStore {
	if prefix == "" {
		prefix = "rt"
	}
	return &RefreshTokenStore{
		redis:  client,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock replaces the clock used to compute key lifetimes.
func (s *RefreshTokenStore) WithClock(now func() time.Time) *RefreshTokenStore {
	s.now = now
	return s
}

func (s *RefreshTokenStore) recordKey(jti string) string {
	return s.prefix + ":r:" + jti
}

func (s *RefreshTokenStore) hashKey(userID, hash string) string {
	return s.prefix + ":h:" + userID + ":" + hash
}

func (s *RefreshTokenStore) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func (s *RefreshTokenStore) parentKey(jti string) string {
	return s.prefix + ":p:" + jti
}

func (s *RefreshTokenStore) Save(ctx context.Context, rec *authkit.RefreshTokenRecord) error {
	if rec == nil || rec.JTI == "" || rec.UserID == "" || rec.TokenHash == "" {
		return errors.New("incomplete refresh token record")
	}

	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl < time.Second {
		ttl = time.Second
	}

	fields, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	key := s.recordKey(rec.JTI)
	ok, err := s.redis.HSetNX(ctx, key, "jti", rec.JTI).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if !ok {
		return errors.New("duplicate jti")
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, ttl)
		pipe.Set(ctx, s.hashKey(rec.UserID, rec.TokenHash), rec.JTI, ttl)
		pipe.SAdd(ctx, s.userKey(rec.UserID), rec.JTI)
		pipe.Expire(ctx, s.userKey(rec.UserID), ttl)
		if rec.ParentJTI != "" {
			pipe.SAdd(ctx, s.parentKey(rec.ParentJTI), rec.JTI)
			pipe.Expire(ctx, s.parentKey(rec.ParentJTI), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func (s *RefreshTokenStore) FindByTokenHash(ctx context.Context, userID, tokenHash string) (*authkit.RefreshTokenRecord, error) {
	jti, err := s.redis.Get(ctx, s.hashKey(userID, tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	rec, err := s.FindByJTI(ctx, jti)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.Revoked || rec.UserID != userID {
		return nil, nil
	}
	return rec, nil
}

func (s *RefreshTokenStore) MarkUsed(ctx context.Context, jti string) (bool, error) {
	n, err := markUsedLua.Run(ctx, s.redis, []string{s.recordKey(jti)}).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return n == 1, nil
}

func (s *RefreshTokenStore) MarkRotated(ctx context.Context, jti string, at time.Time) error {
	err := markRotatedLua.Run(ctx, s.redis, []string{s.recordKey(jti)}, at.UnixNano()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func (s *RefreshTokenStore) Revoke(ctx context.Context, jti string) error {
	if err := revokeLua.Run(ctx, s.redis, []string{s.recordKey(jti)}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func (s *RefreshTokenStore) RevokeByUserID(ctx context.Context, userID string) (int64, error) {
	jtis, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	var revoked int64
	for _, jti := range jtis {
		n, err := revokeLua.Run(ctx, s.redis, []string{s.recordKey(jti)}).Int64()
		if err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrBackend, err)
		}
		revoked += n
	}
	return revoked, nil
}

func (s *RefreshTokenStore) FindByJTI(ctx context.Context, jti string) (*authkit.RefreshTokenRecord, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(jti)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeRecord(fields)
}

func (s *RefreshTokenStore) FindByParentJTI(ctx context.Context, parentJTI string) ([]*authkit.RefreshTokenRecord, error) {
	if parentJTI == "" {
		return nil, nil
	}
	jtis, err := s.redis.SMembers(ctx, s.parentKey(parentJTI)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	out := make([]*authkit.RefreshTokenRecord, 0, len(jtis))
	for _, jti := range jtis {
		rec, err := s.FindByJTI(ctx, jti)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func encodeRecord(rec *authkit.RefreshTokenRecord) (map[string]any, error) {
	fields := map[string]any{
		"jti":        rec.JTI,
		"user_id":    rec.UserID,
		"token_hash": rec.TokenHash,
		"parent_jti": rec.ParentJTI,
		"expires_at": rec.ExpiresAt.UnixNano(),
		"created_at": rec.CreatedAt.UnixNano(),
		"used":       boolField(rec.Used),
		"rotated":    boolField(rec.Rotated),
		"revoked":    boolField(rec.Revoked),
	}
	if !rec.RotatedAt.IsZero() {
		fields["rotated_at"] = rec.RotatedAt.UnixNano()
	}
	if len(rec.Meta) > 0 {
		meta, err := json.Marshal(rec.Meta)
		if err != nil {
			return nil, err
		}
		fields["meta"] = string(meta)
	}
	return fields, nil
}

func unixNanoField(fields map[string]string, name string) (time.Time, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return time.Time{}, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("refresh record field %s: %w", name, err)
	}
	return time.Unix(0, n).UTC(), nil
}

func decodeRecord(fields map[string]string) (*authkit.RefreshTokenRecord, error) {
	rec := &authkit.RefreshTokenRecord{
		JTI:       fields["jti"],
		UserID:    fields["user_id"],
		TokenHash: fields["token_hash"],
		ParentJTI: fields["parent_jti"],
		Used:      fields["used"] == "1",
		Rotated:   fields["rotated"] == "1",
		Revoked:   fields["revoked"] == "1",
	}
	if rec.UserID == "" {
		// a half-written record: Save claimed the jti but the pipeline failed
		return nil, nil
	}

	var err error
	if rec.ExpiresAt, err = unixNanoField(fields, "expires_at"); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = unixNanoField(fields, "created_at"); err != nil {
		return nil, err
	}
	if rec.RotatedAt, err = unixNanoField(fields, "rotated_at"); err != nil {
		return nil, err
	}
	if raw := fields["meta"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Meta); err != nil {
			return nil, fmt.Errorf("refresh record meta: %w", err)
		}
	}
	return rec, nil
}
