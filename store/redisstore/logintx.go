package redisstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/redis/go-redis/v9"
)

const loginTxRecordVersion1 = 1

// ErrBackend wraps every Redis failure returned by this package.
var ErrBackend = errors.New("redis backend unavailable")

type loginTxRecord struct {
	UserID    string
	ExpiresAt int64
}

// LoginTxStore keeps login transactions as versioned binary blobs under
// "<prefix>:<id>". Redis TTL evicts them; the embedded deadline is checked on
// every read so a lagging eviction never resurrects an expired transaction.
type LoginTxStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewLoginTxStore(client redis.UniversalClient, prefix string) *LoginTxStore {
	if prefix == "" {
		prefix = "login_tx"
	}
	return &LoginTxStore{
		redis:  client,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for deadline checks.
func (s *LoginTxStore) WithClock(now func() time.Time) *LoginTxStore {
	s.now = now
	return s
}

func (s *LoginTxStore) key(loginTx string) string {
	return s.prefix + ":" + loginTx
}

func (s *LoginTxStore) Put(ctx context.Context, loginTx, userID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	encoded, err := encodeLoginTx(&loginTxRecord{
		UserID:    userID,
		ExpiresAt: s.now().Add(ttl).UnixMilli(),
	})
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(loginTx), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func (s *LoginTxStore) Resolve(ctx context.Context, loginTx string) (string, error) {
	data, err := s.redis.Get(ctx, s.key(loginTx)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", authkit.ErrLoginTxNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}

	record, err := decodeLoginTx(data)
	if err != nil {
		return "", authkit.ErrLoginTxNotFound
	}
	if s.now().UnixMilli() >= record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(loginTx)).Result()
		return "", authkit.ErrLoginTxNotFound
	}
	return record.UserID, nil
}

// Consume uses GETDEL so exactly one caller observes the live record.
func (s *LoginTxStore) Consume(ctx context.Context, loginTx string) (bool, error) {
	data, err := s.redis.GetDel(ctx, s.key(loginTx)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	record, err := decodeLoginTx(data)
	if err != nil {
		return false, nil
	}
	return s.now().UnixMilli() < record.ExpiresAt, nil
}

func encodeLoginTx(record *loginTxRecord) ([]byte, error) {
	if len(record.UserID) > 65535 {
		return nil, errors.New("login tx user id too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(loginTxRecordVersion1)
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	return buf.Bytes(), nil
}

func decodeLoginTx(data []byte) (*loginTxRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != loginTxRecordVersion1 {
		return nil, errors.New("invalid login tx version")
	}

	record := &loginTxRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	var userLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userLen); err != nil {
		return nil, err
	}
	user := make([]byte, userLen)
	if _, err := io.ReadFull(reader, user); err != nil {
		return nil, err
	}
	record.UserID = string(user)
	return record, nil
}
