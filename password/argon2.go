package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	maxPassBytes          = 1024
	algorithmID           = "argon2id"
)

var (
	// ErrPasswordTooShort is returned by Hash when the plaintext is below MinPasswordBytes.
	ErrPasswordTooShort = errors.New("password too short")
	// ErrPasswordTooLong is returned when the plaintext exceeds the hashing input limit.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrMalformedHash is returned when a stored hash is not a supported PHC string.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config holds the Argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MinPasswordBytes int
}

// DefaultConfig returns time=3, memory=64MiB, parallelism=1 with 16 byte salt and 32 byte key.
func DefaultConfig() Config {
	return Config{
		Memory:           64 * 1024,
		Time:             3,
		Parallelism:      1,
		SaltLength:       16,
		KeyLength:        32,
		MinPasswordBytes: 8,
	}
}

// Argon2 hashes and verifies passwords in PHC format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
type Argon2 struct {
	config Config
}

type params struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// NewArgon2 validates cfg against the minimum cost floor.
func NewArgon2(cfg Config) (*Argon2, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, fmt.Errorf("password memory must be >= %d KiB", minMemoryKB)
	case cfg.Time < minTimeCost:
		return nil, errors.New("password time must be >= 1")
	case cfg.Parallelism < minParallelism:
		return nil, errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return nil, fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case cfg.KeyLength < minKeyLength:
		return nil, fmt.Errorf("password key length must be >= %d", minKeyLength)
	case cfg.MinPasswordBytes < 0:
		return nil, errors.New("password minimum length must not be negative")
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a new salted hash. Plaintext bytes are used as given, without normalization.
func (a *Argon2) Hash(plain string) (string, error) {
	if len(plain) < a.config.MinPasswordBytes {
		return "", ErrPasswordTooShort
	}
	if len(plain) > maxPassBytes {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(plain), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)
	return encode(params{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        salt,
		key:         key,
	}), nil
}

// Verify recomputes the hash with the parameters embedded in encoded and
// compares in constant time. A mismatch is (false, nil); a malformed hash is an error.
func (a *Argon2) Verify(plain, encoded string) (bool, error) {
	if len(plain) > maxPassBytes {
		return false, nil
	}
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(plain), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters than the current config.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return a.config.Memory > p.memory ||
		a.config.Time > p.time ||
		a.config.Parallelism > p.parallelism ||
		a.config.KeyLength != uint32(len(p.key)), nil
}

func encode(p params) string {
	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		p.memory,
		p.time,
		p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

func decode(encoded string) (*params, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrMalformedHash
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") || version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version", ErrMalformedHash)
	}

	p := &params{}
	if err := parseCost(parts[3], p); err != nil {
		return nil, err
	}

	if p.salt, err = decodeSegment(parts[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if p.key, err = decodeSegment(parts[5]); err != nil || len(p.key) == 0 {
		return nil, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	return p, nil
}

// decodeSegment accepts both unpadded (reference encoder) and padded base64.
func decodeSegment(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func parseCost(segment string, p *params) error {
	var seen [3]bool
	for _, pair := range strings.Split(segment, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: cost parameters", ErrMalformedHash)
		}
		switch name {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || uint32(v) < minMemoryKB {
				return fmt.Errorf("%w: memory", ErrMalformedHash)
			}
			p.memory, seen[0] = uint32(v), true
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || uint32(v) < minTimeCost {
				return fmt.Errorf("%w: time", ErrMalformedHash)
			}
			p.time, seen[1] = uint32(v), true
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || uint8(v) < minParallelism {
				return fmt.Errorf("%w: parallelism", ErrMalformedHash)
			}
			p.parallelism, seen[2] = uint8(v), true
		default:
			return fmt.Errorf("%w: unknown cost parameter %q", ErrMalformedHash, name)
		}
	}
	if !seen[0] || !seen[1] || !seen[2] {
		return fmt.Errorf("%w: missing cost parameter", ErrMalformedHash)
	}
	return nil
}
