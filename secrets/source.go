package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a source has no value for the requested name.
var ErrNotFound = errors.New("secret not found")

// Source resolves named secrets (keys, client credentials) from a backing store.
type Source interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// EnvSource reads secrets from environment variables. The name
// "ec-private-key" with prefix "AUTHKIT_SECRET_" maps to AUTHKIT_SECRET_EC_PRIVATE_KEY.
type EnvSource struct {
	Prefix string
}

func (s EnvSource) GetSecret(_ context.Context, name string) (string, error) {
	key := s.Prefix + envName(name)
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v, nil
}

func envName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(name))
}

// FileSource reads one secret per file from Dir, the layout used by mounted
// Kubernetes and Docker secrets.
type FileSource struct {
	Dir string
}

func (s FileSource) GetSecret(_ context.Context, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == ".." {
		return "", fmt.Errorf("%w: invalid name %q", ErrNotFound, name)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// MapSource is a fixed in-memory source, mostly for tests and local runs.
type MapSource map[string]string

func (s MapSource) GetSecret(_ context.Context, name string) (string, error) {
	v, ok := s[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v, nil
}

// Chain tries each source in order and returns the first hit.
type Chain []Source

func (c Chain) GetSecret(ctx context.Context, name string) (string, error) {
	for _, src := range c {
		v, err := src.GetSecret(ctx, name)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}
