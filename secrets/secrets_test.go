package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls atomic.Int32
	delay time.Duration
	value string
	err   error
}

func (s *countingSource) GetSecret(context.Context, string) (string, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	return s.value, s.err
}

func TestCacheSingleFlightOnFirstAccess(t *testing.T) {
	src := &countingSource{delay: 20 * time.Millisecond, value: "client-key"}
	c := NewCache(src, 0)

	const n = 32
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			v, err := c.GetSecret(context.Background(), "client-key")
			if err == nil {
				results <- v
			}
		}()
	}
	wg.Wait()
	close(results)

	count := 0
	for v := range results {
		assert.Equal(t, "client-key", v)
		count++
	}
	assert.Equal(t, n, count)
	assert.Equal(t, int32(1), src.calls.Load())

	_, err := c.GetSecret(context.Background(), "client-key")
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load(), "cached value should be served")
}

func TestCacheInvalidateRefetches(t *testing.T) {
	src := &countingSource{value: "v1"}
	c := NewCache(src, 0)

	v, err := c.GetSecret(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	src.value = "v2"
	c.Invalidate("k")

	v, err = c.GetSecret(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestCacheDoesNotCacheFailures(t *testing.T) {
	src := &countingSource{err: errors.New("vault down")}
	c := NewCache(src, 0)

	_, err := c.GetSecret(context.Background(), "k")
	require.Error(t, err)

	src.err = nil
	src.value = "ok"
	v, err := c.GetSecret(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestEnvSourceNameMapping(t *testing.T) {
	t.Setenv("AUTHKIT_SECRET_EC_PRIVATE_KEY", "pem")

	v, err := EnvSource{Prefix: "AUTHKIT_SECRET_"}.GetSecret(context.Background(), "ec-private-key")
	require.NoError(t, err)
	assert.Equal(t, "pem", v)

	_, err = EnvSource{Prefix: "AUTHKIT_SECRET_"}.GetSecret(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileSourceAndChain(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "client-key"), []byte("from-file\n"), 0o600))

	chain := Chain{MapSource{"other": "x"}, FileSource{Dir: dir}}
	v, err := chain.GetSecret(context.Background(), "client-key")
	require.NoError(t, err)
	assert.Equal(t, "from-file", v)

	_, err = chain.GetSecret(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBoxSealOpen(t *testing.T) {
	key, err := GenerateBoxKey()
	require.NoError(t, err)
	box, err := NewBox(key)
	require.NoError(t, err)

	sealed, err := box.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "JBSWY3DPEHPK3PXP")

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", plain)

	other, _ := GenerateBoxKey()
	otherBox, _ := NewBox(other)
	_, err = otherBox.Open(sealed)
	assert.ErrorIs(t, err, ErrOpenFailed)

	_, err = NewBox("too-short")
	assert.ErrorIs(t, err, ErrInvalidBoxKey)
}
