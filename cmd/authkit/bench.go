package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	mrand "math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/secrets"
	"github.com/MrEthical07/authkit/store/memory"
	"github.com/MrEthical07/authkit/store/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type benchOptions struct {
	chains      int
	concurrency int
	ops         int
	redisAddr   string
	prefix      string
}

// chainState is one refresh chain; rotations on it are serialized.
type chainState struct {
	mu      sync.Mutex
	refresh string
	access  string
}

func newBenchCmd() *cobra.Command {
	o := benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure payload parsing and refresh rotation throughput",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.chains <= 0 || o.concurrency <= 0 || o.ops <= 0 {
				return errors.New("chains, concurrency and ops must be > 0")
			}
			return runBench(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}
	cmd.Flags().IntVar(&o.chains, "chains", 1000, "refresh chains to seed")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 64, "concurrent workers")
	cmd.Flags().IntVar(&o.ops, "ops", 20000, "operations per phase")
	cmd.Flags().StringVar(&o.redisAddr, "redis-addr", envOr("REDIS_ADDR", ""), "redis address; miniredis when empty")
	cmd.Flags().StringVar(&o.prefix, "prefix", "bench", "redis key prefix")
	return cmd
}

func benchRedis(w io.Writer, addr string) (redis.UniversalClient, func(), error) {
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Fprintf(w, "using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Fprintf(w, "using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func ephemeralKey() (string, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", err
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

func runBench(ctx context.Context, w io.Writer, o benchOptions) error {
	client, cleanup, err := benchRedis(w, o.redisAddr)
	if err != nil {
		return err
	}
	defer cleanup()

	key, err := ephemeralKey()
	if err != nil {
		return err
	}
	cfg := authkit.DefaultConfig()
	stores := memory.New()
	engine, err := stores.Apply(authkit.New().WithConfig(cfg)).
		WithRefreshTokenRepository(redisstore.NewRefreshTokenStore(client, o.prefix+":rt")).
		WithKeySource(secrets.MapSource{cfg.Token.PrivateKeyName: key}).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if _, err := stores.Users.Add(authkit.User{ID: "bench-user", Username: "bench", PasswordHash: "unused", Key: "bench-key"}); err != nil {
		return err
	}

	states := make([]chainState, o.chains)
	fmt.Fprintf(w, "seeding %d chains...\n", o.chains)
	startSeed := time.Now()
	for i := range states {
		sess, err := engine.IssueForUserID(ctx, "bench-user")
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		states[i].refresh = sess.RefreshToken
		states[i].access = sess.AccessToken
	}
	fmt.Fprintf(w, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	payload := runPhase(o, func(r *mrand.Rand) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		token := s.access
		s.mu.Unlock()
		_, err := engine.ParsePayload(ctx, token)
		return err
	})
	rotate := runPhase(o, func(r *mrand.Rand) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		sess, err := engine.Rotate(ctx, "bench-user", s.refresh)
		if err != nil {
			return err
		}
		s.refresh = sess.RefreshToken
		s.access = sess.AccessToken
		return nil
	})

	fmt.Fprintln(w, "---- results ----")
	printStats(w, "payload", payload)
	printStats(w, "rotate", rotate)
	return nil
}

func runPhase(o benchOptions, op func(r *mrand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, o.ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for worker := 0; worker < o.concurrency; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > o.ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(worker)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
