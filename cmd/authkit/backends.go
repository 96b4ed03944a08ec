package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/internal/appconfig"
	"github.com/MrEthical07/authkit/internal/logger"
	"github.com/MrEthical07/authkit/secrets"
	"github.com/MrEthical07/authkit/store/memory"
	"github.com/MrEthical07/authkit/store/postgres"
	"github.com/MrEthical07/authkit/store/redisstore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// backends holds the storage and secret collaborators selected by config.
type backends struct {
	pg      *postgres.Store
	mem     *memory.Stores
	rdb     redis.UniversalClient
	secrets *secrets.Cache
}

func loadConfig(g *globalFlags) (*appconfig.Config, *zap.Logger, error) {
	cfg, err := appconfig.Load(g.configPath, g.dotenvPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: cfg.App.Name,
		Version:     version,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}

func secretSource(cfg *appconfig.Config) *secrets.Cache {
	chain := secrets.Chain{secrets.EnvSource{Prefix: cfg.Secrets.EnvPrefix}}
	if cfg.Secrets.Dir != "" {
		chain = append(chain, secrets.FileSource{Dir: cfg.Secrets.Dir})
	}
	return secrets.NewCache(chain, cfg.Secrets.CacheTTL)
}

func openPostgres(ctx context.Context, cfg *appconfig.Config) (*postgres.Store, error) {
	if cfg.Storage.Driver != "postgres" {
		return nil, errors.New("this command needs storage.driver=postgres")
	}
	store, err := postgres.Open(ctx, cfg.Storage.DSN, postgres.PoolConfig{
		MaxConns:        cfg.Storage.MaxConns,
		MaxConnLifetime: cfg.Storage.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return store, nil
}

func openBackends(ctx context.Context, cfg *appconfig.Config, log *zap.Logger) (*backends, error) {
	b := &backends{secrets: secretSource(cfg)}

	switch cfg.Storage.Driver {
	case "postgres":
		store, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b.pg = store
	default:
		log.Warn("using in-memory storage; state is lost on restart")
		b.mem = memory.New()
	}

	if cfg.Redis.Addr != "" {
		b.rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := b.rdb.Ping(ctx).Err(); err != nil {
			b.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
	}
	return b, nil
}

// apply wires repositories into eb. Redis, when configured, takes over login
// transactions and optionally refresh tokens.
func (b *backends) apply(cfg *appconfig.Config, eb *authkit.Builder) *authkit.Builder {
	if b.pg != nil {
		eb = b.pg.Apply(eb)
	} else {
		eb = b.mem.Apply(eb)
	}
	if b.rdb != nil {
		eb = eb.WithLoginTxStore(redisstore.NewLoginTxStore(b.rdb, cfg.Redis.Prefix+":login_tx"))
		if cfg.Redis.RefreshTokens {
			eb = eb.WithRefreshTokenRepository(redisstore.NewRefreshTokenStore(b.rdb, cfg.Redis.Prefix+":rt"))
		}
	}
	return eb
}

func (b *backends) ready(r *http.Request) error {
	if b.pg != nil {
		if err := b.pg.Pool().Ping(r.Context()); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if b.rdb != nil {
		if err := b.rdb.Ping(r.Context()).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (b *backends) close() {
	if b.rdb != nil {
		_ = b.rdb.Close()
	}
	if b.pg != nil {
		b.pg.Close()
	}
}
