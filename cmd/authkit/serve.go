package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/httpapi"
	"github.com/MrEthical07/authkit/internal/appconfig"
	authprom "github.com/MrEthical07/authkit/metrics/export/prometheus"
	"github.com/MrEthical07/authkit/middleware"
	"github.com/MrEthical07/authkit/secrets"
	"github.com/MrEthical07/authkit/store/redisstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(g)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *appconfig.Config, log *zap.Logger) error {
	be, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.close()

	eb := be.apply(cfg, authkit.New().WithConfig(cfg.Engine())).
		WithKeySource(be.secrets).
		WithLogger(log)

	if cfg.Secrets.SealKeyName != "" {
		box, err := secrets.NewBoxFromSource(ctx, be.secrets, cfg.Secrets.SealKeyName)
		if err != nil {
			return err
		}
		eb = eb.WithSecretSealer(box)
	} else {
		log.Warn("mfa secrets are stored unsealed; set secrets.seal_key_name")
	}
	if cfg.Audit.Enabled {
		eb = eb.WithAuditSink(authkit.NewZapSink(log))
	}

	engine, err := eb.Build()
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer engine.Close()

	// fail fast on a missing or malformed signing key
	if _, err := engine.JWKS(ctx); err != nil {
		return fmt.Errorf("signing key: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		authprom.NewCollector(engine, prometheus.Labels{"service": cfg.App.Name}),
	)

	var limiter middleware.Limiter
	if cfg.RateLimit.Enabled {
		limiter = redisstore.NewRateLimiter(be.rdb, cfg.Redis.Prefix+":rl", cfg.RateLimit.Limit, cfg.RateLimit.Window)
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: httpapi.NewRouter(httpapi.Options{
			Engine:        engine,
			Logger:        log,
			ClientKeys:    be.secrets,
			ClientKeyName: cfg.Secrets.ClientKeyName,
			Gatherer:      reg,
			Ready:         be.ready,
			Limiter:       limiter,

			AllowUnauthenticated: cfg.Secrets.AllowUnauthenticated,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
