// Package app wires every NAAS component from a loaded Config and starts
// the process in whichever mode it was launched with.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"naas/internal/breaker"
	"naas/internal/config"
	"naas/internal/driver"
	"naas/internal/httpapi"
	"naas/internal/lockout"
	"naas/internal/platform/logger"
	"naas/internal/platform/metrics"
	naasredis "naas/internal/platform/redis"
	"naas/internal/queue"
	"naas/internal/store"
	"naas/internal/worker"
)

// Run reads infrastructure from cfg and starts the api or worker tier.
func Run(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(log)

	log.Info("starting naas", "mode", cfg.Mode, "listen", cfg.ListenAddr)

	rdb, err := naasredis.New(naasredis.Config{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error("closing redis", "error", err)
		}
	}()

	kv := store.New(rdb.Client)

	userLockout := lockout.NewUserLockout(rdb.Client,
		lockout.WithLogger(log),
		lockout.WithThreshold(cfg.LockoutThreshold),
		lockout.WithWindow(cfg.LockoutWindow),
	)
	deviceLockout := lockout.NewDeviceLockout(rdb.Client,
		lockout.WithLogger(log),
		lockout.WithThreshold(cfg.LockoutThreshold),
		lockout.WithWindow(cfg.LockoutWindow),
	)

	cb := breaker.New(rdb.Client,
		breaker.WithLogger(log),
		breaker.WithFailMax(cfg.CircuitBreakerThreshold),
		breaker.WithResetTimeout(cfg.CircuitBreakerTimeout),
	)

	q := queue.New(rdb.Client,
		queue.WithSuccessTTL(cfg.JobTTLSuccess),
		queue.WithFailedTTL(cfg.JobTTLFailed),
	)

	m := metrics.New()

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, log, kv, q, cb, userLockout, deviceLockout, m)
	case "worker":
		return runWorker(ctx, cfg, log, q, cb, userLockout, deviceLockout, m)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// runAPI starts C6/C8 (the HTTP admission and read/cancel surface). The
// api process reports the configured worker count in its healthcheck but
// holds no live worker census of its own — workers run in a separate
// process (spec.md §5).
func runAPI(
	ctx context.Context,
	cfg *config.Config,
	log *slog.Logger,
	kv *store.Store,
	q *queue.Queue,
	cb *breaker.Breaker,
	userLockout, deviceLockout *lockout.Service,
	m *metrics.Metrics,
) error {
	h := httpapi.New(kv, q, cb, userLockout, deviceLockout, nil, cfg.WorkerCount, log, m)
	router := httpapi.Router(h, log, m)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker starts C7: the pool that pops jobs from C5 and drives the SSH
// driver until ctx is cancelled, then waits for any in-flight job.
func runWorker(
	ctx context.Context,
	cfg *config.Config,
	log *slog.Logger,
	q *queue.Queue,
	cb *breaker.Breaker,
	userLockout, deviceLockout *lockout.Service,
	m *metrics.Metrics,
) error {
	pool := worker.New(q, cb, userLockout, deviceLockout,
		worker.WithDialer(driver.ConnectHandler),
		worker.WithLogger(log),
		worker.WithMetrics(m),
	)

	log.Info("worker pool starting", "workers", cfg.WorkerCount)
	return pool.Run(ctx, cfg.WorkerCount, cfg.ShutdownTimeout)
}
