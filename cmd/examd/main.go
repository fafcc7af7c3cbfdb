// Command examd wires the booking coordination engine and runs its
// background activation/reconciliation loop. It exposes no bookings
// HTTP API of its own, just /healthz and /metrics for operators; the
// command surface in internal/engine is meant to be driven by a
// caller embedding this process (an RPC layer, a cron invoker, a test
// harness), not by routes this binary defines.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"examhub/internal/activator"
	"examhub/internal/booking"
	"examhub/internal/cachelayer"
	"examhub/internal/config"
	"examhub/internal/counter"
	"examhub/internal/credit"
	"examhub/internal/crm"
	"examhub/internal/engine"
	"examhub/internal/examsession"
	"examhub/internal/faststore"
	"examhub/internal/lockmgr"
	"examhub/pkg/logger"
	"examhub/pkg/metrics"
)

// loadEnvFile populates os.Environ from a dotenv-style file, never
// overwriting a variable already set. A missing file is not an error.
func loadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

func main() {
	if err := loadEnvFile(".env"); err != nil {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.Setup(cfg.Server.Env)

	log.Info().Str("env", cfg.Server.Env).Str("port", cfg.Server.Port).Msg("starting examd")

	if err := runMigrations(&cfg.Database); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	db, err := faststore.New(context.Background(), faststore.Config{DSN: cfg.Database.GetDSN()})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := run(cfg, db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("error closing database during error cleanup")
		}
		log.Fatal().Err(err).Msg("fatal startup error")
	}
}

// runMigrations applies every pending migration in ./migrations
// against cfg. ErrNoChange is not an error: it means the schema is
// already current.
func runMigrations(cfg *config.DatabaseConfig) error {
	url := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode)

	m, err := migrate.New("file://migrations", url)
	if err != nil {
		return fmt.Errorf("open migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// run performs all remaining initialization and blocks until an
// interrupt signal is received, then shuts down in dependency order.
func run(cfg *config.Config, db *faststore.DB) error {
	log.Info().Msg("database connected")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}

	crmClient := crm.NewHTTPClient(cfg.CRM.BaseURL, cfg.CRM.APIKey,
		crm.WithTimeout(cfg.CRM.Timeout),
		crm.WithRateLimit(int(cfg.CRM.RequestsPerSecond)),
	)

	sessionRepo := faststore.NewSessionRepository(db.Sqlx)
	bookingRepo := faststore.NewBookingRepository(db.Sqlx)
	contactRepo := faststore.NewContactRepository(db.Sqlx)

	locks := lockmgr.NewRedisManager(redisClient, 50*time.Millisecond)
	counters := counter.NewService(redisClient, sessionRepo, cfg.Coordinator.CounterFallbackEnabled)
	cache := cachelayer.NewRedisCache(redisClient)
	ledger := credit.NewLedger(db.Pool, contactRepo)

	sessions := examsession.New(crmClient, sessionRepo, db.Pool, cfg.Coordinator.BatchSize)
	coord := booking.New(crmClient, sessions, bookingRepo, contactRepo, db.Pool, locks, counters, ledger, cache, booking.Config{
		SessionLockTTL:    cfg.Coordinator.SessionLockTTL,
		ContactLockTTL:    cfg.Coordinator.ContactLockTTL,
		IdempotencyBucket: cfg.Coordinator.IdempotencyBucket,
	})
	eng := engine.New(sessions, coord, bookingRepo, contactRepo, cache)
	_ = eng // wired for embedding callers; this binary drives it only via the activator loop below

	act := activator.New(sessions, sessionRepo, bookingRepo, counters, db.Pool, cache)

	activatorCtx, cancelActivator := context.WithCancel(context.Background())
	go act.Run(activatorCtx, cfg.Coordinator.ActivationTick, cfg.Coordinator.ReconcileEveryNTicks)

	healthCtx, cancelHealth := context.WithCancel(context.Background())
	go runHealthLoop(healthCtx, db)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()
		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unhealthy"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	select {
	case err := <-serverErrChan:
		cancelActivator()
		cancelHealth()
		return fmt.Errorf("server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("examd is shutting down")

	// Phase 1: stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Phase 2: stop background loops that touch the database.
	cancelActivator()
	cancelHealth()

	// Phase 3: brief grace period for goroutines to notice cancellation.
	time.Sleep(200 * time.Millisecond)

	// Phase 4: close the database last, once nothing else can use it.
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("error closing database")
	}

	log.Info().Msg("examd shutdown complete")
	return nil
}

// runHealthLoop periodically pings the database and refreshes the
// connection-pool gauges, mirroring the teacher's own health-check
// goroutine shape.
func runHealthLoop(ctx context.Context, db *faststore.DB) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := db.HealthCheck(checkCtx)
			cancel()
			if ctx.Err() != nil {
				return
			}

			stats := db.Stats()
			metrics.DBConnectionsActive.Set(float64(stats["acquired_conns"]))
			metrics.DBConnectionsIdle.Set(float64(stats["idle_conns"]))

			if err != nil {
				failures++
				log.Warn().Err(err).Int("failures", failures).Msg("database health check failed")
				metrics.DBErrorsTotal.Inc()
				if failures >= 3 {
					log.Error().Msg("database connection lost after 3 consecutive failures")
				}
				continue
			}
			failures = 0
		}
	}
}
