package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"personhood/internal/audit"
	"personhood/internal/auth/revocation"
	httpapi "personhood/internal/http"
	jwttoken "personhood/internal/jwt_token"
	"personhood/internal/platform/config"
	"personhood/internal/platform/httpserver"
	"personhood/internal/platform/kafka"
	"personhood/internal/platform/metrics"
	"personhood/internal/platform/postgres"
	"personhood/internal/platform/redis"
	"personhood/internal/worldid/handler"
	"personhood/internal/worldid/service"
	"personhood/internal/worldid/store"
	"personhood/internal/worldid/verifier"
	"personhood/pkg/platform/middleware/admin"
	authmw "personhood/pkg/platform/middleware/auth"
)

const (
	shutdownTimeout = 10 * time.Second
	auditQueueSize  = 1024
)

// verificationStore is what the service needs from a backing store.
type verificationStore interface {
	service.Store
	service.StoreTx
}

func serve(parent context.Context, cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	worldID, err := config.LoadWorldID()
	if err != nil {
		// keep serving status and health; init and verify report the error
		log.Error("world id configuration invalid", "error", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	health := map[string]httpapi.HealthCheck{}

	st, closeStore, err := openStore(ctx, cfg, log, health)
	if err != nil {
		return err
	}
	defer closeStore()

	var revocations authmw.TokenRevocationChecker = revocation.NewInMemoryTRL()
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		revocations = revocation.NewRedisTRL(redisClient.Client)
		health["redis"] = redisClient.Health
		log.Info("token revocation list backed by redis")
	}

	queue := audit.NewQueue(auditQueueSize)
	auditSink, closeSink, err := openAuditSink(ctx, cfg, log, health)
	if err != nil {
		return err
	}
	defer closeSink()

	var remote service.Verifier
	if worldID != nil {
		remote = verifier.New(worldID.BaseURL, worldID.AppID, worldID.APIKey, worldID.VerifyTimeout,
			verifier.WithLogger(log),
			verifier.WithMetrics(m),
		)
	}
	svc := service.New(st, st, remote, worldID,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithAuditPublisher(audit.NewPublisher(queue)),
	)

	jwtValidator := jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience))
	h := handler.New(svc, log, m)
	router := httpapi.NewRouter(httpapi.Options{
		Logger:   log,
		Gatherer: prometheus.DefaultGatherer,
		Health:   health,
		Routes: []httpapi.RouteRegistrar{
			func(r chi.Router) { h.Register(r, authmw.RequireAuth(jwtValidator, revocations, log)) },
			func(r chi.Router) { h.RegisterAdmin(r, admin.RequireAdminToken(cfg.Auth.AdminToken, log)) },
		},
	})
	srv := httpserver.New(cfg.Addr, router)
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	log.Info("starting personhood", "addr", ln.Addr().String(), "env", cfg.Env)
	return run(ctx, srv, ln, audit.NewWorker(auditSink, queue.Events(), log), log)
}

// run serves until ctx is cancelled. The audit worker is stopped only after
// the HTTP server has finished its in-flight requests.
func run(ctx context.Context, srv *http.Server, ln net.Listener, worker *audit.Worker, log *slog.Logger) error {
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := worker.Run(workerCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		err := srv.Shutdown(shutdownCtx)
		stopWorker()
		return err
	})
	return g.Wait()
}

// openStore selects Postgres when DATABASE_URL is set, the in-memory store
// otherwise.
func openStore(ctx context.Context, cfg config.Server, log *slog.Logger, health map[string]httpapi.HealthCheck) (verificationStore, func(), error) {
	if cfg.Postgres.DSN == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		return store.NewInMemoryStore(), func() {}, nil
	}
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	health["postgres"] = db.PingContext
	return store.NewPostgres(db), closeDB(db, log), nil
}

// openAuditSink forwards audit events to Kafka when brokers are configured
// and keeps them in memory otherwise.
func openAuditSink(ctx context.Context, cfg config.Server, log *slog.Logger, health map[string]httpapi.HealthCheck) (audit.Sink, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("KAFKA_BROKERS not set, audit events kept in memory")
		return audit.NewInMemoryStore(), func() {}, nil
	}
	producer, err := kafka.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		return nil, nil, err
	}
	if err := producer.EnsureTopic(ctx, cfg.Kafka.AuditTopic, 3, 1); err != nil {
		log.Warn("could not ensure audit topic", "topic", cfg.Kafka.AuditTopic, "error", err)
	}
	health["kafka"] = producer.Ping
	return audit.NewKafkaSink(producer, cfg.Kafka.AuditTopic), producer.Close, nil
}

func migrate(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	if cfg.Postgres.DSN == "" {
		return errors.New("DATABASE_URL is required")
	}
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer closeDB(db, log)()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

func issueToken(cfg config.Server, accountID string, ttl time.Duration) (string, error) {
	svc := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	return svc.GenerateAccessToken(accountID, ttl)
}

func closeDB(db *sql.DB, log *slog.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			log.Warn("failed to close database", "error", err)
		}
	}
}
