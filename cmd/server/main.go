package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"passport/internal/audit"
	auditstore "passport/internal/audit/store"
	"passport/internal/challenge"
	challengestore "passport/internal/challenge/store"
	"passport/internal/credential"
	credentialstore "passport/internal/credential/store"
	"passport/internal/did"
	"passport/internal/keys"
	"passport/internal/platform/config"
	"passport/internal/platform/httpserver"
	"passport/internal/platform/logger"
	"passport/internal/platform/metrics"
	"passport/internal/platform/postgres"
	"passport/internal/platform/redis"
	httpapi "passport/internal/transport/http"
	"passport/internal/trust"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err.Error())
		os.Exit(1)
	}

	var (
		ledger     trust.Ledger
		nonceStore challenge.Store
		auditStore audit.Store
		health     httpapi.HealthChecker
	)
	if db != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			cancel()
			log.Error("schema setup failed", "error", err.Error())
			os.Exit(1)
		}
		cancel()
		ledger = credentialstore.NewPostgres(db)
		nonceStore = challengestore.NewPostgres(db)
		auditStore = auditstore.NewPostgres(db)
		health = func(ctx context.Context) error { return postgres.Health(ctx, db) }
		defer db.Close()
	} else {
		log.Warn("DATABASE_URL not set, using in-memory ledgers")
		ledger = credentialstore.NewMemory()
		nonceStore = challengestore.NewMemory()
		auditStore = auditstore.NewMemory()
	}

	if cfg.RedisURL != "" {
		rdb, err := redis.New(cfg.RedisURL)
		if err != nil {
			log.Error("redis connection failed", "error", err.Error())
			os.Exit(1)
		}
		defer rdb.Close()
		nonceStore = challengestore.NewRedis(rdb.Client)
		log.Info("challenge ledger backed by redis")
	}

	keyStore := keys.New(cfg.PrivateKey, cfg.PublicKey)
	resolver := did.NewResolver(keyStore, log)
	codec := credential.NewCodec(cfg.IssuerDID)
	auditor := audit.NewPublisher(auditStore)

	challenges := challenge.NewService(nonceStore, log, challenge.WithMetrics(m))
	engine := trust.NewEngine(keyStore, resolver, codec, ledger, challenges, log,
		trust.WithMetrics(m),
		trust.WithAuditor(auditor),
	)

	handler := httpapi.NewHandler(engine, challenges, cfg.AdminToken, log,
		httpapi.WithHealthCheck(health),
		httpapi.WithDefaultChallengeTTL(cfg.ChallengeTTL),
	)
	router := httpapi.NewRouter(handler)

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting passport server", "addr", cfg.Addr, "issuer", cfg.IssuerDID)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err.Error())
		os.Exit(1)
	}
}
