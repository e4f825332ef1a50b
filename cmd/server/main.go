package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/twmb/franz-go/pkg/kgo"

	"attest/internal/catalog"
	"attest/internal/notify"
	"attest/internal/notify/dispatch"
	"attest/internal/platform/config"
	"attest/internal/platform/logger"
	"attest/internal/platform/postgres"
	"attest/internal/platform/redis"
	"attest/internal/records"
	"attest/internal/refresh"
	refreshmetrics "attest/internal/refresh/metrics"
	"attest/internal/scoring"
	scoringmetrics "attest/internal/scoring/metrics"
	httptransport "attest/internal/transport/http"
	"attest/pkg/platform/audit"
	"attest/pkg/platform/audit/relay"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal services packages.
func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		log.Error("postgres connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := postgres.Migrate(db); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}
	pool, err := postgres.ConnectPool(ctx, cfg.Database)
	if err != nil {
		log.Error("pgx pool connect failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditStore := audit.NewPostgresStore(db)
	auditor := audit.NewPublisher(auditStore, log)
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers...),
			kgo.DefaultProduceTopic(cfg.Kafka.AuditTopic),
		)
		if err != nil {
			log.Error("kafka connect failed", "error", err)
			os.Exit(1)
		}
		defer kafkaClient.Close()
		auditRelay := relay.New(auditStore, kafkaClient, cfg.Kafka.AuditTopic, 5*time.Second, log)
		go func() { _ = auditRelay.Run(ctx) }()
	}

	recordsStore := records.NewPostgresStore(db)
	catalogStore := catalog.NewPostgresStore(db)
	scoreStore := scoring.NewPostgresScoreStore(db)
	notificationStore := notify.NewPostgresStore(db)
	deliveryQueue := dispatch.NewPostgresQueue(pool)

	evaluator := scoring.NewEvaluator(cfg.Refresh.LookaheadDays, log)
	scoringSvc := scoring.NewService(
		catalogStore,
		recordsStore.Clients(),
		recordsStore,
		recordsStore.Filings(),
		scoreStore,
		evaluator,
		scoring.WithThresholds(scoring.Thresholds{
			Green: cfg.Refresh.GreenThreshold,
			Amber: cfg.Refresh.AmberThreshold,
		}),
		scoring.WithAuditor(auditor),
		scoring.WithDB(db),
		scoring.WithMetrics(scoringmetrics.New()),
		scoring.WithLogger(log),
	)

	var limiter refresh.RunLimiter
	if redisClient != nil {
		limiter = refresh.NewRedisRunLimiter(redisClient.Client, "attest:refresh:runs", cfg.Refresh.RunsPerMinute, time.Minute)
	} else {
		limiter = refresh.NewMemoryRunLimiter(cfg.Refresh.RunsPerMinute, time.Minute)
	}
	runner := refresh.NewRunner(
		recordsStore,
		recordsStore.Clients(),
		scoringSvc,
		refresh.WithConcurrency(cfg.Refresh.TenantConcurrency),
		refresh.WithLimiter(limiter),
		refresh.WithMetrics(refreshmetrics.New()),
		refresh.WithAuditor(auditor),
		refresh.WithLogger(log),
	)
	scheduler := refresh.NewScheduler(runner, cfg.Refresh.Interval, log)
	go func() { _ = scheduler.Run(ctx) }()

	expiryEngine := notify.NewEngine(
		recordsStore,
		recordsStore,
		recordsStore,
		notificationStore,
		deliveryQueue,
		notify.Config{
			ThresholdDays:  cfg.Notify.ThresholdDays,
			NotifyingRoles: cfg.Notify.NotifyingRoles,
		},
		auditor,
		log,
	)
	go func() { _ = expiryEngine.Run(ctx, cfg.Notify.Interval) }()

	signer := dispatch.NewLinkSigner(cfg.Dispatch.LinkSigningKey, cfg.Dispatch.LinkBaseURL, cfg.Dispatch.LinkTTL)
	senders := dispatch.SenderRegistry{
		notify.ChannelEmail: dispatch.NewLogSender(log),
	}
	dispatcher := dispatch.NewDispatcher(
		deliveryQueue,
		notificationStore,
		senders,
		signer,
		dispatch.Config{
			Workers:        cfg.Dispatch.Workers,
			PollInterval:   cfg.Dispatch.PollInterval,
			MaxAttempts:    cfg.Dispatch.MaxAttempts,
			SendsPerMinute: cfg.Dispatch.SendsPerMinute,
		},
		auditor,
		log,
	)
	go func() { _ = dispatcher.Run(ctx) }()

	handler := httptransport.NewHandler(scoringSvc, runner, log)
	router := httptransport.NewRouter(handler, httptransport.MetricsHandler())

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		log.Info("starting attest server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
