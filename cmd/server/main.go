package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"taxfile/internal/admin/keys"
	"taxfile/internal/audit"
	"taxfile/internal/catalog"
	"taxfile/internal/filing"
	formhandler "taxfile/internal/form/handler"
	"taxfile/internal/form/service"
	memorystore "taxfile/internal/form/store/memory"
	pgstore "taxfile/internal/form/store/postgres"
	"taxfile/internal/platform/config"
	"taxfile/internal/platform/httpserver"
	"taxfile/internal/platform/logger"
	"taxfile/internal/platform/metrics"
	"taxfile/internal/platform/postgres"
	"taxfile/internal/platform/redis"
	"taxfile/internal/platform/token"
	"taxfile/internal/ratelimit"
	httptransport "taxfile/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := loadCatalog(cfg, log)
	if err != nil {
		return err
	}

	var (
		db       *sql.DB
		forms    service.FormStore
		answers  service.AnswerStore
		docs     service.DocumentStore
		progress service.ProgressStore
		filings  filing.Lookup
	)
	if cfg.DatabaseURL != "" {
		db, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return err
		}
		store := pgstore.New(db, cat)
		forms, answers, docs, progress = store, store, store, store
		filings = filing.NewPostgresLookup(db)
		log.Info("using postgres stores")
	} else {
		store := memorystore.New()
		forms, answers, docs, progress = store, store, store, store
		filings = filing.NewInMemoryLookup()
		log.Warn("no database configured, using in-memory stores")
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var limitStore ratelimit.Store
	if redisClient != nil {
		limitStore = ratelimit.NewRedisStore(redisClient.Client)
	} else {
		limitStore = ratelimit.NewInMemoryStore()
	}

	auditor, closeAuditor, err := buildAuditPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeAuditor()

	m := metrics.New()
	svc := service.New(forms, answers, docs, progress, filings, cat,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithAuditPublisher(auditor),
	)

	limiter := httptransport.NewSaveLimiter(limitStore, cfg.AutosaveLimit, cfg.AutosaveWindow, log)
	handler := formhandler.New(svc, log, formhandler.WithSaveLimiter(limiter))

	health := map[string]httptransport.HealthChecker{}
	if db != nil {
		health["postgres"] = dbHealth{db: db}
	}
	if redisClient != nil {
		health["redis"] = redisClient
	}

	router := httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		FormHandler:    handler,
		JWTValidator:   token.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience),
		AdminVerifier:  keys.NewStore(cfg.AdminKeyHashes...),
		HealthChecks:   health,
		RequestTimeout: cfg.RequestTimeout,
	})

	apiServer := httpserver.New(cfg.Addr, router)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := httpserver.New(cfg.MetricsAddr, metricsMux)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("api server listening", "addr", cfg.Addr)
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		log.Info("metrics server listening", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := apiServer.Shutdown(shutdownCtx)
		if mErr := metricsServer.Shutdown(shutdownCtx); err == nil {
			err = mErr
		}
		return err
	})

	return group.Wait()
}

func loadCatalog(cfg config.Server, log *slog.Logger) (*catalog.Catalog, error) {
	if cfg.CatalogPath == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	log.Info("loaded field catalog", "path", cfg.CatalogPath)
	return cat, nil
}

func buildAuditPublisher(ctx context.Context, cfg config.Server, log *slog.Logger) (service.AuditPublisher, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return audit.NewLogPublisher(log), func() {}, nil
	}
	publisher, err := audit.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info("audit events publishing to kafka", "topic", cfg.Kafka.AuditTopic)
	closeFn := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := publisher.Close(closeCtx); err != nil {
			log.Warn("audit publisher close", "error", err)
		}
	}
	return publisher, closeFn, nil
}

type dbHealth struct{ db *sql.DB }

func (h dbHealth) Health(ctx context.Context) error { return h.db.PingContext(ctx) }
