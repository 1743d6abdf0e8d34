package main

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apihttp "github.com/banking/refdata-service/internal/api/http"
	"github.com/banking/refdata-service/internal/api/http/middleware"
	"github.com/banking/refdata-service/internal/cache"
	"github.com/banking/refdata-service/internal/config"
	"github.com/banking/refdata-service/internal/domain"
	"github.com/banking/refdata-service/internal/events"
	"github.com/banking/refdata-service/internal/gleif"
	"github.com/banking/refdata-service/internal/isindb"
	"github.com/banking/refdata-service/internal/pkg/health"
	"github.com/banking/refdata-service/internal/pkg/logger"
	"github.com/banking/refdata-service/internal/pkg/metrics"
	"github.com/banking/refdata-service/internal/pkg/tracer"
	"github.com/banking/refdata-service/internal/repository/postgres"
	rediscache "github.com/banking/refdata-service/internal/repository/redis"
	"github.com/banking/refdata-service/internal/resilience"
	"github.com/banking/refdata-service/internal/secrets"
	"github.com/banking/refdata-service/internal/service"
)

// Version is set at build time
var Version = "dev"

// flushInterval is how often buffered lookup events are retried
const flushInterval = 10 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-health-check" {
		if err := healthCheck(); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:           cfg.Logging.Level,
		Format:          cfg.Logging.Format,
		OutputPath:      cfg.Logging.OutputPath,
		MaxSizeMB:       cfg.Logging.MaxSizeMB,
		MaxBackups:      cfg.Logging.MaxBackups,
		MaxAgeDays:      cfg.Logging.MaxAgeDays,
		Compress:        cfg.Logging.Compress,
		EnableRequestID: cfg.Logging.EnableRequestID,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting refdata-service",
		logger.Component("main"),
		logger.Operation("startup"),
		zap.String("version", Version),
	)

	if cfg.Vault.Enabled {
		vaultSource, err := secrets.NewVaultSource(cfg.Vault)
		if err != nil {
			return err
		}
		if err := vaultSource.Apply(ctx, cfg); err != nil {
			return fmt.Errorf("failed to load secrets from vault: %w", err)
		}
		log.Info("Loaded secrets from vault", logger.Component("secrets"))
	}

	tr, err := tracer.New(ctx, tracer.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
		Version:      Version,
	})
	if err != nil {
		log.Warn("failed to create tracer, continuing without tracing", logger.ErrorField(err))
		tr = nil
	}
	defer func() { _ = tr.Shutdown(context.Background()) }()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}

	breakers := resilience.NewCircuitBreakers()
	breakers.OnStateChange(m.CircuitStateChanged)
	breakers.OnStateChange(func(name, from, to string) {
		log.Warn("circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from),
			zap.String("to", to),
		)
	})

	healthChecker := health.New(5 * time.Second)
	healthChecker.RegisterOptional("gleif", health.BreakerChecker("gleif", breakers.Gleif.State))

	leiTiers := service.LeiTiers{Local: cache.NewLRU[string, *domain.Lei](cfg.Cache.LeiCapacity)}
	isinTiers := service.IsinTiers{Local: cache.NewLRU[string, *domain.IsinConversion](cfg.Cache.IsinCapacity)}

	if cfg.Database.Enabled {
		pgPool, err := initPostgres(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		defer pgPool.Close()

		leiRepo := postgres.NewLeiRepository(pgPool, breakers.Postgres)
		leiTiers.Store = leiRepo
		isinTiers.Store = postgres.NewIsinRepository(pgPool, breakers.Postgres)
		healthChecker.Register("postgres", health.PingChecker("postgres", leiRepo.Ping))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		defer redisClient.Close()

		leiCache := rediscache.NewLeiCache(redisClient, breakers.Redis, cfg.Redis.LeiTTL)
		leiTiers.Shared = leiCache
		isinTiers.Shared = rediscache.NewIsinCache(redisClient, breakers.Redis, cfg.Redis.IsinTTL)
		healthChecker.RegisterOptional("redis", health.PingChecker("redis", leiCache.Ping))
	}

	var publisher events.Publisher = events.NewLogPublisher(log)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := events.NewLookupProducer(cfg.Kafka, breakers.Kafka, m, log)
		if err != nil {
			return fmt.Errorf("failed to create lookup event producer: %w", err)
		}
		defer producer.Close()
		go producer.RunFlusher(ctx, flushInterval)

		publisher = producer
		healthChecker.RegisterOptional("kafka", health.BreakerChecker("kafka", breakers.Kafka.State))
	}

	hmacSecret := []byte(cfg.Audit.HMACSecret)
	svcOpts := []service.Option{
		service.WithMetrics(m),
		service.WithTracer(tr),
		service.WithMaxBatchSize(cfg.Server.MaxBatchSize),
	}

	var isinSource service.IsinSource
	if cfg.IsinDB.Enabled {
		isinSource = isindb.New(cfg.IsinDB, breakers.IsinDB, log, isindb.WithTracer(tr), isindb.WithMetrics(m))
		healthChecker.RegisterOptional("isindb", health.BreakerChecker("isindb", breakers.IsinDB.State))
	}
	isinService := service.NewIsinService(isinSource, isinTiers, publisher, log, hmacSecret, svcOpts...)

	gleifClient := gleif.New(cfg.Gleif, breakers.Gleif, log, gleif.WithTracer(tr), gleif.WithMetrics(m))
	leiService := service.NewLeiService(gleifClient, leiTiers, publisher, log, hmacSecret,
		append(svcOpts, service.WithIsinResolver(isinService))...)

	authPublicKey, err := loadPublicKey(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to load JWT public key: %w", err)
	}

	router := apihttp.NewRouter(apihttp.RouterDeps{
		Config:        cfg,
		Logger:        log,
		Health:        healthChecker,
		Metrics:       m,
		LeiService:    leiService,
		IsinService:   isinService,
		RedisClient:   redisClient,
		RedisBreaker:  breakers.Redis,
		AuthPublicKey: authPublicKey,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := router.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Error("HTTP server failed", logger.ErrorField(err))
		return err
	}

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := router.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.ErrorField(err))
		return err
	}

	log.Info("Server exited gracefully")
	return nil
}

func initPostgres(ctx context.Context, cfg *config.Config, log *logger.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if cfg.Database.MigrateOnStart {
		migrator, err := postgres.NewMigrator(pool, log)
		if err != nil {
			pool.Close()
			return nil, err
		}
		defer migrator.Close()

		if err := migrator.Up(); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return pool, nil
}

// loadPublicKey returns nil when auth is disabled
func loadPublicKey(cfg config.AuthConfig) (crypto.PublicKey, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	pemData := cfg.JWTPublicKeyPEM
	if pemData == "" {
		data, err := os.ReadFile(cfg.JWTPublicKeyPath)
		if err != nil {
			return nil, err
		}
		pemData = string(data)
	}
	return middleware.ParsePublicKey(pemData)
}

func healthCheck() error {
	port := os.Getenv("REFDATA_SERVICE_SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get("http://localhost:" + port + "/health/live")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}
