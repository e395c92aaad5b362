package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/maneesh/sharebox/internal/apperrors"
	"github.com/maneesh/sharebox/internal/config"
	"github.com/maneesh/sharebox/internal/handlers"
	"github.com/maneesh/sharebox/internal/logger"
	"github.com/maneesh/sharebox/internal/middleware"
	"github.com/maneesh/sharebox/internal/quota"
	"github.com/maneesh/sharebox/internal/sharing"
	"github.com/maneesh/sharebox/internal/storage"
	"github.com/maneesh/sharebox/internal/tracing"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		boot, _ := logger.New(logger.DefaultConfig())
		boot.Fatal("failed to load config", zap.Error(err))
	}

	log, err := logger.New(&cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting sharebox",
		zap.String("service", cfg.ServiceName),
		zap.String("port", cfg.ServicePort),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing
	shutdownTracer, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.JaegerEndpoint,
		SampleRatio:    cfg.TraceSampleRatio,
	}, log)
	if err != nil {
		log.Fatal("failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Warn("error shutting down tracer", zap.Error(err))
		}
	}()

	// Initialize MinIO client
	minioClient, err := storage.NewMinioClient(ctx, storage.MinioOptions{
		Endpoint:   cfg.MinIOEndpoint,
		AccessKey:  cfg.MinIOAccessKey,
		SecretKey:  cfg.MinIOSecretKey,
		BucketName: cfg.MinIOBucketName,
		UseSSL:     cfg.MinIOUseSSL,
		Region:     cfg.MinIORegion,
		PartSize:   cfg.GetMinIOPartSizeBytes(),
	}, log)
	if err != nil {
		log.Fatal("failed to initialize MinIO client", zap.Error(err))
	}
	log.Info("MinIO client initialized", zap.String("bucket", cfg.MinIOBucketName))

	// Initialize TiDB client
	tidbClient, err := storage.NewTiDBClient(ctx, cfg.GetDSN())
	if err != nil {
		log.Fatal("failed to initialize TiDB client", zap.Error(err))
	}
	defer tidbClient.Close()
	if err := tidbClient.EnsureSchema(ctx); err != nil {
		log.Fatal("failed to ensure schema", zap.Error(err))
	}
	log.Info("TiDB client initialized")

	if cfg.QuotaTotalMB > 0 {
		seeded, err := tidbClient.SeedLimit(ctx, cfg.QuotaTotalMB)
		if err != nil {
			log.Fatal("failed to seed storage limit", zap.Error(err))
		}
		if seeded {
			log.Info("storage limit seeded", zap.Int64("total_mb", cfg.QuotaTotalMB))
		}
	}

	pingers := map[string]handlers.Pinger{
		"minio": minioClient,
		"tidb":  tidbClient,
	}

	// Quota
	policy := quota.NewPolicy(tidbClient, cfg.QuotaRefreshInterval)
	if limit, err := policy.Refresh(ctx); errors.Is(err, apperrors.ErrNotConfigured) {
		log.Warn("no storage limit configured, uploads will be refused until one is set")
	} else if err != nil {
		log.Fatal("failed to load storage limit", zap.Error(err))
	} else {
		log.Info("storage limit loaded", zap.Int64("total_mb", limit.TotalMB))
	}

	opts := []quota.Option{quota.WithCleanupTimeout(cfg.CleanupTimeout)}
	if cfg.UploadLockEnabled {
		redisClient, err := storage.NewRedisClient(ctx,
			cfg.GetRedisAddr(),
			cfg.RedisPassword,
			cfg.RedisDB,
			cfg.UploadLockTTL,
			cfg.UploadLockWait,
		)
		if err != nil {
			log.Fatal("failed to initialize Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		opts = append(opts, quota.WithLocker(redisClient))
		pingers["redis"] = redisClient
		log.Info("Redis upload lock enabled", zap.Duration("wait", cfg.UploadLockWait))
	}

	controller := quota.NewController(policy, quota.NewAccountant(tidbClient), minioClient, tidbClient, log, opts...)
	manager := sharing.NewManager(tidbClient, tidbClient, log)

	// Initialize handlers
	uploadHandler := handlers.NewUploadHandler(controller, cfg.GetMultipartMemoryBytes(), log)
	filesHandler := handlers.NewFilesHandler(tidbClient, policy, log)
	shareHandler := handlers.NewShareHandler(manager, log)
	healthHandler := handlers.NewHealthHandler(pingers, 2*time.Second, log)
	auth := middleware.NewJWTAuth(cfg.JWTSecret, log)

	// Setup HTTP router
	router := mux.NewRouter()
	router.Use(middleware.Observe(log))

	router.Handle("/health", healthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/files").Subrouter()
	api.Handle("/shared", traced(http.HandlerFunc(shareHandler.Shared), "GET /shared")).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(auth.Middleware)
	protected.Handle("/upload", traced(uploadHandler, "POST /upload")).Methods(http.MethodPost)
	protected.Handle("/list", traced(http.HandlerFunc(filesHandler.List), "GET /list")).Methods(http.MethodGet)
	protected.Handle("/limit", traced(http.HandlerFunc(filesHandler.Limit), "GET /limit")).Methods(http.MethodGet)
	protected.Handle("/rename/{fileId}", traced(http.HandlerFunc(filesHandler.Rename), "PATCH /rename/{fileId}")).Methods(http.MethodPatch)
	protected.Handle("/visibility/{storedName}", traced(http.HandlerFunc(shareHandler.Visibility), "PATCH /visibility/{storedName}")).Methods(http.MethodPatch)
	protected.Handle("/share/{storedName}", traced(http.HandlerFunc(shareHandler.Share), "PATCH /share/{storedName}")).Methods(http.MethodPatch)

	// The upload lock TTL is validated to outlast UploadTimeout
	srv := &http.Server{
		Addr:              ":" + cfg.ServicePort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.UploadTimeout,
		WriteTimeout:      cfg.UploadTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

func traced(h http.Handler, operation string) http.Handler {
	return otelhttp.NewHandler(h, operation)
}
