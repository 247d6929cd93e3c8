package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asakaida/warehouse/internal/entities"
	"github.com/asakaida/warehouse/internal/handlers"
	viewcache "github.com/asakaida/warehouse/internal/infrastructure/cache"
	"github.com/asakaida/warehouse/internal/infrastructure/config"
	"github.com/asakaida/warehouse/internal/infrastructure/database"
	"github.com/asakaida/warehouse/internal/infrastructure/logging"
	"github.com/asakaida/warehouse/internal/infrastructure/metrics"
	"github.com/asakaida/warehouse/internal/jobs"
	"github.com/asakaida/warehouse/internal/repositories/postgres"
	"github.com/asakaida/warehouse/internal/services"
	"github.com/asakaida/warehouse/internal/services/category"
	"github.com/asakaida/warehouse/pkg/cache/memorycache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	defaultEnv      = "dev"
	shutdownTimeout = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	env := os.Getenv("ENV")
	if env == "" {
		env = defaultEnv
	}

	if err := config.InitConfig(env); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	// Connect to database
	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pg.Close()

	logger.Info("connected to database",
		zap.String("env", env),
		zap.String("driver", cfg.Database.Driver),
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("database", cfg.Database.Database),
	)

	if err := pg.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize repositories
	entityRepo := postgres.NewPostgresEntityRepository(pg.DB)
	accountRepo := postgres.NewPostgresAccountRepository(pg.DB)
	projectRepo := postgres.NewPostgresProjectRepository(pg.DB)
	attributeRepo := postgres.NewPostgresAttributeRepository(pg.DB)
	statsRepo := postgres.NewPostgresStatsRepository(pg.DB)

	// Metrics
	collector := metrics.NewCollector()
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exporter := metrics.NewPrometheusExporter(collector, registry)
	recorder := metrics.NewRecorder(collector, exporter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Project view cache
	var projectCache services.ProjectCache
	if cfg.Cache.Enabled {
		ttl := time.Duration(cfg.Cache.TTLMinutes) * time.Minute
		store, err := memorycache.New(&memorycache.Config[*entities.ProjectView]{
			MaxSizeBytes:  cfg.Cache.MaxMemoryBytes,
			DefaultTTL:    ttl,
			EnableMetrics: cfg.Cache.Metrics,
			SizeOf:        viewcache.EstimateViewSize,
		})
		if err != nil {
			return fmt.Errorf("failed to create cache: %w", err)
		}
		defer store.Close()

		views := viewcache.NewProjectViewCache(store, ttl)
		collector.SetCache(views)
		projectCache = views

		logger.Info("project cache enabled",
			zap.Int64("max_memory_bytes", cfg.Cache.MaxMemoryBytes),
			zap.Duration("ttl", ttl),
		)

		if cfg.Cache.Listen {
			listener := viewcache.NewInvalidationListener(cfg.Database.ConnectionString(), views, logger)
			if err := listener.Start(ctx); err != nil {
				return fmt.Errorf("failed to start cache invalidation listener: %w", err)
			}
			defer func() {
				if err := listener.Stop(); err != nil {
					logger.Warn("failed to stop cache invalidation listener", zap.Error(err))
				}
			}()
		}
	}

	// Initialize services
	identityService := services.NewIdentityService(entityRepo, accountRepo, projectCache, logger)
	projectService := services.NewProjectService(projectRepo, projectCache, recorder, logger)
	attributeService := services.NewAttributeService(attributeRepo, projectRepo, projectCache, recorder, logger)

	categories, err := category.NewDefaultRegistry()
	if err != nil {
		return fmt.Errorf("failed to create category registry: %w", err)
	}

	warehouseHandler := handlers.NewWarehouseHandler(identityService, projectService, attributeService, categories, logger)

	if !cfg.Auth.Enabled() {
		logger.Warn("AUTH_TOKENS is empty; every caller may read and write")
	}

	// Create gRPC server
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			handlers.LoggingInterceptor(logger),
			metrics.UnaryServerInterceptor(collector, exporter, "/"+handlers.ServiceName+"/"),
			handlers.AuthInterceptor(cfg.Auth.Tokens),
		),
	)
	handlers.RegisterWarehouseServer(grpcServer, warehouseHandler)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(handlers.ServiceName, healthpb.HealthCheckResponse_SERVING)

	// Register reflection service (for grpcurl, etc.)
	reflection.Register(grpcServer)

	// Scheduled jobs
	if cfg.Jobs.Enabled {
		manager, err := jobs.NewManager(logger)
		if err != nil {
			return err
		}
		for _, job := range []jobs.Job{
			jobs.NewAttributeAuditJob(attributeRepo, collector, time.Duration(cfg.Jobs.AuditIntervalSeconds)*time.Second, logger),
			jobs.NewMetricsRefreshJob(statsRepo, collector, exporter, time.Duration(cfg.Jobs.MetricsRefreshSeconds)*time.Second, logger),
		} {
			if err := manager.Register(job); err != nil {
				return err
			}
		}
		manager.Start()
		defer func() {
			if err := manager.Stop(); err != nil {
				logger.Warn("failed to stop job manager", zap.Error(err))
			}
		}()
	}

	// Metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pg.HealthCheck(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Start listening
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	serverErrors := make(chan error, 2)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", addr))
		if err := grpcServer.Serve(lis); err != nil {
			serverErrors <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics server listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case runErr = <-serverErrors:
		logger.Error("server failed", zap.Error(runErr))
	case sig := <-sigChan:
		logger.Info("received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
	}

	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		logger.Info("gRPC server stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, forcing stop")
		grpcServer.Stop()
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to stop metrics server", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return runErr
}
