package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clusterizer/internal/api"
	"clusterizer/internal/app/service"
	"clusterizer/internal/app/worker"
	"clusterizer/internal/common/security"
	"clusterizer/internal/domain/repository"
	"clusterizer/internal/platform/config"
	"clusterizer/internal/platform/database"
	"clusterizer/internal/platform/lock"
	"clusterizer/internal/platform/logger"
	"clusterizer/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	// 1. Configuration
	if err := config.Load(); err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	cfg := config.AppConfig

	zl, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, FilePath: cfg.LogFile})
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database
	db, err := database.Connect(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("database unavailable", zap.Error(err))
	}
	defer database.Close(db, zl)
	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			zl.Fatal("migration failed", zap.Error(err))
		}
		zl.Info("schema applied")
	}

	// 3. Reaper lock: Redis when configured, otherwise process-local.
	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisAddr != "" {
		rdb, err := lock.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			zl.Fatal("redis unavailable", zap.Error(err))
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb)
		zl.Info("using redis reaper lock", zap.String("addr", cfg.RedisAddr))
	}

	// 4. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 5. Repositories
	tx := repository.NewPgTransactor(db)
	userRepo := repository.NewPgUserRepository(db)
	platformRepo := repository.NewPgPlatformRepository(db)
	projectRepo := repository.NewPgProjectRepository(db)
	versionRepo := repository.NewPgProjectVersionRepository(db)
	taskRepo := repository.NewPgTaskRepository(db)
	assignmentRepo := repository.NewPgAssignmentRepository(db)
	resultRepo := repository.NewPgResultRepository(db)

	// 6. Services
	authService := service.NewAuthService(userRepo, security.NewAPIKeys(cfg.Secret))
	dispatchService := service.NewDispatchService(tx, projectRepo, taskRepo, assignmentRepo, collector, zl)
	submissionService := service.NewSubmissionService(tx, assignmentRepo, resultRepo, collector, zl)
	deadlineService := service.NewDeadlineService(tx, assignmentRepo, taskRepo)

	// 7. Deadline reaper
	reaper := worker.NewDeadlineWorker(deadlineService, locker, cfg.ReaperLockKey, cfg.ReaperInterval, collector, zl)
	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		reaper.Start(ctx)
	}()

	// 8. Router & HTTP server
	router := api.NewRouter(api.Services{
		Auth:            authService,
		Dispatch:        dispatchService,
		Submission:      submissionService,
		Users:           userRepo,
		Platforms:       platformRepo,
		Projects:        projectRepo,
		ProjectVersions: versionRepo,
		Tasks:           taskRepo,
		Assignments:     assignmentRepo,
		Results:         resultRepo,
		Metrics:         collector.Handler(),
	}, zl)

	server := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		zl.Info("server starting", zap.String("addr", cfg.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// 9. Graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		zl.Error("server failed", zap.Error(err))
		stop()
	}

	zl.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("server shutdown failed", zap.Error(err))
	}
	<-reaperDone
	zl.Info("server and reaper stopped")
}
