package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/obralink/obralink/internal/api"
	"github.com/obralink/obralink/internal/api/handler"
	"github.com/obralink/obralink/internal/api/middleware"
	"github.com/obralink/obralink/internal/config"
	"github.com/obralink/obralink/internal/domain"
	"github.com/obralink/obralink/internal/inference"
	"github.com/obralink/obralink/internal/logger"
	"github.com/obralink/obralink/internal/repository"
	"github.com/obralink/obralink/internal/service"
	"github.com/obralink/obralink/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLog := logger.NewDefault()
	logger.SetDefaultLogger(appLog)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}
	jobRepo := repository.NewJobRepository(db)

	// Initialize artifact storage (supports MinIO, R2, S3)
	objectStorage, err := storage.NewStorage(&storage.S3Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize storage")
	}

	ctx := context.Background()
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	// Initialize inference gateway
	gateway := inference.NewClient(&inference.Config{
		Provider:  cfg.Inference.Provider,
		Model:     cfg.Inference.Model,
		APIKey:    cfg.Inference.APIKey,
		BaseURL:   cfg.Inference.BaseURL,
		Timeout:   cfg.Inference.Timeout,
		MaxTokens: cfg.Inference.MaxTokens,
	})
	appLog.WithFields(logger.Fields{
		"provider": cfg.Inference.Provider,
		"model":    gateway.GetModel(),
	}).Info("Inference gateway initialized")

	// Initialize services
	intakeService := service.NewIntakeService(jobRepo, objectStorage, appLog, &service.IntakeConfig{
		MaxFileSize:  cfg.Intake.MaxFileSize,
		MaxFiles:     cfg.Intake.MaxFiles,
		AllowedTypes: cfg.Intake.AllowedTypes,
		KeyPrefix:    cfg.Storage.Prefix,
	})
	pipelineService := service.NewPipelineService(jobRepo, objectStorage, gateway, appLog, &service.PipelineConfig{
		StageTimeout: cfg.Pipeline.StageTimeout,
	})
	statusService := service.NewStatusService(jobRepo)

	// Build the bearer-token table
	tokens := middleware.StaticTokens{}
	for _, t := range cfg.Auth.Tokens {
		tokens[t.Token] = domain.Identity{
			OwnerID:  t.OwnerID,
			TenantID: t.TenantID,
			Admin:    t.Admin,
		}
	}

	jobHandler := handler.NewJobHandler(intakeService, pipelineService, statusService, appLog, cfg.Pipeline.RunTimeout)

	// Setup router
	router := api.SetupRouter(jobHandler, tokens, appLog, &api.RouterConfig{
		Mode: cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLog.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Fatal("Server forced to shutdown")
	}

	appLog.Info("Server exited")
}
