package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nexconsult/sri-invoices/internal/api"
	"github.com/nexconsult/sri-invoices/internal/config"
	"github.com/nexconsult/sri-invoices/internal/logger"
	"github.com/nexconsult/sri-invoices/internal/services"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	// Import docs for Swagger
	_ "github.com/nexconsult/sri-invoices/docs"
)

// @title SRI Invoices API
// @version 1.0
// @description Downloads received electronic invoices from the Ecuador SRI portal
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.nexconsult.com/support
// @contact.email support@nexconsult.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

const shutdownTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err := serve(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Server stopped with error")
	}
	logger.Info("Server exited")
}

// serve runs the API until SIGINT or SIGTERM. Runs started through the API
// are cancelled with the services container on the way out.
func serve(cfg *config.Config, logger *logrus.Logger) error {
	logBootSummary(cfg, logger)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	container, err := services.NewContainer(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.WithError(err).Error("Failed to close services")
		}
	}()
	logDependencies(container.Health(), logger)

	server := api.NewServer(cfg, logger, container)
	defer server.Close()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", httpServer.Addr).Info("Listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("forced shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// logBootSummary records which portal, solver and stores this process
// talks to. Secrets are reported only as set or unset.
func logBootSummary(cfg *config.Config, logger *logrus.Logger) {
	storage := "local:" + cfg.Storage.LocalDir
	if cfg.Storage.Bucket != "" {
		storage = "gcs:" + cfg.Storage.Bucket
	}

	logger.WithFields(logrus.Fields{
		"environment":    cfg.Server.Environment,
		"port":           cfg.Server.Port,
		"portal":         cfg.Portal.LoginURL,
		"max_attempts":   cfg.Portal.MaxAttempts,
		"max_pages":      cfg.Portal.MaxPages,
		"solver":         cfg.Solver.APIKey != "",
		"headless":       cfg.Browser.Headless,
		"storage":        storage,
		"database":       fmt.Sprintf("%s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Name),
		"redis":          fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		"api_key":        cfg.Security.APIKey != "",
		"encryption_key": cfg.Security.EncryptionKey != "",
	}).Info("Starting SRI Invoices API Server")
}

// logDependencies warns about every dependency that did not come up
// healthy. The server still starts; /health/ready reports the same view.
func logDependencies(health map[string]interface{}, logger *logrus.Logger) {
	for name, entry := range health {
		fields, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		status, _ := fields["status"].(string)
		if status == "healthy" {
			continue
		}
		l := logger.WithFields(logrus.Fields{"dependency": name, "status": status})
		if msg, ok := fields["error"].(string); ok {
			l = l.WithField("error", msg)
		}
		l.Warn("Dependency not healthy at startup")
	}
}
