package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	docapp "github.com/erp/docservice/internal/application/document"
	"github.com/erp/docservice/internal/application/storage"
	"github.com/erp/docservice/internal/bootstrap"
	"github.com/erp/docservice/internal/infrastructure/config"
	"github.com/erp/docservice/internal/infrastructure/email"
	"github.com/erp/docservice/internal/infrastructure/logger"
	"github.com/erp/docservice/internal/infrastructure/printing"
	"github.com/erp/docservice/internal/interfaces/http/handler"
	"github.com/erp/docservice/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := bootstrap.NewLogger(cfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()
	tel, err := bootstrap.NewTelemetry(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()
	if log, err = tel.Logger(cfg, log); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("Starting document service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Bool("remote_enabled", cfg.Storage.RemoteEnabled),
		zap.Bool("fallback_enabled", cfg.Storage.FallbackEnabled),
		zap.Bool("object_store_enabled", cfg.Storage.ObjectStoreEnabled),
	)
	if cfg.App.APIKey == "" {
		log.Warn("No API key configured, the API is unauthenticated")
	}

	// Print service is optional
	var printer storage.Printer
	if cfg.Printer.URL != "" {
		client, err := printing.NewClient(cfg.Printer, log.Named("printer"))
		if err != nil {
			log.Fatal("Failed to create print client", zap.Error(err))
		}
		printer = client
	} else {
		log.Info("No print service configured, print requests will report a print error")
	}

	stack, err := bootstrap.NewStorage(ctx, cfg, bootstrap.StorageOptions{
		Printer: printer,
		Metrics: tel.Storage,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		stack.Close(closeCtx)
	}()

	renderer := printing.NewChromedpRenderer(printing.ChromedpConfigFrom(cfg.Renderer, log.Named("renderer")))
	defer func() {
		if err := renderer.Close(); err != nil {
			log.Error("Error closing renderer", zap.Error(err))
		}
	}()

	opts := []docapp.Option{
		docapp.WithMetrics(tel.Storage),
		docapp.WithLogger(log.Named("documents")),
	}
	if cfg.Email.APIKey != "" {
		mailer, err := email.NewClient(cfg.Email, log.Named("email"))
		if err != nil {
			log.Fatal("Failed to create email client", zap.Error(err))
		}
		opts = append(opts, docapp.WithMailer(mailer))
	} else {
		log.Info("No email API key configured, email requests will fail")
	}
	if cfg.DevOutput.Enabled {
		dev, err := printing.NewDevOutput(cfg.DevOutput.Dir, log.Named("devoutput"))
		if err != nil {
			log.Fatal("Failed to create dev output directory", zap.Error(err))
		}
		opts = append(opts, docapp.WithDevWriter(dev))
		log.Info("Writing rendered documents locally", zap.String("dir", cfg.DevOutput.Dir))
	}

	service := docapp.NewService(renderer, stack.Router, stack.Mover, opts...)

	engine := router.NewEngine(router.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		APIKey:         cfg.App.APIKey,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Tracing:        cfg.Telemetry.Enabled,
	}, router.Handlers{
		Documents: handler.NewDocumentHandler(service),
		Health:    handler.NewHealthHandler(storage.StaticFlags(cfg.Storage)),
	}, log)

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info("Shutting down server...")
	case err := <-serveErr:
		log.Error("Server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
