// Package main provides the Atelier API server entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/atelier-ai/atelier/internal/api/ws"
	"github.com/atelier-ai/atelier/internal/canvas"
	"github.com/atelier-ai/atelier/internal/config"
	"github.com/atelier-ai/atelier/internal/convert"
	"github.com/atelier-ai/atelier/internal/gateway"
	"github.com/atelier-ai/atelier/internal/observability"
	"github.com/atelier-ai/atelier/internal/studio"
)

func main() {
	// A local .env is a dev convenience; absence is fine.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Str("cache", cfg.Cache.Driver).
		Str("model", cfg.Gateway.Model).
		Msg("Starting Atelier API")

	ctx := context.Background()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Database initialization failed")
		os.Exit(1)
	}
	defer db.Close()

	cacheClient, events, err := openCache(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Cache initialization failed")
		os.Exit(1)
	}
	defer cacheClient.Close()

	converter, err := convert.NewConverter(cfg.Convert.JPEGQuality, cfg.Convert.MaxPages)
	if err != nil {
		logger.Error().Err(err).Msg("Converter initialization failed")
		os.Exit(1)
	}
	converter.SetMaxUploadBytes(cfg.Convert.MaxUploadBytes)

	modelClient := gateway.NewClient(gateway.Config{
		BaseURL:         cfg.Gateway.BaseURL,
		APIKey:          cfg.GatewayAPIKey(),
		Model:           cfg.Gateway.Model,
		ImageModel:      cfg.Gateway.ImageModel,
		RequestTimeout:  cfg.Gateway.RequestTimeout,
		MaxRetries:      cfg.Gateway.MaxRetries,
		ConfidenceFloor: cfg.Gateway.ConfidenceFloor,
	}, logger)

	studioService := studio.NewService(studio.Deps{
		DB:            db,
		Cache:         cacheClient,
		Events:        events,
		Gateway:       modelClient,
		Converter:     converter,
		Logger:        logger,
		MaxConcurrent: cfg.Convert.MaxConcurrent,
		CacheTTL:      cfg.Cache.TTL,
	})

	editor := canvas.NewEditor(studioService, modelClient, logger)

	hub := ws.NewHub(events, logger)
	go hub.Run()
	defer hub.Stop()

	router := NewRouter(AppDeps{
		Logger: logger,
		Config: cfg,
		DB:     db,
		Studio: studioService,
		Editor: editor,
		Hub:    hub,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
}
