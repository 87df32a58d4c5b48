package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wicaksana/gema/adapters"
	"github.com/wicaksana/gema/adapters/mongo"
	"github.com/wicaksana/gema/adapters/pipeline"
	"github.com/wicaksana/gema/adapters/status"
	"github.com/wicaksana/gema/domain/repositories"
	"github.com/wicaksana/gema/internal/api"
	"github.com/wicaksana/gema/internal/auth"
	"github.com/wicaksana/gema/internal/config"
	"github.com/wicaksana/gema/internal/observability"
	"github.com/wicaksana/gema/internal/websocket"
)

func main() {
	godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	if cfg.JWTSecret == "" {
		logger.Fatal("GEMA_JWT_SECRET is required")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace, prometheus.DefaultRegisterer)
	authenticator := auth.NewAuthenticator(cfg.JWTSecret)
	hub := websocket.NewHub(metrics, logger)

	devices, cleanup := buildDeviceRepository(cfg, logger)
	defer cleanup()

	wsDeps := websocket.Deps{
		Pipeline:          buildPipeline(cfg, logger),
		Sink:              buildSink(cfg, logger),
		Metrics:           metrics,
		Logger:            logger,
		HeartbeatInterval: cfg.HeartbeatInterval,
		LivenessTimeout:   cfg.LivenessTimeout(),
		WriteTimeout:      cfg.WriteTimeout,
		MaxMessageSize:    cfg.MaxMessageSize,
		MaxSpanBytes:      cfg.MaxSpanBytes,
		SendQueueSize:     cfg.SendQueueSize,
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	api.NewServer(hub, devices, authenticator, wsDeps, cfg.WSPath, logger).Register(e)

	go func() {
		if err := e.Start(cfg.BindAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server stopped", zap.Error(err))
		}
	}()
	logger.Info("Server started",
		zap.String("addr", cfg.BindAddr),
		zap.String("wsPath", cfg.WSPath),
		zap.String("pipeline", cfg.PipelineProvider))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited")
}

func buildPipeline(cfg config.Config, logger *zap.Logger) repositories.ConversationPipeline {
	if cfg.PipelineProvider == config.PipelineMock {
		logger.Info("Using mock pipeline")
		return pipeline.NewMockPipeline(logger)
	}

	responder, err := pipeline.NewGeminiResponder(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	if err != nil {
		logger.Fatal("Failed to build responder", zap.Error(err))
	}
	synthesizer, err := pipeline.NewElevenLabsSynthesizer(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, logger)
	if err != nil {
		logger.Fatal("Failed to build synthesizer", zap.Error(err))
	}
	return pipeline.NewAssistPipeline(
		pipeline.NewGoogleTranscriber(),
		responder,
		synthesizer,
		cfg.SpeechLanguage,
		logger,
	)
}

func buildSink(cfg config.Config, logger *zap.Logger) repositories.ConnectivitySink {
	sinks := status.MultiSink{
		status.NewZapSink(logger),
		status.NewPrometheusSink(cfg.MetricsNamespace, prometheus.DefaultRegisterer),
	}
	if cfg.StatusWebhookURL != "" {
		sinks = append(sinks, status.NewWebhookSink(cfg.StatusWebhookURL, logger))
	}
	return sinks
}

func buildDeviceRepository(cfg config.Config, logger *zap.Logger) (repositories.DeviceRepository, func()) {
	if cfg.MongoURI == "" {
		logger.Info("Using in-memory device store")
		repo := adapters.NewMemoryDeviceRepository()
		repo.Seed("GEMA001", "secret123", "doll-v1")
		return repo, func() {}
	}

	client, err := mongo.NewClient(cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		client.Close(ctx)
	}
	return mongo.NewDeviceRepository(client), cleanup
}
