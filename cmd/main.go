package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika-relay/adapters/llm"
	"github.com/satriahrh/arunika-relay/adapters/speech"
	"github.com/satriahrh/arunika-relay/adapters/tts"
	"github.com/satriahrh/arunika-relay/domain/repositories"
	"github.com/satriahrh/arunika-relay/internal/api"
	"github.com/satriahrh/arunika-relay/internal/auth"
	"github.com/satriahrh/arunika-relay/internal/config"
	"github.com/satriahrh/arunika-relay/internal/session"
	"github.com/satriahrh/arunika-relay/internal/telemetry"
	"github.com/satriahrh/arunika-relay/internal/websocket"
	"github.com/satriahrh/arunika-relay/usecase"
)

const serviceName = "arunika-relay"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var traceOut io.Writer
	if cfg.Telemetry.Stdout {
		traceOut = os.Stdout
	}
	shutdownTracer, err := telemetry.InitTracer(serviceName, traceOut, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize adapters
	completion, err := newCompletionBackend(ctx, cfg.LLM, logger)
	if err != nil {
		logger.Fatal("Failed to initialize completion backend", zap.Error(err))
	}
	synthesis, err := newSpeechBackend(cfg.TTS, logger)
	if err != nil {
		logger.Fatal("Failed to initialize speech backend", zap.Error(err))
	}

	registry := session.NewRegistry(logger)
	hub := websocket.NewHub(registry, logger)
	go hub.Run(ctx)

	chain := usecase.NewChainService(completion, synthesis, registry, hub, usecase.ChainOptions{
		ChunkLimit:  cfg.Pipeline.ChunkLimit,
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		BaseDelay:   cfg.Pipeline.BaseDelay,
		Timeout:     cfg.Pipeline.Timeout,
	}, logger)

	var issuer *auth.TokenIssuer
	if cfg.Auth.Enabled() {
		issuer = auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.TTL)
	} else {
		logger.Warn("WebSocket auth disabled, sessions are chosen by clients")
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
			}
			if v.Error != nil {
				logger.Warn("Request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("Request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, api.Dependencies{
		Hub: hub,
		WebSocket: websocket.NewHandler(hub, chain, repositories.SpeechRequest{
			Voice:  cfg.TTS.Voice,
			Model:  cfg.TTS.Model,
			Format: cfg.TTS.Format,
		}, logger),
		Sessions: registry,
		Issuer:   issuer,
		Logger:   logger,
	})

	addr := ":" + strconv.Itoa(cfg.Server.Port)

	// Graceful shutdown
	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("addr", addr),
		zap.String("llmProvider", cfg.LLM.Provider),
		zap.String("ttsProvider", cfg.TTS.Provider))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Closing the hub drops every session, so in-flight runs stop at their
	// next checkpoint.
	stop()

	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Error("Failed to flush traces", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zapConfig.Level = level

	return zapConfig.Build()
}

func newCompletionBackend(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (repositories.LargeLanguageModel, error) {
	if cfg.Provider == config.ProviderMock {
		logger.Info("Using mock completion backend")
		return llm.NewMockGeminiClient(), nil
	}

	return llm.NewGeminiLLM(ctx, llm.GeminiConfig{
		APIKey:          cfg.APIKey,
		Model:           cfg.Model,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
		SystemPrompt:    cfg.SystemPrompt,
		BaseURL:         cfg.BaseURL,
	}, logger)
}

func newSpeechBackend(cfg config.TTSConfig, logger *zap.Logger) (repositories.TextToSpeech, error) {
	if cfg.Provider == config.ProviderMock {
		logger.Info("Using mock speech backend")
		return speech.NewMockTextToSpeech(logger), nil
	}

	return tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
		APIKey:       cfg.APIKey,
		APIBaseURL:   cfg.BaseURL,
		VoiceID:      cfg.Voice,
		ModelID:      cfg.Model,
		OutputFormat: cfg.Format,
	}, logger)
}
