package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/sagelearn/sage-voice/adapters/capture"
	"github.com/sagelearn/sage-voice/adapters/recovery"
	"github.com/sagelearn/sage-voice/adapters/storage"
	"github.com/sagelearn/sage-voice/adapters/stream"
	"github.com/sagelearn/sage-voice/adapters/synthesis"
	"github.com/sagelearn/sage-voice/internal/api"
	"github.com/sagelearn/sage-voice/internal/auth"
	"github.com/sagelearn/sage-voice/usecase"
)

func main() {
	// Environment overrides come from a local .env during development.
	godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx := context.Background()

	store, err := storage.NewSQLiteStore(storage.PathFromEnv())
	if err != nil {
		logger.Fatal("Failed to open state store", zap.Error(err))
	}
	defer store.Close()

	history, err := usecase.NewHistoryService(ctx, store, usecase.HistorySlotKey, logger)
	if err != nil {
		logger.Fatal("Failed to load history ledger", zap.Error(err))
	}
	conversation, err := usecase.NewConversationService(ctx, store, usecase.ThreadSlotKey, logger)
	if err != nil {
		logger.Fatal("Failed to load conversation thread", zap.Error(err))
	}

	// Adapters to the backend and the local audio hardware.
	transport := stream.NewClient(stream.ConfigFromEnv(), logger)
	poller := recovery.NewClient(recovery.ConfigFromEnv(), logger)
	synth := synthesis.NewClient(synthesis.ConfigFromEnv(), logger)
	player := synthesis.NewStreamingPlayer(os.Stdout, logger)
	mic := capture.NewSource(&capture.FileDevice{Path: micPath()}, capture.Config{}, logger)

	playback := usecase.NewPlaybackService(synth, player, logger)
	session := usecase.NewVoiceSessionService(
		mic,
		transport,
		poller,
		playback,
		history,
		auth.SignerFromEnv(),
		usecase.SessionConfig{AppendHistory: true},
		logger,
	)
	go session.Run()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, api.Deps{
		Session:      session,
		Playback:     playback,
		History:      history,
		Conversation: conversation,
		Logger:       logger,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8090"
	}

	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Voice session service started", zap.String("port", port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Service is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	session.Shutdown()
	logger.Info("Service exited")
}

func micPath() string {
	if p := os.Getenv("SAGE_MIC_PIPE"); p != "" {
		return p
	}
	return "/dev/stdin"
}
