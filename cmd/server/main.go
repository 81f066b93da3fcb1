package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pythagorean.app/linkchat/internal/api"
	"pythagorean.app/linkchat/internal/config"
	"pythagorean.app/linkchat/internal/logger"
	"pythagorean.app/linkchat/internal/metrics"
	"pythagorean.app/linkchat/internal/rag"
	"pythagorean.app/linkchat/internal/store"
)

func main() {
	// Load configuration
	foundEnv := config.LoadConfig()
	cfg := config.AppConfig

	log := logger.New(logger.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		Production: cfg.IsProduction(),
	})
	defer log.Sync()
	if !foundEnv {
		log.Info("no .env file found, relying on environment variables")
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer dbStore.Close()

	// Gemini is optional; without it answers are extractive
	var generator rag.Generator
	if cfg.GeminiAPIKey != "" {
		llmService, err := rag.NewLLMService(context.Background(), cfg.GeminiAPIKey, log)
		if err != nil {
			log.Fatal("failed to initialize LLM service", zap.Error(err))
		}
		defer llmService.Close()
		generator = llmService
	}

	ragService := rag.NewRAGService(dbStore, generator, log)
	chatService := rag.NewChatService(dbStore, ragService, log)

	m := metrics.New()
	apiHandler := api.NewAPIHandler(chatService, m, cfg.ShareBaseURL, log)
	router := api.NewRouter(apiHandler, api.RouterOptions{
		Logger:       log,
		Metrics:      m,
		RateLimitRPS: cfg.RateLimitRPS,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,  // uploads
		WriteTimeout: 120 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("addr", serverAddr), zap.Bool("llm", generator != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
		return
	}
	log.Info("server exiting gracefully")
}
