package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"persona-mirror/internal/app"
	"persona-mirror/internal/config"
	apihttp "persona-mirror/internal/http"
	"persona-mirror/internal/service"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err), zap.String("driver", cfg.StoreDriver))
	}
	defer store.Close()

	redisClient := app.NewRedisClient(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	llmClient := app.NewLLMClient(cfg, logger)
	personaSvc := app.NewPersonaService(cfg, store, app.NewSnapshotCache(cfg, redisClient), llmClient, logger)
	limiter := app.NewMessageRateLimiter(cfg, redisClient)

	var jwtSvc *service.JWTService
	if cfg.JWTSecret != "" {
		jwtSvc = service.NewJWTService(cfg.JWTSecret, time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute)
	} else {
		logger.Warn("jwt secret not configured, api routes are unauthenticated")
	}

	router := apihttp.NewRouter(logger,
		apihttp.NewPersonaHandler(logger, personaSvc, limiter),
		apihttp.NewMirrorHandler(logger, personaSvc, limiter),
		jwtSvc,
		apihttp.HealthInfo{
			StoreDriver:   cfg.StoreDriver,
			LLMConfigured: cfg.LLMConfigured(),
			AuthEnabled:   jwtSvc != nil,
		},
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.String("store", cfg.StoreDriver),
		zap.Bool("llm", cfg.LLMConfigured()),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}
