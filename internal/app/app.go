// Package app arma las dependencias compartidas por el servidor y el CLI.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"persona-mirror/internal/config"
	"persona-mirror/internal/db"
	"persona-mirror/internal/llm"
	"persona-mirror/internal/repository"
	"persona-mirror/internal/service"
)

const redisPingTimeout = 2 * time.Second

// OpenStore abre el store indicado por STORE_DRIVER.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if err := db.Ping(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		return repository.NewPgStore(pool), nil
	case config.StoreDriverSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return repository.NewSQLiteStore(conn), nil
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		return repository.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// NewRedisClient devuelve nil si REDIS_ADDR esta vacio o no responde al ping.
func NewRedisClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctxPing).Err(); err != nil {
		logger.Warn("redis ping failed, using in-process cache and limiter", zap.Error(err))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", zap.String("addr", cfg.RedisAddr))
	return client
}

// NewSnapshotCache usa Redis cuando hay cliente y el cache en memoria si no.
func NewSnapshotCache(cfg *config.Config, client *redis.Client) service.SnapshotCache {
	if client == nil {
		return service.NewMemorySnapshotCache(cfg.SnapshotCacheTTL)
	}
	return service.NewRedisSnapshotCache(client, cfg.SnapshotCacheTTL)
}

// NewMessageRateLimiter devuelve nil cuando MESSAGE_RATE_LIMIT es 0.
func NewMessageRateLimiter(cfg *config.Config, client *redis.Client) service.MessageRateLimiter {
	if cfg.MessageRateLimit <= 0 {
		return nil
	}
	if client == nil {
		return service.NewMemoryMessageRateLimiter(cfg.MessageRateWindow, cfg.MessageRateLimit)
	}
	return service.NewRedisMessageRateLimiter(client, cfg.MessageRateWindow, cfg.MessageRateLimit)
}

// NewLLMClient devuelve nil cuando no hay API key; el servicio usa entonces las respuestas de respaldo.
func NewLLMClient(cfg *config.Config, logger *zap.Logger) llm.LLMClient {
	if !cfg.LLMConfigured() {
		logger.Warn("llm api key not configured, replies will use fallback")
		return nil
	}
	base := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout, logger)
	if cfg.LLMRatePerSec <= 0 {
		return base
	}
	return llm.NewRateLimitedClient(base, cfg.LLMRatePerSec, cfg.LLMBurst)
}

// NewPersonaService conecta extractor, actualizador, cache y generador de respuestas.
func NewPersonaService(cfg *config.Config, store repository.Store, cache service.SnapshotCache, client llm.LLMClient, logger *zap.Logger) *service.PersonaService {
	return service.NewPersonaService(service.PersonaDeps{
		Store:     store,
		Extractor: service.NewSignalExtractor(client, logger),
		Updater: service.NewTraitUpdater(service.DriftConfig{
			Interval:        cfg.DriftCheckInterval,
			SmoothingFactor: cfg.DriftSmoothingFactor,
		}, logger),
		Loader:  service.NewSnapshotLoader(store.Snapshots(), cache, logger),
		Replies: service.NewReplyGenerator(client, service.NewFallbackBuilder(nil, cfg.FallbackSeed), cfg.LLMTimeout, logger),
	}, service.PersonaServiceConfig{
		SnapshotEvery: cfg.SnapshotEvery,
		HistoryTurns:  cfg.HistoryTurns,
	}, logger)
}
