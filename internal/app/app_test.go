package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"persona-mirror/internal/config"
	"persona-mirror/internal/repository"
	"persona-mirror/internal/service"
)

func testConfig(driver string) *config.Config {
	return &config.Config{
		StoreDriver:          driver,
		SnapshotCacheTTL:     time.Minute,
		SnapshotEvery:        1,
		DriftCheckInterval:   10,
		DriftSmoothingFactor: 0.98,
		HistoryTurns:         4,
		LLMTimeout:           time.Second,
	}
}

func TestOpenStore_Memory(t *testing.T) {
	store, err := OpenStore(context.Background(), testConfig(config.StoreDriverMemory), zap.NewNop())
	require.NoError(t, err)
	defer store.Close()
	require.IsType(t, &repository.MemoryStore{}, store)
}

func TestOpenStore_SQLiteCreatesDirectory(t *testing.T) {
	cfg := testConfig(config.StoreDriverSQLite)
	cfg.SQLitePath = filepath.Join(t.TempDir(), "nested", "persona.db")

	store, err := OpenStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()
	require.IsType(t, &repository.SQLiteStore{}, store)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), testConfig("mongo"), zap.NewNop())
	require.Error(t, err)
}

func TestNewRedisClient_UnreachableOrUnset(t *testing.T) {
	cfg := testConfig(config.StoreDriverMemory)
	require.Nil(t, NewRedisClient(context.Background(), cfg, zap.NewNop()))

	cfg.RedisAddr = "127.0.0.1:1"
	require.Nil(t, NewRedisClient(context.Background(), cfg, zap.NewNop()))
}

func TestRedisBackedCacheAndLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(config.StoreDriverMemory)
	cfg.RedisAddr = mr.Addr()
	cfg.MessageRateLimit = 5
	cfg.MessageRateWindow = time.Minute

	client := NewRedisClient(context.Background(), cfg, zap.NewNop())
	require.NotNil(t, client)
	defer client.Close()

	require.IsType(t, &service.RedisSnapshotCache{}, NewSnapshotCache(cfg, client))
	limiter := NewMessageRateLimiter(cfg, client)
	require.NotNil(t, limiter)
	require.True(t, limiter.Allow(context.Background(), "u1"))
	require.True(t, mr.Exists("persona:rl:u1"))
}

func TestInProcessCacheAndLimiter(t *testing.T) {
	cfg := testConfig(config.StoreDriverMemory)
	require.IsType(t, &service.MemorySnapshotCache{}, NewSnapshotCache(cfg, nil))
	require.Nil(t, NewMessageRateLimiter(cfg, nil))

	cfg.MessageRateLimit = 1
	limiter := NewMessageRateLimiter(cfg, nil)
	require.NotNil(t, limiter)
	require.True(t, limiter.Allow(context.Background(), "u1"))
	require.False(t, limiter.Allow(context.Background(), "u1"))
}

func TestNewLLMClient(t *testing.T) {
	cfg := testConfig(config.StoreDriverMemory)
	require.Nil(t, NewLLMClient(cfg, zap.NewNop()))

	cfg.LLMAPIKey = "key"
	cfg.LLMRatePerSec = 1
	cfg.LLMBurst = 1
	require.NotNil(t, NewLLMClient(cfg, zap.NewNop()))
}

func TestNewPersonaService_WithoutLLMUsesFallback(t *testing.T) {
	cfg := testConfig(config.StoreDriverMemory)
	store := repository.NewMemoryStore()
	svc := NewPersonaService(cfg, store, service.NewMemorySnapshotCache(time.Minute), nil, zap.NewNop())

	res, err := svc.ProcessMessage(context.Background(), "u1", "honestly this is fine")
	require.NoError(t, err)
	require.Equal(t, service.ReplySourceFallback, res.ReplySource)
	require.NotEmpty(t, res.ReplyText)
}
