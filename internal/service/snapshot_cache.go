package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"persona-mirror/internal/domain"
	"persona-mirror/internal/repository"
)

// SnapshotCache guarda el ultimo snapshot por usuario. Es solo una optimizacion:
// la fuente de verdad sigue siendo el store.
type SnapshotCache interface {
	Get(ctx context.Context, userID string) (domain.PersonaSnapshot, bool, error)
	Set(ctx context.Context, snapshot domain.PersonaSnapshot) error
	Invalidate(ctx context.Context, userID string) error
}

type memoryCacheEntry struct {
	snapshot domain.PersonaSnapshot
	expires  time.Time
}

type MemorySnapshotCache struct {
	mu    sync.RWMutex
	items map[string]memoryCacheEntry
	ttl   time.Duration
}

// NewMemorySnapshotCache crea la cache de proceso; ttl <= 0 no expira.
func NewMemorySnapshotCache(ttl time.Duration) *MemorySnapshotCache {
	return &MemorySnapshotCache{items: make(map[string]memoryCacheEntry), ttl: ttl}
}

func (c *MemorySnapshotCache) Get(_ context.Context, userID string) (domain.PersonaSnapshot, bool, error) {
	c.mu.RLock()
	e, ok := c.items[userID]
	c.mu.RUnlock()
	if !ok {
		return domain.PersonaSnapshot{}, false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		c.mu.Lock()
		delete(c.items, userID)
		c.mu.Unlock()
		return domain.PersonaSnapshot{}, false, nil
	}
	return e.snapshot, true, nil
}

func (c *MemorySnapshotCache) Set(_ context.Context, snapshot domain.PersonaSnapshot) error {
	e := memoryCacheEntry{snapshot: snapshot}
	if c.ttl > 0 {
		e.expires = time.Now().Add(c.ttl)
	}
	c.mu.Lock()
	c.items[snapshot.UserID] = e
	c.mu.Unlock()
	return nil
}

func (c *MemorySnapshotCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	delete(c.items, userID)
	c.mu.Unlock()
	return nil
}

// RedisSnapshotCache serializa el snapshot en JSON con TTL.
type RedisSnapshotCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisSnapshotCache(client redis.UniversalClient, ttl time.Duration) *RedisSnapshotCache {
	return &RedisSnapshotCache{
		client: client,
		prefix: "persona:snapshot:",
		ttl:    ttl,
	}
}

func (c *RedisSnapshotCache) key(userID string) string {
	return c.prefix + strings.TrimSpace(userID)
}

func (c *RedisSnapshotCache) Get(ctx context.Context, userID string) (domain.PersonaSnapshot, bool, error) {
	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PersonaSnapshot{}, false, nil
	}
	if err != nil {
		return domain.PersonaSnapshot{}, false, fmt.Errorf("redis get snapshot: %w", err)
	}
	var s domain.PersonaSnapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.PersonaSnapshot{}, false, fmt.Errorf("decode cached snapshot: %w", err)
	}
	if s.PersonaVector == nil {
		s.PersonaVector = domain.PersonaVector{}
	}
	return s, true, nil
}

func (c *RedisSnapshotCache) Set(ctx context.Context, snapshot domain.PersonaSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return c.client.Set(ctx, c.key(snapshot.UserID), raw, c.ttl).Err()
}

func (c *RedisSnapshotCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, c.key(userID)).Err()
}

// SnapshotLoader resuelve el ultimo snapshot pasando por la cache y deduplica
// lecturas concurrentes del mismo usuario.
type SnapshotLoader struct {
	snapshots repository.SnapshotRepository
	cache     SnapshotCache
	group     singleflight.Group
	logger    *zap.Logger

	// generations evita que una lectura iniciada antes de Invalidate repueble la cache.
	mu          sync.Mutex
	generations map[string]uint64
}

func NewSnapshotLoader(snapshots repository.SnapshotRepository, cache SnapshotCache, logger *zap.Logger) *SnapshotLoader {
	if cache == nil {
		cache = NewMemorySnapshotCache(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotLoader{
		snapshots:   snapshots,
		cache:       cache,
		logger:      logger,
		generations: make(map[string]uint64),
	}
}

func (l *SnapshotLoader) generation(userID string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generations[userID]
}

// Latest devuelve nil si el usuario aun no tiene snapshot.
func (l *SnapshotLoader) Latest(ctx context.Context, userID string) (*domain.PersonaSnapshot, error) {
	if s, ok, err := l.cache.Get(ctx, userID); err != nil {
		l.logger.Warn("snapshot cache get failed", zap.String("user_id", userID), zap.Error(err))
	} else if ok {
		snapshotCacheLookups.WithLabelValues("hit").Inc()
		return &s, nil
	}
	snapshotCacheLookups.WithLabelValues("miss").Inc()

	v, err, _ := l.group.Do(userID, func() (any, error) {
		gen := l.generation(userID)
		s, err := l.snapshots.GetLatestByUser(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return (*domain.PersonaSnapshot)(nil), nil
		}
		if err != nil {
			return nil, err
		}
		if gen != l.generation(userID) {
			return &s, nil
		}
		if err := l.cache.Set(ctx, s); err != nil {
			l.logger.Warn("snapshot cache set failed", zap.String("user_id", userID), zap.Error(err))
		}
		return &s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	return v.(*domain.PersonaSnapshot), nil
}

// Invalidate descarta la entrada del usuario; se llama tras crear un snapshot.
func (l *SnapshotLoader) Invalidate(ctx context.Context, userID string) {
	l.mu.Lock()
	l.generations[userID]++
	l.mu.Unlock()
	l.group.Forget(userID)
	if err := l.cache.Invalidate(ctx, userID); err != nil {
		l.logger.Warn("snapshot cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}
