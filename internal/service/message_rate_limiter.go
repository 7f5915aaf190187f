package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

const redisMessageAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

const redisLimiterTimeout = 500 * time.Millisecond

var messagesThrottled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "persona_messages_throttled_total",
	Help: "Mensajes rechazados por el limite por usuario.",
}, []string{"backend"})

// MessageRateLimiter limita cuantos mensajes procesa un usuario por ventana.
type MessageRateLimiter interface {
	Allow(ctx context.Context, userID string) bool
}

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// redisMessageRateLimiter cuenta en ventana fija compartida entre instancias.
type redisMessageRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

func NewRedisMessageRateLimiter(client redis.UniversalClient, window time.Duration, max int) MessageRateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisMessageRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "persona:rl:",
	}
}

// Allow falla abierto si Redis no responde.
func (l *redisMessageRateLimiter) Allow(ctx context.Context, userID string) bool {
	if l == nil || l.client == nil {
		return true
	}
	key := strings.TrimSpace(userID)
	if key == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, redisLimiterTimeout)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	count, err := l.client.Eval(ctx, redisMessageAllowScript, []string{l.prefix + key}, seconds).Int()
	if err != nil {
		return true
	}
	if count > l.max {
		messagesThrottled.WithLabelValues("redis").Inc()
		return false
	}
	return true
}

// memoryMessageRateLimiter usa ventana deslizante local al proceso.
type memoryMessageRateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
	now    func() time.Time
}

func NewMemoryMessageRateLimiter(window time.Duration, max int) MessageRateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryMessageRateLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (l *memoryMessageRateLimiter) Allow(_ context.Context, userID string) bool {
	key := strings.TrimSpace(userID)
	if key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	cutoff := now.Add(-l.window)
	entries := l.hits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.hits[key] = kept
		messagesThrottled.WithLabelValues("memory").Inc()
		return false
	}
	l.hits[key] = append(kept, now)
	return true
}
