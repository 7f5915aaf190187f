package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:".persona/persona.db"`

	LLMAPIKey     string        `env:"LLM_API_KEY"`
	LLMBaseURL    string        `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel      string        `env:"LLM_MODEL" envDefault:"gpt-5.1"`
	LLMTimeout    time.Duration `env:"LLM_TIMEOUT" envDefault:"20s"`
	LLMRatePerSec float64       `env:"LLM_RATE_PER_SEC" envDefault:"2"`
	LLMBurst      int           `env:"LLM_BURST" envDefault:"4"`

	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	SnapshotCacheTTL time.Duration `env:"SNAPSHOT_CACHE_TTL" envDefault:"10m"`

	// MessageRateLimit es el maximo de mensajes por usuario y ventana; 0 lo desactiva.
	MessageRateLimit  int           `env:"MESSAGE_RATE_LIMIT" envDefault:"30"`
	MessageRateWindow time.Duration `env:"MESSAGE_RATE_WINDOW" envDefault:"1m"`

	SnapshotEvery        int     `env:"SNAPSHOT_EVERY" envDefault:"1"`
	DriftCheckInterval   int     `env:"DRIFT_CHECK_INTERVAL" envDefault:"10"`
	DriftSmoothingFactor float64 `env:"DRIFT_SMOOTHING_FACTOR" envDefault:"0.98"`
	FallbackSeed         int64   `env:"FALLBACK_SEED" envDefault:"0"`
	HistoryTurns         int     `env:"HISTORY_TURNS" envDefault:"10"`

	JWTSecret           string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"60"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse lee el entorno sin validar; quien lo use debe llamar a Validate tras sus ajustes.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate revisa combinaciones invalidas.
func (c *Config) Validate() error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for store driver %q", c.StoreDriver)
		}
	case StoreDriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required for store driver %q", c.StoreDriver)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.DriftCheckInterval <= 0 {
		return fmt.Errorf("DRIFT_CHECK_INTERVAL must be positive, got %d", c.DriftCheckInterval)
	}
	if c.DriftSmoothingFactor <= 0 || c.DriftSmoothingFactor >= 1 {
		return fmt.Errorf("DRIFT_SMOOTHING_FACTOR must be in (0,1), got %v", c.DriftSmoothingFactor)
	}
	if c.SnapshotEvery <= 0 {
		c.SnapshotEvery = 1
	}
	if c.MessageRateLimit < 0 {
		c.MessageRateLimit = 0
	}
	if c.HistoryTurns < 0 {
		c.HistoryTurns = 0
	}
	return nil
}

// LLMConfigured indica si hay credenciales para el generador externo.
func (c *Config) LLMConfigured() bool {
	return strings.TrimSpace(c.LLMAPIKey) != ""
}
