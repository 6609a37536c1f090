package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort       string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL    string `env:"DATABASE_URL,required"`
	LLMAPIKey      string `env:"LLM_API_KEY,required"`
	LLMBaseURL     string `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	EmbeddingModel string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	RedisAddr      string `env:"REDIS_ADDR"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`

	// Cola de embeddings.
	EmbeddingWorkers      int           `env:"EMBEDDING_WORKERS" envDefault:"2"`
	EmbeddingPollInterval time.Duration `env:"EMBEDDING_POLL_INTERVAL" envDefault:"1s"`
	EmbeddingMaxAttempts  int           `env:"EMBEDDING_MAX_ATTEMPTS" envDefault:"3"`
	EmbeddingStaleAfter   time.Duration `env:"EMBEDDING_STALE_AFTER" envDefault:"2m"`
	EmbeddingJobTimeout   time.Duration `env:"EMBEDDING_JOB_TIMEOUT" envDefault:"90s"`
	BatchPollInterval     time.Duration `env:"BATCH_POLL_INTERVAL" envDefault:"3s"`
	BatchTimeout          time.Duration `env:"BATCH_TIMEOUT" envDefault:"5m"`

	MatchCacheTTL time.Duration `env:"MATCH_CACHE_TTL" envDefault:"10m"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
