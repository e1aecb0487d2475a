package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port           string   `envconfig:"PORT" default:"8080"`
	Environment    string   `envconfig:"ENVIRONMENT" default:"development"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
	JWTSecret      string   `envconfig:"JWT_SECRET" default:"change-me-in-production"`
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info"`
	// SessionTTL bounds how long session metadata stays in the Redis
	// mirror, not how long a session may last.
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	Redis      RedisConfig
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     string `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func Load() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
