// rocketshoes-cartservice/config/config.go

// Package config reads service settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the service settings read from the environment.
type Config struct {
	Port       string
	HealthPort string
	LogLevel   string

	APIBaseURL        string
	HTTPClientTimeout time.Duration

	RedisAddr string
	AMQPURL   string

	SessionCapacity    int
	SessionIdleTimeout time.Duration

	OTLPEndpoint   string
	TracesExporter string
}

// Load reads the environment, falling back to defaults for unset values.
func Load() Config {
	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		HealthPort:         getEnv("HEALTH_PORT", "7070"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		APIBaseURL:         getEnv("API_BASE_URL", "http://localhost:3333"),
		HTTPClientTimeout:  getEnvDuration("HTTP_CLIENT_TIMEOUT", 10*time.Second),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		AMQPURL:            os.Getenv("AMQP_URL"),
		SessionCapacity:    getEnvInt("SESSION_CAPACITY", 10000),
		SessionIdleTimeout: getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		OTLPEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TracesExporter:     strings.ToLower(getEnv("OTEL_TRACES_EXPORTER", "otlp")),
	}

	// Add the default port only when none is given.
	if cfg.RedisAddr != "" && !strings.Contains(cfg.RedisAddr, ":") {
		cfg.RedisAddr += ":6379"
	}
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getEnvInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
