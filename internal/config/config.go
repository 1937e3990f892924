// Package config loads the ambient configuration for both the api and
// worker processes from environment variables into small typed Config
// structs with getEnv defaults, rather than a config file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full set of knobs needed to wire up Redis, Postgres, etcd,
// NATS, the notifier webhook, InfluxDB metrics, JWT auth, and the HTTP
// and worker-pool surfaces.
type Config struct {
	RedisURL    string
	PostgresDSN string
	EtcdEndpoints []string
	NATSUrl     string

	NotifierWebhookURL string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	JWTSecret string

	HTTPPort string

	WorkerConcurrency int
	DequeuePollTimeout time.Duration
}

// Load reads Config from the environment, filling in sane local-development
// defaults for anything unset.
func Load() Config {
	return Config{
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
		PostgresDSN:   getEnv("DATABASE_URL", "postgres://localhost:5432/ticketmesh?sslmode=disable"),
		EtcdEndpoints: splitCSV(getEnv("ETCD_ENDPOINTS", "localhost:2379")),
		NATSUrl:       getEnv("NATS_URL", "nats://localhost:4222"),

		NotifierWebhookURL: os.Getenv("NOTIFIER_WEBHOOK_URL"),

		InfluxURL:    os.Getenv("INFLUXDB_URL"),
		InfluxToken:  os.Getenv("INFLUXDB_TOKEN"),
		InfluxOrg:    os.Getenv("INFLUXDB_ORG"),
		InfluxBucket: os.Getenv("INFLUXDB_BUCKET"),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),

		HTTPPort: getEnv("PORT", "8080"),

		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
		DequeuePollTimeout: getEnvDuration("DEQUEUE_POLL_TIMEOUT", 5*time.Second),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
