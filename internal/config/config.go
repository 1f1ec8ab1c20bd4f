package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DBPath          string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	UserAgent       string

	// Polling behavior.
	PollingEnabled bool
	MaxConcurrency int
	MaxDuePerTick  int
	FeedsDir       string
	FirmsAPIKey    string
	NVDAPIKey      string

	// Retention windows for resolved data.
	ItemsRetentionDays     int
	IncidentsRetentionDays int

	// Kafka event sink configuration.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	maxConcurrency, err := parsePositiveIntEnv("MAX_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}

	maxDuePerTick, err := parsePositiveIntEnv("MAX_DUE_PER_TICK", 12)
	if err != nil {
		return nil, err
	}

	itemsRetention, err := parsePositiveIntEnv("ITEMS_RETENTION_DAYS", 30)
	if err != nil {
		return nil, err
	}

	incidentsRetention, err := parsePositiveIntEnv("INCIDENTS_RETENTION_DAYS", 90)
	if err != nil {
		return nil, err
	}

	kafkaEnabled := false
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	pollingEnabled := true
	if v := os.Getenv("POLLING_ENABLED"); v != "" {
		pollingEnabled = v == "true"
	}

	cfg := &Config{
		DBPath:          envOrDefault("DB_PATH", "incidents.db"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		UserAgent:       envOrDefault("USER_AGENT", "incident-feed/1.0 (+https://github.com/couchcryptid/incident-feed)"),

		PollingEnabled: pollingEnabled,
		MaxConcurrency: maxConcurrency,
		MaxDuePerTick:  maxDuePerTick,
		FeedsDir:       os.Getenv("FEEDS_DIR"),
		FirmsAPIKey:    os.Getenv("FIRMS_API_KEY"),
		NVDAPIKey:      os.Getenv("NVD_API_KEY"),

		ItemsRetentionDays:     itemsRetention,
		IncidentsRetentionDays: incidentsRetention,

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "incident-events"),
	}

	if cfg.DBPath == "" {
		return nil, errors.New("DB_PATH is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_TOPIC is not set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parseDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parsePositiveIntEnv(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}
