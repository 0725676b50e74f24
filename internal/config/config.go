package config

import (
	"os"
	"strconv"
	"time"
)

// Delivery modes for the rollup handler.
const (
	ModeInline = "inline"
	ModeQueued = "queued"
)

// Dedup store backends.
const (
	DedupBackendMemory = "memory"
	DedupBackendDB     = "db"
)

type Config struct {
	Database DatabaseConfig
	Rabbit   RabbitConfig
	Rollup   RollupConfig
	Dedup    DedupConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RabbitConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
	Exchange string
	Queue    string
	JobQueue string
	Prefetch int
	Workers  int
}

type RollupConfig struct {
	Mode     string
	JobDelay time.Duration
}

type DedupConfig struct {
	Backend       string
	TTL           time.Duration
	SweepInterval time.Duration
}

func Load() *Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	rmqPort, _ := strconv.Atoi(getEnv("RABBITMQ_PORT", "5672"))
	prefetch, _ := strconv.Atoi(getEnv("RABBITMQ_PREFETCH", "50"))
	workers, _ := strconv.Atoi(getEnv("RABBITMQ_WORKERS", "4"))
	jobDelay, _ := strconv.Atoi(getEnv("ROLLUP_JOB_DELAY_SECONDS", "5"))
	dedupTTL, _ := strconv.Atoi(getEnv("DEDUP_TTL_SECONDS", "60"))
	sweepInterval, _ := strconv.Atoi(getEnv("DEDUP_SWEEP_INTERVAL_SECONDS", "300"))

	mode := getEnv("ROLLUP_MODE", ModeInline)
	if mode != ModeQueued {
		mode = ModeInline
	}

	// Queued mode runs on multiple worker processes; markers must live in a
	// backend all of them can see.
	defaultBackend := DedupBackendMemory
	if mode == ModeQueued {
		defaultBackend = DedupBackendDB
	}
	backend := getEnv("DEDUP_BACKEND", defaultBackend)
	if backend != DedupBackendDB {
		backend = DedupBackendMemory
	}

	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "rollup_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Rabbit: RabbitConfig{
			Host:     getEnv("RABBITMQ_HOST", "localhost"),
			Port:     rmqPort,
			User:     getEnv("RABBITMQ_USER", "guest"),
			Password: getEnv("RABBITMQ_PASSWORD", "guest"),
			VHost:    getEnv("RABBITMQ_VHOST", "/"),
			Exchange: getEnv("RABBITMQ_EXCHANGE", "project_events"),
			Queue:    getEnv("RABBITMQ_QUEUE", "component_updates"),
			JobQueue: getEnv("RABBITMQ_JOB_QUEUE", "rollup_jobs"),
			Prefetch: prefetch,
			Workers:  workers,
		},
		Rollup: RollupConfig{
			Mode:     mode,
			JobDelay: time.Duration(jobDelay) * time.Second,
		},
		Dedup: DedupConfig{
			Backend:       backend,
			TTL:           time.Duration(dedupTTL) * time.Second,
			SweepInterval: time.Duration(sweepInterval) * time.Second,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
