// Package config loads application configuration from environment variables.
// A .env file in the working directory is merged in first when present.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings.  Strings for identifiers and secrets,
// durations for the promotion policy knobs.
type Config struct {
	Env  string // application environment ("dev", "prod")
	Port string // HTTP port to listen on

	DBUser string
	DBPass string // optional
	DBHost string
	DBPort string
	DBName string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	JWTSecret string // secret that validates externally issued tokens

	AMQPURL string // RabbitMQ broker; empty disables event publishing

	PromotionTTL  time.Duration // response window for promotion offers
	SweepInterval time.Duration // how often the expiry reaper runs
}

// Load reads the environment and returns a Config.  Missing required
// variables are fatal; the process cannot run half-configured.
func Load() Config {
	if err := godotenv.Load(".env"); err == nil {
		log.Println("loaded configuration from .env")
	}
	return Config{
		Env:               getenv("APP_ENV", "dev"),
		Port:              getenv("APP_PORT", "8080"),
		DBUser:            must("DB_USER"),
		DBPass:            os.Getenv("DB_PASS"),
		DBHost:            must("DB_HOST"),
		DBPort:            must("DB_PORT"),
		DBName:            must("DB_NAME"),
		DBMaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifetime: envDur("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		JWTSecret:         must("JWT_SECRET"),
		AMQPURL:           os.Getenv("RABBITMQ_URL"),
		PromotionTTL:      envDur("PROMOTION_TTL", 15*time.Minute),
		SweepInterval:     envDur("PROMOTION_SWEEP_INTERVAL", time.Minute),
	}
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid duration for %s: %q", key, v)
	}
	return d
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}

func envBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "yes", "on":
		return true
	case "0", "false", "FALSE", "no", "off":
		return false
	}
	return def
}
