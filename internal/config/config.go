package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration. Each field maps to one
// environment variable.
type Config struct {
	Port               string
	DBHost             string
	DBPort             string
	DBUser             string
	DBPassword         string
	DBName             string
	DBSSLMode          string
	AccessTokenSecret  string
	AccessTokenTTLMin  int
	RefreshLifetimeDay int
	StripeSecretKey    string
	StripeWebhookKey   string
	ResendAPIKey       string
	ResendEmail        string
	AllowedOrigins     []string
	Release            bool
}

// Load reads configuration from environment variables. Secrets are required
// in release mode; development falls back to local defaults so the server
// can boot against a local Postgres without a .env.
func Load() Config {
	release := os.Getenv("GIN_MODE") == "release"

	cfg := Config{
		Port:               getenv("PORT", "8080"),
		DBHost:             getenv("DB_HOST", "localhost"),
		DBPort:             getenv("DB_PORT", "5432"),
		DBUser:             getenv("DB_USER", "postgres"),
		DBPassword:         getenv("DB_PASSWORD", "postgres"),
		DBName:             getenv("DB_NAME", "postgres"),
		DBSSLMode:          getenv("DB_SSLMODE", "disable"),
		AccessTokenSecret:  os.Getenv("ACCESS_TOKEN_SECRET"),
		AccessTokenTTLMin:  getenvInt("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshLifetimeDay: getenvInt("REFRESH_TOKEN_LIFETIME_DAYS", 30),
		StripeSecretKey:    os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookKey:   os.Getenv("STRIPE_WEBHOOK_SECRET"),
		ResendAPIKey:       os.Getenv("RESEND_API_KEY"),
		ResendEmail:        os.Getenv("RESEND_EMAIL"),
		AllowedOrigins:     splitList(getenv("ALLOWED_ORIGINS", "http://localhost:5173")),
		Release:            release,
	}

	if cfg.AccessTokenSecret == "" {
		if release {
			log.Fatal("FATAL: ACCESS_TOKEN_SECRET is required in release mode")
		}
		cfg.AccessTokenSecret = "default_super_secret_key" // development fallback, never valid in release mode
	}
	if release {
		for _, key := range []string{"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "RESEND_API_KEY"} {
			if os.Getenv(key) == "" {
				log.Fatalf("FATAL: %s is required in release mode", key)
			}
		}
	}

	return cfg
}

// DSN builds the Postgres connection string.
func (c Config) DSN() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
