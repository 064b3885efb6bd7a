package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string
	JWTSecret    string

	// Shared-secret step gates. Verified server-side, rate-limited and
	// audited; see internal/gates.
	VATCode string
	COTCode string

	GateMaxAttempts int
	GateWindow      time.Duration

	// Grace period after OTP expiry before the janitor rejects a dangling
	// requires_otp pending transaction.
	OTPSweepGrace time.Duration
	SessionTTL    time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		KafkaBrokers:    []string{os.Getenv("KAFKA_BROKER")},
		JWTSecret:       os.Getenv("JWT_SECRET"),
		VATCode:         os.Getenv("VAT_CODE"),
		COTCode:         os.Getenv("COT_CODE"),
		GateMaxAttempts: envInt("GATE_MAX_ATTEMPTS", 5),
		GateWindow:      envDuration("GATE_WINDOW", 15*time.Minute),
		OTPSweepGrace:   envDuration("OTP_SWEEP_GRACE", 30*time.Minute),
		SessionTTL:      envDuration("WITHDRAWAL_SESSION_TTL", time.Hour),
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = "host=localhost user=postgres password=postgres dbname=netbank sslmode=disable"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if len(cfg.KafkaBrokers) == 1 && cfg.KafkaBrokers[0] == "" {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "supersecret"
	}
	if cfg.VATCode == "" {
		cfg.VATCode = "VAT123"
	}
	if cfg.COTCode == "" {
		cfg.COTCode = "COT456"
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"gate_max_attempts", cfg.GateMaxAttempts)
	return cfg
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer env value, using default", "key", key, "value", raw)
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration env value, using default", "key", key, "value", raw)
		return def
	}
	return d
}
