package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName  string
	HTTPAddr     string
	LogLevel     string
	CRDBDSN      string
	MongoURI     string
	MongoDB      string
	RedisAddr    string
	RabbitURL    string
	PaymentQueue string
	JWTPublicKey string
	OTLPEndpoint string
	Currency     string

	HoldTTL        time.Duration
	MaxHoldTTL     time.Duration
	SweepInterval  time.Duration
	SweepParallel  int
	OutboxInterval time.Duration
	IdempotencyTTL time.Duration
	RateLimit      int

	// ROW_DENSITY, e.g. "VIP=5,Premium=8,General=10".
	RowDensity         string
	DefaultSeatsPerRow int
	MaxCapacity        int
	MaxBodyBytes       int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName:  getenv("SERVICE_NAME", "seat-inventory"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		CRDBDSN:      os.Getenv("CRDB_DSN"),
		MongoURI:     os.Getenv("MONGO_URI"),
		MongoDB:      getenv("MONGO_DB", "seatinv"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RabbitURL:    os.Getenv("RABBIT_URL"),
		PaymentQueue: getenv("PAYMENT_QUEUE", "seatinv.payments"),
		JWTPublicKey: os.Getenv("JWT_PUBLIC_KEY"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Currency:     getenv("DEFAULT_CURRENCY", "USD"),
		RowDensity:   os.Getenv("ROW_DENSITY"),
	}

	var err error
	if cfg.HoldTTL, err = durationEnv("HOLD_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxHoldTTL, err = durationEnv("MAX_HOLD_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = durationEnv("SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.OutboxInterval, err = durationEnv("OUTBOX_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SweepParallel, err = intEnv("SWEEP_PARALLELISM", 4); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = intEnv("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return nil, err
	}
	if cfg.DefaultSeatsPerRow, err = intEnv("DEFAULT_SEATS_PER_ROW", 10); err != nil {
		return nil, err
	}

	if cfg.MaxCapacity, err = intEnv("MAX_EVENT_CAPACITY", 100000); err != nil {
		return nil, err
	}
	if cfg.MaxBodyBytes, err = intEnv("MAX_BODY_BYTES", 1<<20); err != nil {
		return nil, err
	}

	if cfg.HoldTTL > cfg.MaxHoldTTL {
		return nil, errors.Newf("HOLD_TTL %s exceeds MAX_HOLD_TTL %s", cfg.HoldTTL, cfg.MaxHoldTTL)
	}
	if cfg.DefaultSeatsPerRow < 1 {
		return nil, errors.New("DEFAULT_SEATS_PER_ROW must be positive")
	}
	if cfg.MaxCapacity < 1 || cfg.MaxCapacity > 100000 {
		return nil, errors.New("MAX_EVENT_CAPACITY must be within 1..100000")
	}
	if cfg.MaxBodyBytes < 1 {
		return nil, errors.New("MAX_BODY_BYTES must be positive")
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	if d <= 0 {
		return 0, errors.Newf("%s must be positive", key)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return n, nil
}
