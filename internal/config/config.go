package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/labstack/gommon/random"
)

const (
	DedupeModeAppend = "append"
	DedupeModeDedupe = "dedupe"
)

// Config represents the complete service configuration
type Config struct {
	Port           string         `toml:"port"`
	Environment    string         `toml:"environment"`
	DatabaseURL    string         `toml:"database_url"`
	DBMaxConns     int            `toml:"db_max_conns"`
	JWTSecret      string         `toml:"jwt_secret"`
	AllowedOrigins []string       `toml:"allowed_origins"`
	Razorpay       RazorpayConfig `toml:"razorpay"`
	Redis          RedisConfig    `toml:"redis"`
	Minio          MinioConfig    `toml:"minio"`
	Payments       PaymentsConfig `toml:"payments"`
	Jobs           JobsConfig     `toml:"jobs"`
}

// RazorpayConfig contains gateway credentials and test switches
type RazorpayConfig struct {
	KeyID               string        `toml:"key_id"`
	KeySecret           string        `toml:"key_secret"`
	BaseURL             string        `toml:"base_url"`
	Currency            string        `toml:"currency"`
	MockMode            bool          `toml:"mock_mode"`
	AllowTestSignatures bool          `toml:"allow_test_signatures"`
	MockOrderAmount     int64         `toml:"mock_order_amount"`
	FetchTimeout        time.Duration `toml:"fetch_timeout"`
}

// RedisConfig is shared by the cache and the task queue
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// MinioConfig contains receipt storage settings
type MinioConfig struct {
	Endpoint      string        `toml:"endpoint"`
	AccessKey     string        `toml:"access_key"`
	SecretKey     string        `toml:"secret_key"`
	UseSSL        bool          `toml:"use_ssl"`
	ReceiptBucket string        `toml:"receipt_bucket"`
	URLExpiry     time.Duration `toml:"url_expiry"`
}

// PaymentsConfig controls ledger idempotency and history caching
type PaymentsConfig struct {
	DedupeMode      string        `toml:"dedupe_mode"`
	HistoryCacheTTL time.Duration `toml:"history_cache_ttl"`
	VerifyLockTTL   time.Duration `toml:"verify_lock_ttl"`
}

// JobsConfig contains background worker settings
type JobsConfig struct {
	ExpirySweepInterval time.Duration `toml:"expiry_sweep_interval"`
	ReceiptConcurrency  int           `toml:"receipt_concurrency"`
}

// Dedupe reports whether repeated verifications of one payment are collapsed.
func (c *Config) Dedupe() bool {
	return c.Payments.DedupeMode == DedupeModeDedupe
}

func defaults() *Config {
	return &Config{
		Port:        "5000",
		Environment: "development",
		DBMaxConns:  10,
		Razorpay: RazorpayConfig{
			BaseURL:         "https://api.razorpay.com/v1",
			Currency:        "INR",
			MockOrderAmount: 50000,
			FetchTimeout:    10 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Minio: MinioConfig{
			Endpoint:      "localhost:9000",
			AccessKey:     "minioadmin",
			SecretKey:     "minioadmin",
			ReceiptBucket: "receipts",
			URLExpiry:     15 * time.Minute,
		},
		Payments: PaymentsConfig{
			DedupeMode:      DedupeModeAppend,
			HistoryCacheTTL: 5 * time.Minute,
			VerifyLockTTL:   30 * time.Second,
		},
		Jobs: JobsConfig{
			ExpirySweepInterval: time.Hour,
			ReceiptConcurrency:  5,
		},
	}
}

// Load builds the configuration from defaults, an optional TOML file named by
// CONFIG_FILE, and environment variables (a .env file is read first when
// present). Environment variables win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if len(cfg.AllowedOrigins) == 0 {
		origin := os.Getenv("FRONTEND_URL")
		if origin == "" {
			origin = "http://localhost:3000"
		}
		cfg.AllowedOrigins = []string{origin}
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = random.String(32)
		log.Printf("WARNING: JWT_SECRET not set, using a generated secret; tokens will not survive a restart")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("PORT", &cfg.Port)
	str("APP_ENV", &cfg.Environment)
	str("DATABASE_URL", &cfg.DatabaseURL)
	integer("DB_MAX_CONNS", &cfg.DBMaxConns)
	str("JWT_SECRET", &cfg.JWTSecret)
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}

	str("RAZORPAY_KEY_ID", &cfg.Razorpay.KeyID)
	str("RAZORPAY_KEY_SECRET", &cfg.Razorpay.KeySecret)
	str("RAZORPAY_BASE_URL", &cfg.Razorpay.BaseURL)
	str("RAZORPAY_CURRENCY", &cfg.Razorpay.Currency)
	boolean("RAZORPAY_MOCK_MODE", &cfg.Razorpay.MockMode)
	boolean("RAZORPAY_ALLOW_TEST_SIGNATURES", &cfg.Razorpay.AllowTestSignatures)
	duration("RAZORPAY_FETCH_TIMEOUT", &cfg.Razorpay.FetchTimeout)
	if v := os.Getenv("RAZORPAY_MOCK_ORDER_AMOUNT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RAZORPAY_MOCK_ORDER_AMOUNT: %w", err))
		} else {
			cfg.Razorpay.MockOrderAmount = n
		}
	}

	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	integer("REDIS_DB", &cfg.Redis.DB)

	str("MINIO_ENDPOINT", &cfg.Minio.Endpoint)
	str("MINIO_ACCESS_KEY", &cfg.Minio.AccessKey)
	str("MINIO_SECRET_KEY", &cfg.Minio.SecretKey)
	boolean("MINIO_USE_SSL", &cfg.Minio.UseSSL)
	str("MINIO_RECEIPT_BUCKET", &cfg.Minio.ReceiptBucket)
	duration("RECEIPT_URL_EXPIRY", &cfg.Minio.URLExpiry)

	str("PAYMENT_DEDUPE_MODE", &cfg.Payments.DedupeMode)
	duration("HISTORY_CACHE_TTL", &cfg.Payments.HistoryCacheTTL)
	duration("VERIFY_LOCK_TTL", &cfg.Payments.VerifyLockTTL)

	duration("EXPIRY_SWEEP_INTERVAL", &cfg.Jobs.ExpirySweepInterval)
	integer("RECEIPT_WORKER_CONCURRENCY", &cfg.Jobs.ReceiptConcurrency)

	return errors.Join(errs...)
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if !c.Razorpay.MockMode && (c.Razorpay.KeyID == "" || c.Razorpay.KeySecret == "") {
		return errors.New("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required unless RAZORPAY_MOCK_MODE is enabled")
	}
	if c.Razorpay.KeySecret == "" && c.Razorpay.AllowTestSignatures {
		// Without a secret no real signature can verify; only the bypass would pass.
		log.Printf("WARNING: RAZORPAY_ALLOW_TEST_SIGNATURES enabled with no key secret")
	}
	if c.Razorpay.FetchTimeout <= 0 {
		return errors.New("RAZORPAY_FETCH_TIMEOUT must be positive")
	}
	if c.Razorpay.MockOrderAmount <= 0 {
		return errors.New("RAZORPAY_MOCK_ORDER_AMOUNT must be positive")
	}
	switch c.Payments.DedupeMode {
	case DedupeModeAppend, DedupeModeDedupe:
	default:
		return fmt.Errorf("PAYMENT_DEDUPE_MODE must be %q or %q, got %q", DedupeModeAppend, DedupeModeDedupe, c.Payments.DedupeMode)
	}
	if c.DBMaxConns <= 0 {
		return errors.New("DB_MAX_CONNS must be positive")
	}
	if c.Jobs.ReceiptConcurrency <= 0 {
		return errors.New("RECEIPT_WORKER_CONCURRENCY must be positive")
	}
	return nil
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
