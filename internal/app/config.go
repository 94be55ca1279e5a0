package app

import (
	"os"
	"strconv"
	"time"
)

// StorageDriver selects which domain.* repository implementations Run wires up.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config holds every runtime setting the service reads at startup. Fields
// map directly onto the configuration keys the checkout core exposes;
// HTTPAddr/GRPCAddr/MetricsAddr are the transport-layer additions beyond
// what the domain package itself cares about. GRPCAddr is read and kept,
// but Run starts no gRPC listener.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	KafkaBrokers string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
	IdempotencyTTLWebhook       time.Duration
	IdempotencyTTLOrder         time.Duration
	IdempotencyTTLHold          time.Duration

	HoldTTL               time.Duration
	HoldSweepBatchSize    int
	HoldSweepInterval     time.Duration
	MaxHoldQuantity       int32
	StockCacheTTL         time.Duration
	DeadlockRetries       int
	DeadlockBackoff       time.Duration
	PaymentWindow         time.Duration
	WebhookHMACSecret     string
	WebhookSignatureHeader string
}

// DefaultConfig returns the settings the service starts with absent any
// environment overrides.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  5,
		OutboxRetryDelay:   500 * time.Millisecond,
		OutboxMaxPending:   1000,

		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
		IdempotencyTTLWebhook:       24 * time.Hour,
		IdempotencyTTLOrder:         time.Hour,
		IdempotencyTTLHold:          5 * time.Minute,

		HoldTTL:                120 * time.Second,
		HoldSweepBatchSize:     100,
		HoldSweepInterval:      60 * time.Second,
		MaxHoldQuantity:        10,
		StockCacheTTL:          30 * time.Second,
		DeadlockRetries:        3,
		DeadlockBackoff:        100 * time.Millisecond,
		PaymentWindow:          30 * time.Minute,
		WebhookSignatureHeader: "X-Webhook-Signature",
	}
}

// LoadFromEnv overlays environment variables onto cfg, leaving any unset
// variable's field untouched. Only string/bool/int/duration parses that
// succeed take effect; a malformed value is ignored rather than failing
// startup, matching the permissive override style the service used
// before this config surface existed.
func LoadFromEnv(cfg Config) Config {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("GRPC_ADDR"); v != "" {
		cfg.GRPCAddr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.StorageDriver = StorageDriver(v)
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v, ok := parseBool("POSTGRES_AUTO_MIGRATE"); ok {
		cfg.PostgresAutoMigrate = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = v
	}
	if v, ok := parseSeconds("HOLD_TTL_SECONDS"); ok {
		cfg.HoldTTL = v
	}
	if v, ok := parseInt("HOLD_SWEEP_BATCH_SIZE"); ok {
		cfg.HoldSweepBatchSize = v
	}
	if v, ok := parseSeconds("HOLD_SWEEP_INTERVAL_SECONDS"); ok {
		cfg.HoldSweepInterval = v
	}
	if v, ok := parseInt("MAX_HOLD_QUANTITY"); ok {
		cfg.MaxHoldQuantity = int32(v)
	}
	if v, ok := parseSeconds("STOCK_CACHE_TTL_SECONDS"); ok {
		cfg.StockCacheTTL = v
	}
	if v, ok := parseInt("DEADLOCK_RETRIES"); ok {
		cfg.DeadlockRetries = v
	}
	if v, ok := parseMillis("DEADLOCK_BACKOFF_MS"); ok {
		cfg.DeadlockBackoff = v
	}
	if v, ok := parseSeconds("IDEMPOTENCY_TTL_WEBHOOK_SECONDS"); ok {
		cfg.IdempotencyTTLWebhook = v
	}
	if v, ok := parseSeconds("IDEMPOTENCY_TTL_ORDER_SECONDS"); ok {
		cfg.IdempotencyTTLOrder = v
	}
	if v, ok := parseSeconds("IDEMPOTENCY_TTL_HOLD_SECONDS"); ok {
		cfg.IdempotencyTTLHold = v
	}
	if v := os.Getenv("WEBHOOK_HMAC_SECRET"); v != "" {
		cfg.WebhookHMACSecret = v
	}
	if v := os.Getenv("WEBHOOK_SIGNATURE_HEADER"); v != "" {
		cfg.WebhookSignatureHeader = v
	}
	if v, ok := parseMinutes("PAYMENT_WINDOW_MINUTES"); ok {
		cfg.PaymentWindow = v
	}
	return cfg
}

func parseInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func parseSeconds(key string) (time.Duration, bool) {
	n, ok := parseInt(key)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

func parseMillis(key string) (time.Duration, bool) {
	n, ok := parseInt(key)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}

func parseMinutes(key string) (time.Duration, bool) {
	n, ok := parseInt(key)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Minute, true
}
