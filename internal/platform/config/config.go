package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr        string
	GRPCAddr    string
	Environment string
	LogLevel    string
	LogFormat   string

	// SecretKey is the root secret. Token, proof and audit keys are derived
	// from it unless dedicated keys are configured.
	SecretKey      string
	TokenKey       string
	ProofKeySeed   string
	AuditKeySeed   string
	ShutdownPeriod time.Duration

	Redis         RedisConfig
	Postgres      PostgresConfig
	Kafka         KafkaConfig
	Token         TokenConfig
	ConsentCache  ConsentCacheConfig
	Authorization AuthorizationConfig
	Velocity      VelocityConfig
	RateLimit     RateLimitConfig
	Idempotency   IdempotencyConfig
	Audit         AuditConfig
}

// RedisConfig configures the shared cache backend. An empty URL selects the
// in-process backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the durable store. An empty DSN selects in-memory stores.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// KafkaConfig configures the domain event publisher. No brokers disables publishing.
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	ClientID    string
	CreateTopic bool
}

type TokenConfig struct {
	Issuer string
	TTL    time.Duration
}

type ConsentCacheConfig struct {
	TTL          time.Duration
	MaxEntries   int
	StoreTimeout time.Duration
	StoreRetries uint64
}

type AuthorizationConfig struct {
	CodeTTL       time.Duration
	StepUpBaseURL string
	QueueCapacity int
	BatchSize     int
	FlushInterval time.Duration
	MaxAttempts   int
	DrainTimeout  time.Duration
}

type VelocityConfig struct {
	Enabled bool
	Timeout time.Duration
}

// FailureMode selects what the rate limiter does when its backend cannot answer.
type FailureMode string

const (
	// FailOpen allows the request. Favors availability of the payment path.
	FailOpen FailureMode = "open"
	// FailClosed denies the request.
	FailClosed FailureMode = "closed"
	// FailLocal falls back to an in-process token bucket.
	FailLocal FailureMode = "local"
)

type RateLimitConfig struct {
	Limit       int
	Window      time.Duration
	FailureMode FailureMode
	Timeout     time.Duration
}

type IdempotencyConfig struct {
	LockTTL     time.Duration
	ResponseTTL time.Duration
	MinKeyLen   int
}

type AuditConfig struct {
	RetentionDays int
	QueueCapacity int
}

// Default values.
const (
	DefaultTokenTTL          = time.Hour
	DefaultCodeTTL           = 5 * time.Minute
	DefaultConsentCacheTTL   = 5 * time.Minute
	DefaultConsentCacheSize  = 10000
	DefaultQueueCapacity     = 10000
	DefaultBatchSize         = 100
	DefaultFlushInterval     = time.Second
	DefaultRateLimit         = 100
	DefaultRateLimitWindow   = time.Second
	DefaultIdempotencyLock   = 60 * time.Second
	DefaultIdempotencyTTL    = 24 * time.Hour
	DefaultIdempotencyKeyLen = 16
	DefaultRetentionDays     = 2555
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	secret := envString("SECRET_KEY", "")
	if secret == "" {
		// Use a default for development - must be overridden in production
		secret = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:           envString("AGENTAUTH_ADDR", ":8080"),
		GRPCAddr:       envString("AGENTAUTH_GRPC_ADDR", ":9090"),
		Environment:    envString("ENVIRONMENT", "development"),
		LogLevel:       envString("LOG_LEVEL", "info"),
		LogFormat:      envString("LOG_FORMAT", "json"),
		SecretKey:      secret,
		TokenKey:       os.Getenv("TOKEN_SIGNING_KEY"),
		ProofKeySeed:   os.Getenv("PROOF_KEY_SEED"),
		AuditKeySeed:   os.Getenv("AUDIT_KEY_SEED"),
		ShutdownPeriod: envDuration("SHUTDOWN_PERIOD", 10*time.Second),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 50),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 5),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 100*time.Millisecond),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 100*time.Millisecond),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:     envList("KAFKA_BROKERS"),
			Topic:       envString("KAFKA_EVENTS_TOPIC", "agentauth.events"),
			ClientID:    envString("KAFKA_CLIENT_ID", "agentauth"),
			CreateTopic: envBool("KAFKA_CREATE_TOPIC", false),
		},
		Token: TokenConfig{
			Issuer: envString("TOKEN_ISSUER", "agentauth"),
			TTL:    envDuration("TOKEN_TTL", DefaultTokenTTL),
		},
		ConsentCache: ConsentCacheConfig{
			TTL:          envDuration("CONSENT_CACHE_TTL", DefaultConsentCacheTTL),
			MaxEntries:   envInt("CONSENT_CACHE_MAX_ENTRIES", DefaultConsentCacheSize),
			StoreTimeout: envDuration("CONSENT_STORE_TIMEOUT", 100*time.Millisecond),
			StoreRetries: uint64(envInt("CONSENT_STORE_RETRIES", 2)),
		},
		Authorization: AuthorizationConfig{
			CodeTTL:       envDuration("AUTH_CODE_TTL", DefaultCodeTTL),
			StepUpBaseURL: envString("STEP_UP_BASE_URL", "https://agentauth.local/v1/step-up"),
			QueueCapacity: envInt("PERSIST_QUEUE_CAPACITY", DefaultQueueCapacity),
			BatchSize:     envInt("PERSIST_BATCH_SIZE", DefaultBatchSize),
			FlushInterval: envDuration("PERSIST_FLUSH_INTERVAL", DefaultFlushInterval),
			MaxAttempts:   envInt("PERSIST_MAX_ATTEMPTS", 3),
			DrainTimeout:  envDuration("PERSIST_DRAIN_TIMEOUT", 5*time.Second),
		},
		Velocity: VelocityConfig{
			Enabled: envBool("VELOCITY_ENABLED", true),
			Timeout: envDuration("VELOCITY_TIMEOUT", 100*time.Millisecond),
		},
		RateLimit: RateLimitConfig{
			Limit:       envInt("RATE_LIMIT", DefaultRateLimit),
			Window:      envDuration("RATE_LIMIT_WINDOW", DefaultRateLimitWindow),
			FailureMode: ParseFailureMode(os.Getenv("RATE_LIMIT_FAILURE_MODE")),
			Timeout:     envDuration("RATE_LIMIT_TIMEOUT", 50*time.Millisecond),
		},
		Idempotency: IdempotencyConfig{
			LockTTL:     envDuration("IDEMPOTENCY_LOCK_TTL", DefaultIdempotencyLock),
			ResponseTTL: envDuration("IDEMPOTENCY_RESPONSE_TTL", DefaultIdempotencyTTL),
			MinKeyLen:   envInt("IDEMPOTENCY_MIN_KEY_LENGTH", DefaultIdempotencyKeyLen),
		},
		Audit: AuditConfig{
			RetentionDays: envInt("AUDIT_RETENTION_DAYS", DefaultRetentionDays),
			QueueCapacity: envInt("AUDIT_QUEUE_CAPACITY", DefaultQueueCapacity),
		},
	}
}

// ParseFailureMode maps a setting to a FailureMode. Unknown values fall back
// to FailOpen.
func ParseFailureMode(v string) FailureMode {
	switch FailureMode(strings.ToLower(strings.TrimSpace(v))) {
	case FailClosed:
		return FailClosed
	case FailLocal:
		return FailLocal
	default:
		return FailOpen
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// envDuration accepts Go durations ("150ms") or plain seconds ("300").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
