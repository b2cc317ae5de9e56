package main

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"agentauth/internal/audit"
	auditmetrics "agentauth/internal/audit/metrics"
	auditmemory "agentauth/internal/audit/store/memory"
	auditpostgres "agentauth/internal/audit/store/postgres"
	auditredis "agentauth/internal/audit/store/redis"
	"agentauth/internal/authorization/codes"
	authzmetrics "agentauth/internal/authorization/metrics"
	"agentauth/internal/authorization/persist"
	authzservice "agentauth/internal/authorization/service"
	authzstore "agentauth/internal/authorization/store"
	consentcache "agentauth/internal/consent/cache"
	consentmetrics "agentauth/internal/consent/metrics"
	consentservice "agentauth/internal/consent/service"
	consentstore "agentauth/internal/consent/store"
	"agentauth/internal/events"
	"agentauth/internal/idempotency"
	idemmetrics "agentauth/internal/idempotency/metrics"
	jwttoken "agentauth/internal/jwt_token"
	"agentauth/internal/platform/cache"
	"agentauth/internal/platform/config"
	"agentauth/internal/platform/postgres"
	"agentauth/internal/platform/redis"
	"agentauth/internal/ratelimit"
	rlmetrics "agentauth/internal/ratelimit/metrics"
	httptransport "agentauth/internal/transport/http"
	"agentauth/internal/velocity"
	velocitymetrics "agentauth/internal/velocity/metrics"
	velocitymemory "agentauth/internal/velocity/store/memory"
	velocityredis "agentauth/internal/velocity/store/redis"
	verifymetrics "agentauth/internal/verification/metrics"
	verifyservice "agentauth/internal/verification/service"
	"agentauth/pkg/secrets"
)

const (
	cacheKeyPrefix        = "agentauth:"
	consentCacheKeyPrefix = "agentauth:consent:"
	tokenKeySize          = 32
	publisherFlushTimeout = 5 * time.Second
)

// infra holds the optional external backends. Nil members select the
// in-process implementations.
type infra struct {
	redis *redis.Client
	db    *sql.DB
}

func openInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}
	if db != nil {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			if rdb != nil {
				_ = rdb.Close()
			}
			return nil, err
		}
	}
	log.InfoContext(ctx, "infrastructure_ready",
		"redis", rdb != nil,
		"postgres", db != nil,
	)
	return &infra{redis: rdb, db: db}, nil
}

func (i *infra) checks() map[string]httptransport.HealthCheck {
	checks := make(map[string]httptransport.HealthCheck)
	if i.redis != nil {
		checks["redis"] = i.redis.Health
	}
	if i.db != nil {
		checks["postgres"] = i.db.PingContext
	}
	return checks
}

func (i *infra) close(log *slog.Logger) {
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Warn("postgres_close_failed", "error", err)
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("redis_close_failed", "error", err)
		}
	}
}

func (i *infra) sharedCache() cache.Cache {
	if i.redis != nil {
		return cache.NewRedis(i.redis.Client, cacheKeyPrefix)
	}
	return cache.NewMemory()
}

func (i *infra) consentBackend(maxEntries int) cache.Cache {
	if i.redis != nil {
		return cache.NewRedis(i.redis.Client, consentCacheKeyPrefix)
	}
	return cache.NewMemory(cache.WithMaxEntries(maxEntries))
}

// consentStore is the union the cache, the consent service and the
// single-use claim need.
type consentStore interface {
	consentcache.Reader
	consentservice.Store
	authzservice.ConsentClaimer
}

func (i *infra) consentStore() consentStore {
	if i.db != nil {
		return consentstore.NewPostgres(i.db)
	}
	return consentstore.NewInMemoryStore()
}

type authorizationStore interface {
	persist.Store
	verifyservice.Store
}

func (i *infra) authorizationStore() authorizationStore {
	if i.db != nil {
		return authzstore.NewPostgres(i.db)
	}
	return authzstore.NewInMemoryStore()
}

func (i *infra) auditStore() audit.Store {
	switch {
	case i.db != nil:
		return auditpostgres.New(i.db)
	case i.redis != nil:
		return auditredis.New(i.redis.Client)
	default:
		return auditmemory.New()
	}
}

func (i *infra) velocityStore() velocity.StateStore {
	if i.redis != nil {
		return velocityredis.New(i.redis.Client)
	}
	return velocitymemory.New()
}

// signingKeys holds the keys derived from the root secret unless dedicated
// keys are configured.
type signingKeys struct {
	token []byte
	proof ed25519.PrivateKey
	audit ed25519.PrivateKey
}

func deriveKeys(cfg config.Server) (signingKeys, error) {
	var k signingKeys
	var err error
	if cfg.TokenKey != "" {
		k.token = []byte(cfg.TokenKey)
	} else if k.token, err = secrets.Derive(cfg.SecretKey, secrets.LabelDelegationToken, tokenKeySize); err != nil {
		return signingKeys{}, fmt.Errorf("derive token key: %w", err)
	}
	if k.proof, err = secrets.Ed25519Key(cfg.SecretKey, cfg.ProofKeySeed, secrets.LabelProofToken); err != nil {
		return signingKeys{}, fmt.Errorf("derive proof key: %w", err)
	}
	if k.audit, err = secrets.Ed25519Key(cfg.SecretKey, cfg.AuditKeySeed, secrets.LabelAuditSigning); err != nil {
		return signingKeys{}, fmt.Errorf("derive audit key: %w", err)
	}
	return k, nil
}

// app is the assembled service graph.
type app struct {
	handler   *httptransport.Handler
	guard     *idempotency.Guard
	persister *persist.Worker
	ledger    *audit.Ledger
	publisher *events.KafkaPublisher
}

func (a *app) closePublisher(log *slog.Logger) {
	if a.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publisherFlushTimeout)
	defer cancel()
	if err := a.publisher.Close(ctx); err != nil {
		log.Warn("event_publisher_close_failed", "error", err)
	}
}

func buildApp(ctx context.Context, cfg config.Server, in *infra, reg prometheus.Registerer, log *slog.Logger) (*app, error) {
	k, err := deriveKeys(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{}
	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(ctx, cfg.Kafka,
			events.WithKafkaLogger(log),
			events.WithRegisterer(reg),
		)
		if err != nil {
			return nil, err
		}
		a.publisher = kp
		publisher = kp
	}

	a.ledger, err = audit.New(in.auditStore(), k.audit,
		audit.WithLogger(log),
		audit.WithMetrics(auditmetrics.New(reg)),
		audit.WithRetentionDays(cfg.Audit.RetentionDays),
		audit.WithQueueCapacity(cfg.Audit.QueueCapacity),
	)
	if err != nil {
		return nil, err
	}

	consents := in.consentStore()
	consentCache, err := consentcache.New(consents, in.consentBackend(cfg.ConsentCache.MaxEntries),
		consentcache.WithTTL(cfg.ConsentCache.TTL),
		consentcache.WithStoreTimeout(cfg.ConsentCache.StoreTimeout),
		consentcache.WithStoreRetries(cfg.ConsentCache.StoreRetries),
		consentcache.WithLogger(log),
		consentcache.WithMetrics(consentmetrics.New(reg)),
	)
	if err != nil {
		return nil, err
	}

	codec, err := jwttoken.NewCodec(k.token, k.proof,
		jwttoken.WithIssuer(cfg.Token.Issuer),
		jwttoken.WithTTL(cfg.Token.TTL),
	)
	if err != nil {
		return nil, err
	}
	consentSvc, err := consentservice.New(consents, consentCache, codec, a.ledger,
		consentservice.WithLogger(log),
		consentservice.WithPublisher(publisher),
	)
	if err != nil {
		return nil, err
	}

	shared := in.sharedCache()
	limiter, err := ratelimit.New(shared, cfg.RateLimit.Limit, cfg.RateLimit.Window,
		ratelimit.WithFailureMode(cfg.RateLimit.FailureMode),
		ratelimit.WithTimeout(cfg.RateLimit.Timeout),
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(rlmetrics.New(reg)),
	)
	if err != nil {
		return nil, err
	}
	table, err := codes.New(shared)
	if err != nil {
		return nil, err
	}

	authzMetrics := authzmetrics.New(reg)
	authzStore := in.authorizationStore()
	a.persister, err = persist.New(authzStore,
		persist.WithCapacity(cfg.Authorization.QueueCapacity),
		persist.WithBatchSize(cfg.Authorization.BatchSize),
		persist.WithFlushInterval(cfg.Authorization.FlushInterval),
		persist.WithMaxAttempts(cfg.Authorization.MaxAttempts),
		persist.WithDrainTimeout(cfg.Authorization.DrainTimeout),
		persist.WithAuditor(a.ledger),
		persist.WithLogger(log),
		persist.WithMetrics(authzMetrics),
	)
	if err != nil {
		return nil, err
	}

	authzOpts := []authzservice.Option{
		authzservice.WithCodeTTL(cfg.Authorization.CodeTTL),
		authzservice.WithStepUpBaseURL(cfg.Authorization.StepUpBaseURL),
		authzservice.WithPublisher(publisher),
		authzservice.WithLogger(log),
		authzservice.WithMetrics(authzMetrics),
	}
	if cfg.Velocity.Enabled {
		engine, err := velocity.New(in.velocityStore(),
			velocity.WithTimeout(cfg.Velocity.Timeout),
			velocity.WithLogger(log),
			velocity.WithMetrics(velocitymetrics.New(reg)),
		)
		if err != nil {
			return nil, err
		}
		authzOpts = append(authzOpts, authzservice.WithVelocity(engine))
	}
	authzSvc, err := authzservice.New(codec, consentCache, consents, limiter, table, a.persister, a.ledger, authzOpts...)
	if err != nil {
		return nil, err
	}

	verifySvc, err := verifyservice.New(table, authzStore, a.persister, consentCache, codec, a.ledger,
		verifyservice.WithPublisher(publisher),
		verifyservice.WithLogger(log),
		verifyservice.WithMetrics(verifymetrics.New(reg)),
	)
	if err != nil {
		return nil, err
	}

	a.guard, err = idempotency.New(shared,
		idempotency.WithLockTTL(cfg.Idempotency.LockTTL),
		idempotency.WithResponseTTL(cfg.Idempotency.ResponseTTL),
		idempotency.WithMinKeyLength(cfg.Idempotency.MinKeyLen),
		idempotency.WithLogger(log),
		idempotency.WithMetrics(idemmetrics.New(reg)),
	)
	if err != nil {
		return nil, err
	}

	handlerOpts := []httptransport.Option{httptransport.WithLogger(log)}
	for name, check := range in.checks() {
		handlerOpts = append(handlerOpts, httptransport.WithHealthCheck(name, check))
	}
	a.handler, err = httptransport.New(authzSvc, verifySvc, consentSvc, a.ledger, codec, handlerOpts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}
