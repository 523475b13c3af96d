package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zkcred/internal/audit"
	claimservice "zkcred/internal/claims/service"
	claimstore "zkcred/internal/claims/store"
	"zkcred/internal/issuance"
	"zkcred/internal/platform/config"
	"zkcred/internal/platform/database"
	"zkcred/internal/platform/health"
	"zkcred/internal/platform/kafka/producer"
	"zkcred/internal/platform/metrics"
	"zkcred/internal/platform/mongodb"
	"zkcred/internal/platform/redis"
	"zkcred/internal/platform/tracer"
	"zkcred/internal/registry"
	verificationservice "zkcred/internal/verification/service"
	sessionstore "zkcred/internal/verification/store"
)

const (
	auditBuffer       = 256
	poolStatsInterval = 15 * time.Second
)

// infra holds the connections opened for the configured backends. Any of
// them may be nil.
type infra struct {
	pool     *database.Pool
	mongo    *mongodb.Client
	redis    *redis.Client
	producer *producer.Producer
}

func connect(ctx context.Context, cfg config.Server, log *slog.Logger, h *health.Handler) (*infra, error) {
	in := &infra{}
	st := cfg.Storage

	if st.ClaimBackend == config.BackendPostgres || st.SessionBackend == config.BackendPostgres {
		pool, err := database.New(ctx, database.DefaultConfig(st.DatabaseURL))
		if err != nil {
			return nil, err
		}
		in.pool = pool
		if err := database.Migrate(ctx, pool.DB()); err != nil {
			in.Close(log)
			return nil, err
		}
		h.RegisterCheck("postgres", pool.Health)
	}
	if st.ClaimBackend == config.BackendMongo {
		client, err := mongodb.New(st.MongoURL, st.MongoDatabase)
		if err != nil {
			in.Close(log)
			return nil, err
		}
		in.mongo = client
		h.RegisterCheck("mongodb", client.Health)
	}
	if st.SessionBackend == config.BackendRedis {
		client, err := redis.New(ctx, st.RedisURL)
		if err != nil {
			in.Close(log)
			return nil, err
		}
		in.redis = client
		h.RegisterCheck("redis", client.Health)
	}
	if cfg.Kafka.Brokers != "" {
		p, err := producer.New(producer.Config{Brokers: cfg.Kafka.Brokers}, log)
		if err != nil {
			in.Close(log)
			return nil, err
		}
		in.producer = p
		h.RegisterUpstream("kafka", func(ctx context.Context) string {
			if p.Healthy(ctx) {
				return health.StateOK
			}
			return health.StateDegraded
		})
	}
	return in, nil
}

// Close releases connections. The audit publisher must already be drained.
func (in *infra) Close(log *slog.Logger) {
	var errs []error
	if in.producer != nil {
		errs = append(errs, in.producer.Close())
	}
	if in.redis != nil {
		errs = append(errs, in.redis.Close())
	}
	if in.mongo != nil {
		errs = append(errs, in.mongo.Close())
	}
	errs = append(errs, in.pool.Close())
	if err := errors.Join(errs...); err != nil {
		log.Warn("closing connections", "error", err)
	}
}

func (in *infra) recordPoolStats(ctx context.Context) {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			in.redis.RecordPoolStats()
		}
	}
}

// newAuditor publishes lifecycle events to Kafka when brokers are configured
// and to the structured log otherwise.
func newAuditor(cfg config.Server, log *slog.Logger, in *infra) *audit.Publisher {
	var store audit.Store = audit.NewLogStore(log)
	if in.producer != nil {
		store = audit.NewKafkaStore(in.producer, cfg.Kafka.Topic)
	}
	return audit.NewPublisher(store,
		audit.WithAsyncBuffer(auditBuffer),
		audit.WithPublisherLogger(log),
	)
}

func newClaimStore(ctx context.Context, cfg config.Server, in *infra) (claimservice.Store, error) {
	switch cfg.Storage.ClaimBackend {
	case config.BackendPostgres:
		return claimstore.NewPostgres(in.pool.DB()), nil
	case config.BackendMongo:
		return claimstore.NewMongo(ctx, in.mongo)
	case config.BackendMemory:
		return claimstore.NewInMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported claim backend %q", cfg.Storage.ClaimBackend)
	}
}

func newSessionStore(cfg config.Server, in *infra) (verificationservice.Store, error) {
	switch cfg.Storage.SessionBackend {
	case config.BackendPostgres:
		return sessionstore.NewPostgres(in.pool.DB()), nil
	case config.BackendRedis:
		return sessionstore.NewRedis(in.redis.Client), nil
	case config.BackendMemory:
		return sessionstore.NewInMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported session backend %q", cfg.Storage.SessionBackend)
	}
}

func newIssuer(cfg config.Server, log *slog.Logger, m *metrics.Metrics, h *health.Handler) (*issuance.Issuer, error) {
	signer, err := issuance.NewMockSigner(issuance.MockConfig{
		IssuerDID:     cfg.Issuer.DID,
		SigningKey:    []byte(cfg.Issuer.MockSigningKey),
		StatusBaseURL: cfg.PublicBaseURL,
	})
	if err != nil {
		return nil, err
	}

	opts := []issuance.Option{
		issuance.WithLogger(log),
		issuance.WithMetrics(m),
	}
	if cfg.Issuance.BackendURL != "" {
		attempts := time.Duration(cfg.Issuance.Retries + 1)
		opts = append(opts,
			issuance.WithBackend(issuance.NewHTTPBackend(issuance.HTTPConfig{
				BaseURL:    cfg.Issuance.BackendURL,
				Timeout:    cfg.Issuance.Timeout,
				MaxRetries: cfg.Issuance.Retries,
				Tracer:     tracer.NewOTel("zkcred/issuance"),
			})),
			issuance.WithTimeout(cfg.Issuance.Timeout*attempts),
		)
	}
	issuer := issuance.NewIssuer(signer, opts...)
	h.RegisterUpstream("issuance_backend", func(context.Context) string {
		return issuer.BackendState()
	})
	return issuer, nil
}

// newRegistry uses the remote registry when configured and an empty in-memory
// allow-list otherwise; operators add issuers through /registry/issuers.
func newRegistry(cfg config.Server, log *slog.Logger, m *metrics.Metrics, h *health.Handler) (registry.Registry, *registry.Checker) {
	var reg registry.Registry = registry.NewInMemory()
	if cfg.Registry.URL != "" {
		reg = registry.NewHTTPRegistry(registry.HTTPConfig{
			BaseURL: cfg.Registry.URL,
			Timeout: cfg.Registry.Timeout,
			Tracer:  tracer.NewOTel("zkcred/registry"),
		})
	}
	checker := registry.NewChecker(reg,
		registry.WithCheckTimeout(cfg.Registry.Timeout),
		registry.WithCheckerLogger(log),
		registry.WithCheckerMetrics(m),
	)

	h.RegisterUpstream("registry", func(ctx context.Context) string {
		if cfg.Registry.URL == "" {
			return health.StateDisabled
		}
		if err := checker.Ping(ctx); err != nil {
			return health.StateDegraded
		}
		return health.StateOK
	})
	return reg, checker
}
