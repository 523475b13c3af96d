package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendRedis    = "redis"
)

const (
	devSalt       = "dev-national-id-salt-change-in-production"
	devSigningKey = "dev-mock-signing-key-change-in-production"
)

// Server captures HTTP server level configuration and everything main wires
// from it.
type Server struct {
	Addr        string
	Environment string
	// PublicBaseURL is the externally reachable URL embedded in offers,
	// callbacks and credential status pointers.
	PublicBaseURL string
	CORSOrigins   []string
	// AdminToken guards the operator routes. Empty disables the check outside
	// production.
	AdminToken string

	Issuer       Issuer
	Wallet       Wallet
	Issuance     Issuance
	Registry     Registry
	Storage      Storage
	Kafka        Kafka
	Verification Verification
}

type Issuer struct {
	DID               string
	VerifierDID       string
	NationalIDSalt    string
	MockSigningKey    string
	CredentialType    string
	CredentialContext string
}

type Wallet struct {
	Scheme        string
	UniversalLink string
}

type Issuance struct {
	// BackendURL enables the external issuance backend. Empty means every
	// credential is mock-signed.
	BackendURL string
	Timeout    time.Duration
	Retries    uint64
}

type Registry struct {
	// URL points at a remote registry. Empty means the in-memory allow-list.
	URL     string
	Timeout time.Duration
}

type Storage struct {
	ClaimBackend   string
	SessionBackend string
	DatabaseURL    string
	MongoURL       string
	MongoDatabase  string
	RedisURL       string
}

type Kafka struct {
	Brokers string
	Topic   string
}

type Verification struct {
	SessionTTL    time.Duration
	SweepSchedule string
}

// FromEnv builds a Server config from environment variables so main stays lean.
// Malformed durations and numbers are reported rather than silently defaulted.
func FromEnv() (Server, error) {
	var errs []error
	cfg := Server{
		Addr:          env("SERVER_ADDR", ":8080"),
		Environment:   env("ENVIRONMENT", "development"),
		PublicBaseURL: strings.TrimRight(env("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		CORSOrigins:   list(os.Getenv("CORS_ALLOWED_ORIGINS")),
		AdminToken:    os.Getenv("ADMIN_TOKEN"),
		Issuer: Issuer{
			DID:               env("ISSUER_DID", "did:iden3:polygon:amoy:issuer"),
			VerifierDID:       env("VERIFIER_DID", "did:iden3:polygon:amoy:verifier"),
			NationalIDSalt:    env("NATIONAL_ID_SALT", devSalt),
			MockSigningKey:    env("MOCK_SIGNING_KEY", devSigningKey),
			CredentialType:    env("CREDENTIAL_TYPE", "KYCCredential"),
			CredentialContext: os.Getenv("CREDENTIAL_CONTEXT"),
		},
		Wallet: Wallet{
			Scheme:        env("WALLET_SCHEME", "iden3comm"),
			UniversalLink: os.Getenv("WALLET_UNIVERSAL_LINK"),
		},
		Issuance: Issuance{
			BackendURL: os.Getenv("ISSUANCE_BACKEND_URL"),
			Timeout:    duration("ISSUANCE_TIMEOUT", 5*time.Second, &errs),
			Retries:    unsigned("ISSUANCE_RETRIES", 2, &errs),
		},
		Registry: Registry{
			URL:     os.Getenv("REGISTRY_URL"),
			Timeout: duration("REGISTRY_TIMEOUT", 3*time.Second, &errs),
		},
		Storage: Storage{
			ClaimBackend:   strings.ToLower(env("STORE_BACKEND", BackendMemory)),
			SessionBackend: strings.ToLower(env("SESSION_BACKEND", BackendMemory)),
			DatabaseURL:    os.Getenv("DATABASE_URL"),
			MongoURL:       os.Getenv("MONGO_URL"),
			MongoDatabase:  env("MONGO_DATABASE", "zkcred"),
			RedisURL:       os.Getenv("REDIS_URL"),
		},
		Kafka: Kafka{
			Brokers: os.Getenv("KAFKA_BROKERS"),
			Topic:   env("KAFKA_TOPIC", "zkcred.lifecycle"),
		},
		Verification: Verification{
			SessionTTL:    duration("SESSION_TTL", 15*time.Minute, &errs),
			SweepSchedule: env("SWEEP_SCHEDULE", "@every 1m"),
		},
	}
	if err := errors.Join(errs...); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// IsProduction reports whether dev defaults must be rejected.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// Validate checks combinations FromEnv cannot catch on a single key.
func (s Server) Validate() error {
	var errs []error

	switch s.Storage.ClaimBackend {
	case BackendMemory:
	case BackendPostgres:
		if s.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("STORE_BACKEND=postgres requires DATABASE_URL"))
		}
	case BackendMongo:
		if s.Storage.MongoURL == "" {
			errs = append(errs, errors.New("STORE_BACKEND=mongo requires MONGO_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q is not one of memory, postgres, mongo", s.Storage.ClaimBackend))
	}

	switch s.Storage.SessionBackend {
	case BackendMemory:
	case BackendPostgres:
		if s.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("SESSION_BACKEND=postgres requires DATABASE_URL"))
		}
	case BackendRedis:
		if s.Storage.RedisURL == "" {
			errs = append(errs, errors.New("SESSION_BACKEND=redis requires REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("SESSION_BACKEND %q is not one of memory, redis, postgres", s.Storage.SessionBackend))
	}

	if s.Verification.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if s.Issuer.DID == "" {
		errs = append(errs, errors.New("ISSUER_DID is required"))
	}
	if s.IsProduction() {
		if s.Issuer.NationalIDSalt == devSalt {
			errs = append(errs, errors.New("NATIONAL_ID_SALT must be set in production"))
		}
		if s.Issuer.MockSigningKey == devSigningKey {
			errs = append(errs, errors.New("MOCK_SIGNING_KEY must be set in production"))
		}
		if s.AdminToken == "" {
			errs = append(errs, errors.New("ADMIN_TOKEN must be set in production"))
		}
	}
	return errors.Join(errs...)
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func unsigned(key string, fallback uint64, errs *[]error) uint64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

// list splits a comma-separated value, dropping blanks and duplicates.
func list(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := lo.Map(strings.Split(raw, ","), func(p string, _ int) string { return strings.TrimSpace(p) })
	return lo.Uniq(lo.Compact(parts))
}
