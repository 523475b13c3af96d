package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	claimhandler "zkcred/internal/claims/handler"
	claimservice "zkcred/internal/claims/service"
	"zkcred/internal/gateway"
	"zkcred/internal/platform/config"
	"zkcred/internal/platform/health"
	"zkcred/internal/platform/logger"
	"zkcred/internal/platform/metrics"
	"zkcred/internal/platform/privacy"
	registryhandler "zkcred/internal/registry/handler"
	"zkcred/internal/verification/handler"
	"zkcred/internal/verification/scope"
	verificationservice "zkcred/internal/verification/service"
	"zkcred/internal/verification/workers/sweeper"
	"zkcred/internal/wallet/message"
	"zkcred/pkg/platform/middleware/admin"
	"zkcred/pkg/platform/middleware/request"
	"zkcred/pkg/platform/middleware/requesttime"
	"zkcred/pkg/platform/validation"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err == nil {
		err = cfg.Validate()
	}
	log := logger.New(
		logger.WithLevel(logger.LevelFor(cfg.Environment)),
		logger.WithAttrs(slog.String("environment", cfg.Environment)),
	)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	log.InfoContext(ctx, "initializing zkcred",
		"addr", cfg.Addr,
		"claim_backend", cfg.Storage.ClaimBackend,
		"session_backend", cfg.Storage.SessionBackend,
		"issuance_backend", cfg.Issuance.BackendURL != "",
		"registry", cfg.Registry.URL != "",
	)

	m := metrics.New(prometheus.DefaultRegisterer)
	healthHandler := health.New(cfg.Environment)

	infra, err := connect(ctx, cfg, log, healthHandler)
	if err != nil {
		return err
	}
	defer infra.Close(log)

	auditor := newAuditor(cfg, log, infra)
	defer auditor.Close()

	claimStore, err := newClaimStore(ctx, cfg, infra)
	if err != nil {
		return err
	}
	sessionStore, err := newSessionStore(cfg, infra)
	if err != nil {
		return err
	}

	issuer, err := newIssuer(cfg, log, m, healthHandler)
	if err != nil {
		return err
	}
	reg, checker := newRegistry(cfg, log, m, healthHandler)

	builder := message.NewBuilder(message.Config{
		BaseURL:           cfg.PublicBaseURL,
		IssuerDID:         cfg.Issuer.DID,
		VerifierDID:       cfg.Issuer.VerifierDID,
		Scheme:            cfg.Wallet.Scheme,
		UniversalLinkBase: cfg.Wallet.UniversalLink,
	})

	claims := claimservice.New(claimStore, issuer, privacy.NewNationalIDHasher(cfg.Issuer.NationalIDSalt), builder,
		claimservice.WithAuditor(auditor),
		claimservice.WithMetrics(m),
		claimservice.WithLogger(log),
		claimservice.WithCredentialSchema(cfg.Issuer.CredentialType, cfg.Issuer.CredentialContext),
	)

	scopes := scope.NewBuilder(cfg.Issuer.CredentialType, cfg.Issuer.CredentialContext)
	verifications := verificationservice.New(sessionStore, checker, scopes, builder,
		verificationservice.WithTTL(cfg.Verification.SessionTTL),
		verificationservice.WithAuditor(auditor),
		verificationservice.WithMetrics(m),
		verificationservice.WithLogger(log),
	)

	sweep, err := sweeper.New(verifications,
		sweeper.WithSchedule(cfg.Verification.SweepSchedule),
		sweeper.WithLogger(log),
	)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(request.Logger(log))
	r.Use(requesttime.Middleware)
	r.Use(request.LatencyMiddleware(request.NewMetrics(prometheus.DefaultRegisterer)))
	r.Use(request.Timeout(requestTimeout))

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())
	gateway.New(claims, verifications, builder, log,
		gateway.WithMetrics(m),
		gateway.WithAllowedOrigins(cfg.CORSOrigins),
	).Register(r)
	r.Group(func(r chi.Router) {
		r.Use(request.ContentTypeJSON)
		r.Use(request.BodyLimit(validation.MaxBodySize))
		handler.New(verifications, log).Register(r)
		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(cfg.AdminToken, log))
			claimhandler.New(claims, log).Register(r)
			registryhandler.New(reg, log).Register(r)
		})
	})
	if cfg.AdminToken == "" {
		log.WarnContext(ctx, "ADMIN_TOKEN not set, operator routes are unauthenticated")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := sweep.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if infra.redis != nil {
		g.Go(func() error {
			infra.recordPoolStats(gctx)
			return nil
		})
	}
	return g.Wait()
}
