package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"zkcred/internal/audit"
	"zkcred/internal/platform/metrics"
	"zkcred/internal/registry"
	"zkcred/internal/sentinel"
	"zkcred/internal/verification/models"
	"zkcred/internal/verification/scope"
	"zkcred/internal/verification/store"
	"zkcred/internal/wallet/message"
	dErrors "zkcred/pkg/domain-errors"
	"zkcred/pkg/requestcontext"
	"zkcred/pkg/validation"
)

// Store defines the persistence interface for verification sessions.
// Error Contract:
//   - Create returns sentinel.ErrConflict for a duplicate id
//   - FindByID and Update return sentinel.ErrNotFound for unknown ids
//   - Update returns fn's error unchanged and persists nothing in that case
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, id string, fn store.UpdateFunc) (*models.Session, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Session, error)
}

// AuthorizationChecker asks the issuer registry about an address. It never
// fails; an unreachable registry reports Unknown.
type AuthorizationChecker interface {
	Check(ctx context.Context, address string) registry.Authorization
}

const (
	defaultTTL       = 15 * time.Minute
	sweepBatchSize   = 100
	challengeReason  = "Prove control of your identity"
	messageAccepted  = "proof accepted"
	messageMalformed = "proof response is missing or malformed"
)

type Option func(*Service)

// Service owns verification sessions: opening proof requests, resolving the
// wallet's response against the issuer registry and expiring stale sessions.
type Service struct {
	store   Store
	checker AuthorizationChecker
	scopes  *scope.Builder
	builder *message.Builder
	ttl     time.Duration
	auditor *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(store Store, checker AuthorizationChecker, scopes *scope.Builder, builder *message.Builder, opts ...Option) *Service {
	svc := &Service{
		store:   store,
		checker: checker,
		scopes:  scopes,
		builder: builder,
		ttl:     defaultTTL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// WithTTL sets the window between opening a session and its expiry.
func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func WithAuditor(a *audit.Publisher) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Open turns a verifier's business condition into scopes and persists a
// pending session holding the authorization request.
func (s *Service) Open(ctx context.Context, req *models.OpenRequest) (*models.OpenResult, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	now := requestcontext.Now(ctx)

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	vt, err := scope.ParseVerificationType(req.VerificationType)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}
	scopes, err := s.scopes.Build(vt, req.Conditions, now)
	if err != nil {
		var c validation.Collector
		c.Add("conditions", err.Error())
		return nil, c.Err()
	}

	reason := req.Reason
	if reason == "" {
		reason = fmt.Sprintf("Prove %s", vt)
	}
	return s.open(ctx, &models.Session{
		ID:               uuid.NewString(),
		Kind:             models.KindVerification,
		VerificationType: vt,
		Conditions:       req.Conditions,
		Reason:           reason,
		Scopes:           scopes,
		Status:           models.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        now.Add(s.ttl),
	})
}

// OpenChallenge opens an identity challenge: the holder proves possession of
// any credential of the configured type, with no business condition.
func (s *Service) OpenChallenge(ctx context.Context, req *models.ChallengeRequest) (*models.OpenResult, error) {
	if req == nil {
		req = &models.ChallengeRequest{}
	}
	now := requestcontext.Now(ctx)

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	reason := req.Reason
	if reason == "" {
		reason = challengeReason
	}
	return s.open(ctx, &models.Session{
		ID:               uuid.NewString(),
		Kind:             models.KindChallenge,
		VerificationType: scope.TypeCustom,
		Reason:           reason,
		Scopes:           s.scopes.Default(),
		Status:           models.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        now.Add(s.ttl),
	})
}

func (s *Service) open(ctx context.Context, session *models.Session) (*models.OpenResult, error) {
	request, err := s.builder.AuthorizationRequest(session.ID, session.Reason, session.Scopes)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build authorization request")
	}
	links, err := s.builder.Links(request)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode authorization request links")
	}
	if err := s.store.Create(ctx, session); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "verification session already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save verification session")
	}

	action := audit.ActionVerificationOpened
	if session.Kind == models.KindChallenge {
		action = audit.ActionChallengeOpened
	}
	s.emitAudit(ctx, audit.Event{
		Action:    action,
		SubjectID: session.ID,
		Outcome:   string(session.VerificationType),
	})
	if s.metrics != nil {
		s.metrics.IncrementSessionsOpened(string(session.Kind))
	}
	s.logger.InfoContext(ctx, "verification session opened",
		"request_id", session.ID,
		"kind", string(session.Kind),
		"verification_type", string(session.VerificationType),
		"expires_at", session.ExpiresAt,
	)

	return &models.OpenResult{
		RequestID: session.ID,
		Kind:      session.Kind,
		Status:    session.Status,
		ExpiresAt: session.ExpiresAt,
		Request:   request,
		Links:     links,
	}, nil
}

// Resolve records the outcome of the wallet's authorization response. The
// proof is only checked structurally here; the cryptographic check happens in
// the wallet stack. An issuer the registry does not authorize turns any proof
// into a failure.
func (s *Service) Resolve(ctx context.Context, requestID string, inbound *message.Message) (*models.Result, error) {
	if requestID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request id is required")
	}

	session, err := s.store.FindByID(ctx, requestID)
	if err != nil {
		return nil, s.translateLookup(err)
	}
	now := requestcontext.Now(ctx)
	switch {
	case session.PastExpiry(now):
		// Persist the flip below so polling agrees with this answer.
	case session.Status == models.StatusExpired:
		return nil, dErrors.New(dErrors.CodeGone, "verification session has expired")
	case session.Status.IsTerminal():
		return nil, dErrors.New(dErrors.CodeConflict, "verification session already resolved")
	}

	var result models.Result
	if !session.PastExpiry(now) {
		// Registry calls stay outside the per-session lock.
		result = s.evaluate(ctx, session, inbound)
	}

	var expired bool
	resolved, err := s.store.Update(ctx, requestID, func(sess *models.Session) error {
		if sess.Expire(now) {
			expired = true
			return nil
		}
		return sess.Resolve(result, now)
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrExpired):
			return nil, dErrors.New(dErrors.CodeGone, "verification session has expired")
		case errors.Is(err, models.ErrAlreadyResolved):
			return nil, dErrors.New(dErrors.CodeConflict, "verification session already resolved")
		default:
			return nil, s.translateLookup(err)
		}
	}
	if expired {
		s.recordExpiry(ctx, resolved)
		return nil, dErrors.New(dErrors.CodeGone, "verification session has expired")
	}

	s.emitAudit(ctx, audit.Event{
		Action:    audit.ActionVerificationResolved,
		SubjectID: resolved.ID,
		HolderID:  resolved.Result.HolderID,
		Outcome:   string(resolved.Status),
		Reason:    resolved.Result.Message,
	})
	if s.metrics != nil {
		s.metrics.IncrementSessionsResolved(string(resolved.Status))
	}
	s.logger.InfoContext(ctx, "verification session resolved",
		"request_id", resolved.ID,
		"status", string(resolved.Status),
		"issuer_authorized", resolved.Result.IssuerAuthorized,
		"authorization_unknown", resolved.Result.AuthorizationUnknown,
	)
	out := *resolved.Result
	return &out, nil
}

// evaluate builds the result for inbound without touching the store.
func (s *Service) evaluate(ctx context.Context, session *models.Session, inbound *message.Message) models.Result {
	if inbound == nil || inbound.From == "" {
		return models.Result{Message: messageMalformed}
	}
	result := models.Result{HolderID: inbound.From}

	var body message.AuthorizationResponseBody
	if err := inbound.DecodeBody(&body); err != nil {
		result.Message = messageMalformed
		return result
	}
	answered := lo.Filter(body.Scope, func(p message.ProofResponse, _ int) bool {
		return wellFormed(p)
	})
	if len(answered) == 0 {
		result.Message = messageMalformed
		return result
	}

	answeredIDs := lo.SliceToMap(answered, func(p message.ProofResponse) (int, struct{}) {
		return p.ID, struct{}{}
	})
	var fields []string
	for _, sc := range session.Scopes {
		if _, ok := answeredIDs[sc.ID]; ok {
			fields = append(fields, sc.Fields()...)
		}
	}
	result.DisclosedFields = lo.Uniq(fields)
	result.Verified = true
	result.Message = messageAccepted

	issuer, found := lo.Find(answered, func(p message.ProofResponse) bool { return p.Issuer != "" })
	if !found {
		return result
	}
	result.IssuerID = issuer.Issuer
	address, ok := registry.AddressFromIssuerID(issuer.Issuer)
	if !ok {
		return result
	}
	result.IssuerAddress = address

	auth := s.checker.Check(ctx, address)
	result.IssuerAuthorized = auth.Authorized
	result.AuthorizationUnknown = auth.Unknown
	switch {
	case auth.Unknown:
		result.Verified = false
		result.Message = "issuer authorization could not be confirmed"
	case !auth.Authorized:
		result.Verified = false
		result.Message = "issuer is not authorized"
	}
	return result
}

func wellFormed(p message.ProofResponse) bool {
	return len(p.Proof.A) > 0 && len(p.Proof.B) > 0 && len(p.Proof.C) > 0 && len(p.PubSignals) > 0
}

// Status returns the session, flipping it to expired when its window has
// passed so every later read agrees.
func (s *Service) Status(ctx context.Context, requestID string) (*models.Session, error) {
	session, err := s.store.FindByID(ctx, requestID)
	if err != nil {
		return nil, s.translateLookup(err)
	}
	now := requestcontext.Now(ctx)
	if !session.PastExpiry(now) {
		return session, nil
	}

	var expired bool
	session, err = s.store.Update(ctx, requestID, func(sess *models.Session) error {
		expired = sess.Expire(now)
		return nil
	})
	if err != nil {
		return nil, s.translateLookup(err)
	}
	if expired {
		s.recordExpiry(ctx, session)
	}
	return session, nil
}

// SweepExpired expires every pending session past its window and returns how
// many it changed.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	total := 0
	for {
		batch, err := s.store.ListExpired(ctx, now, sweepBatchSize)
		if err != nil {
			return total, fmt.Errorf("list expired sessions: %w", err)
		}
		changed := 0
		for _, candidate := range batch {
			var expired bool
			session, err := s.store.Update(ctx, candidate.ID, func(sess *models.Session) error {
				expired = sess.Expire(now)
				return nil
			})
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			if err != nil {
				return total, fmt.Errorf("expire session %s: %w", candidate.ID, err)
			}
			if expired {
				changed++
				s.recordExpiry(ctx, session)
			}
		}
		total += changed
		if len(batch) < sweepBatchSize || changed == 0 {
			return total, nil
		}
	}
}

func (s *Service) recordExpiry(ctx context.Context, session *models.Session) {
	s.emitAudit(ctx, audit.Event{
		Action:    audit.ActionVerificationExpired,
		SubjectID: session.ID,
		Outcome:   string(models.StatusExpired),
	})
	if s.metrics != nil {
		s.metrics.IncrementSessionsExpired()
	}
	s.logger.InfoContext(ctx, "verification session expired", "request_id", session.ID)
}

func (s *Service) translateLookup(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "verification session not found")
	}
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeConflict, "verification session is being updated")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access verification session")
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", string(event.Action),
			"subject_id", event.SubjectID,
			"error", err,
		)
	}
}
