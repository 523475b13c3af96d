package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"zkcred/internal/audit"
	"zkcred/internal/claims/models"
	"zkcred/internal/claims/store"
	"zkcred/internal/issuance"
	"zkcred/internal/platform/metrics"
	"zkcred/internal/sentinel"
	"zkcred/internal/wallet/message"
	dErrors "zkcred/pkg/domain-errors"
	"zkcred/pkg/platform/validation"
	"zkcred/pkg/requestcontext"
)

// Store defines the persistence interface for claims.
// Error Contract:
//   - Create returns sentinel.ErrConflict for a duplicate id
//   - FindByID and Update return sentinel.ErrNotFound for unknown ids
//   - Update returns fn's error unchanged and persists nothing in that case
type Store interface {
	Create(ctx context.Context, claim *models.Claim) error
	FindByID(ctx context.Context, id string) (*models.Claim, error)
	Update(ctx context.Context, id string, fn store.UpdateFunc) (*models.Claim, error)
	ListByHolder(ctx context.Context, holderID string, limit int) ([]*models.Claim, error)
	Stats(ctx context.Context, dayStart time.Time) (*models.Stats, error)
}

// Issuer produces the credential body for a new claim.
type Issuer interface {
	Issue(ctx context.Context, req issuance.CredentialRequest) (*issuance.Result, error)
}

// Hasher turns a raw national ID into its salted one-way hash.
type Hasher interface {
	Hash(raw string) (string, error)
}

const (
	defaultListLimit      = 20
	defaultCredentialType = "KYCCredential"
	referencePrefix       = "ref_"
)

var errClaimRevoked = errors.New("claim revoked")

type Option func(*Service)

// Service owns the claim lifecycle: creation with issuance fallback, wallet
// fetch, revocation and the read-side aggregations.
type Service struct {
	store          Store
	issuer         Issuer
	hasher         Hasher
	builder        *message.Builder
	auditor        *audit.Publisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
	credentialType string
	context        string
}

func New(store Store, issuer Issuer, hasher Hasher, builder *message.Builder, opts ...Option) *Service {
	svc := &Service{
		store:          store,
		issuer:         issuer,
		hasher:         hasher,
		builder:        builder,
		logger:         slog.Default(),
		credentialType: defaultCredentialType,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
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

// WithCredentialSchema sets the credential type and JSON-LD context stamped
// into issued credentials.
func WithCredentialSchema(credentialType, jsonLDContext string) Option {
	return func(s *Service) {
		if credentialType != "" {
			s.credentialType = credentialType
		}
		s.context = jsonLDContext
	}
}

// Create validates req, hashes the national ID, obtains a credential (backend
// or mock) and persists a pending claim. The raw national ID never leaves
// this function.
func (s *Service) Create(ctx context.Context, req *models.CreateClaimRequest) (*models.CreateResult, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	now := requestcontext.Now(ctx)

	req.Normalize()
	if err := req.Validate(now); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.NationalID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "national_id must be exactly 12 digits")
	}
	subject := req.Subject(hash)
	claimID := models.IDPrefix + uuid.NewString()

	issued, err := s.issuer.Issue(ctx, issuance.CredentialRequest{
		ClaimID:        claimID,
		HolderID:       req.HolderID,
		CredentialType: s.credentialType,
		Context:        s.context,
		Subject:        subject.CredentialSubject(),
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue credential")
	}

	claim := &models.Claim{
		ID:                  claimID,
		ReferenceID:         referencePrefix + uuid.NewString(),
		HolderID:            req.HolderID,
		Subject:             subject,
		Status:              models.StatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
		BackendCredentialID: issued.BackendCredentialID,
		CredentialSource:    models.CredentialSource(issued.Source),
		Credential:          issued.Credential,
	}
	if err := s.store.Create(ctx, claim); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "claim already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save claim")
	}

	description := req.Description
	if description == "" {
		description = s.credentialType
	}
	offer, err := s.builder.Offer(claim.ID, claim.HolderID, description)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build offer")
	}
	links, err := s.builder.Links(offer)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode offer links")
	}

	s.emitAudit(ctx, audit.Event{
		Action:    audit.ActionClaimCreated,
		SubjectID: claim.ID,
		HolderID:  claim.HolderID,
		Outcome:   string(claim.CredentialSource),
	})
	if s.metrics != nil {
		s.metrics.IncrementClaimsCreated(string(claim.CredentialSource))
	}
	s.logger.InfoContext(ctx, "claim created",
		"claim_id", claim.ID,
		"credential_source", string(claim.CredentialSource),
	)

	return &models.CreateResult{
		ClaimID:          claim.ID,
		ReferenceID:      claim.ReferenceID,
		Status:           claim.Status,
		CredentialSource: claim.CredentialSource,
		Offer:            offer,
		Links:            links,
	}, nil
}

// ProcessFetch answers a wallet fetch-request with the issuance message for
// claimID and marks the claim issued. Repeating the fetch returns the same
// message and leaves IssuedTo untouched.
func (s *Service) ProcessFetch(ctx context.Context, claimID string, inbound *message.Message) (*message.Message, error) {
	if claimID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "claim id is required")
	}
	now := requestcontext.Now(ctx)

	var changed bool
	claim, err := s.store.Update(ctx, claimID, func(c *models.Claim) error {
		if c.Status == models.StatusRevoked {
			return errClaimRevoked
		}
		echo := s.builder.FetchEcho(c.ID, c.HolderID, inbound)
		var err error
		changed, err = c.MarkIssued(echo.From, now)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "claim not found")
		case errors.Is(err, errClaimRevoked), errors.Is(err, models.ErrInvalidTransition):
			return nil, dErrors.New(dErrors.CodeRevoked, "claim has been revoked")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update claim")
		}
	}

	msg, err := s.builder.Issuance(claim.ID, claim.IssuedTo, claim.Credential)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build issuance message")
	}

	if changed {
		s.emitAudit(ctx, audit.Event{
			Action:    audit.ActionClaimIssued,
			SubjectID: claim.ID,
			HolderID:  claim.IssuedTo,
		})
		if s.metrics != nil {
			s.metrics.IncrementClaimsIssued()
		}
		s.logger.InfoContext(ctx, "claim issued", "claim_id", claim.ID)
	}
	return msg, nil
}

// Revoke revokes claimID. It returns false for an unknown claim; revoking an
// already-revoked claim succeeds without changing the original reason.
func (s *Service) Revoke(ctx context.Context, claimID, reason string) (bool, error) {
	now := requestcontext.Now(ctx)

	var changed bool
	claim, err := s.store.Update(ctx, claimID, func(c *models.Claim) error {
		var err error
		changed, err = c.Revoke(reason, now)
		return err
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke claim")
	}

	if changed {
		s.emitAudit(ctx, audit.Event{
			Action:    audit.ActionClaimRevoked,
			SubjectID: claim.ID,
			HolderID:  claim.HolderID,
			Reason:    reason,
		})
		if s.metrics != nil {
			s.metrics.IncrementClaimsRevoked()
		}
		s.logger.InfoContext(ctx, "claim revoked", "claim_id", claim.ID)
	}
	return true, nil
}

func (s *Service) Get(ctx context.Context, claimID string) (*models.Claim, error) {
	claim, err := s.store.FindByID(ctx, claimID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "claim not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read claim")
	}
	return claim, nil
}

// ListByHolder returns up to limit claims for holderID, newest first. A
// non-positive limit means the default page size.
func (s *Service) ListByHolder(ctx context.Context, holderID string, limit int) ([]*models.Claim, error) {
	if holderID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "holder_id is required")
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > validation.MaxListLimit:
		limit = validation.MaxListLimit
	}
	claims, err := s.store.ListByHolder(ctx, holderID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list claims")
	}
	return claims, nil
}

// Stats aggregates claim counts. "Today" starts at UTC midnight of the
// request time.
func (s *Service) Stats(ctx context.Context) (*models.Stats, error) {
	now := requestcontext.Now(ctx).UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	stats, err := s.store.Stats(ctx, dayStart)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute claim stats")
	}
	if stats.Skills == nil {
		stats.Skills = map[string]int{}
	}
	return stats, nil
}

// RevocationStatus answers the credentialStatus pointer of an issued credential.
func (s *Service) RevocationStatus(ctx context.Context, claimID string) (*models.RevocationStatus, error) {
	claim, err := s.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	return &models.RevocationStatus{
		ClaimID:   claim.ID,
		Revoked:   claim.Status == models.StatusRevoked,
		RevokedAt: claim.RevokedAt,
	}, nil
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
