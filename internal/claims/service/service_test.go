package service_test

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Issuer,Hasher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"
	"go.uber.org/mock/gomock"

	"zkcred/internal/audit"
	"zkcred/internal/claims/models"
	"zkcred/internal/claims/service"
	"zkcred/internal/claims/service/mocks"
	"zkcred/internal/claims/store"
	"zkcred/internal/issuance"
	issuancemocks "zkcred/internal/issuance/mocks"
	"zkcred/internal/platform/metrics"
	"zkcred/internal/platform/privacy"
	"zkcred/internal/wallet/message"
	dErrors "zkcred/pkg/domain-errors"
	limits "zkcred/pkg/platform/validation"
	"zkcred/pkg/requestcontext"
	"zkcred/pkg/validation"
)

const (
	holderDID  = "did:iden3:holder1"
	rawID      = "499182345674"
	issuerDID  = "did:iden3:issuer"
	publicBase = "https://issuer.example"
)

type ServiceSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	backend *issuancemocks.MockBackend
	store   *store.InMemoryStore
	events  *audit.InMemoryStore
	metrics *metrics.Metrics
	service *service.Service
	ctx     context.Context
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.backend = issuancemocks.NewMockBackend(s.ctrl)
	s.store = store.NewInMemory()
	s.events = audit.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	signer, err := issuance.NewMockSigner(issuance.MockConfig{
		IssuerDID:     issuerDID,
		SigningKey:    []byte("test-signing-key"),
		StatusBaseURL: publicBase,
	})
	s.Require().NoError(err)
	issuer := issuance.NewIssuer(signer,
		issuance.WithBackend(s.backend),
		issuance.WithLogger(logger),
		issuance.WithMetrics(s.metrics),
	)
	builder := message.NewBuilder(message.Config{
		BaseURL:           publicBase,
		IssuerDID:         issuerDID,
		VerifierDID:       "did:iden3:verifier",
		UniversalLinkBase: "https://wallet.example/app",
	})

	s.service = service.New(s.store, issuer, privacy.NewNationalIDHasher("pepper"), builder,
		service.WithAuditor(audit.NewPublisher(s.events)),
		service.WithMetrics(s.metrics),
		service.WithLogger(logger),
		service.WithCredentialSchema("KYCAgeCredential", "https://schemas.example/kyc.jsonld"),
	)
	s.now = time.Date(2026, 5, 10, 14, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) validRequest() *models.CreateClaimRequest {
	return &models.CreateClaimRequest{
		HolderID:    holderDID,
		FullName:    "Ada Lovelace",
		NationalID:  rawID,
		DateOfBirth: "1990-04-12",
		Skill:       "go",
		Graduated:   true,
		Score:       lo.ToPtr(720),
	}
}

func (s *ServiceSuite) backendDown() {
	s.backend.EXPECT().CreateCredential(gomock.Any(), gomock.Any()).
		Return("", issuance.NewBackendError(issuance.ErrorOutage, "create", "backend unavailable: 503", nil))
}

func (s *ServiceSuite) TestCreateRejectsInvalidRequest() {
	req := s.validRequest()
	req.FullName = "  "
	req.NationalID = "499182345675"
	req.DateOfBirth = "2030-01-01"

	result, err := s.service.Create(s.ctx, req)
	s.Require().Error(err)
	s.Nil(result)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	fields, ok := validation.FieldErrors(err)
	s.Require().True(ok)
	names := lo.Map(fields, func(f validation.FieldError, _ int) string { return f.Field })
	s.ElementsMatch([]string{"full_name", "national_id", "date_of_birth"}, names)

	claims, err := s.store.ListByHolder(s.ctx, holderDID, 10)
	s.Require().NoError(err)
	s.Empty(claims)
}

func (s *ServiceSuite) TestCreateRequiresDateOfBirthAndSkill() {
	req := s.validRequest()
	req.DateOfBirth = ""
	req.Skill = "   "

	result, err := s.service.Create(s.ctx, req)
	s.Require().Error(err)
	s.Nil(result)

	fields, ok := validation.FieldErrors(err)
	s.Require().True(ok)
	names := lo.Map(fields, func(f validation.FieldError, _ int) string { return f.Field })
	s.ElementsMatch([]string{"date_of_birth", "skill"}, names)
}

func (s *ServiceSuite) TestCreateEnforcesLengthLimits() {
	req := s.validRequest()
	req.FullName = strings.Repeat("a", limits.MaxNameLength+1)
	req.Skill = strings.Repeat("s", limits.MaxSkillLength+1)

	_, err := s.service.Create(s.ctx, req)
	fields, ok := validation.FieldErrors(err)
	s.Require().True(ok)
	names := lo.Map(fields, func(f validation.FieldError, _ int) string { return f.Field })
	s.ElementsMatch([]string{"full_name", "skill"}, names)
}

func (s *ServiceSuite) TestCreateFallsBackToMockWhenBackendFails() {
	s.backendDown()

	result, err := s.service.Create(s.ctx, s.validRequest())
	s.Require().NoError(err)
	s.Equal(models.SourceMock, result.CredentialSource)
	s.Equal(models.StatusPending, result.Status)
	s.NotEmpty(result.ReferenceID)
	s.Contains(result.Links.DeepLink, "iden3comm://?i_m=")
	s.Contains(result.Links.UniversalLink, "https://wallet.example/app/#i_m=")
	s.Equal(result.ClaimID, result.Offer.ThreadID)

	claim, err := s.store.FindByID(s.ctx, result.ClaimID)
	s.Require().NoError(err)
	s.Equal(publicBase+"/wallet/claims/"+claim.ID+"/status",
		gjson.GetBytes(claim.Credential, "credentialStatus.id").String())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.IssuanceFallbacks.WithLabelValues("outage")))
	s.Equal([]audit.Action{audit.ActionClaimCreated}, s.events.Actions())
}

func (s *ServiceSuite) TestCreateUsesBackendCredential() {
	s.backend.EXPECT().CreateCredential(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req issuance.CredentialRequest) (string, error) {
			s.Equal("KYCAgeCredential", req.CredentialType)
			s.NotContains(req.Subject, "nationalId")
			return "cred-42", nil
		})
	s.backend.EXPECT().FetchCredential(gomock.Any(), "cred-42").
		Return(json.RawMessage(`{"id":"cred-42","type":["VerifiableCredential"]}`), nil)

	result, err := s.service.Create(s.ctx, s.validRequest())
	s.Require().NoError(err)
	s.Equal(models.SourceBackend, result.CredentialSource)

	claim, err := s.store.FindByID(s.ctx, result.ClaimID)
	s.Require().NoError(err)
	s.Equal("cred-42", claim.BackendCredentialID)
}

func (s *ServiceSuite) TestRawNationalIDIsNeverPersisted() {
	s.backendDown()

	result, err := s.service.Create(s.ctx, s.validRequest())
	s.Require().NoError(err)

	claim, err := s.store.FindByID(s.ctx, result.ClaimID)
	s.Require().NoError(err)
	stored, err := json.Marshal(claim)
	s.Require().NoError(err)
	s.NotContains(string(stored), rawID)
	s.NotEmpty(claim.Subject.NationalIDHash)
}

func (s *ServiceSuite) TestCreateRejectsBadChecksum() {
	req := s.validRequest()
	req.NationalID = "123456789012"

	_, err := s.service.Create(s.ctx, req)
	s.Require().Error(err)
	fields, ok := validation.FieldErrors(err)
	s.Require().True(ok)
	s.Require().Len(fields, 1)
	s.Equal("national_id", fields[0].Field)
	s.Contains(fields[0].Message, "checksum")
}

func (s *ServiceSuite) TestCreateTwiceForSameHolderMakesTwoClaims() {
	s.backend.EXPECT().CreateCredential(gomock.Any(), gomock.Any()).
		Return("", issuance.NewBackendError(issuance.ErrorOutage, "create", "backend unavailable: 503", nil)).
		Times(2)

	first, err := s.service.Create(s.ctx, s.validRequest())
	s.Require().NoError(err)
	second, err := s.service.Create(s.ctx, s.validRequest())
	s.Require().NoError(err)
	s.NotEqual(first.ClaimID, second.ClaimID)

	claims, err := s.store.ListByHolder(s.ctx, holderDID, 10)
	s.Require().NoError(err)
	s.Len(claims, 2)
}

func (s *ServiceSuite) TestProcessFetchIsIdempotent() {
	s.backendDown()
	result, err := s.service.Create(s.ctx, s.validRequest())
	s.Require().NoError(err)

	first, err := s.service.ProcessFetch(s.ctx, result.ClaimID, &message.Message{From: "did:iden3:wallet-a"})
	s.Require().NoError(err)
	s.Equal(message.TypeCredentialIssuance, first.Type)
	s.Equal(result.ClaimID, first.ThreadID)
	s.Equal("did:iden3:wallet-a", first.To)

	second, err := s.service.ProcessFetch(s.ctx, result.ClaimID, &message.Message{From: "did:iden3:wallet-b"})
	s.Require().NoError(err)
	s.Equal(first, second)

	claim, err := s.store.FindByID(s.ctx, result.ClaimID)
	s.Require().NoError(err)
	s.Equal(models.StatusIssued, claim.Status)
	s.Equal("did:iden3:wallet-a", claim.IssuedTo)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ClaimsIssued))
	s.Equal([]audit.Action{audit.ActionClaimCreated, audit.ActionClaimIssued}, s.events.Actions())
}

func (s *ServiceSuite) TestProcessFetchDefaultsRecipientToHolder() {
	s.backendDown()
	result, err := s.service.Create(s.ctx, s.validRequest())
	s.Require().NoError(err)

	msg, err := s.service.ProcessFetch(s.ctx, result.ClaimID, nil)
	s.Require().NoError(err)
	s.Equal(holderDID, msg.To)
}

func (s *ServiceSuite) TestProcessFetchErrors() {
	s.Run("unknown claim", func() {
		_, err := s.service.ProcessFetch(s.ctx, "clm_missing", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("revoked claim", func() {
		s.backendDown()
		result, err := s.service.Create(s.ctx, s.validRequest())
		s.Require().NoError(err)
		ok, err := s.service.Revoke(s.ctx, result.ClaimID, "fraud")
		s.Require().NoError(err)
		s.Require().True(ok)

		_, err = s.service.ProcessFetch(s.ctx, result.ClaimID, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeRevoked))
	})

	s.Run("claim revoked after issuance", func() {
		s.backendDown()
		result, err := s.service.Create(s.ctx, s.validRequest())
		s.Require().NoError(err)
		_, err = s.service.ProcessFetch(s.ctx, result.ClaimID, nil)
		s.Require().NoError(err)

		ok, err := s.service.Revoke(s.ctx, result.ClaimID, "holder request")
		s.Require().NoError(err)
		s.Require().True(ok)

		msg, err := s.service.ProcessFetch(s.ctx, result.ClaimID, nil)
		s.Nil(msg)
		s.True(dErrors.HasCode(err, dErrors.CodeRevoked))

		claim, err := s.store.FindByID(s.ctx, result.ClaimID)
		s.Require().NoError(err)
		s.Equal(models.StatusRevoked, claim.Status)
	})
}

func (s *ServiceSuite) TestRevoke() {
	s.Run("unknown claim reports false", func() {
		ok, err := s.service.Revoke(s.ctx, "clm_missing", "")
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("revoking twice keeps the first reason", func() {
		s.backendDown()
		result, err := s.service.Create(s.ctx, s.validRequest())
		s.Require().NoError(err)

		ok, err := s.service.Revoke(s.ctx, result.ClaimID, "expired certification")
		s.Require().NoError(err)
		s.True(ok)
		ok, err = s.service.Revoke(s.ctx, result.ClaimID, "second attempt")
		s.Require().NoError(err)
		s.True(ok)

		claim, err := s.store.FindByID(s.ctx, result.ClaimID)
		s.Require().NoError(err)
		s.Equal("expired certification", claim.RevocationReason)
		s.Len(s.events.ListBySubject(result.ClaimID), 2)

		status, err := s.service.RevocationStatus(s.ctx, result.ClaimID)
		s.Require().NoError(err)
		s.True(status.Revoked)
	})
}

func (s *ServiceSuite) TestStats() {
	for i := 0; i < 3; i++ {
		s.backendDown()
	}
	ids := make([]string, 0, 3)
	for _, skill := range []string{"go", "go", "rust"} {
		req := s.validRequest()
		req.Skill = skill
		result, err := s.service.Create(s.ctx, req)
		s.Require().NoError(err)
		ids = append(ids, result.ClaimID)
	}
	_, err := s.service.ProcessFetch(s.ctx, ids[0], nil)
	s.Require().NoError(err)
	_, err = s.service.Revoke(s.ctx, ids[1], "")
	s.Require().NoError(err)

	stats, err := s.service.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, stats.Total)
	s.Equal(1, stats.Pending)
	s.Equal(1, stats.Issued)
	s.Equal(1, stats.Revoked)
	s.Equal(1, stats.IssuedToday)
	s.Equal(map[string]int{"go": 2, "rust": 1}, stats.Skills)
}

func (s *ServiceSuite) TestListByHolder() {
	s.Run("holder is required", func() {
		_, err := s.service.ListByHolder(s.ctx, "", 10)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("returns newest first", func() {
		s.backendDown()
		s.backendDown()
		older, err := s.service.Create(s.ctx, s.validRequest())
		s.Require().NoError(err)
		later := requestcontext.WithTime(context.Background(), s.now.Add(time.Minute))
		newer, err := s.service.Create(later, s.validRequest())
		s.Require().NoError(err)

		claims, err := s.service.ListByHolder(s.ctx, holderDID, 0)
		s.Require().NoError(err)
		s.Require().Len(claims, 2)
		s.Equal(newer.ClaimID, claims[0].ID)
		s.Equal(older.ClaimID, claims[1].ID)
	})
}

type StoreFailureSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	store   *mocks.MockStore
	issuer  *mocks.MockIssuer
	hasher  *mocks.MockHasher
	service *service.Service
}

func TestStoreFailureSuite(t *testing.T) {
	suite.Run(t, new(StoreFailureSuite))
}

func (s *StoreFailureSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.issuer = mocks.NewMockIssuer(s.ctrl)
	s.hasher = mocks.NewMockHasher(s.ctrl)
	s.service = service.New(s.store, s.issuer, s.hasher,
		message.NewBuilder(message.Config{BaseURL: publicBase, IssuerDID: issuerDID}),
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func (s *StoreFailureSuite) TestCreateSaveFailureIsInternal() {
	s.hasher.EXPECT().Hash(rawID).Return("hash", nil)
	s.issuer.EXPECT().Issue(gomock.Any(), gomock.Any()).
		Return(&issuance.Result{Source: issuance.SourceMock, Credential: json.RawMessage(`{}`)}, nil)
	s.store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))

	_, err := s.service.Create(context.Background(), &models.CreateClaimRequest{
		HolderID:    holderDID,
		FullName:    "Ada Lovelace",
		NationalID:  rawID,
		DateOfBirth: "1990-04-12",
		Skill:       "go",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *StoreFailureSuite) TestRevokeUpdateFailureIsInternal() {
	s.store.EXPECT().Update(gomock.Any(), "clm_1", gomock.Any()).Return(nil, errors.New("tx aborted"))

	ok, err := s.service.Revoke(context.Background(), "clm_1", "")
	s.False(ok)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *StoreFailureSuite) TestStatsFailureIsInternal() {
	s.store.EXPECT().Stats(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))

	_, err := s.service.Stats(context.Background())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
