package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"

	"zkcred/internal/claims/models"
	"zkcred/internal/sentinel"
	"zkcred/pkg/testutil"
)

type claimStore interface {
	Create(ctx context.Context, claim *models.Claim) error
	FindByID(ctx context.Context, id string) (*models.Claim, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (*models.Claim, error)
	ListByHolder(ctx context.Context, holderID string, limit int) ([]*models.Claim, error)
	Stats(ctx context.Context, dayStart time.Time) (*models.Stats, error)
}

// StoreContractSuite runs the same behaviour checks against every backend.
type StoreContractSuite struct {
	suite.Suite
	newStore func() claimStore
	store    claimStore
	ctx      context.Context
	now      time.Time
}

func (s *StoreContractSuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
	s.now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *StoreContractSuite) newClaim(holderID, skill string, createdAt time.Time) *models.Claim {
	return &models.Claim{
		ID:          models.IDPrefix + uuid.NewString(),
		ReferenceID: "ref_" + uuid.NewString(),
		HolderID:    holderID,
		Subject: models.Subject{
			FullName:       "Test Holder",
			NationalIDHash: "5f2b",
			DateOfBirth:    "1990-01-01",
			Skill:          skill,
			Score:          lo.ToPtr(700),
		},
		Status:           models.StatusPending,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
		CredentialSource: models.SourceMock,
		Credential:       json.RawMessage(`{"id":"urn:claim:x"}`),
	}
}

func (s *StoreContractSuite) TestCreateAndFind() {
	claim := s.newClaim("did:iden3:a", "go", s.now)
	s.Require().NoError(s.store.Create(s.ctx, claim))

	found, err := s.store.FindByID(s.ctx, claim.ID)
	s.Require().NoError(err)
	s.Equal(claim.ID, found.ID)
	s.Equal(claim.ReferenceID, found.ReferenceID)
	s.Equal(claim.Subject.Skill, found.Subject.Skill)
	s.Equal(700, *found.Subject.Score)
	s.True(claim.CreatedAt.Equal(found.CreatedAt))
	s.JSONEq(string(claim.Credential), string(found.Credential))

	s.Run("duplicate id conflicts", func() {
		err := s.store.Create(s.ctx, claim)
		s.True(errors.Is(err, sentinel.ErrConflict))
	})

	s.Run("unknown id", func() {
		_, err := s.store.FindByID(s.ctx, "clm_missing")
		s.True(errors.Is(err, sentinel.ErrNotFound))
	})
}

func (s *StoreContractSuite) TestUpdate() {
	claim := s.newClaim("did:iden3:a", "go", s.now)
	s.Require().NoError(s.store.Create(s.ctx, claim))

	s.Run("persists fn changes", func() {
		updated, err := s.store.Update(s.ctx, claim.ID, func(c *models.Claim) error {
			_, err := c.MarkIssued("did:iden3:wallet", s.now.Add(time.Minute))
			return err
		})
		s.Require().NoError(err)
		s.Equal(models.StatusIssued, updated.Status)

		found, err := s.store.FindByID(s.ctx, claim.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusIssued, found.Status)
		s.Equal("did:iden3:wallet", found.IssuedTo)
		s.Require().NotNil(found.IssuedAt)
	})

	s.Run("fn error aborts without writing", func() {
		boom := errors.New("boom")
		_, err := s.store.Update(s.ctx, claim.ID, func(c *models.Claim) error {
			c.IssuedTo = "someone-else"
			return boom
		})
		s.True(errors.Is(err, boom))

		found, err := s.store.FindByID(s.ctx, claim.ID)
		s.Require().NoError(err)
		s.Equal("did:iden3:wallet", found.IssuedTo)
	})

	s.Run("unknown id", func() {
		_, err := s.store.Update(s.ctx, "clm_missing", func(*models.Claim) error { return nil })
		s.True(errors.Is(err, sentinel.ErrNotFound))
	})
}

func (s *StoreContractSuite) TestConcurrentRevokeChangesOnce() {
	claim := s.newClaim("did:iden3:a", "go", s.now)
	s.Require().NoError(s.store.Create(s.ctx, claim))

	changes := make(chan bool, 100)
	result := testutil.RunConcurrent(10, func(int) error {
		_, err := s.store.Update(s.ctx, claim.ID, func(c *models.Claim) error {
			changed, err := c.Revoke("race", s.now)
			changes <- changed
			return err
		})
		return err
	})
	close(changes)

	s.Empty(result.Others)
	s.Equal(int32(10), result.Successes+result.Conflicts)
	changed := 0
	for c := range changes {
		if c {
			changed++
		}
	}
	s.GreaterOrEqual(changed, 1)

	found, err := s.store.FindByID(s.ctx, claim.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, found.Status)
}

func (s *StoreContractSuite) TestListByHolderNewestFirst() {
	holder := "did:iden3:list-" + uuid.NewString()
	var ids []string
	for i := 0; i < 3; i++ {
		claim := s.newClaim(holder, "go", s.now.Add(time.Duration(i)*time.Minute))
		s.Require().NoError(s.store.Create(s.ctx, claim))
		ids = append(ids, claim.ID)
	}
	s.Require().NoError(s.store.Create(s.ctx, s.newClaim("did:iden3:other", "go", s.now)))

	claims, err := s.store.ListByHolder(s.ctx, holder, 2)
	s.Require().NoError(err)
	s.Require().Len(claims, 2)
	s.Equal(ids[2], claims[0].ID)
	s.Equal(ids[1], claims[1].ID)
}

func (s *StoreContractSuite) TestStats() {
	dayStart := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	issuedToday := s.newClaim("did:iden3:a", "go", s.now)
	issuedYesterday := s.newClaim("did:iden3:a", "go", s.now.Add(-48*time.Hour))
	revoked := s.newClaim("did:iden3:b", "rust", s.now)
	pending := s.newClaim("did:iden3:c", "", s.now)
	for _, c := range []*models.Claim{issuedToday, issuedYesterday, revoked, pending} {
		s.Require().NoError(s.store.Create(s.ctx, c))
	}

	mark := func(id string, at time.Time) {
		_, err := s.store.Update(s.ctx, id, func(c *models.Claim) error {
			_, err := c.MarkIssued("did:iden3:wallet", at)
			return err
		})
		s.Require().NoError(err)
	}
	mark(issuedToday.ID, s.now)
	mark(issuedYesterday.ID, s.now.Add(-24*time.Hour))
	_, err := s.store.Update(s.ctx, revoked.ID, func(c *models.Claim) error {
		_, err := c.Revoke("", s.now)
		return err
	})
	s.Require().NoError(err)

	stats, err := s.store.Stats(s.ctx, dayStart)
	s.Require().NoError(err)
	s.Equal(4, stats.Total)
	s.Equal(1, stats.Pending)
	s.Equal(2, stats.Issued)
	s.Equal(1, stats.Revoked)
	s.Equal(1, stats.IssuedToday)
	s.Equal(map[string]int{"go": 2, "rust": 1}, stats.Skills)
}

func TestInMemoryStore(t *testing.T) {
	suite.Run(t, &StoreContractSuite{newStore: func() claimStore { return NewInMemory() }})
}
