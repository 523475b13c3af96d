package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"zkcred/internal/claims/models"
	"zkcred/internal/platform/mongodb"
	"zkcred/internal/sentinel"
)

const (
	claimsCollection = "claims"
	maxCASAttempts   = 5
)

type subjectDocument struct {
	FullName       string `bson:"fullName"`
	NationalIDHash string `bson:"nationalIdHash"`
	DateOfBirth    string `bson:"dateOfBirth,omitempty"`
	Skill          string `bson:"skill,omitempty"`
	Graduated      bool   `bson:"graduated"`
	Score          *int   `bson:"score,omitempty"`
	Institution    string `bson:"institution,omitempty"`
	Degree         string `bson:"degree,omitempty"`
	GraduationYear *int   `bson:"graduationYear,omitempty"`
	Grade          string `bson:"grade,omitempty"`
}

// claimDocument carries a version for optimistic compare-and-swap updates.
type claimDocument struct {
	ID                  string          `bson:"_id"`
	Version             int64           `bson:"version"`
	ReferenceID         string          `bson:"referenceId"`
	HolderID            string          `bson:"holderId"`
	Subject             subjectDocument `bson:"subject"`
	Status              string          `bson:"status"`
	CreatedAt           time.Time       `bson:"createdAt"`
	UpdatedAt           time.Time       `bson:"updatedAt"`
	IssuedAt            *time.Time      `bson:"issuedAt,omitempty"`
	RevokedAt           *time.Time      `bson:"revokedAt,omitempty"`
	RevocationReason    string          `bson:"revocationReason,omitempty"`
	BackendCredentialID string          `bson:"backendCredentialId,omitempty"`
	CredentialSource    string          `bson:"credentialSource"`
	Credential          string          `bson:"credential,omitempty"`
	IssuedTo            string          `bson:"issuedTo,omitempty"`
}

// MongoStore persists claims in MongoDB.
type MongoStore struct {
	client *mongodb.Client
}

// NewMongo creates the store and its indexes.
func NewMongo(ctx context.Context, client *mongodb.Client) (*MongoStore, error) {
	s := &MongoStore{client: client}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("create claim indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) collection() *mongo.Collection {
	return s.client.Database().Collection(claimsCollection)
}

func (s *MongoStore) migrate(ctx context.Context) error {
	_, err := s.collection().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "holderId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "referenceId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	return err
}

func (s *MongoStore) Create(ctx context.Context, claim *models.Claim) error {
	_, err := s.collection().InsertOne(ctx, toDocument(claim, 1))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (*models.Claim, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.toModel()
}

func (s *MongoStore) find(ctx context.Context, id string) (*claimDocument, error) {
	var doc claimDocument
	if err := s.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find claim: %w", err)
	}
	return &doc, nil
}

// Update retries the read-modify-write when another writer bumps the version
// first, and gives up with sentinel.ErrConflict after maxCASAttempts.
func (s *MongoStore) Update(ctx context.Context, id string, fn UpdateFunc) (*models.Claim, error) {
	for range maxCASAttempts {
		doc, err := s.find(ctx, id)
		if err != nil {
			return nil, err
		}
		claim, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		if err := fn(claim); err != nil {
			return nil, err
		}

		res, err := s.collection().ReplaceOne(ctx,
			bson.M{"_id": id, "version": doc.Version},
			toDocument(claim, doc.Version+1),
		)
		if err != nil {
			return nil, fmt.Errorf("replace claim: %w", err)
		}
		if res.MatchedCount == 1 {
			return claim, nil
		}
	}
	return nil, sentinel.ErrConflict
}

func (s *MongoStore) ListByHolder(ctx context.Context, holderID string, limit int) ([]*models.Claim, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.collection().Find(ctx, bson.M{"holderId": holderID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list claims by holder: %w", err)
	}
	var docs []claimDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}

	claims := make([]*models.Claim, 0, len(docs))
	for i := range docs {
		claim, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, nil
}

type countBucket struct {
	ID    string `bson:"_id"`
	Count int    `bson:"count"`
}

type statsFacet struct {
	Status      []countBucket `bson:"status"`
	Skills      []countBucket `bson:"skills"`
	IssuedToday []struct {
		Count int `bson:"count"`
	} `bson:"issuedToday"`
}

func (s *MongoStore) Stats(ctx context.Context, dayStart time.Time) (*models.Stats, error) {
	group := func(field string) bson.M {
		return bson.M{"$group": bson.M{"_id": field, "count": bson.M{"$sum": 1}}}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$facet", Value: bson.M{
			"status": bson.A{group("$status")},
			"skills": bson.A{
				bson.M{"$match": bson.M{"subject.skill": bson.M{"$exists": true, "$ne": ""}}},
				group("$subject.skill"),
			},
			"issuedToday": bson.A{
				bson.M{"$match": bson.M{"issuedAt": bson.M{"$gte": dayStart}}},
				bson.M{"$count": "count"},
			},
		}}},
	}
	cursor, err := s.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate claim stats: %w", err)
	}
	var facets []statsFacet
	if err := cursor.All(ctx, &facets); err != nil {
		return nil, fmt.Errorf("decode claim stats: %w", err)
	}

	stats := &models.Stats{Skills: make(map[string]int)}
	if len(facets) == 0 {
		return stats, nil
	}
	for _, b := range facets[0].Status {
		stats.Total += b.Count
		switch models.Status(b.ID) {
		case models.StatusPending:
			stats.Pending = b.Count
		case models.StatusIssued:
			stats.Issued = b.Count
		case models.StatusRevoked:
			stats.Revoked = b.Count
		}
	}
	for _, b := range facets[0].Skills {
		stats.Skills[b.ID] = b.Count
	}
	if len(facets[0].IssuedToday) > 0 {
		stats.IssuedToday = facets[0].IssuedToday[0].Count
	}
	return stats, nil
}

func toDocument(c *models.Claim, version int64) *claimDocument {
	return &claimDocument{
		ID:          c.ID,
		Version:     version,
		ReferenceID: c.ReferenceID,
		HolderID:    c.HolderID,
		Subject: subjectDocument{
			FullName:       c.Subject.FullName,
			NationalIDHash: c.Subject.NationalIDHash,
			DateOfBirth:    c.Subject.DateOfBirth,
			Skill:          c.Subject.Skill,
			Graduated:      c.Subject.Graduated,
			Score:          c.Subject.Score,
			Institution:    c.Subject.Institution,
			Degree:         c.Subject.Degree,
			GraduationYear: c.Subject.GraduationYear,
			Grade:          c.Subject.Grade,
		},
		Status:              string(c.Status),
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
		IssuedAt:            c.IssuedAt,
		RevokedAt:           c.RevokedAt,
		RevocationReason:    c.RevocationReason,
		BackendCredentialID: c.BackendCredentialID,
		CredentialSource:    string(c.CredentialSource),
		Credential:          string(c.Credential),
		IssuedTo:            c.IssuedTo,
	}
}

func (d *claimDocument) toModel() (*models.Claim, error) {
	claim := &models.Claim{
		ID:          d.ID,
		ReferenceID: d.ReferenceID,
		HolderID:    d.HolderID,
		Subject: models.Subject{
			FullName:       d.Subject.FullName,
			NationalIDHash: d.Subject.NationalIDHash,
			DateOfBirth:    d.Subject.DateOfBirth,
			Skill:          d.Subject.Skill,
			Graduated:      d.Subject.Graduated,
			Score:          d.Subject.Score,
			Institution:    d.Subject.Institution,
			Degree:         d.Subject.Degree,
			GraduationYear: d.Subject.GraduationYear,
			Grade:          d.Subject.Grade,
		},
		Status:              models.Status(d.Status),
		CreatedAt:           d.CreatedAt.UTC(),
		UpdatedAt:           d.UpdatedAt.UTC(),
		IssuedAt:            d.IssuedAt,
		RevokedAt:           d.RevokedAt,
		RevocationReason:    d.RevocationReason,
		BackendCredentialID: d.BackendCredentialID,
		CredentialSource:    models.CredentialSource(d.CredentialSource),
		IssuedTo:            d.IssuedTo,
	}
	if d.Credential != "" {
		if !json.Valid([]byte(d.Credential)) {
			return nil, fmt.Errorf("claim %s: stored credential is not valid JSON", d.ID)
		}
		claim.Credential = json.RawMessage(d.Credential)
	}
	return claim, nil
}
