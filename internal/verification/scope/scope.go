// Package scope turns a verifier's business condition ("age >= 18",
// "score >= 700") into selective-disclosure query scopes for an authorization request.
//
// Every scope carries allowedIssuers ["*"]. The proof layer therefore accepts a
// credential from any issuer, and issuer trust is enforced only by the registry
// cross-check performed when the wallet's response is resolved. Code that drops
// that cross-check drops issuer trust entirely.
package scope

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	limits "zkcred/pkg/platform/validation"
)

// Bounds on numeric thresholds. Score covers every scoring scheme the issuer
// knows about with room to spare; the claim range itself is 300..900.
const (
	maxAge   = 150
	maxScore = 10000
	// maxWholeNumber is the largest float64 that still converts to int64 exactly.
	maxWholeNumber = 1 << 53
)

// VerificationType selects how conditions are mapped to scopes.
type VerificationType string

const (
	TypeDegree    VerificationType = "degree"
	TypeAge       VerificationType = "age"
	TypeScore     VerificationType = "cibil"
	TypeSkill     VerificationType = "skill"
	TypeGraduated VerificationType = "graduated"
	TypeCustom    VerificationType = "custom"
)

// ParseVerificationType accepts the canonical tags plus "score" as an alias for cibil.
func ParseVerificationType(s string) (VerificationType, error) {
	switch v := VerificationType(strings.ToLower(strings.TrimSpace(s))); v {
	case TypeDegree, TypeAge, TypeScore, TypeSkill, TypeGraduated, TypeCustom:
		return v, nil
	case "score":
		return TypeScore, nil
	default:
		return "", fmt.Errorf("unsupported verification type %q", s)
	}
}

// CircuitID names the proving circuit a scope is answered with.
type CircuitID string

const (
	CircuitSigV2 CircuitID = "credentialAtomicQuerySigV2"
	CircuitMTPV2 CircuitID = "credentialAtomicQueryMTPV2"
)

// Credential subject fields the issued credential exposes to queries.
const (
	FieldDateOfBirth = "dateOfBirth"
	FieldScore       = "score"
	FieldSkill       = "skill"
	FieldDegree      = "degree"
	FieldGraduated   = "graduated"
)

// AllowAnyIssuer is the only allowedIssuers value emitted. See the package doc.
const AllowAnyIssuer = "*"

// Scope is one atomic selective-disclosure condition plus its circuit.
type Scope struct {
	ID        int       `json:"id"`
	CircuitID CircuitID `json:"circuitId"`
	Query     Query     `json:"query"`
}

// Query is the credential query the wallet must satisfy.
type Query struct {
	AllowedIssuers    []string       `json:"allowedIssuers"`
	Type              string         `json:"type"`
	Context           string         `json:"context"`
	CredentialSubject map[string]any `json:"credentialSubject"`
}

// Fields returns the credential subject field names the scope discloses a predicate over.
func (s Scope) Fields() []string {
	fields := lo.Keys(s.Query.CredentialSubject)
	sort.Strings(fields)
	return fields
}

// Conditions are the verifier's business parameters, decoded from JSON.
type Conditions map[string]any

// Builder maps verification requests onto scopes for one credential schema.
type Builder struct {
	credentialType string
	context        string
	circuit        CircuitID
}

// NewBuilder creates a Builder for the credential type and JSON-LD context the
// issuer publishes.
func NewBuilder(credentialType, context string) *Builder {
	return &Builder{credentialType: credentialType, context: context, circuit: CircuitSigV2}
}

// Build produces one scope per atomic condition. When nothing produces a scope a
// single existence scope is returned so a request is never empty.
func (b *Builder) Build(vt VerificationType, conds Conditions, now time.Time) ([]Scope, error) {
	subjects, err := b.subjects(vt, conds, now)
	if err != nil {
		return nil, err
	}
	if len(subjects) == 0 {
		subjects = []map[string]any{{}}
	}

	scopes := make([]Scope, 0, len(subjects))
	for i, subject := range subjects {
		scopes = append(scopes, Scope{
			ID:        i + 1,
			CircuitID: b.circuit,
			Query: Query{
				AllowedIssuers:    []string{AllowAnyIssuer},
				Type:              b.credentialType,
				Context:           b.context,
				CredentialSubject: subject,
			},
		})
	}
	return scopes, nil
}

// Default returns the existence-only scope used for authorization challenges.
func (b *Builder) Default() []Scope {
	scopes, _ := b.Build(TypeCustom, nil, time.Time{})
	return scopes
}

func (b *Builder) subjects(vt VerificationType, conds Conditions, now time.Time) ([]map[string]any, error) {
	switch vt {
	case TypeAge:
		minAge, ok, err := number(conds, "minAge", "min_age", "age")
		if err != nil || !ok {
			return nil, err
		}
		if minAge < 0 || minAge > maxAge {
			return nil, fmt.Errorf("minAge must be between 0 and %d", maxAge)
		}
		threshold := now.AddDate(-int(minAge), 0, 0).Unix()
		return []map[string]any{{FieldDateOfBirth: map[string]any{"$lt": threshold}}}, nil

	case TypeScore:
		minScore, ok, err := number(conds, "minScore", "min_score", "score")
		if err != nil || !ok {
			return nil, err
		}
		if minScore < 0 || minScore > maxScore {
			return nil, fmt.Errorf("minScore must be between 0 and %d", maxScore)
		}
		return []map[string]any{{FieldScore: map[string]any{"$gte": minScore}}}, nil

	case TypeSkill:
		skills, err := stringList(conds, "skills", "skill")
		if err != nil {
			return nil, err
		}
		if err := checkList("skills", skills); err != nil {
			return nil, err
		}
		return lo.Map(skills, func(skill string, _ int) map[string]any {
			return map[string]any{FieldSkill: map[string]any{"$eq": skill}}
		}), nil

	case TypeDegree:
		degrees, err := stringList(conds, "degree", "degrees")
		if err != nil {
			return nil, err
		}
		if err := checkList("degrees", degrees); err != nil {
			return nil, err
		}
		return lo.Map(degrees, func(degree string, _ int) map[string]any {
			return map[string]any{FieldDegree: map[string]any{"$eq": degree}}
		}), nil

	case TypeGraduated:
		return []map[string]any{{FieldGraduated: map[string]any{"$eq": true}}}, nil

	case TypeCustom:
		if len(conds) == 0 {
			return nil, nil
		}
		if err := limits.CheckSliceCount("conditions", len(conds), limits.MaxConditions); err != nil {
			return nil, err
		}
		// Passed through verbatim; only the mapping shape is checked.
		subject := make(map[string]any, len(conds))
		for k, v := range conds {
			subject[k] = v
		}
		return []map[string]any{subject}, nil

	default:
		return nil, fmt.Errorf("unsupported verification type %q", vt)
	}
}

// number reads the first present key as a whole number. JSON numbers arrive as
// float64 and json.Number depending on the decoder, and strings are tolerated.
func number(conds Conditions, keys ...string) (int64, bool, error) {
	for _, key := range keys {
		raw, ok := conds[key]
		if !ok || raw == nil {
			continue
		}
		var f float64
		switch v := raw.(type) {
		case float64:
			f = v
		case int:
			f = float64(v)
		case int64:
			f = float64(v)
		case json.Number:
			parsed, err := v.Float64()
			if err != nil {
				return 0, false, fmt.Errorf("%s must be a number", key)
			}
			f = parsed
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return 0, false, fmt.Errorf("%s must be a number", key)
			}
			f = parsed
		default:
			return 0, false, fmt.Errorf("%s must be a number", key)
		}
		if math.IsNaN(f) || math.Abs(f) > maxWholeNumber {
			return 0, false, fmt.Errorf("%s is out of range", key)
		}
		if f != math.Trunc(f) {
			return 0, false, fmt.Errorf("%s must be a whole number", key)
		}
		return int64(f), true, nil
	}
	return 0, false, nil
}

// checkList bounds one-scope-per-value lists so a request cannot fan out into
// an arbitrary number of scopes.
func checkList(field string, values []string) error {
	if err := limits.CheckSliceCount(field, len(values), limits.MaxSkills); err != nil {
		return err
	}
	return limits.CheckEachStringLength(field, values, limits.MaxSkillLength)
}

// stringList reads the first present key as a list of non-blank strings; a single
// string is treated as a one-element list.
func stringList(conds Conditions, keys ...string) ([]string, error) {
	for _, key := range keys {
		raw, ok := conds[key]
		if !ok || raw == nil {
			continue
		}
		var values []string
		switch v := raw.(type) {
		case string:
			values = []string{v}
		case []string:
			values = v
		case []any:
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("%s must contain only strings", key)
				}
				values = append(values, s)
			}
		default:
			return nil, fmt.Errorf("%s must be a string or list of strings", key)
		}
		values = lo.Uniq(lo.Compact(lo.Map(values, func(s string, _ int) string {
			return strings.TrimSpace(s)
		})))
		return values, nil
	}
	return nil, nil
}
