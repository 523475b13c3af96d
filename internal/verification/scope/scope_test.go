package scope

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	limits "zkcred/pkg/platform/validation"
)

const (
	testType    = "SkillCredential"
	testContext = "https://schemas.example/skill-credential.jsonld"
)

var now = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

func newTestBuilder() *Builder {
	return NewBuilder(testType, testContext)
}

func TestBuildAge(t *testing.T) {
	scopes, err := newTestBuilder().Build(TypeAge, Conditions{"minAge": float64(18)}, now)
	require.NoError(t, err)
	require.Len(t, scopes, 1)

	sc := scopes[0]
	assert.Equal(t, 1, sc.ID)
	assert.Equal(t, CircuitSigV2, sc.CircuitID)
	assert.Equal(t, []string{"*"}, sc.Query.AllowedIssuers)
	assert.Equal(t, testType, sc.Query.Type)
	assert.Equal(t, testContext, sc.Query.Context)

	dob, ok := sc.Query.CredentialSubject[FieldDateOfBirth].(map[string]any)
	require.True(t, ok)
	threshold, ok := dob["$lt"].(int64)
	require.True(t, ok)

	want := now.AddDate(-18, 0, 0).Unix()
	assert.InDelta(t, want, threshold, 1)
	assert.Equal(t, []string{FieldDateOfBirth}, sc.Fields())
}

func TestBuildScore(t *testing.T) {
	scopes, err := newTestBuilder().Build(TypeScore, Conditions{"minScore": json.Number("700")}, now)
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.Equal(t, map[string]any{FieldScore: map[string]any{"$gte": int64(700)}}, scopes[0].Query.CredentialSubject)
}

func TestBuildSkillsYieldsOneScopePerSkill(t *testing.T) {
	scopes, err := newTestBuilder().Build(TypeSkill, Conditions{"skills": []any{"go", " rust ", "go", ""}}, now)
	require.NoError(t, err)
	require.Len(t, scopes, 2)

	assert.Equal(t, 1, scopes[0].ID)
	assert.Equal(t, 2, scopes[1].ID)
	assert.Equal(t, map[string]any{"$eq": "go"}, scopes[0].Query.CredentialSubject[FieldSkill])
	assert.Equal(t, map[string]any{"$eq": "rust"}, scopes[1].Query.CredentialSubject[FieldSkill])
}

func TestBuildDegree(t *testing.T) {
	scopes, err := newTestBuilder().Build(TypeDegree, Conditions{"degree": "B.Tech"}, now)
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.Equal(t, map[string]any{"$eq": "B.Tech"}, scopes[0].Query.CredentialSubject[FieldDegree])
}

func TestBuildGraduatedIgnoresParameters(t *testing.T) {
	scopes, err := newTestBuilder().Build(TypeGraduated, Conditions{"anything": 1}, now)
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.Equal(t, map[string]any{"$eq": true}, scopes[0].Query.CredentialSubject[FieldGraduated])
}

func TestBuildCustomPassesThrough(t *testing.T) {
	conds := Conditions{"institution": map[string]any{"$in": []any{"IIT", "NIT"}}}
	scopes, err := newTestBuilder().Build(TypeCustom, conds, now)
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.Equal(t, map[string]any(conds), scopes[0].Query.CredentialSubject)
}

func TestBuildDefaultsToExistenceScope(t *testing.T) {
	tests := []struct {
		name  string
		vt    VerificationType
		conds Conditions
	}{
		{"age without minimum", TypeAge, Conditions{}},
		{"skill with empty list", TypeSkill, Conditions{"skills": []any{}}},
		{"custom without conditions", TypeCustom, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			scopes, err := newTestBuilder().Build(tc.vt, tc.conds, now)
			require.NoError(t, err)
			require.Len(t, scopes, 1)
			assert.Empty(t, scopes[0].Query.CredentialSubject)
			assert.Equal(t, []string{AllowAnyIssuer}, scopes[0].Query.AllowedIssuers)
		})
	}
}

func TestBuildRejectsBadConditions(t *testing.T) {
	tests := []struct {
		name  string
		vt    VerificationType
		conds Conditions
	}{
		{"age not a number", TypeAge, Conditions{"minAge": "eighteen"}},
		{"age fractional", TypeAge, Conditions{"minAge": 18.5}},
		{"age out of range", TypeAge, Conditions{"minAge": float64(200)}},
		{"skills wrong type", TypeSkill, Conditions{"skills": 5}},
		{"skills mixed list", TypeSkill, Conditions{"skills": []any{"go", 3}}},
		{"score beyond int64", TypeScore, Conditions{"minScore": 1e300}},
		{"score negative", TypeScore, Conditions{"minScore": float64(-1)}},
		{"score above scale", TypeScore, Conditions{"minScore": "10001"}},
		{"age beyond int64", TypeAge, Conditions{"minAge": -1e300}},
		{"too many skills", TypeSkill, Conditions{"skills": manyStrings(limits.MaxSkills + 1)}},
		{"too many degrees", TypeDegree, Conditions{"degrees": manyStrings(limits.MaxSkills + 1)}},
		{"skill too long", TypeSkill, Conditions{"skills": []any{strings.Repeat("x", limits.MaxSkillLength+1)}}},
		{"too many custom conditions", TypeCustom, manyConditions(limits.MaxConditions + 1)},
		{"unknown type", VerificationType("height"), nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestBuilder().Build(tc.vt, tc.conds, now)
			require.Error(t, err)
		})
	}
}

func TestBuildAcceptsListsAtTheLimit(t *testing.T) {
	scopes, err := newTestBuilder().Build(TypeSkill, Conditions{"skills": manyStrings(limits.MaxSkills)}, now)
	require.NoError(t, err)
	assert.Len(t, scopes, limits.MaxSkills)

	scopes, err = newTestBuilder().Build(TypeScore, Conditions{"minScore": float64(10000)}, now)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{FieldScore: map[string]any{"$gte": int64(10000)}}, scopes[0].Query.CredentialSubject)
}

func manyStrings(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = fmt.Sprintf("skill-%d", i)
	}
	return out
}

func manyConditions(n int) Conditions {
	out := make(Conditions, n)
	for i := 0; i < n; i++ {
		out[fmt.Sprintf("field%d", i)] = map[string]any{"$eq": i}
	}
	return out
}

func TestParseVerificationType(t *testing.T) {
	vt, err := ParseVerificationType(" Age ")
	require.NoError(t, err)
	assert.Equal(t, TypeAge, vt)

	vt, err = ParseVerificationType("score")
	require.NoError(t, err)
	assert.Equal(t, TypeScore, vt)

	_, err = ParseVerificationType("height")
	require.Error(t, err)
}

func TestScopeJSONShape(t *testing.T) {
	scopes := newTestBuilder().Default()
	raw, err := json.Marshal(scopes[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": 1,
		"circuitId": "credentialAtomicQuerySigV2",
		"query": {
			"allowedIssuers": ["*"],
			"type": "SkillCredential",
			"context": "https://schemas.example/skill-credential.jsonld",
			"credentialSubject": {}
		}
	}`, string(raw))
}
