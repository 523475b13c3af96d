package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkcred/internal/claims/models"
	"zkcred/internal/claims/service"
	"zkcred/internal/claims/store"
	"zkcred/internal/issuance"
	"zkcred/internal/platform/privacy"
	"zkcred/internal/wallet/message"
	"zkcred/pkg/platform/httputil"
)

const createBody = `{
	"holder_id": "did:iden3:holder1",
	"full_name": "Grace Hopper",
	"national_id": "8373 6251 9042",
	"date_of_birth": "1985-12-09",
	"skill": "cobol",
	"graduated": true
}`

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	signer, err := issuance.NewMockSigner(issuance.MockConfig{
		IssuerDID:     "did:iden3:issuer",
		SigningKey:    []byte("k"),
		StatusBaseURL: "https://issuer.example",
	})
	require.NoError(t, err)

	svc := service.New(
		store.NewInMemory(),
		issuance.NewIssuer(signer, issuance.WithLogger(logger)),
		privacy.NewNationalIDHasher("pepper"),
		message.NewBuilder(message.Config{BaseURL: "https://issuer.example", IssuerDID: "did:iden3:issuer"}),
		service.WithLogger(logger),
	)
	r := chi.NewRouter()
	New(svc, logger).Register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func create(t *testing.T, h http.Handler) models.CreateResult {
	t.Helper()
	w := do(t, h, http.MethodPost, "/claims", createBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var result models.CreateResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	return result
}

func TestHandleCreate(t *testing.T) {
	h := newRouter(t)

	t.Run("valid request", func(t *testing.T) {
		result := create(t, h)
		assert.NotEmpty(t, result.ClaimID)
		assert.Equal(t, models.SourceMock, result.CredentialSource)
		require.NotNil(t, result.Links)
		assert.Contains(t, result.Links.DeepLink, "iden3comm://?i_m=")
		assert.NotContains(t, result.Links.QRPayload, "837362519042")
	})

	t.Run("validation errors list every field", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/claims", `{"holder_id":"not-a-did","full_name":"","national_id":"123"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		var resp httputil.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "validation_error", resp.Error)
		// holder_id, full_name, national_id, date_of_birth, skill
		assert.Len(t, resp.Fields, 5)
	})

	t.Run("malformed json", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/claims", `{`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleGetAndList(t *testing.T) {
	h := newRouter(t)
	result := create(t, h)

	w := do(t, h, http.MethodGet, "/claims/"+result.ClaimID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "national_id_hash")
	var claim models.ClaimResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &claim))
	assert.Equal(t, "cobol", claim.Skill)

	w = do(t, h, http.MethodGet, "/claims/clm_missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/claims?holder_id=did:iden3:holder1&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Claims []models.ClaimResponse `json:"claims"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Claims, 1)

	w = do(t, h, http.MethodGet, "/claims?holder_id=did:iden3:holder1&limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRevokeAndStats(t *testing.T) {
	h := newRouter(t)
	result := create(t, h)

	w := do(t, h, http.MethodPost, "/claims/"+result.ClaimID+"/revoke", `{"reason":"superseded"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var revoke models.RevokeResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &revoke))
	assert.True(t, revoke.Revoked)

	w = do(t, h, http.MethodPost, "/claims/"+result.ClaimID+"/revoke", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPost, "/claims/clm_missing/revoke", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/claims/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Revoked)
	assert.Equal(t, map[string]int{"cobol": 1}, stats.Skills)
}

func TestHandleRevokeStreamedBodies(t *testing.T) {
	h := newRouter(t)

	send := func(t *testing.T, claimID string, body io.Reader) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/claims/"+claimID+"/revoke", body)
		require.Equal(t, int64(-1), req.ContentLength)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	t.Run("empty chunked body revokes without a reason", func(t *testing.T) {
		w := send(t, create(t, h).ClaimID, io.MultiReader(strings.NewReader("")))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var revoke models.RevokeResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &revoke))
		assert.True(t, revoke.Revoked)
	})

	t.Run("chunked body with reason is decoded", func(t *testing.T) {
		w := send(t, create(t, h).ClaimID, io.MultiReader(strings.NewReader(`{"reason":"superseded"}`)))
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("malformed chunked body is rejected", func(t *testing.T) {
		w := send(t, create(t, h).ClaimID, io.MultiReader(strings.NewReader(`{"reason":`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
