package issuance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc) *HTTPBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPBackend(HTTPConfig{
		BaseURL:        srv.URL,
		APIKey:         "secret",
		Timeout:        time.Second,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
	})
}

func TestHTTPBackendCreateCredential(t *testing.T) {
	var got createCredentialRequest
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/credentials", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"cred-42"}`))
	})

	id, err := backend.CreateCredential(context.Background(), CredentialRequest{
		ClaimID:        "clm_1",
		HolderID:       "did:iden3:holder",
		CredentialType: "SkillCredential",
		Subject:        map[string]any{"skill": "welding"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cred-42", id)
	assert.Equal(t, "SkillCredential", got.Type)
	assert.Equal(t, "did:iden3:holder", got.CredentialSubject["id"])
	assert.Equal(t, "welding", got.CredentialSubject["skill"])
	assert.Equal(t, "clm_1", got.ReferenceID)
}

func TestHTTPBackendFetchCredential(t *testing.T) {
	t.Run("bare credential", func(t *testing.T) {
		backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/credentials/cred-42", r.URL.Path)
			_, _ = w.Write([]byte(`{"id":"cred-42","type":["VerifiableCredential"]}`))
		})
		cred, err := backend.FetchCredential(context.Background(), "cred-42")
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"cred-42","type":["VerifiableCredential"]}`, string(cred))
	})

	t.Run("wrapped credential", func(t *testing.T) {
		backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"credential":{"id":"cred-42"},"status":"ok"}`))
		})
		cred, err := backend.FetchCredential(context.Background(), "cred-42")
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"cred-42"}`, string(cred))
	})

	t.Run("non-object body is bad data", func(t *testing.T) {
		backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`["nope"]`))
		})
		_, err := backend.FetchCredential(context.Background(), "cred-42")
		require.Error(t, err)
		assert.Equal(t, ErrorBadData, CategoryOf(err))
	})
}

func TestHTTPBackendRetries(t *testing.T) {
	t.Run("retries transient failures", func(t *testing.T) {
		var calls atomic.Int32
		backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"id":"cred-1"}`))
		})
		id, err := backend.CreateCredential(context.Background(), CredentialRequest{ClaimID: "clm_1"})
		require.NoError(t, err)
		assert.Equal(t, "cred-1", id)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var calls atomic.Int32
		backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := backend.CreateCredential(context.Background(), CredentialRequest{ClaimID: "clm_1"})
		require.Error(t, err)
		assert.Equal(t, ErrorOutage, CategoryOf(err))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("does not retry rejections", func(t *testing.T) {
		var calls atomic.Int32
		backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		})
		_, err := backend.CreateCredential(context.Background(), CredentialRequest{ClaimID: "clm_1"})
		require.Error(t, err)
		assert.Equal(t, ErrorRejected, CategoryOf(err))
		assert.False(t, IsRetryable(err))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("missing id is bad data", func(t *testing.T) {
		backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		})
		_, err := backend.CreateCredential(context.Background(), CredentialRequest{ClaimID: "clm_1"})
		require.Error(t, err)
		assert.Equal(t, ErrorBadData, CategoryOf(err))
	})
}

func TestHTTPBackendDeadline(t *testing.T) {
	release := make(chan struct{})
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := backend.CreateCredential(ctx, CredentialRequest{ClaimID: "clm_1"})
	require.Error(t, err)
	assert.Equal(t, ErrorTimeout, CategoryOf(err))
}
