package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGateway(t *testing.T, mux *http.ServeMux) *HTTPRegistry {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewHTTPRegistry(HTTPConfig{BaseURL: srv.URL, APIKey: "k"})
}

func TestHTTPRegistryIsAuthorized(t *testing.T) {
	lower := "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
	mux := http.NewServeMux()
	mux.HandleFunc("GET /issuers/{address}/authorized", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		switch r.PathValue("address") {
		case lower:
			_, _ = w.Write([]byte(`{"authorized":true}`))
		case "0x0000000000000000000000000000000000000500":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	reg := newGateway(t, mux)
	ctx := context.Background()

	ok, err := reg.IsAuthorized(ctx, addrA)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.IsAuthorized(ctx, addrB)
	require.NoError(t, err)
	assert.False(t, ok, "unknown issuers are unauthorized, not an error")

	_, err = reg.IsAuthorized(ctx, "0x0000000000000000000000000000000000000500")
	assert.Error(t, err)

	_, err = reg.IsAuthorized(ctx, "nope")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestHTTPRegistryInfoListAdd(t *testing.T) {
	var added Issuer
	mux := http.NewServeMux()
	mux.HandleFunc("GET /issuers/{address}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("address") != "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"address":"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed","name":"University","active":true}`))
	})
	mux.HandleFunc("GET /issuers", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		_, _ = w.Write([]byte(`{"issuers":[{"address":"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed","name":"University","active":true}]}`))
	})
	mux.HandleFunc("POST /issuers", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&added))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"txHash":"0xabc123"}`))
	})
	reg := newGateway(t, mux)
	ctx := context.Background()

	info, err := reg.Info(ctx, addrA)
	require.NoError(t, err)
	assert.Equal(t, "University", info.Name)

	_, err = reg.Info(ctx, addrB)
	assert.ErrorIs(t, err, ErrIssuerNotFound)

	list, err := reg.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	txHash, err := reg.Add(ctx, Issuer{Address: addrB, Name: "College", Active: true})
	require.NoError(t, err)
	assert.Equal(t, "0xabc123", txHash)
	assert.Equal(t, "0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359", added.Address)
	assert.Equal(t, "College", added.Name)
}

func TestHTTPRegistryAddRequiresTxHash(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /issuers", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})
	reg := newGateway(t, mux)

	txHash, err := reg.Add(context.Background(), Issuer{Address: addrA, Name: "University"})
	assert.Error(t, err)
	assert.Empty(t, txHash)
}
