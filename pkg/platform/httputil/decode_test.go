package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "zkcred/pkg/domain-errors"
	"zkcred/pkg/platform/validation"
)

type plainRequest struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type preparedRequest struct {
	Name       string `json:"name"`
	normalized bool
}

func (r *preparedRequest) Normalize() {
	r.normalized = true
	r.Name = strings.TrimSpace(r.Name)
}

func (r *preparedRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

type domainErrorRequest struct {
	ID string `json:"id"`
}

func (r *domainErrorRequest) Validate() error {
	if r.ID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "id is required")
	}
	return nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestDecodeJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"test","value":42}`))
		w := httptest.NewRecorder()

		result, ok := DecodeJSON[plainRequest](w, req, discard, ctx, "req-1")
		require.True(t, ok)
		assert.Equal(t, "test", result.Name)
		assert.Equal(t, 42, result.Value)
	})

	t.Run("malformed and empty bodies are bad requests", func(t *testing.T) {
		for _, body := range []string{`{invalid json}`, ``} {
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
			w := httptest.NewRecorder()

			result, ok := DecodeJSON[plainRequest](w, req, discard, ctx, "req-1")
			assert.False(t, ok)
			assert.Nil(t, result)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "bad_request", decodeError(t, w).Error)
		}
	})

	t.Run("oversized body is rejected", func(t *testing.T) {
		big := `{"name":"` + strings.Repeat("a", validation.MaxBodySize) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(big))
		w := httptest.NewRecorder()

		_, ok := DecodeJSON[plainRequest](w, req, discard, ctx, "req-1")
		assert.False(t, ok)
		assert.Equal(t, "request body too large", decodeError(t, w).Description)
	})
}

func TestDecodeAndPrepare(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes before validating", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"  test  "}`))
		w := httptest.NewRecorder()

		result, ok := DecodeAndPrepare[preparedRequest](w, req, discard, ctx, "req-1")
		require.True(t, ok)
		assert.True(t, result.normalized)
		assert.Equal(t, "test", result.Name)
	})

	t.Run("plain validation error maps to validation_error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"   "}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[preparedRequest](w, req, discard, ctx, "req-1")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, "validation_error", resp.Error)
		assert.Equal(t, "name is required", resp.Description)
	})

	t.Run("domain error keeps its code", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"id":""}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[domainErrorRequest](w, req, discard, ctx, "req-1")
		assert.False(t, ok)
		assert.Equal(t, "bad_request", decodeError(t, w).Error)
	})
}

// chunked hides the body length so the request looks like a streamed upload.
type chunked struct{ io.Reader }

func TestDecodeOptionalAndPrepare(t *testing.T) {
	ctx := context.Background()

	t.Run("empty bodies yield the zero value", func(t *testing.T) {
		for name, body := range map[string]io.Reader{
			"no content":    bytes.NewBufferString(""),
			"empty chunked": chunked{strings.NewReader("")},
		} {
			req := httptest.NewRequest(http.MethodPost, "/", body)
			w := httptest.NewRecorder()

			result, ok := DecodeOptionalAndPrepare[plainRequest](w, req, discard, ctx, "req-1")
			require.True(t, ok, name)
			assert.Equal(t, plainRequest{}, *result, name)
		}
	})

	t.Run("chunked body is decoded", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", chunked{strings.NewReader(`{"name":"test"}`)})
		require.Equal(t, int64(-1), req.ContentLength)
		w := httptest.NewRecorder()

		result, ok := DecodeOptionalAndPrepare[plainRequest](w, req, discard, ctx, "req-1")
		require.True(t, ok)
		assert.Equal(t, "test", result.Name)
	})

	t.Run("zero value is still validated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", chunked{strings.NewReader("")})
		w := httptest.NewRecorder()

		_, ok := DecodeOptionalAndPrepare[preparedRequest](w, req, discard, ctx, "req-1")
		assert.False(t, ok)
		assert.Equal(t, "validation_error", decodeError(t, w).Error)
	})

	t.Run("malformed body is still rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", chunked{strings.NewReader(`{"name":`)})
		w := httptest.NewRecorder()

		_, ok := DecodeOptionalAndPrepare[plainRequest](w, req, discard, ctx, "req-1")
		assert.False(t, ok)
		assert.Equal(t, "bad_request", decodeError(t, w).Error)
	})
}
