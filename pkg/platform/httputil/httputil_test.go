package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "zkcred/pkg/domain-errors"
	"zkcred/pkg/validation"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		code   dErrors.Code
		status int
		body   string
	}{
		{dErrors.CodeNotFound, http.StatusNotFound, "not_found"},
		{dErrors.CodeValidation, http.StatusBadRequest, "validation_error"},
		{dErrors.CodeConflict, http.StatusConflict, "conflict"},
		{dErrors.CodeRevoked, http.StatusGone, "revoked"},
		{dErrors.CodeGone, http.StatusGone, "expired"},
		{dErrors.CodeUnavailable, http.StatusServiceUnavailable, "upstream_unavailable"},
		{dErrors.CodeTimeout, http.StatusGatewayTimeout, "upstream_timeout"},
		{dErrors.CodeInternal, http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, dErrors.New(tt.code, "msg"))
			assert.Equal(t, tt.status, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.body, resp.Error)
			assert.Equal(t, "msg", resp.Description)
		})
	}
}

func TestWriteErrorRendersFieldList(t *testing.T) {
	var c validation.Collector
	c.Add("holder_id", "holder_id is required")
	c.Add("national_id", "national_id must be 12 digits")

	w := httptest.NewRecorder()
	WriteError(w, c.Err())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	require.Len(t, resp.Fields, 2)
	assert.Equal(t, "holder_id", resp.Fields[0].Field)
	assert.Equal(t, "national_id must be 12 digits", resp.Fields[1].Message)
}

func TestWriteErrorHidesUnknownErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "internal_error", resp.Error)
	assert.Empty(t, resp.Description)
}
