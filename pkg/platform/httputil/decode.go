package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "zkcred/pkg/domain-errors"
	"zkcred/pkg/platform/validation"
)

// DecodeJSON decodes a JSON request body into the target type, capped at
// validation.MaxBodySize. On failure it writes an error response and returns
// nil, false.
//
// Usage:
//
//	req, ok := httputil.DecodeJSON[models.CreateClaimRequest](w, r, h.logger, ctx, requestID)
//	if !ok {
//	    return
//	}
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	return decodeJSON[T](w, r, logger, ctx, requestID, false)
}

// DecodeOptionalJSON is DecodeJSON for endpoints whose body may be omitted. An
// empty body, including an empty chunked one, yields the zero value.
func DecodeOptionalJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	return decodeJSON[T](w, r, logger, ctx, requestID, true)
}

func decodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string, allowEmpty bool) (*T, bool) {
	var req T
	body := http.MaxBytesReader(w, r.Body, validation.MaxBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return &req, true
		}
		logger.WarnContext(ctx, "failed to decode request body",
			"error", err,
			"request_id", requestID,
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body too large"))
			return nil, false
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}
	return &req, true
}

// Validatable is implemented by request types that support validation.
type Validatable interface {
	Validate() error
}

// Normalizable is implemented by request types that trim or canonicalize
// their fields before validation.
type Normalizable interface {
	Normalize()
}

// PrepareRequest normalizes, then validates a request.
func PrepareRequest(req any) error {
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := req.(Validatable); ok {
		return v.Validate()
	}
	return nil
}

// DecodeAndPrepare combines JSON decoding with Normalize and Validate. A plain
// error from Validate is reported as a validation failure; domain errors keep
// their code.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	return decodeAndPrepare[T](w, r, logger, ctx, requestID, false)
}

// DecodeOptionalAndPrepare is DecodeAndPrepare on top of DecodeOptionalJSON.
// The zero value of an empty body is still normalized and validated.
func DecodeOptionalAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	return decodeAndPrepare[T](w, r, logger, ctx, requestID, true)
}

func decodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string, allowEmpty bool) (*T, bool) {
	req, ok := decodeJSON[T](w, r, logger, ctx, requestID, allowEmpty)
	if !ok {
		return nil, false
	}

	if err := PrepareRequest(req); err != nil {
		logger.WarnContext(ctx, "invalid request",
			"error", err,
			"request_id", requestID,
		)
		var domainErr *dErrors.Error
		if errors.As(err, &domainErr) {
			WriteError(w, err)
		} else {
			WriteError(w, dErrors.New(dErrors.CodeValidation, err.Error()))
		}
		return nil, false
	}

	return req, true
}
