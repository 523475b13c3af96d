package issuance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"

	"zkcred/internal/platform/tracer"
)

const (
	opCreate = "create"
	opFetch  = "fetch"

	maxResponseBytes = 1 << 20
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPConfig configures an HTTPBackend.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds a single HTTP attempt. The caller's context bounds the
	// whole retried operation.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after the first for
	// retryable failures.
	MaxRetries uint64
	// InitialBackoff is the first retry delay. Default 100ms.
	InitialBackoff time.Duration
	HTTPClient     HTTPDoer
	Tracer         tracer.Tracer
}

// HTTPBackend talks to the external issuance service over HTTP:
// POST {base}/v1/credentials and GET {base}/v1/credentials/{id}.
type HTTPBackend struct {
	baseURL        string
	apiKey         string
	client         HTTPDoer
	maxRetries     uint64
	initialBackoff time.Duration
	tracer         tracer.Tracer
}

// NewHTTPBackend creates an HTTPBackend.
func NewHTTPBackend(cfg HTTPConfig) *HTTPBackend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	t := cfg.Tracer
	if t == nil {
		t = tracer.NewNoop()
	}
	return &HTTPBackend{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		client:         client,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		tracer:         t,
	}
}

type createCredentialRequest struct {
	Context           []string       `json:"@context,omitempty"`
	Type              string         `json:"type"`
	CredentialSubject map[string]any `json:"credentialSubject"`
	Expiration        *int64         `json:"expiration,omitempty"`
	ReferenceID       string         `json:"referenceId,omitempty"`
}

// CreateCredential asks the backend to issue a credential and returns its id.
func (b *HTTPBackend) CreateCredential(ctx context.Context, req CredentialRequest) (string, error) {
	ctx, span := b.tracer.Start(ctx, tracer.SpanIssuanceCreate, tracer.String(tracer.AttrClaimID, req.ClaimID))

	subject := make(map[string]any, len(req.Subject)+1)
	for k, v := range req.Subject {
		subject[k] = v
	}
	subject["id"] = req.HolderID

	payload := createCredentialRequest{
		Type:              req.CredentialType,
		CredentialSubject: subject,
		ReferenceID:       req.ClaimID,
	}
	if req.Context != "" {
		payload.Context = []string{req.Context}
	}
	if req.Expiration != nil {
		exp := req.Expiration.Unix()
		payload.Expiration = &exp
	}
	body, err := json.Marshal(payload)
	if err != nil {
		err = NewBackendError(ErrorBadData, opCreate, "failed to marshal request", err)
		span.End(err)
		return "", err
	}

	var id string
	err = b.retry(ctx, span, func() error {
		respBody, err := b.do(ctx, opCreate, http.MethodPost, b.baseURL+"/v1/credentials", body)
		if err != nil {
			return err
		}
		id = gjson.GetBytes(respBody, "id").String()
		if id == "" {
			return NewBackendError(ErrorBadData, opCreate, "response has no credential id", nil)
		}
		return nil
	})
	span.End(err)
	if err != nil {
		return "", err
	}
	return id, nil
}

// FetchCredential returns the credential document for id. The backend may
// answer with the credential itself or wrapped as {"credential": {...}}.
func (b *HTTPBackend) FetchCredential(ctx context.Context, credentialID string) (json.RawMessage, error) {
	ctx, span := b.tracer.Start(ctx, tracer.SpanIssuanceFetch)

	var credential json.RawMessage
	endpoint := fmt.Sprintf("%s/v1/credentials/%s", b.baseURL, url.PathEscape(credentialID))
	err := b.retry(ctx, span, func() error {
		respBody, err := b.do(ctx, opFetch, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		credential, err = extractCredential(respBody)
		return err
	})
	span.End(err)
	if err != nil {
		return nil, err
	}
	return credential, nil
}

func extractCredential(body []byte) (json.RawMessage, error) {
	if !gjson.ValidBytes(body) {
		return nil, NewBackendError(ErrorBadData, opFetch, "response is not valid JSON", nil)
	}
	if wrapped := gjson.GetBytes(body, "credential"); wrapped.IsObject() {
		return json.RawMessage(wrapped.Raw), nil
	}
	if gjson.ParseBytes(body).IsObject() {
		return json.RawMessage(bytes.Clone(body)), nil
	}
	return nil, NewBackendError(ErrorBadData, opFetch, "response is not a credential object", nil)
}

// retry runs op with exponential backoff. Non-retryable failures stop
// immediately.
func (b *HTTPBackend) retry(ctx context.Context, span tracer.Span, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.initialBackoff
	policy.MaxElapsedTime = 0

	attempt := int64(0)
	return backoff.Retry(func() error {
		attempt++
		span.SetAttributes(tracer.Int64(tracer.AttrAttempt, attempt))
		err := op()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(NewBackendError(ErrorTimeout, "retry", "deadline exceeded", ctx.Err()))
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, b.maxRetries), ctx))
}

func (b *HTTPBackend) do(ctx context.Context, op, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, NewBackendError(ErrorInternal, op, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewBackendError(ErrorTimeout, op, "request timeout", err)
		}
		return nil, NewBackendError(ErrorOutage, op, "failed to execute request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, NewBackendError(ErrorOutage, op, "failed to read response", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, NewBackendError(ErrorNotFound, op, "credential not found", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewBackendError(ErrorRateLimited, op, "rate limit exceeded", nil)
	case resp.StatusCode >= 500:
		return nil, NewBackendError(ErrorOutage, op, fmt.Sprintf("backend unavailable: %d", resp.StatusCode), nil)
	default:
		return nil, NewBackendError(ErrorRejected, op, fmt.Sprintf("backend rejected request: %d", resp.StatusCode), nil)
	}
}
