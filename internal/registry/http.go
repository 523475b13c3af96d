package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"zkcred/internal/platform/tracer"
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPConfig configures an HTTPRegistry.
type HTTPConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient HTTPDoer
	Tracer     tracer.Tracer
}

// HTTPRegistry reads and writes the allow-list through the registry gateway
// that fronts the on-chain contract.
type HTTPRegistry struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
	tracer  tracer.Tracer
}

func NewHTTPRegistry(cfg HTTPConfig) *HTTPRegistry {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	t := cfg.Tracer
	if t == nil {
		t = tracer.NewNoop()
	}
	return &HTTPRegistry{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		tracer:  t,
	}
}

type authorizedResponse struct {
	Authorized bool `json:"authorized"`
}

type listResponse struct {
	Issuers []Issuer `json:"issuers"`
}

type addResponse struct {
	TxHash string `json:"txHash"`
}

func (r *HTTPRegistry) IsAuthorized(ctx context.Context, address string) (bool, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return false, err
	}
	ctx, span := r.tracer.Start(ctx, tracer.SpanRegistryCheck, tracer.String(tracer.AttrIssuerAddress, addr))

	var resp authorizedResponse
	status, err := r.do(ctx, http.MethodGet, "/issuers/"+url.PathEscape(addr)+"/authorized", nil, &resp)
	if status == http.StatusNotFound {
		span.SetAttributes(tracer.Bool(tracer.AttrAuthorized, false))
		span.End(nil)
		return false, nil
	}
	if err != nil {
		span.End(err)
		return false, err
	}
	span.SetAttributes(tracer.Bool(tracer.AttrAuthorized, resp.Authorized))
	span.End(nil)
	return resp.Authorized, nil
}

func (r *HTTPRegistry) Info(ctx context.Context, address string) (*Issuer, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	ctx, span := r.tracer.Start(ctx, tracer.SpanRegistryInfo, tracer.String(tracer.AttrIssuerAddress, addr))

	var issuer Issuer
	status, err := r.do(ctx, http.MethodGet, "/issuers/"+url.PathEscape(addr), nil, &issuer)
	if status == http.StatusNotFound {
		span.End(nil)
		return nil, ErrIssuerNotFound
	}
	span.End(err)
	if err != nil {
		return nil, err
	}
	return &issuer, nil
}

func (r *HTTPRegistry) List(ctx context.Context, activeOnly bool) ([]Issuer, error) {
	ctx, span := r.tracer.Start(ctx, tracer.SpanRegistryList)

	var resp listResponse
	_, err := r.do(ctx, http.MethodGet, "/issuers?active="+strconv.FormatBool(activeOnly), nil, &resp)
	span.End(err)
	if err != nil {
		return nil, err
	}
	return resp.Issuers, nil
}

func (r *HTTPRegistry) Add(ctx context.Context, issuer Issuer) (string, error) {
	addr, err := NormalizeAddress(issuer.Address)
	if err != nil {
		return "", err
	}
	issuer.Address = addr
	ctx, span := r.tracer.Start(ctx, tracer.SpanRegistryAdd, tracer.String(tracer.AttrIssuerAddress, addr))

	body, err := json.Marshal(issuer)
	if err != nil {
		span.End(err)
		return "", fmt.Errorf("marshal issuer: %w", err)
	}
	var resp addResponse
	_, err = r.do(ctx, http.MethodPost, "/issuers", body, &resp)
	if err == nil && resp.TxHash == "" {
		err = fmt.Errorf("registry POST /issuers: missing txHash")
	}
	span.End(err)
	if err != nil {
		return "", err
	}
	return resp.TxHash, nil
}

// do performs one request and decodes a 2xx body into out. The status code is
// returned even when err is non-nil so callers can map 404s.
func (r *HTTPRegistry) do(ctx context.Context, method, path string, body []byte, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.apiKey != "" {
		req.Header.Set("X-API-Key", r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("registry %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("registry %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode registry response: %w", err)
	}
	return resp.StatusCode, nil
}
