package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"zkcred/internal/registry"
	dErrors "zkcred/pkg/domain-errors"
	"zkcred/pkg/platform/httputil"
	"zkcred/pkg/requestcontext"
	"zkcred/pkg/validation"
)

// Handler exposes the issuer allow-list to operators.
type Handler struct {
	registry registry.Registry
	logger   *slog.Logger
}

func New(reg registry.Registry, logger *slog.Logger) *Handler {
	return &Handler{registry: reg, logger: logger}
}

// Register mounts the handler routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/registry/issuers", h.HandleList)
	r.Post("/registry/issuers", h.HandleAdd)
	r.Get("/registry/issuers/{address}", h.HandleCheck)
}

// AddIssuerRequest is the body of POST /registry/issuers.
type AddIssuerRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
	Name    string `json:"name" validate:"notblank,max=200"`
	Type    string `json:"type" validate:"omitempty,max=64"`
	Active  *bool  `json:"active"`
}

// AddIssuerResponse is the registered issuer plus the registry transaction
// that recorded it.
type AddIssuerResponse struct {
	registry.Issuer
	TxHash string `json:"tx_hash"`
}

func (r *AddIssuerRequest) Normalize() {
	r.Address = strings.TrimSpace(r.Address)
	r.Name = strings.TrimSpace(r.Name)
	r.Type = strings.TrimSpace(r.Type)
}

func (r *AddIssuerRequest) Validate() error {
	return validation.Validate(r)
}

// CheckResponse answers whether an address may issue credentials.
type CheckResponse struct {
	Address    string           `json:"address"`
	Authorized bool             `json:"authorized"`
	Issuer     *registry.Issuer `json:"issuer,omitempty"`
}

// HandleCheck handles GET /registry/issuers/{address}.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	address, err := registry.NormalizeAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "address must be a 0x-prefixed 20-byte address"))
		return
	}

	authorized, err := h.registry.IsAuthorized(ctx, address)
	if err != nil {
		h.logger.ErrorContext(ctx, "registry check failed", "request_id", requestID, "issuer_address", address, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "issuer registry unavailable"))
		return
	}

	resp := CheckResponse{Address: address, Authorized: authorized}
	issuer, err := h.registry.Info(ctx, address)
	switch {
	case err == nil:
		resp.Issuer = issuer
	case !errors.Is(err, registry.ErrIssuerNotFound):
		h.logger.WarnContext(ctx, "registry info lookup failed", "request_id", requestID, "issuer_address", address, "error", err)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleList handles GET /registry/issuers?active=true.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	activeOnly := false
	if raw := r.URL.Query().Get("active"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "active must be true or false"))
			return
		}
		activeOnly = parsed
	}

	issuers, err := h.registry.List(ctx, activeOnly)
	if err != nil {
		h.logger.ErrorContext(ctx, "registry list failed", "request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "issuer registry unavailable"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"issuers": issuers})
}

// HandleAdd handles POST /registry/issuers.
func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[AddIssuerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	issuer := registry.Issuer{
		Address: req.Address,
		Name:    req.Name,
		Type:    req.Type,
		Active:  req.Active == nil || *req.Active,
		AddedAt: requestcontext.Now(ctx),
	}
	txHash, err := h.registry.Add(ctx, issuer)
	if err != nil {
		h.logger.ErrorContext(ctx, "registry add failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "issuer registry unavailable"))
		return
	}
	issuer.Address, _ = registry.NormalizeAddress(issuer.Address)

	h.logger.InfoContext(ctx, "issuer registered", "request_id", requestID, "issuer_address", issuer.Address, "tx_hash", txHash)
	httputil.WriteJSON(w, http.StatusCreated, AddIssuerResponse{Issuer: issuer, TxHash: txHash})
}
