package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"zkcred/internal/claims/models"
	dErrors "zkcred/pkg/domain-errors"
	"zkcred/pkg/platform/httputil"
	"zkcred/pkg/requestcontext"
)

// Service defines the claim operations the handler exposes.
type Service interface {
	Create(ctx context.Context, req *models.CreateClaimRequest) (*models.CreateResult, error)
	Revoke(ctx context.Context, claimID, reason string) (bool, error)
	Get(ctx context.Context, claimID string) (*models.Claim, error)
	ListByHolder(ctx context.Context, holderID string, limit int) ([]*models.Claim, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

// Handler serves the issuer-facing claim endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the handler routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/claims", h.HandleCreate)
	r.Get("/claims", h.HandleList)
	r.Get("/claims/stats", h.HandleStats)
	r.Get("/claims/{claimID}", h.HandleGet)
	r.Post("/claims/{claimID}/revoke", h.HandleRevoke)
}

// HandleCreate handles POST /claims.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	// Validation needs the request time, so it runs in the service.
	req, ok := httputil.DecodeJSON[models.CreateClaimRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Create(ctx, req)
	if err != nil {
		h.logError(ctx, "create claim failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

// HandleGet handles GET /claims/{claimID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claim, err := h.service.Get(ctx, chi.URLParam(r, "claimID"))
	if err != nil {
		h.logError(ctx, "get claim failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, claim.ToResponse())
}

// HandleList handles GET /claims?holder_id=&limit=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	claims, err := h.service.ListByHolder(ctx, query.Get("holder_id"), limit)
	if err != nil {
		h.logError(ctx, "list claims failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"claims": lo.Map(claims, func(c *models.Claim, _ int) models.ClaimResponse { return c.ToResponse() }),
	})
}

// HandleStats handles GET /claims/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.service.Stats(ctx)
	if err != nil {
		h.logError(ctx, "claim stats failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleRevoke handles POST /claims/{claimID}/revoke. The body is optional.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	claimID := chi.URLParam(r, "claimID")

	req, ok := httputil.DecodeOptionalAndPrepare[models.RevokeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	revoked, err := h.service.Revoke(ctx, claimID, req.Reason)
	if err != nil {
		h.logError(ctx, "revoke claim failed", err)
		httputil.WriteError(w, err)
		return
	}
	if !revoked {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "claim not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.RevokeResult{ClaimID: claimID, Revoked: true, Reason: req.Reason})
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	if dErrors.CodeOf(err) != dErrors.CodeInternal {
		return
	}
	h.logger.ErrorContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
}
