package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zkcred/internal/verification/models"
	dErrors "zkcred/pkg/domain-errors"
	"zkcred/pkg/platform/httputil"
	"zkcred/pkg/requestcontext"
)

// Service defines the verification operations the handler exposes.
type Service interface {
	Open(ctx context.Context, req *models.OpenRequest) (*models.OpenResult, error)
	OpenChallenge(ctx context.Context, req *models.ChallengeRequest) (*models.OpenResult, error)
	Status(ctx context.Context, requestID string) (*models.Session, error)
}

// Handler serves the verifier-facing session endpoints. Wallet callbacks are
// served by the gateway.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the handler routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/verifications", h.HandleOpen)
	r.Get("/verifications/{requestID}", h.HandleStatus)
	r.Post("/challenges", h.HandleChallenge)
}

// HandleOpen handles POST /verifications.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[models.OpenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.Open(ctx, req)
	if err != nil {
		h.logError(ctx, "open verification failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

// HandleChallenge handles POST /challenges. The body is optional.
func (h *Handler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeOptionalJSON[models.ChallengeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.OpenChallenge(ctx, req)
	if err != nil {
		h.logError(ctx, "open challenge failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

// HandleStatus handles GET /verifications/{requestID}. An expired session is
// a normal 200 answer with status "expired".
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, err := h.service.Status(ctx, chi.URLParam(r, "requestID"))
	if err != nil {
		h.logError(ctx, "verification status failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session.ToResponse())
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	if dErrors.CodeOf(err) != dErrors.CodeInternal {
		return
	}
	h.logger.ErrorContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
}
