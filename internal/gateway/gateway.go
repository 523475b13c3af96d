// Package gateway serves the wallet-facing protocol endpoints. Everything a
// wallet posts goes through the decode pipeline first, and failures are
// answered with problem-report messages the wallet can display.
package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	claimmodels "zkcred/internal/claims/models"
	verificationmodels "zkcred/internal/verification/models"
	"zkcred/internal/wallet/decode"
	"zkcred/internal/wallet/message"
	dErrors "zkcred/pkg/domain-errors"
	"zkcred/pkg/platform/httputil"
	"zkcred/pkg/platform/middleware/request"
	"zkcred/pkg/platform/validation"
	"zkcred/pkg/requestcontext"
)

// Problem-report codes returned to wallets.
const (
	CodeMissingClaimID   = "missing_claim_id"
	CodeIssuanceFailed   = "issuance_failed"
	CodeUnknownRequest   = "unknown_request"
	CodeAlreadyResolved  = "already_resolved"
	CodeRequestExpired   = "request_expired"
	CodeMalformedMessage = "malformed_message"
	CodeServerError      = "server_error"
)

// ClaimService is the claim side of the wallet protocol.
type ClaimService interface {
	ProcessFetch(ctx context.Context, claimID string, inbound *message.Message) (*message.Message, error)
	RevocationStatus(ctx context.Context, claimID string) (*claimmodels.RevocationStatus, error)
}

// VerificationService is the verification side of the wallet protocol.
type VerificationService interface {
	Resolve(ctx context.Context, requestID string, inbound *message.Message) (*verificationmodels.Result, error)
}

// Metrics counts which decode branch handled each inbound message.
type Metrics interface {
	IncrementWalletDecode(kind string)
}

type Option func(*Handler)

func WithMetrics(m Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithAllowedOrigins restricts CORS to origins. Empty means any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) {
		h.origins = origins
	}
}

type Handler struct {
	claims        ClaimService
	verifications VerificationService
	builder       *message.Builder
	metrics       Metrics
	origins       []string
	logger        *slog.Logger
}

func New(claims ClaimService, verifications VerificationService, builder *message.Builder, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		claims:        claims,
		verifications: verifications,
		builder:       builder,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the wallet routes under /wallet with CORS applied.
func (h *Handler) Register(r chi.Router) {
	r.Route("/wallet", func(r chi.Router) {
		r.Use(request.CORS(h.origins))
		r.Post("/claims/fetch", h.HandleFetch)
		r.Post("/claims/{claimID}/fetch", h.HandleFetch)
		r.Get("/claims/{claimID}/status", h.HandleRevocationStatus)
		r.Post("/verifications/{requestID}/callback", h.HandleCallback)
	})
}

// HandleFetch answers a wallet fetch-request with the issuance message. The
// claim id comes from the path, or from the message when the wallet posts to
// the bare fetch URL.
func (h *Handler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID := strings.TrimSpace(chi.URLParam(r, "claimID"))

	inbound, ok := h.decode(w, r, claimID)
	if !ok {
		return
	}
	if claimID == "" {
		claimID = claimIDFromMessage(inbound)
	}
	if claimID == "" {
		h.writeProblem(w, http.StatusBadRequest, inbound.ThreadID, CodeMissingClaimID, "claim id is required")
		return
	}

	issued, err := h.claims.ProcessFetch(ctx, claimID, inbound)
	if err != nil {
		switch dErrors.CodeOf(err) {
		case dErrors.CodeNotFound:
			h.writeProblem(w, http.StatusNotFound, claimID, CodeIssuanceFailed, "claim not found")
		case dErrors.CodeRevoked:
			h.writeProblem(w, http.StatusGone, claimID, CodeIssuanceFailed, "claim has been revoked")
		default:
			h.logger.ErrorContext(ctx, "wallet fetch failed",
				"claim_id", claimID,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			h.writeProblem(w, http.StatusInternalServerError, claimID, CodeServerError, "credential could not be issued")
		}
		return
	}
	httputil.WriteJSON(w, http.StatusOK, issued)
}

// HandleCallback resolves a verification session with the wallet's
// authorization response and answers with the outcome.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chi.URLParam(r, "requestID")

	inbound, ok := h.decode(w, r, requestID)
	if !ok {
		return
	}
	if inbound.ThreadID != "" && inbound.ThreadID != requestID {
		h.logger.WarnContext(ctx, "wallet callback thread id does not match request",
			"request_id", requestID,
			"thread_id", inbound.ThreadID,
		)
	}

	result, err := h.verifications.Resolve(ctx, requestID, inbound)
	if err != nil {
		switch dErrors.CodeOf(err) {
		case dErrors.CodeNotFound:
			h.writeProblem(w, http.StatusNotFound, requestID, CodeUnknownRequest, "verification request not found")
		case dErrors.CodeConflict:
			h.writeProblem(w, http.StatusConflict, requestID, CodeAlreadyResolved, "verification request already answered")
		case dErrors.CodeGone:
			h.writeProblem(w, http.StatusGone, requestID, CodeRequestExpired, "verification request has expired")
		case dErrors.CodeBadRequest, dErrors.CodeValidation:
			h.writeProblem(w, http.StatusBadRequest, requestID, CodeMalformedMessage, err.Error())
		default:
			h.logger.ErrorContext(ctx, "wallet callback failed",
				"request_id", requestID,
				"error", err,
			)
			h.writeProblem(w, http.StatusInternalServerError, requestID, CodeServerError, "verification could not be recorded")
		}
		return
	}

	ack, err := h.builder.AuthorizationAck(requestID, result.HolderID, message.AckBody{
		Verified:         result.Verified,
		IssuerAuthorized: result.IssuerAuthorized,
		Message:          result.Message,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build authorization ack", "request_id", requestID, "error", err)
		h.writeProblem(w, http.StatusInternalServerError, requestID, CodeServerError, "verification recorded but acknowledgement failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ack)
}

// HandleRevocationStatus answers the credentialStatus pointer embedded in
// issued credentials.
func (h *Handler) HandleRevocationStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.claims.RevocationStatus(r.Context(), chi.URLParam(r, "claimID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// decode reads the body and runs the decode pipeline. Only an unreadable or
// oversized body fails.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, fallbackID string) (*message.Message, bool) {
	ctx := r.Context()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, validation.MaxWalletMessageSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeProblem(w, http.StatusRequestEntityTooLarge, fallbackID, CodeMalformedMessage, "message too large")
			return nil, false
		}
		h.writeProblem(w, http.StatusBadRequest, fallbackID, CodeMalformedMessage, "message could not be read")
		return nil, false
	}

	result := decode.Decode(body, fallbackID)
	if h.metrics != nil {
		h.metrics.IncrementWalletDecode(string(result.Kind))
	}
	if result.Kind == decode.KindSynthesized && len(body) > 0 {
		h.logger.WarnContext(ctx, "wallet message could not be decoded, continuing with defaults",
			"fallback_id", fallbackID,
			"error", result.Cause,
		)
	}
	return result.Message, true
}

func (h *Handler) writeProblem(w http.ResponseWriter, status int, threadID, code, msg string) {
	httputil.WriteJSON(w, status, h.builder.Error(threadID, code, msg))
}

func claimIDFromMessage(m *message.Message) string {
	var body message.FetchBody
	if m.HasBody() && m.DecodeBody(&body) == nil && body.ID != "" {
		return body.ID
	}
	return m.ThreadID
}
