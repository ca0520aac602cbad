package handler

import (
	"log/slog"
	"net/http"

	"github.com/scholarsite/scholarsite/internal/handler/dto"
	"github.com/scholarsite/scholarsite/internal/identity"
	"github.com/scholarsite/scholarsite/internal/middleware"
	"github.com/scholarsite/scholarsite/internal/service"
	"github.com/scholarsite/scholarsite/internal/session"
)

// SessionHandler exchanges ID tokens for session cookies.
type SessionHandler struct {
	verifier middleware.TokenVerifier
	sessions *session.Manager
	sites    *service.SiteService
	logger   *slog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(verifier middleware.TokenVerifier, sessions *session.Manager, sites *service.SiteService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		verifier: verifier,
		sessions: sessions,
		sites:    sites,
		logger:   logger.With("handler", "session"),
	}
}

// Create handles POST /api/auth/session.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.SessionRequest
	if err := decodeJSON(r, &req); err != nil || req.IDToken == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "id_token is required")
		return
	}

	claims, err := h.verifier.Verify(r.Context(), req.IDToken)
	if err != nil {
		if identity.ShouldClearSession(err) {
			h.sessions.Clear(w)
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid ID token")
			return
		}
		h.logger.Warn("token verification unavailable",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		writeError(w, http.StatusServiceUnavailable, CodeProviderUnavailable, "Identity provider unavailable")
		return
	}

	p, created, err := h.sites.SignIn(r.Context(), claims)
	if err != nil {
		handleServiceError(h.logger, w, r, err)
		return
	}

	if err := h.sessions.Set(w, req.IDToken); err != nil {
		// Includes session.ErrTokenTooLarge, reported as a server error.
		handleServiceError(h.logger, w, r, err)
		return
	}

	h.logger.Info("session_created",
		slog.String("user_id", p.ID),
		slog.Bool("profile_created", created),
	)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, dto.SessionResponse{Profile: p, Created: created})
}

// Delete handles DELETE /api/auth/session.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}
