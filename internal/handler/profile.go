package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scholarsite/scholarsite/internal/model"
	"github.com/scholarsite/scholarsite/internal/service"
)

// ProfileHandler serves the owner's profile.
type ProfileHandler struct {
	sites  *service.SiteService
	logger *slog.Logger
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(sites *service.SiteService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		sites:  sites,
		logger: logger.With("handler", "profile"),
	}
}

// Get handles GET /api/profile and GET /api/profiles/{userID}.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.owner(w, r)
	if !ok {
		return
	}

	p, err := h.sites.GetProfile(r.Context(), id)
	if err != nil {
		handleServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Update handles PATCH /api/profile and PATCH /api/profiles/{userID}.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req model.ProfileUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}

	p, err := h.sites.UpdateProfile(r.Context(), id, req)
	if err != nil {
		handleServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// owner returns the profile id addressed by the request. Only the
// authenticated subject's own profile is reachable.
func (h *ProfileHandler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	sub, ok := subjectOrReject(w, r)
	if !ok {
		return "", false
	}
	if id := chi.URLParam(r, "userID"); id != "" && id != sub {
		writeError(w, http.StatusForbidden, CodeForbidden, "Cannot access another user's profile")
		return "", false
	}
	return sub, true
}
