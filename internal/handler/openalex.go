package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/scholarsite/scholarsite/internal/handler/dto"
	"github.com/scholarsite/scholarsite/internal/openalex"
)

// maxWorksPage bounds the page query parameter.
const maxWorksPage = 500

// OpenAlexHandler proxies bibliographic lookups for the dashboard.
type OpenAlexHandler struct {
	source openalex.Source
	logger *slog.Logger
}

// NewOpenAlexHandler creates a new OpenAlexHandler.
func NewOpenAlexHandler(source openalex.Source, logger *slog.Logger) *OpenAlexHandler {
	return &OpenAlexHandler{
		source: source,
		logger: logger.With("handler", "openalex"),
	}
}

// Authors handles GET /api/openalex/authors?orcid=|q=.
func (h *OpenAlexHandler) Authors(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	authors, err := h.source.SearchAuthors(r.Context(), openalex.AuthorQuery{
		ORCID: query.Get("orcid"),
		Name:  query.Get("q"),
	})
	if err != nil {
		handleServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.AuthorsResponse{Data: authors})
}

// Works handles GET /api/openalex/works?author=|orcid=.
func (h *OpenAlexHandler) Works(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := 1
	if p := query.Get("page"); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil || parsed < 1 || parsed > maxWorksPage {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "page must be a positive integer")
			return
		}
		page = parsed
	}

	authorID := query.Get("author")
	if authorID == "" {
		orcid := query.Get("orcid")
		if orcid == "" {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "author or orcid is required")
			return
		}
		author, err := h.source.AuthorByORCID(r.Context(), orcid)
		if err != nil {
			handleServiceError(h.logger, w, r, err)
			return
		}
		authorID = author.ID
	}

	works, err := h.source.ListWorks(r.Context(), authorID, page)
	if err != nil {
		handleServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, works)
}
