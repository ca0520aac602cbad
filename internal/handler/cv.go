package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/scholarsite/scholarsite/internal/service"
	"github.com/scholarsite/scholarsite/internal/storage"
)

// cvFormField is the multipart field holding the PDF.
const cvFormField = "file"

// multipartOverhead allows for boundaries and part headers around the file.
const multipartOverhead = 64 << 10

// CVHandler uploads and removes the owner's CV.
type CVHandler struct {
	sites  *service.SiteService
	logger *slog.Logger
}

// NewCVHandler creates a new CVHandler.
func NewCVHandler(sites *service.SiteService, logger *slog.Logger) *CVHandler {
	return &CVHandler{
		sites:  sites,
		logger: logger.With("handler", "cv"),
	}
}

// Upload handles POST /api/cv.
func (h *CVHandler) Upload(w http.ResponseWriter, r *http.Request) {
	sub, ok := subjectOrReject(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxCVSize+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Expected a multipart/form-data body")
		return
	}

	part, err := nextFilePart(mr)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handleServiceError(h.logger, w, r, storage.ErrTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Missing "+cvFormField+" field")
		return
	}
	defer part.Close()

	p, err := h.sites.UploadCV(r.Context(), sub, part, part.Header.Get("Content-Type"))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = storage.ErrTooLarge
		}
		handleServiceError(h.logger, w, r, err)
		return
	}

	h.logger.Info("cv_uploaded", slog.String("user_id", sub))
	writeJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /api/cv.
func (h *CVHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sub, ok := subjectOrReject(w, r)
	if !ok {
		return
	}

	if err := h.sites.DeleteCV(r.Context(), sub); err != nil {
		handleServiceError(h.logger, w, r, err)
		return
	}

	h.logger.Info("cv_deleted", slog.String("user_id", sub))
	w.WriteHeader(http.StatusNoContent)
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("file part not found")
			}
			return nil, err
		}
		if part.FormName() == cvFormField {
			return part, nil
		}
		_ = part.Close()
	}
}
