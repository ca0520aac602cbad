package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/scholarsite/scholarsite/internal/billing"
	"github.com/scholarsite/scholarsite/internal/identity"
	"github.com/scholarsite/scholarsite/internal/middleware"
	"github.com/scholarsite/scholarsite/internal/model"
	"github.com/scholarsite/scholarsite/internal/openalex"
	"github.com/scholarsite/scholarsite/internal/service"
	"github.com/scholarsite/scholarsite/internal/storage"
)

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *model.ValidationError
		perr *billing.ProviderError
		aerr *openalex.APIError
	)

	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, CodeValidationFailed, verr.Error())

	case errors.Is(err, service.ErrProfileNotFound),
		errors.Is(err, service.ErrSiteNotFound),
		errors.Is(err, service.ErrNoCV),
		errors.Is(err, openalex.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())

	case errors.Is(err, service.ErrSubdomainTaken),
		errors.Is(err, service.ErrDomainTaken),
		errors.Is(err, billing.ErrNoCustomer):
		writeError(w, http.StatusConflict, CodeConflict, err.Error())

	case errors.Is(err, service.ErrPremiumRequired),
		errors.Is(err, billing.ErrForbidden):
		writeError(w, http.StatusForbidden, CodeForbidden, err.Error())

	case errors.Is(err, service.ErrPlatformDomain),
		errors.Is(err, billing.ErrUnknownPlan),
		errors.Is(err, storage.ErrNotPDF):
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())

	case errors.Is(err, storage.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, CodeValidationFailed, err.Error())

	case errors.Is(err, openalex.ErrInvalidQuery),
		errors.Is(err, openalex.ErrInvalidORCID):
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())

	case errors.As(err, &aerr):
		logger.Warn("openalex request failed",
			slog.Int("status", aerr.StatusCode),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		writeError(w, http.StatusBadGateway, CodeProviderError, fmt.Sprintf("bibliographic source returned status %d", aerr.StatusCode))

	case errors.Is(err, service.ErrCVStorageDisabled):
		writeError(w, http.StatusServiceUnavailable, CodeProviderUnavailable, err.Error())

	case errors.Is(err, billing.ErrBusy):
		writeError(w, http.StatusConflict, CodeConflict, "subscription update already in progress")

	case errors.As(err, &perr):
		logger.Warn("billing provider request failed",
			slog.String("op", perr.Op),
			slog.Int("status", perr.StatusCode),
			slog.Bool("retryable", perr.Retryable),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		if perr.Retryable {
			writeError(w, http.StatusServiceUnavailable, CodeProviderUnavailable, "billing provider unavailable")
			return
		}
		writeError(w, http.StatusBadGateway, CodeProviderError, "billing provider rejected the request")

	default:
		logger.Error("internal_error",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "An internal error occurred")
	}
}

// subjectOrReject returns the authenticated subject, writing a 401 when absent.
func subjectOrReject(w http.ResponseWriter, r *http.Request) (string, bool) {
	sub := identity.SubjectFromContext(r.Context())
	if sub == "" {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
		return "", false
	}
	return sub, true
}
