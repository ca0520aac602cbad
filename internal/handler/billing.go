package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scholarsite/scholarsite/internal/billing"
	"github.com/scholarsite/scholarsite/internal/handler/dto"
	"github.com/scholarsite/scholarsite/internal/service"
)

// BillingHandler starts checkouts, verifies them and opens the billing portal.
type BillingHandler struct {
	reconciler *billing.Reconciler
	sites      *service.SiteService
	logger     *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(reconciler *billing.Reconciler, sites *service.SiteService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		reconciler: reconciler,
		sites:      sites,
		logger:     logger.With("handler", "billing"),
	}
}

// Checkout handles POST /api/billing/checkout.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	sub, ok := subjectOrReject(w, r)
	if !ok {
		return
	}

	var req dto.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}

	p, err := h.sites.GetProfile(r.Context(), sub)
	if err != nil {
		handleServiceError(h.logger, w, r, err)
		return
	}

	cs, err := h.reconciler.CreateCheckout(r.Context(), p, req.Plan)
	if err != nil {
		handleServiceError(h.logger, w, r, err)
		return
	}

	h.logger.Info("checkout_created",
		slog.String("user_id", sub),
		slog.String("plan", string(req.Plan)),
		slog.String("session_id", cs.ID),
	)
	writeJSON(w, http.StatusOK, dto.CheckoutResponse{URL: cs.URL, SessionID: cs.ID})
}

// VerifyCheckout handles GET /api/billing/checkout/{sessionID}.
func (h *BillingHandler) VerifyCheckout(w http.ResponseWriter, r *http.Request) {
	sub, ok := subjectOrReject(w, r)
	if !ok {
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Session ID is required")
		return
	}

	res, err := h.reconciler.VerifyCheckout(r.Context(), sessionID, sub)
	if err != nil {
		handleServiceError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.CheckoutStatusResponse{
		Status:       string(res.Outcome),
		Subscription: res.Subscription,
	})
}

// Portal handles POST /api/billing/portal.
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	sub, ok := subjectOrReject(w, r)
	if !ok {
		return
	}

	p, err := h.sites.GetProfile(r.Context(), sub)
	if err != nil {
		handleServiceError(h.logger, w, r, err)
		return
	}

	url, err := h.reconciler.CreatePortal(r.Context(), p)
	if err != nil {
		handleServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.PortalResponse{URL: url})
}
