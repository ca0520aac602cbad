package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/scholarsite/scholarsite/internal/billing"
	"github.com/scholarsite/scholarsite/internal/handler/dto"
	"github.com/scholarsite/scholarsite/internal/middleware"
)

// MaxWebhookBodySize caps Stripe webhook payloads.
const MaxWebhookBodySize = 1 << 20

// SignatureHeader carries the Stripe webhook signature.
const SignatureHeader = "Stripe-Signature"

// WebhookHandler receives billing provider webhooks.
type WebhookHandler struct {
	parser     *billing.Parser
	reconciler *billing.Reconciler
	logger     *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(parser *billing.Parser, reconciler *billing.Reconciler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		parser:     parser,
		reconciler: reconciler,
		logger:     logger.With("handler", "stripe_webhook"),
	}
}

// Stripe handles POST /api/webhooks/stripe.
//
// Stripe redelivers on any non-2xx. Only failures worth retrying answer with
// 409 or 5xx.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, CodeInvalidRequest, "Webhook payload too large")
		return
	}

	ev, err := h.parser.Parse(payload, r.Header.Get(SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrBadSignature):
			h.logger.Warn("webhook signature rejected",
				slog.String("request_id", middleware.GetRequestID(r.Context())),
			)
			writeError(w, http.StatusBadRequest, CodeSignatureInvalid, "Invalid webhook signature")
		default:
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Malformed webhook event")
		}
		return
	}

	res, err := h.reconciler.Reconcile(r.Context(), ev)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidEvent) {
			h.logger.Warn("webhook event rejected",
				slog.String("event_id", ev.ID()),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Webhook event could not be applied")
			return
		}
		handleServiceError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.WebhookResponse{Received: true, Outcome: string(res.Outcome)})
}
