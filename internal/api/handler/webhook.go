package handler

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/enobongmedem-code/darnumber-sub000/internal/service"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// WebhookHandler receives deposit confirmations from the payment gateway.
type WebhookHandler struct {
	webhooks *service.WebhookService
}

func NewWebhookHandler(webhooks *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// HandleDeposit handles POST /v1/webhooks/deposit. The signature covers the
// raw body, so it is read before any parsing.
func (h *WebhookHandler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	resp, err := h.webhooks.HandleDepositWebhook(r.Context(), body, r.Header.Get("X-Signature"))
	if err != nil {
		if respondDomainError(w, r, err) {
			return
		}
		zap.L().Warn("deposit webhook rejected", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "webhook/invalid-payload", err.Error())
		return
	}

	RespondJSON(w, http.StatusOK, resp)
}
