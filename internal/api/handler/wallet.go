package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/enobongmedem-code/darnumber-sub000/internal/service"
)

// WalletHandler handles HTTP requests for wallet balance and history.
type WalletHandler struct {
	wallet *service.WalletService
}

func NewWalletHandler(wallet *service.WalletService) *WalletHandler {
	return &WalletHandler{wallet: wallet}
}

// GetBalance handles GET /v1/wallet/balance.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	user, err := h.wallet.GetBalance(r.Context(), actorID)
	if err != nil {
		if respondDomainError(w, r, err) {
			return
		}
		zap.L().Error("get balance failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "wallet/read-failed", "Failed to get balance")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"user_id":        user.ID,
		"balance_micros": user.BalanceMicros,
		"currency":       user.Currency,
	})
}

// ListTransactions handles GET /v1/wallet/transactions.
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-pagination", err.Error())
		return
	}

	txs, err := h.wallet.ListTransactions(r.Context(), actorID, limit, offset)
	if err != nil {
		zap.L().Error("list transactions failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "wallet/list-failed", "Failed to list transactions")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"items":  txs,
		"limit":  limit,
		"offset": offset,
		"count":  len(txs),
	})
}
