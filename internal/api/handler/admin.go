package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/enobongmedem-code/darnumber-sub000/internal/models"
	"github.com/enobongmedem-code/darnumber-sub000/internal/service"
)

// AdminHandler handles admin-only pricing, provider, and wallet operations.
type AdminHandler struct {
	admin  *service.AdminService
	wallet *service.WalletService
}

func NewAdminHandler(admin *service.AdminService, wallet *service.WalletService) *AdminHandler {
	return &AdminHandler{admin: admin, wallet: wallet}
}

// PricingRuleRequest is the body for creating or updating a pricing rule.
type PricingRuleRequest struct {
	ServiceCode *string `json:"service_code,omitempty"`
	Country     *string `json:"country,omitempty"`
	ProfitType  string  `json:"profit_type"`
	ProfitValue float64 `json:"profit_value"`
	Priority    int32   `json:"priority"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

func (req *PricingRuleRequest) toModel() *models.PricingRule {
	rule := &models.PricingRule{
		ServiceCode: normalizeWildcard(req.ServiceCode, strings.ToLower),
		Country:     normalizeWildcard(req.Country, strings.ToUpper),
		ProfitType:  strings.ToUpper(strings.TrimSpace(req.ProfitType)),
		ProfitValue: req.ProfitValue,
		Priority:    req.Priority,
		IsActive:    true,
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	return rule
}

// normalizeWildcard treats empty strings the same as absent: both mean
// "match any".
func normalizeWildcard(v *string, canon func(string) string) *string {
	if v == nil {
		return nil
	}
	trimmed := canon(strings.TrimSpace(*v))
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// ListPricingRules handles GET /v1/admin/pricing-rules.
func (h *AdminHandler) ListPricingRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.admin.ListPricingRules(r.Context())
	if err != nil {
		zap.L().Error("list pricing rules failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "pricing/list-failed", "Failed to list pricing rules")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": rules, "count": len(rules)})
}

// CreatePricingRule handles POST /v1/admin/pricing-rules.
func (h *AdminHandler) CreatePricingRule(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req PricingRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	rule := req.toModel()
	if err := h.admin.CreatePricingRule(r.Context(), actorID, rule); err != nil {
		if status, pt, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pt, msg)
			return
		}
		RespondError(w, r, http.StatusBadRequest, "pricing/invalid-rule", err.Error())
		return
	}
	RespondJSON(w, http.StatusCreated, rule)
}

// UpdatePricingRule handles PUT /v1/admin/pricing-rules/{id}.
func (h *AdminHandler) UpdatePricingRule(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	ruleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-rule-id", "Invalid rule ID")
		return
	}

	var req PricingRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	rule := req.toModel()
	rule.ID = ruleID
	if err := h.admin.UpdatePricingRule(r.Context(), actorID, rule); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			RespondError(w, r, http.StatusNotFound, "pricing/rule-not-found", "Pricing rule not found")
			return
		}
		RespondError(w, r, http.StatusBadRequest, "pricing/invalid-rule", err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, rule)
}

// SetPricingRuleActive handles POST /v1/admin/pricing-rules/{id}/active.
func (h *AdminHandler) SetPricingRuleActive(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	ruleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-rule-id", "Invalid rule ID")
		return
	}

	var req struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "active is required")
		return
	}

	if err := h.admin.SetPricingRuleActive(r.Context(), actorID, ruleID, *req.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			RespondError(w, r, http.StatusNotFound, "pricing/rule-not-found", "Pricing rule not found")
			return
		}
		zap.L().Error("set pricing rule active failed", zap.Error(err), zap.String("rule_id", ruleID.String()))
		RespondError(w, r, http.StatusInternalServerError, "pricing/update-failed", "Failed to update pricing rule")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"id": ruleID, "is_active": *req.Active})
}

// DeletePricingRule handles DELETE /v1/admin/pricing-rules/{id}.
func (h *AdminHandler) DeletePricingRule(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	ruleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-rule-id", "Invalid rule ID")
		return
	}

	if err := h.admin.DeletePricingRule(r.Context(), actorID, ruleID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			RespondError(w, r, http.StatusNotFound, "pricing/rule-not-found", "Pricing rule not found")
			return
		}
		zap.L().Error("delete pricing rule failed", zap.Error(err), zap.String("rule_id", ruleID.String()))
		RespondError(w, r, http.StatusInternalServerError, "pricing/delete-failed", "Failed to delete pricing rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListProviders handles GET /v1/admin/providers.
func (h *AdminHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.admin.ListProviders(r.Context())
	if err != nil {
		zap.L().Error("list providers failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "provider/list-failed", "Failed to list providers")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": providers, "count": len(providers)})
}

// ProviderRequest is the body for creating or updating a provider record.
type ProviderRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	APIURL      string `json:"api_url"`
	IsActive    *bool  `json:"is_active,omitempty"`
	Priority    int32  `json:"priority"`
	RateLimit   int32  `json:"rate_limit"`
}

// CreateProvider handles POST /v1/admin/providers.
func (h *AdminHandler) CreateProvider(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req ProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	p := &models.Provider{
		Name:        strings.TrimSpace(req.Name),
		DisplayName: strings.TrimSpace(req.DisplayName),
		APIURL:      strings.TrimSpace(req.APIURL),
		IsActive:    true,
		Priority:    req.Priority,
		RateLimit:   req.RateLimit,
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if err := h.admin.CreateProvider(r.Context(), actorID, p); err != nil {
		if status, pt, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pt, msg)
			return
		}
		RespondError(w, r, http.StatusBadRequest, "provider/invalid", err.Error())
		return
	}
	RespondJSON(w, http.StatusCreated, p)
}

// UpdateProvider handles PUT /v1/admin/providers/{id}.
func (h *AdminHandler) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	providerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-provider-id", "Invalid provider ID")
		return
	}

	var req ProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	p := &models.Provider{
		ID:          providerID,
		Name:        strings.TrimSpace(req.Name),
		DisplayName: strings.TrimSpace(req.DisplayName),
		APIURL:      strings.TrimSpace(req.APIURL),
		IsActive:    true,
		Priority:    req.Priority,
		RateLimit:   req.RateLimit,
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if err := h.admin.UpdateProvider(r.Context(), actorID, p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			RespondError(w, r, http.StatusNotFound, "provider/not-found", "Provider not found")
			return
		}
		RespondError(w, r, http.StatusBadRequest, "provider/invalid", err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

// OverrideRefund handles POST /v1/admin/orders/{id}/refund. Refunding an
// already-terminal order is a no-op, so retries are safe.
func (h *AdminHandler) OverrideRefund(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-order-id", "Invalid order ID")
		return
	}

	if err := h.admin.OverrideRefund(r.Context(), actorID, orderID); err != nil {
		if respondDomainError(w, r, err) {
			return
		}
		zap.L().Error("override refund failed", zap.Error(err), zap.String("order_id", orderID.String()))
		RespondError(w, r, http.StatusInternalServerError, "order/refund-failed", "Failed to refund order")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "refunded"})
}

// AdjustBalanceRequest is the body for POST /v1/admin/users/{id}/adjust.
type AdjustBalanceRequest struct {
	DeltaMicros int64  `json:"delta_micros"`
	Description string `json:"description"`
}

// AdjustBalance handles POST /v1/admin/users/{id}/adjust.
func (h *AdminHandler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-user-id", "Invalid user ID")
		return
	}

	var req AdjustBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if req.DeltaMicros == 0 {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-delta", "delta_micros must be non-zero")
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-description", "description is required")
		return
	}

	txn, err := h.wallet.AdminAdjust(r.Context(), actorID, userID, req.DeltaMicros, req.Description)
	if err != nil {
		if respondDomainError(w, r, err) {
			return
		}
		zap.L().Error("balance adjustment failed", zap.Error(err), zap.String("user_id", userID.String()))
		RespondError(w, r, http.StatusInternalServerError, "wallet/adjust-failed", "Failed to adjust balance")
		return
	}
	RespondJSON(w, http.StatusOK, txn)
}
