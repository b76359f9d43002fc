package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enobongmedem-code/darnumber-sub000/internal/service"
)

// OrderHandler handles HTTP requests for verification orders.
type OrderHandler struct {
	orders *service.OrderService
}

func NewOrderHandler(orders *service.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// CreateOrderRequest is the body for POST /v1/orders.
type CreateOrderRequest struct {
	ServiceCode       string `json:"service_code"`
	Country           string `json:"country"`
	PreferredProvider string `json:"preferred_provider,omitempty"`
}

// CreateOrder handles POST /v1/orders. The final price is debited up front;
// a vendor failure refunds it before the error reaches the caller.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	req.ServiceCode = strings.TrimSpace(strings.ToLower(req.ServiceCode))
	req.Country = strings.TrimSpace(strings.ToUpper(req.Country))
	req.PreferredProvider = strings.TrimSpace(req.PreferredProvider)

	if req.ServiceCode == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-service-code", "service_code is required")
		return
	}
	if req.Country == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-country", "country is required")
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), service.CreateOrderCmd{
		UserID:            actorID,
		ServiceCode:       req.ServiceCode,
		Country:           req.Country,
		PreferredProvider: req.PreferredProvider,
	})
	if err != nil {
		if respondDomainError(w, r, err) {
			return
		}
		if status, pt, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pt, msg)
			return
		}
		zap.L().Error("create order failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "order/create-failed", "Failed to create order")
		return
	}

	RespondJSON(w, http.StatusCreated, order)
}

// GetOrder handles GET /v1/orders/{id}. Refreshes the status from the
// vendor when the order is still waiting for an SMS.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-order-id", "Invalid order ID")
		return
	}

	owner := &actorID
	if isAdmin {
		owner = nil
	}
	order, err := h.orders.RefreshOrderStatus(r.Context(), orderID, owner)
	if err != nil {
		if respondDomainError(w, r, err) {
			return
		}
		zap.L().Error("get order failed", zap.Error(err), zap.String("order_id", orderID.String()))
		RespondError(w, r, http.StatusInternalServerError, "order/read-failed", "Failed to get order")
		return
	}

	RespondJSON(w, http.StatusOK, order)
}

// ListOrders handles GET /v1/orders for the authenticated user.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
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

	orders, err := h.orders.ListOrders(r.Context(), actorID, limit, offset)
	if err != nil {
		zap.L().Error("list orders failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "order/list-failed", "Failed to list orders")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"items":  orders,
		"limit":  limit,
		"offset": offset,
		"count":  len(orders),
	})
}

// CancelOrder handles DELETE /v1/orders/{id}. Cancelling a cancellable
// order always refunds the full charge.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
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

	order, err := h.orders.CancelOrder(r.Context(), orderID, actorID)
	if err != nil {
		if respondDomainError(w, r, err) {
			return
		}
		zap.L().Error("cancel order failed", zap.Error(err), zap.String("order_id", orderID.String()))
		RespondError(w, r, http.StatusInternalServerError, "order/cancel-failed", "Failed to cancel order")
		return
	}

	RespondJSON(w, http.StatusOK, order)
}
