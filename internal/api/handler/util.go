package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/enobongmedem-code/darnumber-sub000/internal/api/middleware"
	"github.com/enobongmedem-code/darnumber-sub000/internal/api/problem"
	"github.com/enobongmedem-code/darnumber-sub000/internal/models"
	"github.com/enobongmedem-code/darnumber-sub000/internal/provider"
	"github.com/enobongmedem-code/darnumber-sub000/internal/service"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

func requestActor(r *http.Request) (uuid.UUID, bool, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return uuid.Nil, false, errors.New("missing user in auth context")
	}

	actorID, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, false, errors.New("invalid user_id in auth context")
	}

	return actorID, middleware.UserRoleFromContext(r.Context()) == "admin", nil
}

// respondDomainError maps known service failures to HTTP statuses. Returns
// false when the error is not one of the typed failures.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case errors.Is(err, models.ErrOrderNotFound):
		RespondError(w, r, http.StatusNotFound, "order/not-found", "Order not found")
	case errors.Is(err, models.ErrUserNotFound):
		RespondError(w, r, http.StatusNotFound, "user/not-found", "User not found")
	case errors.Is(err, models.ErrUserSuspended):
		RespondError(w, r, http.StatusForbidden, "user/suspended", "Account is suspended")
	case errors.Is(err, models.ErrInsufficientBalance):
		RespondError(w, r, http.StatusPaymentRequired, "wallet/insufficient-balance", "Insufficient balance")
	case errors.Is(err, models.ErrNoProviderAvailable):
		RespondError(w, r, http.StatusServiceUnavailable, "order/no-provider-available", "No provider can serve this service and country right now")
	case errors.Is(err, provider.ErrServiceNotSupported):
		RespondError(w, r, http.StatusUnprocessableEntity, "order/service-not-supported", "Requested provider does not support this service and country")
	case errors.Is(err, models.ErrOrderNotCancellable):
		RespondError(w, r, http.StatusConflict, "order/not-cancellable", "Order is no longer cancellable")
	case errors.Is(err, models.ErrProviderRequest):
		RespondError(w, r, http.StatusBadGateway, "order/provider-request-failed", "Provider request failed; the charge was refunded")
	case errors.Is(err, service.ErrInvalidSignature):
		RespondError(w, r, http.StatusUnauthorized, "webhook/invalid-signature", "Invalid webhook signature")
	case errors.Is(err, service.ErrDepositPayloadMismatch):
		RespondError(w, r, http.StatusConflict, "webhook/payload-mismatch", "Reference already used with different payload")
	default:
		return false
	}
	return true
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}

func parsePagination(r *http.Request) (limit, offset int32, err error) {
	limit, offset = 50, 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		parsed, perr := strconv.Atoi(v)
		if perr != nil || parsed <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		limit = int32(parsed)
	}
	if v := strings.TrimSpace(r.URL.Query().Get("offset")); v != "" {
		parsed, perr := strconv.Atoi(v)
		if perr != nil || parsed < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
		offset = int32(parsed)
	}
	return limit, offset, nil
}
