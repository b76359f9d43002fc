package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/enobongmedem-code/darnumber-sub000/internal/domain"
	"github.com/enobongmedem-code/darnumber-sub000/internal/models"
	"github.com/enobongmedem-code/darnumber-sub000/internal/observability"
	"github.com/enobongmedem-code/darnumber-sub000/internal/pricing"
	"github.com/enobongmedem-code/darnumber-sub000/internal/provider"
	"github.com/enobongmedem-code/darnumber-sub000/internal/repository"
	"github.com/enobongmedem-code/darnumber-sub000/internal/statuscache"
)

// OrderService drives the order lifecycle: price, debit, reserve a number,
// wait for the code, and refund on every failure path. Funds move only
// inside database transactions; vendor calls happen outside them so a slow
// provider never holds row locks.
type OrderService struct {
	store    QueryStore
	registry *provider.Registry
	pricing  *pricing.Engine
	wallet   *WalletService
	audit    *AuditService
	cache    *statuscache.Cache
	orderTTL time.Duration
}

func NewOrderService(store QueryStore, registry *provider.Registry, pricingEngine *pricing.Engine, wallet *WalletService, audit *AuditService, cache *statuscache.Cache, orderTTL time.Duration) *OrderService {
	if orderTTL <= 0 {
		orderTTL = 20 * time.Minute
	}
	return &OrderService{
		store:    store,
		registry: registry,
		pricing:  pricingEngine,
		wallet:   wallet,
		audit:    audit,
		cache:    cache,
		orderTTL: orderTTL,
	}
}

type CreateOrderCmd struct {
	UserID            uuid.UUID
	ServiceCode       string
	Country           string
	PreferredProvider string
}

// CreateOrder reserves a phone number for one verification attempt. The
// debit and the order row commit together before the vendor is called; a
// failed vendor call refunds in full.
func (s *OrderService) CreateOrder(ctx context.Context, cmd CreateOrderCmd) (*models.Order, error) {
	if cmd.ServiceCode == "" || cmd.Country == "" {
		return nil, errors.New("service_code and country are required")
	}

	user, err := s.store.Queries().GetUser(ctx, cmd.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user.Status != domain.UserStatusActive {
		return nil, models.ErrUserSuspended
	}

	providerRow, adapter, err := s.selectProvider(ctx, cmd.ServiceCode, cmd.Country, cmd.PreferredProvider)
	if err != nil {
		return nil, err
	}

	baseCost, err := adapter.ServiceCost(cmd.ServiceCode, cmd.Country)
	if err != nil {
		return nil, err
	}
	quote, err := s.pricing.CalculatePrice(ctx, baseCost, cmd.ServiceCode, cmd.Country)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:               uuid.New(),
		OrderNumber:      newReference("ORD"),
		UserID:           user.ID,
		ServiceCode:      cmd.ServiceCode,
		Country:          cmd.Country,
		BaseCostMicros:   quote.BaseCostMicros,
		ProfitMicros:     quote.ProfitMicros,
		FinalPriceMicros: quote.FinalPriceMicros,
		Currency:         user.Currency,
		Status:           domain.OrderStatusPending,
		ExpiresAt:        time.Now().UTC().Add(s.orderTTL),
	}

	err = s.store.RunInTx(ctx, func(q *repository.Queries) error {
		txn, err := s.wallet.debit(ctx, q, user.ID, order.FinalPriceMicros,
			domain.TxTypeOrderPayment, &order.ID, "Payment for order "+order.OrderNumber)
		if err != nil {
			return err
		}
		order.TransactionID = &txn.ID
		if err := q.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		meta, _ := json.Marshal(map[string]any{
			"order_number":       order.OrderNumber,
			"service_code":       order.ServiceCode,
			"country":            order.Country,
			"final_price_micros": order.FinalPriceMicros,
			"provider":           providerRow.Name,
		})
		return s.audit.Write(ctx, q, "order", order.ID, nil, "order.created", "", order.Status, meta)
	})
	if err != nil {
		return nil, err
	}

	if err := s.transition(ctx, order.ID, domain.OrderStatusProcessing, nil, "order.dispatch", nil); err != nil {
		// The debit already committed: refund rather than leave the charge
		// pending until the expiry sweep.
		zap.L().Warn("dispatch transition failed, refunding order",
			zap.String("order_number", order.OrderNumber),
			zap.Error(err),
		)
		if refundErr := s.RefundOrder(ctx, order.ID, domain.RefundReasonProviderFailure, nil); refundErr != nil {
			zap.L().Error("refund after dispatch failure did not apply",
				zap.String("order_number", order.OrderNumber), zap.Error(refundErr))
		}
		return nil, err
	}
	order.Status = domain.OrderStatusProcessing

	reservation, err := adapter.RequestNumber(ctx, cmd.ServiceCode, cmd.Country)
	if err != nil {
		zap.L().Warn("number reservation failed, refunding order",
			zap.String("order_number", order.OrderNumber),
			zap.String("provider", providerRow.Name),
			zap.Error(err),
		)
		if refundErr := s.RefundOrder(ctx, order.ID, domain.RefundReasonProviderFailure, nil); refundErr != nil {
			zap.L().Error("refund after provider failure did not apply",
				zap.String("order_number", order.OrderNumber), zap.Error(refundErr))
		}
		return nil, fmt.Errorf("%w: %v", models.ErrProviderRequest, err)
	}

	err = s.store.RunInTx(ctx, func(q *repository.Queries) error {
		current, err := q.GetOrderForUpdate(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if current.Status != domain.OrderStatusProcessing {
			// Refunded or cancelled while the vendor call was in flight.
			return fmt.Errorf("order %s left PROCESSING during reservation: %s", order.OrderNumber, current.Status)
		}
		rows, err := q.UpdateOrderReservation(ctx, order.ID, &providerRow.ID, providerRow.Name,
			reservation.ExternalID, reservation.PhoneNumber, domain.OrderStatusWaitingForSMS)
		if err != nil {
			return fmt.Errorf("store reservation: %w", err)
		}
		if err := requireExactlyOne(rows, "store reservation"); err != nil {
			return err
		}
		meta, _ := json.Marshal(map[string]any{"phone_number": reservation.PhoneNumber})
		return s.audit.Write(ctx, q, "order", order.ID, nil, "order.number_reserved",
			domain.OrderStatusProcessing, domain.OrderStatusWaitingForSMS, meta)
	})
	if err != nil {
		// The number is reserved but unrecorded: release it and refund.
		if cancelErr := adapter.CancelNumber(ctx, reservation.ExternalID); cancelErr != nil {
			zap.L().Warn("releasing orphan reservation failed", zap.Error(cancelErr))
		}
		if refundErr := s.RefundOrder(ctx, order.ID, domain.RefundReasonProviderFailure, nil); refundErr != nil {
			zap.L().Error("refund after reservation store failure did not apply", zap.Error(refundErr))
		}
		return nil, err
	}

	order.Status = domain.OrderStatusWaitingForSMS
	order.ProviderID = &providerRow.ID
	order.ProviderName = providerRow.Name
	order.ExternalID = &reservation.ExternalID
	order.PhoneNumber = &reservation.PhoneNumber
	s.cache.Set(ctx, statusEntry(order))
	return order, nil
}

// GetOrder is a pure read with an ownership check. A nil userID skips the
// check for admin callers.
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID, userID *uuid.UUID) (*models.Order, error) {
	order, err := s.store.Queries().GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if userID != nil && order.UserID != *userID {
		return nil, models.ErrOrderNotFound
	}
	return order, nil
}

// ListOrders returns the user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.Queries().ListUserOrders(ctx, userID, limit, offset)
}

// RefreshOrderStatus is the status poll the client loops on. It may mutate
// the order: an overdue order is expired and refunded on read, and a pending
// SMS is pulled from the vendor so the client sees the code on this poll
// instead of waiting for the background sweep.
func (s *OrderService) RefreshOrderStatus(ctx context.Context, orderID uuid.UUID, userID *uuid.UUID) (*models.Order, error) {
	if cached := s.cache.Get(ctx, orderID); cached != nil {
		if userID == nil || cached.Order.UserID == *userID {
			if domain.IsTerminalOrderStatus(cached.Order.Status) || time.Now().UTC().Before(cached.Order.ExpiresAt) {
				return orderFromEntry(cached), nil
			}
		}
	}

	order, err := s.GetOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	if domain.IsTerminalOrderStatus(order.Status) {
		s.cache.Set(ctx, statusEntry(order))
		return order, nil
	}

	if time.Now().UTC().After(order.ExpiresAt) {
		if err := s.RefundOrder(ctx, order.ID, domain.RefundReasonExpired, nil); err != nil {
			return nil, err
		}
		return s.GetOrder(ctx, orderID, userID)
	}

	if order.Status == domain.OrderStatusWaitingForSMS && order.ExternalID != nil {
		if err := s.pollOnce(ctx, order); err != nil {
			zap.L().Warn("sms poll failed",
				zap.String("order_number", order.OrderNumber), zap.Error(err))
		} else {
			order, err = s.GetOrder(ctx, orderID, userID)
			if err != nil {
				return nil, err
			}
		}
	}

	s.cache.Set(ctx, statusEntry(order))
	return order, nil
}

// CancelOrder is the user-initiated cancel. Only orders that have not yet
// consumed the number may be cancelled.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	order, err := s.GetOrder(ctx, orderID, &userID)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case domain.OrderStatusPending, domain.OrderStatusWaitingForSMS:
	default:
		return nil, models.ErrOrderNotCancellable
	}
	if err := s.RefundOrder(ctx, orderID, domain.RefundReasonUserCancelled, &userID); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID, &userID)
}

// RefundOrder credits the full order price back and moves the order to the
// terminal status implied by the reason. Safe to call repeatedly: an order
// that is already terminal, or already carries a refund transaction, is left
// untouched.
func (s *OrderService) RefundOrder(ctx context.Context, orderID uuid.UUID, reason string, actorID *uuid.UUID) error {
	var (
		released  *models.Order
		newStatus string
		applied   bool
	)
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		order, err := q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}
		if domain.IsTerminalOrderStatus(order.Status) {
			return nil
		}
		if existing, err := q.GetRefundTransactionForOrder(ctx, order.ID); err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("check existing refund: %w", err)
			}
		} else if existing != nil {
			return nil
		}

		if _, err := s.wallet.credit(ctx, q, order.UserID, order.FinalPriceMicros,
			domain.TxTypeRefund, &order.ID, "Refund ("+reason+") for order "+order.OrderNumber); err != nil {
			return err
		}

		newStatus = domain.RefundStatusForReason(reason)
		meta, _ := json.Marshal(map[string]any{"reason": reason})
		if err := transitionOrderState(ctx, q, s.audit, order.ID, order.Status, newStatus, actorID, "order.refunded", meta); err != nil {
			return err
		}
		released = order
		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	s.cache.Invalidate(ctx, orderID)
	observability.IncrementRefund(reason)
	observability.IncrementOrderOutcome(newStatus)

	// Best effort: tell the vendor the number is no longer needed.
	if released.ExternalID != nil && released.ProviderName != "" {
		if adapter, err := s.registry.Get(released.ProviderName); err == nil {
			if err := adapter.CancelNumber(ctx, *released.ExternalID); err != nil {
				zap.L().Warn("vendor cancel failed",
					zap.String("order_number", released.OrderNumber), zap.Error(err))
			}
		}
	}
	return nil
}

// ExpireOverdueOrders refunds every order past its deadline, up to limit.
// Returns how many orders were expired.
func (s *OrderService) ExpireOverdueOrders(ctx context.Context, limit int32) (int, error) {
	overdue, err := s.store.Queries().ListExpiredOrders(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("list expired orders: %w", err)
	}
	expired := 0
	for i := range overdue {
		if err := s.RefundOrder(ctx, overdue[i].ID, domain.RefundReasonExpired, nil); err != nil {
			zap.L().Error("expiring order failed",
				zap.String("order_number", overdue[i].OrderNumber), zap.Error(err))
			continue
		}
		expired++
	}
	return expired, nil
}

// PollAwaitingOrders asks each vendor for codes on orders still waiting,
// up to limit. Returns how many orders completed.
func (s *OrderService) PollAwaitingOrders(ctx context.Context, limit int32) (int, error) {
	waiting, err := s.store.Queries().ListOrdersAwaitingCode(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("list awaiting orders: %w", err)
	}
	completed := 0
	for i := range waiting {
		order := &waiting[i]
		if err := s.pollOnce(ctx, order); err != nil {
			zap.L().Warn("sms poll failed",
				zap.String("order_number", order.OrderNumber), zap.Error(err))
			continue
		}
		if order.SMSCode != nil {
			completed++
		}
	}
	return completed, nil
}

// pollOnce fetches the code for one waiting order and completes it when the
// code has arrived. Mutates order on completion.
func (s *OrderService) pollOnce(ctx context.Context, order *models.Order) error {
	if order.ExternalID == nil {
		return nil
	}
	adapter, err := s.registry.Get(order.ProviderName)
	if err != nil {
		return err
	}
	code, err := adapter.PollForCode(ctx, *order.ExternalID)
	if err != nil {
		return err
	}
	if code == nil {
		return nil
	}

	err = s.store.RunInTx(ctx, func(q *repository.Queries) error {
		current, err := q.GetOrderForUpdate(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if current.Status != domain.OrderStatusWaitingForSMS {
			return nil
		}
		rows, err := q.UpdateOrderCode(ctx, order.ID, code.Code, code.Message, domain.OrderStatusCompleted)
		if err != nil {
			return fmt.Errorf("store sms code: %w", err)
		}
		if err := requireExactlyOne(rows, "store sms code"); err != nil {
			return err
		}
		return s.audit.Write(ctx, q, "order", order.ID, nil, "order.completed",
			domain.OrderStatusWaitingForSMS, domain.OrderStatusCompleted, nil)
	})
	if err != nil {
		return err
	}

	order.Status = domain.OrderStatusCompleted
	order.SMSCode = &code.Code
	if code.Message != "" {
		msg := code.Message
		order.SMSMessage = &msg
	}
	s.cache.Invalidate(ctx, order.ID)
	observability.IncrementOrderOutcome(domain.OrderStatusCompleted)
	return nil
}

// selectProvider picks the first active, healthy provider that supports the
// pair, honoring database priority order. preferred narrows the candidates
// to one name.
func (s *OrderService) selectProvider(ctx context.Context, serviceCode, country, preferred string) (*models.Provider, provider.Adapter, error) {
	rows, err := s.store.Queries().ListEligibleProviders(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list providers: %w", err)
	}
	for i := range rows {
		row := &rows[i]
		if preferred != "" && row.Name != preferred {
			continue
		}
		adapter, err := s.registry.Get(row.Name)
		if err != nil {
			continue
		}
		if !adapter.Supports(serviceCode, country) {
			if preferred != "" {
				return nil, nil, fmt.Errorf("%w: %s does not serve %s/%s",
					provider.ErrServiceNotSupported, row.Name, serviceCode, country)
			}
			continue
		}
		return row, adapter, nil
	}
	return nil, nil, models.ErrNoProviderAvailable
}

func (s *OrderService) transition(ctx context.Context, orderID uuid.UUID, next string, actorID *uuid.UUID, action string, metadata []byte) error {
	return s.store.RunInTx(ctx, func(q *repository.Queries) error {
		order, err := q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		return transitionOrderState(ctx, q, s.audit, orderID, order.Status, next, actorID, action, metadata)
	})
}

func statusEntry(order *models.Order) statuscache.Entry {
	return statuscache.Entry{Order: *order}
}

func orderFromEntry(e *statuscache.Entry) *models.Order {
	order := e.Order
	return &order
}
