package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/enobongmedem-code/darnumber-sub000/internal/domain"
	"github.com/enobongmedem-code/darnumber-sub000/internal/models"
	"github.com/enobongmedem-code/darnumber-sub000/internal/pricing"
	"github.com/enobongmedem-code/darnumber-sub000/internal/repository"
)

// AdminService covers the back-office surface: pricing rule and provider
// CRUD, plus manual order overrides. Every mutation is audited with the
// acting admin's id.
type AdminService struct {
	store   QueryStore
	audit   *AuditService
	pricing *pricing.Engine
	orders  *OrderService
}

func NewAdminService(store QueryStore, audit *AuditService, pricingEngine *pricing.Engine, orders *OrderService) *AdminService {
	return &AdminService{store: store, audit: audit, pricing: pricingEngine, orders: orders}
}

func (s *AdminService) ListPricingRules(ctx context.Context) ([]models.PricingRule, error) {
	return s.store.Queries().ListAllRules(ctx)
}

func (s *AdminService) CreatePricingRule(ctx context.Context, actorID uuid.UUID, rule *models.PricingRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	rule.ID = uuid.New()
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		if err := q.CreatePricingRule(ctx, rule); err != nil {
			return fmt.Errorf("create pricing rule: %w", err)
		}
		meta, _ := json.Marshal(rule)
		return s.audit.Write(ctx, q, "pricing_rule", rule.ID, &actorID, "pricing_rule.created", "", "", meta)
	})
	if err != nil {
		return err
	}
	s.pricing.InvalidateRules()
	return nil
}

func (s *AdminService) UpdatePricingRule(ctx context.Context, actorID uuid.UUID, rule *models.PricingRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		rows, err := q.UpdatePricingRule(ctx, rule)
		if err != nil {
			return fmt.Errorf("update pricing rule: %w", err)
		}
		if rows == 0 {
			return pgx.ErrNoRows
		}
		meta, _ := json.Marshal(rule)
		return s.audit.Write(ctx, q, "pricing_rule", rule.ID, &actorID, "pricing_rule.updated", "", "", meta)
	})
	if err != nil {
		return err
	}
	s.pricing.InvalidateRules()
	return nil
}

func (s *AdminService) SetPricingRuleActive(ctx context.Context, actorID, ruleID uuid.UUID, active bool) error {
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		rows, err := q.SetPricingRuleActive(ctx, ruleID, active)
		if err != nil {
			return fmt.Errorf("toggle pricing rule: %w", err)
		}
		if rows == 0 {
			return pgx.ErrNoRows
		}
		meta, _ := json.Marshal(map[string]bool{"is_active": active})
		return s.audit.Write(ctx, q, "pricing_rule", ruleID, &actorID, "pricing_rule.toggled", "", "", meta)
	})
	if err != nil {
		return err
	}
	s.pricing.InvalidateRules()
	return nil
}

func (s *AdminService) DeletePricingRule(ctx context.Context, actorID, ruleID uuid.UUID) error {
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		rows, err := q.DeletePricingRule(ctx, ruleID)
		if err != nil {
			return fmt.Errorf("delete pricing rule: %w", err)
		}
		if rows == 0 {
			return pgx.ErrNoRows
		}
		return s.audit.Write(ctx, q, "pricing_rule", ruleID, &actorID, "pricing_rule.deleted", "", "", nil)
	})
	if err != nil {
		return err
	}
	s.pricing.InvalidateRules()
	return nil
}

func (s *AdminService) ListProviders(ctx context.Context) ([]models.Provider, error) {
	return s.store.Queries().ListProviders(ctx)
}

func (s *AdminService) CreateProvider(ctx context.Context, actorID uuid.UUID, p *models.Provider) error {
	if p.Name == "" {
		return errors.New("provider name is required")
	}
	p.ID = uuid.New()
	if p.HealthStatus == "" {
		p.HealthStatus = domain.HealthStatusHealthy
	}
	return s.store.RunInTx(ctx, func(q *repository.Queries) error {
		if err := q.CreateProvider(ctx, p); err != nil {
			return fmt.Errorf("create provider: %w", err)
		}
		meta, _ := json.Marshal(map[string]any{"name": p.Name, "priority": p.Priority})
		return s.audit.Write(ctx, q, "provider", p.ID, &actorID, "provider.created", "", "", meta)
	})
}

func (s *AdminService) UpdateProvider(ctx context.Context, actorID uuid.UUID, p *models.Provider) error {
	return s.store.RunInTx(ctx, func(q *repository.Queries) error {
		rows, err := q.UpdateProvider(ctx, p)
		if err != nil {
			return fmt.Errorf("update provider: %w", err)
		}
		if rows == 0 {
			return pgx.ErrNoRows
		}
		meta, _ := json.Marshal(map[string]any{
			"name": p.Name, "priority": p.Priority, "is_active": p.IsActive,
		})
		return s.audit.Write(ctx, q, "provider", p.ID, &actorID, "provider.updated", "", "", meta)
	})
}

// OverrideRefund force-refunds any non-terminal order, regardless of status.
func (s *AdminService) OverrideRefund(ctx context.Context, actorID, orderID uuid.UUID) error {
	return s.orders.RefundOrder(ctx, orderID, domain.RefundReasonAdminOverride, &actorID)
}

func validateRule(rule *models.PricingRule) error {
	switch rule.ProfitType {
	case domain.ProfitTypePercentage, domain.ProfitTypeFixed:
	default:
		return fmt.Errorf("unknown profit type: %s", rule.ProfitType)
	}
	if rule.ProfitValue < 0 {
		return fmt.Errorf("profit value must not be negative: %f", rule.ProfitValue)
	}
	return nil
}
