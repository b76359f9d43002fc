package repository

import (
	"context"
	"fmt"

	"github.com/enobongmedem-code/darnumber-sub000/internal/models"
	"github.com/google/uuid"
)

const pricingRuleColumns = `id, service_code, country, profit_type, profit_value, priority, is_active, created_at, updated_at`

func scanPricingRule(row interface{ Scan(dest ...any) error }) (*models.PricingRule, error) {
	r := &models.PricingRule{}
	err := row.Scan(&r.ID, &r.ServiceCode, &r.Country, &r.ProfitType, &r.ProfitValue, &r.Priority,
		&r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListActiveRules returns every active pricing rule. Wildcard matching and
// scoring happen in the pricing engine, not in SQL.
func (q *Queries) ListActiveRules(ctx context.Context) ([]models.PricingRule, error) {
	query := `SELECT ` + pricingRuleColumns + ` FROM pricing_rules WHERE is_active ORDER BY id ASC`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active pricing rules: %w", err)
	}
	defer rows.Close()

	var rules []models.PricingRule
	for rows.Next() {
		r, err := scanPricingRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pricing rule: %w", err)
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

func (q *Queries) ListAllRules(ctx context.Context) ([]models.PricingRule, error) {
	query := `SELECT ` + pricingRuleColumns + ` FROM pricing_rules ORDER BY priority DESC, id ASC`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pricing rules: %w", err)
	}
	defer rows.Close()

	var rules []models.PricingRule
	for rows.Next() {
		r, err := scanPricingRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pricing rule: %w", err)
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

func (q *Queries) CreatePricingRule(ctx context.Context, rule *models.PricingRule) error {
	query := `INSERT INTO pricing_rules (id, service_code, country, profit_type, profit_value, priority, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW()) RETURNING created_at, updated_at`
	err := q.db.QueryRow(ctx, query, rule.ID, rule.ServiceCode, rule.Country, rule.ProfitType,
		rule.ProfitValue, rule.Priority, rule.IsActive).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create pricing rule: %w", err)
	}
	return nil
}

func (q *Queries) UpdatePricingRule(ctx context.Context, rule *models.PricingRule) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE pricing_rules
		SET service_code = $1, country = $2, profit_type = $3, profit_value = $4, priority = $5, is_active = $6, updated_at = NOW()
		WHERE id = $7`,
		rule.ServiceCode, rule.Country, rule.ProfitType, rule.ProfitValue, rule.Priority, rule.IsActive, rule.ID)
	if err != nil {
		return 0, fmt.Errorf("update pricing rule: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) SetPricingRuleActive(ctx context.Context, id uuid.UUID, active bool) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE pricing_rules SET is_active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	if err != nil {
		return 0, fmt.Errorf("toggle pricing rule: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) DeletePricingRule(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM pricing_rules WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete pricing rule: %w", err)
	}
	return tag.RowsAffected(), nil
}
