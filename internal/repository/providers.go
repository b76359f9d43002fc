package repository

import (
	"context"
	"fmt"

	"github.com/enobongmedem-code/darnumber-sub000/internal/models"
	"github.com/google/uuid"
)

const providerColumns = `id, name, display_name, api_url, api_key, is_active, priority, health_status, rate_limit, created_at, updated_at`

func scanProvider(row interface{ Scan(dest ...any) error }) (*models.Provider, error) {
	p := &models.Provider{}
	err := row.Scan(&p.ID, &p.Name, &p.DisplayName, &p.APIURL, &p.APIKey, &p.IsActive, &p.Priority,
		&p.HealthStatus, &p.RateLimit, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListEligibleProviders returns active providers that are not DOWN, ordered
// by admin-assigned priority (highest first).
func (q *Queries) ListEligibleProviders(ctx context.Context) ([]models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers
		WHERE is_active AND health_status <> 'DOWN'
		ORDER BY priority DESC, name ASC`
	return q.listProviders(ctx, query)
}

func (q *Queries) ListProviders(ctx context.Context) ([]models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers ORDER BY priority DESC, name ASC`
	return q.listProviders(ctx, query)
}

func (q *Queries) listProviders(ctx context.Context, query string) ([]models.Provider, error) {
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var providers []models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		providers = append(providers, *p)
	}
	return providers, rows.Err()
}

func (q *Queries) GetProviderByName(ctx context.Context, name string) (*models.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE name = $1`
	return scanProvider(q.db.QueryRow(ctx, query, name))
}

func (q *Queries) CreateProvider(ctx context.Context, p *models.Provider) error {
	query := `INSERT INTO providers (id, name, display_name, api_url, api_key, is_active, priority, health_status, rate_limit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW()) RETURNING created_at, updated_at`
	err := q.db.QueryRow(ctx, query, p.ID, p.Name, p.DisplayName, p.APIURL, p.APIKey, p.IsActive,
		p.Priority, p.HealthStatus, p.RateLimit).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}
	return nil
}

func (q *Queries) UpdateProvider(ctx context.Context, p *models.Provider) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE providers
		SET display_name = $1, api_url = $2, api_key = $3, is_active = $4, priority = $5, rate_limit = $6, updated_at = NOW()
		WHERE id = $7`,
		p.DisplayName, p.APIURL, p.APIKey, p.IsActive, p.Priority, p.RateLimit, p.ID)
	if err != nil {
		return 0, fmt.Errorf("update provider: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) UpdateProviderHealth(ctx context.Context, id uuid.UUID, healthStatus string) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE providers SET health_status = $1, updated_at = NOW() WHERE id = $2`, healthStatus, id)
	if err != nil {
		return 0, fmt.Errorf("update provider health: %w", err)
	}
	return tag.RowsAffected(), nil
}
