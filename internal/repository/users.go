package repository

import (
	"context"
	"fmt"

	"github.com/enobongmedem-code/darnumber-sub000/internal/models"
	"github.com/google/uuid"
)

const userColumns = `id, email, role, balance_micros, currency, status, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Email, &u.Role, &u.BalanceMicros, &u.Currency, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (q *Queries) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, email, role, balance_micros, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING created_at, updated_at`
	err := q.db.QueryRow(ctx, query, user.ID, user.Email, user.Role, user.BalanceMicros, user.Currency, user.Status).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (q *Queries) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(q.db.QueryRow(ctx, query, id))
}

// GetUserForUpdate locks the user row for the duration of the enclosing
// transaction. The balance read-modify-write must happen under this lock.
func (q *Queries) GetUserForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	return scanUser(q.db.QueryRow(ctx, query, id))
}

func (q *Queries) UpdateUserBalance(ctx context.Context, id uuid.UUID, balanceMicros int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE users SET balance_micros = $1, updated_at = NOW() WHERE id = $2`, balanceMicros, id)
	if err != nil {
		return 0, fmt.Errorf("update user balance: %w", err)
	}
	return tag.RowsAffected(), nil
}
