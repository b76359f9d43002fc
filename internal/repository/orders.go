package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/enobongmedem-code/darnumber-sub000/internal/models"
	"github.com/google/uuid"
)

const orderColumns = `id, order_number, user_id, provider_id, provider_name, service_code, country,
	base_cost_micros, profit_micros, final_price_micros, currency, status, external_id, phone_number,
	sms_code, sms_message, transaction_id, expires_at, created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.ProviderID, &o.ProviderName, &o.ServiceCode,
		&o.Country, &o.BaseCostMicros, &o.ProfitMicros, &o.FinalPriceMicros, &o.Currency, &o.Status,
		&o.ExternalID, &o.PhoneNumber, &o.SMSCode, &o.SMSMessage, &o.TransactionID, &o.ExpiresAt,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (q *Queries) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `INSERT INTO orders (id, order_number, user_id, provider_id, provider_name, service_code,
			country, base_cost_micros, profit_micros, final_price_micros, currency, status, external_id,
			phone_number, sms_code, sms_message, transaction_id, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NOW(), NOW())
		RETURNING created_at, updated_at`
	err := q.db.QueryRow(ctx, query, order.ID, order.OrderNumber, order.UserID, order.ProviderID,
		order.ProviderName, order.ServiceCode, order.Country, order.BaseCostMicros, order.ProfitMicros,
		order.FinalPriceMicros, order.Currency, order.Status, order.ExternalID, order.PhoneNumber,
		order.SMSCode, order.SMSMessage, order.TransactionID, order.ExpiresAt).
		Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(q.db.QueryRow(ctx, query, id))
}

// GetOrderForUpdate locks the order row for the enclosing transaction, so
// concurrent refund paths (cancel vs expiry sweep) serialize on it.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return scanOrder(q.db.QueryRow(ctx, query, id))
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return 0, fmt.Errorf("update order status: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpdateOrderReservation records the provider-side reservation on the order.
func (q *Queries) UpdateOrderReservation(ctx context.Context, id uuid.UUID, providerID *uuid.UUID, providerName, externalID, phoneNumber, status string) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE orders
		SET provider_id = $1, provider_name = $2, external_id = $3, phone_number = $4, status = $5, updated_at = NOW()
		WHERE id = $6`, providerID, providerName, externalID, phoneNumber, status, id)
	if err != nil {
		return 0, fmt.Errorf("update order reservation: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpdateOrderCode persists a received SMS code and marks the order completed.
func (q *Queries) UpdateOrderCode(ctx context.Context, id uuid.UUID, code, message, status string) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE orders
		SET sms_code = $1, sms_message = $2, status = $3, updated_at = NOW()
		WHERE id = $4`, code, message, status, id)
	if err != nil {
		return 0, fmt.Errorf("update order code: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ListUserOrders(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := q.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list user orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// ListExpiredOrders returns non-terminal orders whose expiry has passed.
func (q *Queries) ListExpiredOrders(ctx context.Context, cutoff time.Time, limit int32) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE expires_at < $1 AND status IN ('PENDING', 'PROCESSING', 'WAITING_FOR_SMS')
		ORDER BY expires_at ASC LIMIT $2`
	return q.listOrders(ctx, query, cutoff, limit)
}

// ListOrdersAwaitingCode returns live orders still waiting for an SMS code.
func (q *Queries) ListOrdersAwaitingCode(ctx context.Context, now time.Time, limit int32) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE status = 'WAITING_FOR_SMS' AND sms_code IS NULL AND expires_at >= $1
		ORDER BY created_at ASC LIMIT $2`
	return q.listOrders(ctx, query, now, limit)
}

func (q *Queries) listOrders(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (q *Queries) CountOrdersByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count orders by status: %w", err)
	}
	return count, nil
}
