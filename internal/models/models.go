package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	BalanceMicros int64     `json:"balance_micros"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Order is a single purchase of one phone number for one verification
// attempt. ExternalID is the opaque handle the provider returned for the
// reservation; depending on the vendor it may be a plain id or a full URL.
type Order struct {
	ID               uuid.UUID  `json:"id"`
	OrderNumber      string     `json:"order_number"`
	UserID           uuid.UUID  `json:"user_id"`
	ProviderID       *uuid.UUID `json:"provider_id,omitempty"`
	ProviderName     string     `json:"provider_name,omitempty"`
	ServiceCode      string     `json:"service_code"`
	Country          string     `json:"country"`
	BaseCostMicros   int64      `json:"base_cost_micros"`
	ProfitMicros     int64      `json:"profit_micros"`
	FinalPriceMicros int64      `json:"final_price_micros"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	ExternalID       *string    `json:"external_id,omitempty"`
	PhoneNumber      *string    `json:"phone_number,omitempty"`
	SMSCode          *string    `json:"sms_code,omitempty"`
	SMSMessage       *string    `json:"sms_message,omitempty"`
	TransactionID    *uuid.UUID `json:"transaction_id,omitempty"`
	ExpiresAt        time.Time  `json:"expires_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Transaction is an append-only ledger entry. AmountMicros is always a
// positive magnitude; the sign is implied by Type. BalanceBefore/After are
// snapshots taken at the moment of mutation and never recomputed.
type Transaction struct {
	ID                  uuid.UUID  `json:"id"`
	TransactionNumber   string     `json:"transaction_number"`
	UserID              uuid.UUID  `json:"user_id"`
	Type                string     `json:"type"`
	AmountMicros        int64      `json:"amount_micros"`
	Currency            string     `json:"currency"`
	BalanceBeforeMicros int64      `json:"balance_before_micros"`
	BalanceAfterMicros  int64      `json:"balance_after_micros"`
	Status              string     `json:"status"`
	OrderID             *uuid.UUID `json:"order_id,omitempty"`
	ExternalReference   *string    `json:"external_reference,omitempty"`
	Description         string     `json:"description"`
	CreatedAt           time.Time  `json:"created_at"`
}

// PricingRule is an admin-configured markup policy. A nil ServiceCode or
// Country acts as a wildcard.
type PricingRule struct {
	ID          uuid.UUID `json:"id"`
	ServiceCode *string   `json:"service_code,omitempty"`
	Country     *string   `json:"country,omitempty"`
	ProfitType  string    `json:"profit_type"`
	ProfitValue float64   `json:"profit_value"`
	Priority    int32     `json:"priority"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Provider struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	DisplayName  string    `json:"display_name"`
	APIURL       string    `json:"api_url"`
	APIKey       string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	Priority     int32     `json:"priority"`
	HealthStatus string    `json:"health_status"`
	RateLimit    int32     `json:"rate_limit"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
