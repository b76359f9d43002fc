package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/enobongmedem-code/darnumber-sub000/internal/domain"
	"github.com/enobongmedem-code/darnumber-sub000/internal/models"
)

var (
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrDepositPayloadMismatch = errors.New("deposit payload does not match existing reference")
)

// WebhookService handles deposit confirmations from the payment gateway.
type WebhookService struct {
	store   QueryStore
	wallet  *WalletService
	hmacKey []byte
	skipSig bool
}

func NewWebhookService(store QueryStore, wallet *WalletService, hmacKey string, skipSignature bool) *WebhookService {
	return &WebhookService{
		store:   store,
		wallet:  wallet,
		hmacKey: []byte(hmacKey),
		skipSig: skipSignature,
	}
}

// DepositWebhookPayload is the gateway's deposit confirmation body.
type DepositWebhookPayload struct {
	UserID       string `json:"user_id"`
	AmountMicros int64  `json:"amount_micros"`
	Currency     string `json:"currency"`
	Reference    string `json:"reference"` // unique id assigned by the gateway
}

type DepositWebhookResponse struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Status        string    `json:"status"`
	Message       string    `json:"message"`
}

// HandleDepositWebhook verifies the HMAC signature and credits the user.
// Replays of an already-processed reference return the original transaction
// instead of crediting twice.
func (s *WebhookService) HandleDepositWebhook(ctx context.Context, payload []byte, signature string) (*DepositWebhookResponse, error) {
	if !s.verifyHMAC(payload, signature) {
		return nil, ErrInvalidSignature
	}

	var deposit DepositWebhookPayload
	if err := json.Unmarshal(payload, &deposit); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	deposit.Currency = strings.ToUpper(strings.TrimSpace(deposit.Currency))
	deposit.Reference = strings.TrimSpace(deposit.Reference)
	deposit.UserID = strings.TrimSpace(deposit.UserID)

	if deposit.AmountMicros <= 0 {
		return nil, fmt.Errorf("invalid amount: %d", deposit.AmountMicros)
	}
	if deposit.Reference == "" {
		return nil, errors.New("reference is required")
	}
	userID, err := uuid.Parse(deposit.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user_id: %w", err)
	}

	existing, err := s.store.Queries().GetTransactionByExternalReference(ctx, deposit.Reference)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check deposit reference: %w", err)
	}
	if existing != nil {
		if existing.Type != domain.TxTypeDeposit ||
			existing.AmountMicros != deposit.AmountMicros ||
			(deposit.Currency != "" && existing.Currency != deposit.Currency) {
			return nil, ErrDepositPayloadMismatch
		}
		return &DepositWebhookResponse{
			TransactionID: existing.ID,
			Status:        existing.Status,
			Message:       "Deposit already processed",
		}, nil
	}

	user, err := s.wallet.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if deposit.Currency != "" && deposit.Currency != user.Currency {
		return nil, fmt.Errorf("currency mismatch: wallet is %s, deposit is %s", user.Currency, deposit.Currency)
	}

	txn, err := s.wallet.Deposit(ctx, userID, deposit.AmountMicros, deposit.Reference,
		"Gateway deposit "+deposit.Reference)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("apply deposit: %w", err)
	}

	return &DepositWebhookResponse{
		TransactionID: txn.ID,
		Status:        txn.Status,
		Message:       "Deposit processed successfully",
	}, nil
}

func (s *WebhookService) verifyHMAC(payload []byte, signature string) bool {
	if s.skipSig {
		return true
	}
	if len(s.hmacKey) == 0 {
		return false
	}
	h := hmac.New(sha256.New, s.hmacKey)
	h.Write(payload)
	expectedSig := "sha256=" + hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expectedSig))
}
