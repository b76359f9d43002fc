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
	"github.com/enobongmedem-code/darnumber-sub000/internal/repository"
)

// WalletService owns every balance mutation. All writes go through debit or
// credit so each one locks the user row, snapshots the balance before and
// after, and appends exactly one ledger transaction.
type WalletService struct {
	store QueryStore
	audit *AuditService
}

func NewWalletService(store QueryStore, audit *AuditService) *WalletService {
	return &WalletService{store: store, audit: audit}
}

// debit subtracts amountMicros from the user inside the caller's transaction.
// Fails with ErrInsufficientBalance without writing anything when the balance
// does not cover the amount.
func (s *WalletService) debit(ctx context.Context, qtx *repository.Queries, userID uuid.UUID, amountMicros int64, txType string, orderID *uuid.UUID, description string) (*models.Transaction, error) {
	if amountMicros <= 0 {
		return nil, fmt.Errorf("invalid debit amount: %d", amountMicros)
	}
	user, err := lockUser(ctx, qtx, userID)
	if err != nil {
		return nil, err
	}
	if user.BalanceMicros < amountMicros {
		return nil, models.ErrInsufficientBalance
	}
	return s.apply(ctx, qtx, user, -amountMicros, txType, orderID, nil, nil, description)
}

// credit adds amountMicros to the user inside the caller's transaction.
func (s *WalletService) credit(ctx context.Context, qtx *repository.Queries, userID uuid.UUID, amountMicros int64, txType string, orderID *uuid.UUID, description string) (*models.Transaction, error) {
	if amountMicros <= 0 {
		return nil, fmt.Errorf("invalid credit amount: %d", amountMicros)
	}
	user, err := lockUser(ctx, qtx, userID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, qtx, user, amountMicros, txType, orderID, nil, nil, description)
}

func (s *WalletService) apply(ctx context.Context, qtx *repository.Queries, user *models.User, deltaMicros int64, txType string, orderID *uuid.UUID, actorID *uuid.UUID, externalRef *string, description string) (*models.Transaction, error) {
	before := user.BalanceMicros
	after := before + deltaMicros

	txn := &models.Transaction{
		ID:                  uuid.New(),
		TransactionNumber:   newReference("TXN"),
		UserID:              user.ID,
		Type:                txType,
		AmountMicros:        abs64(deltaMicros),
		Currency:            user.Currency,
		BalanceBeforeMicros: before,
		BalanceAfterMicros:  after,
		Status:              domain.TxStatusCompleted,
		OrderID:             orderID,
		ExternalReference:   externalRef,
		Description:         description,
	}
	if err := qtx.InsertTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("insert ledger transaction: %w", err)
	}

	rows, err := qtx.UpdateUserBalance(ctx, user.ID, after)
	if err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}
	if err := requireExactlyOne(rows, "update balance"); err != nil {
		return nil, err
	}

	meta, _ := json.Marshal(map[string]any{
		"transaction_number": txn.TransactionNumber,
		"amount_micros":      txn.AmountMicros,
		"type":               txType,
	})
	if err := s.audit.Write(ctx, qtx, "wallet", user.ID, actorID, "balance."+txType,
		fmt.Sprintf("%d", before), fmt.Sprintf("%d", after), meta); err != nil {
		return nil, err
	}
	return txn, nil
}

// Deposit credits funds confirmed by a payment gateway webhook. reference is
// the gateway's unique id for the payment, recorded for replay detection.
func (s *WalletService) Deposit(ctx context.Context, userID uuid.UUID, amountMicros int64, reference, description string) (*models.Transaction, error) {
	var txn *models.Transaction
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		user, err := lockUser(ctx, q, userID)
		if err != nil {
			return err
		}
		var ref *string
		if reference != "" {
			ref = &reference
		}
		txn, err = s.apply(ctx, q, user, amountMicros, domain.TxTypeDeposit, nil, nil, ref, description)
		return err
	})
	return txn, err
}

// AdminAdjust applies a signed manual correction. Negative deltas still may
// not push the balance below zero.
func (s *WalletService) AdminAdjust(ctx context.Context, actorID, userID uuid.UUID, deltaMicros int64, description string) (*models.Transaction, error) {
	if deltaMicros == 0 {
		return nil, errors.New("adjustment delta must be non-zero")
	}
	var txn *models.Transaction
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		user, err := lockUser(ctx, q, userID)
		if err != nil {
			return err
		}
		if user.BalanceMicros+deltaMicros < 0 {
			return models.ErrInsufficientBalance
		}
		txn, err = s.apply(ctx, q, user, deltaMicros, domain.TxTypeAdminAdjustment, nil, &actorID, nil, description)
		return err
	})
	return txn, err
}

// GetBalance returns the user with the current balance.
func (s *WalletService) GetBalance(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.store.Queries().GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// ListTransactions returns the user's ledger history, newest first.
func (s *WalletService) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.Queries().ListUserTransactions(ctx, userID, limit, offset)
}

func lockUser(ctx context.Context, qtx *repository.Queries, userID uuid.UUID) (*models.User, error) {
	user, err := qtx.GetUserForUpdate(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user: %w", err)
	}
	return user, nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
