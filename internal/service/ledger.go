package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enobongmedem-code/darnumber-sub000/internal/domain"
	"github.com/enobongmedem-code/darnumber-sub000/internal/observability"
)

// LedgerService verifies wallet integrity invariants: every user's ledger
// must form an unbroken snapshot chain (each balance_before equals the
// previous balance_after, each delta matches the amount and type) and the
// final snapshot must equal the live balance.
type LedgerService struct {
	store QueryStore
}

func NewLedgerService(store QueryStore) *LedgerService {
	return &LedgerService{store: store}
}

// ChainBreak describes one detected ledger inconsistency.
type ChainBreak struct {
	UserID            uuid.UUID `json:"user_id"`
	TransactionNumber string    `json:"transaction_number,omitempty"`
	Detail            string    `json:"detail"`
}

// Run audits every user that has ledger entries. Inconsistencies are
// reported, never repaired; the ledger is append-only and a broken chain
// means a bug elsewhere.
func (s *LedgerService) Run(ctx context.Context) ([]ChainBreak, error) {
	queries := s.store.Queries()
	userIDs, err := queries.ListLedgerUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ledger users: %w", err)
	}

	var breaks []ChainBreak
	for _, userID := range userIDs {
		userBreaks, err := s.auditUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		breaks = append(breaks, userBreaks...)
	}

	observability.SetLedgerBrokenChains(len(breaks))
	if len(breaks) > 0 {
		zap.L().Error("CRITICAL: ledger chain breaks detected", zap.Int("count", len(breaks)))
		for _, b := range breaks {
			zap.L().Error("ledger chain break",
				zap.String("user_id", b.UserID.String()),
				zap.String("transaction_number", b.TransactionNumber),
				zap.String("detail", b.Detail),
			)
		}
	} else {
		zap.L().Info("ledger chains verified", zap.Int("users", len(userIDs)))
	}
	return breaks, nil
}

func (s *LedgerService) auditUser(ctx context.Context, userID uuid.UUID) ([]ChainBreak, error) {
	queries := s.store.Queries()
	txs, err := queries.ListUserTransactionsChronological(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load ledger for %s: %w", userID, err)
	}
	if len(txs) == 0 {
		return nil, nil
	}

	var breaks []ChainBreak
	prevAfter := txs[0].BalanceBeforeMicros
	for i := range txs {
		tx := &txs[i]
		if tx.BalanceBeforeMicros != prevAfter {
			breaks = append(breaks, ChainBreak{
				UserID:            userID,
				TransactionNumber: tx.TransactionNumber,
				Detail: fmt.Sprintf("balance_before %d does not continue previous balance_after %d",
					tx.BalanceBeforeMicros, prevAfter),
			})
		}

		delta := tx.AmountMicros
		if domain.IsDebitTxType(tx.Type) {
			delta = -delta
		}
		if tx.Type == domain.TxTypeAdminAdjustment {
			// Adjustments carry a sign only through the snapshots.
			delta = tx.BalanceAfterMicros - tx.BalanceBeforeMicros
			if abs64(delta) != tx.AmountMicros {
				breaks = append(breaks, ChainBreak{
					UserID:            userID,
					TransactionNumber: tx.TransactionNumber,
					Detail:            fmt.Sprintf("adjustment magnitude %d does not match snapshots", tx.AmountMicros),
				})
			}
		}
		if tx.BalanceAfterMicros != tx.BalanceBeforeMicros+delta {
			breaks = append(breaks, ChainBreak{
				UserID:            userID,
				TransactionNumber: tx.TransactionNumber,
				Detail: fmt.Sprintf("balance_after %d does not equal before %d plus delta %d",
					tx.BalanceAfterMicros, tx.BalanceBeforeMicros, delta),
			})
		}
		if tx.BalanceAfterMicros < 0 {
			breaks = append(breaks, ChainBreak{
				UserID:            userID,
				TransactionNumber: tx.TransactionNumber,
				Detail:            fmt.Sprintf("negative balance snapshot %d", tx.BalanceAfterMicros),
			})
		}
		prevAfter = tx.BalanceAfterMicros
	}

	user, err := queries.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	if user.BalanceMicros != prevAfter {
		breaks = append(breaks, ChainBreak{
			UserID: userID,
			Detail: fmt.Sprintf("live balance %d does not equal final ledger snapshot %d",
				user.BalanceMicros, prevAfter),
		})
	}
	return breaks, nil
}
