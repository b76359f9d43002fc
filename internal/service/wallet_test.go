package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enobongmedem-code/darnumber-sub000/internal/domain"
	"github.com/enobongmedem-code/darnumber-sub000/internal/models"
)

func TestDeposit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 0)

	txn, err := env.wallet.Deposit(ctx, user.ID, 5_000_000, "gw-ref-1", "Gateway deposit")
	require.NoError(t, err)

	assert.Equal(t, domain.TxTypeDeposit, txn.Type)
	assert.Equal(t, int64(5_000_000), txn.AmountMicros)
	assert.Equal(t, int64(0), txn.BalanceBeforeMicros)
	assert.Equal(t, int64(5_000_000), txn.BalanceAfterMicros)
	assert.Equal(t, domain.TxStatusCompleted, txn.Status)
	assert.Equal(t, int64(5_000_000), env.userBalance(t, user.ID))
}

func TestDepositUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.wallet.Deposit(context.Background(), uuid.New(), 1_000_000, "gw-ref-2", "deposit")
	require.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestAdminAdjust(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := seedUser(t, env.store, 0)
	user := seedUser(t, env.store, 3_000_000)

	txn, err := env.wallet.AdminAdjust(ctx, admin.ID, user.ID, -1_000_000, "chargeback correction")
	require.NoError(t, err)
	assert.Equal(t, domain.TxTypeAdminAdjustment, txn.Type)
	assert.Equal(t, int64(1_000_000), txn.AmountMicros)
	assert.Equal(t, int64(2_000_000), env.userBalance(t, user.ID))

	// The acting admin lands in the audit trail.
	var actor uuid.UUID
	err = env.db.QueryRow(ctx,
		`SELECT actor_id FROM system_logs WHERE entity_type = 'wallet' AND entity_id = $1 AND action = 'balance.ADMIN_ADJUSTMENT'`,
		user.ID).Scan(&actor)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, actor)
}

func TestAdminAdjustCannotGoNegative(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := seedUser(t, env.store, 0)
	user := seedUser(t, env.store, 500_000)

	_, err := env.wallet.AdminAdjust(ctx, admin.ID, user.ID, -1_000_000, "too much")
	require.ErrorIs(t, err, models.ErrInsufficientBalance)
	assert.Equal(t, int64(500_000), env.userBalance(t, user.ID))
	assert.Zero(t, env.countTransactions(t, user.ID, domain.TxTypeAdminAdjustment))
}

func TestListTransactionsNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 0)

	for i, ref := range []string{"ref-a", "ref-b", "ref-c"} {
		_, err := env.wallet.Deposit(ctx, user.ID, int64(i+1)*1_000_000, ref, "deposit "+ref)
		require.NoError(t, err)
	}

	txs, err := env.wallet.ListTransactions(ctx, user.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(3_000_000), txs[0].AmountMicros)
	assert.Equal(t, int64(2_000_000), txs[1].AmountMicros)
}

func TestGetBalance(t *testing.T) {
	env := newTestEnv(t)
	user := seedUser(t, env.store, 7_500_000)

	got, err := env.wallet.GetBalance(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7_500_000), got.BalanceMicros)
	assert.Equal(t, "USD", got.Currency)

	_, err = env.wallet.GetBalance(context.Background(), uuid.New())
	require.ErrorIs(t, err, models.ErrUserNotFound)
}
