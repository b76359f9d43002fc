package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enobongmedem-code/darnumber-sub000/internal/domain"
	"github.com/enobongmedem-code/darnumber-sub000/internal/models"
	"github.com/enobongmedem-code/darnumber-sub000/internal/provider"
	"github.com/enobongmedem-code/darnumber-sub000/internal/repository"
	"github.com/enobongmedem-code/darnumber-sub000/internal/statuscache"
)

func TestCreateOrderHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 10_000_000)

	order, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID:      user.ID,
		ServiceCode: "whatsapp",
		Country:     "US",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusWaitingForSMS, order.Status)
	assert.Equal(t, int64(1_000_000), order.BaseCostMicros)
	assert.Equal(t, int64(200_000), order.ProfitMicros) // default 20 percent
	assert.Equal(t, int64(1_200_000), order.FinalPriceMicros)
	require.NotNil(t, order.PhoneNumber)
	require.NotNil(t, order.ExternalID)
	assert.Equal(t, "stub", order.ProviderName)

	assert.Equal(t, int64(10_000_000-1_200_000), env.userBalance(t, user.ID))
	assert.Equal(t, 1, env.countTransactions(t, user.ID, domain.TxTypeOrderPayment))

	// The debit snapshots the balance before and after.
	txs, err := env.store.Queries().ListUserTransactionsChronological(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(10_000_000), txs[0].BalanceBeforeMicros)
	assert.Equal(t, int64(8_800_000), txs[0].BalanceAfterMicros)
	require.NotNil(t, txs[0].OrderID)
	assert.Equal(t, order.ID, *txs[0].OrderID)
}

func TestCreateOrderInsufficientBalanceWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 100_000) // far below the 1.2 price

	_, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID:      user.ID,
		ServiceCode: "whatsapp",
		Country:     "US",
	})
	require.ErrorIs(t, err, models.ErrInsufficientBalance)

	assert.Equal(t, int64(100_000), env.userBalance(t, user.ID))
	var orders, txs int
	require.NoError(t, env.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, user.ID).Scan(&orders))
	require.NoError(t, env.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE user_id = $1`, user.ID).Scan(&txs))
	assert.Zero(t, orders)
	assert.Zero(t, txs)
}

func TestCreateOrderProviderFailureRefunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 10_000_000)
	env.adapter.setReserveErr(provider.ErrProviderUnavailable)

	_, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID:      user.ID,
		ServiceCode: "whatsapp",
		Country:     "US",
	})
	require.ErrorIs(t, err, models.ErrProviderRequest)

	// Full refund: balance restored, one debit and one refund on the ledger.
	assert.Equal(t, int64(10_000_000), env.userBalance(t, user.ID))
	assert.Equal(t, 1, env.countTransactions(t, user.ID, domain.TxTypeOrderPayment))
	assert.Equal(t, 1, env.countTransactions(t, user.ID, domain.TxTypeRefund))

	orders, err := env.orders.ListOrders(ctx, user.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderStatusFailed, orders[0].Status)
}

func TestCreateOrderNoProviderAvailable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 10_000_000)

	_, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID:      user.ID,
		ServiceCode: "unsupported",
		Country:     "US",
	})
	require.ErrorIs(t, err, models.ErrNoProviderAvailable)
}

func TestCreateOrderPreferredProviderNotServing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 10_000_000)

	_, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID:            user.ID,
		ServiceCode:       "unsupported",
		Country:           "US",
		PreferredProvider: "stub",
	})
	require.ErrorIs(t, err, provider.ErrServiceNotSupported)
}

func TestCreateOrderSuspendedUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 10_000_000)
	_, err := env.db.Exec(ctx, `UPDATE users SET status = 'SUSPENDED' WHERE id = $1`, user.ID)
	require.NoError(t, err)

	_, err = env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID: user.ID, ServiceCode: "whatsapp", Country: "US",
	})
	require.ErrorIs(t, err, models.ErrUserSuspended)
}

func TestCancelOrderRefundsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 10_000_000)

	order, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID: user.ID, ServiceCode: "whatsapp", Country: "US",
	})
	require.NoError(t, err)

	cancelled, err := env.orders.CancelOrder(ctx, order.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, int64(10_000_000), env.userBalance(t, user.ID))
	assert.Equal(t, 1, env.adapter.cancelCount())

	// Second cancel: already terminal.
	_, err = env.orders.CancelOrder(ctx, order.ID, user.ID)
	require.ErrorIs(t, err, models.ErrOrderNotCancellable)
	assert.Equal(t, 1, env.countTransactions(t, user.ID, domain.TxTypeRefund))
}

func TestRefundOrderIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 10_000_000)

	order, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID: user.ID, ServiceCode: "whatsapp", Country: "US",
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, env.orders.RefundOrder(ctx, order.ID, domain.RefundReasonExpired, nil))
	}

	assert.Equal(t, int64(10_000_000), env.userBalance(t, user.ID))
	assert.Equal(t, 1, env.countTransactions(t, user.ID, domain.TxTypeRefund))

	got, err := env.orders.GetOrder(ctx, order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusExpired, got.Status)
}

func TestCancelOtherUsersOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := seedUser(t, env.store, 10_000_000)
	intruder := seedUser(t, env.store, 10_000_000)

	order, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID: owner.ID, ServiceCode: "whatsapp", Country: "US",
	})
	require.NoError(t, err)

	_, err = env.orders.CancelOrder(ctx, order.ID, intruder.ID)
	require.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestExpireOverdueOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 10_000_000)

	order, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID: user.ID, ServiceCode: "whatsapp", Country: "US",
	})
	require.NoError(t, err)

	_, err = env.db.Exec(ctx, `UPDATE orders SET expires_at = NOW() - INTERVAL '1 minute' WHERE id = $1`, order.ID)
	require.NoError(t, err)

	expired, err := env.orders.ExpireOverdueOrders(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := env.orders.GetOrder(ctx, order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusExpired, got.Status)
	assert.Equal(t, int64(10_000_000), env.userBalance(t, user.ID))
	assert.Equal(t, 1, env.countTransactions(t, user.ID, domain.TxTypeRefund))

	// A second sweep finds nothing.
	expired, err = env.orders.ExpireOverdueOrders(ctx, 50)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestRefreshOrderStatusExpiresLazily(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 10_000_000)

	order, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID: user.ID, ServiceCode: "whatsapp", Country: "US",
	})
	require.NoError(t, err)

	_, err = env.db.Exec(ctx, `UPDATE orders SET expires_at = NOW() - INTERVAL '1 minute' WHERE id = $1`, order.ID)
	require.NoError(t, err)

	got, err := env.orders.RefreshOrderStatus(ctx, order.ID, &user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusExpired, got.Status)
	assert.Equal(t, int64(10_000_000), env.userBalance(t, user.ID))
}

func TestRefreshOrderStatusPullsCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 10_000_000)

	order, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID: user.ID, ServiceCode: "whatsapp", Country: "US",
	})
	require.NoError(t, err)

	env.adapter.setPollCode(&provider.Code{Code: "123456", Message: "Your code is 123456"})

	got, err := env.orders.RefreshOrderStatus(ctx, order.ID, &user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, got.Status)
	require.NotNil(t, got.SMSCode)
	assert.Equal(t, "123456", *got.SMSCode)

	// Completion consumes the payment: no refund.
	assert.Zero(t, env.countTransactions(t, user.ID, domain.TxTypeRefund))

	// Completed orders are not cancellable.
	_, err = env.orders.CancelOrder(ctx, order.ID, user.ID)
	require.ErrorIs(t, err, models.ErrOrderNotCancellable)
}

func TestPollAwaitingOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 10_000_000)

	order, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID: user.ID, ServiceCode: "whatsapp", Country: "US",
	})
	require.NoError(t, err)

	// No code yet: nothing completes.
	completed, err := env.orders.PollAwaitingOrders(ctx, 50)
	require.NoError(t, err)
	assert.Zero(t, completed)

	env.adapter.setPollCode(&provider.Code{Code: "654321"})
	completed, err = env.orders.PollAwaitingOrders(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)

	got, err := env.orders.GetOrder(ctx, order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, got.Status)
}

func TestProviderPriorityOrdering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 10_000_000)

	second := &stubAdapter{name: "backup", costMicros: 500_000}
	env.registry.Register(second)
	seedProvider(t, env.store, "backup", 1) // lower priority than "stub" (10)

	order, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID: user.ID, ServiceCode: "whatsapp", Country: "US",
	})
	require.NoError(t, err)
	assert.Equal(t, "stub", order.ProviderName)

	// Marking the primary DOWN routes to the backup.
	_, err = env.db.Exec(ctx, `UPDATE providers SET health_status = 'DOWN' WHERE name = 'stub'`)
	require.NoError(t, err)

	order2, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID: user.ID, ServiceCode: "whatsapp", Country: "US",
	})
	require.NoError(t, err)
	assert.Equal(t, "backup", order2.ProviderName)
}

func TestOrderAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 10_000_000)

	order, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID: user.ID, ServiceCode: "whatsapp", Country: "US",
	})
	require.NoError(t, err)

	var actions []string
	rows, err := env.db.Query(ctx,
		`SELECT action FROM system_logs WHERE entity_type = 'order' AND entity_id = $1 ORDER BY id ASC`, order.ID)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var action string
		require.NoError(t, rows.Scan(&action))
		actions = append(actions, action)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"order.created", "order.dispatch", "order.number_reserved"}, actions)
}

func TestLedgerChainSurvivesFullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 50_000_000)
	ledger := NewLedgerService(env.store)

	// Mix of outcomes: one completed, one cancelled, one provider failure.
	completedOrder, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID: user.ID, ServiceCode: "whatsapp", Country: "US",
	})
	require.NoError(t, err)
	env.adapter.setPollCode(&provider.Code{Code: "111222"})
	_, err = env.orders.RefreshOrderStatus(ctx, completedOrder.ID, &user.ID)
	require.NoError(t, err)
	env.adapter.setPollCode(nil)

	cancelledOrder, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID: user.ID, ServiceCode: "telegram", Country: "US",
	})
	require.NoError(t, err)
	_, err = env.orders.CancelOrder(ctx, cancelledOrder.ID, user.ID)
	require.NoError(t, err)

	env.adapter.setReserveErr(provider.ErrProviderUnavailable)
	_, err = env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID: user.ID, ServiceCode: "google", Country: "US",
	})
	require.ErrorIs(t, err, models.ErrProviderRequest)

	breaks, err := ledger.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, breaks)

	// Only the completed order's price was consumed.
	assert.Equal(t, int64(50_000_000-1_200_000), env.userBalance(t, user.ID))
}

func TestLedgerDetectsTampering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 10_000_000)
	ledger := NewLedgerService(env.store)

	_, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID: user.ID, ServiceCode: "whatsapp", Country: "US",
	})
	require.NoError(t, err)

	_, err = env.db.Exec(ctx, `UPDATE users SET balance_micros = balance_micros + 999 WHERE id = $1`, user.ID)
	require.NoError(t, err)

	breaks, err := ledger.Run(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, breaks)
	assert.Equal(t, user.ID, breaks[0].UserID)
}

func TestPricingRuleDrivesOrderPrice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 10_000_000)

	svc := "whatsapp"
	country := "US"
	rule := &models.PricingRule{
		ID:          uuid.New(),
		ServiceCode: &svc,
		Country:     &country,
		ProfitType:  domain.ProfitTypePercentage,
		ProfitValue: 50,
		Priority:    5,
		IsActive:    true,
	}
	require.NoError(t, env.store.Queries().CreatePricingRule(ctx, rule))
	env.pricing.InvalidateRules()

	order, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID: user.ID, ServiceCode: svc, Country: country,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), order.ProfitMicros)
	assert.Equal(t, int64(1_500_000), order.FinalPriceMicros)
}

func TestConcurrentCancelAndExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 10_000_000)

	order, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID: user.ID, ServiceCode: "whatsapp", Country: "US",
	})
	require.NoError(t, err)
	_, err = env.db.Exec(ctx, `UPDATE orders SET expires_at = NOW() - INTERVAL '1 minute' WHERE id = $1`, order.ID)
	require.NoError(t, err)

	// Race the user cancel against the expiry sweep. Whoever wins, exactly
	// one refund lands.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = env.orders.CancelOrder(ctx, order.ID, user.ID)
	}()
	_, err = env.orders.ExpireOverdueOrders(ctx, 50)
	require.NoError(t, err)
	<-done

	assert.Equal(t, int64(10_000_000), env.userBalance(t, user.ID))
	assert.Equal(t, 1, env.countTransactions(t, user.ID, domain.TxTypeRefund))

	got, err := env.orders.GetOrder(ctx, order.ID, nil)
	require.NoError(t, err)
	assert.True(t, domain.IsTerminalOrderStatus(got.Status))
}

func TestRefreshUsesCacheForTerminalOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 10_000_000)

	order, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
		UserID: user.ID, ServiceCode: "whatsapp", Country: "US",
	})
	require.NoError(t, err)
	env.adapter.setPollCode(&provider.Code{Code: "999000"})

	first, err := env.orders.RefreshOrderStatus(ctx, order.ID, &user.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCompleted, first.Status)

	// nil redis means a cache miss every time; the read path must still work.
	second, err := env.orders.RefreshOrderStatus(ctx, order.ID, &user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, second.Status)
	require.NotNil(t, second.SMSCode)
	assert.Equal(t, "999000", *second.SMSCode)

	_, err = env.orders.RefreshOrderStatus(ctx, order.ID, &uuid.Nil)
	require.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestCreateOrdersConcurrentlySpendAtMostBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// Room for exactly two orders at 1.2 each.
	user := seedUser(t, env.store, 2_400_000)

	const attempts = 5
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			_, err := env.orders.CreateOrder(ctx, CreateOrderCmd{
				UserID: user.ID, ServiceCode: "whatsapp", Country: "US",
			})
			errs <- err
		}()
	}

	succeeded := 0
	for i := 0; i < attempts; i++ {
		if err := <-errs; err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, models.ErrInsufficientBalance)
		}
	}
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, int64(0), env.userBalance(t, user.ID))

	ledger := NewLedgerService(env.store)
	breaks, err := ledger.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, breaks)
}

func TestStatusCacheSnapshotKeepsFullOrder(t *testing.T) {
	extID := "ext-8841"
	phone := "+447700900123"
	code := "481516"
	now := time.Now().UTC().Truncate(time.Second)
	order := &models.Order{
		ID:               uuid.New(),
		OrderNumber:      "ORD-20260831-ABCDEF01",
		UserID:           uuid.New(),
		ServiceCode:      "telegram",
		Country:          "GB",
		ProviderName:     "stub",
		BaseCostMicros:   1_000_000,
		ProfitMicros:     200_000,
		FinalPriceMicros: 1_200_000,
		Currency:         "USD",
		Status:           domain.OrderStatusCompleted,
		ExternalID:       &extID,
		PhoneNumber:      &phone,
		SMSCode:          &code,
		ExpiresAt:        now.Add(20 * time.Minute),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// A cache hit must serve the same document a database read would.
	entry := statusEntry(order)
	got := orderFromEntry(&entry)
	assert.Equal(t, order, got)
	assert.Equal(t, "ORD-20260831-ABCDEF01", got.OrderNumber)
	assert.Equal(t, int64(1_200_000), got.FinalPriceMicros)
	assert.Equal(t, "USD", got.Currency)
}

// failNthTxStore delegates to the real store but fails one RunInTx call,
// picked by ordinal.
type failNthTxStore struct {
	*repository.Store
	failOn int
	calls  int
}

var errTxInjected = errors.New("injected transaction failure")

func (s *failNthTxStore) RunInTx(ctx context.Context, fn func(q *repository.Queries) error) error {
	s.calls++
	if s.calls == s.failOn {
		return errTxInjected
	}
	return s.Store.RunInTx(ctx, fn)
}

func TestCreateOrderDispatchFailureRefunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 10_000_000)

	// The second transaction is the PENDING -> PROCESSING dispatch. Failing it
	// leaves the debit committed with nothing in flight at the vendor.
	flaky := &failNthTxStore{Store: env.store, failOn: 2}
	orders := NewOrderService(flaky, env.registry, env.pricing, env.wallet, env.audit,
		statuscache.New(nil, time.Minute), 20*time.Minute)

	_, err := orders.CreateOrder(ctx, CreateOrderCmd{
		UserID:      user.ID,
		ServiceCode: "whatsapp",
		Country:     "US",
	})
	require.ErrorIs(t, err, errTxInjected)

	// The charge is compensated right away, not left for the expiry sweep.
	assert.Equal(t, int64(10_000_000), env.userBalance(t, user.ID))
	assert.Equal(t, 1, env.countTransactions(t, user.ID, domain.TxTypeOrderPayment))
	assert.Equal(t, 1, env.countTransactions(t, user.ID, domain.TxTypeRefund))

	listed, err := env.orders.ListOrders(ctx, user.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, domain.OrderStatusFailed, listed[0].Status)
}
