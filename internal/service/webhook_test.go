package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enobongmedem-code/darnumber-sub000/internal/domain"
	"github.com/enobongmedem-code/darnumber-sub000/internal/models"
)

const webhookTestKey = "test-webhook-secret"

func signPayload(t *testing.T, key string, payload []byte) string {
	t.Helper()
	h := hmac.New(sha256.New, []byte(key))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

func depositPayload(t *testing.T, userID string, amountMicros int64, reference string) []byte {
	t.Helper()
	body, err := json.Marshal(DepositWebhookPayload{
		UserID:       userID,
		AmountMicros: amountMicros,
		Currency:     "USD",
		Reference:    reference,
	})
	require.NoError(t, err)
	return body
}

func TestDepositWebhookCreditsUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 0)
	svc := NewWebhookService(env.store, env.wallet, webhookTestKey, false)

	payload := depositPayload(t, user.ID.String(), 10_000_000, "gw-001")
	resp, err := svc.HandleDepositWebhook(ctx, payload, signPayload(t, webhookTestKey, payload))
	require.NoError(t, err)

	assert.Equal(t, domain.TxStatusCompleted, resp.Status)
	assert.Equal(t, "Deposit processed successfully", resp.Message)
	assert.Equal(t, int64(10_000_000), env.userBalance(t, user.ID))
}

func TestDepositWebhookReplayedReferenceCreditsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 0)
	svc := NewWebhookService(env.store, env.wallet, webhookTestKey, false)

	payload := depositPayload(t, user.ID.String(), 4_000_000, "gw-replay")
	sig := signPayload(t, webhookTestKey, payload)

	first, err := svc.HandleDepositWebhook(ctx, payload, sig)
	require.NoError(t, err)

	second, err := svc.HandleDepositWebhook(ctx, payload, sig)
	require.NoError(t, err)

	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, "Deposit already processed", second.Message)
	assert.Equal(t, int64(4_000_000), env.userBalance(t, user.ID))
	assert.Equal(t, 1, env.countTransactions(t, user.ID, domain.TxTypeDeposit))
}

func TestDepositWebhookReferenceReuseWithDifferentAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 0)
	svc := NewWebhookService(env.store, env.wallet, webhookTestKey, false)

	payload := depositPayload(t, user.ID.String(), 2_000_000, "gw-dup")
	_, err := svc.HandleDepositWebhook(ctx, payload, signPayload(t, webhookTestKey, payload))
	require.NoError(t, err)

	altered := depositPayload(t, user.ID.String(), 9_000_000, "gw-dup")
	_, err = svc.HandleDepositWebhook(ctx, altered, signPayload(t, webhookTestKey, altered))
	require.ErrorIs(t, err, ErrDepositPayloadMismatch)
	assert.Equal(t, int64(2_000_000), env.userBalance(t, user.ID))
}

func TestDepositWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	user := seedUser(t, env.store, 0)
	svc := NewWebhookService(env.store, env.wallet, webhookTestKey, false)

	payload := depositPayload(t, user.ID.String(), 1_000_000, "gw-bad-sig")
	_, err := svc.HandleDepositWebhook(context.Background(), payload, signPayload(t, "wrong-key", payload))
	require.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, int64(0), env.userBalance(t, user.ID))
}

func TestDepositWebhookSkipSignatureMode(t *testing.T) {
	env := newTestEnv(t)
	user := seedUser(t, env.store, 0)
	svc := NewWebhookService(env.store, env.wallet, webhookTestKey, true)

	payload := depositPayload(t, user.ID.String(), 1_500_000, "gw-dev")
	_, err := svc.HandleDepositWebhook(context.Background(), payload, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000), env.userBalance(t, user.ID))
}

func TestDepositWebhookValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := seedUser(t, env.store, 0)
	svc := NewWebhookService(env.store, env.wallet, webhookTestKey, true)

	tests := []struct {
		name    string
		payload DepositWebhookPayload
	}{
		{"zero amount", DepositWebhookPayload{UserID: user.ID.String(), AmountMicros: 0, Reference: "r1"}},
		{"negative amount", DepositWebhookPayload{UserID: user.ID.String(), AmountMicros: -100, Reference: "r2"}},
		{"missing reference", DepositWebhookPayload{UserID: user.ID.String(), AmountMicros: 1_000_000}},
		{"bad user id", DepositWebhookPayload{UserID: "not-a-uuid", AmountMicros: 1_000_000, Reference: "r3"}},
		{"currency mismatch", DepositWebhookPayload{UserID: user.ID.String(), AmountMicros: 1_000_000, Currency: "EUR", Reference: "r4"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body, err := json.Marshal(tc.payload)
			require.NoError(t, err)
			_, err = svc.HandleDepositWebhook(ctx, body, "")
			require.Error(t, err)
		})
	}
	assert.Equal(t, int64(0), env.userBalance(t, user.ID))
}

func TestDepositWebhookUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	svc := NewWebhookService(env.store, env.wallet, webhookTestKey, true)

	payload := depositPayload(t, "00000000-0000-0000-0000-0000000000aa", 1_000_000, "gw-nouser")
	_, err := svc.HandleDepositWebhook(context.Background(), payload, "")
	require.ErrorIs(t, err, models.ErrUserNotFound)
}
