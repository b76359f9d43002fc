package statuscache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/enobongmedem-code/darnumber-sub000/internal/models"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/1"
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	return rdb
}

func TestNilClientDegradesToMiss(t *testing.T) {
	c := New(nil, time.Minute)
	id := uuid.New()

	require.Nil(t, c.Get(context.Background(), id))
	c.Set(context.Background(), Entry{Order: models.Order{ID: id, Status: "PENDING"}})
	c.Invalidate(context.Background(), id)
	require.Nil(t, c.Get(context.Background(), id))
	require.Error(t, c.Ping(context.Background()))
}

func TestSetGetInvalidate(t *testing.T) {
	rdb := testRedis(t)
	defer rdb.Close()
	c := New(rdb, time.Minute)
	ctx := context.Background()

	id := uuid.New()
	require.Nil(t, c.Get(ctx, id))

	phone := "19171234567"
	c.Set(ctx, Entry{Order: models.Order{
		ID:               id,
		OrderNumber:      "ORD-20260831-AAAA0001",
		ServiceCode:      "telegram",
		Country:          "US",
		FinalPriceMicros: 1_200_000,
		Currency:         "USD",
		Status:           "WAITING_FOR_SMS",
		PhoneNumber:      &phone,
		ExpiresAt:        time.Now().Add(20 * time.Minute).UTC(),
	}})

	got := c.Get(ctx, id)
	require.NotNil(t, got)
	require.Equal(t, "WAITING_FOR_SMS", got.Order.Status)
	require.NotNil(t, got.Order.PhoneNumber)
	require.Equal(t, phone, *got.Order.PhoneNumber)
	// The snapshot keeps the full document, not just the status fields.
	require.Equal(t, "ORD-20260831-AAAA0001", got.Order.OrderNumber)
	require.Equal(t, int64(1_200_000), got.Order.FinalPriceMicros)
	require.Equal(t, "USD", got.Order.Currency)

	c.Invalidate(ctx, id)
	require.Nil(t, c.Get(ctx, id))
}

func TestCorruptEntryDropped(t *testing.T) {
	rdb := testRedis(t)
	defer rdb.Close()
	c := New(rdb, time.Minute)
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, rdb.Set(ctx, keyPrefix+id.String(), "not-json", time.Minute).Err())

	require.Nil(t, c.Get(ctx, id))
	// The corrupt key is deleted, not left to poison every poll.
	require.Equal(t, int64(0), rdb.Exists(ctx, keyPrefix+id.String()).Val())
}

func TestEntriesExpire(t *testing.T) {
	rdb := testRedis(t)
	defer rdb.Close()
	c := New(rdb, time.Second)
	ctx := context.Background()

	id := uuid.New()
	c.Set(ctx, Entry{Order: models.Order{ID: id, Status: "COMPLETED"}})
	require.NotNil(t, c.Get(ctx, id))

	ttl := rdb.TTL(ctx, keyPrefix+id.String()).Val()
	require.True(t, ttl > 0 && ttl <= time.Second)
}
