package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTextVerifiedServer stands up a vendor stub covering auth, verification
// creation and detail fetches, counting auth calls.
func newTextVerifiedServer(t *testing.T, authCalls *atomic.Int32, detail textVerifiedVerification) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/pub/v2/auth":
			authCalls.Add(1)
			require.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
			require.Equal(t, "tester@example.com", r.Header.Get("X-API-USERNAME"))
			json.NewEncoder(w).Encode(textVerifiedAuthResponse{
				Token:     "tok-123",
				ExpiresAt: time.Now().Add(time.Hour),
			})
		case "/api/pub/v2/verifications":
			require.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]string{
				"href": srv.URL + "/api/pub/v2/verifications/v-1",
			})
		case "/api/pub/v2/verifications/v-1":
			require.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(detail)
		default:
			http.NotFound(w, r)
		}
	}))
	return srv
}

func TestTextVerifiedRequestNumber(t *testing.T) {
	var authCalls atomic.Int32
	srv := newTextVerifiedServer(t, &authCalls, textVerifiedVerification{
		ID:     "v-1",
		Number: "12025550117",
		State:  "verificationPending",
	})
	defer srv.Close()

	adapter := NewTextVerified(srv.URL, "test-key", "tester@example.com", fastOpts())
	res, err := adapter.RequestNumber(context.Background(), "whatsapp", "US")
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/api/pub/v2/verifications/v-1", res.ExternalID)
	require.Equal(t, "12025550117", res.PhoneNumber)
	require.Equal(t, textVerifiedCosts["whatsapp"], res.CostMicros)
	require.Equal(t, int32(1), authCalls.Load())
}

func TestTextVerifiedTokenCachedAcrossCalls(t *testing.T) {
	var authCalls atomic.Int32
	srv := newTextVerifiedServer(t, &authCalls, textVerifiedVerification{
		ID:     "v-1",
		Number: "12025550117",
	})
	defer srv.Close()

	adapter := NewTextVerified(srv.URL, "test-key", "tester@example.com", fastOpts())
	href := srv.URL + "/api/pub/v2/verifications/v-1"

	_, err := adapter.PollForCode(context.Background(), href)
	require.NoError(t, err)
	_, err = adapter.PollForCode(context.Background(), href)
	require.NoError(t, err)
	require.NoError(t, adapter.Ping(context.Background()))

	require.Equal(t, int32(1), authCalls.Load())
}

func TestTextVerifiedTokenNearExpiryGetsShortTTL(t *testing.T) {
	// Vendor expiry inside the refresh margin still caches for the floor
	// duration rather than serving an already-stale entry forever.
	var authCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCalls.Add(1)
		json.NewEncoder(w).Encode(textVerifiedAuthResponse{
			Token:     fmt.Sprintf("tok-%d", authCalls.Load()),
			ExpiresAt: time.Now().Add(time.Minute),
		})
	}))
	defer srv.Close()

	adapter := NewTextVerified(srv.URL, "k", "u", fastOpts())
	tok, err := adapter.bearerToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok)

	_, expiry, ok := adapter.tokens.GetWithExpiration(tokenCacheKey)
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(time.Minute), expiry, 5*time.Second)
}

func TestTextVerifiedPollNoSMSYet(t *testing.T) {
	var authCalls atomic.Int32
	srv := newTextVerifiedServer(t, &authCalls, textVerifiedVerification{
		ID:    "v-1",
		State: "verificationPending",
	})
	defer srv.Close()

	adapter := NewTextVerified(srv.URL, "test-key", "tester@example.com", fastOpts())
	code, err := adapter.PollForCode(context.Background(), srv.URL+"/api/pub/v2/verifications/v-1")
	require.NoError(t, err)
	require.Nil(t, code)
}

func TestTextVerifiedPollCodeArrived(t *testing.T) {
	var authCalls atomic.Int32
	detail := textVerifiedVerification{ID: "v-1", State: "verificationCompleted"}
	detail.SMS = []struct {
		Code string `json:"parsedCode"`
		Body string `json:"smsContent"`
	}{{Code: "771204", Body: "Your code is 771204"}}

	srv := newTextVerifiedServer(t, &authCalls, detail)
	defer srv.Close()

	adapter := NewTextVerified(srv.URL, "test-key", "tester@example.com", fastOpts())
	code, err := adapter.PollForCode(context.Background(), srv.URL+"/api/pub/v2/verifications/v-1")
	require.NoError(t, err)
	require.NotNil(t, code)
	require.Equal(t, "771204", code.Code)
	require.Equal(t, "Your code is 771204", code.Message)
	require.Equal(t, "verificationCompleted", code.State)
}

func TestTextVerifiedOnlySellsUSNumbers(t *testing.T) {
	adapter := NewTextVerified("http://unused.invalid", "k", "u", fastOpts())
	require.True(t, adapter.Supports("whatsapp", "US"))
	require.False(t, adapter.Supports("whatsapp", "GB"))
	require.False(t, adapter.Supports("unknown_service", "US"))

	_, err := adapter.RequestNumber(context.Background(), "whatsapp", "GB")
	require.ErrorIs(t, err, ErrServiceNotSupported)
}

func TestTextVerifiedAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	adapter := NewTextVerified(srv.URL, "bad-key", "u", fastOpts())
	_, err := adapter.RequestNumber(context.Background(), "whatsapp", "US")
	require.ErrorIs(t, err, ErrProviderUnavailable)
	require.ErrorIs(t, adapter.Ping(context.Background()), ErrProviderUnavailable)
}
