package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastOpts() ClientOptions {
	return ClientOptions{
		Timeout:     2 * time.Second,
		MaxRetries:  2,
		BackoffBase: 10 * time.Millisecond,
		RateLimit:   1000,
	}
}

func TestSMSManRequestNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/control/get-number", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "test-key", q.Get("token"))
		require.Equal(t, "1", q.Get("application_id"))
		require.Equal(t, "5", q.Get("country_id"))
		w.Write([]byte(`{"request_id": 184503, "number": "19171234567"}`))
	}))
	defer srv.Close()

	adapter := NewSMSMan(srv.URL, "test-key", fastOpts())
	res, err := adapter.RequestNumber(context.Background(), "whatsapp", "US")
	require.NoError(t, err)
	require.Equal(t, "184503", res.ExternalID)
	require.Equal(t, "19171234567", res.PhoneNumber)
	require.Equal(t, smsManCosts["whatsapp"], res.CostMicros)
}

func TestSMSManUnknownServiceMapping(t *testing.T) {
	adapter := NewSMSMan("http://unused.invalid", "k", fastOpts())

	_, err := adapter.RequestNumber(context.Background(), "unknown_service", "US")
	require.ErrorIs(t, err, ErrServiceNotSupported)

	_, err = adapter.RequestNumber(context.Background(), "whatsapp", "ZZ")
	require.ErrorIs(t, err, ErrServiceNotSupported)

	_, err = adapter.ServiceCost("unknown_service", "ZZ")
	require.ErrorIs(t, err, ErrServiceNotSupported)
}

func TestSMSManPollNoCodeYet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error_code": "wait_sms", "error_msg": "not received"}`))
	}))
	defer srv.Close()

	adapter := NewSMSMan(srv.URL, "k", fastOpts())
	code, err := adapter.PollForCode(context.Background(), "184503")
	require.NoError(t, err)
	require.Nil(t, code)
}

func TestSMSManPollCodeArrived(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "184503", r.URL.Query().Get("request_id"))
		w.Write([]byte(`{"sms_code": "493817"}`))
	}))
	defer srv.Close()

	adapter := NewSMSMan(srv.URL, "k", fastOpts())
	code, err := adapter.PollForCode(context.Background(), "184503")
	require.NoError(t, err)
	require.NotNil(t, code)
	require.Equal(t, "493817", code.Code)
	// No message body comes back from this vendor, so none is fabricated.
	require.Empty(t, code.Message)
}

func TestSMSManMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway error</html>`))
	}))
	defer srv.Close()

	adapter := NewSMSMan(srv.URL, "k", fastOpts())
	_, err := adapter.RequestNumber(context.Background(), "whatsapp", "US")
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestSMSManPermanentClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	adapter := NewSMSMan(srv.URL, "bad-key", fastOpts())
	_, err := adapter.RequestNumber(context.Background(), "whatsapp", "US")
	require.ErrorIs(t, err, ErrProviderUnavailable)
	require.Equal(t, int32(1), hits.Load())
}

func TestSMSManRetriesOn429ThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"request_id": 7, "number": "19170000000"}`))
	}))
	defer srv.Close()

	adapter := NewSMSMan(srv.URL, "k", fastOpts())
	res, err := adapter.RequestNumber(context.Background(), "whatsapp", "US")
	require.NoError(t, err)
	require.Equal(t, "7", res.ExternalID)
	require.Equal(t, int32(2), hits.Load())
}

func TestSMSManRateLimitedAfterRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	adapter := NewSMSMan(srv.URL, "k", fastOpts())
	_, err := adapter.RequestNumber(context.Background(), "whatsapp", "US")
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestRetryAfterHeaderHonored(t *testing.T) {
	c := newHTTPClient("test", fastOpts())

	resp := &http.Response{Header: http.Header{"Retry-After": []string{"3"}}}
	require.Equal(t, 3*time.Second, c.retryAfter(resp, 0))

	resp = &http.Response{Header: http.Header{}}
	require.Equal(t, 10*time.Millisecond, c.retryAfter(resp, 0))
	require.Equal(t, 40*time.Millisecond, c.retryAfter(resp, 2))
}

func TestSMSManVendorErrorInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error_code": "balance", "error_msg": "no money"}`))
	}))
	defer srv.Close()

	adapter := NewSMSMan(srv.URL, "k", fastOpts())
	_, err := adapter.RequestNumber(context.Background(), "whatsapp", "US")
	require.ErrorIs(t, err, ErrProviderUnavailable)
	require.True(t, errors.Is(err, ErrProviderUnavailable))
}
