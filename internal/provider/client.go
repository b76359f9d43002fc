package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/enobongmedem-code/darnumber-sub000/internal/observability"
	"github.com/sethgrid/pester"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// ClientOptions tunes the shared vendor HTTP client.
type ClientOptions struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	RateLimit   int // requests per second against this vendor
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 500 * time.Millisecond
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 5
	}
	return o
}

// httpClient wraps pester with per-vendor rate limiting and explicit 429
// handling. Pester retries transient network errors and 5xx with
// exponential jitter backoff; 429 is handled here instead so a Retry-After
// header can be honored.
type httpClient struct {
	provider    string
	pester      *pester.Client
	limiter     ratelimit.Limiter
	maxRetries  int
	backoffBase time.Duration
}

func newHTTPClient(provider string, opts ClientOptions) *httpClient {
	opts = opts.withDefaults()

	p := pester.New()
	p.Concurrency = 1
	p.MaxRetries = opts.MaxRetries
	p.Backoff = pester.ExponentialJitterBackoff
	p.RetryOnHTTP429 = false
	p.Timeout = opts.Timeout

	return &httpClient{
		provider:    provider,
		pester:      p,
		limiter:     ratelimit.New(opts.RateLimit),
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
	}
}

type request struct {
	method  string
	url     string
	headers map[string]string
	body    []byte
}

// doJSON performs the request and decodes a 2xx JSON body into out. A nil
// out skips decoding. Returns the raw body alongside for vendors that encode
// errors inside 200 responses.
func (c *httpClient) doJSON(ctx context.Context, op string, req request, out any) ([]byte, error) {
	start := time.Now()
	body, err := c.do(ctx, req)
	result := "ok"
	if err != nil {
		result = "error"
	}
	observability.ObserveProviderRequest(c.provider, op, result, time.Since(start))
	if err != nil {
		return nil, err
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("%w: malformed response: %v", ErrProviderUnavailable, err)
		}
	}
	return body, nil
}

func (c *httpClient) do(ctx context.Context, req request) ([]byte, error) {
	var lastDelay time.Duration
	for attempt := 0; ; attempt++ {
		c.limiter.Take()

		var reader io.Reader
		if len(req.body) > 0 {
			reader = bytes.NewReader(req.body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, reader)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		for k, v := range req.headers {
			httpReq.Header.Set(k, v)
		}

		resp, err := c.pester.Do(httpReq)
		if err != nil {
			// Pester already retried transient failures with backoff.
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, readErr)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			if attempt >= c.maxRetries {
				return nil, fmt.Errorf("%w: %s", ErrRateLimited, req.url)
			}
			lastDelay = c.retryAfter(resp, attempt)
			zap.L().Warn("provider rate limited, backing off",
				zap.String("provider", c.provider),
				zap.Duration("delay", lastDelay),
				zap.Int("attempt", attempt+1),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(lastDelay):
			}
		default:
			// Remaining 4xx/5xx are permanent from the caller's view.
			return nil, fmt.Errorf("%w: unexpected status %d", ErrProviderUnavailable, resp.StatusCode)
		}
	}
}

// retryAfter honors a Retry-After header in seconds, falling back to
// exponential backoff from the configured base.
func (c *httpClient) retryAfter(resp *http.Response, attempt int) time.Duration {
	if raw := resp.Header.Get("Retry-After"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.backoffBase << uint(attempt)
}
