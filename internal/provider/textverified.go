package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const textVerifiedName = "textverified"

// tokenRefreshMargin refreshes bearer tokens well before vendor expiry so a
// token never goes stale mid-request.
const tokenRefreshMargin = 10 * time.Minute

const tokenCacheKey = "bearer"

// textVerifiedServices maps our service codes to TextVerified service
// names. TextVerified only sells US numbers.
var textVerifiedServices = map[string]string{
	"whatsapp":  "whatsapp",
	"telegram":  "telegram",
	"google":    "google",
	"discord":   "discord",
	"tinder":    "tinder",
	"uber":      "uber",
	"venmo":     "venmo",
	"instagram": "instagram",
}

var textVerifiedCosts = map[string]int64{
	"whatsapp":  1_250_000,
	"telegram":  1_500_000,
	"google":    900_000,
	"discord":   950_000,
	"tinder":    1_100_000,
	"uber":      850_000,
	"venmo":     1_400_000,
	"instagram": 1_050_000,
}

// TextVerified talks to the TextVerified v2 API. Authentication is a bearer
// token obtained from the API key and cached until shortly before expiry;
// externalID is the full verification resource URL the vendor returns.
type TextVerified struct {
	baseURL  string
	apiKey   string
	username string
	client   *httpClient

	tokens    *gocache.Cache
	refreshMu sync.Mutex
}

func NewTextVerified(baseURL, apiKey, username string, opts ClientOptions) *TextVerified {
	return &TextVerified{
		baseURL:  baseURL,
		apiKey:   apiKey,
		username: username,
		client:   newHTTPClient(textVerifiedName, opts),
		tokens:   gocache.New(gocache.NoExpiration, 5*time.Minute),
	}
}

func (t *TextVerified) Name() string { return textVerifiedName }

func (t *TextVerified) Supports(serviceCode, country string) bool {
	_, ok := textVerifiedServices[serviceCode]
	return ok && country == "US"
}

func (t *TextVerified) ServiceCost(serviceCode, country string) (int64, error) {
	if !t.Supports(serviceCode, country) {
		return 0, fmt.Errorf("%w: %s/%s", ErrServiceNotSupported, serviceCode, country)
	}
	return textVerifiedCosts[serviceCode], nil
}

type textVerifiedAuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// bearerToken returns a cached token, refreshing when absent. The mutex
// serializes refresh among concurrent callers sharing this adapter; a token
// past its margin is never served.
func (t *TextVerified) bearerToken(ctx context.Context) (string, error) {
	if tok, ok := t.tokens.Get(tokenCacheKey); ok {
		return tok.(string), nil
	}

	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()
	if tok, ok := t.tokens.Get(tokenCacheKey); ok {
		return tok.(string), nil
	}

	var resp textVerifiedAuthResponse
	_, err := t.client.doJSON(ctx, "auth", request{
		method: "POST",
		url:    t.baseURL + "/api/pub/v2/auth",
		headers: map[string]string{
			"X-API-KEY":      t.apiKey,
			"X-API-USERNAME": t.username,
		},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: empty auth token", ErrProviderUnavailable)
	}

	ttl := time.Until(resp.ExpiresAt) - tokenRefreshMargin
	if ttl <= 0 {
		ttl = time.Minute
	}
	t.tokens.Set(tokenCacheKey, resp.Token, ttl)
	return resp.Token, nil
}

type textVerifiedCreateResponse struct {
	Href string `json:"href"`
}

type textVerifiedVerification struct {
	ID     string `json:"id"`
	Number string `json:"number"`
	State  string `json:"state"`
	SMS    []struct {
		Code string `json:"parsedCode"`
		Body string `json:"smsContent"`
	} `json:"sms"`
}

func (t *TextVerified) RequestNumber(ctx context.Context, serviceCode, country string) (*Reservation, error) {
	serviceName, ok := textVerifiedServices[serviceCode]
	if !ok || country != "US" {
		return nil, fmt.Errorf("%w: %s/%s", ErrServiceNotSupported, serviceCode, country)
	}

	token, err := t.bearerToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]string{
		"serviceName": serviceName,
		"capability":  "sms",
	})
	var created textVerifiedCreateResponse
	_, err = t.client.doJSON(ctx, "request_number", request{
		method: "POST",
		url:    t.baseURL + "/api/pub/v2/verifications",
		headers: map[string]string{
			"Authorization": "Bearer " + token,
			"Content-Type":  "application/json",
		},
		body: payload,
	}, &created)
	if err != nil {
		return nil, err
	}
	if created.Href == "" {
		return nil, fmt.Errorf("%w: missing verification href", ErrProviderUnavailable)
	}

	detail, err := t.fetchVerification(ctx, "request_number_detail", created.Href, token)
	if err != nil {
		return nil, err
	}
	if detail.Number == "" {
		return nil, fmt.Errorf("%w: verification has no number", ErrProviderUnavailable)
	}

	return &Reservation{
		ExternalID:  created.Href,
		PhoneNumber: detail.Number,
		CostMicros:  textVerifiedCosts[serviceCode],
	}, nil
}

func (t *TextVerified) CancelNumber(ctx context.Context, externalID string) error {
	token, err := t.bearerToken(ctx)
	if err != nil {
		return err
	}
	_, err = t.client.doJSON(ctx, "cancel_number", request{
		method: "POST",
		url:    strings.TrimRight(externalID, "/") + "/cancel",
		headers: map[string]string{
			"Authorization": "Bearer " + token,
		},
	}, nil)
	return err
}

func (t *TextVerified) PollForCode(ctx context.Context, externalID string) (*Code, error) {
	token, err := t.bearerToken(ctx)
	if err != nil {
		return nil, err
	}
	detail, err := t.fetchVerification(ctx, "poll_for_code", externalID, token)
	if err != nil {
		return nil, err
	}
	if len(detail.SMS) == 0 || detail.SMS[0].Code == "" {
		return nil, nil
	}
	return &Code{
		Code:    detail.SMS[0].Code,
		Message: detail.SMS[0].Body,
		State:   detail.State,
	}, nil
}

func (t *TextVerified) Ping(ctx context.Context) error {
	_, err := t.bearerToken(ctx)
	return err
}

func (t *TextVerified) fetchVerification(ctx context.Context, op, href, token string) (*textVerifiedVerification, error) {
	var detail textVerifiedVerification
	_, err := t.client.doJSON(ctx, op, request{
		method: "GET",
		url:    href,
		headers: map[string]string{
			"Authorization": "Bearer " + token,
		},
	}, &detail)
	if err != nil {
		return nil, err
	}
	return &detail, nil
}
