package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

const smsManName = "smsman"

// smsManCountries maps ISO country codes to SMS-Man's internal numeric ids.
var smsManCountries = map[string]string{
	"RU": "0",
	"UA": "1",
	"KZ": "2",
	"US": "5",
	"GB": "22",
	"IN": "14",
	"ID": "15",
	"NG": "30",
	"BR": "33",
	"DE": "43",
	"FR": "78",
}

// smsManApplications maps our service codes to SMS-Man application ids.
var smsManApplications = map[string]string{
	"whatsapp":  "1",
	"telegram":  "2",
	"google":    "3",
	"facebook":  "4",
	"instagram": "5",
	"twitter":   "6",
	"discord":   "12",
	"tiktok":    "28",
}

// smsManCosts carries the vendor list price per service in micros. SMS-Man
// prices per application, not per country.
var smsManCosts = map[string]int64{
	"whatsapp":  350_000,
	"telegram":  420_000,
	"google":    200_000,
	"facebook":  180_000,
	"instagram": 220_000,
	"twitter":   250_000,
	"discord":   190_000,
	"tiktok":    280_000,
}

// SMSMan talks to the SMS-Man control API. Authentication is an API token
// passed as a query parameter on every call; externalID is the numeric
// request id SMS-Man assigns to a reservation.
type SMSMan struct {
	baseURL string
	apiKey  string
	client  *httpClient
}

func NewSMSMan(baseURL, apiKey string, opts ClientOptions) *SMSMan {
	return &SMSMan{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  newHTTPClient(smsManName, opts),
	}
}

func (s *SMSMan) Name() string { return smsManName }

func (s *SMSMan) Supports(serviceCode, country string) bool {
	_, okSvc := smsManApplications[serviceCode]
	_, okCountry := smsManCountries[country]
	return okSvc && okCountry
}

func (s *SMSMan) ServiceCost(serviceCode, country string) (int64, error) {
	if !s.Supports(serviceCode, country) {
		return 0, fmt.Errorf("%w: %s/%s", ErrServiceNotSupported, serviceCode, country)
	}
	return smsManCosts[serviceCode], nil
}

type smsManNumberResponse struct {
	RequestID    json.Number `json:"request_id"`
	Number       string      `json:"number"`
	ErrorCode    string      `json:"error_code"`
	ErrorMessage string      `json:"error_msg"`
}

func (s *SMSMan) RequestNumber(ctx context.Context, serviceCode, country string) (*Reservation, error) {
	appID, ok := smsManApplications[serviceCode]
	if !ok {
		return nil, fmt.Errorf("%w: service %s", ErrServiceNotSupported, serviceCode)
	}
	countryID, ok := smsManCountries[country]
	if !ok {
		return nil, fmt.Errorf("%w: country %s", ErrServiceNotSupported, country)
	}

	var resp smsManNumberResponse
	_, err := s.client.doJSON(ctx, "request_number", request{
		method: "GET",
		url: s.controlURL("get-number", url.Values{
			"country_id":     {countryID},
			"application_id": {appID},
		}),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ErrorCode != "" {
		return nil, fmt.Errorf("%w: %s (%s)", ErrProviderUnavailable, resp.ErrorCode, resp.ErrorMessage)
	}
	if resp.Number == "" || resp.RequestID.String() == "" {
		return nil, fmt.Errorf("%w: incomplete get-number response", ErrProviderUnavailable)
	}

	return &Reservation{
		ExternalID:  resp.RequestID.String(),
		PhoneNumber: resp.Number,
		CostMicros:  smsManCosts[serviceCode],
	}, nil
}

func (s *SMSMan) CancelNumber(ctx context.Context, externalID string) error {
	var resp smsManNumberResponse
	_, err := s.client.doJSON(ctx, "cancel_number", request{
		method: "GET",
		url: s.controlURL("set-status", url.Values{
			"request_id": {externalID},
			"status":     {"reject"},
		}),
	}, &resp)
	if err != nil {
		return err
	}
	if resp.ErrorCode != "" {
		return fmt.Errorf("%w: %s", ErrProviderUnavailable, resp.ErrorCode)
	}
	return nil
}

type smsManSMSResponse struct {
	SMSCode      string `json:"sms_code"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_msg"`
}

func (s *SMSMan) PollForCode(ctx context.Context, externalID string) (*Code, error) {
	var resp smsManSMSResponse
	_, err := s.client.doJSON(ctx, "poll_for_code", request{
		method: "GET",
		url: s.controlURL("get-sms", url.Values{
			"request_id": {externalID},
		}),
	}, &resp)
	if err != nil {
		return nil, err
	}
	// wait_sms means no code has arrived yet, which is the normal case.
	if resp.ErrorCode == "wait_sms" {
		return nil, nil
	}
	if resp.ErrorCode != "" {
		return nil, fmt.Errorf("%w: %s (%s)", ErrProviderUnavailable, resp.ErrorCode, resp.ErrorMessage)
	}
	if resp.SMSCode == "" {
		return nil, nil
	}
	// The vendor delivers only the extracted code, never the message body.
	return &Code{
		Code:  resp.SMSCode,
		State: "received",
	}, nil
}

func (s *SMSMan) Ping(ctx context.Context) error {
	_, err := s.client.doJSON(ctx, "ping", request{
		method: "GET",
		url:    s.controlURL("get-balance", nil),
	}, nil)
	return err
}

func (s *SMSMan) controlURL(endpoint string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("token", s.apiKey)
	return fmt.Sprintf("%s/control/%s?%s", s.baseURL, endpoint, params.Encode())
}
