package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// TwilioGateway places and controls outbound calls through the Twilio REST
// API. It deliberately avoids the provider SDK; the three endpoints we need
// are plain form POSTs.
type TwilioGateway struct {
	accountSID string
	authToken  string
	fromNumber string

	// baseURL of this deployment; Twilio calls back to
	// <baseURL>/webhooks/twilio/turn and /webhooks/twilio/status.
	baseURL string

	defaultCountryCode string

	httpClient *http.Client
	apiBase    string
}

type TwilioConfig struct {
	AccountSID         string
	AuthToken          string
	FromNumber         string
	PublicBaseURL      string
	DefaultCountryCode string

	// APIBase overrides the Twilio endpoint, for tests.
	APIBase string
	// HTTPClient overrides the default client, for tests.
	HTTPClient *http.Client
}

func NewTwilioGateway(cfg TwilioConfig) (*TwilioGateway, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("telephony: twilio credentials are required")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("telephony: twilio from number is required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("telephony: public base url is required")
	}
	g := &TwilioGateway{
		accountSID:         cfg.AccountSID,
		authToken:          cfg.AuthToken,
		fromNumber:         cfg.FromNumber,
		baseURL:            strings.TrimRight(cfg.PublicBaseURL, "/"),
		defaultCountryCode: cfg.DefaultCountryCode,
		httpClient:         cfg.HTTPClient,
		apiBase:            cfg.APIBase,
	}
	if g.httpClient == nil {
		g.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if g.apiBase == "" {
		g.apiBase = twilioAPIBase
	}
	return g, nil
}

func (g *TwilioGateway) Name() string { return "twilio" }

func (g *TwilioGateway) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	if req.CallID == "" || req.To == "" {
		return PlaceCallResult{}, fmt.Errorf("telephony: call id and destination are required")
	}

	turnURL := fmt.Sprintf("%s/webhooks/twilio/turn?call_id=%s", g.baseURL, url.QueryEscape(req.CallID))
	statusURL := g.baseURL + "/webhooks/twilio/status"

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", g.fromNumber)
	form.Set("Url", turnURL)
	form.Set("Method", "POST")
	form.Set("StatusCallback", statusURL)
	form.Set("StatusCallbackMethod", "POST")
	for _, ev := range []string{"ringing", "answered", "completed"} {
		form.Add("StatusCallbackEvent", ev)
	}

	var out struct {
		Sid string `json:"sid"`
	}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", g.apiBase, g.accountSID)
	if err := g.post(ctx, endpoint, form, &out); err != nil {
		return PlaceCallResult{}, err
	}
	if out.Sid == "" {
		return PlaceCallResult{}, fmt.Errorf("telephony: twilio returned no call sid")
	}
	return PlaceCallResult{ProviderCallID: out.Sid}, nil
}

func (g *TwilioGateway) CancelCall(ctx context.Context, providerCallID string) error {
	if providerCallID == "" {
		return fmt.Errorf("telephony: provider call id is required")
	}
	form := url.Values{}
	form.Set("Status", "completed")

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", g.apiBase, g.accountSID, url.PathEscape(providerCallID))
	return g.post(ctx, endpoint, form, nil)
}

func (g *TwilioGateway) RecordingURL(ctx context.Context, providerCallID string) (string, error) {
	if providerCallID == "" {
		return "", fmt.Errorf("telephony: provider call id is required")
	}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s/Recordings.json", g.apiBase, g.accountSID, url.PathEscape(providerCallID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	httpReq.SetBasicAuth(g.accountSID, g.authToken)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("telephony: twilio request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", twilioError(resp)
	}

	var out struct {
		Recordings []struct {
			Sid string `json:"sid"`
		} `json:"recordings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Recordings) == 0 {
		return "", nil
	}
	return fmt.Sprintf("%s/Accounts/%s/Recordings/%s.mp3", g.apiBase, g.accountSID, out.Recordings[0].Sid), nil
}

func (g *TwilioGateway) FormatPhoneNumber(raw string) (string, error) {
	return NormalizePhone(raw, g.defaultCountryCode)
}

func (g *TwilioGateway) post(ctx context.Context, endpoint string, form url.Values, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(g.accountSID, g.authToken)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("telephony: twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return twilioError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func twilioError(resp *http.Response) error {
	var e struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return fmt.Errorf("telephony: twilio error %d: %s", e.Code, e.Message)
	}
	return fmt.Errorf("telephony: twilio http %d", resp.StatusCode)
}
