package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTwilioBaseURL = "https://api.twilio.com/2010-04-01"

// TwilioConfig configures TwilioProvider.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	HTTPClient *http.Client
}

// TwilioProvider talks to the Twilio Voice REST API.
type TwilioProvider struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
}

var _ Provider = (*TwilioProvider)(nil)

func NewTwilioProvider(cfg TwilioConfig) (*TwilioProvider, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" {
		return nil, errors.New("telephony: twilio account sid is required")
	}
	if cfg.AuthToken == "" {
		return nil, errors.New("telephony: twilio auth token is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultTwilioBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &TwilioProvider{
		accountSID: strings.TrimSpace(cfg.AccountSID),
		authToken:  cfg.AuthToken,
		baseURL:    base,
		httpClient: hc,
	}, nil
}

func (p *TwilioProvider) Name() string { return "twilio" }

// HealthCheck reads the account resource, which validates credentials without side effects.
func (p *TwilioProvider) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/Accounts/%s.json", p.baseURL, p.accountSID)
	return p.get(ctx, endpoint, nil)
}

// twilioCall is the subset of the Call resource we read.
type twilioCall struct {
	SID       string `json:"sid"`
	To        string `json:"to"`
	From      string `json:"from"`
	Status    string `json:"status"`
	Direction string `json:"direction"`
	Duration  string `json:"duration"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (p *TwilioProvider) CreateCall(ctx context.Context, req CreateCallRequest) (CreatedCall, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", p.baseURL, p.accountSID)

	data := url.Values{}
	data.Set("To", req.To)
	data.Set("From", req.From)
	data.Set("Twiml", req.Twiml)
	if req.Record {
		data.Set("Record", "true")
	}
	if req.StatusCallback != "" {
		data.Set("StatusCallback", req.StatusCallback)
		for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
			data.Add("StatusCallbackEvent", ev)
		}
	}

	var call twilioCall
	if err := p.post(ctx, endpoint, data, &call); err != nil {
		return CreatedCall{}, err
	}
	return CreatedCall{SID: call.SID, Status: call.Status, To: call.To, From: call.From}, nil
}

func (p *TwilioProvider) FetchCallStatus(ctx context.Context, callSID string) (CallStatus, error) {
	if strings.TrimSpace(callSID) == "" {
		return CallStatus{}, errors.New("telephony: call sid is required")
	}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", p.baseURL, p.accountSID, url.PathEscape(callSID))

	var call twilioCall
	if err := p.get(ctx, endpoint, &call); err != nil {
		return CallStatus{}, err
	}
	return CallStatus{
		SID:       call.SID,
		Status:    call.Status,
		Direction: call.Direction,
		Duration:  call.Duration,
		StartTime: parseTwilioTime(call.StartTime),
		EndTime:   parseTwilioTime(call.EndTime),
	}, nil
}

// APIError is a non-2xx answer from the Twilio REST API.
type APIError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	MoreInfo   string `json:"more_info"`
	Status     int    `json:"status"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telephony: twilio error %d (http %d): %s", e.Code, e.HTTPStatus, e.Message)
}

func (p *TwilioProvider) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return p.do(req, out)
}

func (p *TwilioProvider) post(ctx context.Context, endpoint string, data url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return p.do(req, out)
}

func (p *TwilioProvider) do(req *http.Request, out any) error {
	req.SetBasicAuth(p.accountSID, p.authToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telephony: twilio request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telephony: read twilio response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		if jerr := json.Unmarshal(body, apiErr); jerr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("telephony: decode twilio response: %w", err)
		}
	}
	return nil
}

// parseTwilioTime parses Twilio's RFC 2822 timestamps; empty or malformed values yield nil.
func parseTwilioTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC1123Z, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
