package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestTwilio(t *testing.T, h http.HandlerFunc) *TwilioProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p, err := NewTwilioProvider(TwilioConfig{AccountSID: "AC123", AuthToken: "tok", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	return p
}

func TestNewTwilioProviderRequiresCredentials(t *testing.T) {
	if _, err := NewTwilioProvider(TwilioConfig{AuthToken: "x"}); err == nil {
		t.Fatalf("expected error for missing account sid")
	}
	if _, err := NewTwilioProvider(TwilioConfig{AccountSID: "AC1"}); err == nil {
		t.Fatalf("expected error for missing auth token")
	}
}

func TestTwilioCreateCall(t *testing.T) {
	p := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/Accounts/AC123/Calls.json" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "tok" {
			t.Errorf("expected basic auth")
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("To") != "+14155550123" || r.PostForm.Get("From") != "+15550001111" {
			t.Errorf("unexpected to/from: %v", r.PostForm)
		}
		if r.PostForm.Get("Twiml") != "<Response/>" {
			t.Errorf("expected twiml")
		}
		if r.PostForm.Get("Record") != "true" {
			t.Errorf("expected record flag")
		}
		if r.PostForm.Get("StatusCallback") != "https://example.test/webhooks/twilio/status" {
			t.Errorf("expected status callback")
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA1","status":"queued","to":"+14155550123","from":"+15550001111"}`))
	})

	call, err := p.CreateCall(context.Background(), CreateCallRequest{
		To:             "+14155550123",
		From:           "+15550001111",
		Twiml:          "<Response/>",
		Record:         true,
		StatusCallback: "https://example.test/webhooks/twilio/status",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if call.SID != "CA1" || call.Status != "queued" {
		t.Fatalf("unexpected call: %+v", call)
	}
}

func TestTwilioFetchCallStatus(t *testing.T) {
	p := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Accounts/AC123/Calls/CA1.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"sid":"CA1","status":"completed","direction":"outbound-api","duration":"42",
			"start_time":"Mon, 19 Oct 2026 10:00:00 +0000","end_time":"Mon, 19 Oct 2026 10:00:42 +0000"}`))
	})

	st, err := p.FetchCallStatus(context.Background(), "CA1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if st.Status != "completed" || st.Direction != "outbound-api" || st.Duration != "42" {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.StartTime == nil || st.EndTime == nil || st.EndTime.Sub(*st.StartTime).Seconds() != 42 {
		t.Fatalf("unexpected times: %+v", st)
	}
}

func TestTwilioAPIError(t *testing.T) {
	p := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	})

	_, err := p.CreateCall(context.Background(), CreateCallRequest{To: "bad", From: "+1", Twiml: "<Response/>"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != 21211 || apiErr.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestParseTwilioTime(t *testing.T) {
	if parseTwilioTime("") != nil || parseTwilioTime("yesterday") != nil {
		t.Fatalf("expected nil for empty or malformed")
	}
	if ts := parseTwilioTime("Mon, 19 Oct 2026 10:00:00 +0200"); ts == nil || ts.Hour() != 8 {
		t.Fatalf("expected UTC conversion, got %v", ts)
	}
}
