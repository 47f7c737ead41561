package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func testGateway(t *testing.T, handler http.HandlerFunc) *TwilioGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewTwilioGateway(TwilioConfig{
		AccountSID:         "AC123",
		AuthToken:          "token",
		FromNumber:         "+15550001111",
		PublicBaseURL:      "https://calls.example.com/",
		DefaultCountryCode: "1",
		APIBase:            srv.URL,
		HTTPClient:         srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewTwilioGateway: %v", err)
	}
	return g
}

func TestPlaceCallPostsForm(t *testing.T) {
	var got url.Values
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Accounts/AC123/Calls.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "token" {
			t.Errorf("basic auth = %s:%s", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		got = r.PostForm
		w.Write([]byte(`{"sid": "CA777"}`))
	})

	res, err := g.PlaceCall(context.Background(), PlaceCallRequest{CallID: "call-1", To: "+15551234567"})
	if err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	if res.ProviderCallID != "CA777" {
		t.Fatalf("sid = %q", res.ProviderCallID)
	}

	if got.Get("To") != "+15551234567" || got.Get("From") != "+15550001111" {
		t.Fatalf("form = %v", got)
	}
	if !strings.Contains(got.Get("Url"), "/webhooks/twilio/turn?call_id=call-1") {
		t.Fatalf("turn url = %q", got.Get("Url"))
	}
	if !strings.HasSuffix(got.Get("StatusCallback"), "/webhooks/twilio/status") {
		t.Fatalf("status callback = %q", got.Get("StatusCallback"))
	}
	if events := got["StatusCallbackEvent"]; len(events) != 3 {
		t.Fatalf("callback events = %v", events)
	}
}

func TestPlaceCallSurfacesTwilioError(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": 21211, "message": "Invalid 'To' phone number"}`))
	})

	_, err := g.PlaceCall(context.Background(), PlaceCallRequest{CallID: "call-1", To: "+10000000000"})
	if err == nil || !strings.Contains(err.Error(), "21211") {
		t.Fatalf("err = %v", err)
	}
}

func TestPlaceCallRejectsEmptySid(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	if _, err := g.PlaceCall(context.Background(), PlaceCallRequest{CallID: "call-1", To: "+15551234567"}); err == nil {
		t.Fatal("empty sid accepted")
	}
}

func TestCancelCallSetsCompleted(t *testing.T) {
	var gotStatus string
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Accounts/AC123/Calls/CA777.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = r.ParseForm()
		gotStatus = r.PostFormValue("Status")
		w.Write([]byte(`{"sid": "CA777"}`))
	})

	if err := g.CancelCall(context.Background(), "CA777"); err != nil {
		t.Fatalf("CancelCall: %v", err)
	}
	if gotStatus != "completed" {
		t.Fatalf("Status = %q", gotStatus)
	}
}

func TestRecordingURL(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/Calls/CA777/Recordings.json") {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"recordings": [{"sid": "RE1"}, {"sid": "RE2"}]}`))
	})

	got, err := g.RecordingURL(context.Background(), "CA777")
	if err != nil {
		t.Fatalf("RecordingURL: %v", err)
	}
	if !strings.HasSuffix(got, "/Accounts/AC123/Recordings/RE1.mp3") {
		t.Fatalf("url = %q", got)
	}
}

func TestRecordingURLEmptyWhenNoRecordings(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"recordings": []}`))
	})

	got, err := g.RecordingURL(context.Background(), "CA777")
	if err != nil || got != "" {
		t.Fatalf("got %q, %v", got, err)
	}
}
