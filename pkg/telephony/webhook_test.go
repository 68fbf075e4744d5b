package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/twilio/twilio-go/twiml"
)

func TestValidateRequest(t *testing.T) {
	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("Digits", "2")

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/voice/select", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req
	}
	req := newReq()
	sig := computeSignature("token", "https://calls.example.com/voice/select", map[string]string{"CallSid": "CA123", "Digits": "2"})
	req.Header.Set("X-Twilio-Signature", sig)
	if !ValidateRequest(req, "token", "https://calls.example.com/") {
		t.Fatalf("expected valid signature")
	}

	bad := newReq()
	bad.Header.Set("X-Twilio-Signature", "invalid")
	if ValidateRequest(bad, "token", "https://calls.example.com") {
		t.Fatalf("expected invalid signature")
	}
	if ValidateRequest(newReq(), "token", "https://calls.example.com") {
		t.Fatalf("missing signature must be rejected")
	}
}

func TestNormalizeCallStatus(t *testing.T) {
	cases := map[string]string{
		"completed":   "completed",
		"no-answer":   "no-answer",
		"Busy":        "busy",
		"canceled":    "failed",
		"in-progress": "",
		"ringing":     "",
	}
	for in, want := range cases {
		if got := NormalizeCallStatus(in); got != want {
			t.Fatalf("%s: expected %q, got %q", in, want, got)
		}
	}
}

func TestIsLoopback(t *testing.T) {
	for _, base := range []string{"", "http://localhost:8080", "http://127.0.0.1:3000", "https://[::1]", "0.0.0.0:80"} {
		if !IsLoopback(base) {
			t.Fatalf("%q should be loopback", base)
		}
	}
	for _, base := range []string{"https://abc.ngrok-free.app", "calls.example.com"} {
		if IsLoopback(base) {
			t.Fatalf("%q should be public", base)
		}
	}
}

func TestIsUnverifiedMessage(t *testing.T) {
	if !IsUnverified(errors.New("The phone number is not verified for this trial account")) {
		t.Fatalf("expected message match")
	}
	if IsUnverified(errors.New("rate limited")) {
		t.Fatalf("unexpected match")
	}
}

func TestWriteTwiml(t *testing.T) {
	w := httptest.NewRecorder()
	if err := Write(w, &twiml.VoiceSay{Message: "Goodbye & take care."}, &twiml.VoiceHangup{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/xml" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<Say>Goodbye &amp; take care.</Say>") || !strings.Contains(body, "<Hangup") {
		t.Fatalf("unexpected body %s", body)
	}
}

func computeSignature(authToken, url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	base := url
	for _, k := range keys {
		base += k + params[k]
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	_, _ = mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
