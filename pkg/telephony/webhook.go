package telephony

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	twilioclient "github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"
)

// ValidateRequest checks X-Twilio-Signature against the form parameters.
// The request form must be parsable; publicBaseURL, when set, replaces the
// scheme and host seen by this process.
func ValidateRequest(r *http.Request, authToken, publicBaseURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" || authToken == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}
	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	validator := twilioclient.NewRequestValidator(authToken)
	return validator.Validate(RequestURL(r, publicBaseURL), params, signature)
}

// RequestURL reconstructs the URL Twilio signed.
func RequestURL(r *http.Request, publicBaseURL string) string {
	if base := strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"); base != "" {
		return base + r.URL.RequestURI()
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// NormalizeCallStatus maps provider call states to a terminal reason, or ""
// for states that do not end the call.
func NormalizeCallStatus(raw string) string {
	r := strings.ToLower(strings.TrimSpace(raw))
	switch r {
	case "", "queued", "initiated", "ringing", "in-progress", "inprogress", "answered":
		return ""
	case "completed":
		return "completed"
	case "busy":
		return "busy"
	case "no_answer", "noanswer", "no-answer":
		return "no-answer"
	case "failed", "canceled", "cancelled":
		return "failed"
	default:
		return ""
	}
}

// IsLoopback reports whether base is missing or points at this machine, in
// which case the provider cannot reach it.
func IsLoopback(base string) bool {
	base = strings.TrimSpace(base)
	if base == "" {
		return true
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u, err := url.Parse(base)
	if err != nil || u.Hostname() == "" {
		return true
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsUnspecified()
	}
	return false
}

// Render serializes verbs into a TwiML document.
func Render(verbs ...twiml.Element) (string, error) {
	return twiml.Voice(verbs)
}

// Write sends verbs as the webhook response.
func Write(w http.ResponseWriter, verbs ...twiml.Element) error {
	doc, err := Render(verbs...)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/xml")
	_, err = w.Write([]byte(doc))
	return err
}
