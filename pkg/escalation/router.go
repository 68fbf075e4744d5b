// Package escalation hands a call off to a human operator by phoning them
// with a spoken summary.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/twilio/twilio-go/twiml"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/metrics"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/redact"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/settings"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/telephony"
)

type Outcome string

const (
	OutcomeCallPlaced       Outcome = "call_placed"
	OutcomeNotificationOnly Outcome = "notification_only"
	OutcomeFailed           Outcome = "failed_notification_sent"
)

const (
	maxUtteranceChars = 200
	StatusPath        = "/voice/status"
)

// Request carries what the operator hears.
type Request struct {
	SessionID        string
	OwnerName        string
	PersonaName      string
	PersonaSpecialty string
	LastUtterance    string
	Reason           string
}

type Result struct {
	Outcome Outcome `json:"outcome"`
	CallSID string  `json:"call_sid,omitempty"`
	Detail  string  `json:"detail,omitempty"`
}

// Router reads telephony settings on every call so credential swaps apply
// immediately.
type Router struct {
	settings  *settings.Store
	newCaller func(telephony.Credentials) telephony.Caller
	logger    *slog.Logger
	observer  metrics.Observer
	timeout   time.Duration
}

type Option func(*Router)

// WithCaller replaces the Twilio dialer factory.
func WithCaller(fn func(telephony.Credentials) telephony.Caller) Option {
	return func(r *Router) { r.newCaller = fn }
}

func WithObserver(o metrics.Observer) Option {
	return func(r *Router) { r.observer = o }
}

func WithTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

func NewRouter(store *settings.Store, logger *slog.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		settings: store,
		newCaller: func(c telephony.Credentials) telephony.Caller {
			return telephony.NewDialer(c)
		},
		logger:    logger,
		observer:  metrics.NoopObserver{},
		timeout:   15 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Escalate never returns an error; every path ends in one of the three
// outcomes and a log line.
func (r *Router) Escalate(ctx context.Context, req Request) Result {
	snap := r.settings.Current()
	tel := snap.Telephony
	log := r.logger.With(slog.String("session_id", req.SessionID))

	if !tel.Complete() {
		log.Info("escalation_notification_only",
			slog.Any("missing", tel.Missing()),
			slog.String("reason", req.Reason))
		return r.record(Result{Outcome: OutcomeNotificationOnly, Detail: "telephony not configured"})
	}

	doc, err := telephony.Render(&twiml.VoiceSay{Message: Summary(req), Loop: "2"})
	if err != nil {
		log.Error("escalation_twiml_failed", slog.String("error", err.Error()))
		return r.record(Result{Outcome: OutcomeFailed, Detail: err.Error()})
	}
	params := telephony.PlaceCallParams{
		From:  tel.FromNumber,
		To:    tel.OperatorNumber,
		Twiml: doc,
	}
	if !telephony.IsLoopback(snap.PublicBaseURL) {
		params.StatusCallback = strings.TrimRight(snap.PublicBaseURL, "/") + StatusPath
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	caller := r.newCaller(telephony.Credentials{AccountSID: tel.AccountSID, AuthToken: tel.AuthToken})
	res, err := caller.PlaceCall(ctx, params)
	if err != nil {
		attrs := []any{
			slog.String("reason_code", string(errorsx.Reason(err))),
			slog.String("to", redact.Text(tel.OperatorNumber)),
			slog.String("from", redact.Text(tel.FromNumber)),
			slog.String("error", err.Error()),
		}
		if rej, ok := telephony.AsRejection(err); ok {
			attrs = append(attrs,
				slog.Int("twilio_code", rej.Code),
				slog.Int("twilio_status", rej.Status),
				slog.String("more_info", rej.MoreInfo))
		}
		if telephony.IsUnverified(err) {
			attrs = append(attrs, slog.String("hint",
				"operator number is not verified on this Twilio account; verify it under Phone Numbers > Verified Caller IDs or upgrade the trial account"))
		}
		log.Error("escalation_call_failed", attrs...)
		return r.record(Result{Outcome: OutcomeFailed, Detail: err.Error()})
	}
	log.Info("escalation_call_placed",
		slog.String("call_sid", res.SID),
		slog.String("status", res.Status),
		slog.Bool("status_callback", params.StatusCallback != ""))
	return r.record(Result{Outcome: OutcomeCallPlaced, CallSID: res.SID})
}

func (r *Router) record(res Result) Result {
	r.observer.RecordEvent(metrics.Count(metrics.EventEscalationOutcome, map[string]string{"outcome": string(res.Outcome)}))
	return res
}

// Summary is the text spoken to the operator.
func Summary(req Request) string {
	var b strings.Builder
	b.WriteString("Circle for Life escalation. ")
	owner := strings.TrimSpace(req.OwnerName)
	if owner == "" {
		owner = "A caller"
	}
	persona := strings.TrimSpace(req.PersonaName)
	if persona == "" {
		persona = "an AI companion"
	}
	fmt.Fprintf(&b, "%s needs help while speaking with %s", owner, persona)
	if s := strings.TrimSpace(req.PersonaSpecialty); s != "" {
		fmt.Fprintf(&b, ", the %s companion", s)
	}
	b.WriteString(".")
	if last := Truncate(strings.TrimSpace(req.LastUtterance), maxUtteranceChars); last != "" {
		fmt.Fprintf(&b, " Their last words were: %s", last)
	}
	return b.String()
}

// Truncate cuts s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n])) + "..."
}
