package escalation

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twilio/twilio-go/client"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/metrics"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/settings"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/telephony"
)

type stubCaller struct {
	calls []telephony.PlaceCallParams
	res   telephony.CallResult
	err   error
}

func (s *stubCaller) PlaceCall(_ context.Context, p telephony.PlaceCallParams) (telephony.CallResult, error) {
	s.calls = append(s.calls, p)
	return s.res, s.err
}

func fullTelephony() settings.Telephony {
	return settings.Telephony{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+15550000001", OperatorNumber: "+15550000002"}
}

func newRouter(t *testing.T, snap settings.Snapshot, caller *stubCaller, logs *bytes.Buffer) (*Router, *metrics.MemoryObserver) {
	t.Helper()
	store, err := settings.NewStore(snap)
	require.NoError(t, err)
	obs := metrics.NewMemoryObserver()
	logger := slog.New(slog.NewJSONHandler(logs, nil))
	r := NewRouter(store, logger,
		WithObserver(obs),
		WithCaller(func(telephony.Credentials) telephony.Caller { return caller }))
	return r, obs
}

func TestEscalateMissingCredentialsIsNotificationOnly(t *testing.T) {
	for _, drop := range []func(*settings.Telephony){
		func(t *settings.Telephony) { t.AccountSID = "" },
		func(t *settings.Telephony) { t.AuthToken = "" },
		func(t *settings.Telephony) { t.FromNumber = "" },
		func(t *settings.Telephony) { t.OperatorNumber = " " },
	} {
		tel := fullTelephony()
		drop(&tel)
		caller := &stubCaller{}
		r, _ := newRouter(t, settings.Snapshot{Telephony: tel}, caller, &bytes.Buffer{})
		res := r.Escalate(context.Background(), Request{SessionID: "s1", OwnerName: "Sam"})
		assert.Equal(t, OutcomeNotificationOnly, res.Outcome)
		assert.Empty(t, caller.calls, "no network call may be attempted")
	}
}

func TestEscalatePlacesCallWithInlineSummary(t *testing.T) {
	caller := &stubCaller{res: telephony.CallResult{SID: "CA42", Status: "queued"}}
	snap := settings.Snapshot{Telephony: fullTelephony(), PublicBaseURL: "https://calls.example.com/"}
	r, obs := newRouter(t, snap, caller, &bytes.Buffer{})

	res := r.Escalate(context.Background(), Request{
		SessionID:        "s1",
		OwnerName:        "Sam",
		PersonaName:      "Aria",
		PersonaSpecialty: "wellness",
		LastUtterance:    strings.Repeat("a", 300),
	})
	require.Equal(t, OutcomeCallPlaced, res.Outcome)
	assert.Equal(t, "CA42", res.CallSID)
	require.Len(t, caller.calls, 1)
	call := caller.calls[0]
	assert.Equal(t, "+15550000002", call.To)
	assert.Equal(t, "+15550000001", call.From)
	assert.Contains(t, call.Twiml, "<Say")
	assert.Contains(t, call.Twiml, "Sam needs help while speaking with Aria")
	assert.NotContains(t, call.Twiml, strings.Repeat("a", 201))
	assert.Equal(t, "https://calls.example.com/voice/status", call.StatusCallback)

	events := obs.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "call_placed", events[0].Tags["outcome"])
}

func TestEscalateSkipsLoopbackCallback(t *testing.T) {
	caller := &stubCaller{res: telephony.CallResult{SID: "CA1"}}
	r, _ := newRouter(t, settings.Snapshot{Telephony: fullTelephony(), PublicBaseURL: "http://localhost:8080"}, caller, &bytes.Buffer{})
	res := r.Escalate(context.Background(), Request{SessionID: "s1"})
	require.Equal(t, OutcomeCallPlaced, res.Outcome)
	assert.Empty(t, caller.calls[0].StatusCallback)
}

func TestEscalateUnverifiedDestination(t *testing.T) {
	rest := &client.TwilioRestError{Code: 21219, Status: 400, Message: "The number +15550000002 is unverified."}
	caller := &stubCaller{err: errorsx.Wrap(rest, errorsx.ReasonTelephonyUnverified)}
	var logs bytes.Buffer
	r, _ := newRouter(t, settings.Snapshot{Telephony: fullTelephony()}, caller, &logs)

	res := r.Escalate(context.Background(), Request{SessionID: "s1", OwnerName: "Sam"})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	out := logs.String()
	assert.Contains(t, out, "escalation_call_failed")
	assert.Contains(t, out, "Verified Caller IDs")
	assert.Contains(t, out, `"twilio_code":21219`)
}

func TestSummaryWithoutUtterance(t *testing.T) {
	s := Summary(Request{OwnerName: "Sam", PersonaName: "Max", PersonaSpecialty: "career"})
	assert.Equal(t, "Circle for Life escalation. Sam needs help while speaking with Max, the career companion.", s)
}
