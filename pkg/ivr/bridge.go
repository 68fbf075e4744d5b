// Package ivr drives phone calls through the persona menu and the
// conversation loop. Every leg is a stateless webhook: the reply depends only
// on the leg input and what the session store holds.
package ivr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/twilio/twilio-go/twiml"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/dialogue"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/escalation"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/persona"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/redact"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/session"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/settings"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/telephony"
)

const (
	IncomingPath = "/voice/incoming"
	SelectPath   = "/voice/select"
	ConversePath = "/voice/converse"
	StatusPath   = escalation.StatusPath

	// DefaultLegTimeout keeps a conversation leg inside the provider's 15s
	// webhook window, including the fallback escalation.
	DefaultLegTimeout = 12 * time.Second

	menuTimeout     = 8
	greetingTimeout = 6
	replyTimeout    = 10
	maxReprompts    = 1
)

const (
	msgWelcome     = "Welcome to Circle for Life."
	msgOperator    = "Press 0 to speak with a member of our team."
	msgNoSelection = "We didn't receive a selection. Please call again any time. Goodbye."
	msgInvalid     = "Sorry, that isn't a valid option. Please call again. Goodbye."
	msgConnecting  = "Connecting you with a member of our team now."
	msgNoOperator  = "Sorry, no one from our team is available right now. Please try again later. Goodbye."
	msgStartFailed = "Sorry, we couldn't start your call right now. Please try again later. Goodbye."
	msgClosed      = "This call has ended. Thank you for calling. Goodbye."
	msgReprompt    = "Are you still there? Take your time, I'm listening."
	msgGoodbye     = "It seems we got disconnected. Take care, and call again any time. Goodbye."
	msgTrouble     = "I'm having trouble right now, so I'm connecting you with a member of our team."
	msgApology     = "I'm sorry, I'm having trouble right now. Please try again later. Goodbye."
)

// Reply is the verb list sent back for one leg.
type Reply []twiml.Element

// Conversations is the phone-leg slice of dialogue.Service. Every call after
// StartPhone is keyed by the session id and the provider call id.
type Conversations interface {
	StartPhone(ctx context.Context, p dialogue.PhoneParams) (session.CallSession, error)
	PhoneTranscript(id, callSID string) (session.CallSession, error)
	ProcessPhoneTurn(ctx context.Context, id, callSID, text string) (dialogue.TurnResult, error)
	EscalatePhone(ctx context.Context, id, callSID, reason string) (escalation.Result, error)
	EndPhone(ctx context.Context, id, callSID string) (session.CallSession, error)
	EndByProvider(ctx context.Context, callSID, status string) (session.CallSession, error)
}

type Bridge struct {
	calls      Conversations
	personas   *persona.Registry
	settings   *settings.Store
	logger     *slog.Logger
	legTimeout time.Duration
}

type Option func(*Bridge)

// WithLegTimeout bounds each conversation leg.
func WithLegTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.legTimeout = d
		}
	}
}

func NewBridge(calls Conversations, personas *persona.Registry, store *settings.Store, logger *slog.Logger, opts ...Option) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{calls: calls, personas: personas, settings: store, logger: logger, legTimeout: DefaultLegTimeout}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Entry answers an inbound call with the persona menu.
func (b *Bridge) Entry(from, callSID string) Reply {
	b.logger.Info("ivr_incoming",
		slog.String("call_sid", callSID),
		slog.String("from", redact.Text(from)))
	return Reply{
		&twiml.VoiceGather{
			Input:         "dtmf",
			NumDigits:     "1",
			Timeout:       strconv.Itoa(menuTimeout),
			Action:        SelectPath,
			Method:        "POST",
			InnerElements: []twiml.Element{&twiml.VoiceSay{Message: b.menu()}},
		},
		&twiml.VoiceSay{Message: msgNoSelection},
		&twiml.VoiceHangup{},
	}
}

func (b *Bridge) menu() string {
	var sb strings.Builder
	sb.WriteString(msgWelcome)
	for i, p := range b.personas.List() {
		fmt.Fprintf(&sb, " Press %d to talk with %s, our %s companion.", i+1, p.Name, p.Specialty)
	}
	sb.WriteString(" ")
	sb.WriteString(msgOperator)
	return sb.String()
}

// SelectInput is the menu leg payload.
type SelectInput struct {
	Digits  string
	From    string
	CallSID string
}

// SelectPersona routes the menu digit: 0 bridges to the operator without a
// session, a persona digit starts the conversation.
func (b *Bridge) SelectPersona(ctx context.Context, in SelectInput) Reply {
	digit := strings.TrimSpace(in.Digits)
	log := b.logger.With(slog.String("call_sid", in.CallSID), slog.String("digit", digit))
	if digit == "0" {
		log.Info("ivr_operator_requested")
		return b.bridgeToOperator(msgConnecting, msgNoOperator)
	}
	p, ok := b.personas.ByDigit(digit)
	if !ok {
		log.Info("ivr_invalid_selection")
		return Reply{&twiml.VoiceSay{Message: msgInvalid}, &twiml.VoiceHangup{}}
	}
	sess, err := b.calls.StartPhone(ctx, dialogue.PhoneParams{
		PersonaID:    p.ID,
		CallerNumber: in.From,
		CallSID:      in.CallSID,
	})
	if err != nil {
		log.Error("ivr_start_failed", slog.String("persona", p.ID), slog.String("error", err.Error()))
		return Reply{&twiml.VoiceSay{Message: msgStartFailed}, &twiml.VoiceHangup{}}
	}
	log.Info("ivr_session_started", slog.String("session_id", sess.ID), slog.String("persona", p.ID))
	return Reply{listen(sess.ID, 0, greetingTimeout, p.Greeting)}
}

// ConverseInput is the speech leg payload. Attempt counts consecutive
// silent legs.
type ConverseInput struct {
	SessionID string
	CallSID   string
	Speech    string
	Attempt   int
}

// Converse runs one spoken exchange. The whole leg, fallbacks included,
// finishes within the leg timeout.
func (b *Bridge) Converse(ctx context.Context, in ConverseInput) Reply {
	ctx, cancel := context.WithTimeout(ctx, b.legTimeout)
	defer cancel()
	log := b.logger.With(slog.String("session_id", in.SessionID), slog.String("call_sid", in.CallSID))
	sess, err := b.calls.PhoneTranscript(in.SessionID, in.CallSID)
	if err != nil || sess.Status != session.StatusActive {
		if errors.Is(err, errorsx.ErrForbidden) {
			log.Warn("ivr_call_mismatch")
		}
		return Reply{&twiml.VoiceSay{Message: msgClosed}, &twiml.VoiceHangup{}}
	}

	speech := strings.TrimSpace(in.Speech)
	if speech == "" {
		if in.Attempt < maxReprompts {
			return Reply{listen(in.SessionID, in.Attempt+1, greetingTimeout, msgReprompt)}
		}
		log.Info("ivr_silence_hangup", slog.Int("attempt", in.Attempt))
		b.end(ctx, in)
		return Reply{&twiml.VoiceSay{Message: msgGoodbye}, &twiml.VoiceHangup{}}
	}

	res, err := b.calls.ProcessPhoneTurn(ctx, in.SessionID, in.CallSID, speech)
	if err != nil {
		if !errors.Is(err, errorsx.ErrConflict) {
			log.Error("ivr_turn_failed", slog.String("error", err.Error()))
		}
		return Reply{&twiml.VoiceSay{Message: msgClosed}, &twiml.VoiceHangup{}}
	}

	switch {
	case res.ProviderFailed:
		out, err := b.calls.EscalatePhone(ctx, in.SessionID, in.CallSID, "language model unavailable during phone call")
		if err != nil {
			log.Error("ivr_escalation_failed", slog.String("error", err.Error()))
		} else {
			log.Warn("ivr_provider_failed_escalated", slog.String("outcome", string(out.Outcome)))
		}
		if b.operator() == "" {
			b.end(ctx, in)
			return Reply{&twiml.VoiceSay{Message: msgApology}, &twiml.VoiceHangup{}}
		}
		return b.bridgeToOperator(msgTrouble, msgApology)
	case res.AutoEscalated:
		reply := Reply{}
		if res.AgentText != "" {
			reply = append(reply, &twiml.VoiceSay{Message: res.AgentText})
		}
		if b.operator() == "" {
			b.end(ctx, in)
			return append(reply, &twiml.VoiceSay{Message: res.EscalationMessage}, &twiml.VoiceHangup{})
		}
		return append(reply, b.bridgeToOperator(res.EscalationMessage, msgNoOperator)...)
	default:
		return Reply{listen(in.SessionID, 0, replyTimeout, res.AgentText)}
	}
}

// Status ends the session for a terminal call status. Non-terminal states and
// unknown calls, such as the operator leg of an escalation, are ignored.
func (b *Bridge) Status(ctx context.Context, callSID, callStatus string) {
	reason := telephony.NormalizeCallStatus(callStatus)
	if reason == "" || strings.TrimSpace(callSID) == "" {
		return
	}
	sess, err := b.calls.EndByProvider(ctx, callSID, reason)
	if err != nil {
		if !errors.Is(err, errorsx.ErrNotFound) {
			b.logger.Warn("ivr_status_end_failed", slog.String("call_sid", callSID), slog.String("error", err.Error()))
		}
		return
	}
	b.logger.Info("ivr_call_status",
		slog.String("call_sid", callSID),
		slog.String("session_id", sess.ID),
		slog.String("status", reason))
}

func (b *Bridge) end(ctx context.Context, in ConverseInput) {
	if _, err := b.calls.EndPhone(ctx, in.SessionID, in.CallSID); err != nil {
		b.logger.Warn("ivr_end_failed", slog.String("session_id", in.SessionID), slog.String("error", err.Error()))
	}
}

func (b *Bridge) operator() string {
	return strings.TrimSpace(b.settings.Current().Telephony.OperatorNumber)
}

// bridgeToOperator dials the operator, or speaks unavailable and hangs up
// when no operator number is configured.
func (b *Bridge) bridgeToOperator(intro, unavailable string) Reply {
	tel := b.settings.Current().Telephony
	number := strings.TrimSpace(tel.OperatorNumber)
	if number == "" {
		return Reply{&twiml.VoiceSay{Message: unavailable}, &twiml.VoiceHangup{}}
	}
	dial := &twiml.VoiceDial{Number: number}
	if from := strings.TrimSpace(tel.FromNumber); from != "" {
		dial.CallerId = from
	}
	return Reply{&twiml.VoiceSay{Message: intro}, dial}
}

// listen speaks prompt and collects the next utterance.
func listen(sessionID string, attempt, timeout int, prompt string) *twiml.VoiceGather {
	g := &twiml.VoiceGather{
		Input:               "speech",
		SpeechTimeout:       "auto",
		Timeout:             strconv.Itoa(timeout),
		Action:              converseURL(sessionID, attempt),
		Method:              "POST",
		ActionOnEmptyResult: "true",
	}
	if strings.TrimSpace(prompt) != "" {
		g.InnerElements = []twiml.Element{&twiml.VoiceSay{Message: prompt}}
	}
	return g
}

func converseURL(sessionID string, attempt int) string {
	q := url.Values{}
	q.Set("session", sessionID)
	q.Set("attempt", strconv.Itoa(attempt))
	return ConversePath + "?" + q.Encode()
}
