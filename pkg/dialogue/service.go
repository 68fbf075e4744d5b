// Package dialogue runs conversations: it starts calls, processes turns,
// escalates and ends them.
package dialogue

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/adapters/tts"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/archive"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/escalation"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/events"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/metrics"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/persona"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/provider"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/redact"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/session"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/settings"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/supervisor"
)

// Config holds per-channel budgets and external call deadlines.
type Config struct {
	BrowserMaxTokens int           `mapstructure:"browser_max_tokens"`
	PhoneMaxTokens   int           `mapstructure:"phone_max_tokens"`
	Temperature      float64       `mapstructure:"temperature"`
	SummaryMaxTokens int           `mapstructure:"summary_max_tokens"`
	LLMTimeout       time.Duration `mapstructure:"llm_timeout"`
	TTSTimeout       time.Duration `mapstructure:"tts_timeout"`
	ArchiveTimeout   time.Duration `mapstructure:"archive_timeout"`
	PhoneIdle        time.Duration `mapstructure:"phone_idle"`
	// Phone legs answer a provider webhook that gives up after about 15s,
	// so model and supervisor calls get shorter deadlines there.
	PhoneLLMTimeout        time.Duration `mapstructure:"phone_llm_timeout"`
	PhoneSupervisorTimeout time.Duration `mapstructure:"phone_supervisor_timeout"`
}

func (c Config) withDefaults() Config {
	if c.BrowserMaxTokens <= 0 {
		c.BrowserMaxTokens = 300
	}
	if c.PhoneMaxTokens <= 0 {
		c.PhoneMaxTokens = 150
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.7
	}
	if c.SummaryMaxTokens <= 0 {
		c.SummaryMaxTokens = 150
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = 30 * time.Second
	}
	if c.TTSTimeout <= 0 {
		c.TTSTimeout = 15 * time.Second
	}
	if c.ArchiveTimeout <= 0 {
		c.ArchiveTimeout = 10 * time.Second
	}
	if c.PhoneIdle <= 0 {
		c.PhoneIdle = 10 * time.Minute
	}
	if c.PhoneLLMTimeout <= 0 {
		c.PhoneLLMTimeout = 6 * time.Second
	}
	if c.PhoneSupervisorTimeout <= 0 {
		c.PhoneSupervisorTimeout = 3 * time.Second
	}
	return c
}

// Escalator is satisfied by escalation.Router.
type Escalator interface {
	Escalate(ctx context.Context, req escalation.Request) escalation.Result
}

// Deps are the collaborators a Service needs. Archive, Events and Observer
// default to no-ops.
type Deps struct {
	Store     *session.Store
	Personas  *persona.Registry
	Settings  *settings.Store
	Providers *provider.Registry
	Analyzer  *supervisor.Analyzer
	Escalator Escalator
	Archive   archive.Archive
	Events    events.Publisher
	Observer  metrics.Observer
	Logger    *slog.Logger
}

type Service struct {
	cfg Config
	Deps
	now func() time.Time
}

func NewService(cfg Config, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Analyzer == nil {
		deps.Analyzer = supervisor.New(deps.Logger)
	}
	if deps.Archive == nil {
		deps.Archive = archive.Discard{}
	}
	if deps.Events == nil {
		deps.Events = events.Noop{}
	}
	if deps.Observer == nil {
		deps.Observer = metrics.NoopObserver{}
	}
	if deps.Escalator == nil {
		deps.Escalator = notifyOnly{}
	}
	return &Service{cfg: cfg.withDefaults(), Deps: deps, now: time.Now}
}

type notifyOnly struct{}

func (notifyOnly) Escalate(context.Context, escalation.Request) escalation.Result {
	return escalation.Result{Outcome: escalation.OutcomeNotificationOnly}
}

// StartParams describe a browser call.
type StartParams struct {
	OwnerID     string
	DisplayName string
	PersonaID   string
	// Provider is the caller-supplied LLM config; nil falls back to the
	// configured defaults.
	Provider *llm.Config
	// Speech overrides the configured TTS key for this call.
	Speech *tts.Config
}

// Start opens a browser session.
func (s *Service) Start(ctx context.Context, p StartParams) (session.CallSession, error) {
	if strings.TrimSpace(p.OwnerID) == "" {
		return session.CallSession{}, errorsx.ErrUnauthorized
	}
	if _, ok := s.Personas.Get(p.PersonaID); !ok {
		return session.CallSession{}, errorsx.NotFound("persona", p.PersonaID)
	}
	if p.Provider != nil {
		if err := p.Provider.Validate(); err != nil {
			return session.CallSession{}, errorsx.Validation("%s", err)
		}
	}
	snap := s.Settings.Current()
	speech := p.Speech
	if !speech.Enabled() {
		speech = snap.TTS
	}
	sess, err := s.Store.Create(session.CreateParams{
		OwnerID:     p.OwnerID,
		DisplayName: p.DisplayName,
		PersonaID:   p.PersonaID,
		Source:      session.SourceBrowser,
		Provider:    provider.Resolve(snap, p.Provider),
		Speech:      speech,
	})
	if err != nil {
		return session.CallSession{}, err
	}
	s.started(ctx, sess)
	return sess, nil
}

// PhoneParams describe an inbound call after persona selection.
type PhoneParams struct {
	PersonaID    string
	CallerNumber string
	CallSID      string
}

// StartPhone opens a phone session under a fresh synthetic owner. Phone
// sessions carry no synthesis key; the telephony provider speaks the text.
func (s *Service) StartPhone(ctx context.Context, p PhoneParams) (session.CallSession, error) {
	if _, ok := s.Personas.Get(p.PersonaID); !ok {
		return session.CallSession{}, errorsx.NotFound("persona", p.PersonaID)
	}
	deadline := s.now().Add(s.cfg.PhoneIdle)
	sess, err := s.Store.Create(session.CreateParams{
		OwnerID:      "phone:" + uuid.NewString(),
		DisplayName:  "Caller " + redact.LastFour(p.CallerNumber),
		PersonaID:    p.PersonaID,
		Source:       session.SourcePhone,
		Provider:     provider.Resolve(s.Settings.Current(), nil),
		CallerNumber: p.CallerNumber,
		CallSID:      p.CallSID,
		IdleDeadline: &deadline,
	})
	if err != nil {
		return session.CallSession{}, err
	}
	s.started(ctx, sess)
	return sess, nil
}

func (s *Service) started(ctx context.Context, sess session.CallSession) {
	s.Logger.Info("call_started",
		slog.String("session_id", sess.ID),
		slog.String("persona", sess.PersonaID),
		slog.String("source", string(sess.Source)),
		slog.String("provider", sess.ProviderName()))
	s.Observer.RecordEvent(metrics.Count(metrics.EventCallStarted, map[string]string{
		"source":   string(sess.Source),
		"provider": sess.ProviderName(),
	}))
	s.publish(ctx, events.CallStarted, sess, "")
}

// access names who is driving a session: a browser owner, or a phone leg
// carrying the provider's call id.
type access struct {
	owner   string
	callSID string
	phone   bool
}

func browserAccess(owner string) access { return access{owner: owner} }

func phoneAccess(callSID string) access { return access{callSID: callSID, phone: true} }

// Transcript returns the session as seen by its owner.
func (s *Service) Transcript(id, requester string) (session.CallSession, error) {
	return s.authorize(id, browserAccess(requester))
}

// PhoneTranscript returns a phone session to the leg that owns its call id.
func (s *Service) PhoneTranscript(id, callSID string) (session.CallSession, error) {
	return s.authorize(id, phoneAccess(callSID))
}

// authorize loads the session and checks who may drive it. Browser
// requesters only reach their own browser sessions; phone sessions are
// reachable only by the leg whose call id created them.
func (s *Service) authorize(id string, a access) (session.CallSession, error) {
	sess, err := s.Store.Get(id)
	if err != nil {
		return session.CallSession{}, err
	}
	if a.phone {
		callSID := strings.TrimSpace(a.callSID)
		if sess.Source != session.SourcePhone || callSID == "" || sess.CallSID != callSID {
			return session.CallSession{}, errorsx.ErrForbidden
		}
		return sess, nil
	}
	if sess.Source != session.SourceBrowser || a.owner == "" || sess.OwnerID != a.owner {
		return session.CallSession{}, errorsx.ErrForbidden
	}
	return sess, nil
}

func (s *Service) personaFor(sess session.CallSession) persona.Persona {
	p, ok := s.Personas.Get(sess.PersonaID)
	if !ok {
		return persona.Persona{ID: sess.PersonaID, Name: sess.PersonaID}
	}
	return p
}

func (s *Service) publish(ctx context.Context, typ events.Type, sess session.CallSession, outcome string) {
	ev := events.Event{
		Type:      typ,
		SessionID: sess.ID,
		OwnerID:   sess.OwnerID,
		PersonaID: sess.PersonaID,
		Source:    string(sess.Source),
		Status:    string(sess.Status),
		Outcome:   outcome,
		Turns:     len(sess.Transcript),
		At:        s.now(),
	}
	if err := s.Events.Publish(ctx, ev); err != nil {
		s.Logger.Warn("event_publish_failed",
			slog.String("session_id", sess.ID),
			slog.String("type", string(typ)),
			slog.String("error", err.Error()))
	}
}
