package dialogue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/adapters/tts"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/archive"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/escalation"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/events"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/metrics"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/persona"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/provider"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/providers/mock"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/session"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/settings"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/supervisor"
)

const (
	lowVerdict      = `{"severity":"low","sentiment":"calm","flags":[],"escalation_needed":false,"reason":"ordinary chat"}`
	selfHarmVerdict = `{"severity":"high","sentiment":"distressed","flags":["self_harm"],"escalation_needed":true,"reason":"caller at risk"}`
	angryVerdict    = `{"severity":"high","sentiment":"angry","flags":["dissatisfied","human_requested"],"escalation_needed":true,"reason":"wants a person"}`
)

// scripted answers chat, supervisor and summary calls differently.
type scripted struct {
	mu       sync.Mutex
	chat     func(llm.Request) (string, error)
	verdict  func(llm.Request) string
	summary  string
	requests []llm.Request
	// chatDelay and verdictDelay stall replies until they pass or the
	// context ends.
	chatDelay    time.Duration
	verdictDelay time.Duration
}

func (s *scripted) Name() string { return "mock" }

func stall(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (s *scripted) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	switch {
	case strings.Contains(req.SystemPrompt, "safety supervisor"):
		if err := stall(ctx, s.verdictDelay); err != nil {
			return "", err
		}
		if s.verdict == nil {
			return lowVerdict, nil
		}
		return s.verdict(req), nil
	case strings.Contains(req.SystemPrompt, "call history"):
		if s.summary == "" {
			return "", errors.New("summary unavailable")
		}
		return s.summary, nil
	default:
		if err := stall(ctx, s.chatDelay); err != nil {
			return "", err
		}
		if s.chat == nil {
			return "I hear you.", nil
		}
		return s.chat(req)
	}
}

func (s *scripted) chatRequests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []llm.Request
	for _, r := range s.requests {
		if !strings.Contains(r.SystemPrompt, "safety supervisor") && !strings.Contains(r.SystemPrompt, "call history") {
			out = append(out, r)
		}
	}
	return out
}

type recordingEscalator struct {
	mu   sync.Mutex
	reqs []escalation.Request
	out  escalation.Result
}

func (r *recordingEscalator) Escalate(_ context.Context, req escalation.Request) escalation.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return r.out
}

func (r *recordingEscalator) calls() []escalation.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]escalation.Request(nil), r.reqs...)
}

type harness struct {
	svc       *Service
	model     *scripted
	escalator *recordingEscalator
	archive   *archive.Memory
	events    *events.Memory
	observer  *metrics.MemoryObserver
	settings  *settings.Store
}

func newHarness(t *testing.T, snap settings.Snapshot) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	personas, err := persona.NewRegistry(persona.Default())
	require.NoError(t, err)
	set, err := settings.NewStore(snap)
	require.NoError(t, err)

	h := &harness{
		model:     &scripted{},
		escalator: &recordingEscalator{out: escalation.Result{Outcome: escalation.OutcomeCallPlaced, CallSID: "CA1"}},
		archive:   archive.NewMemory(),
		events:    &events.Memory{},
		observer:  metrics.NewMemoryObserver(),
		settings:  set,
	}
	providers := provider.NewRegistry()
	providers.Register(llm.ProviderMock, func(context.Context, llm.Config) (llm.Provider, error) { return h.model, nil })
	providers.RegisterTTS("mock", func(cfg tts.Config) (tts.Synthesizer, error) {
		if cfg.APIKey == "broken" {
			return mock.NewTTS(mock.TTSConfig{Err: errors.New("synthesis down")}), nil
		}
		return mock.NewTTS(mock.TTSConfig{}), nil
	})
	h.svc = NewService(Config{}, Deps{
		Store:     session.NewStore(),
		Personas:  personas,
		Settings:  set,
		Providers: providers,
		Analyzer:  supervisor.New(logger),
		Escalator: h.escalator,
		Archive:   h.archive,
		Events:    h.events,
		Observer:  h.observer,
		Logger:    logger,
	})
	return h
}

func withModel() settings.Snapshot {
	return settings.Snapshot{DefaultLLM: &llm.Config{Provider: llm.ProviderMock}}
}

func (h *harness) start(t *testing.T, owner string) session.CallSession {
	t.Helper()
	sess, err := h.svc.Start(context.Background(), StartParams{OwnerID: owner, DisplayName: "Sam", PersonaID: "aria"})
	require.NoError(t, err)
	return sess
}

func TestProcessTurnHappyPath(t *testing.T) {
	h := newHarness(t, withModel())
	sess := h.start(t, "u1")

	res, err := h.svc.ProcessTurn(context.Background(), sess.ID, "u1", "  I had a long day  ")
	require.NoError(t, err)
	assert.Equal(t, "I hear you.", res.AgentText)
	assert.False(t, res.ProviderFailed)
	assert.False(t, res.AutoEscalated)
	assert.Nil(t, res.SupervisorNote, "low notes are not surfaced")
	assert.Nil(t, res.Audio)
	require.Len(t, res.Transcript, 2)
	assert.Equal(t, session.RoleUser, res.Transcript[0].Role)
	assert.Equal(t, "I had a long day", res.Transcript[0].Text)
	assert.Equal(t, session.RoleAgent, res.Transcript[1].Role)

	chats := h.model.chatRequests()
	require.Len(t, chats, 1)
	aria, _ := h.svc.Personas.Get("aria")
	assert.Equal(t, aria.SystemPrompt, chats[0].SystemPrompt)
	assert.Equal(t, 300, chats[0].MaxTokens)
	assert.InDelta(t, 0.7, chats[0].Temperature, 1e-9)

	got, err := h.svc.Transcript(sess.ID, "u1")
	require.NoError(t, err)
	require.Len(t, got.Notes, 1, "every analysis result is recorded")
	assert.Len(t, h.observer.Named(metrics.EventLLMLatency), 1)
}

func TestProcessTurnSendsWholeConversation(t *testing.T) {
	h := newHarness(t, withModel())
	sess := h.start(t, "u1")
	for _, text := range []string{"first", "second"} {
		_, err := h.svc.ProcessTurn(context.Background(), sess.ID, "u1", text)
		require.NoError(t, err)
	}
	chats := h.model.chatRequests()
	require.Len(t, chats, 2)
	msgs := chats[1].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "second", msgs[2].Content)
}

func TestSelfHarmAutoEscalates(t *testing.T) {
	h := newHarness(t, withModel())
	h.model.verdict = func(req llm.Request) string {
		if strings.Contains(req.Messages[0].Content, "hurt myself") {
			return selfHarmVerdict
		}
		return lowVerdict
	}
	sess := h.start(t, "u1")

	res, err := h.svc.ProcessTurn(context.Background(), sess.ID, "u1", "I want to hurt myself")
	require.NoError(t, err)
	assert.True(t, res.AutoEscalated)
	require.NotNil(t, res.SupervisorNote)
	assert.Equal(t, session.SeverityHigh, res.SupervisorNote.Severity)
	assert.Contains(t, res.EscalationMessage, "988")
	require.NotNil(t, res.Escalation)
	assert.Equal(t, escalation.OutcomeCallPlaced, res.Escalation.Outcome)

	last := res.Transcript[len(res.Transcript)-1]
	assert.Equal(t, session.RoleSystem, last.Role)
	assert.Equal(t, res.EscalationMessage, last.Text)

	got, err := h.svc.Transcript(sess.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusEscalated, got.Status)

	calls := h.escalator.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "I want to hurt myself", calls[0].LastUtterance)
	assert.Equal(t, "Aria", calls[0].PersonaName)

	_, err = h.svc.ProcessTurn(context.Background(), sess.ID, "u1", "hello?")
	require.ErrorIs(t, err, errorsx.ErrConflict)
	assert.Equal(t, []events.Type{events.CallStarted, events.CallEscalated}, h.events.Types())
}

func TestGenericEscalationWordingDiffers(t *testing.T) {
	h := newHarness(t, withModel())
	h.model.verdict = func(llm.Request) string { return angryVerdict }
	sess := h.start(t, "u1")

	res, err := h.svc.ProcessTurn(context.Background(), sess.ID, "u1", "get me a real person now")
	require.NoError(t, err)
	require.True(t, res.AutoEscalated)
	assert.NotContains(t, res.EscalationMessage, "988")
	aria, _ := h.svc.Personas.Get("aria")
	selfHarm := EscalationMessage(aria, session.SupervisorNote{Flags: []string{supervisor.FlagSelfHarm}})
	assert.NotEqual(t, selfHarm, res.EscalationMessage)
}

func TestMediumNoteSurfacedWithoutEscalation(t *testing.T) {
	h := newHarness(t, withModel())
	h.model.verdict = func(llm.Request) string {
		return `{"severity":"medium","sentiment":"sad","flags":[],"escalation_needed":false,"reason":"low mood"}`
	}
	sess := h.start(t, "u1")
	res, err := h.svc.ProcessTurn(context.Background(), sess.ID, "u1", "feeling down")
	require.NoError(t, err)
	require.NotNil(t, res.SupervisorNote)
	assert.Equal(t, session.SeverityMedium, res.SupervisorNote.Severity)
	assert.False(t, res.AutoEscalated)
	assert.Empty(t, h.escalator.calls())
}

func TestBrowserLLMFailureReturnsApology(t *testing.T) {
	h := newHarness(t, withModel())
	h.model.chat = func(llm.Request) (string, error) { return "", errors.New("upstream 500") }
	sess := h.start(t, "u1")

	res, err := h.svc.ProcessTurn(context.Background(), sess.ID, "u1", "hello")
	require.NoError(t, err)
	assert.True(t, res.ProviderFailed)
	assert.Equal(t, BrowserApology, res.AgentText)
	require.Len(t, res.Transcript, 1, "the apology is never persisted")

	got, err := h.svc.Transcript(sess.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, got.Status)
	assert.Len(t, got.Transcript, 1)
}

func TestNoProviderConfigured(t *testing.T) {
	h := newHarness(t, settings.Snapshot{})
	sess := h.start(t, "u1")
	assert.Nil(t, sess.Provider)

	res, err := h.svc.ProcessTurn(context.Background(), sess.ID, "u1", "hello")
	require.NoError(t, err)
	assert.True(t, res.ProviderFailed)
	assert.Empty(t, h.model.requests)

	ended, err := h.svc.End(context.Background(), sess.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Call completed.", ended.Summary)
}

func TestPhoneLLMFailureSignalsCaller(t *testing.T) {
	h := newHarness(t, withModel())
	h.model.chat = func(llm.Request) (string, error) { return "", errors.New("timeout") }
	sess, err := h.svc.StartPhone(context.Background(), PhoneParams{PersonaID: "max", CallerNumber: "+15551234567", CallSID: "CA9"})
	require.NoError(t, err)

	res, err := h.svc.ProcessPhoneTurn(context.Background(), sess.ID, "CA9", "hello")
	require.NoError(t, err)
	assert.True(t, res.ProviderFailed)
	assert.Empty(t, res.AgentText)
}

func TestSlowPhoneModelFailsWithinPhoneBudget(t *testing.T) {
	h := newHarness(t, withModel())
	h.svc.cfg.PhoneLLMTimeout = 50 * time.Millisecond
	h.model.chatDelay = 5 * time.Second
	sess, err := h.svc.StartPhone(context.Background(), PhoneParams{PersonaID: "max", CallerNumber: "+15551234567", CallSID: "CA9"})
	require.NoError(t, err)

	started := time.Now()
	res, err := h.svc.ProcessPhoneTurn(context.Background(), sess.ID, "CA9", "hello")
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 2*time.Second)
	assert.True(t, res.ProviderFailed)
	assert.Empty(t, res.AgentText)
}

func TestSlowSupervisorIsCappedOnPhone(t *testing.T) {
	h := newHarness(t, withModel())
	h.svc.cfg.PhoneSupervisorTimeout = 50 * time.Millisecond
	h.model.verdictDelay = 5 * time.Second
	sess, err := h.svc.StartPhone(context.Background(), PhoneParams{PersonaID: "max", CallerNumber: "+15551234567", CallSID: "CA9"})
	require.NoError(t, err)

	started := time.Now()
	res, err := h.svc.ProcessPhoneTurn(context.Background(), sess.ID, "CA9", "hello")
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 2*time.Second)
	assert.False(t, res.ProviderFailed)
	assert.Equal(t, "I hear you.", res.AgentText)
	assert.Nil(t, res.SupervisorNote)
	got, err := h.svc.Store.Get(sess.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Notes)
}

func TestPhoneTurnExtendsIdleDeadline(t *testing.T) {
	h := newHarness(t, withModel())
	base := time.Now()
	h.svc.now = func() time.Time { return base }
	sess, err := h.svc.StartPhone(context.Background(), PhoneParams{PersonaID: "aria", CallerNumber: "+1555", CallSID: "CA3"})
	require.NoError(t, err)

	h.svc.now = func() time.Time { return base.Add(9 * time.Minute) }
	_, err = h.svc.ProcessPhoneTurn(context.Background(), sess.ID, "CA3", "still here")
	require.NoError(t, err)

	assert.Equal(t, 0, h.svc.SweepIdle(context.Background(), base.Add(11*time.Minute)))
	assert.Equal(t, 1, h.svc.SweepIdle(context.Background(), base.Add(20*time.Minute)))
}

func TestBrowserRequesterCannotReachPhoneSession(t *testing.T) {
	h := newHarness(t, withModel())
	sess, err := h.svc.StartPhone(context.Background(), PhoneParams{PersonaID: "max", CallerNumber: "+15551234567", CallSID: "CA9"})
	require.NoError(t, err)

	for _, requester := range []string{"mallory", "", sess.OwnerID} {
		_, err = h.svc.Transcript(sess.ID, requester)
		require.ErrorIs(t, err, errorsx.ErrForbidden, requester)
		_, err = h.svc.ProcessTurn(context.Background(), sess.ID, requester, "hi")
		require.ErrorIs(t, err, errorsx.ErrForbidden, requester)
		_, err = h.svc.Escalate(context.Background(), sess.ID, requester, "")
		require.ErrorIs(t, err, errorsx.ErrForbidden, requester)
		_, err = h.svc.End(context.Background(), sess.ID, requester)
		require.ErrorIs(t, err, errorsx.ErrForbidden, requester)
	}

	got, err := h.svc.Store.Get(sess.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Transcript)
	assert.Equal(t, session.StatusActive, got.Status)
	assert.Empty(t, h.escalator.calls())
}

func TestPhoneLegBoundToCallSID(t *testing.T) {
	h := newHarness(t, withModel())
	phone, err := h.svc.StartPhone(context.Background(), PhoneParams{PersonaID: "max", CallerNumber: "+15551234567", CallSID: "CA9"})
	require.NoError(t, err)
	browser := h.start(t, "u1")

	_, err = h.svc.ProcessPhoneTurn(context.Background(), phone.ID, "CA-other", "hi")
	require.ErrorIs(t, err, errorsx.ErrForbidden)
	_, err = h.svc.PhoneTranscript(phone.ID, "")
	require.ErrorIs(t, err, errorsx.ErrForbidden)
	_, err = h.svc.EndPhone(context.Background(), phone.ID, "CA-other")
	require.ErrorIs(t, err, errorsx.ErrForbidden)
	_, err = h.svc.ProcessPhoneTurn(context.Background(), browser.ID, "CA9", "hi")
	require.ErrorIs(t, err, errorsx.ErrForbidden, "browser sessions are not reachable from phone legs")

	got, err := h.svc.PhoneTranscript(phone.ID, "CA9")
	require.NoError(t, err)
	assert.Empty(t, got.Transcript)
	ended, err := h.svc.EndPhone(context.Background(), phone.ID, "CA9")
	require.NoError(t, err)
	assert.Equal(t, session.StatusEnded, ended.Status)
}

func TestStartPhone(t *testing.T) {
	h := newHarness(t, settings.Snapshot{
		DefaultLLM: &llm.Config{Provider: llm.ProviderMock},
		TTS:        &tts.Config{Provider: "mock"},
	})
	first, err := h.svc.StartPhone(context.Background(), PhoneParams{PersonaID: "max", CallerNumber: "+15551234567", CallSID: "CA1"})
	require.NoError(t, err)
	second, err := h.svc.StartPhone(context.Background(), PhoneParams{PersonaID: "max", CallerNumber: "+15551234567", CallSID: "CA2"})
	require.NoError(t, err)

	assert.Equal(t, session.SourcePhone, first.Source)
	assert.True(t, strings.HasPrefix(first.OwnerID, "phone:"))
	assert.NotEqual(t, first.OwnerID, second.OwnerID, "each call gets a fresh identity")
	assert.Equal(t, "Caller ••4567", first.DisplayName)
	assert.Nil(t, first.Speech)
	assert.Equal(t, llm.ProviderMock, first.ProviderName())

	res, err := h.svc.ProcessPhoneTurn(context.Background(), first.ID, "CA1", "hi")
	require.NoError(t, err)
	assert.Nil(t, res.Audio)
	chats := h.model.chatRequests()
	require.NotEmpty(t, chats)
	assert.Equal(t, 150, chats[len(chats)-1].MaxTokens)
}

func TestSpeechSynthesis(t *testing.T) {
	h := newHarness(t, withModel())
	sess, err := h.svc.Start(context.Background(), StartParams{OwnerID: "u1", PersonaID: "aria", Speech: &tts.Config{Provider: "mock"}})
	require.NoError(t, err)
	res, err := h.svc.ProcessTurn(context.Background(), sess.ID, "u1", "hi")
	require.NoError(t, err)
	assert.Len(t, res.Audio, 320)

	other, err := h.svc.Start(context.Background(), StartParams{OwnerID: "u2", PersonaID: "aria", Speech: &tts.Config{Provider: "mock", APIKey: "broken"}})
	require.NoError(t, err)
	res, err = h.svc.ProcessTurn(context.Background(), other.ID, "u2", "hi")
	require.NoError(t, err)
	assert.Nil(t, res.Audio, "synthesis failure is not an error")
	assert.Equal(t, "I hear you.", res.AgentText)
}

func TestProcessTurnErrors(t *testing.T) {
	h := newHarness(t, withModel())
	sess := h.start(t, "u1")

	_, err := h.svc.ProcessTurn(context.Background(), sess.ID, "intruder", "hi")
	require.ErrorIs(t, err, errorsx.ErrForbidden)
	_, err = h.svc.ProcessTurn(context.Background(), "missing", "u1", "hi")
	require.ErrorIs(t, err, errorsx.ErrNotFound)
	_, err = h.svc.ProcessTurn(context.Background(), sess.ID, "u1", "   ")
	require.ErrorIs(t, err, errorsx.ErrValidation)

	_, err = h.svc.End(context.Background(), sess.ID, "u1")
	require.NoError(t, err)
	_, err = h.svc.ProcessTurn(context.Background(), sess.ID, "u1", "hi")
	require.ErrorIs(t, err, errorsx.ErrCallEnded)
}

func TestStartErrors(t *testing.T) {
	h := newHarness(t, withModel())
	h.start(t, "u1")
	_, err := h.svc.Start(context.Background(), StartParams{OwnerID: "u1", PersonaID: "max"})
	require.ErrorIs(t, err, errorsx.ErrConflict)
	_, err = h.svc.Start(context.Background(), StartParams{OwnerID: "u2", PersonaID: "nova"})
	require.ErrorIs(t, err, errorsx.ErrNotFound)
	_, err = h.svc.Start(context.Background(), StartParams{OwnerID: "u3", PersonaID: "aria", Provider: &llm.Config{Provider: "cohere"}})
	require.ErrorIs(t, err, errorsx.ErrValidation)
}

func TestStartPrefersExplicitProvider(t *testing.T) {
	h := newHarness(t, settings.Snapshot{DefaultLLM: &llm.Config{Provider: "openai", APIKey: "sk-default"}})
	sess, err := h.svc.Start(context.Background(), StartParams{OwnerID: "u1", PersonaID: "aria", Provider: &llm.Config{Provider: llm.ProviderMock}})
	require.NoError(t, err)
	assert.Equal(t, llm.ProviderMock, sess.ProviderName())
}

func TestEndSummarizesArchivesOnce(t *testing.T) {
	h := newHarness(t, withModel())
	h.model.summary = "Sam talked about a long day and felt better."
	sess := h.start(t, "u1")
	_, err := h.svc.ProcessTurn(context.Background(), sess.ID, "u1", "long day")
	require.NoError(t, err)

	ended, err := h.svc.End(context.Background(), sess.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusEnded, ended.Status)
	assert.Equal(t, "Sam talked about a long day and felt better.", ended.Summary)
	require.NotNil(t, ended.EndedAt)

	again, err := h.svc.End(context.Background(), sess.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, ended.Summary, again.Summary)
	assert.Len(t, h.archive.Records(), 1, "archive is written exactly once")

	got, err := h.svc.Transcript(sess.ID, "u1")
	require.NoError(t, err, "ended sessions stay readable during the grace window")
	assert.Equal(t, session.StatusEnded, got.Status)
	assert.Equal(t, []events.Type{events.CallStarted, events.CallEnded}, h.events.Types())
}

func TestEndSummaryFailureFallsBack(t *testing.T) {
	h := newHarness(t, withModel())
	sess := h.start(t, "u1")
	_, err := h.svc.ProcessTurn(context.Background(), sess.ID, "u1", "hi")
	require.NoError(t, err)
	ended, err := h.svc.End(context.Background(), sess.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, DefaultSummary, ended.Summary)
}

type failingArchive struct{}

func (failingArchive) Save(context.Context, session.CallSession) error {
	return errors.New("db down")
}

func TestEndSucceedsWhenArchiveFails(t *testing.T) {
	h := newHarness(t, withModel())
	h.svc.Archive = failingArchive{}
	sess := h.start(t, "u1")
	ended, err := h.svc.End(context.Background(), sess.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusEnded, ended.Status)
}

func TestEndForbiddenForOtherOwner(t *testing.T) {
	h := newHarness(t, withModel())
	sess := h.start(t, "u1")
	_, err := h.svc.End(context.Background(), sess.ID, "u2")
	require.ErrorIs(t, err, errorsx.ErrForbidden)
}

func TestEndByProvider(t *testing.T) {
	h := newHarness(t, withModel())
	sess, err := h.svc.StartPhone(context.Background(), PhoneParams{PersonaID: "kai", CallerNumber: "+15550001111", CallSID: "CA77"})
	require.NoError(t, err)
	_, err = h.svc.EscalatePhone(context.Background(), sess.ID, "CA77", "caller pressed for help")
	require.NoError(t, err)

	ended, err := h.svc.EndByProvider(context.Background(), "CA77", "no-answer")
	require.NoError(t, err)
	assert.Equal(t, "Call ended (no-answer).", ended.Summary)
	assert.Equal(t, session.StatusEnded, ended.Status)

	_, err = h.svc.EndByProvider(context.Background(), "CA-unknown", "completed")
	require.ErrorIs(t, err, errorsx.ErrNotFound)
}

func TestManualEscalate(t *testing.T) {
	h := newHarness(t, withModel())
	sess := h.start(t, "u1")
	_, err := h.svc.ProcessTurn(context.Background(), sess.ID, "u1", "I'd like to talk to someone")
	require.NoError(t, err)

	res, err := h.svc.Escalate(context.Background(), sess.ID, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, escalation.OutcomeCallPlaced, res.Outcome)
	got, err := h.svc.Transcript(sess.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusEscalated, got.Status)
	turns := len(got.Transcript)
	assert.Equal(t, session.RoleSystem, got.Transcript[turns-1].Role)

	_, err = h.svc.Escalate(context.Background(), sess.ID, "u1", "again")
	require.NoError(t, err)
	got, err = h.svc.Transcript(sess.ID, "u1")
	require.NoError(t, err)
	assert.Len(t, got.Transcript, turns, "re-notifying adds no turn")
	assert.Len(t, h.escalator.calls(), 2)

	_, err = h.svc.Escalate(context.Background(), sess.ID, "u2", "")
	require.ErrorIs(t, err, errorsx.ErrForbidden)

	_, err = h.svc.End(context.Background(), sess.ID, "u1")
	require.NoError(t, err)
	_, err = h.svc.Escalate(context.Background(), sess.ID, "u1", "")
	require.ErrorIs(t, err, errorsx.ErrConflict)
}

func TestSweepIdleEndsStalePhoneCalls(t *testing.T) {
	h := newHarness(t, withModel())
	base := time.Now()
	h.svc.now = func() time.Time { return base }

	stale, err := h.svc.StartPhone(context.Background(), PhoneParams{PersonaID: "aria", CallerNumber: "+1555", CallSID: "CA1"})
	require.NoError(t, err)
	browser := h.start(t, "u1")

	assert.Equal(t, 0, h.svc.SweepIdle(context.Background(), base.Add(time.Minute)))
	assert.Equal(t, 1, h.svc.SweepIdle(context.Background(), base.Add(11*time.Minute)))

	got, err := h.svc.Store.Get(stale.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusEnded, got.Status)
	assert.Equal(t, "Call ended (idle timeout).", got.Summary)

	b, err := h.svc.Store.Get(browser.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, b.Status, "browser sessions have no idle deadline")
}

func TestConcurrentTurnsStayOrdered(t *testing.T) {
	h := newHarness(t, withModel())
	h.model.chat = func(req llm.Request) (string, error) {
		last := req.Messages[len(req.Messages)-1].Content
		return "re:" + last, nil
	}
	sess := h.start(t, "u1")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = h.svc.ProcessTurn(context.Background(), sess.ID, "u1", fmt.Sprintf("m%d", i))
		}(i)
	}
	wg.Wait()

	got, err := h.svc.Transcript(sess.ID, "u1")
	require.NoError(t, err)
	require.Len(t, got.Transcript, 20)
	for i := 0; i < 20; i += 2 {
		assert.Equal(t, "re:"+got.Transcript[i].Text, got.Transcript[i+1].Text)
		assert.False(t, got.Transcript[i+1].At.Before(got.Transcript[i].At))
	}
}
