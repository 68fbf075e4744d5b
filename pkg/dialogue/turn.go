package dialogue

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/escalation"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/events"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/metrics"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/persona"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/session"
)

// TurnResult is what the channel renders after one exchange.
type TurnResult struct {
	AgentText string `json:"agent_text"`
	// Audio is nil when synthesis is off or failed; the channel speaks the
	// text with its own voice.
	Audio             []byte                  `json:"audio,omitempty"`
	Transcript        []session.Turn          `json:"transcript"`
	SupervisorNote    *session.SupervisorNote `json:"supervisor_note,omitempty"`
	AutoEscalated     bool                    `json:"auto_escalated"`
	EscalationMessage string                  `json:"escalation_message,omitempty"`
	Escalation        *escalation.Result      `json:"escalation,omitempty"`
	ProviderFailed    bool                    `json:"provider_failed"`
}

// ProcessTurn runs one caller utterance through the model, speech, the
// supervisor and, when needed, escalation. The whole exchange holds the
// session's conversation lock.
func (s *Service) ProcessTurn(ctx context.Context, id, requester, text string) (TurnResult, error) {
	return s.processTurn(ctx, id, browserAccess(requester), text)
}

// ProcessPhoneTurn is ProcessTurn for a phone leg identified by its call id.
func (s *Service) ProcessPhoneTurn(ctx context.Context, id, callSID, text string) (TurnResult, error) {
	return s.processTurn(ctx, id, phoneAccess(callSID), text)
}

func (s *Service) processTurn(ctx context.Context, id string, a access, text string) (TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TurnResult{}, errorsx.Validation("text is required")
	}
	if _, err := s.authorize(id, a); err != nil {
		return TurnResult{}, err
	}
	unlock, err := s.Store.Lock(id)
	if err != nil {
		return TurnResult{}, err
	}
	defer unlock()

	sess, err := s.Store.Get(id)
	if err != nil {
		return TurnResult{}, err
	}
	if sess.Status != session.StatusActive {
		return TurnResult{}, errorsx.ErrCallEnded
	}
	if _, err := s.Store.AppendTurn(id, session.RoleUser, text); err != nil {
		return TurnResult{}, err
	}
	log := s.Logger.With(slog.String("session_id", id), slog.String("provider", sess.ProviderName()))
	if sess.Source == session.SourcePhone {
		if err := s.Store.Touch(id, s.now().Add(s.cfg.PhoneIdle)); err != nil {
			log.Warn("idle_deadline_touch_failed", slog.String("error", err.Error()))
		}
	}
	sess, err = s.Store.Get(id)
	if err != nil {
		return TurnResult{}, err
	}
	p := s.personaFor(sess)

	model := s.model(ctx, sess, log)
	reply, err := s.complete(ctx, model, sess.Source, llm.Request{
		SystemPrompt: p.SystemPrompt,
		Messages:     conversation(sess.Transcript),
		MaxTokens:    s.budget(sess.Source),
		Temperature:  s.cfg.Temperature,
	})
	if err != nil {
		log.Warn("turn_llm_failed",
			slog.String("source", string(sess.Source)),
			slog.String("reason_code", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
		res := TurnResult{ProviderFailed: true, Transcript: sess.Transcript}
		if sess.Source == session.SourceBrowser {
			res.AgentText = BrowserApology
		}
		return res, nil
	}
	if _, err := s.Store.AppendTurn(id, session.RoleAgent, reply); err != nil {
		return TurnResult{}, err
	}
	res := TurnResult{AgentText: reply}
	res.Audio = s.synthesize(ctx, sess, p, reply, log)

	sess, err = s.Store.Get(id)
	if err != nil {
		return TurnResult{}, err
	}
	note, ok := s.analyze(ctx, model, sess)
	if ok {
		if err := s.Store.AppendNote(id, note); err != nil {
			return TurnResult{}, err
		}
		s.Observer.RecordEvent(metrics.MetricsEvent{
			Name:  metrics.EventSupervisorSeverity,
			Time:  note.At,
			Value: severityValue(note.Severity),
			Tags:  map[string]string{"severity": string(note.Severity), "source": string(sess.Source)},
		})
		if note.Notable() {
			n := note
			res.SupervisorNote = &n
		}
	}
	if ok && note.Critical() {
		s.autoEscalate(ctx, sess, p, note, &res, log)
	}

	final, err := s.Store.Get(id)
	if err != nil {
		return TurnResult{}, err
	}
	res.Transcript = final.Transcript
	return res, nil
}

func (s *Service) autoEscalate(ctx context.Context, sess session.CallSession, p persona.Persona, note session.SupervisorNote, res *TurnResult, log *slog.Logger) {
	if err := s.Store.SetStatus(sess.ID, session.StatusEscalated); err != nil {
		log.Error("auto_escalation_transition_failed", slog.String("error", err.Error()))
		return
	}
	msg := EscalationMessage(p, note)
	if _, err := s.Store.AppendTurn(sess.ID, session.RoleSystem, msg); err != nil {
		log.Error("auto_escalation_turn_failed", slog.String("error", err.Error()))
	}
	res.AutoEscalated = true
	res.EscalationMessage = msg
	log.Warn("call_auto_escalated",
		slog.Any("flags", note.Flags),
		slog.String("reason", note.Reason))

	out := s.Escalator.Escalate(ctx, escalation.Request{
		SessionID:        sess.ID,
		OwnerName:        sess.DisplayName,
		PersonaName:      p.Name,
		PersonaSpecialty: p.Specialty,
		LastUtterance:    sess.LastUserText(),
		Reason:           note.Reason,
	})
	res.Escalation = &out
	sess.Status = session.StatusEscalated
	s.publish(ctx, events.CallEscalated, sess, string(out.Outcome))
}

// model builds the session's backend. Build errors degrade to the
// fail-fast provider so every path reaches its documented fallback.
func (s *Service) model(ctx context.Context, sess session.CallSession, log *slog.Logger) llm.Provider {
	model, err := s.Providers.Build(ctx, sess.Provider)
	if err != nil {
		log.Warn("llm_provider_build_failed", slog.String("error", err.Error()))
		return llm.Unconfigured{}
	}
	return model
}

// analyze runs the supervisor; phone legs cap it so a slow verdict cannot
// push the reply past the webhook deadline.
func (s *Service) analyze(ctx context.Context, model llm.Provider, sess session.CallSession) (session.SupervisorNote, bool) {
	if sess.Source == session.SourcePhone {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PhoneSupervisorTimeout)
		defer cancel()
	}
	return s.Analyzer.Analyze(ctx, model, sess.Transcript)
}

func (s *Service) complete(ctx context.Context, model llm.Provider, src session.Source, req llm.Request) (string, error) {
	timeout := s.cfg.LLMTimeout
	if src == session.SourcePhone {
		timeout = s.cfg.PhoneLLMTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	started := time.Now()
	text, err := model.Complete(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.Observer.RecordEvent(metrics.Latency(metrics.EventLLMLatency, started, map[string]string{
		"provider": model.Name(),
		"status":   status,
	}))
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errorsx.Wrap(errorsx.Validation("empty completion"), errorsx.ReasonLLMGenerate)
	}
	return text, nil
}

func (s *Service) synthesize(ctx context.Context, sess session.CallSession, p persona.Persona, text string, log *slog.Logger) []byte {
	if !sess.Speech.Enabled() {
		return nil
	}
	synth, err := s.Providers.BuildTTS(sess.Speech)
	if err != nil || synth == nil {
		if err != nil {
			log.Warn("tts_build_failed", slog.String("error", err.Error()))
		}
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TTSTimeout)
	defer cancel()
	started := time.Now()
	audio, err := synth.Synthesize(ctx, p.VoiceID, text)
	s.Observer.RecordEvent(metrics.Latency(metrics.EventTTSLatency, started, map[string]string{"provider": synth.Name()}))
	if err != nil {
		log.Warn("tts_failed",
			slog.String("tts", synth.Name()),
			slog.String("reason_code", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
		return nil
	}
	return audio
}

func (s *Service) budget(src session.Source) int {
	if src == session.SourcePhone {
		return s.cfg.PhoneMaxTokens
	}
	return s.cfg.BrowserMaxTokens
}

func severityValue(sev session.Severity) float64 {
	switch sev {
	case session.SeverityHigh:
		return 2
	case session.SeverityMedium:
		return 1
	default:
		return 0
	}
}
