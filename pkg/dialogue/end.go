package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/escalation"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/events"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/metrics"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/session"
)

// End closes the call, writes its summary and archives it once. Ending an
// ended call returns it unchanged.
func (s *Service) End(ctx context.Context, id, requester string) (session.CallSession, error) {
	return s.end(ctx, id, browserAccess(requester))
}

// EndPhone ends a phone call from its own leg, for example after silence.
func (s *Service) EndPhone(ctx context.Context, id, callSID string) (session.CallSession, error) {
	return s.end(ctx, id, phoneAccess(callSID))
}

func (s *Service) end(ctx context.Context, id string, a access) (session.CallSession, error) {
	if _, err := s.authorize(id, a); err != nil {
		return session.CallSession{}, err
	}
	return s.finish(ctx, id, "requested", func(sess session.CallSession) string {
		return s.summarize(ctx, sess)
	})
}

// EndByProvider handles a terminal status callback for a phone call.
// Unknown call ids are ignored.
func (s *Service) EndByProvider(ctx context.Context, callSID, status string) (session.CallSession, error) {
	sess, err := s.Store.FindByCallID(callSID)
	if err != nil {
		return session.CallSession{}, err
	}
	return s.finish(ctx, sess.ID, "provider_"+status, func(session.CallSession) string {
		return EndedByProviderSummary(status)
	})
}

func (s *Service) finish(ctx context.Context, id, cause string, summary func(session.CallSession) string) (session.CallSession, error) {
	unlock, err := s.Store.Lock(id)
	if err != nil {
		return session.CallSession{}, err
	}
	defer unlock()

	sess, err := s.Store.Get(id)
	if err != nil {
		return session.CallSession{}, err
	}
	if sess.Status == session.StatusEnded {
		return sess, nil
	}
	ended, err := s.Store.Finish(id, summary(sess))
	if err != nil {
		return session.CallSession{}, err
	}
	log := s.Logger.With(slog.String("session_id", id))

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ArchiveTimeout)
	defer cancel()
	if err := s.Archive.Save(actx, ended); err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonArchiveWrite)
		log.Error("archive_write_failed",
			slog.String("reason_code", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
	}
	dur := time.Duration(0)
	if ended.EndedAt != nil {
		dur = ended.EndedAt.Sub(ended.StartedAt)
	}
	log.Info("call_ended",
		slog.String("cause", cause),
		slog.String("source", string(ended.Source)),
		slog.Int("turns", len(ended.Transcript)),
		slog.Duration("duration", dur))
	s.Observer.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventCallEnded,
		Time:  s.now(),
		Value: dur.Seconds(),
		Tags:  map[string]string{"source": string(ended.Source), "cause": cause},
	})
	s.publish(ctx, events.CallEnded, ended, "")
	return ended, nil
}

// summarize asks the model for a history note, falling back to the literal
// default when no model is configured or the call fails.
func (s *Service) summarize(ctx context.Context, sess session.CallSession) string {
	model := s.model(ctx, sess, s.Logger)
	if llm.IsUnconfigured(model) || len(sess.Transcript) == 0 {
		return DefaultSummary
	}
	text, err := s.complete(ctx, model, sess.Source, llm.Request{
		SystemPrompt: summaryPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Transcript:\n" + transcriptText(sess.Transcript)}},
		MaxTokens:    s.cfg.SummaryMaxTokens,
		Temperature:  0.3,
	})
	if err != nil {
		s.Logger.Warn("summary_failed", slog.String("session_id", sess.ID), slog.String("error", err.Error()))
		return DefaultSummary
	}
	return text
}

// Escalate hands the call to a human on request. An active call moves to
// escalated with a system turn; an already escalated call only re-notifies.
func (s *Service) Escalate(ctx context.Context, id, requester, reason string) (escalation.Result, error) {
	return s.escalate(ctx, id, browserAccess(requester), reason)
}

// EscalatePhone escalates a phone call from its own leg.
func (s *Service) EscalatePhone(ctx context.Context, id, callSID, reason string) (escalation.Result, error) {
	return s.escalate(ctx, id, phoneAccess(callSID), reason)
}

func (s *Service) escalate(ctx context.Context, id string, a access, reason string) (escalation.Result, error) {
	if _, err := s.authorize(id, a); err != nil {
		return escalation.Result{}, err
	}
	unlock, err := s.Store.Lock(id)
	if err != nil {
		return escalation.Result{}, err
	}
	defer unlock()

	sess, err := s.Store.Get(id)
	if err != nil {
		return escalation.Result{}, err
	}
	if sess.Status == session.StatusEnded {
		return escalation.Result{}, errorsx.ErrCallEnded
	}
	p := s.personaFor(sess)
	transitioned := false
	if sess.Status == session.StatusActive {
		if err := s.Store.SetStatus(id, session.StatusEscalated); err != nil {
			return escalation.Result{}, err
		}
		if _, err := s.Store.AppendTurn(id, session.RoleSystem, ManualEscalationMessage(p)); err != nil {
			return escalation.Result{}, err
		}
		transitioned = true
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "caller requested a human"
	}
	out := s.Escalator.Escalate(ctx, escalation.Request{
		SessionID:        id,
		OwnerName:        sess.DisplayName,
		PersonaName:      p.Name,
		PersonaSpecialty: p.Specialty,
		LastUtterance:    sess.LastUserText(),
		Reason:           reason,
	})
	s.Logger.Info("call_escalated",
		slog.String("session_id", id),
		slog.String("outcome", string(out.Outcome)),
		slog.Bool("transitioned", transitioned),
		slog.String("reason", reason))
	if transitioned {
		sess.Status = session.StatusEscalated
		s.publish(ctx, events.CallEscalated, sess, string(out.Outcome))
	}
	return out, nil
}

// SweepIdle ends phone calls whose idle deadline has passed and returns how
// many it ended.
func (s *Service) SweepIdle(ctx context.Context, now time.Time) int {
	ended := 0
	for _, id := range s.Store.Expired(now) {
		_, err := s.finish(ctx, id, "idle_timeout", func(session.CallSession) string {
			return EndedByProviderSummary("idle timeout")
		})
		if err != nil {
			if !errors.Is(err, errorsx.ErrNotFound) {
				s.Logger.Warn("idle_sweep_failed", slog.String("session_id", id), slog.String("error", err.Error()))
			}
			continue
		}
		ended++
	}
	return ended
}

// RunSweeper calls SweepIdle every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.SweepIdle(ctx, now); n > 0 {
				s.Logger.Info("idle_sweep", slog.Int("ended", n))
			}
		}
	}
}
